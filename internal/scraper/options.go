package scraper

import (
	"time"

	"infosage/internal/config"
)

// RequestOptions is a higher-level set of options used to construct a
// low-level scraper.Request in a consistent way.
type RequestOptions struct {
	URL            string
	TimeoutMs      int
	UserAgent      string
	AcceptLanguage string
}

// BuildRequestFromOptions builds a scraper.Request from higher-level
// RequestOptions.
func BuildRequestFromOptions(opts RequestOptions) Request {
	headers := map[string]string{
		"Accept": "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5",
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	var timeout time.Duration
	if opts.TimeoutMs > 0 {
		timeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}

	return Request{
		URL:       opts.URL,
		Headers:   headers,
		Timeout:   timeout,
		UserAgent: opts.UserAgent,
	}
}

// NewFromConfig picks the browser scraper when preview.useBrowser is set,
// otherwise the plain HTTP one.
func NewFromConfig(cfg config.PreviewConfig, allow AddrFilter) Scraper {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if cfg.UseBrowser {
		return NewRodScraper(cfg.BrowserURL, timeout, allow)
	}
	return NewHTTPScraper(timeout, allow)
}
