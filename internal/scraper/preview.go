package scraper

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"infosage/internal/config"
	"infosage/internal/prompt"
	"infosage/internal/textutil"
)

var (
	// ErrUnsupportedURL is returned for anything but absolute http(s) URLs.
	ErrUnsupportedURL = errors.New("preview requires an absolute http or https URL")
	// ErrBlockedByRobots is returned when robots.txt disallows the URL.
	ErrBlockedByRobots = errors.New("blocked by robots.txt")
)

// LinkPreviewer fetches a submitted link and condenses it into a
// prompt.Page.
type LinkPreviewer struct {
	scraper   Scraper
	robots    *http.Client
	allow     AddrFilter
	sanitizer *bluemonday.Policy
	cfg       config.PreviewConfig
}

// PreviewOption customises a LinkPreviewer.
type PreviewOption func(*LinkPreviewer)

// WithAddrFilter replaces PublicOnly as the rule for which resolved
// addresses may be fetched.
func WithAddrFilter(f AddrFilter) PreviewOption {
	return func(p *LinkPreviewer) {
		if f != nil {
			p.allow = f
		}
	}
}

// NewLinkPreviewer builds a previewer from cfg. A nil scraper selects one
// with NewFromConfig.
func NewLinkPreviewer(cfg config.PreviewConfig, s Scraper, opts ...PreviewOption) *LinkPreviewer {
	p := &LinkPreviewer{
		allow:     PublicOnly,
		sanitizer: bluemonday.StrictPolicy(),
		cfg:       cfg,
	}
	for _, o := range opts {
		o(p)
	}
	if s == nil {
		s = NewFromConfig(cfg, p.allow)
	}
	p.scraper = s
	p.robots = newGuardedClient(time.Duration(cfg.TimeoutMs)*time.Millisecond, p.allow)
	return p
}

// Preview fetches rawURL and returns its sanitised title, description and
// an excerpt of at most cfg.MaxChars characters.
func (p *LinkPreviewer) Preview(ctx context.Context, rawURL string) (*prompt.Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrUnsupportedURL
	}

	if err := checkHost(ctx, u, p.allow); err != nil {
		return nil, fmt.Errorf("preview %s: %w", u.Redacted(), err)
	}

	if p.cfg.RespectRobots && !robotsAllow(ctx, p.robots, u, p.cfg.UserAgent) {
		return nil, ErrBlockedByRobots
	}

	res, err := p.scraper.Scrape(ctx, BuildRequestFromOptions(RequestOptions{
		URL:            u.String(),
		TimeoutMs:      p.cfg.TimeoutMs,
		UserAgent:      p.cfg.UserAgent,
		AcceptLanguage: p.cfg.AcceptLanguage,
	}))
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", u.Redacted(), err)
	}

	return &prompt.Page{
		Title:       p.clean(res.Title, 300),
		Description: p.clean(res.Description, 500),
		Excerpt:     p.clean(res.Markdown, p.cfg.MaxChars),
		Language:    p.clean(res.Language, 35),
	}, nil
}

func (p *LinkPreviewer) clean(s string, max int) string {
	s = html.UnescapeString(p.sanitizer.Sanitize(s))
	return strings.TrimSpace(textutil.Truncate(strings.TrimSpace(s), max))
}
