package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// maxBodyBytes caps how much of a page is read for a preview.
const maxBodyBytes = 2 << 20

// Request represents a simplified scrape request used by the scraper package.
type Request struct {
	URL       string
	Headers   map[string]string
	Timeout   time.Duration
	UserAgent string
}

// Result is what a preview needs from a fetched page.
type Result struct {
	URL         string
	Title       string
	Description string
	Markdown    string
	Language    string
}

// Scraper defines the interface for URL scrapers.
type Scraper interface {
	Scrape(ctx context.Context, req Request) (*Result, error)
}

// HTTPScraper is a basic implementation using net/http and goquery.
type HTTPScraper struct {
	client *http.Client
}

// NewHTTPScraper returns a scraper whose connections are restricted by
// allow. A nil filter means PublicOnly.
func NewHTTPScraper(timeout time.Duration, allow AddrFilter) *HTTPScraper {
	if allow == nil {
		allow = PublicOnly
	}
	return &HTTPScraper{
		client: newGuardedClient(timeout, allow),
	}
}

func (s *HTTPScraper) Scrape(ctx context.Context, req Request) (*Result, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", u.Redacted(), resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	return parsePage(u, bodyBytes)
}

// parsePage pulls the title, description and a markdown rendering of the
// body out of an HTML document.
func parsePage(u *url.URL, body []byte) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = doc.Find("meta[property='og:title']").AttrOr("content", "")
	}
	desc := doc.Find("meta[name=description]").AttrOr("content", "")
	if desc == "" {
		desc = doc.Find("meta[property='og:description']").AttrOr("content", "")
	}
	lang, _ := doc.Find("html").First().Attr("lang")

	doc.Find("script, style, noscript, nav, footer").Remove()
	bodySel := doc.Find("body").First()
	if bodySel.Length() == 0 {
		bodySel = doc.Selection
	}

	// First, attempt HTML -> Markdown conversion (CommonMark-enabled)
	markdown := ""
	if bodyHTML, err := bodySel.Html(); err == nil {
		converter := htmlmd.NewConverter(u.Hostname(), true, nil)
		markdown, err = converter.ConvertString(bodyHTML)
		if err != nil {
			markdown = ""
		}
	}
	if strings.TrimSpace(markdown) == "" {
		markdown = strings.TrimSpace(bodySel.Text())
	}

	return &Result{
		URL:         u.String(),
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(desc),
		Markdown:    strings.TrimSpace(markdown),
		Language:    strings.TrimSpace(lang),
	}, nil
}
