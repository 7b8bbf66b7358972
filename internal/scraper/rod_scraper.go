package scraper

import (
	"context"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// RodScraper uses a real browser (via rod) to render JS-heavy pages
// before extracting the title, description and markdown. Every request
// the page makes, subresources and redirects included, is checked
// against Allow.
type RodScraper struct {
	BrowserURL string
	Timeout    time.Duration
	Allow      AddrFilter
}

func NewRodScraper(browserURL string, timeout time.Duration, allow AddrFilter) *RodScraper {
	if allow == nil {
		allow = PublicOnly
	}
	return &RodScraper{BrowserURL: browserURL, Timeout: timeout, Allow: allow}
}

func (r *RodScraper) Scrape(ctx context.Context, req Request) (*Result, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}

	browser := rod.New().Context(ctx).Timeout(r.Timeout)
	if r.BrowserURL != "" {
		browser = browser.ControlURL(r.BrowserURL)
	}

	if err := browser.Connect(); err != nil {
		return nil, err
	}
	defer browser.MustClose()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	defer page.MustClose()

	router := page.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		if err := checkHost(ctx, h.Request.URL(), r.Allow); err != nil {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return nil, err
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	if req.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: req.UserAgent}); err != nil {
			return nil, err
		}
	}
	if err := page.Navigate(u.String()); err != nil {
		return nil, err
	}
	if err := page.WaitLoad(); err != nil {
		return nil, err
	}

	htmlStr, err := page.HTML()
	if err != nil {
		return nil, err
	}

	if len(htmlStr) > maxBodyBytes {
		htmlStr = htmlStr[:maxBodyBytes]
	}
	return parsePage(u, []byte(htmlStr))
}
