package scraper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	robotstxt "github.com/temoto/robotstxt"
)

// fetchRobots retrieves /robots.txt for the host of base.
func fetchRobots(ctx context.Context, client *http.Client, base *url.URL, userAgent string) (*robotstxt.RobotsData, error) {
	robotsURL := &url.URL{
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   "/robots.txt",
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("non-200 robots.txt")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil, err
	}

	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}

// robotsAllow reports whether userAgent may fetch u. A missing or
// unreadable robots.txt allows everything.
func robotsAllow(ctx context.Context, client *http.Client, u *url.URL, userAgent string) bool {
	data, err := fetchRobots(ctx, client, u, userAgent)
	if err != nil || data == nil {
		return true
	}
	return data.FindGroup(userAgent).Test(u.RequestURI())
}
