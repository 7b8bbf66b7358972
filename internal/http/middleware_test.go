package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"infosage/internal/config"
)

func TestCORSMiddleware_SetsHeadersOnEveryResponse(t *testing.T) {
	app := fiber.New()
	app.Use(corsMiddleware(config.CORSConfig{AllowOrigin: "*", AllowHeaders: "content-type"}))
	app.Get("/boom", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusInternalServerError).SendString("boom")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS origin header on error response")
	}
	if resp.Header.Get("Access-Control-Allow-Headers") != "content-type" {
		t.Fatalf("expected CORS allow headers on error response")
	}
}

func TestCORSMiddleware_OptionsEmptyBody(t *testing.T) {
	app := fiber.New()
	app.Use(corsMiddleware(config.CORSConfig{AllowOrigin: "*", AllowHeaders: "content-type"}))
	app.Post("/v1/verify", func(c *fiber.Ctx) error {
		t.Errorf("handler must not run for OPTIONS")
		return nil
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodOptions, "/v1/verify", nil), -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(raw) != 0 {
		t.Fatalf("expected empty body, got %q", raw)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS origin header on preflight")
	}
}

func TestLocalLimiter_RejectsAfterLimit(t *testing.T) {
	l := newLocalLimiter(3)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(context.Background(), "10.0.0.1")
		if err != nil || !ok {
			t.Fatalf("request %d: expected allowed, got ok=%v err=%v", i+1, ok, err)
		}
	}
	if ok, _ := l.Allow(context.Background(), "10.0.0.1"); ok {
		t.Fatalf("expected fourth request to be rejected")
	}
	if ok, _ := l.Allow(context.Background(), "10.0.0.2"); !ok {
		t.Fatalf("expected other client to be allowed")
	}

	now = now.Add(time.Minute)
	if ok, _ := l.Allow(context.Background(), "10.0.0.1"); !ok {
		t.Fatalf("expected request to be allowed after the window refilled")
	}
}

type errLimiter struct{}

func (errLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimitMiddleware(t *testing.T) {
	app := fiber.New()
	app.Post("/limited", rateLimitMiddleware(newLocalLimiter(1)), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Post("/failopen", rateLimitMiddleware(errLimiter{}), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Post("/off", rateLimitMiddleware(nil), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/limited", nil), -1)
		if err != nil {
			t.Fatalf("app.Test error: %v", err)
		}
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected [200 429], got %v", codes)
	}

	for _, path := range []string{"/failopen", "/off"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, path, nil), -1)
		if err != nil {
			t.Fatalf("app.Test error: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestServer_RateLimitUsesUpstreamMessage(t *testing.T) {
	gw := newFakeGateway(t)
	gw.reply(moonObject)
	s := newTestServer(t, gw.srv.URL, func(cfg *config.Config) { cfg.RateLimit.PerMinute = 1 })

	resp, _ := postJSON(t, s, "/v1/verify", `{"content":"x","type":"text"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", resp.StatusCode)
	}
	resp, raw := postJSON(t, s, "/v1/verify", `{"content":"x","type":"text"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if got := decodeMap(t, raw)["error"]; got != msgRateLimited {
		t.Fatalf("unexpected error %v", got)
	}
	if n := gw.hits.Load(); n != 1 {
		t.Fatalf("expected one upstream call, got %d", n)
	}
}

// fakeCounter records INCR and EXPIRE calls the way Redis would answer them.
type fakeCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string][]time.Duration
	err     error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, expires: map[string][]time.Duration{}}
}

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(_ context.Context, key string, d time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = append(f.expires[key], d)
	return redis.NewBoolResult(true, nil)
}

func TestRedisLimiter_FixedMinuteWindow(t *testing.T) {
	rdb := newFakeCounter()
	l := newRedisLimiter(rdb, 2)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return now }

	want := []bool{true, true, false}
	for i, w := range want {
		ok, err := l.Allow(context.Background(), "10.0.0.1")
		if err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
		if ok != w {
			t.Fatalf("request %d: expected allowed=%v, got %v", i+1, w, ok)
		}
	}

	const key = "infosage:rl:10.0.0.1:202601020304"
	if got := rdb.counts[key]; got != 3 {
		t.Fatalf("expected 3 hits on %s, got %d (keys %v)", key, got, rdb.counts)
	}
	if got := rdb.expires[key]; len(got) != 1 || got[0] != time.Minute {
		t.Fatalf("expected a single one-minute TTL on first hit, got %v", got)
	}

	now = now.Add(time.Minute)
	if ok, _ := l.Allow(context.Background(), "10.0.0.1"); !ok {
		t.Fatalf("expected a new window to allow the request")
	}
	if _, ok := rdb.counts["infosage:rl:10.0.0.1:202601020305"]; !ok {
		t.Fatalf("expected next-minute key, got %v", rdb.counts)
	}
}

func TestRedisLimiter_ErrorFailsOpen(t *testing.T) {
	rdb := newFakeCounter()
	rdb.err = errors.New("connection refused")
	l := newRedisLimiter(rdb, 1)

	if _, err := l.Allow(context.Background(), "10.0.0.1"); err == nil {
		t.Fatalf("expected Allow to surface the redis error")
	}

	app := fiber.New()
	app.Post("/v1/verify", rateLimitMiddleware(l), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/v1/verify", nil), -1)
		if err != nil {
			t.Fatalf("app.Test error: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected fail-open 200, got %d", i+1, resp.StatusCode)
		}
	}
}

func TestServer_UnreachableRedisFailsOpen(t *testing.T) {
	gw := newFakeGateway(t)
	gw.reply(moonObject)
	s := newTestServer(t, gw.srv.URL, func(cfg *config.Config) {
		cfg.Redis.URL = "redis://127.0.0.1:1/0?max_retries=-1&dial_timeout=200ms"
		cfg.RateLimit.PerMinute = 1
	})
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	for i := 0; i < 2; i++ {
		resp, _ := postJSON(t, s, "/v1/verify", `{"content":"x","type":"text"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200 with redis down, got %d", i+1, resp.StatusCode)
		}
	}

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/healthz?deep=true", nil), -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	if got := decodeMap(t, raw)["redis"]; got != "error" {
		t.Fatalf("expected redis error in deep health, got %v", got)
	}
}
