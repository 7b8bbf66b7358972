package http

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"infosage/internal/config"
	"infosage/internal/metrics"
	"infosage/internal/model"
)

// corsMiddleware sets the CORS headers on every response and answers
// OPTIONS with an empty 200 before any other handler runs.
func corsMiddleware(cfg config.CORSConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderAccessControlAllowOrigin, cfg.AllowOrigin)
		c.Set(fiber.HeaderAccessControlAllowHeaders, cfg.AllowHeaders)

		if c.Method() == fiber.MethodOptions {
			c.Set(fiber.HeaderAccessControlAllowMethods, "POST, GET, OPTIONS")
			// SendStatus would write "OK" as the body.
			c.Status(fiber.StatusOK)
			return nil
		}
		return c.Next()
	}
}

type rateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// windowCounter is the part of a Redis client the limiter uses.
type windowCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// redisLimiter is a per-minute fixed window shared across replicas.
type redisLimiter struct {
	rdb       windowCounter
	perMinute int
	now       func() time.Time
}

func newRedisLimiter(rdb windowCounter, perMinute int) *redisLimiter {
	return &redisLimiter{rdb: rdb, perMinute: perMinute, now: time.Now}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now().UTC()
	window := now.Format("200601021504") // YYYYMMDDHHMM minute window
	rk := fmt.Sprintf("infosage:rl:%s:%s", key, window)

	count, err := l.rdb.Incr(ctx, rk).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		// First hit in this window; set TTL
		_ = l.rdb.Expire(ctx, rk, time.Minute)
	}
	return count <= int64(l.perMinute), nil
}

// localLimiter keeps one token bucket per client in process memory. The
// bucket holds perMinute tokens and refills over a minute.
type localLimiter struct {
	mu        sync.Mutex
	perMinute int
	buckets   map[string]*localBucket
	now       func() time.Time
}

type localBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const localLimiterSweepAt = 10000

func newLocalLimiter(perMinute int) *localLimiter {
	return &localLimiter{
		perMinute: perMinute,
		buckets:   make(map[string]*localBucket),
		now:       time.Now,
	}
}

func (l *localLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= localLimiterSweepAt {
			l.sweep(now)
		}
		b = &localBucket{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1), nil
}

// sweep drops buckets idle for more than a minute; they would be full again.
func (l *localLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > time.Minute {
			delete(l.buckets, k)
		}
	}
}

// rateLimitMiddleware enforces the limiter per client IP. A nil limiter
// disables limiting.
func rateLimitMiddleware(l rateLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if l == nil {
			return c.Next()
		}

		ok, err := l.Allow(c.Context(), c.IP())
		if err != nil {
			// Fail open.
			requestLogger(c).Warn("rate limit check failed", zap.Error(err))
			return c.Next()
		}
		if !ok {
			metrics.RecordRateLimited()
			return c.Status(fiber.StatusTooManyRequests).JSON(model.ErrorResponse{
				Error: msgRateLimited,
			})
		}
		return c.Next()
	}
}
