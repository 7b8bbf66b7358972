package http

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"infosage/internal/config"
	"infosage/internal/metrics"
	"infosage/internal/model"
	"infosage/internal/verify"
)

// Verifier runs one verification.
type Verifier interface {
	Verify(ctx context.Context, req model.VerifyRequest) (*verify.Outcome, error)
}

type Server struct {
	app    *fiber.App
	config *config.Config
	logger *zap.Logger
	rdb    *redis.Client
}

func NewServer(cfg *config.Config, svc Verifier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             cfg.Upload.MaxBytes + 1<<20,
		ErrorHandler:          errorHandler,
	})

	// CORS runs first so OPTIONS never reaches anything else.
	app.Use(corsMiddleware(cfg.CORS))

	app.Use(func(c *fiber.Ctx) error {
		c.Locals(localConfig, cfg)
		c.Locals(localVerifier, svc)
		return c.Next()
	})

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		// Ensure a request ID exists
		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals(localRequestID, reqID)
		c.Locals(localLogger, logger.With(zap.String("request_id", reqID)))
		c.Set("X-Request-Id", reqID)

		err := c.Next()
		if err != nil {
			// Let the error handler write the response so the status is final.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
			err = nil
		}

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.Path()

		// Label by route pattern; raw paths are unbounded.
		metrics.RecordRequest(method, c.Route().Path, status, latency.Milliseconds())

		fields := []zap.Field{
			zap.String("request_id", reqID),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Int64("latency_ms", latency.Milliseconds()),
		}
		if provVal, ok := c.Locals(localLLMProvider).(string); ok && provVal != "" {
			fields = append(fields, zap.String("llm_provider", provVal))
		}
		if modelVal, ok := c.Locals(localLLMModel).(string); ok && modelVal != "" {
			fields = append(fields, zap.String("llm_model", modelVal))
		}
		logger.Info("request", fields...)

		return err
	})

	// Redis client for rate limiting and health checks
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		if opt, err := redis.ParseURL(cfg.Redis.URL); err == nil {
			rdb = redis.NewClient(opt)
		} else {
			logger.Warn("invalid redis url, falling back to in-process rate limiting", zap.Error(err))
		}
	}

	// Health endpoints
	app.Get("/healthz", func(c *fiber.Ctx) error {
		// Shallow health: process is up
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		redisStatus := "disabled"
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		previewStatus := "disabled"
		if cfg.Preview.Enabled {
			previewStatus = "http"
			if cfg.Preview.UseBrowser {
				previewStatus = "browser"
			}
		}

		status := "ok"
		if redisStatus == "error" {
			status = "error"
		}

		return c.JSON(fiber.Map{
			"status":        status,
			"redis":         redisStatus,
			"llmProvider":   cfg.LLM.Provider,
			"llmConfigured": cfg.LLM.HasCredential(),
			"preview":       previewStatus,
		})
	})

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	var limiter rateLimiter
	switch {
	case cfg.RateLimit.PerMinute <= 0:
	case rdb != nil:
		limiter = newRedisLimiter(rdb, cfg.RateLimit.PerMinute)
	default:
		limiter = newLocalLimiter(cfg.RateLimit.PerMinute)
	}
	rateMw := rateLimitMiddleware(limiter)

	registerVerifyRoutes(app, rateMw)
	if err := registerWebUIRoutes(app); err != nil {
		logger.Warn("web UI not available", zap.Error(err))
	}

	return &Server{
		app:    app,
		config: cfg,
		logger: logger,
		rdb:    rdb,
	}
}

// App exposes the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.Info("listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	return err
}

func registerVerifyRoutes(app *fiber.App, rateMw fiber.Handler) {
	app.Post("/v1/verify", rateMw, verifyHandler)
	app.Post("/v1/verify/file", rateMw, verifyFileHandler)
	// Path used by existing browser clients.
	app.Post("/functions/v1/verify-content", rateMw, verifyHandler)
}
