package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"infosage/internal/config"
)

// Keys for values stored in fiber.Ctx locals.
const (
	localConfig      = "config"
	localVerifier    = "verifier"
	localLogger      = "logger"
	localRequestID   = "request_id"
	localLLMProvider = "llm_provider"
	localLLMModel    = "llm_model"
)

func requestLogger(c *fiber.Ctx) *zap.Logger {
	if l, ok := c.Locals(localLogger).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

func requestConfig(c *fiber.Ctx) *config.Config {
	cfg, _ := c.Locals(localConfig).(*config.Config)
	return cfg
}

func requestVerifier(c *fiber.Ctx) Verifier {
	v, _ := c.Locals(localVerifier).(Verifier)
	return v
}
