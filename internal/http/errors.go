package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"infosage/internal/formats"
	"infosage/internal/llm"
	"infosage/internal/model"
)

const (
	msgRateLimited      = "Rate limit exceeded. Please try again shortly."
	msgCreditsExhausted = "AI credits exhausted. Please add credits to continue."
	msgDetails          = "Please try again or contact support if the issue persists."
)

// errorStatus maps a verification error to the response status and body.
func errorStatus(err error) (int, model.ErrorResponse) {
	var upErr *llm.UpstreamError
	var cfgErr *llm.ConfigError

	switch {
	case errors.As(err, &upErr) && upErr.StatusCode == http.StatusTooManyRequests:
		return fiber.StatusTooManyRequests, model.ErrorResponse{Error: msgRateLimited}
	case errors.As(err, &upErr) && upErr.StatusCode == http.StatusPaymentRequired:
		return fiber.StatusPaymentRequired, model.ErrorResponse{Error: msgCreditsExhausted}
	case errors.As(err, &upErr):
		return fiber.StatusInternalServerError, model.ErrorResponse{
			Error:   fmt.Sprintf("AI Gateway error: %d", upErr.StatusCode),
			Details: msgDetails,
		}
	case errors.As(err, &cfgErr):
		return fiber.StatusInternalServerError, model.ErrorResponse{Error: cfgErr.Error(), Details: msgDetails}
	case errors.Is(err, llm.ErrNoResponse):
		return fiber.StatusInternalServerError, model.ErrorResponse{Error: llm.ErrNoResponse.Error(), Details: msgDetails}
	case errors.Is(err, formats.ErrTooLarge):
		return fiber.StatusRequestEntityTooLarge, model.ErrorResponse{Error: "File too large"}
	default:
		msg := "Unknown error"
		if err != nil {
			msg = err.Error()
		}
		return fiber.StatusInternalServerError, model.ErrorResponse{Error: msg, Details: msgDetails}
	}
}

// errorHandler renders errors that escape handlers with the same envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(model.ErrorResponse{Error: fe.Message})
	}
	status, body := errorStatus(err)
	return c.Status(status).JSON(body)
}
