package http

import (
	"encoding/json"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"infosage/internal/formats"
	"infosage/internal/model"
)

// verifyHandler handles POST /v1/verify.
func verifyHandler(c *fiber.Ctx) error {
	var req model.VerifyRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		requestLogger(c).Error("invalid request body", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(model.ErrorResponse{
			Error:   err.Error(),
			Details: msgDetails,
		})
	}
	return runVerify(c, req)
}

// verifyFileHandler handles POST /v1/verify/file with a multipart "file"
// field.
func verifyFileHandler(c *fiber.Ctx) error {
	cfg := requestConfig(c)

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(model.ErrorResponse{
			Error: "Multipart field \"file\" is required",
		})
	}
	if fh.Size > int64(cfg.Upload.MaxBytes) {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(model.ErrorResponse{
			Error: "File too large",
		})
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, int64(cfg.Upload.MaxBytes)+1))
	if err != nil {
		return err
	}

	up, err := formats.Intake(fh.Filename, data, cfg.Upload.MaxBytes, cfg.Upload.MaxTextChars)
	if err != nil {
		return err
	}
	requestLogger(c).Debug("upload received",
		zap.String("name", up.Name),
		zap.String("mime", up.MIME),
		zap.String("kind", string(up.Kind)),
	)

	return runVerify(c, model.VerifyRequest{Content: up.Content(), Type: model.ContentFile})
}

func runVerify(c *fiber.Ctx, req model.VerifyRequest) error {
	out, err := requestVerifier(c).Verify(c.Context(), req)
	if out != nil {
		c.Locals(localLLMProvider, string(out.Provider))
		c.Locals(localLLMModel, out.Model)
	}
	if err != nil {
		status, body := errorStatus(err)
		requestLogger(c).Error("verification failed", zap.Int("status", status), zap.Error(err))
		return c.Status(status).JSON(body)
	}
	return c.JSON(out.Result)
}
