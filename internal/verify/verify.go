// Package verify runs one fact-check: it builds the prompt, makes a single
// completion call, and turns the reply into a VerificationResult.
package verify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"infosage/internal/config"
	"infosage/internal/extract"
	"infosage/internal/llm"
	"infosage/internal/metrics"
	"infosage/internal/model"
	"infosage/internal/prompt"
	"infosage/internal/scraper"
	"infosage/internal/textutil"
)

// ClientFactory builds the completion client for a request.
type ClientFactory func(cfg *config.Config) (llm.Client, llm.Provider, string, error)

// Previewer fetches a submitted link for extra prompt context.
type Previewer interface {
	Preview(ctx context.Context, rawURL string) (*prompt.Page, error)
}

// Fallback reasons.
const (
	FallbackParse  = "parse"
	FallbackSchema = "schema"
)

// Outcome is a finished verification plus what happened along the way.
type Outcome struct {
	Result   model.VerificationResult
	Provider llm.Provider
	Model    string
	// Fallback is empty when the model output was used, otherwise the
	// reason it was replaced.
	Fallback  string
	Corrected bool
	Previewed bool
}

// Service verifies content against the configured LLM provider.
type Service struct {
	cfg       *config.Config
	logger    *zap.Logger
	newClient ClientFactory
	previewer Previewer
	policy    extract.Policy
}

// Option customises a Service.
type Option func(*Service)

// WithClientFactory replaces llm.NewClientFromConfig.
func WithClientFactory(f ClientFactory) Option {
	return func(s *Service) { s.newClient = f }
}

// WithPreviewer sets the link previewer. A nil previewer disables previews.
func WithPreviewer(p Previewer) Option {
	return func(s *Service) { s.previewer = p }
}

// New builds a Service. When preview.enabled is set a LinkPreviewer is
// installed unless an option overrides it.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy, err := extract.ParsePolicy(cfg.Validation.VerdictPolicy)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		logger:    logger,
		newClient: llm.NewClientFromConfig,
		policy:    policy,
	}
	if cfg.Preview.Enabled {
		s.previewer = scraper.NewLinkPreviewer(cfg.Preview, nil)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Verify runs one verification. Errors are configuration problems,
// upstream failures, or an empty completion; malformed model output is
// never an error and yields the fallback result instead.
func (s *Service) Verify(ctx context.Context, req model.VerifyRequest) (*Outcome, error) {
	client, prov, modelName, err := s.newClient(s.cfg)
	out := &Outcome{Provider: prov, Model: modelName}
	if err != nil {
		s.logger.Error("llm client unavailable", zap.String("provider", string(prov)), zap.Error(err))
		metrics.RecordVerification(string(prov), modelName, metrics.OutcomeError)
		return out, err
	}

	s.logger.Info("verifying content",
		zap.String("type", string(req.Type)),
		zap.String("content", textutil.Truncate(req.Content, 100)),
	)

	var page *prompt.Page
	if req.Type == model.ContentLink && s.previewer != nil {
		page = s.preview(ctx, req.Content)
		out.Previewed = page != nil
	}

	text, err := client.Complete(ctx, llm.CompletionRequest{
		Messages:    prompt.Build(req.Content, req.Type, page),
		Temperature: s.cfg.LLM.SamplingTemperature(),
	})
	if err != nil {
		var upErr *llm.UpstreamError
		if errors.As(err, &upErr) {
			metrics.RecordUpstreamStatus(string(prov), upErr.StatusCode)
			s.logger.Error("AI Gateway error",
				zap.Int("status", upErr.StatusCode),
				zap.String("message", upErr.Message),
			)
		} else {
			s.logger.Error("completion failed", zap.Error(err))
		}
		metrics.RecordVerification(string(prov), modelName, metrics.OutcomeError)
		return out, fmt.Errorf("complete: %w", err)
	}

	s.logger.Debug("AI response", zap.String("content", textutil.Truncate(text, 500)))

	obj, err := extract.Parse(text)
	if err != nil {
		s.logger.Warn("failed to parse AI response, using fallback", zap.Error(err))
		return s.fallback(out, req.Content, FallbackParse), nil
	}

	v, err := extract.Validate(obj, s.policy)
	if err != nil {
		s.logger.Warn("AI response failed schema validation, using fallback", zap.Error(err))
		return s.fallback(out, req.Content, FallbackSchema), nil
	}

	if v.Corrected {
		s.logger.Warn("verdict contradicts accuracy, corrected",
			zap.String("model_verdict", string(v.ModelVerdict)),
			zap.String("verdict", string(v.Result.Verdict)),
			zap.Int("accuracy", v.Result.Accuracy),
		)
		metrics.RecordVerdictCorrection(string(v.ModelVerdict), string(v.Result.Verdict))
	}
	if v.Truncated {
		s.logger.Debug("claim truncated", zap.Int("max", model.MaxClaimLength))
	}

	out.Result = v.Result
	out.Corrected = v.Corrected
	metrics.RecordVerification(string(prov), modelName, metrics.OutcomeSuccess)
	return out, nil
}

func (s *Service) fallback(out *Outcome, content, reason string) *Outcome {
	metrics.RecordFallback(reason)
	metrics.RecordVerification(string(out.Provider), out.Model, metrics.OutcomeFallback)
	out.Result = extract.Fallback(content)
	out.Fallback = reason
	return out
}

func (s *Service) preview(ctx context.Context, rawURL string) *prompt.Page {
	page, err := s.previewer.Preview(ctx, rawURL)
	switch {
	case err == nil:
		metrics.RecordPreview("ok")
		return page
	case errors.Is(err, scraper.ErrBlockedByRobots):
		metrics.RecordPreview("blocked")
		s.logger.Info("link preview blocked by robots.txt", zap.String("url", rawURL))
	case errors.Is(err, scraper.ErrForbiddenAddress):
		metrics.RecordPreview("forbidden")
		s.logger.Warn("link preview refused non-public address", zap.String("url", rawURL), zap.Error(err))
	default:
		metrics.RecordPreview("failed")
		s.logger.Warn("link preview failed", zap.String("url", rawURL), zap.Error(err))
	}
	return nil
}
