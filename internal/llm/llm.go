package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"infosage/internal/config"
	"infosage/internal/prompt"
)

// Provider represents a logical LLM provider.
type Provider string

const (
	ProviderGateway   Provider = "gateway"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderAnthropic Provider = "anthropic"
)

var (
	// ErrNotConfigured is wrapped by every missing-credential error.
	ErrNotConfigured = errors.New("llm provider not configured")
	// ErrNoResponse means the upstream answered but carried no completion text.
	ErrNoResponse = errors.New("No response from AI")
)

// ConfigError reports a missing credential. It is returned before any
// network call is attempted.
type ConfigError struct {
	Name string
}

func (e *ConfigError) Error() string {
	return e.Name + " not configured"
}

func (e *ConfigError) Unwrap() error { return ErrNotConfigured }

// UpstreamError is a non-success HTTP status from the completion service.
type UpstreamError struct {
	Provider   Provider
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s upstream returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s upstream returned status %d", e.Provider, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// CompletionRequest carries one chat exchange.
type CompletionRequest struct {
	Messages    []prompt.Message
	Temperature float64
}

// Client is the abstraction used by the verification service. Complete
// performs exactly one upstream call and returns the text of the single
// completion.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// NewClientFromConfig constructs a Client for the configured provider. The
// credential is checked here, so callers that build a client per request
// observe a missing key before any network traffic.
func NewClientFromConfig(cfg *config.Config) (Client, Provider, string, error) {
	llmCfg := cfg.LLM
	prov := Provider(strings.ToLower(strings.TrimSpace(llmCfg.Provider)))
	if prov == "" {
		prov = ProviderGateway
	}
	model := llmCfg.Model

	var httpClient *http.Client
	if llmCfg.TimeoutMs > 0 {
		httpClient = &http.Client{Timeout: time.Duration(llmCfg.TimeoutMs) * time.Millisecond}
	}

	switch prov {
	case ProviderGateway, ProviderOpenAI:
		if llmCfg.APIKey == "" {
			return nil, prov, model, &ConfigError{Name: llmCfg.APIKeyEnv}
		}
		return newGatewayClient(prov, llmCfg.APIKey, llmCfg.BaseURL, model, httpClient), prov, model, nil
	case ProviderGoogle:
		if llmCfg.Google.APIKey == "" {
			return nil, prov, model, &ConfigError{Name: "GEMINI_API_KEY"}
		}
		model = strings.TrimPrefix(model, "google/")
		return &googleClient{
			apiKey:  llmCfg.Google.APIKey,
			baseURL: llmCfg.Google.BaseURL,
			model:   model,
			http:    httpClient,
		}, prov, model, nil
	case ProviderAnthropic:
		if llmCfg.Anthropic.APIKey == "" {
			return nil, prov, model, &ConfigError{Name: "ANTHROPIC_API_KEY"}
		}
		model = strings.TrimPrefix(model, "anthropic/")
		if httpClient == nil {
			httpClient = &http.Client{}
		}
		return &anthropicClient{
			apiKey:    llmCfg.Anthropic.APIKey,
			baseURL:   llmCfg.Anthropic.BaseURL,
			model:     model,
			maxTokens: llmCfg.Anthropic.MaxTokens,
			http:      httpClient,
		}, prov, model, nil
	default:
		return nil, prov, model, fmt.Errorf("unsupported llm provider: %s", llmCfg.Provider)
	}
}

// splitSystem separates system messages (joined) from the rest, for
// providers that take the instruction out of band.
func splitSystem(msgs []prompt.Message) (string, []prompt.Message) {
	var system []string
	rest := make([]prompt.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == prompt.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
