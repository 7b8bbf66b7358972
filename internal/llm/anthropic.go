package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"infosage/internal/prompt"
)

const anthropicDefaultBaseURL = "https://api.anthropic.com/v1"

// anthropicClient implements Client using Anthropic's Messages API.
type anthropicClient struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	http      *http.Client
}

// anthropicMessagesRequest & response are minimal shapes for Anthropic's Messages API.
type anthropicMessagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string                 `json:"role"`
	Content []anthropicTextContent `json:"content"`
}

type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessagesResponse struct {
	Content []anthropicTextContent `json:"content"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *anthropicClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	system, rest := splitSystem(req.Messages)

	body := anthropicMessagesRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      system,
		Temperature: req.Temperature,
	}
	for _, m := range rest {
		role := "user"
		if m.Role != prompt.RoleUser {
			role = "assistant"
		}
		body.Messages = append(body.Messages, anthropicMessage{
			Role:    role,
			Content: []anthropicTextContent{{Type: "text", Text: m.Content}},
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	base := strings.TrimRight(c.baseURL, "/")
	if base == "" {
		base = anthropicDefaultBaseURL
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic messages request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var apiErr anthropicErrorResponse
		_ = json.Unmarshal(raw, &apiErr)
		return "", &UpstreamError{
			Provider:   ProviderAnthropic,
			StatusCode: resp.StatusCode,
			Message:    apiErr.Error.Message,
		}
	}

	var parsed anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	var sb strings.Builder
	for _, part := range parsed.Content {
		if part.Type == "" || part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrNoResponse
	}
	return sb.String(), nil
}
