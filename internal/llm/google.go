package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"infosage/internal/prompt"
)

// googleClient implements Client using the Gemini API.
type googleClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

func (c *googleClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	cc := &genai.ClientConfig{
		APIKey:     c.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.http,
	}
	if c.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return "", fmt.Errorf("google client init failed: %w", err)
	}

	system, rest := splitSystem(req.Messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.Role(genai.RoleUser)
		if m.Role != prompt.RoleUser {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	temperature := float32(req.Temperature)
	gc := &genai.GenerateContentConfig{Temperature: &temperature}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, contents, gc)
	if err != nil {
		return "", classifyGoogle(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoResponse
	}

	// Concatenate all parts' text.
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrNoResponse
	}
	return sb.String(), nil
}

func classifyGoogle(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return &UpstreamError{Provider: ProviderGoogle, StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr.Code != 0 {
		return &UpstreamError{Provider: ProviderGoogle, StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message, Err: err}
	}
	return fmt.Errorf("google generateContent failed: %w", err)
}
