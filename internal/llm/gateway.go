package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// gatewayClient implements Client against an OpenAI-compatible Chat
// Completions endpoint such as the Lovable AI gateway.
type gatewayClient struct {
	provider Provider
	client   *openai.Client
	model    string
}

func newGatewayClient(prov Provider, apiKey, baseURL, model string, httpClient *http.Client) *gatewayClient {
	oc := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		oc.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}
	return &gatewayClient{
		provider: prov,
		client:   openai.NewClientWithConfig(oc),
		model:    model,
	}
}

func (c *gatewayClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", c.classify(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrNoResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// classify turns go-openai's error types into UpstreamError so the HTTP
// layer can map the upstream status code.
func (c *gatewayClient) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &UpstreamError{
			Provider:   c.provider,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &UpstreamError{
			Provider:   c.provider,
			StatusCode: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}

	return fmt.Errorf("%s chat completion failed: %w", c.provider, err)
}
