package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infosage/internal/config"
	"infosage/internal/model"
	"infosage/internal/prompt"
)

func testConfig(baseURL string) *config.Config {
	cfg := &config.Config{}
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.BaseURL = baseURL
	cfg.ApplyDefaults()
	return cfg
}

func completionRequest() CompletionRequest {
	return CompletionRequest{
		Messages:    prompt.Build("The moon is made of cheese", model.ContentText, nil),
		Temperature: 0.7,
	}
}

func TestNewClientFromConfig_MissingCredential(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.LLM.APIKey = ""

	_, prov, _, err := NewClientFromConfig(cfg)
	require.Error(t, err)
	assert.Equal(t, ProviderGateway, prov)
	assert.True(t, errors.Is(err, ErrNotConfigured))
	assert.Equal(t, "LOVABLE_API_KEY not configured", err.Error())
}

func TestNewClientFromConfig_UnknownProvider(t *testing.T) {
	cfg := testConfig("")
	cfg.LLM.Provider = "carrier-pigeon"

	_, _, _, err := NewClientFromConfig(cfg)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotConfigured))
}

func TestNewClientFromConfig_GoogleStripsModelPrefix(t *testing.T) {
	cfg := testConfig("")
	cfg.LLM.Provider = "google"
	cfg.LLM.Google.APIKey = "g-key"

	_, prov, model, err := NewClientFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, prov)
	assert.Equal(t, "gemini-2.5-flash", model)
}

func TestGatewayClient_SendsMessagesAndReturnsContent(t *testing.T) {
	var captured struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	client, _, _, err := NewClientFromConfig(testConfig(srv.URL))
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), completionRequest())
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, config.DefaultModel, captured.Model)
	assert.InDelta(t, 0.7, captured.Temperature, 1e-6)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, prompt.System, captured.Messages[0].Content)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, "Verify this text: The moon is made of cheese", captured.Messages[1].Content)
}

func TestGatewayClient_StatusCodes(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusPaymentRequired, http.StatusServiceUnavailable} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream says no","type":"error"}}`))
		}))

		client, _, _, err := NewClientFromConfig(testConfig(srv.URL))
		require.NoError(t, err)

		_, err = client.Complete(context.Background(), completionRequest())
		srv.Close()

		var upErr *UpstreamError
		require.True(t, errors.As(err, &upErr), "status %d: expected UpstreamError, got %v", status, err)
		assert.Equal(t, status, upErr.StatusCode)
	}
}

func TestGatewayClient_NonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	client, _, _, err := NewClientFromConfig(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), completionRequest())
	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusTooManyRequests, upErr.StatusCode)
}

func TestGatewayClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client, _, _, err := NewClientFromConfig(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), completionRequest())
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestAnthropicClient_Complete(t *testing.T) {
	var calls atomic.Int32
	var captured anthropicMessagesRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "a-key", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"claim\":\"x\"}"}]}`))
	}))
	defer srv.Close()

	cfg := testConfig("")
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Model = "claude-test"
	cfg.LLM.Anthropic.APIKey = "a-key"
	cfg.LLM.Anthropic.BaseURL = srv.URL

	client, _, _, err := NewClientFromConfig(cfg)
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), completionRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"claim":"x"}`, out)
	assert.EqualValues(t, 1, calls.Load())

	assert.Equal(t, prompt.System, captured.System)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestAnthropicClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"busy"}}`))
	}))
	defer srv.Close()

	cfg := testConfig("")
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Anthropic.APIKey = "a-key"
	cfg.LLM.Anthropic.BaseURL = srv.URL

	client, _, _, err := NewClientFromConfig(cfg)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), completionRequest())
	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusTooManyRequests, upErr.StatusCode)
	assert.Equal(t, "busy", upErr.Message)
}

func googleConfig(baseURL string) *config.Config {
	cfg := testConfig("")
	cfg.LLM.Provider = "google"
	cfg.LLM.Google.APIKey = "g-key"
	cfg.LLM.Google.BaseURL = baseURL
	return cfg
}

func TestGoogleClient_Complete(t *testing.T) {
	var calls atomic.Int32
	var path, apiKey, body string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		path = r.URL.Path
		apiKey = r.Header.Get("x-goog-api-key")
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"claim\":"},{"text":"\"x\"}"}]}}]}`))
	}))
	defer srv.Close()

	client, _, _, err := NewClientFromConfig(googleConfig(srv.URL))
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), completionRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"claim":"x"}`, out)
	assert.EqualValues(t, 1, calls.Load())

	assert.True(t, strings.HasSuffix(path, "/models/gemini-2.5-flash:generateContent"), path)
	assert.Equal(t, "g-key", apiKey)
	assert.Contains(t, body, "InfoSage AI")
	assert.Contains(t, body, "Verify this text: The moon is made of cheese")
}

func TestGoogleClient_StatusCodes(t *testing.T) {
	cases := map[int]string{
		http.StatusTooManyRequests:    "RESOURCE_EXHAUSTED",
		http.StatusPaymentRequired:    "PAYMENT_REQUIRED",
		http.StatusServiceUnavailable: "UNAVAILABLE",
	}
	for status, code := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"code":` + strconv.Itoa(status) + `,"message":"quota","status":"` + code + `"}}`))
		}))

		client, _, _, err := NewClientFromConfig(googleConfig(srv.URL))
		require.NoError(t, err)

		_, err = client.Complete(context.Background(), completionRequest())
		srv.Close()

		var upErr *UpstreamError
		require.True(t, errors.As(err, &upErr), "status %d: expected UpstreamError, got %v", status, err)
		assert.Equal(t, status, upErr.StatusCode)
		assert.Equal(t, ProviderGoogle, upErr.Provider)
		assert.Equal(t, "quota", upErr.Message)
	}
}

func TestGoogleClient_PlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	client, _, _, err := NewClientFromConfig(googleConfig(srv.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), completionRequest())
	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr), "expected UpstreamError, got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, upErr.StatusCode)
}

func TestGoogleClient_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	client, _, _, err := NewClientFromConfig(googleConfig(srv.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), completionRequest())
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem(prompt.Build("c", model.ContentText, nil))
	assert.Equal(t, prompt.System, system)
	require.Len(t, rest, 1)
	assert.Equal(t, prompt.RoleUser, rest[0].Role)
}
