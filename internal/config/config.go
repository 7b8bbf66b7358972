package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIKeyEnv   = "LOVABLE_API_KEY"
	DefaultGatewayURL  = "https://ai.gateway.lovable.dev/v1"
	DefaultModel       = "google/gemini-2.5-flash"
	DefaultTemperature = 0.7
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"perMinute"`
}

type CORSConfig struct {
	AllowOrigin  string `yaml:"allowOrigin"`
	AllowHeaders string `yaml:"allowHeaders"`
}

type GoogleLLMConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
}

type AnthropicConfig struct {
	APIKey    string `yaml:"apiKey"`
	BaseURL   string `yaml:"baseURL"`
	MaxTokens int    `yaml:"maxTokens"`
}

// LLMConfig describes the upstream completion service. The default
// provider is an OpenAI-compatible gateway; google and anthropic talk to
// the vendor APIs directly.
type LLMConfig struct {
	Provider    string          `yaml:"provider"`
	APIKey      string          `yaml:"apiKey"`
	APIKeyEnv   string          `yaml:"apiKeyEnv"`
	BaseURL     string          `yaml:"baseURL"`
	Model       string          `yaml:"model"`
	Temperature *float64        `yaml:"temperature"`
	TimeoutMs   int             `yaml:"timeoutMs"`
	Google      GoogleLLMConfig `yaml:"google"`
	Anthropic   AnthropicConfig `yaml:"anthropic"`
}

// PreviewConfig controls fetching of submitted links so the model sees
// the page title and an excerpt alongside the URL.
type PreviewConfig struct {
	Enabled        bool   `yaml:"enabled"`
	TimeoutMs      int    `yaml:"timeoutMs"`
	UserAgent      string `yaml:"userAgent"`
	AcceptLanguage string `yaml:"acceptLanguage"`
	MaxChars       int    `yaml:"maxChars"`
	RespectRobots  bool   `yaml:"respectRobots"`
	UseBrowser     bool   `yaml:"useBrowser"`
	BrowserURL     string `yaml:"browserURL"`
}

type UploadConfig struct {
	MaxBytes     int `yaml:"maxBytes"`
	MaxTextChars int `yaml:"maxTextChars"`
}

// ValidationConfig controls how model output is checked before it is
// returned. VerdictPolicy is one of correct, reject or passthrough.
type ValidationConfig struct {
	VerdictPolicy string `yaml:"verdictPolicy"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Redis      RedisConfig      `yaml:"redis"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
	CORS       CORSConfig       `yaml:"cors"`
	LLM        LLMConfig        `yaml:"llm"`
	Preview    PreviewConfig    `yaml:"preview"`
	Upload     UploadConfig     `yaml:"upload"`
	Validation ValidationConfig `yaml:"validation"`
}

// Load reads the YAML config at path, loads a .env file from the working
// directory if one exists, and applies environment overrides and defaults.
// An empty path skips the file and yields a config built from defaults and
// the environment alone. A missing LLM credential is not an error here; it
// is reported per request.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyEnv resolves values that may come from the process environment.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("INFOSAGE_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("INFOSAGE_REDIS_URL")); v != "" {
		c.Redis.URL = v
	}

	keyEnv := c.LLM.APIKeyEnv
	if keyEnv == "" {
		keyEnv = DefaultAPIKeyEnv
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv(keyEnv)
	}
	if c.LLM.Google.APIKey == "" {
		c.LLM.Google.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.LLM.Anthropic.APIKey == "" {
		c.LLM.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// ApplyDefaults fills zero values with the service defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.CORS.AllowOrigin == "" {
		c.CORS.AllowOrigin = "*"
	}
	if c.CORS.AllowHeaders == "" {
		c.CORS.AllowHeaders = "authorization, x-client-info, apikey, content-type"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "gateway"
	}
	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = DefaultGatewayURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModel
	}
	if c.LLM.Temperature == nil {
		t := DefaultTemperature
		c.LLM.Temperature = &t
	}
	if c.LLM.Anthropic.MaxTokens <= 0 {
		c.LLM.Anthropic.MaxTokens = 1024
	}

	if c.Preview.TimeoutMs <= 0 {
		c.Preview.TimeoutMs = 8000
	}
	if c.Preview.UserAgent == "" {
		c.Preview.UserAgent = "InfoSageBot/1.0"
	}
	if c.Preview.AcceptLanguage == "" {
		c.Preview.AcceptLanguage = "en"
	}
	if c.Preview.MaxChars <= 0 {
		c.Preview.MaxChars = 2000
	}

	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = 10 << 20
	}
	if c.Upload.MaxTextChars <= 0 {
		c.Upload.MaxTextChars = 4000
	}

	if c.Validation.VerdictPolicy == "" {
		c.Validation.VerdictPolicy = "correct"
	}
}

// SamplingTemperature returns the configured temperature or the default.
func (c LLMConfig) SamplingTemperature() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// CredentialEnv names the environment variable the active provider reads
// its credential from.
func (c LLMConfig) CredentialEnv() string {
	switch c.Provider {
	case "google":
		return "GEMINI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	default:
		return c.APIKeyEnv
	}
}

// HasCredential reports whether the active provider has a credential.
func (c LLMConfig) HasCredential() bool {
	switch c.Provider {
	case "google":
		return c.Google.APIKey != ""
	case "anthropic":
		return c.Anthropic.APIKey != ""
	default:
		return c.APIKey != ""
	}
}
