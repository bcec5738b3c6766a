// Package llm sends analysis prompts to a configured provider and classifies
// its failures.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Provider identities.
const (
	ProviderAnthropic        = "anthropic"
	ProviderOpenAI           = "openai"
	ProviderOpenRouter       = "openrouter"
	ProviderOllama           = "ollama"
	ProviderLMStudio         = "lmstudio"
	ProviderOpenAICompatible = "openai-compatible"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096
	DefaultTimeout     = 120 * time.Second

	anthropicVersion = "2023-06-01"
)

var defaultEndpoints = map[string]string{
	ProviderAnthropic:  "https://api.anthropic.com/v1/messages",
	ProviderOpenAI:     "https://api.openai.com/v1/chat/completions",
	ProviderOpenRouter: "https://openrouter.ai/api/v1/chat/completions",
	ProviderOllama:     "http://localhost:11434/v1/chat/completions",
	ProviderLMStudio:   "http://localhost:1234/v1/chat/completions",
}

// Providers lists the accepted provider identities.
func Providers() []string {
	return []string{ProviderAnthropic, ProviderOpenAI, ProviderOpenRouter, ProviderOllama, ProviderLMStudio, ProviderOpenAICompatible}
}

// DefaultEndpoint returns the stock endpoint for provider, or "".
func DefaultEndpoint(provider string) string {
	return defaultEndpoints[NormalizeProvider(provider)]
}

// NormalizeProvider lower-cases and canonicalises a provider name.
func NormalizeProvider(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.ReplaceAll(t, " ", "")
	if t == "openaicompatible" {
		return ProviderOpenAICompatible
	}
	return t
}

// Config describes one provider connection. Temperature is sent as given,
// zero included; NewDefaultConfig seeds it with DefaultTemperature.
type Config struct {
	Provider    string        `yaml:"provider"`
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	AppName     string        `yaml:"app_name"`
	AppURL      string        `yaml:"app_url"`
}

func (c Config) withDefaults() Config {
	c.Provider = NormalizeProvider(c.Provider)
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoints[c.Provider]
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.AppName == "" {
		c.AppName = "deckdoctor"
	}
	return c
}

// Caller is anything that can answer a system+user prompt pair.
type Caller interface {
	Call(ctx context.Context, system, user string) (string, error)
}

// Client calls one provider over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient builds a client for cfg.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("llm: provider %q needs an endpoint", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	c := &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Provider returns the normalised provider identity.
func (c *Client) Provider() string { return c.cfg.Provider }

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system"`
	Messages  []chatMessage `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Call sends one prompt and returns the provider's raw text. Failures are
// returned as *Error.
func (c *Client) Call(ctx context.Context, system, user string) (string, error) {
	var body any
	if c.cfg.Provider == ProviderAnthropic {
		body = messagesRequest{
			Model:     c.cfg.Model,
			MaxTokens: c.cfg.MaxTokens,
			System:    system,
			Messages:  []chatMessage{{Role: "user", Content: user}},
		}
	} else {
		body = chatRequest{
			Model: c.cfg.Model,
			Messages: []chatMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", connectionError(c.cfg.Provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", connectionError(c.cfg.Provider, err)
	}
	slog.Debug("llm call",
		slog.String("provider", c.cfg.Provider),
		slog.String("model", c.cfg.Model),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", Classify(c.cfg.Provider, resp.StatusCode, respBody, resp.Header)
	}

	return c.extractText(respBody)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Provider == ProviderAnthropic {
		req.Header.Set("x-api-key", c.cfg.APIKey)
		req.Header.Set("anthropic-version", anthropicVersion)
		return
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.Provider == ProviderOpenRouter {
		if c.cfg.AppURL != "" {
			req.Header.Set("HTTP-Referer", c.cfg.AppURL)
		} else {
			req.Header.Set("HTTP-Referer", "https://github.com/starford/deckdoctor")
		}
		req.Header.Set("X-Title", c.cfg.AppName)
	}
}

func (c *Client) extractText(body []byte) (string, error) {
	if c.cfg.Provider == ProviderAnthropic {
		var r messagesResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", c.badResponse("decode response: " + err.Error())
		}
		var sb strings.Builder
		for _, block := range r.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		if sb.Len() == 0 {
			return "", c.badResponse("empty response")
		}
		return sb.String(), nil
	}

	var r chatResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", c.badResponse("decode response: " + err.Error())
	}
	if len(r.Choices) == 0 || r.Choices[0].Message.Content == "" {
		return "", c.badResponse("empty response")
	}
	return r.Choices[0].Message.Content, nil
}

func (c *Client) badResponse(msg string) *Error {
	return &Error{Kind: KindUnknown, Provider: c.cfg.Provider, Message: msg, Suggestion: Suggestion(KindUnknown)}
}
