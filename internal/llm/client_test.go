package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, provider string, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{Provider: provider, Endpoint: srv.URL, APIKey: "sk-test", Model: "m1", Temperature: DefaultTemperature})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestCall_ZeroTemperature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Temperature != 0 {
			t.Errorf("temperature = %v, want 0", req.Temperature)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{Provider: ProviderOpenRouter, Endpoint: srv.URL, APIKey: "sk-test", Model: "m1", Temperature: 0})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Call(context.Background(), "sys", "user"); err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestCall_ChatShape(t *testing.T) {
	c := newTestClient(t, ProviderOpenRouter, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get("HTTP-Referer") == "" || r.Header.Get("X-Title") != "deckdoctor" {
			t.Errorf("openrouter headers missing: %v", r.Header)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Model != "m1" || req.Temperature != 0.7 || req.MaxTokens != 4096 {
			t.Errorf("request = %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "user prompt" {
			t.Errorf("messages = %+v", req.Messages)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
	})

	got, err := c.Call(context.Background(), "sys", "user prompt")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestCall_SystemSeparatedShape(t *testing.T) {
	c := newTestClient(t, "Anthropic", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-test" || r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("headers = %v", r.Header)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("bearer auth must not be sent")
		}
		var raw map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&raw)
		if string(raw["system"]) != `"sys"` {
			t.Errorf("system = %s", raw["system"])
		}
		if _, ok := raw["temperature"]; ok {
			t.Error("temperature is not part of this shape")
		}
		var msgs []chatMessage
		_ = json.Unmarshal(raw["messages"], &msgs)
		if len(msgs) != 1 || msgs[0].Role != "user" {
			t.Errorf("messages = %+v", msgs)
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"part1 "},{"type":"text","text":"part2"}]}`))
	})

	got, err := c.Call(context.Background(), "sys", "u")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "part1 part2" {
		t.Errorf("got %q", got)
	}
}

func TestCall_NoKeyNoBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("no key configured, no auth header expected")
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()
	c, err := NewClient(Config{Provider: ProviderOllama, Endpoint: srv.URL, Model: "llama3"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Call(context.Background(), "s", "u"); err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestCall_ClassifiesFailure(t *testing.T) {
	c := newTestClient(t, ProviderOpenAI, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached, retry after 30 seconds"}}`))
	})
	_, err := c.Call(context.Background(), "s", "u")
	var le *Error
	if !errors.As(err, &le) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if le.Kind != KindRateLimit || le.RetryAfter != 30 || le.StatusCode != 429 {
		t.Errorf("error = %+v", le)
	}
	if !strings.Contains(le.Message, "Rate limit reached") {
		t.Errorf("message = %q", le.Message)
	}
}

func TestCall_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, _ := NewClient(Config{Provider: ProviderOpenAI, Endpoint: url, Model: "m"})
	_, err := c.Call(context.Background(), "s", "u")
	var le *Error
	if !errors.As(err, &le) || le.Kind != KindConnection {
		t.Fatalf("expected connection_error, got %v", err)
	}
}

func TestCall_EmptyChoices(t *testing.T) {
	c := newTestClient(t, ProviderOpenAI, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	if _, err := c.Call(context.Background(), "s", "u"); err == nil {
		t.Error("expected error for empty response")
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Config{Provider: "OpenAI", Model: "gpt"})
	if err != nil {
		t.Fatal(err)
	}
	if c.cfg.Endpoint != defaultEndpoints[ProviderOpenAI] || c.Provider() != ProviderOpenAI {
		t.Errorf("cfg = %+v", c.cfg)
	}
	if _, err := NewClient(Config{Provider: ProviderOpenAICompatible, Model: "x"}); err == nil {
		t.Error("openai-compatible without endpoint should fail")
	}
	if _, err := NewClient(Config{Provider: ProviderOpenAI}); err == nil {
		t.Error("missing model should fail")
	}
}
