package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindRateLimit     ErrorKind = "rate_limit"
	KindAuth          ErrorKind = "auth_error"
	KindConnection    ErrorKind = "connection_error"
	KindModelNotFound ErrorKind = "model_not_found"
	KindContextLength ErrorKind = "context_length_exceeded"
	KindServer        ErrorKind = "server_error"
	KindUnknown       ErrorKind = "unknown"
)

var suggestions = map[ErrorKind]string{
	KindRateLimit:     "The provider is rate limiting requests. Wait before retrying, increase the request delay, or disable concurrent analysis.",
	KindAuth:          "Check that the API key is set and valid for this provider.",
	KindConnection:    "Could not reach the provider. Check the endpoint URL and that the service is running.",
	KindModelNotFound: "The configured model is not available. Check the model name for this provider.",
	KindContextLength: "The card content is too long for this model. Disable image descriptions or choose a model with a larger context.",
	KindServer:        "The provider returned a server error. Try again later.",
	KindUnknown:       "An unexpected error occurred. Check the provider response for details.",
}

// Suggestion returns the canned advice for kind.
func Suggestion(kind ErrorKind) string {
	if s, ok := suggestions[kind]; ok {
		return s
	}
	return suggestions[KindUnknown]
}

// Error is a classified provider failure. Message carries the provider's
// own wording.
type Error struct {
	Kind       ErrorKind `json:"kind"`
	Provider   string    `json:"provider"`
	StatusCode int       `json:"statusCode,omitempty"`
	RetryAfter int       `json:"retryAfter,omitempty"` // seconds
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion"`
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: %s %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm: %s %s: %s", e.Provider, e.Kind, e.Message)
}

var retryAfterRe = regexp.MustCompile(`(?i)(?:retry[ -]?after|try again in)\D{0,3}(\d+(?:\.\d+)?)`)

const maxMessageLen = 500

// Classify maps a non-success response to an *Error by status code and
// wording. header may be nil.
func Classify(provider string, status int, body []byte, header http.Header) *Error {
	msg := errorMessage(body)
	lower := strings.ToLower(string(body))
	e := &Error{Provider: provider, StatusCode: status, Message: msg}

	switch {
	case status == http.StatusTooManyRequests || containsAny(lower, "rate limit", "rate_limit", "too many requests", "quota exceeded"):
		e.Kind = KindRateLimit
		e.RetryAfter = retryAfter(string(body), header)
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		containsAny(lower, "api key", "api_key", "unauthorized", "authentication", "permission"):
		e.Kind = KindAuth
	case status == http.StatusNotFound || containsAny(lower, "model not found", "model_not_found", "does not exist"):
		e.Kind = KindModelNotFound
	case containsAny(lower, "context length", "context_length", "maximum context", "too many tokens", "token limit"):
		e.Kind = KindContextLength
	case status >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindUnknown
	}
	e.Suggestion = Suggestion(e.Kind)
	return e
}

// connectionError wraps a transport failure.
func connectionError(provider string, err error) *Error {
	return &Error{
		Kind:       KindConnection,
		Provider:   provider,
		Message:    err.Error(),
		Suggestion: Suggestion(KindConnection),
	}
}

func retryAfter(body string, header http.Header) int {
	if m := retryAfterRe.FindStringSubmatch(body); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			return int(math.Ceil(f))
		}
	}
	if header != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(header.Get("Retry-After"))); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// errorMessage pulls a human-readable message out of common error envelopes.
func errorMessage(body []byte) string {
	var env struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &env) == nil {
		var nested struct {
			Message string `json:"message"`
		}
		var flat string
		switch {
		case len(env.Error) > 0 && json.Unmarshal(env.Error, &nested) == nil && nested.Message != "":
			return truncate(nested.Message)
		case len(env.Error) > 0 && json.Unmarshal(env.Error, &flat) == nil && flat != "":
			return truncate(flat)
		case env.Message != "":
			return truncate(env.Message)
		}
	}
	return truncate(strings.TrimSpace(string(body)))
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	return s[:maxMessageLen] + "..."
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
