package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/deckdoctor/internal/llm"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error      string        `json:"error" validate:"required"`
	Kind       llm.ErrorKind `json:"kind,omitempty" example:"rate_limit"`
	Suggestion string        `json:"suggestion,omitempty"`
	RetryAfter int           `json:"retry_after,omitempty" example:"30"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

func providerErrorBody(e *llm.Error) errResponse {
	return errResponse{
		Error:      e.Message,
		Kind:       e.Kind,
		Suggestion: e.Suggestion,
		RetryAfter: e.RetryAfter,
	}
}
