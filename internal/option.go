package internal

import (
	"io"

	"github.com/starford/deckdoctor/internal/llm"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	caller    llm.Caller
	logOutput io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithCaller replaces the provider client built from the llm config section.
func WithCaller(c llm.Caller) Option {
	return func(a *application) {
		a.caller = c
	}
}

// WithLogOutput redirects the JSON log. Commands that print results to
// stdout, or speak MCP over it, log to stderr instead.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}
