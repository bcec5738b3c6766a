package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/deckdoctor/internal/analysis"
	"github.com/starford/deckdoctor/internal/kv"
	"github.com/starford/deckdoctor/internal/llm"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Collection CollectionConfig  `yaml:"collection"`
	Store      StoreConfig       `yaml:"store"`
	Auth       AuthConfig        `yaml:"auth"`
	LLM        llm.Config        `yaml:"llm"`
	Analysis   AnalysisConfig    `yaml:"analysis"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Collection.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := validateLLM(&c.LLM); err != nil {
		return err
	}
	return c.Analysis.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CollectionConfig points at the collection file. MediaDir defaults to a
// media directory next to it.
type CollectionConfig struct {
	Path     string `yaml:"path"`
	MediaDir string `yaml:"media_dir"`
	Watch    bool   `yaml:"watch"`
}

// Validate validates the collection configuration.
func (c *CollectionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// StoreConfig selects the cache backend.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = kv.DriverSQLite
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(kv.DriverFS, kv.DriverSQLite, kv.DriverRedis)),
		validation.Field(&c.Path, validation.When(c.Driver != kv.DriverRedis, validation.Required)),
		validation.Field(&c.RedisURL, validation.When(c.Driver == kv.DriverRedis, validation.Required)),
	)
}

// KV converts the section into the backend configuration.
func (c *StoreConfig) KV() kv.Config {
	return kv.Config{Driver: c.Driver, Path: c.Path, RedisURL: c.RedisURL}
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// validateLLM normalises the provider name and checks that a request could
// be built. The API key is optional since local providers need none.
func validateLLM(c *llm.Config) error {
	c.Provider = llm.NormalizeProvider(c.Provider)
	providers := make([]any, 0, len(llm.Providers()))
	for _, p := range llm.Providers() {
		providers = append(providers, p)
	}
	err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(providers...)),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Endpoint, validation.When(llm.DefaultEndpoint(c.Provider) == "", validation.Required)),
		validation.Field(&c.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.MaxTokens, validation.Min(0)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	return nil
}

// AnalysisConfig controls deck runs.
type AnalysisConfig struct {
	MaxAnalysisCards   int  `yaml:"max_analysis_cards"`
	ConcurrentAnalysis bool `yaml:"concurrent_analysis"`
	RequestDelayMS     int  `yaml:"request_delay_ms"`
	SendImages         bool `yaml:"send_images"`
	BatchSize          int  `yaml:"batch_size"`
}

// Validate validates the analysis configuration.
func (c *AnalysisConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxAnalysisCards, validation.Required, validation.Min(1)),
		validation.Field(&c.RequestDelayMS, validation.Min(0)),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1), validation.Max(50)),
	)
}

// Orchestration converts the section into the orchestrator settings.
func (c *AnalysisConfig) Orchestration() analysis.Config {
	return analysis.Config{
		MaxAnalysisCards: c.MaxAnalysisCards,
		Concurrent:       c.ConcurrentAnalysis,
		RequestDelay:     time.Duration(c.RequestDelayMS) * time.Millisecond,
		BatchSize:        c.BatchSize,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Collection: CollectionConfig{
			Path:  "./collection.yaml",
			Watch: true,
		},
		Store: StoreConfig{
			Driver: kv.DriverSQLite,
			Path:   "./deckdoctor.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		LLM: llm.Config{
			Provider:    llm.ProviderOllama,
			Model:       "llama3.1",
			Temperature: llm.DefaultTemperature,
			MaxTokens:   llm.DefaultMaxTokens,
			Timeout:     llm.DefaultTimeout,
		},
		Analysis: AnalysisConfig{
			MaxAnalysisCards: analysis.DefaultMaxAnalysisCards,
			RequestDelayMS:   int(analysis.DefaultRequestDelay / time.Millisecond),
			BatchSize:        analysis.DefaultBatchSize,
		},
	}
}
