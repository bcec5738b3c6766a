// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/deckdoctor/internal/api"
	"github.com/starford/deckdoctor/internal/cache"
	"github.com/starford/deckdoctor/internal/collection"
	"github.com/starford/deckdoctor/internal/deckservice"
	"github.com/starford/deckdoctor/internal/kv"
	"github.com/starford/deckdoctor/internal/llm"
	"github.com/starford/deckdoctor/internal/sse"
)

const progressThrottle = 250 * time.Millisecond

// App holds the components shared by every command.
type App struct {
	Config  *Config
	Service *deckservice.Service
	Broker  *sse.Broker
	Logger  *slog.Logger

	store kv.Store
}

// New wires the cache store, provider client, collection and service.
func New(opts ...Option) (*App, error) {
	app := &application{logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("collection", cfg.Collection.Path),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("llm_provider", cfg.LLM.Provider),
		slog.String("llm_model", cfg.LLM.Model),
		slog.Bool("concurrent_analysis", cfg.Analysis.ConcurrentAnalysis),
		slog.String("log_level", cfg.App.LogLevel.String()))

	caller := app.caller
	if caller == nil {
		client, err := llm.NewClient(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("init llm client: %w", err)
		}
		caller = client
	}

	coll, err := collection.Load(cfg.Collection.Path, cfg.Collection.MediaDir)
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}

	store, err := kv.Open(cfg.Store.KV())
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	broker := sse.NewBroker(progressThrottle)
	svc := deckservice.New(deckservice.Config{
		CollectionPath: cfg.Collection.Path,
		MediaDir:       cfg.Collection.MediaDir,
		Analysis:       cfg.Analysis.Orchestration(),
		SendImages:     cfg.Analysis.SendImages,
	}, coll, cache.New(store), caller, broker)

	return &App{Config: cfg, Service: svc, Broker: broker, Logger: logger, store: store}, nil
}

// Close stops the broker and releases the cache store.
func (a *App) Close() error {
	a.Broker.Close()
	return a.store.Close()
}

// Handler builds the root HTTP router: health checks plus the API under /api.
func (a *App) Handler() http.Handler {
	cfg := a.Config
	apiRouter := api.NewRouter(a.Service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, a.Broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := a.store.Keys(r.Context(), cache.KeyPrefix); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"store unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)
	return r
}

// Serve runs the HTTP server and, when enabled, the collection watcher until
// ctx is cancelled or a shutdown signal arrives.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Collection.Watch {
		g.Go(func() error {
			err := collection.Watch(gCtx, cfg.Collection.Path, cfg.Collection.MediaDir, logger, func() {
				if err := a.Service.Reload(gCtx); err != nil {
					logger.Warn("collection reload failed, keeping previous snapshot", slog.String("error", err.Error()))
				}
			})
			if err != nil {
				logger.Error("watcher failed to start", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := New(opts...)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.Serve(ctx)
}
