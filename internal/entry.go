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

	"github.com/starford/curator/internal/api"
	"github.com/starford/curator/internal/connect"
	"github.com/starford/curator/internal/enhance"
	"github.com/starford/curator/internal/incident"
	"github.com/starford/curator/internal/index"
	"github.com/starford/curator/internal/mcpserver"
	"github.com/starford/curator/internal/models"
	"github.com/starford/curator/internal/noteservice"
	"github.com/starford/curator/internal/orchestrator"
	"github.com/starford/curator/internal/provider/anthropic"
	"github.com/starford/curator/internal/provider/ollama"
	"github.com/starford/curator/internal/quality"
	"github.com/starford/curator/internal/rategate"
	"github.com/starford/curator/internal/sse"
	"github.com/starford/curator/internal/storage"
)

// components is the wired object graph shared by every entry point.
type components struct {
	cfg      *Config
	logger   *slog.Logger
	store    storage.Provider
	db       *index.DB
	notes    *noteservice.Service
	assessor *quality.Assessor
	finder   *connect.Finder
	orch     *orchestrator.Orchestrator
	broker   *sse.Broker
}

func (c *components) Close() {
	if c.broker != nil {
		c.broker.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
	}
}

func resolve(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// build opens the vault and index, runs the initial sync and wires the pipeline.
func build(app *application) (*components, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("incident_dir", cfg.Pipeline.IncidentQueueDir),
		slog.Bool("local_provider", cfg.Providers.Local.Enabled),
		slog.Bool("remote_provider", cfg.Providers.Remote.Enabled),
		slog.String("embedding_backend", cfg.Providers.Embedding.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	c := &components{cfg: cfg, logger: logger, store: store, db: db, broker: sse.NewBroker(2 * time.Second)}

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	var sink incident.Sink = incident.Discard{}
	if fileSink, err := incident.NewFileSink(cfg.Pipeline.IncidentQueueDir, logger); err != nil {
		logger.Warn("incident queue unavailable, incidents will only be logged",
			slog.String("dir", cfg.Pipeline.IncidentQueueDir), slog.String("error", err.Error()))
	} else {
		sink = fileSink
	}

	tiers, err := buildTiers(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	if len(tiers) == 0 {
		logger.Warn("no enhancement providers enabled; tags and summaries are skipped")
	}
	timeout := cfg.Pipeline.ProviderTimeout()
	engine := enhance.New(tiers, sink, logger, enhance.Config{MaxTags: cfg.Pipeline.MaxTags, Timeout: timeout})

	c.notes = noteservice.NewService(store, db)
	c.assessor = quality.New(store)
	c.finder = connect.NewFinder(db, buildBackend(cfg, db), timeout, logger)
	c.orch = orchestrator.New(orchestrator.Deps{
		Quality:   c.assessor,
		Enhancer:  engine,
		Finder:    c.finder,
		Persister: c.notes,
		Incidents: sink,
		Logger:    logger,
		OnResult:  c.broker.PublishResult,
	}, orchestrator.Config{
		CostGateThreshold:    cfg.Pipeline.CostGateThreshold,
		MaxTags:              cfg.Pipeline.MaxTags,
		MinSimilarity:        cfg.Pipeline.MinSimilarity,
		MaxConnectionResults: cfg.Pipeline.MaxConnectionResults,
		Workers:              cfg.Pipeline.Workers,
	})
	return c, nil
}

// buildTiers returns the enhancement fallback chain: local first, remote last.
func buildTiers(cfg *Config, logger *slog.Logger) ([]enhance.Tier, error) {
	timeout := cfg.Pipeline.ProviderTimeout()
	var tiers []enhance.Tier

	if l := cfg.Providers.Local; l.Enabled {
		tiers = append(tiers, enhance.Tier{
			Source:   models.SourceLocal,
			Provider: ollama.New(ollama.Config{BaseURL: l.BaseURL, Model: l.Model, Timeout: timeout}),
		})
	}

	if r := cfg.Providers.Remote; r.Enabled {
		client, err := anthropic.New(anthropic.Config{
			APIKey:  r.APIKey,
			BaseURL: r.BaseURL,
			Model:   r.Model,
			Timeout: timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("remote provider: %w", err)
		}
		var gate rategate.Gate = rategate.Open{}
		if r.MinIntervalSeconds > 0 || r.RequestsPerSecond > 0 {
			gate = rategate.NewFileGate(rategate.Config{
				StateFile:         r.StateFile,
				MinInterval:       r.MinInterval(),
				RequestsPerSecond: r.RequestsPerSecond,
				Burst:             1,
			}, logger)
		}
		tiers = append(tiers, enhance.Tier{Source: models.SourceRemote, Provider: client, Gate: gate})
	}
	return tiers, nil
}

func buildBackend(cfg *Config, db *index.DB) connect.Backend {
	e := cfg.Providers.Embedding
	if e.Backend == EmbeddingOllama {
		return connect.NewEmbeddingBackend(ollama.New(ollama.Config{
			BaseURL:    e.BaseURL,
			EmbedModel: e.Model,
			Timeout:    cfg.Pipeline.ProviderTimeout(),
		}), db)
	}
	return connect.NewLexicalBackend(db)
}

// Process runs the pipeline over paths and returns results in the same order.
// A single path runs without the batch pool.
func Process(ctx context.Context, paths []string, popts orchestrator.Options, workers int, opts ...Option) ([]models.OrchestrationResult, error) {
	app, err := resolve(opts)
	if err != nil {
		return nil, err
	}
	c, err := build(app)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if len(paths) == 1 {
		return []models.OrchestrationResult{c.orch.Process(ctx, paths[0], popts)}, nil
	}
	return c.orch.ProcessBatch(ctx, paths, popts, workers), nil
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := resolve(opts)
	if err != nil {
		return err
	}
	c, err := build(app)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := mcpserver.New(mcpserver.Deps{
		Pipeline:             c.orch,
		Loader:               c.assessor,
		Finder:               c.finder,
		Notes:                c.notes,
		MaxConnectionResults: c.cfg.Pipeline.MaxConnectionResults,
		MinSimilarity:        c.cfg.Pipeline.MinSimilarity,
	}, app.version)

	c.logger.Info("MCP server starting on stdio")
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Run starts the HTTP server, the vault watcher and, when enabled, the
// auto-processing loop. It blocks until a shutdown signal or ctx ends.
func Run(ctx context.Context, opts ...Option) error {
	app, err := resolve(opts)
	if err != nil {
		return err
	}
	c, err := build(app)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg, logger := c.cfg, c.logger

	h := api.NewHandler(api.Deps{
		Pipeline:             c.orch,
		Loader:               c.assessor,
		Finder:               c.finder,
		Notes:                c.notes,
		MaxConnectionResults: cfg.Pipeline.MaxConnectionResults,
		MinSimilarity:        cfg.Pipeline.MinSimilarity,
	})
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := c.db.AllChecksums(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"index unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Bool("auto_process", cfg.Watch.AutoProcess))

	g, gCtx := errgroup.WithContext(ctx)

	var auto *autoProcessor
	if cfg.Watch.AutoProcess {
		auto = newAutoProcessor(c.orch, c.db, c.notes, orchestrator.Options{DryRun: cfg.Watch.DryRun}, logger)
		g.Go(func() error { return auto.run(gCtx) })
	}

	g.Go(func() error {
		return index.Watch(gCtx, c.db, c.store, cfg.Vault.Path, logger, func(kind, path string) {
			c.broker.PublishNoteEvent(kind, path)
			if auto != nil {
				auto.enqueue(kind, path)
			}
		})
	})

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

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown stops the errgroup so the watcher and auto-processor exit
// after a signal.
var errShutdown = errors.New("shutdown requested")
