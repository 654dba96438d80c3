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

	"github.com/starford/perth/internal/api"
	"github.com/starford/perth/internal/chunkrunner"
	"github.com/starford/perth/internal/gitrepo"
	"github.com/starford/perth/internal/qmd"
	"github.com/starford/perth/internal/rendercache"
	"github.com/starford/perth/internal/renderservice"
	"github.com/starford/perth/internal/repostore"
	"github.com/starford/perth/internal/sse"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("docs_root", cfg.Cache.DocsRoot),
		slog.String("assets_root", cfg.Cache.AssetsRoot),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Repository connection store.
	db, err := repostore.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init repo store: %w", err)
	}
	defer db.Close()

	// Chunk renderer: external command when configured, escaped echo otherwise.
	var renderer qmd.ChunkRenderer = chunkrunner.Echo{}
	if cfg.Render.Command != "" {
		timeout := time.Duration(cfg.Render.TimeoutSeconds) * time.Second
		exec, err := chunkrunner.NewExec(cfg.Render.Command, timeout)
		if err != nil {
			return fmt.Errorf("init chunk runner: %w", err)
		}
		renderer = exec
		logger.Info("Chunk renderer configured", slog.String("command", cfg.Render.Command))
	}

	// Render cache.
	cache, err := rendercache.New(rendercache.Config{
		DocsRoot:   cfg.Cache.DocsRoot,
		AssetsRoot: cfg.Cache.AssetsRoot,
		AssetRoute: cfg.Cache.AssetRoute,
	}, renderer, logger)
	if err != nil {
		return fmt.Errorf("init render cache: %w", err)
	}

	// SSE broker.
	broker := sse.NewBroker()
	defer broker.Close()

	// Build service and routers.
	svc := renderservice.NewService(db, cache)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)
	assetHandler := api.NewAssetHandler(cfg.Cache.AssetsRoot)

	// Build chi router.
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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	// Materialized assets referenced by rendered documents.
	route := cfg.Cache.AssetRoute
	if route == "" {
		route = "assets"
	}
	r.Get("/"+route+"/*", assetHandler.ServeFile)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch connected repos for branch tip movement and fan out SSE events.
	g.Go(func() error {
		targets, err := svc.WatchTargets(gCtx)
		if err != nil {
			logger.Warn("head watcher disabled", slog.String("error", err.Error()))
			return nil
		}
		if err := gitrepo.WatchHeads(gCtx, targets, logger, broker.PublishHeadEvent); err != nil {
			logger.Warn("head watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
