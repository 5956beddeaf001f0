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

	"github.com/uos-liuyang/deepin-voice-note/internal/api"
	"github.com/uos-liuyang/deepin-voice-note/internal/apperr"
	"github.com/uos-liuyang/deepin-voice-note/internal/artifacts"
	"github.com/uos-liuyang/deepin-voice-note/internal/convert"
	"github.com/uos-liuyang/deepin-voice-note/internal/events"
	"github.com/uos-liuyang/deepin-voice-note/internal/legacy"
	"github.com/uos-liuyang/deepin-voice-note/internal/mcpserver"
	"github.com/uos-liuyang/deepin-voice-note/internal/noteservice"
	"github.com/uos-liuyang/deepin-voice-note/internal/record"
	"github.com/uos-liuyang/deepin-voice-note/internal/store"
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
		slog.String("store_path", cfg.Store.Path),
		slog.String("artifacts_path", cfg.Artifacts.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure artifact directory exists.
	if err := os.MkdirAll(cfg.Artifacts.Path, 0o755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}

	fs, err := artifacts.NewFS(cfg.Artifacts.Path)
	if err != nil {
		return fmt.Errorf("init artifacts: %w", err)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// One-time import of the previous-generation database.
	if cfg.Legacy.Path != "" {
		report, err := legacy.NewImporter(db, logger).Run(cfg.Legacy.Path)
		switch {
		case errors.Is(err, apperr.ErrImportPartial):
			logger.Warn("legacy import finished with skipped rows",
				slog.Int("notebooks", report.Notebooks),
				slog.Int("notes", report.Notes),
				slog.Int("skipped", report.Skipped))
		case err != nil:
			logger.Warn("legacy import failed", slog.String("error", err.Error()))
		case !report.AlreadyDone:
			logger.Info("legacy import finished",
				slog.Int("notebooks", report.Notebooks),
				slog.Int("notes", report.Notes))
		}
	}

	// Event broker for the presentation layer.
	broker := events.NewBroker()
	defer broker.Close()

	// Recording manager. The encoder and detector default to the
	// desktop capture tooling unless an option replaced them.
	detector := app.detector
	if detector == nil {
		detector = record.NewCommandDetector(cfg.Record.SampleRate)
	}
	encoder := app.encoder
	if encoder == nil {
		encoder = record.RawEncoder{}
	}
	rec := record.NewManager(detector, encoder, fs, broker, logger)

	// Conversion provider backed by the remote voice service.
	provider := app.provider
	var client *convert.Client
	if provider == nil {
		client = convert.NewClient(cfg.Convert.BaseURL, cfg.Convert.Token, cfg.Convert.Timeout(), cfg.Convert.TransportAttempts)
		provider = client
	}
	conv := convert.NewManager(db, fs, provider, broker, cfg.Convert.Timeout(), logger)

	sink := app.sink
	if sink == nil {
		sink = convert.CommandSink{}
	}
	speaker := convert.NewSpeaker(db, provider, sink, broker, logger)

	svc := noteservice.NewService(db, fs, rec, conv, speaker, broker, logger)

	// MCP stdio mode replaces the HTTP surface entirely.
	if app.mcp {
		logger.Info("Starting MCP server on stdio")
		return mcpserver.New(svc).ServeStdio()
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the artifact directory for recordings deleted behind our back.
	g.Go(func() error {
		if err := artifacts.Watch(gCtx, fs, logger, svc.HandleArtifactRemoved); err != nil {
			logger.Warn("artifact watcher stopped", slog.String("error", err.Error()))
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
		if client != nil {
			client.Close()
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
