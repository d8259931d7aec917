// tgrelay - single-account Telegram channel relay
package main

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

	"github.com/alamati/tgrelay/internal/api"
	"github.com/alamati/tgrelay/internal/config"
	"github.com/alamati/tgrelay/internal/identity"
	"github.com/alamati/tgrelay/internal/middleware"
	"github.com/alamati/tgrelay/internal/relay"
	"github.com/alamati/tgrelay/internal/session"
	"github.com/alamati/tgrelay/internal/store"
	"github.com/alamati/tgrelay/internal/transport"
	"github.com/alamati/tgrelay/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	// All failure paths return through run so the deferred teardown
	// (handle disconnects, database close) always executes before exit.
	if err := run(); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	slog.Info("Starting server", "port", cfg.Port, "account", cfg.AccountPhone, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	audit, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := audit.Close(); closeErr != nil {
			slog.Error("Failed to close audit log", "error", closeErr)
		}
	}()

	if err := audit.Ping(context.Background()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	artifacts, err := session.NewStore(cfg.SessionDir)
	if err != nil {
		return fmt.Errorf("initialize session store: %w", err)
	}
	slog.Info("Session store ready", "dir", cfg.SessionDir)

	registry := session.NewRegistry()
	defer registry.DisconnectAll()

	factory := transport.GotdFactory(cfg.AppID, cfg.AppHash, artifacts.Path)
	forwarder := relay.NewForwarder(registry, audit, cfg.SourceChannel, cfg.Destination)
	orch := relay.NewOrchestrator(cfg.AccountPhone, artifacts, registry, factory, forwarder, audit)

	auth := identity.NewAuthenticator(cfg.AdminPassword)

	// Initialize handlers.
	baseHandler := api.NewHandler(orch, audit, auth, cfg.IsDevelopment())
	relayHandler := api.NewRelayHandler(baseHandler)
	healthHandler := api.NewHealthHandler(audit)
	wsHandler := api.NewStatusStreamHandler(baseHandler)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	corsOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		corsOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(corsOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Admin API (login is public, the rest requires the auth cookie).
	relayHandler.RegisterRoutes(r)

	// WebSocket status stream.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(auth))
		r.Get("/api/ws", wsHandler.ServeHTTP)
	})

	// Serve the embedded admin page.
	r.Handle("/*", web.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket status stream stays open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Bring a stored session back online at startup so forwarding resumes
	// without waiting for an admin login.
	go func() {
		res := orch.Resume(ctx)
		slog.Info("Startup resume finished", "state", res.State, "detail", res.Detail)
	}()

	// Start server.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	// Wait for shutdown signal or listen failure.
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
