// sshgw - browser-to-SSH terminal gateway
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/sshgw/internal/api"
	"github.com/ashureev/sshgw/internal/auth"
	"github.com/ashureev/sshgw/internal/config"
	"github.com/ashureev/sshgw/internal/gateway"
	"github.com/ashureev/sshgw/internal/middleware"
	"github.com/ashureev/sshgw/internal/pool"
	"github.com/ashureev/sshgw/internal/session"
	"github.com/ashureev/sshgw/internal/sshdial"
	"github.com/ashureev/sshgw/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "host", cfg.ListenHost, "port", cfg.ListenPort, "dev", cfg.IsDevelopment())

	audit, err := store.NewSQLiteAuditStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := audit.Close(); closeErr != nil {
			slog.Error("Failed to close audit store", "error", closeErr)
		}
	}()

	if err := audit.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// The connections CRUD surface (create/list/delete stored SSH
	// credentials) is out of scope for this module; connections must be
	// registered into this store by whatever owns that surface before a
	// client can "connect" through the gateway.
	connections := store.NewMemoryConnectionStore()

	verifier := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTAlgorithm)
	dialer := sshdial.NewDialer(cfg.SSHDialTimeout)
	connPool := pool.New(cfg.MaxConnections)

	gw := &gateway.Handler{
		Connections:    connections,
		Dialer:         dialer,
		Pool:           connPool,
		Audit:          audit,
		Verifier:       verifier,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}

	healthHandler := api.NewHealthHandler(audit)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	healthHandler.RegisterHealth(r)
	r.Get("/ws/terminal", gw.ServeHTTP)

	srv := &http.Server{
		Addr:         cfg.ListenHost + ":" + cfg.ListenPort,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout; terminal sessions are long-lived
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	for _, entry := range connPool.Drain() {
		if s, ok := entry.(*session.Session); ok {
			if logID, ok := s.SessionLogID(); ok {
				closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := audit.CloseSessionLog(closeCtx, logID, time.Now(), s.CommandLog()); err != nil {
					slog.Warn("close session log failed", "session_log_id", logID, "error", err)
				}
				closeCancel()
			}
		}
		entry.Teardown()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
