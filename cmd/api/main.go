// Package main is the entry point for the bike trips API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver for database/sql

	"github.com/pkordes/bike-trips/internal/config"
	"github.com/pkordes/bike-trips/internal/handler"
	"github.com/pkordes/bike-trips/internal/metrics"
	"github.com/pkordes/bike-trips/internal/middleware"
	"github.com/pkordes/bike-trips/internal/publisher"
	"github.com/pkordes/bike-trips/internal/repo"
	"github.com/pkordes/bike-trips/internal/service"
	"github.com/pkordes/bike-trips/migrations"
)

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		// Use plain stderr before the logger is configured.
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	logger, logCloser := newLogger(cfg.LogLevel, cfg.LogFile)
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("server exited", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// --- Store ------------------------------------------------------------
	trips, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- Metrics & events -------------------------------------------------
	collector := metrics.NewCollector()

	var events service.EventPublisher = publisher.Noop{}
	if cfg.NATSURL != "" {
		nats, err := publisher.NewNATSPublisher(cfg.NATSURL, logger, collector)
		if err != nil {
			return err
		}
		defer nats.Close()
		events = nats
		logger.Info("publishing trip events", "nats_url", cfg.NATSURL)
	}

	svc := service.NewTripService(trips,
		service.WithLogger(logger),
		service.WithPublisher(events),
		service.WithMetrics(collector),
	)

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer → CORS → body limit.
	// RequestID generates a unique trace ID per request.
	// RealIP sets r.RemoteAddr from X-Forwarded-For / X-Real-IP (safe behind a proxy).
	// SlogLogger writes one structured JSON log line per request.
	// Recoverer catches panics and returns HTTP 500 instead of crashing.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))

	handler.NewServer(svc, logger).Routes(r)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", collector.Handler())
	}

	// --- HTTP Server ------------------------------------------------------
	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: wait for OS signal, then give in-flight requests
	// up to 15 seconds to complete before forcefully closing.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	case <-stop:
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// openStore returns the configured TripRepo and a func that releases it.
// For Postgres it verifies connectivity and, unless disabled, applies pending
// migrations before any traffic is accepted.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repo.TripRepo, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory trip store; trips are lost on restart")
		return repo.NewMemoryTripRepo(), func() {}, nil
	}

	if cfg.MigrateOnStart {
		if err := migrate(ctx, cfg.DatabaseURL, logger); err != nil {
			return nil, nil, err
		}
	}

	// pgxpool manages a pool of Postgres connections.
	// New() does not open connections immediately; the first query does.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("create database pool: %w", err)
	}

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("database connection established")

	return repo.NewTripRepo(pool), pool.Close, nil
}

// migrate applies the embedded goose migrations over a short-lived
// database/sql handle, which is what goose drives.
func migrate(ctx context.Context, dsn string, logger *slog.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	n, err := migrations.Up(ctx, db)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", "count", n)
	return nil
}
