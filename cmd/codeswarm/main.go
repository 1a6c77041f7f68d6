package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cshttp "github.com/Strob0t/CodeSwarm/internal/adapter/http"
	"github.com/Strob0t/CodeSwarm/internal/adapter/memlock"
	csnats "github.com/Strob0t/CodeSwarm/internal/adapter/nats"
	csotel "github.com/Strob0t/CodeSwarm/internal/adapter/otel"
	"github.com/Strob0t/CodeSwarm/internal/adapter/postgres"
	"github.com/Strob0t/CodeSwarm/internal/adapter/ristretto"
	"github.com/Strob0t/CodeSwarm/internal/adapter/ws"
	"github.com/Strob0t/CodeSwarm/internal/config"
	"github.com/Strob0t/CodeSwarm/internal/domain/agent"
	"github.com/Strob0t/CodeSwarm/internal/domain/conflict"
	"github.com/Strob0t/CodeSwarm/internal/logger"
	"github.com/Strob0t/CodeSwarm/internal/middleware"
	"github.com/Strob0t/CodeSwarm/internal/resilience"
	"github.com/Strob0t/CodeSwarm/internal/service"
	"github.com/Strob0t/CodeSwarm/internal/workspace"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"max_concurrent", cfg.Coordinator.MaxConcurrent,
		"conflict_strategy", cfg.Coordinator.ConflictStrategy,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownOtel, err := csotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(shutdownCtx)
	}()

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := csnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	// --- Coordinator ---
	defs, err := agent.LoadDefinitions(cfg.Coordinator.DefinitionsFile)
	if err != nil {
		return fmt.Errorf("agent definitions: %w", err)
	}
	slog.Info("agent definitions loaded", "count", defs.Len(), "file", cfg.Coordinator.DefinitionsFile)

	hub := ws.NewHub()
	events := postgres.NewEventStore(pool)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	coord := service.NewCoordinator(defs, &cfg.Coordinator, queue, hub, events, breaker)
	scopes := service.NewScopeService(memlock.New(), coord)
	copies := workspace.NewCopyPool(cfg.Coordinator.CopyConcurrency)
	resolver := service.NewResolverService(
		conflict.Strategy(cfg.Coordinator.ConflictStrategy),
		coord, scopes, copies, cfg.Coordinator.IsolationDir,
	)
	coord.SetScopes(scopes)
	scopes.SetResolver(resolver)

	if cfg.Telemetry.Enabled {
		metrics, err := csotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		coord.SetMetrics(metrics)
		scopes.SetMetrics(metrics)
		resolver.SetMetrics(metrics)
	}

	// Worker protocol subscribers.
	if err := coord.StartSubscribers(ctx); err != nil {
		return fmt.Errorf("subscribers: %w", err)
	}

	// --- HTTP ---
	handlers := cshttp.NewHandlers(coord, resolver, events, queue, cache, cfg.Cache.TTL, hub)

	r := chi.NewRouter()
	r.Use(cshttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cshttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(cshttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if cfg.Telemetry.Enabled {
		r.Use(csotel.HTTPMiddleware(cfg.Logging.Service))
	}

	cshttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	// Abort in-flight agents before closing the queue so workers stop too.
	coord.CancelAllAgents(ctx, "execution aborted")
	if err := queue.Drain(); err != nil {
		slog.Error("nats drain", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
