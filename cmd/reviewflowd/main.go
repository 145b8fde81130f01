// Package main is the entry point for the reviewflow server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kevinvdv/reviewflow/internal/config"
	"github.com/kevinvdv/reviewflow/internal/definition"
	"github.com/kevinvdv/reviewflow/internal/eligibility"
	"github.com/kevinvdv/reviewflow/internal/engine"
	"github.com/kevinvdv/reviewflow/internal/lifecycle"
	"github.com/kevinvdv/reviewflow/internal/notify"
	"github.com/kevinvdv/reviewflow/internal/observability"
	"github.com/kevinvdv/reviewflow/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "reviewflow", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	promRegistry := prometheus.NewRegistry()
	metrics := observability.InitMetrics(promRegistry)

	// Step 4: Load workflow definitions, validate, build registry.
	loader := definition.NewLoader()
	defs, err := loader.LoadAll(cfg.Definitions.Directories)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}

	validator := definition.NewValidator()
	verrs := validator.Validate(defs)
	if len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("definition validation error", zap.String("error", ve.Error()))
		}
		logger.Error("definition validation failed", zap.Int("errors", len(verrs)))
		return 1
	}

	registry := definition.NewRegistry(defs)
	metrics.DefinitionsLoaded.Set(float64(len(registry.Types())))
	metrics.DefinitionReloadTotal.WithLabelValues("success").Inc()

	// Step 5: Initialize the principal directory.
	directory, err := eligibility.NewStaticDirectory(cfg.Directory.StaticFile)
	if err != nil {
		logger.Error("directory initialization failed", zap.Error(err))
		return 1
	}

	// Step 6: Initialize the task store.
	store, storeCloser, err := buildTaskStore(ctx, cfg.Engine.Store, logger)
	if err != nil {
		logger.Error("task store initialization failed", zap.Error(err))
		return 1
	}

	// Step 7: Build the engine and its collaborators.
	resolver := eligibility.NewResolver(directory, store)
	notifier := notify.NewService(cfg.Notifier)
	lifecycleSvc := lifecycle.NewService(cfg.Lifecycle)

	eng := engine.NewEngine(registry, store, resolver, notifier, lifecycleSvc, logger, engine.Options{
		ResolveTimeout: cfg.Engine.ResolveTimeout,
		AdminRole:      cfg.Engine.AdminRole,
	})

	// Step 8: Build the HTTP router.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)

	readiness := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return len(registry.Types()) > 0 },
	}
	if hc, ok := store.(observability.HealthChecker); ok {
		readiness.TaskStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Engine:       eng,
		Metrics:      metrics,
		Registry:     promRegistry,
		Readiness:    readiness,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 9: Start the HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Strings("workflow_types", registry.Types()),
		zap.String("store_driver", cfg.Engine.Store.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if storeCloser != nil {
		storeCloser()
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildTaskStore creates the task store based on config. The postgres driver
// verifies connectivity and creates the schema before the server starts.
func buildTaskStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (engine.TaskStore, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory task store")
		return engine.NewMemoryTaskStore(), nil, nil
	case "postgres", "":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("task store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("task store: parse DSN: %w", err)
		}
		if cfg.MaxConns > 0 {
			poolCfg.MaxConns = int32(cfg.MaxConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
		}

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("task store: connect: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("task store: ping: %w", err)
		}

		store := engine.NewPgTaskStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}

		logger.Info("using postgres task store")
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("task store: unknown driver %q", cfg.Driver)
	}
}
