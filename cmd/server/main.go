package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"run-sphere/internal/api"
	"run-sphere/internal/config"
	"run-sphere/internal/executor"
	"run-sphere/internal/monitor"
	"run-sphere/internal/programs/sqlite"
	"run-sphere/internal/provider"
	"run-sphere/internal/ratelimit"
	"run-sphere/internal/results"
	"run-sphere/internal/runtime"
	"run-sphere/internal/service"
	"run-sphere/internal/storage"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		log.Fatal().Err(err).Msg("invalid environment configuration")
	}
	if cfg.Provider.APIKey == "" {
		log.Warn().Str("env", cfg.Provider.APIKeyEnv).Msg("no provider API key configured; runs will fail upstream")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metrics and tracing
	metrics := monitor.NewMetrics()
	tracer := monitor.NewTracer()

	llm, err := provider.New(cfg.Provider, &http.Client{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create provider")
	}
	exec := executor.New(llm,
		executor.WithMaxConcurrent(cfg.Runner.MaxConcurrent),
		executor.WithMetrics(metrics),
		executor.WithTracer(tracer),
	)

	store := results.NewStore(cfg.Store.MaxEntries, cfg.Store.Retain)
	defer store.Close()
	limiter := ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	defer limiter.Close()

	// Initialize database (optional, runs without it for development)
	var db *storage.DB
	if cfg.Database.DSN != "" {
		db, err = storage.New(ctx, cfg.Database)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, audit logging disabled")
		} else {
			defer db.Close()
			if err := db.EnsureSchema(ctx); err != nil {
				log.Fatal().Err(err).Msg("failed to create audit schema")
			}
		}
	}

	svcCfg := service.Config{
		Timeouts:     cfg.Runner.Timeouts(),
		RetryBackoff: cfg.Runner.RetryBackoff,
		Metrics:      metrics,
		Tracer:       tracer,
	}
	deps := api.Deps{Limiter: limiter, Metrics: metrics}

	// Audit writer (buffered) and run history need the database
	if db != nil {
		auditWriter := storage.NewAuditWriter(db, cfg.Database.AuditBuffer)
		auditWriter.Start()
		defer auditWriter.Flush(10 * time.Second)
		svcCfg.Audit = auditWriter
		deps.History = db
	}

	// Saved programs and editor settings (optional)
	if cfg.Programs.DBPath != "" {
		programs, err := sqlite.Open(cfg.Programs.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Programs.DBPath).Msg("failed to open program store")
		}
		defer programs.Close()
		deps.Programs = programs
	}

	deps.Service = service.New(exec, store, runtime.NewRegistry(), svcCfg)

	// Create and start HTTP server
	server := api.NewServer(cfg, deps)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Str("provider", llm.Name()).
		Str("model", cfg.Provider.Model).
		Bool("db_enabled", db != nil).
		Bool("programs_enabled", deps.Programs != nil).
		Int("max_concurrent", cfg.Runner.MaxConcurrent).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}
