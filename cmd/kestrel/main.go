// Kestrel - Merchant credit scoring from UPI payment history.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/source"
	"github.com/opensource-finance/kestrel/internal/sweep"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := loadConfig()

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"source", cfg.Source.Type,
		"rules_path", cfg.RulesPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Load and compile the scoring rules document
	ruleSet, err := rules.LoadFile(cfg.RulesPath)
	if err != nil {
		slog.Error("failed to load scoring rules", "path", cfg.RulesPath, "error", err)
		os.Exit(1)
	}
	engine, err := rules.NewEngine(ruleSet, logger)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized",
		"rules_version", engine.Version(),
		"components", len(ruleSet.Scoring.Components),
	)

	// Initialize transaction source with retry and fallback
	resilientSource := buildSource(cfg.Source, logger)

	// Initialize scoring pipeline
	orchestrator := scoring.NewOrchestrator(
		resilientSource,
		metrics.NewCalculator(),
		engine,
		repo,
		cacheImpl,
		busImpl,
		logger,
	)
	slog.Info("scoring orchestrator initialized")

	// Initialize batch sweeper
	var sweeper *sweep.Sweeper
	if cfg.Sweep.Enabled || os.Getenv("KESTREL_SWEEP") == "true" {
		sweeper = sweep.New(orchestrator, repo, busImpl, cfg.Sweep, logger)
		sweeper.Start(ctx)
		slog.Info("sweeper started",
			"interval", cfg.Sweep.Interval,
			"staleness", cfg.Sweep.Staleness,
			"concurrency", cfg.Sweep.Concurrency,
		)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, orchestrator, engine, repo, cacheImpl, busImpl, cfg.RulesPath, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop sweeper first so no new assessments start mid-shutdown
	if sweeper != nil {
		sweeper.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadConfig builds the configuration from the tier preset plus
// environment overrides.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KESTREL_RULES_PATH"); v != "" {
		cfg.RulesPath = v
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_SOURCE_URL"); v != "" {
		cfg.Source.Type = "http"
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("KESTREL_SOURCE_API_KEY"); v != "" {
		cfg.Source.APIKey = v
	}

	return cfg
}

// buildSource assembles the transaction source chain: the configured
// primary wrapped with retries, plus a synthetic fallback when allowed.
func buildSource(cfg domain.SourceConfig, logger *slog.Logger) *source.ResilientSource {
	var primary domain.TransactionSource
	switch cfg.Type {
	case "http":
		primary = source.NewHTTPSource(cfg)
	default:
		primary = source.NewSyntheticSource()
	}

	var fallback domain.TransactionSource
	if cfg.AllowSyntheticFallback && cfg.Type != "synthetic" {
		fallback = source.NewSyntheticSource()
	}

	policy := source.RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		BackoffFactor:  cfg.BackoffFactor,
	}
	return source.NewResilientSource(primary, fallback, policy, logger)
}

func printBanner(cfg *domain.Config, version string) {
	title := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)

	fmt.Println()
	title.Println("  ╔═══════════════════════════════════════════╗")
	title.Println("  ║               KESTREL                     ║")
	title.Println("  ║     Merchant Credit Scoring Engine        ║")
	title.Println("  ║     Credit from payment behaviour.        ║")
	title.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Rules:    %s\n", cfg.RulesPath)
	fmt.Println()
	dim.Println("  Endpoints:")
	dim.Println("    POST /assess                          - Score a merchant")
	dim.Println("    POST /simulate                        - What-if scoring run")
	dim.Println("    GET  /assessments/{id}                - Get assessment by ID")
	dim.Println("    GET  /merchants/{id}/assessment       - Latest merchant assessment")
	dim.Println("    GET  /rules                           - Active scoring rules")
	dim.Println("    POST /rules/reload                    - Hot-reload rules from disk")
	dim.Println("    GET  /health                          - Health check")
	fmt.Println()
}
