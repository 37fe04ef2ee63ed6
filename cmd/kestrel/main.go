// Kestrel - Credit decisions with explanations, in milliseconds.
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
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/compose"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/explain"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/offers"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/stats"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Local .env files are optional; environment variables win either way.
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"history", cfg.History.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Initialize History Store
	store, err := history.New(cfg.History)
	if err != nil {
		slog.Error("failed to initialize history store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("history store initialized", "driver", cfg.History.Driver)

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

	// Load the scoring model
	model, err := scoring.Load(cfg.Model.ArtifactPath)
	if err != nil {
		slog.Error("failed to load scoring model", "error", err, "path", cfg.Model.ArtifactPath)
		os.Exit(1)
	}
	slog.Info("scoring model loaded", "path", cfg.Model.ArtifactPath)

	// Initialize Decision Policy and Explainer
	decisionPolicy := policy.New(model, cfg.Policy.ApprovalThreshold)
	explainer := explain.NewEngine(model, cfg.Policy.ApprovalThreshold)
	slog.Info("decision policy initialized", "threshold", cfg.Policy.ApprovalThreshold)

	// Initialize Message Composer
	composer := compose.New(cfg.LLM, cfg.Offers.KnowledgePath)
	slog.Info("message composer initialized", "llm_configured", composer.Configured())

	// Initialize Offer Engine
	catalog, err := offers.LoadCatalog(cfg.Offers.CatalogPath, cfg.Offers.ClientsPath)
	if err != nil {
		slog.Error("failed to load offer catalog", "error", err)
		os.Exit(1)
	}
	offerEngine, err := offers.NewEngine(catalog)
	if err != nil {
		slog.Error("failed to initialize offer engine", "error", err)
		os.Exit(1)
	}
	slog.Info("offer engine initialized",
		"products", len(catalog.Products),
		"clients", catalog.ClientCount(),
	)

	// Initialize cached stats aggregation
	aggregator := stats.NewCached(stats.NewAggregator(store), cacheImpl, 0)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, aggregator)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started")
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, decisionPolicy, explainer, composer, store, offerEngine, aggregator, cacheImpl, busImpl, Version)

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

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// applyEnvOverrides maps deployment secrets and data paths from the
// environment onto the loaded configuration.
func applyEnvOverrides(cfg *domain.Config) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if model := os.Getenv("KESTREL_LLM_MODEL"); model != "" {
		cfg.LLM.Model = model
	}
	if path := os.Getenv("KESTREL_MODEL_PATH"); path != "" {
		cfg.Model.ArtifactPath = path
	}
	if path := os.Getenv("KESTREL_PRODUCTS_PATH"); path != "" {
		cfg.Offers.CatalogPath = path
	}
	if path := os.Getenv("KESTREL_CLIENTS_PATH"); path != "" {
		cfg.Offers.ClientsPath = path
	}
	if path := os.Getenv("KESTREL_KNOWLEDGE_PATH"); path != "" {
		cfg.Offers.KnowledgePath = path
	}
	if path := os.Getenv("KESTREL_DB_PATH"); path != "" {
		cfg.History.SQLitePath = path
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 KESTREL                  ║")
	fmt.Println("  ║        Credit Decision Engine             ║")
	fmt.Println("  ║     Every decision, explained.            ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /predict           - Score a credit applicant")
	fmt.Println("    GET  /history           - List recorded decisions")
	fmt.Println("    POST /history/clear     - Clear the decision log")
	fmt.Println("    GET  /history/summary   - Aggregated decision stats")
	fmt.Println("    GET  /history/export    - Download history as XLSX")
	fmt.Println("    POST /offers/generate   - Generate a commercial offer")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
