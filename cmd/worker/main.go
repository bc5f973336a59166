package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goldium-labs/goldium/service/config"
	"github.com/goldium-labs/goldium/service/db"
	"github.com/goldium-labs/goldium/service/ledger"
	"github.com/goldium-labs/goldium/service/metrics"
	natspkg "github.com/goldium-labs/goldium/service/nats"
	chain "github.com/goldium-labs/goldium/service/solana"
	"github.com/goldium-labs/goldium/service/temporal"
)

func main() {
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	goldMint, err := solanago.PublicKeyFromBase58(cfg.GoldMintAddress)
	if err != nil {
		logger.Error("invalid GOLD mint", "mint", cfg.GoldMintAddress, "error", err)
		os.Exit(1)
	}

	storage, closeStorage, err := db.OpenStorage(ctx, cfg.DatabaseURL, cfg.LedgerDir)
	if err != nil {
		logger.Error("failed to open ledger storage", "error", err)
		os.Exit(1)
	}
	defer closeStorage()

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Start metrics HTTP server
	metricsAddr := getEnv("METRICS_ADDR", ":9091")
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}

	go func() {
		logger.Info("starting metrics HTTP server", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	pool, err := chain.NewPoolFromURLs(cfg.SolanaRPCURLs, chain.PoolConfig{
		MaxAttempts:      cfg.RPCMaxAttempts,
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
	}, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create RPC pool", "error", err)
		os.Exit(1)
	}
	chainClient := chain.NewClient(pool, logger)

	// Status changes made by workflows reach NATS like any other ledger
	// write when a publisher is configured.
	repo := ledger.NewRepository(storage, nil, metricsCollector, logger)
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		repo = ledger.NewRepository(storage, natspkg.NewLedgerNotifier(publisher, metricsCollector, logger), metricsCollector, logger)
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	worker, err := temporal.NewWorker(temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Chain:             chainClient,
		Ledger:            repo,
		GoldMint:          goldMint,
		Metrics:           metricsCollector,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("temporal worker initialized, all dependencies ready",
		"rpc_endpoints", len(cfg.SolanaRPCURLs),
		"postgres", cfg.DatabaseURL != "",
	)

	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- worker.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		worker.Stop()
		logger.Info("shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// getEnv returns the value of an environment variable or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
