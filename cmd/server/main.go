package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goldium-labs/goldium/service/config"
	"github.com/goldium-labs/goldium/service/db"
	"github.com/goldium-labs/goldium/service/ledger"
	"github.com/goldium-labs/goldium/service/metrics"
	natspkg "github.com/goldium-labs/goldium/service/nats"
	"github.com/goldium-labs/goldium/service/prices"
	"github.com/goldium-labs/goldium/service/server"
	"github.com/goldium-labs/goldium/service/temporal"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	storage, closeStorage, err := db.OpenStorage(ctx, cfg.DatabaseURL, cfg.LedgerDir)
	if err != nil {
		logger.Error("failed to open ledger storage", "error", err)
		os.Exit(1)
	}
	defer closeStorage()
	logger.Info("opened ledger storage", "postgres", cfg.DatabaseURL != "", "dir", cfg.LedgerDir)

	// NATS is optional. Without it the ledger is not published and the
	// stream endpoints are disabled.
	var notifier *natspkg.LedgerNotifier
	var subscriber *natspkg.Subscriber
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		notifier = natspkg.NewLedgerNotifier(publisher, metricsCollector, logger)

		subscriber, err = natspkg.NewSubscriber(cfg.NATSURL, "goldium-server-sse", logger)
		if err != nil {
			logger.Error("failed to create NATS subscriber", "error", err)
			os.Exit(1)
		}
		defer subscriber.Close()
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	var repo *ledger.Repository
	if notifier != nil {
		repo = ledger.NewRepository(storage, notifier, metricsCollector, logger)
	} else {
		repo = ledger.NewRepository(storage, nil, metricsCollector, logger)
	}

	// Price relay
	feed := prices.NewJupiterFeed(cfg.PriceAPIURL, map[string]string{
		ledger.TokenSOL:  prices.WrappedSOLMint,
		ledger.TokenGOLD: cfg.GoldMintAddress,
	}, nil, logger)
	relay := prices.NewRelay(feed, prices.NewCache(), cfg.PriceSymbols, cfg.PricePushInterval, metricsCollector, logger)
	go relay.Run(ctx)

	var sink server.AlertSink
	if notifier != nil {
		sink = notifier
	}
	hub := server.NewHub(relay, cfg.WSAuthToken, sink, metricsCollector, logger)
	defer hub.Close()

	proxy := server.NewRPCProxy(cfg.SolanaRPCURLs, cfg.ProxyRateLimit, nil, metricsCollector, logger)

	httpServer := server.New(cfg.ServerAddr, cfg, repo, proxy, hub, metricsCollector, logger)
	if subscriber != nil {
		httpServer.WithEvents(subscriber)
	}

	// Temporal is optional too. Without it the track endpoint answers 503.
	temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
	if err != nil {
		logger.Warn("temporal unavailable, confirmation tracking disabled", "error", err)
	} else {
		defer temporalClient.Close()
		httpServer.WithTracker(temporalClient.WithConfirmation(cfg.ConfirmPollInterval, cfg.ConfirmMaxAttempts))
	}

	logger.Info("server initialized, all dependencies ready",
		"rpc_upstreams", len(cfg.SolanaRPCURLs),
		"nats_enabled", cfg.NATSURL != "",
		"temporal_host", cfg.TemporalHost,
		"price_symbols", cfg.PriceSymbols,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
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

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
