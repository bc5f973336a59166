package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goldium-labs/goldium/service/config"
	"github.com/goldium-labs/goldium/service/ledger"
	"github.com/goldium-labs/goldium/service/metrics"
)

// Server represents the HTTP server for the wallet service.
type Server struct {
	addr    string
	cfg     *config.Config
	repo    *ledger.Repository
	proxy   *RPCProxy
	hub     *Hub
	tracker Tracker
	events  EventSource
	metrics *metrics.Metrics
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The hub is optional - if nil, the /ws endpoint won't be available.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, cfg *config.Config, repo *ledger.Repository, proxy *RPCProxy, hub *Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		cfg:     cfg,
		repo:    repo,
		proxy:   proxy,
		hub:     hub,
		metrics: m,
		logger:  logger,
	}
}

// WithTracker enables the confirmation tracking endpoint.
func (s *Server) WithTracker(t Tracker) *Server {
	s.tracker = t
	return s
}

// WithEvents enables the SSE event stream endpoints.
func (s *Server) WithEvents(src EventSource) *Server {
	s.events = src
	return s
}

// Handler builds the routing tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// RPC proxy
	route("POST /api/solana-rpc", "/api/solana-rpc", s.proxy)

	// Ledger routes
	route("GET /api/v1/wallets/{address}/ledger", "/api/v1/wallets/{address}/ledger", handleGetLedger(s.repo, s.logger))
	route("DELETE /api/v1/wallets/{address}/ledger", "/api/v1/wallets/{address}/ledger", handleClearLedger(s.repo, s.logger))
	route("POST /api/v1/wallets/{address}/transactions", "/api/v1/wallets/{address}/transactions", handleRecordTransaction(s.repo, s.logger))
	route("POST /api/v1/wallets/{address}/transactions/{signature}/track", "/api/v1/wallets/{address}/transactions/{signature}/track", handleTrackTransaction(s.repo, s.tracker, s.logger))
	route("GET /api/v1/wallets/{address}/receive", "/api/v1/wallets/{address}/receive", handleReceive(s.cfg.GoldMintAddress, s.cfg.GoldDecimals, s.logger))

	// Price relay
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	} else {
		s.logger.Warn("price hub not configured, /ws disabled")
	}

	// SSE streaming endpoints (if an event source is configured)
	if s.events != nil {
		mux.Handle("GET /api/v1/stream/ledger/{address}", handleStreamEvents(s.events, ledgerStreamSubject, s.logger))
		mux.Handle("GET /api/v1/stream/ledger", handleStreamEvents(s.events, ledgerStreamSubject, s.logger))
		mux.Handle("GET /api/v1/stream/alerts", handleStreamEvents(s.events, alertStreamSubject, s.logger))
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server",
		"addr", s.addr,
		"rpc_upstreams", len(s.cfg.SolanaRPCURLs),
		"ws_enabled", s.hub != nil,
		"tracking_enabled", s.tracker != nil,
		"streams_enabled", s.events != nil,
	)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close websocket clients first; Shutdown does not wait for hijacked
	// connections.
	if s.hub != nil {
		s.hub.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
