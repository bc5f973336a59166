package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/goldium-labs/goldium/service/metrics"
	"github.com/goldium-labs/goldium/service/wallet"
)

// JSON-RPC error codes that mean the node itself is unhealthy rather than
// the request being wrong.
var endpointFailureCodes = map[int]bool{
	-32005: true, // node is behind
	-32603: true, // internal error
}

// Endpoint is one upstream Solana RPC node.
type Endpoint struct {
	Name   string // label used in logs and metrics
	Client RPCClient
}

// PoolConfig controls fallback and breaker behavior.
type PoolConfig struct {
	// MaxAttempts caps how many endpoints a single call may try.
	// The default of 2 is the primary plus one fallback.
	MaxAttempts      int
	FailureThreshold int
	Cooldown         time.Duration
	Now              func() time.Time
}

type poolEndpoint struct {
	Endpoint
	breaker *Breaker
}

// Pool runs calls against an ordered list of endpoints, moving on to the
// next one on transport failures and skipping endpoints whose breaker is open.
type Pool struct {
	endpoints   []*poolEndpoint
	maxAttempts int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewPool creates a pool over endpoints in priority order.
// If metrics is nil, no metrics will be recorded.
func NewPool(endpoints []Endpoint, cfg PoolConfig, m *metrics.Metrics, logger *slog.Logger) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no RPC endpoints configured")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 2
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		maxAttempts: cfg.MaxAttempts,
		metrics:     m,
		logger:      logger.With("component", "rpc_pool"),
	}
	for _, ep := range endpoints {
		if ep.Client == nil {
			return nil, fmt.Errorf("endpoint %q has no client", ep.Name)
		}
		p.endpoints = append(p.endpoints, &poolEndpoint{
			Endpoint: ep,
			breaker:  NewBreaker(cfg.FailureThreshold, cfg.Cooldown, cfg.Now),
		})
	}
	return p, nil
}

// NewPoolFromURLs builds a pool of solana-go clients, one per URL.
func NewPoolFromURLs(urls []string, cfg PoolConfig, m *metrics.Metrics, logger *slog.Logger) (*Pool, error) {
	endpoints := make([]Endpoint, 0, len(urls))
	for _, u := range urls {
		endpoints = append(endpoints, Endpoint{Name: EndpointName(u), Client: NewRPCClient(u)})
	}
	return NewPool(endpoints, cfg, m, logger)
}

// EndpointName returns the host of rawURL so API keys in paths or queries
// never reach logs or metric labels.
func EndpointName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "invalid-endpoint"
	}
	return u.Host
}

// Do runs fn against endpoints in order until one succeeds. Application
// errors returned by a healthy node are returned as-is without trying other
// endpoints. When every attempt fails the error is classed RPCUnavailable.
func (p *Pool) Do(ctx context.Context, method string, fn func(ctx context.Context, c RPCClient) error) error {
	attempts := 0
	var lastErr error

	for _, ep := range p.endpoints {
		if attempts >= p.maxAttempts {
			break
		}
		if !ep.breaker.Allow() {
			p.logger.DebugContext(ctx, "skipping endpoint with open breaker", "endpoint", ep.Name, "method", method)
			p.recordFallback(method, "breaker_open")
			continue
		}
		attempts++

		start := time.Now()
		err := callEndpoint(ctx, ep, fn)
		duration := time.Since(start).Seconds()

		if err == nil {
			ep.breaker.Success()
			p.recordCall(method, "success", ep, duration)
			return nil
		}

		if ctx.Err() != nil {
			ep.breaker.Release()
			p.recordCall(method, "canceled", ep, duration)
			return ctx.Err()
		}

		if isApplicationError(err) {
			ep.breaker.Success()
			p.recordCall(method, "app_error", ep, duration)
			return err
		}

		ep.breaker.Failure()
		p.recordCall(method, "error", ep, duration)
		p.recordFallback(method, "error")
		p.logger.WarnContext(ctx, "rpc endpoint failed",
			"endpoint", ep.Name,
			"method", method,
			"attempt", attempts,
			"breaker", ep.breaker.State().String(),
			"error", err,
		)
		lastErr = fmt.Errorf("%s: %w", ep.Name, err)
	}

	if lastErr == nil {
		lastErr = errors.New("no endpoint available: all circuit breakers are open")
	}
	return wallet.NewError(wallet.KindRPCUnavailable, method, lastErr)
}

// callEndpoint runs fn and hands the breaker permit back if fn panics.
func callEndpoint(ctx context.Context, ep *poolEndpoint, fn func(ctx context.Context, c RPCClient) error) error {
	defer func() {
		if r := recover(); r != nil {
			ep.breaker.Release()
			panic(r)
		}
	}()
	return fn(ctx, ep.Client)
}

// Breakers reports the breaker state per endpoint name.
func (p *Pool) Breakers() map[string]BreakerState {
	out := make(map[string]BreakerState, len(p.endpoints))
	for _, ep := range p.endpoints {
		out[ep.Name] = ep.breaker.State()
	}
	return out
}

func (p *Pool) recordCall(method, status string, ep *poolEndpoint, duration float64) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordRPCCall(method, status, ep.Name, duration)
	p.metrics.RecordBreakerState(ep.Name, int(ep.breaker.State()))
}

func (p *Pool) recordFallback(method, reason string) {
	if p.metrics != nil {
		p.metrics.RecordRPCFallback(method, reason)
	}
}

// isApplicationError reports whether err came from a node that answered.
func isApplicationError(err error) bool {
	if errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return !endpointFailureCodes[rpcErr.Code]
	}
	return false
}
