package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/goldium-labs/goldium/service/metrics"
)

const (
	maxProxyBodySize     = 1 << 20 // 1MB
	maxProxyResponse     = 8 << 20
	proxyUpstreamTimeout = 20 * time.Second
	limiterIdleTTL       = 10 * time.Minute
)

// proxyFailure is the body returned when every upstream fails.
type proxyFailure struct {
	Error     string `json:"error"`
	LastError string `json:"lastError"`
}

// RPCProxy forwards JSON-RPC bodies to a fixed list of upstreams, in order,
// and returns the first successful response verbatim.
type RPCProxy struct {
	upstreams  []string
	httpClient *http.Client
	limiter    *ipLimiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewRPCProxy creates a proxy. perSecond <= 0 disables rate limiting. If
// httpClient is nil, a client with a 20 second timeout is used.
func NewRPCProxy(upstreams []string, perSecond int, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *RPCProxy {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: proxyUpstreamTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &RPCProxy{
		upstreams:  append([]string(nil), upstreams...),
		httpClient: httpClient,
		metrics:    m,
		logger:     logger.With("component", "rpc_proxy"),
	}
	if perSecond > 0 {
		p.limiter = newIPLimiter(rate.Limit(perSecond), perSecond*2, time.Now)
	}
	return p
}

// ServeHTTP implements http.Handler.
// POST /api/solana-rpc
func (p *RPCProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.limiter != nil && !p.limiter.allow(clientIP(r)) {
		p.record("rate_limited")
		writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProxyBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			p.record("too_large")
			writeError(w, fmt.Sprintf("request body exceeds %d bytes", maxProxyBodySize), http.StatusRequestEntityTooLarge)
			return
		}
		p.record("bad_request")
		writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		p.record("bad_request")
		writeError(w, "request body must be JSON", http.StatusBadRequest)
		return
	}

	lastErr := "no RPC endpoints configured"
	for _, upstream := range p.upstreams {
		resp, err := p.forward(r, upstream, body)
		name := upstreamName(upstream)
		if err != nil {
			lastErr = err.Error()
			p.recordUpstream(name, "error")
			p.logger.WarnContext(r.Context(), "rpc upstream failed", "upstream", name, "error", err)
			continue
		}
		p.recordUpstream(name, "success")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(resp)
		p.record("success")
		return
	}

	p.record("all_failed")
	p.logger.ErrorContext(r.Context(), "all rpc upstreams failed", "upstreams", len(p.upstreams), "last_error", lastErr)
	writeJSON(w, proxyFailure{Error: "All RPC endpoints failed", LastError: lastErr}, http.StatusServiceUnavailable)
}

// forward posts body to upstream and returns the response body when the
// upstream answered 200.
func (p *RPCProxy) forward(r *http.Request, upstream string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, upstream, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return data, nil
}

func (p *RPCProxy) record(outcome string) {
	if p.metrics != nil {
		p.metrics.RecordProxyRequest(outcome)
	}
}

func (p *RPCProxy) recordUpstream(upstream, status string) {
	if p.metrics != nil {
		p.metrics.RecordProxyUpstream(upstream, status)
	}
}

// upstreamName keeps API keys in query strings out of logs and labels.
func upstreamName(upstream string) string {
	u, err := url.Parse(upstream)
	if err != nil || u.Host == "" {
		return "invalid"
	}
	return u.Host
}

// clientIP returns the first X-Forwarded-For hop or the remote host.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ipLimiter keeps one token bucket per client IP.
type ipLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	swept    time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(limit rate.Limit, burst int, now func() time.Time) *ipLimiter {
	return &ipLimiter{
		limit:    limit,
		burst:    burst,
		now:      now,
		visitors: make(map[string]*visitor),
		swept:    now(),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > limiterIdleTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(l.visitors, k)
			}
		}
		l.swept = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}
