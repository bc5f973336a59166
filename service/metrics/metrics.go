package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec
	solanaRPCFallbacks    *prometheus.CounterVec
	breakerState          *prometheus.GaugeVec

	// Wallet Metrics
	walletConnections *prometheus.CounterVec
	balancePolls      *prometheus.CounterVec
	balanceBackoff    prometheus.Gauge

	// Ledger and Submission Metrics
	ledgerRecordsTotal   *prometheus.CounterVec
	submissionsTotal     *prometheus.CounterVec
	confirmationAttempts *prometheus.HistogramVec

	// Proxy Metrics
	proxyRequestsTotal *prometheus.CounterVec
	proxyUpstreamTotal *prometheus.CounterVec

	// WebSocket and Price Metrics
	wsActiveConnections prometheus.Gauge
	wsMessagesSent      *prometheus.CounterVec
	priceFetchesTotal   *prometheus.CounterVec
	alertsTriggered     *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method, status and endpoint",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_fallbacks_total",
				Help: "Total number of times a call moved on to the next endpoint",
			},
			[]string{"method", "reason"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "solana_rpc_breaker_state",
				Help: "Circuit breaker state per endpoint (0=closed, 1=half-open, 2=open)",
			},
			[]string{"endpoint"},
		),

		walletConnections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_connections_total",
				Help: "Total number of wallet connect attempts by kind and result",
			},
			[]string{"kind", "result"},
		),
		balancePolls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balance_polls_total",
				Help: "Total number of balance poll ticks by status",
			},
			[]string{"status"},
		),
		balanceBackoff: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "balance_poll_delay_seconds",
				Help: "Current delay before the next balance poll",
			},
		),

		ledgerRecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_records_total",
				Help: "Total number of ledger records written by type and status",
			},
			[]string{"type", "status"},
		),
		submissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_submissions_total",
				Help: "Total number of transaction submissions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		confirmationAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transaction_confirmation_attempts",
				Help:    "Number of status polls needed before a terminal status",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"outcome"},
		),

		proxyRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_proxy_requests_total",
				Help: "Total number of proxied JSON-RPC requests by outcome",
			},
			[]string{"outcome"},
		),
		proxyUpstreamTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_proxy_upstream_attempts_total",
				Help: "Total number of upstream attempts made by the RPC proxy",
			},
			[]string{"upstream", "status"},
		),

		wsActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ws_active_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		wsMessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ws_messages_sent_total",
				Help: "Total number of WebSocket messages sent by type",
			},
			[]string{"type"},
		),
		priceFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_fetches_total",
				Help: "Total number of price feed fetches by status",
			},
			[]string{"status"},
		),
		alertsTriggered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_alerts_triggered_total",
				Help: "Total number of price alerts triggered",
			},
			[]string{"symbol", "condition"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of messages published to NATS",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"subject"},
		),
	}
}

// RecordRPCCall records a Solana RPC call with its status and duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRPCFallback records a call moving on to the next endpoint.
func (m *Metrics) RecordRPCFallback(method, reason string) {
	m.solanaRPCFallbacks.WithLabelValues(method, reason).Inc()
}

// RecordBreakerState records the numeric breaker state for an endpoint.
func (m *Metrics) RecordBreakerState(endpoint string, state int) {
	m.breakerState.WithLabelValues(endpoint).Set(float64(state))
}

// RecordWalletConnection records a connect attempt.
func (m *Metrics) RecordWalletConnection(kind, result string) {
	m.walletConnections.WithLabelValues(kind, result).Inc()
}

// RecordBalancePoll records a poll tick and the delay until the next one.
func (m *Metrics) RecordBalancePoll(status string, nextDelay float64) {
	m.balancePolls.WithLabelValues(status).Inc()
	m.balanceBackoff.Set(nextDelay)
}

// RecordLedgerRecord records a ledger write.
func (m *Metrics) RecordLedgerRecord(txType, status string) {
	m.ledgerRecordsTotal.WithLabelValues(txType, status).Inc()
}

// RecordSubmission records the outcome of a transaction submission.
func (m *Metrics) RecordSubmission(kind, outcome string) {
	m.submissionsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordConfirmationAttempts records how many polls a confirmation took.
func (m *Metrics) RecordConfirmationAttempts(outcome string, attempts int) {
	m.confirmationAttempts.WithLabelValues(outcome).Observe(float64(attempts))
}

// RecordProxyRequest records the final outcome of a proxied request.
func (m *Metrics) RecordProxyRequest(outcome string) {
	m.proxyRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordProxyUpstream records a single upstream attempt.
func (m *Metrics) RecordProxyUpstream(upstream, status string) {
	m.proxyUpstreamTotal.WithLabelValues(upstream, status).Inc()
}

// RecordWSConnectionChange records a WebSocket connection change (+1 or -1).
func (m *Metrics) RecordWSConnectionChange(delta float64) {
	m.wsActiveConnections.Add(delta)
}

// RecordWSMessageSent records a WebSocket message sent to a client.
func (m *Metrics) RecordWSMessageSent(msgType string) {
	m.wsMessagesSent.WithLabelValues(msgType).Inc()
}

// RecordPriceFetch records a price feed fetch.
func (m *Metrics) RecordPriceFetch(status string) {
	m.priceFetchesTotal.WithLabelValues(status).Inc()
}

// RecordAlertTriggered records a triggered price alert.
func (m *Metrics) RecordAlertTriggered(symbol, condition string) {
	m.alertsTriggered.WithLabelValues(symbol, condition).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
}

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// statusCodeToString buckets HTTP status codes to keep label cardinality low.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
