package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsMiddleware_RecordsStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	handler := HTTPMetricsMiddleware(m, "/api/solana-rpc")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/solana-rpc", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/solana-rpc", "POST", "5xx")))
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	called := false
	handler := HTTPMetricsMiddleware(nil, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.True(t, called)
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	w := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := w.Hijack()
	require.Error(t, err)
}

func TestStatusCodeToString(t *testing.T) {
	tests := map[int]string{
		200: "2xx",
		204: "2xx",
		301: "3xx",
		404: "4xx",
		429: "4xx",
		503: "5xx",
		100: "unknown",
	}
	for code, want := range tests {
		assert.Equal(t, want, statusCodeToString(code), "code %d", code)
	}
}

func TestRecorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRPCCall("getBalance", "success", "e1", 0.1)
	m.RecordRPCFallback("getBalance", "error")
	m.RecordBreakerState("e1", 2)
	m.RecordWalletConnection("phantom", "success")
	m.RecordBalancePoll("error", 10)
	m.RecordAlertTriggered("SOL", "above")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.solanaRPCCallsTotal.WithLabelValues("getBalance", "success", "e1")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.breakerState.WithLabelValues("e1")))
	assert.Equal(t, float64(10), testutil.ToFloat64(m.balanceBackoff))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.alertsTriggered.WithLabelValues("SOL", "above")))
}
