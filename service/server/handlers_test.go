package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldium-labs/goldium/service/config"
	"github.com/goldium-labs/goldium/service/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		GoldMintAddress: config.DefaultGoldMint,
		GoldDecimals:    6,
		PriceSymbols:    []string{"SOL", "GOLD"},
	}
}

func newAddress() string {
	return solanago.NewWallet().PublicKey().String()
}

func newSignature(b byte) string {
	var sig solanago.Signature
	for i := range sig {
		sig[i] = b
	}
	return sig.String()
}

type stubTracker struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubTracker) TrackConfirmation(_ context.Context, address, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, address+"/"+signature)
	return s.err
}

func newTestHandler(t *testing.T, tracker Tracker) (http.Handler, *ledger.Repository) {
	t.Helper()
	repo := ledger.NewRepository(ledger.NewMemoryStorage(), nil, nil, testLogger())
	srv := New(":0", testConfig(), repo, NewRPCProxy(nil, 0, nil, nil, testLogger()), nil, nil, testLogger())
	if tracker != nil {
		srv.WithTracker(tracker)
	}
	return srv.Handler(), repo
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetLedger_PathologicalAddress(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	tests := []struct {
		name    string
		address string
		want    string
	}{
		{"too long", strings.Repeat("A", 500), "address too long"},
		{"non base58", "0OIl" + strings.Repeat("a", 40), "base58"},
		{"sql injection", "wallet';DROP%20TABLE", "invalid"},
		{"wrong length", "abc", "invalid address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/v1/wallets/"+tt.address+"/ledger", "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestGetLedger_EmptyWallet(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	addr := newAddress()

	rec := do(t, h, http.MethodGet, "/api/v1/wallets/"+addr+"/ledger", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got ledgerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, addr, got.Address)
	assert.Empty(t, got.Transactions)
	assert.True(t, got.GoldBalance.IsZero())
	require.NotNil(t, got.Staking)
	assert.True(t, got.Staking.StakedAmount.IsZero())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecordTransaction_Lifecycle(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	addr := newAddress()
	sig := newSignature(7)
	path := "/api/v1/wallets/" + addr + "/transactions"

	body := `{"type":"swap","signature":"` + sig + `","fromToken":"sol","toToken":"gold","fromAmount":"1","toAmount":"100","status":"confirmed"}`
	rec := do(t, h, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var stored ledger.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, "SOL", stored.FromToken)
	assert.Equal(t, ledger.StatusConfirmed, stored.Status)

	// Same signature again.
	rec = do(t, h, http.MethodPost, path, body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/wallets/"+addr+"/ledger", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var book ledgerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
	require.Len(t, book.Transactions, 1)
	assert.Equal(t, "100", book.GoldBalance.String())

	rec = do(t, h, http.MethodDelete, "/api/v1/wallets/"+addr+"/ledger", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
	assert.Empty(t, book.Transactions)
	assert.Equal(t, "100", book.GoldBalance.String(), "clearing history keeps balances")
}

func TestRecordTransaction_Validation(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	path := "/api/v1/wallets/" + newAddress() + "/transactions"
	sig := newSignature(1)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed JSON", `{"type":`, "invalid request body"},
		{"unknown type", `{"type":"mint","signature":"` + sig + `"}`, "unknown transaction type"},
		{"unknown status", `{"type":"send","signature":"` + sig + `","status":"lost"}`, "unknown status"},
		{"missing signature", `{"type":"send"}`, "signature is required"},
		{"bad signature", `{"type":"send","signature":"abc"}`, "invalid signature"},
		{"negative amount", `{"type":"send","signature":"` + sig + `","fromAmount":"-1"}`, "must not be negative"},
		{"bad recipient", `{"type":"send","signature":"` + sig + `","recipientAddress":"0000"}`, "invalid recipientAddress"},
		{"too large", `{"type":"send","signature":"` + strings.Repeat("A", 2<<20) + `"}`, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestTrackTransaction(t *testing.T) {
	addr := newAddress()
	pending := newSignature(2)
	confirmed := newSignature(3)

	seed := func(t *testing.T, repo *ledger.Repository) {
		_, _, err := repo.Record(context.Background(), addr, ledger.Record{Type: ledger.TypeSend, Signature: pending, Status: ledger.StatusPending})
		require.NoError(t, err)
		_, _, err = repo.Record(context.Background(), addr, ledger.Record{Type: ledger.TypeSend, Signature: confirmed, Status: ledger.StatusConfirmed})
		require.NoError(t, err)
	}
	trackPath := func(sig string) string {
		return "/api/v1/wallets/" + addr + "/transactions/" + sig + "/track"
	}

	t.Run("pending starts workflow", func(t *testing.T) {
		tracker := &stubTracker{}
		h, repo := newTestHandler(t, tracker)
		seed(t, repo)

		rec := do(t, h, http.MethodPost, trackPath(pending), "")
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"workflow_id":"confirm:`+pending+`"`)
		assert.Equal(t, []string{addr + "/" + pending}, tracker.calls)
	})

	t.Run("settled is not tracked again", func(t *testing.T) {
		tracker := &stubTracker{}
		h, repo := newTestHandler(t, tracker)
		seed(t, repo)

		rec := do(t, h, http.MethodPost, trackPath(confirmed), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"confirmed"`)
		assert.Empty(t, tracker.calls)
	})

	t.Run("unknown signature", func(t *testing.T) {
		h, _ := newTestHandler(t, &stubTracker{})
		rec := do(t, h, http.MethodPost, trackPath(newSignature(9)), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("tracker failure", func(t *testing.T) {
		h, repo := newTestHandler(t, &stubTracker{err: errors.New("temporal down")})
		seed(t, repo)
		rec := do(t, h, http.MethodPost, trackPath(pending), "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("tracking disabled", func(t *testing.T) {
		h, _ := newTestHandler(t, nil)
		rec := do(t, h, http.MethodPost, trackPath(pending), "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHealthAndCORS(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, h, http.MethodOptions, "/api/solana-rpc", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "metrics disabled without a collector")
}
