package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func TestGetLedger_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/wallets/"+testAddress+"/ledger", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"address":%q,"transactions":[{"id":"1","type":"swap","signature":"sig1","fromToken":"SOL","toToken":"GOLD","fromAmount":"1","toAmount":"1000","status":"confirmed","effectApplied":true}],"goldBalance":"1000","stakedGoldBalance":"0"}`, testAddress)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	l, err := client.GetLedger(context.Background(), testAddress)
	require.NoError(t, err)

	assert.Equal(t, testAddress, l.Address)
	require.Len(t, l.Transactions, 1)
	assert.Equal(t, "swap", l.Transactions[0].Type)
	assert.True(t, l.Transactions[0].EffectApplied)
	assert.True(t, decimal.NewFromInt(1000).Equal(l.GoldBalance))
	assert.Nil(t, l.Staking)
}

func TestRecordTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/wallets/"+testAddress+"/transactions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "stake", body["type"])
		assert.Equal(t, "25", body["fromAmount"])

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"address":"x","transactions":[],"goldBalance":"75","stakedGoldBalance":"25"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	l, err := client.RecordTransaction(context.Background(), testAddress, Transaction{
		Type:       "stake",
		Signature:  "sig",
		FromToken:  "GOLD",
		FromAmount: decimal.NewFromInt(25),
		Status:     "confirmed",
	})
	require.NoError(t, err)
	assert.Equal(t, "25", l.StakedGoldBalance.String())
}

func TestRecordTransaction_Conflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "duplicate signature"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.RecordTransaction(context.Background(), testAddress, Transaction{Type: "send", Signature: "sig"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "duplicate signature")
}

func TestClearLedger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DELETE", r.Method)
		fmt.Fprint(w, `{"address":"x","transactions":[],"goldBalance":"5","stakedGoldBalance":"0"}`)
	}))
	defer server.Close()

	l, err := NewClient(server.URL, nil, nil).ClearLedger(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Empty(t, l.Transactions)
	assert.Equal(t, "5", l.GoldBalance.String())
}

func TestTrackTransaction(t *testing.T) {
	for _, code := range []int{http.StatusAccepted, http.StatusOK} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/wallets/"+testAddress+"/transactions/sig1/track", r.URL.Path)
			w.WriteHeader(code)
			fmt.Fprint(w, `{"workflow_id":"confirm:sig1","status":"pending"}`)
		}))

		tr, err := NewClient(server.URL, nil, nil).TrackTransaction(context.Background(), testAddress, "sig1")
		require.NoError(t, err)
		assert.Equal(t, "confirm:sig1", tr.WorkflowID)
		server.Close()
	}
}

func TestReceive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GOLD", r.URL.Query().Get("token"))
		assert.Equal(t, "2.5", r.URL.Query().Get("amount"))
		assert.False(t, r.URL.Query().Has("memo"))
		fmt.Fprintf(w, `{"address":%q,"token":"GOLD","amount":"2.5","payment_url":"solana:%s?amount=2.5","qr_code_data":"iVBOR"}`, testAddress, testAddress)
	}))
	defer server.Close()

	req, err := NewClient(server.URL, nil, nil).Receive(context.Background(), testAddress, ReceiveOptions{Token: "GOLD", Amount: "2.5"})
	require.NoError(t, err)
	require.NotNil(t, req.Amount)
	assert.Equal(t, "2.5", req.Amount.String())
	assert.Equal(t, "solana:"+testAddress+"?amount=2.5", req.PaymentURL)
}

func TestProxyRPC(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/solana-rpc", r.URL.Path)
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)
		assert.Equal(t, "getBalance", req.Method)
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{"value":42}}`, req.ID)
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, nil, nil).ProxyRPC(context.Background(), "getBalance", []any{testAddress})
	require.NoError(t, err)
	assert.Nil(t, resp.Error)
	assert.JSONEq(t, `{"value":42}`, string(resp.Result))
}

func TestProxyRPC_AllEndpointsFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"All RPC endpoints failed","lastError":"HTTP 429: Too Many Requests"}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).ProxyRPC(context.Background(), "getSlot", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "All RPC endpoints failed", apiErr.Message)
	assert.Equal(t, "HTTP 429: Too Many Requests", apiErr.LastError)
}

func TestHealth(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	assert.NoError(t, client.Health(context.Background()))
	healthy = false
	assert.Error(t, client.Health(context.Background()))
}

func TestStreamLedger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stream/ledger/"+testAddress, r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: connected\ndata: {\"subject\":\"ledger.x\"}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: ledger\ndata: {\"action\":\"recorded\"}\n\n")
		fmt.Fprint(w, "event: ledger\ndata: {\"action\":\"status\"}\n\n")
	}))
	defer server.Close()

	var got []Event
	err := NewClient(server.URL, nil, nil).StreamLedger(context.Background(), testAddress, func(e Event) error {
		got = append(got, e)
		if len(got) == 2 {
			return ErrStreamClosed
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "connected", got[0].Type)
	assert.Equal(t, "ledger", got[1].Type)
	assert.JSONEq(t, `{"action":"recorded"}`, string(got[1].Data))
}

func TestStreamLedger_HandlerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	boom := errors.New("boom")
	err := NewClient(server.URL, nil, nil).StreamLedger(ctx, "", func(Event) error { return boom })
	assert.ErrorIs(t, err, boom)
}
