package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldium-labs/goldium/service/config"
)

func parsePayURL(t *testing.T, raw string) (string, url.Values) {
	t.Helper()
	require.True(t, strings.HasPrefix(raw, "solana:"), raw)
	recipient, query, _ := strings.Cut(strings.TrimPrefix(raw, "solana:"), "?")
	params, err := url.ParseQuery(query)
	require.NoError(t, err)
	return recipient, params
}

func TestBuildSolanaPayURL(t *testing.T) {
	addr := newAddress()
	amount := decimal.RequireFromString("1.5")

	recipient, params := parsePayURL(t, buildSolanaPayURL(addr, &amount, "", "order 42"))
	assert.Equal(t, addr, recipient)
	assert.Equal(t, "1.5", params.Get("amount"))
	assert.Equal(t, "order 42", params.Get("memo"))
	assert.Equal(t, payLabel, params.Get("label"))
	assert.Empty(t, params.Get("spl-token"))

	_, params = parsePayURL(t, buildSolanaPayURL(addr, nil, config.DefaultGoldMint, ""))
	assert.Equal(t, config.DefaultGoldMint, params.Get("spl-token"))
	assert.False(t, params.Has("amount"), "open amount lets the sender choose")
	assert.False(t, params.Has("memo"))
}

func TestGenerateQRCode(t *testing.T) {
	data, err := generateQRCode("solana:" + newAddress())
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestReceiveHandler(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	addr := newAddress()

	t.Run("GOLD with amount", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/wallets/"+addr+"/receive?token=gold&amount=12.345678", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got ReceiveRequest
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "GOLD", got.Token)
		assert.Equal(t, config.DefaultGoldMint, got.Mint)
		require.NotNil(t, got.Amount)
		assert.Equal(t, "12.345678", got.Amount.String())
		assert.NotEmpty(t, got.QRCodeData)

		_, params := parsePayURL(t, got.PaymentURL)
		assert.Equal(t, config.DefaultGoldMint, params.Get("spl-token"))
		assert.Equal(t, "12.345678", params.Get("amount"))
	})

	t.Run("SOL by default", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/wallets/"+addr+"/receive", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var got ReceiveRequest
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "SOL", got.Token)
		assert.Empty(t, got.Mint)
		assert.Nil(t, got.Amount)
	})

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"unknown token", "token=BONK", "must be SOL or GOLD"},
		{"not a number", "amount=lots", "not a number"},
		{"zero", "amount=0", "must be positive"},
		{"too precise for GOLD", "token=GOLD&amount=0.0000001", "at most 6 decimal places"},
		{"too precise for SOL", "amount=0.0000000001", "at most 9 decimal places"},
		{"control chars in memo", "memo=a%00b", "control characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/v1/wallets/"+addr+"/receive?"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}
