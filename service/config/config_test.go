package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Len(t, cfg.SolanaRPCURLs, 2)
	assert.Equal(t, 2, cfg.RPCMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.BalancePollInterval)
	assert.Equal(t, 200*time.Millisecond, cfg.WalletSwitchDelay)
	assert.Equal(t, 30, cfg.ConfirmMaxAttempts)
	assert.Equal(t, DefaultGoldMint, cfg.GoldMintAddress)
	assert.True(t, cfg.SwapRate.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, []string{"SOL", "GOLD"}, cfg.PriceSymbols)
	assert.Equal(t, 5*time.Second, cfg.PricePushInterval)
	assert.Equal(t, "goldium-confirmations", cfg.TemporalTaskQueue)
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://localhost/goldium")
	t.Setenv("SOLANA_RPC_URLS", " https://e1.example , ,https://e2.example,https://e3.example")
	t.Setenv("RPC_MAX_ATTEMPTS", "3")
	t.Setenv("BALANCE_POLL_INTERVAL", "10s")
	t.Setenv("SWAP_RATE", "1250.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/goldium", cfg.DatabaseURL)
	assert.Equal(t, []string{"https://e1.example", "https://e2.example", "https://e3.example"}, cfg.SolanaRPCURLs)
	assert.Equal(t, 3, cfg.RPCMaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.BalancePollInterval)
	assert.Equal(t, "1250.5", cfg.SwapRate.String())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{name: "bad duration", key: "BALANCE_POLL_INTERVAL", value: "soon", wantErr: "invalid duration"},
		{name: "bad integer", key: "CONFIRM_MAX_ATTEMPTS", value: "many", wantErr: "invalid integer"},
		{name: "bad swap rate", key: "SWAP_RATE", value: "abc", wantErr: "SWAP_RATE"},
		{name: "empty endpoint list", key: "SOLANA_RPC_URLS", value: " , ", wantErr: "at least one endpoint"},
		{name: "poll interval too short", key: "BALANCE_POLL_INTERVAL", value: "100ms", wantErr: "BalancePollInterval"},
		{name: "zero attempts", key: "RPC_MAX_ATTEMPTS", value: "0", wantErr: "RPCMaxAttempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SolanaRPCURLs")
	assert.Contains(t, err.Error(), "GoldMintAddress")
	assert.Contains(t, err.Error(), "SwapRate")
	assert.Contains(t, err.Error(), "TemporalHost")
}

func TestMustLoad_Panics(t *testing.T) {
	t.Setenv("RPC_MAX_ATTEMPTS", "-1")

	assert.Panics(t, func() {
		MustLoad()
	})
}
