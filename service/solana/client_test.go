package solana

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/goldium-labs/goldium/service/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, fakes ...*FakeRPC) *Client {
	t.Helper()
	return NewClient(newTestPool(t, PoolConfig{}, fakes...), discardLogger())
}

func TestClient_NativeBalance(t *testing.T) {
	fake := NewFakeRPC()
	owner := solana.NewWallet().PublicKey()
	fake.SetBalance(owner, 1_500_000_000)

	client := newTestClient(t, fake)
	got, err := client.NativeBalance(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), got)
}

func TestClient_NativeBalanceUnavailable(t *testing.T) {
	fake := NewFakeRPC()
	fake.Fail(errors.New("dial tcp: connection refused"))

	client := newTestClient(t, fake)
	got, err := client.NativeBalance(context.Background(), solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, wallet.ErrRPCUnavailable)
	assert.Zero(t, got)
}

func TestClient_TokenBalance(t *testing.T) {
	fake := NewFakeRPC()
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	fake.SetTokenBalance(owner, mint, 12_345_678, 6)

	client := newTestClient(t, fake)

	t.Run("existing account", func(t *testing.T) {
		amt, exists, err := client.TokenBalance(context.Background(), owner, mint)
		require.NoError(t, err)
		assert.True(t, exists)
		assert.Equal(t, uint64(12_345_678), amt.Raw)
		assert.Equal(t, uint8(6), amt.Decimals)
		assert.True(t, decimal.RequireFromString("12.345678").Equal(amt.UI), amt.UI.String())
	})

	t.Run("missing account is zero", func(t *testing.T) {
		amt, exists, err := client.TokenBalance(context.Background(), solana.NewWallet().PublicKey(), mint)
		require.NoError(t, err)
		assert.False(t, exists)
		assert.Zero(t, amt.Raw)
	})

	t.Run("rpc failure is an error", func(t *testing.T) {
		fake.Fail(errors.New("timeout"))
		defer fake.Fail(nil)
		_, _, err := client.TokenBalance(context.Background(), owner, mint)
		assert.ErrorIs(t, err, wallet.ErrRPCUnavailable)
	})
}

func TestParseTokenAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		want    uint64
		wantErr string
	}{
		{name: "plain", amount: "12500000", want: 12_500_000},
		{name: "max uint64", amount: "18446744073709551615", want: 18446744073709551615},
		{name: "above max int64", amount: "9223372036854775808", want: 9223372036854775808},
		{name: "overflow", amount: "18446744073709551616", wantErr: "overflows"},
		{name: "negative", amount: "-1", wantErr: "negative"},
		{name: "garbage", amount: "lots", wantErr: "invalid token amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTokenAmount(&rpc.UiTokenAmount{Amount: tt.amount, Decimals: 6})
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Raw)
			assert.Equal(t, uint8(6), got.Decimals)
		})
	}
}

func TestClient_TokenAccounts(t *testing.T) {
	fake := NewFakeRPC()
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	client := newTestClient(t, fake)

	accounts, err := client.TokenAccounts(context.Background(), owner, mint)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	fake.SetTokenBalance(owner, mint, 1, 6)
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)

	accounts, err = client.TokenAccounts(context.Background(), owner, mint)
	require.NoError(t, err)
	assert.Equal(t, []solana.PublicKey{ata}, accounts)
}

func TestClient_SendAndStatus(t *testing.T) {
	fake := NewFakeRPC()
	client := newTestClient(t, fake)
	ctx := context.Background()

	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	to := solana.NewWallet().PublicKey()

	hash, err := client.LatestBlockhash(ctx)
	require.NoError(t, err)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1000, payer.PublicKey(), to).Build()},
		hash,
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	})
	require.NoError(t, err)

	sig, err := client.Send(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0], sig)
	assert.Len(t, fake.Sent(), 1)

	status, err := client.SignatureStatus(ctx, sig)
	require.NoError(t, err)
	assert.False(t, status.Found)
	assert.False(t, status.Confirmed())

	fake.SetStatus(sig, rpc.ConfirmationStatusConfirmed, nil)
	status, err = client.SignatureStatus(ctx, sig)
	require.NoError(t, err)
	assert.True(t, status.Confirmed())
	assert.False(t, status.Failed())

	fake.SetStatus(sig, rpc.ConfirmationStatusFinalized, map[string]any{"InstructionError": []any{0, "Custom"}})
	status, err = client.SignatureStatus(ctx, sig)
	require.NoError(t, err)
	assert.True(t, status.Failed())
	assert.False(t, status.Confirmed())

	parsed, err := client.ParsedTransaction(ctx, sig)
	require.NoError(t, err)
	require.NotNil(t, parsed.Meta)
	assert.Equal(t, uint64(5000), parsed.Meta.Fee)
}
