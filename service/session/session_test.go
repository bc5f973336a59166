package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/goldium-labs/goldium/service/balance"
	"github.com/goldium-labs/goldium/service/ledger"
	chain "github.com/goldium-labs/goldium/service/solana"
	"github.com/goldium-labs/goldium/service/submit"
	"github.com/goldium-labs/goldium/service/wallet"
	"github.com/goldium-labs/goldium/service/wallet/connector"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	session  *Session
	fake     *chain.FakeRPC
	repo     *ledger.Repository
	phantom  *connector.Keypair
	solflare *connector.Keypair
	gold     solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := discardLogger()
	globals := connector.Globals{}
	phantom := connector.NewKeypair(solana.NewWallet().PrivateKey)
	solflare := connector.NewKeypair(solana.NewWallet().PrivateKey)
	require.NoError(t, connector.InjectKeypair(globals, wallet.Phantom, phantom))
	require.NoError(t, connector.InjectKeypair(globals, wallet.Solflare, solflare))

	fake := chain.NewFakeRPC()
	repo := ledger.NewRepository(ledger.NewMemoryStorage(), nil, nil, logger)
	gold := solana.NewWallet().PublicKey()
	s := New(chain.NewFakeClient(logger, fake), repo, globals, Config{
		Poller: balance.Config{Interval: time.Hour, GoldMint: gold},
		Submit: submit.Config{GoldMint: gold, GoldDecimals: 6, PollInterval: time.Millisecond, MaxAttempts: 2},
	}, nil, logger)
	t.Cleanup(func() { s.Close(context.Background()) })

	return &fixture{session: s, fake: fake, repo: repo, phantom: phantom, solflare: solflare, gold: gold}
}

func TestSession_ConnectLoadsLedgerAndPolls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.phantom.PublicKey()
	f.fake.SetBalance(owner, 4_000_000_000)
	f.fake.SetTokenBalance(owner, f.gold, 12_000_000, 6)

	_, _, err := f.repo.Record(ctx, owner.String(), ledger.Record{
		Type:      ledger.TypeSwap,
		Signature: "earlier",
		FromToken: ledger.TokenSOL,
		ToToken:   ledger.TokenGOLD,
		ToAmount:  decimal.NewFromInt(3),
		Status:    ledger.StatusConfirmed,
	})
	require.NoError(t, err)

	conn, err := f.session.Connect(ctx, wallet.Phantom)
	require.NoError(t, err)
	assert.Equal(t, owner.String(), conn.Address)
	assert.Equal(t, owner.String(), f.session.Ledger.ActiveWallet())
	assert.Len(t, f.session.Ledger.Transactions(), 1)
	assert.True(t, f.session.Poller.Running())

	require.Eventually(t, func() bool { return f.session.State().Balance == 4.0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return f.session.Ledger.Balances().Gold.Equal(decimal.NewFromInt(12))
	}, 2*time.Second, 10*time.Millisecond, "poller reconciles the ledger with the chain")
}

func TestSession_SwitchWalletReplacesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.repo.Record(ctx, f.phantom.PublicKey().String(), ledger.Record{
		Type: ledger.TypeSend, Signature: "p1", FromToken: ledger.TokenSOL, Status: ledger.StatusConfirmed,
	})
	require.NoError(t, err)

	_, err = f.session.Connect(ctx, wallet.Phantom)
	require.NoError(t, err)
	require.Len(t, f.session.Ledger.Transactions(), 1)

	_, err = f.session.Connect(ctx, wallet.Solflare)
	require.NoError(t, err)
	assert.Equal(t, wallet.Solflare, f.session.State().SelectedWallet)
	assert.Equal(t, f.solflare.PublicKey().String(), f.session.Ledger.ActiveWallet())
	assert.Empty(t, f.session.Ledger.Transactions())
	assert.True(t, f.session.Poller.Running())
}

func TestSession_DisconnectStopsPolling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.session.Connect(ctx, wallet.Phantom)
	require.NoError(t, err)
	f.session.Disconnect(ctx)

	assert.False(t, f.session.Poller.Running())
	assert.False(t, f.session.State().Connected)
	assert.Empty(t, f.session.Ledger.ActiveWallet())
	assert.False(t, f.phantom.Connected())
}

func TestSession_FailedConnectLeavesNothingRunning(t *testing.T) {
	f := newFixture(t)
	f.phantom.RejectConnect(true)

	_, err := f.session.Connect(context.Background(), wallet.Phantom)
	assert.ErrorIs(t, err, wallet.ErrUserRejected)
	assert.False(t, f.session.Poller.Running())
	assert.Empty(t, f.session.Ledger.ActiveWallet())
}

func TestSession_FailedSwitchUnloadsPreviousWallet(t *testing.T) {
	tests := []struct {
		name          string
		target        wallet.Kind
		reject        func(f *fixture)
		stayConnected bool
	}{
		{
			name:   "other wallet rejects",
			target: wallet.Solflare,
			reject: func(f *fixture) { f.solflare.RejectConnect(true) },
		},
		{
			name:          "other wallet not installed",
			target:        wallet.Backpack,
			reject:        func(*fixture) {},
			stayConnected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			owner := f.phantom.PublicKey().String()

			_, _, err := f.repo.Record(ctx, owner, ledger.Record{
				Type: ledger.TypeSend, Signature: "p1", FromToken: ledger.TokenSOL, Status: ledger.StatusConfirmed,
			})
			require.NoError(t, err)
			_, err = f.session.Connect(ctx, wallet.Phantom)
			require.NoError(t, err)
			require.True(t, f.session.Poller.Running())

			tt.reject(f)
			_, err = f.session.Connect(ctx, tt.target)
			require.Error(t, err)

			assert.Equal(t, tt.stayConnected, f.session.State().Connected)
			if tt.stayConnected {
				assert.Equal(t, owner, f.session.Ledger.ActiveWallet())
				assert.True(t, f.session.Poller.Running())
				return
			}
			assert.False(t, f.session.Poller.Running())
			assert.Empty(t, f.session.Ledger.ActiveWallet())
			assert.Empty(t, f.session.Ledger.Transactions())
		})
	}
}
