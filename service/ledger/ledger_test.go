package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/goldium-labs/goldium/service/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []Change
}

func (n *recordingNotifier) LedgerChanged(_ context.Context, c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
}

func (n *recordingNotifier) actions() []ChangeAction {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]ChangeAction, len(n.changes))
	for i, c := range n.changes {
		out[i] = c.Action
	}
	return out
}

func newAddress() string {
	return solana.NewWallet().PublicKey().String()
}

func TestLedger_SwitchingWalletsReplacesWorkingSet(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStorage(), nil, nil, discardLogger())
	l := New(repo)
	a, b := newAddress(), newAddress()

	require.NoError(t, l.SetActiveWallet(ctx, a))
	_, err := l.Record(ctx, Record{Type: TypeSwap, Signature: "sa", FromToken: TokenSOL, ToToken: TokenGOLD, FromAmount: d("1"), ToAmount: d("1000"), Status: StatusConfirmed})
	require.NoError(t, err)
	assertDecimal(t, "1000", l.Balances().Gold)

	require.NoError(t, l.SetActiveWallet(ctx, b))
	assert.Empty(t, l.Transactions())
	assertDecimal(t, "0", l.Balances().Gold)
	assertDecimal(t, "0", l.Balances().StakedGold)

	_, err = l.Record(ctx, Record{Type: TypeSend, Signature: "sb", FromToken: TokenSOL, FromAmount: d("0.1"), Status: StatusPending})
	require.NoError(t, err)

	require.NoError(t, l.SetActiveWallet(ctx, a))
	txs := l.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "sa", txs[0].Signature)
	assertDecimal(t, "1000", l.Balances().Gold)
}

func TestLedger_RoundTripThroughFileStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	require.NoError(t, err)
	address := newAddress()

	l := New(NewRepository(storage, nil, nil, discardLogger()))
	require.NoError(t, l.SetActiveWallet(ctx, address))

	in := Record{
		ID:               "fixed-id",
		Type:             TypeSend,
		Signature:        "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7",
		Timestamp:        time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC),
		FromToken:        TokenGOLD,
		FromAmount:       d("12.345678"),
		RecipientAddress: newAddress(),
		Status:           StatusPending,
	}
	stored, err := l.Record(ctx, in)
	require.NoError(t, err)

	// A fresh process sees exactly the same record.
	storage2, err := NewFileStorage(dir)
	require.NoError(t, err)
	l2 := New(NewRepository(storage2, nil, nil, discardLogger()))
	require.NoError(t, l2.SetActiveWallet(ctx, address))

	txs := l2.Transactions()
	require.Len(t, txs, 1)
	got := txs[0]
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, stored.Type, got.Type)
	assert.Equal(t, stored.Signature, got.Signature)
	assert.True(t, stored.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, stored.FromToken, got.FromToken)
	assert.True(t, stored.FromAmount.Equal(got.FromAmount))
	assert.True(t, stored.ToAmount.Equal(got.ToAmount))
	assert.Equal(t, stored.RecipientAddress, got.RecipientAddress)
	assert.Equal(t, stored.Status, got.Status)
	assert.Equal(t, stored.EffectApplied, got.EffectApplied)
}

func TestLedger_UpdateStatusAndStaking(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	l := New(NewRepository(NewMemoryStorage(), notifier, nil, discardLogger()))
	address := newAddress()
	require.NoError(t, l.SetActiveWallet(ctx, address))
	require.NoError(t, l.Reconcile(ctx, address, d("100")))

	_, err := l.Record(ctx, Record{Type: TypeStake, Signature: "stake1", FromToken: TokenGOLD, FromAmount: d("40"), Status: StatusPending})
	require.NoError(t, err)
	assertDecimal(t, "100", l.Balances().Gold)
	assertDecimal(t, "0", l.Staking().StakedAmount)

	r, err := l.UpdateStatus(ctx, "stake1", StatusConfirmed)
	require.NoError(t, err)
	assert.True(t, r.EffectApplied)
	assertDecimal(t, "60", l.Balances().Gold)
	assertDecimal(t, "40", l.Balances().StakedGold)
	assertDecimal(t, "40", l.Staking().StakedAmount)
	assert.NotNil(t, l.Staking().StakedAt)

	_, err = l.UpdateStatus(ctx, "stake1", StatusConfirmed)
	require.NoError(t, err)
	assertDecimal(t, "40", l.Balances().StakedGold)

	_, err = l.UpdateStatus(ctx, "missing", StatusConfirmed)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	assert.Equal(t, []ChangeAction{ActionReconciled, ActionRecorded, ActionStatus, ActionStatus}, notifier.actions())
}

func TestLedger_ReconcileIgnoresOtherWallets(t *testing.T) {
	ctx := context.Background()
	l := New(NewRepository(NewMemoryStorage(), nil, nil, discardLogger()))
	active := newAddress()
	require.NoError(t, l.SetActiveWallet(ctx, active))

	l.ObserveTokenBalance(ctx, newAddress(), d("999"))
	assertDecimal(t, "0", l.Balances().Gold)

	l.ObserveTokenBalance(ctx, active, d("7"))
	assertDecimal(t, "7", l.Balances().Gold)
}

func TestLedger_ClearHistory(t *testing.T) {
	ctx := context.Background()
	l := New(NewRepository(NewMemoryStorage(), nil, nil, discardLogger()))
	address := newAddress()
	require.NoError(t, l.SetActiveWallet(ctx, address))

	_, err := l.Record(ctx, Record{Type: TypeSwap, Signature: "s", FromToken: TokenSOL, ToToken: TokenGOLD, ToAmount: d("5"), Status: StatusConfirmed})
	require.NoError(t, err)

	require.NoError(t, l.ClearHistory(ctx))
	assert.Empty(t, l.Transactions())
	assertDecimal(t, "5", l.Balances().Gold)
}

func TestLedger_RequiresActiveWallet(t *testing.T) {
	ctx := context.Background()
	l := New(NewRepository(NewMemoryStorage(), nil, nil, discardLogger()))

	_, err := l.Record(ctx, Record{Type: TypeSend, Signature: "s", Status: StatusPending})
	assert.ErrorIs(t, err, wallet.ErrNotConnected)
	assert.ErrorIs(t, l.ClearHistory(ctx), wallet.ErrNotConnected)

	err = l.SetActiveWallet(ctx, "not-an-address")
	assert.ErrorIs(t, err, wallet.ErrInvalidAddress)
	assert.Empty(t, l.ActiveWallet())

	require.NoError(t, l.SetActiveWallet(ctx, newAddress()))
	require.NoError(t, l.SetActiveWallet(ctx, ""))
	assert.Empty(t, l.ActiveWallet())
}

func TestRepository_ConcurrentUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	repo := NewRepository(storage, nil, nil, discardLogger())
	address := newAddress()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := repo.Record(ctx, address, Record{
				Type:      TypeSwap,
				Signature: fmt.Sprintf("sig-%d", i),
				FromToken: TokenSOL,
				ToToken:   TokenGOLD,
				ToAmount:  d("1"),
				Status:    StatusConfirmed,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	book, err := repo.Load(ctx, address)
	require.NoError(t, err)
	assert.Len(t, book.Transactions, 20)
	assertDecimal(t, "20", book.GoldBalance)
}

// countingStorage counts updates that reached the underlying store.
type countingStorage struct {
	Storage
	mu     sync.Mutex
	writes int
}

func (c *countingStorage) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	return c.Storage.Update(ctx, key, func(current []byte) ([]byte, error) {
		next, err := fn(current)
		if err == nil {
			c.mu.Lock()
			c.writes++
			c.mu.Unlock()
		}
		return next, err
	})
}

func TestRepository_ReconcileSkipsUnchangedBalance(t *testing.T) {
	ctx := context.Background()
	storage := &countingStorage{Storage: NewMemoryStorage()}
	notifier := &recordingNotifier{}
	repo := NewRepository(storage, notifier, nil, discardLogger())
	address := newAddress()

	book, err := repo.Reconcile(ctx, address, d("25"))
	require.NoError(t, err)
	assertDecimal(t, "25", book.GoldBalance)
	assert.Equal(t, 1, storage.writes)

	for i := 0; i < 3; i++ {
		book, err = repo.Reconcile(ctx, address, d("25.0"))
		require.NoError(t, err)
		assertDecimal(t, "25", book.GoldBalance)
	}
	assert.Equal(t, 1, storage.writes)
	assert.Equal(t, []ChangeAction{ActionReconciled}, notifier.actions())

	book, err = repo.Reconcile(ctx, address, d("24"))
	require.NoError(t, err)
	assertDecimal(t, "24", book.GoldBalance)
	assert.Equal(t, 2, storage.writes)

	loaded, err := repo.Load(ctx, address)
	require.NoError(t, err)
	assertDecimal(t, "24", loaded.GoldBalance)
}
