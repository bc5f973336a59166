package wallet

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return pk.PublicKey()
}

func TestStore_ConnectLifecycle(t *testing.T) {
	store := NewStore(fixedClock())
	key := newKey(t)

	s, err := store.Dispatch(ConnectStarted{Kind: Phantom})
	require.NoError(t, err)
	assert.True(t, s.Connecting)
	assert.False(t, s.Connected)

	s, err = store.Dispatch(ConnectSucceeded{Kind: Phantom, PublicKey: key})
	require.NoError(t, err)
	assert.True(t, s.Connected)
	assert.False(t, s.Connecting)
	assert.Equal(t, key.String(), s.Address)
	assert.Equal(t, Phantom, s.SelectedWallet)
	assert.False(t, s.LastUpdated.IsZero())

	s, err = store.Dispatch(BalanceObserved{Address: key.String(), Lamports: 2_500_000_000, ObservedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 2.5, s.Balance)

	s, err = store.Dispatch(Disconnected{})
	require.NoError(t, err)
	assert.False(t, s.Connected)
	assert.Empty(t, s.Address)
	assert.Zero(t, s.Balance)
	assert.True(t, s.PublicKey.IsZero())
}

func TestStore_RejectsInvalidTransitions(t *testing.T) {
	store := NewStore(fixedClock())
	key := newKey(t)

	tests := []struct {
		name   string
		action Action
	}{
		{name: "nil action", action: nil},
		{name: "connect without key", action: ConnectSucceeded{Kind: Phantom}},
		{name: "connect without kind", action: ConnectSucceeded{PublicKey: key}},
		{name: "balance while disconnected", action: BalanceObserved{Address: key.String(), Lamports: 1}},
		{name: "start without kind", action: ConnectStarted{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := store.State()
			_, err := store.Dispatch(tt.action)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.Equal(t, before, store.State())
		})
	}
}

func TestStore_BalanceLastWriteWins(t *testing.T) {
	store := NewStore(fixedClock())
	key := newKey(t)
	_, err := store.Dispatch(ConnectSucceeded{Kind: Solflare, PublicKey: key})
	require.NoError(t, err)

	newer := time.Now()
	older := newer.Add(-time.Second)

	_, err = store.Dispatch(BalanceObserved{Address: key.String(), Lamports: 1_000_000_000, ObservedAt: newer})
	require.NoError(t, err)

	_, err = store.Dispatch(BalanceObserved{Address: key.String(), Lamports: 5_000_000_000, ObservedAt: older})
	require.Error(t, err)
	assert.Equal(t, 1.0, store.State().Balance)
}

func TestStore_StaleAddressIgnored(t *testing.T) {
	store := NewStore(fixedClock())
	first := newKey(t)
	second := newKey(t)

	_, err := store.Dispatch(ConnectSucceeded{Kind: Phantom, PublicKey: first})
	require.NoError(t, err)
	_, err = store.Dispatch(ConnectSucceeded{Kind: Phantom, PublicKey: second})
	require.NoError(t, err)

	_, err = store.Dispatch(BalanceObserved{Address: first.String(), Lamports: 42, ObservedAt: time.Now()})
	require.Error(t, err)
	assert.Zero(t, store.State().Lamports)
}

func TestStore_SubscribersSeeEveryChangeInOrder(t *testing.T) {
	store := NewStore(fixedClock())
	key := newKey(t)

	var got []bool
	unsubscribe := store.Subscribe(func(s State) {
		got = append(got, s.Connected)
		// Reading state from a listener must not deadlock.
		_ = store.State()
	})

	_, _ = store.Dispatch(ConnectStarted{Kind: Backpack})
	_, _ = store.Dispatch(ConnectSucceeded{Kind: Backpack, PublicKey: key})
	_, _ = store.Dispatch(Disconnected{})
	assert.Equal(t, []bool{false, true, false}, got)

	unsubscribe()
	unsubscribe()
	_, _ = store.Dispatch(ConnectStarted{Kind: Backpack})
	assert.Len(t, got, 3)
}

func TestStore_ConcurrentDispatch(t *testing.T) {
	store := NewStore(nil)
	key := newKey(t)
	_, err := store.Dispatch(ConnectSucceeded{Kind: Trust, PublicKey: key})
	require.NoError(t, err)

	var mu sync.Mutex
	var last uint64
	var outOfOrder bool
	store.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		if s.Lamports < last {
			outOfOrder = true
		}
		last = s.Lamports
	})

	base := time.Now()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.Dispatch(BalanceObserved{
				Address:    key.String(),
				Lamports:   uint64(i),
				ObservedAt: base.Add(time.Duration(i) * time.Millisecond),
			})
		}(i)
	}
	wg.Wait()

	assert.False(t, outOfOrder, "observers must see a monotonic sequence")
	assert.Equal(t, uint64(50), store.State().Lamports)
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("send: %w", NewError(KindUserRejected, "sign", errors.New("code 4001")))

	assert.True(t, errors.Is(err, ErrUserRejected))
	assert.False(t, errors.Is(err, ErrRPCUnavailable))
	assert.Equal(t, KindUserRejected, KindOf(err))
	assert.Contains(t, err.Error(), "user_rejected")
	assert.Equal(t, "Request was rejected in the wallet.", Message(err))
	assert.Equal(t, "Something went wrong.", Message(errors.New("boom")))
	assert.Empty(t, Message(nil))
}

func TestParseKindAndAddress(t *testing.T) {
	k, err := ParseKind(" Phantom ")
	require.NoError(t, err)
	assert.Equal(t, Phantom, k)

	_, err = ParseKind("metamask")
	assert.ErrorIs(t, err, ErrProviderNotFound)

	key := newKey(t)
	parsed, err := ParseAddress(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	for _, bad := range []string{"", "0OIl", "abc", key.String() + "1"} {
		_, err := ParseAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, bad)
	}
}
