package wallet

import (
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
)

// State is a snapshot of the connected wallet as seen by the session.
type State struct {
	Connected         bool             `json:"connected"`
	Connecting        bool             `json:"connecting"`
	PublicKey         solana.PublicKey `json:"publicKey"`
	Address           string           `json:"address"`
	Balance           float64          `json:"balance"` // SOL
	Lamports          uint64           `json:"lamports"`
	SelectedWallet    Kind             `json:"selectedWallet"`
	LastUpdated       time.Time        `json:"lastUpdated"`
	BalanceObservedAt time.Time        `json:"balanceObservedAt"`
}

// Action is a typed state transition. The set is closed to this package.
type Action interface {
	apply(s State, now time.Time) (State, error)
}

// ConnectStarted marks a connect handshake as in flight.
type ConnectStarted struct {
	Kind Kind
}

// ConnectSucceeded records the key returned by the provider.
type ConnectSucceeded struct {
	Kind      Kind
	PublicKey solana.PublicKey
}

// ConnectFailed clears the in-flight flag after a failed handshake.
type ConnectFailed struct{}

// BalanceObserved carries a native balance read from the chain at ObservedAt.
type BalanceObserved struct {
	Address    string
	Lamports   uint64
	ObservedAt time.Time
}

// Disconnected resets the state to its defaults.
type Disconnected struct{}

func (a ConnectStarted) apply(s State, now time.Time) (State, error) {
	if a.Kind == "" {
		return s, Errorf(KindInvalidTransition, "connect started", "wallet kind is required")
	}
	s.Connecting = true
	s.LastUpdated = now
	return s, nil
}

func (a ConnectSucceeded) apply(s State, now time.Time) (State, error) {
	if a.PublicKey.IsZero() {
		return s, Errorf(KindInvalidTransition, "connect succeeded", "public key is required")
	}
	if a.Kind == "" {
		return s, Errorf(KindInvalidTransition, "connect succeeded", "wallet kind is required")
	}
	address := a.PublicKey.String()
	if s.Address != address {
		s.Balance = 0
		s.Lamports = 0
		s.BalanceObservedAt = time.Time{}
	}
	s.Connected = true
	s.Connecting = false
	s.PublicKey = a.PublicKey
	s.Address = address
	s.SelectedWallet = a.Kind
	s.LastUpdated = now
	return s, nil
}

func (a ConnectFailed) apply(s State, now time.Time) (State, error) {
	s.Connecting = false
	s.LastUpdated = now
	return s, nil
}

func (a BalanceObserved) apply(s State, now time.Time) (State, error) {
	if !s.Connected || a.Address != s.Address {
		return s, Errorf(KindInvalidTransition, "balance observed", "stale observation for %s", a.Address)
	}
	if a.ObservedAt.Before(s.BalanceObservedAt) {
		return s, Errorf(KindInvalidTransition, "balance observed", "observation at %s is older than %s",
			a.ObservedAt.Format(time.RFC3339Nano), s.BalanceObservedAt.Format(time.RFC3339Nano))
	}
	s.Lamports = a.Lamports
	s.Balance = LamportsToSOL(a.Lamports)
	s.BalanceObservedAt = a.ObservedAt
	s.LastUpdated = now
	return s, nil
}

func (a Disconnected) apply(_ State, now time.Time) (State, error) {
	return State{LastUpdated: now}, nil
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL)
}

// Listener receives every state produced by a successful dispatch.
type Listener func(State)

// Store holds the wallet State and funnels every change through Dispatch.
type Store struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
	now       func() time.Time
}

// NewStore creates an empty store. A nil clock defaults to time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		listeners: make(map[int]Listener),
		now:       now,
	}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies action and notifies every subscriber with the new state.
// Notifications are delivered in mutation order. Listeners must not call
// Dispatch from inside the callback.
func (s *Store) Dispatch(action Action) (State, error) {
	if action == nil {
		return State{}, Errorf(KindInvalidTransition, "dispatch", "nil action")
	}

	s.mu.Lock()
	next, err := action.apply(s.state, s.now())
	if err != nil {
		current := s.state
		s.mu.Unlock()
		return current, err
	}
	s.state = next
	listeners := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	// Taking notifyMu before releasing mu keeps delivery in mutation order.
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return next, nil
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s State) String() string {
	if !s.Connected {
		return "disconnected"
	}
	return fmt.Sprintf("%s %s (%.9f SOL)", s.SelectedWallet, s.Address, s.Balance)
}
