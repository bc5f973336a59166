// Package session wires the wallet layer into one object: the store, the
// connector, the balance poller, the ledger and the submitter.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/goldium-labs/goldium/service/balance"
	"github.com/goldium-labs/goldium/service/ledger"
	"github.com/goldium-labs/goldium/service/metrics"
	chain "github.com/goldium-labs/goldium/service/solana"
	"github.com/goldium-labs/goldium/service/submit"
	"github.com/goldium-labs/goldium/service/wallet"
	"github.com/goldium-labs/goldium/service/wallet/connector"
)

// Config groups the settings of every component.
type Config struct {
	Connector connector.Config
	Poller    balance.Config
	Submit    submit.Config
}

// Session is the application context for one user. Share it by pointer.
type Session struct {
	Store     *wallet.Store
	Connector *connector.Connector
	Poller    *balance.Poller
	Ledger    *ledger.Ledger
	Submitter *submit.Submitter

	logger *slog.Logger

	mu     sync.Mutex
	base   context.Context
	cancel context.CancelFunc
}

// New wires a session over an RPC client and a ledger repository. If
// metrics is nil, no metrics will be recorded.
func New(client *chain.Client, repo *ledger.Repository, globals connector.Globals, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	store := wallet.NewStore(nil)
	conn := connector.New(store, globals, cfg.Connector, m, logger)
	l := ledger.New(repo)
	poller := balance.NewPoller(client, store, l, cfg.Poller, m, logger)
	sub := submit.New(client, store, conn, l, cfg.Submit, m, logger)
	sub.SetNudger(poller)

	base, cancel := context.WithCancel(context.Background())
	return &Session{
		Store:     store,
		Connector: conn,
		Poller:    poller,
		Ledger:    l,
		Submitter: sub,
		logger:    logger.With("component", "session"),
		base:      base,
		cancel:    cancel,
	}
}

// Connect connects kind, loads its ledger and starts balance polling.
func (s *Session) Connect(ctx context.Context, kind wallet.Kind) (connector.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.Connector.Connect(ctx, kind)
	if err != nil {
		// A failed switch has already dropped the previous wallet.
		if !s.Store.State().Connected {
			s.Poller.Stop()
			_ = s.Ledger.SetActiveWallet(ctx, "")
		}
		return connector.Connection{}, err
	}
	if s.Ledger.ActiveWallet() == conn.Address && s.Poller.Running() {
		return conn, nil
	}

	s.Poller.Stop()
	if err := s.Ledger.SetActiveWallet(ctx, conn.Address); err != nil {
		s.Connector.Disconnect(ctx)
		return connector.Connection{}, fmt.Errorf("failed to load ledger: %w", err)
	}
	s.Poller.Start(s.base)
	s.logger.InfoContext(ctx, "session connected", "wallet", kind, "address", conn.Address)
	return conn, nil
}

// Disconnect stops polling, disconnects the wallet and unloads its ledger.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Poller.Stop()
	s.Connector.Disconnect(ctx)
	_ = s.Ledger.SetActiveWallet(ctx, "")
	s.logger.InfoContext(ctx, "session disconnected")
}

// Submit runs one transaction for the connected wallet.
func (s *Session) Submit(ctx context.Context, op ledger.TxType, p submit.Params) (submit.Result, error) {
	return s.Submitter.Submit(ctx, op, p)
}

// SetTracker hands transactions that outlive the local confirmation budget
// to t.
func (s *Session) SetTracker(t submit.ConfirmationTracker) {
	s.Submitter.SetTracker(t)
}

// State returns the wallet state.
func (s *Session) State() wallet.State {
	return s.Store.State()
}

// Close disconnects and releases background work.
func (s *Session) Close(ctx context.Context) {
	s.Disconnect(ctx)
	s.cancel()
}
