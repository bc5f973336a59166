// Package balance keeps the wallet store's native balance fresh and feeds
// observed GOLD balances to the ledger.
package balance

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/goldium-labs/goldium/service/metrics"
	chain "github.com/goldium-labs/goldium/service/solana"
	"github.com/goldium-labs/goldium/service/wallet"
	"github.com/shopspring/decimal"
)

// TokenObserver receives every successfully fetched GOLD balance.
type TokenObserver interface {
	ObserveTokenBalance(ctx context.Context, address string, amount decimal.Decimal)
}

// Config controls polling cadence.
type Config struct {
	Interval   time.Duration
	MaxBackoff time.Duration
	// Jitter is the backoff randomization factor. Negative disables jitter.
	Jitter   float64
	GoldMint solana.PublicKey
	Now      func() time.Time
}

// Poller refreshes the connected wallet's balances on a fixed interval,
// backing off while the cluster is unreachable.
type Poller struct {
	client   *chain.Client
	store    *wallet.Store
	observer TokenObserver
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger

	nudge chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller. observer and metrics may be nil.
func NewPoller(client *chain.Client, store *wallet.Store, observer TokenObserver, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = 10 * cfg.Interval
	}
	if cfg.Jitter == 0 {
		cfg.Jitter = backoff.DefaultRandomizationFactor
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:   client,
		store:    store,
		observer: observer,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With("component", "balance_poller"),
		nudge:    make(chan struct{}, 1),
	}
}

// FetchNativeBalance returns the SOL balance of address.
func (p *Poller) FetchNativeBalance(ctx context.Context, address string) (float64, error) {
	owner, err := wallet.ParseAddress(address)
	if err != nil {
		return 0, err
	}
	lamports, err := p.client.NativeBalance(ctx, owner)
	if err != nil {
		return 0, err
	}
	return wallet.LamportsToSOL(lamports), nil
}

// FetchTokenBalance returns address's balance of mint. A wallet that has
// never held the token has a balance of 0.
func (p *Poller) FetchTokenBalance(ctx context.Context, address, mint string) (float64, error) {
	amount, err := p.fetchToken(ctx, address, mint)
	if err != nil {
		return 0, err
	}
	return amount.InexactFloat64(), nil
}

func (p *Poller) fetchToken(ctx context.Context, address, mint string) (decimal.Decimal, error) {
	owner, err := wallet.ParseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	mintKey, err := wallet.ParseAddress(mint)
	if err != nil {
		return decimal.Zero, err
	}
	amount, exists, err := p.client.TokenBalance(ctx, owner, mintKey)
	if err != nil {
		return decimal.Zero, err
	}
	ui := decimal.Zero
	if exists {
		ui = amount.UI
	}
	if p.observer != nil && mintKey.Equals(p.cfg.GoldMint) {
		p.observer.ObserveTokenBalance(ctx, address, ui)
	}
	return ui, nil
}

// Refresh runs one polling tick for the connected wallet. A failed tick
// leaves the store untouched.
func (p *Poller) Refresh(ctx context.Context) error {
	state := p.store.State()
	if !state.Connected {
		return wallet.Errorf(wallet.KindNotConnected, "refresh balance", "no wallet connected")
	}

	observedAt := p.cfg.Now()
	lamports, err := p.client.NativeBalance(ctx, state.PublicKey)
	if err != nil {
		return err
	}
	_, err = p.store.Dispatch(wallet.BalanceObserved{
		Address:    state.Address,
		Lamports:   lamports,
		ObservedAt: observedAt,
	})
	if err != nil {
		// The wallet changed or a newer read landed first.
		p.logger.DebugContext(ctx, "dropped stale balance", "address", state.Address, "error", err)
	}

	if p.cfg.GoldMint.IsZero() {
		return nil
	}
	if _, err := p.fetchToken(ctx, state.Address, p.cfg.GoldMint.String()); err != nil {
		return err
	}
	return nil
}

// Start begins polling until Stop is called or ctx is done. Starting a
// running poller restarts it.
func (p *Poller) Start(ctx context.Context) {
	p.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		p.run(ctx)
	}()
	p.logger.Info("balance polling started", "interval", p.cfg.Interval)
}

// Stop halts polling and waits for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("balance polling stopped")
}

// Running reports whether the polling loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Nudge asks the loop for an immediate refresh. It never blocks.
func (p *Poller) Nudge() {
	select {
	case p.nudge <- struct{}{}:
	default:
	}
}

func (p *Poller) run(ctx context.Context) {
	sched := newSchedule(p.cfg)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.nudge:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		err := p.Refresh(ctx)
		if ctx.Err() != nil {
			return
		}
		next := sched.next(err)
		status := "success"
		if err != nil {
			status = "error"
			p.logger.WarnContext(ctx, "balance refresh failed", "error", err, "retry_in", next)
		}
		if p.metrics != nil {
			p.metrics.RecordBalancePoll(status, next.Seconds())
		}
		timer.Reset(next)
	}
}

// schedule picks the delay before the next tick: the fixed interval after a
// success, a growing jittered delay after consecutive failures.
type schedule struct {
	interval time.Duration
	max      time.Duration
	bo       *backoff.ExponentialBackOff
	failing  bool
}

func newSchedule(cfg Config) *schedule {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.Interval
	bo.MaxInterval = cfg.MaxBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = cfg.Jitter
	bo.MaxElapsedTime = 0
	bo.Reset()
	return &schedule{interval: cfg.Interval, max: cfg.MaxBackoff, bo: bo}
}

func (s *schedule) next(err error) time.Duration {
	if err == nil || errors.Is(err, wallet.ErrNotConnected) {
		if s.failing {
			s.bo.Reset()
			s.failing = false
		}
		return s.interval
	}
	s.failing = true
	d := s.bo.NextBackOff()
	if d == backoff.Stop || d > s.max {
		d = s.max
	}
	return d
}
