package ledger

import (
	"context"
	"sync"

	"github.com/goldium-labs/goldium/service/wallet"
	"github.com/shopspring/decimal"
)

// Ledger is the session's view of the active wallet's book. Switching the
// active wallet replaces the whole working set.
type Ledger struct {
	repo *Repository

	mu      sync.RWMutex
	address string
	book    Book
	staking StakingInfo
}

// New creates a ledger with no active wallet.
func New(repo *Repository) *Ledger {
	l := &Ledger{repo: repo}
	l.reset("")
	return l
}

func (l *Ledger) reset(address string) {
	l.address = address
	l.book = Book{Transactions: []Record{}, GoldBalance: decimal.Zero, StakedGoldBalance: decimal.Zero}
	l.staking = StakingInfo{StakedAmount: decimal.Zero}
}

// SetActiveWallet loads the persisted book of address. An empty address
// clears the working set.
func (l *Ledger) SetActiveWallet(ctx context.Context, address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if address == "" {
		l.reset("")
		return nil
	}
	book, err := l.repo.Load(ctx, address)
	if err != nil {
		l.reset("")
		return err
	}
	staking, err := l.repo.LoadStaking(ctx, address)
	if err != nil {
		l.reset("")
		return err
	}
	l.address, l.book, l.staking = address, book, staking
	return nil
}

// ActiveWallet returns the address whose book is loaded.
func (l *Ledger) ActiveWallet() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.address
}

// Record appends rec to the active wallet's history.
func (l *Ledger) Record(ctx context.Context, rec Record) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.address == "" {
		return Record{}, wallet.Errorf(wallet.KindNotConnected, "record transaction", "no active wallet")
	}
	stored, book, err := l.repo.Record(ctx, l.address, rec)
	if err != nil {
		return Record{}, err
	}
	l.book = book
	l.refreshStaking(ctx, stored)
	return stored, nil
}

// UpdateStatus sets the status of the record with signature sig.
func (l *Ledger) UpdateStatus(ctx context.Context, sig string, status Status) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.address == "" {
		return Record{}, wallet.Errorf(wallet.KindNotConnected, "update status", "no active wallet")
	}
	updated, book, err := l.repo.UpdateStatus(ctx, l.address, sig, status)
	if err != nil {
		return Record{}, err
	}
	l.book = book
	l.refreshStaking(ctx, updated)
	return updated, nil
}

// Reconcile overwrites the GOLD balance with the chain value. Observations
// for a wallet other than the active one are ignored.
func (l *Ledger) Reconcile(ctx context.Context, address string, gold decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if address == "" || address != l.address {
		return nil
	}
	book, err := l.repo.Reconcile(ctx, address, gold)
	if err != nil {
		return err
	}
	l.book = book
	return nil
}

// ObserveTokenBalance feeds poller token readings into Reconcile.
func (l *Ledger) ObserveTokenBalance(ctx context.Context, address string, amount decimal.Decimal) {
	if err := l.Reconcile(ctx, address, amount); err != nil {
		l.repo.logger.WarnContext(ctx, "failed to reconcile gold balance", "address", address, "error", err)
	}
}

// ClearHistory drops the active wallet's records.
func (l *Ledger) ClearHistory(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.address == "" {
		return wallet.Errorf(wallet.KindNotConnected, "clear history", "no active wallet")
	}
	book, err := l.repo.ClearHistory(ctx, l.address)
	if err != nil {
		return err
	}
	l.book = book
	return nil
}

// Transactions returns the active wallet's records, newest first.
func (l *Ledger) Transactions() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Record(nil), l.book.Transactions...)
}

// Balances returns the active wallet's derived balances.
func (l *Ledger) Balances() Balances {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.book.Balances()
}

// Staking returns the active wallet's staking metadata.
func (l *Ledger) Staking() StakingInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.staking
}

func (l *Ledger) refreshStaking(ctx context.Context, rec Record) {
	if rec.Type != TypeStake && rec.Type != TypeUnstake {
		return
	}
	if info, err := l.repo.LoadStaking(ctx, l.address); err == nil {
		l.staking = info
	}
}
