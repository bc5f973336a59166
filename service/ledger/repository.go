package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goldium-labs/goldium/service/metrics"
	"github.com/goldium-labs/goldium/service/wallet"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Notifier is told about every persisted change. Implementations must not
// block for long; failures are theirs to log.
type Notifier interface {
	LedgerChanged(ctx context.Context, change Change)
}

// Repository performs atomic read-modify-write operations on wallet books.
// It is safe for concurrent use by the session, the HTTP API and the
// confirmation worker.
type Repository struct {
	storage  Storage
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewRepository creates a repository over storage. notifier and metrics
// may be nil.
func NewRepository(storage Storage, notifier Notifier, m *metrics.Metrics, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		storage:  storage,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With("component", "ledger"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Load returns the persisted book of address, or an empty book.
func (r *Repository) Load(ctx context.Context, address string) (Book, error) {
	if _, err := wallet.ParseAddress(address); err != nil {
		return Book{}, err
	}
	data, err := r.storage.Get(ctx, WalletKey(address))
	if errors.Is(err, ErrNotFound) {
		return decodeBook(nil)
	}
	if err != nil {
		return Book{}, fmt.Errorf("failed to load ledger: %w", err)
	}
	return decodeBook(data)
}

// LoadStaking returns the persisted staking metadata of address.
func (r *Repository) LoadStaking(ctx context.Context, address string) (StakingInfo, error) {
	if _, err := wallet.ParseAddress(address); err != nil {
		return StakingInfo{}, err
	}
	data, err := r.storage.Get(ctx, StakingKey(address))
	if errors.Is(err, ErrNotFound) {
		return StakingInfo{StakedAmount: decimal.Zero}, nil
	}
	if err != nil {
		return StakingInfo{}, fmt.Errorf("failed to load staking info: %w", err)
	}
	var info StakingInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return StakingInfo{}, fmt.Errorf("failed to decode staking info: %w", err)
	}
	return info, nil
}

// Record adds rec to the book of address. Missing IDs and timestamps are
// filled in.
func (r *Repository) Record(ctx context.Context, address string, rec Record) (Record, Book, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}

	var stored Record
	book, err := r.mutate(ctx, address, func(b *Book) error {
		var err error
		stored, err = b.Record(rec)
		return err
	})
	if err != nil {
		return Record{}, Book{}, err
	}

	if stored.EffectApplied {
		r.syncStaking(ctx, address, stored, book)
	}
	if r.metrics != nil {
		r.metrics.RecordLedgerRecord(string(stored.Type), string(stored.Status))
	}
	r.logger.InfoContext(ctx, "recorded transaction",
		"address", address,
		"signature", stored.Signature,
		"type", stored.Type,
		"status", stored.Status,
	)
	r.notify(ctx, Change{Action: ActionRecorded, Address: address, Record: &stored, Book: book})
	return stored, book, nil
}

// UpdateStatus changes the status of the record with signature sig.
func (r *Repository) UpdateStatus(ctx context.Context, address, sig string, status Status) (Record, Book, error) {
	var (
		updated      Record
		newlyApplied bool
	)
	book, err := r.mutate(ctx, address, func(b *Book) error {
		before, ok := b.Find(sig)
		if !ok {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, sig)
		}
		var err error
		updated, err = b.UpdateStatus(sig, status)
		newlyApplied = updated.EffectApplied && !before.EffectApplied
		return err
	})
	if err != nil {
		return Record{}, Book{}, err
	}

	if newlyApplied {
		r.syncStaking(ctx, address, updated, book)
	}
	if r.metrics != nil {
		r.metrics.RecordLedgerRecord(string(updated.Type), string(updated.Status))
	}
	r.logger.InfoContext(ctx, "updated transaction status",
		"address", address,
		"signature", sig,
		"status", status,
		"effect_applied", newlyApplied,
	)
	r.notify(ctx, Change{Action: ActionStatus, Address: address, Record: &updated, Book: book})
	return updated, book, nil
}

// errUnchanged aborts a storage update that would write the same book back.
var errUnchanged = errors.New("book unchanged")

// Reconcile overwrites the GOLD balance of address with the chain value.
// Nothing is written when the balance already matches.
func (r *Repository) Reconcile(ctx context.Context, address string, gold decimal.Decimal) (Book, error) {
	var current Book
	book, err := r.mutate(ctx, address, func(b *Book) error {
		if b.GoldBalance.Equal(clamp(gold)) {
			current = *b
			return errUnchanged
		}
		b.Reconcile(gold)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return current, nil
	}
	if err != nil {
		return Book{}, err
	}
	r.logger.DebugContext(ctx, "reconciled gold balance", "address", address, "gold", book.GoldBalance.String())
	r.notify(ctx, Change{Action: ActionReconciled, Address: address, Book: book})
	return book, nil
}

// ClearHistory removes every record of address.
func (r *Repository) ClearHistory(ctx context.Context, address string) (Book, error) {
	book, err := r.mutate(ctx, address, func(b *Book) error {
		b.ClearHistory()
		return nil
	})
	if err != nil {
		return Book{}, err
	}
	r.logger.InfoContext(ctx, "cleared transaction history", "address", address)
	r.notify(ctx, Change{Action: ActionCleared, Address: address, Book: book})
	return book, nil
}

func (r *Repository) mutate(ctx context.Context, address string, fn func(*Book) error) (Book, error) {
	if _, err := wallet.ParseAddress(address); err != nil {
		return Book{}, err
	}
	var out Book
	err := r.storage.Update(ctx, WalletKey(address), func(current []byte) ([]byte, error) {
		book, err := decodeBook(current)
		if err != nil {
			return nil, err
		}
		if err := fn(&book); err != nil {
			return nil, err
		}
		out = book
		return encodeBook(book)
	})
	if err != nil {
		return Book{}, err
	}
	return out, nil
}

// syncStaking mirrors the staked balance into the staking key after a
// stake or unstake took effect.
func (r *Repository) syncStaking(ctx context.Context, address string, rec Record, book Book) {
	if rec.Type != TypeStake && rec.Type != TypeUnstake {
		return
	}
	now := r.now()
	err := r.storage.Update(ctx, StakingKey(address), func(current []byte) ([]byte, error) {
		info := StakingInfo{}
		if current != nil {
			if err := json.Unmarshal(current, &info); err != nil {
				return nil, fmt.Errorf("failed to decode staking info: %w", err)
			}
		}
		info.StakedAmount = book.StakedGoldBalance
		info.LastUpdated = now
		switch {
		case info.StakedAmount.IsZero():
			info.StakedAt = nil
		case rec.Type == TypeStake:
			info.StakedAt = &now
		}
		return json.Marshal(info)
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to update staking info", "address", address, "error", err)
	}
}

func (r *Repository) notify(ctx context.Context, c Change) {
	if r.notifier != nil {
		r.notifier.LedgerChanged(ctx, c)
	}
}

func decodeBook(data []byte) (Book, error) {
	book := Book{GoldBalance: decimal.Zero, StakedGoldBalance: decimal.Zero}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &book); err != nil {
			return Book{}, fmt.Errorf("failed to decode ledger: %w", err)
		}
	}
	if book.Transactions == nil {
		book.Transactions = []Record{}
	}
	return book, nil
}

func encodeBook(b Book) ([]byte, error) {
	if b.Transactions == nil {
		b.Transactions = []Record{}
	}
	return json.Marshal(b)
}
