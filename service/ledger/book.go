package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrRecordNotFound is returned when no record has the given signature.
	ErrRecordNotFound = errors.New("transaction record not found")
	// ErrDuplicateSignature is returned when a signature is recorded twice.
	ErrDuplicateSignature = errors.New("transaction already recorded")
)

// Balances returns the book's derived balances.
func (b *Book) Balances() Balances {
	return Balances{Gold: b.GoldBalance, StakedGold: b.StakedGoldBalance}
}

// Find returns the record with signature sig.
func (b *Book) Find(sig string) (Record, bool) {
	for _, r := range b.Transactions {
		if r.Signature == sig {
			return r, true
		}
	}
	return Record{}, false
}

// Record prepends r. A record that arrives already confirmed has its
// effect applied immediately.
func (b *Book) Record(r Record) (Record, error) {
	if err := validateRecord(r); err != nil {
		return Record{}, err
	}
	if _, exists := b.Find(r.Signature); exists {
		return Record{}, fmt.Errorf("%w: %s", ErrDuplicateSignature, r.Signature)
	}

	r.EffectApplied = false
	if r.Status == StatusConfirmed {
		b.apply(&r)
	}
	b.Transactions = append([]Record{r}, b.Transactions...)
	return r, nil
}

// UpdateStatus sets the status of the record with signature sig. Moving
// into confirmed applies the record's effect unless it was already applied.
func (b *Book) UpdateStatus(sig string, status Status) (Record, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return Record{}, err
	}
	for i := range b.Transactions {
		r := &b.Transactions[i]
		if r.Signature != sig {
			continue
		}
		r.Status = status
		if status == StatusConfirmed && !r.EffectApplied {
			b.apply(r)
		}
		return *r, nil
	}
	return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, sig)
}

// Reconcile replaces the GOLD balance with the on-chain value.
func (b *Book) Reconcile(gold decimal.Decimal) {
	b.GoldBalance = clamp(gold)
}

// ClearHistory drops every record. Balances are kept: GOLD is reconciled
// against the chain and the staked amount has no other source.
func (b *Book) ClearHistory() {
	b.Transactions = nil
}

func (b *Book) apply(r *Record) {
	gold, staked := b.GoldBalance, b.StakedGoldBalance

	switch r.Type {
	case TypeSwap:
		if r.FromToken == TokenGOLD {
			gold = gold.Sub(r.FromAmount)
		}
		if r.ToToken == TokenGOLD {
			gold = gold.Add(r.ToAmount)
		}
	case TypeSend:
		if r.FromToken == TokenGOLD {
			gold = gold.Sub(r.FromAmount)
		}
	case TypeStake:
		moved := decimal.Min(r.FromAmount, clamp(gold))
		gold = gold.Sub(moved)
		staked = staked.Add(moved)
	case TypeUnstake:
		moved := decimal.Min(r.FromAmount, clamp(staked))
		staked = staked.Sub(moved)
		gold = gold.Add(moved)
	}

	b.GoldBalance = clamp(gold)
	b.StakedGoldBalance = clamp(staked)
	r.EffectApplied = true
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func validateRecord(r Record) error {
	if _, err := ParseTxType(string(r.Type)); err != nil {
		return err
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}
	if r.Signature == "" {
		return errors.New("signature is required")
	}
	if r.FromAmount.IsNegative() || r.ToAmount.IsNegative() {
		return errors.New("amounts must not be negative")
	}
	return nil
}
