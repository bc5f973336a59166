// Package ledger keeps each wallet's transaction history and the GOLD
// balances derived from it, persisted one JSON document per wallet.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TxType is the kind of action a record describes.
type TxType string

const (
	TypeSwap    TxType = "swap"
	TypeSend    TxType = "send"
	TypeStake   TxType = "stake"
	TypeUnstake TxType = "unstake"
)

// Status is the confirmation state of a record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Token symbols.
const (
	TokenSOL  = "SOL"
	TokenGOLD = "GOLD"
)

// ParseTxType validates s as a TxType.
func ParseTxType(s string) (TxType, error) {
	switch t := TxType(s); t {
	case TypeSwap, TypeSend, TypeStake, TypeUnstake:
		return t, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// ParseStatus validates s as a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Record is one entry of a wallet's history. Amounts are in UI units.
type Record struct {
	ID               string          `json:"id"`
	Type             TxType          `json:"type"`
	Signature        string          `json:"signature"`
	Timestamp        time.Time       `json:"timestamp"`
	FromToken        string          `json:"fromToken,omitempty"`
	ToToken          string          `json:"toToken,omitempty"`
	FromAmount       decimal.Decimal `json:"fromAmount"`
	ToAmount         decimal.Decimal `json:"toAmount"`
	RecipientAddress string          `json:"recipientAddress,omitempty"`
	Status           Status          `json:"status"`
	// EffectApplied is set once the record's balance effect has been
	// applied to the book, which happens exactly once on confirmation.
	EffectApplied bool `json:"effectApplied"`
}

// Book is a wallet's persisted ledger. Transactions are newest first.
type Book struct {
	Transactions      []Record        `json:"transactions"`
	GoldBalance       decimal.Decimal `json:"goldBalance"`
	StakedGoldBalance decimal.Decimal `json:"stakedGoldBalance"`
}

// Balances is the derived balance view of a book.
type Balances struct {
	Gold       decimal.Decimal `json:"goldBalance"`
	StakedGold decimal.Decimal `json:"stakedGoldBalance"`
}

// StakingInfo is per-wallet staking metadata, stored under its own key.
type StakingInfo struct {
	StakedAmount decimal.Decimal `json:"stakedAmount"`
	StakedAt     *time.Time      `json:"stakedAt,omitempty"`
	LastUpdated  time.Time       `json:"lastUpdated"`
}

// ChangeAction names what happened to a book.
type ChangeAction string

const (
	ActionRecorded   ChangeAction = "recorded"
	ActionStatus     ChangeAction = "status_changed"
	ActionReconciled ChangeAction = "reconciled"
	ActionCleared    ChangeAction = "cleared"
)

// Change describes one persisted mutation.
type Change struct {
	Action  ChangeAction
	Address string
	Record  *Record // nil for reconcile and clear
	Book    Book
}
