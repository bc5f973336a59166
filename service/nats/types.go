package nats

import (
	"time"

	"github.com/goldium-labs/goldium/service/ledger"
)

// LedgerEvent is published to "ledger.{wallet_address}" whenever a wallet's
// ledger changes.
type LedgerEvent struct {
	Action        string `json:"action"`
	WalletAddress string `json:"wallet_address"`

	// Set for record and status changes.
	Signature string `json:"signature,omitempty"`
	Type      string `json:"type,omitempty"`
	Status    string `json:"status,omitempty"`
	FromToken string `json:"from_token,omitempty"`
	ToToken   string `json:"to_token,omitempty"`
	Amount    string `json:"amount,omitempty"`

	GoldBalance       string `json:"gold_balance"`
	StakedGoldBalance string `json:"staked_gold_balance"`

	PublishedAt time.Time `json:"published_at"`
}

// AlertEvent is published to "alerts.{symbol}" when a price alert fires.
type AlertEvent struct {
	AlertID   string    `json:"alert_id"`
	ClientID  string    `json:"client_id"`
	Symbol    string    `json:"symbol"`
	Condition string    `json:"condition"`
	Target    string    `json:"target"`
	Price     string    `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// FromLedgerChange converts a ledger change into an event for publishing.
func FromLedgerChange(c ledger.Change) *LedgerEvent {
	event := &LedgerEvent{
		Action:            string(c.Action),
		WalletAddress:     c.Address,
		GoldBalance:       c.Book.GoldBalance.String(),
		StakedGoldBalance: c.Book.StakedGoldBalance.String(),
		PublishedAt:       time.Now().UTC(),
	}

	if r := c.Record; r != nil {
		event.Signature = r.Signature
		event.Type = string(r.Type)
		event.Status = string(r.Status)
		event.FromToken = r.FromToken
		event.ToToken = r.ToToken
		if !r.FromAmount.IsZero() {
			event.Amount = r.FromAmount.String()
		} else if !r.ToAmount.IsZero() {
			event.Amount = r.ToAmount.String()
		}
	}

	return event
}
