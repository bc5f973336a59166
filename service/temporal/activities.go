package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	temporalsdk "go.temporal.io/sdk/temporal"

	"github.com/goldium-labs/goldium/service/ledger"
	"github.com/goldium-labs/goldium/service/metrics"
	chain "github.com/goldium-labs/goldium/service/solana"
	"github.com/goldium-labs/goldium/service/wallet"
)

// ConfirmTransactionInput contains the input parameters for watching a
// submitted signature until it settles.
type ConfirmTransactionInput struct {
	Address     string        `json:"address"`
	Signature   string        `json:"signature"`
	Interval    time.Duration `json:"interval"`
	MaxAttempts int           `json:"max_attempts"`
}

// ConfirmTransactionResult contains the result of a confirmation watch.
// TimedOut is set when the attempt budget ran out before the signature
// settled; the ledger is left untouched in that case.
type ConfirmTransactionResult struct {
	Address           string        `json:"address"`
	Signature         string        `json:"signature"`
	Status            ledger.Status `json:"status"`
	Attempts          int           `json:"attempts"`
	TimedOut          bool          `json:"timed_out"`
	GoldBalance       string        `json:"gold_balance,omitempty"`
	StakedGoldBalance string        `json:"staked_gold_balance,omitempty"`
}

// CheckSignatureStatusInput contains parameters for the CheckSignatureStatus activity.
type CheckSignatureStatusInput struct {
	Signature   string `json:"signature"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
}

// CheckSignatureStatusResult contains the cluster's view of a signature.
type CheckSignatureStatusResult struct {
	Status             ledger.Status `json:"status"` // pending until confirmed or failed
	ConfirmationStatus string        `json:"confirmation_status,omitempty"`
	Slot               uint64        `json:"slot,omitempty"`
	Error              string        `json:"error,omitempty"`
}

// UpdateLedgerStatusInput contains parameters for the UpdateLedgerStatus activity.
type UpdateLedgerStatusInput struct {
	Address   string        `json:"address"`
	Signature string        `json:"signature"`
	Status    ledger.Status `json:"status"`
	Attempts  int           `json:"attempts"`
}

// UpdateLedgerStatusResult contains the balances after the update.
type UpdateLedgerStatusResult struct {
	Status            ledger.Status `json:"status"`
	EffectApplied     bool          `json:"effect_applied"`
	GoldBalance       string        `json:"gold_balance"`
	StakedGoldBalance string        `json:"staked_gold_balance"`
}

// ReconcileBalanceInput contains the input parameters for a scheduled
// balance reconciliation.
type ReconcileBalanceInput struct {
	Address string `json:"address"`
}

// ReconcileBalanceResult contains the result of a reconciliation.
type ReconcileBalanceResult struct {
	Address     string    `json:"address"`
	GoldBalance string    `json:"gold_balance"`
	AccountSeen bool      `json:"account_seen"`
	RunTime     time.Time `json:"run_time"`
}

// FetchGoldBalanceInput contains parameters for the FetchGoldBalance activity.
type FetchGoldBalanceInput struct {
	Address string `json:"address"`
}

// FetchGoldBalanceResult contains the on-chain GOLD balance in UI units.
// A wallet without a token account holds zero.
type FetchGoldBalanceResult struct {
	Amount string `json:"amount"`
	Exists bool   `json:"exists"`
}

// ReconcileLedgerInput contains parameters for the ReconcileLedger activity.
type ReconcileLedgerInput struct {
	Address string `json:"address"`
	Gold    string `json:"gold"`
}

// ReconcileLedgerResult contains the reconciled book balances.
type ReconcileLedgerResult struct {
	GoldBalance string `json:"gold_balance"`
}

// ChainInterface defines the Solana operations needed by activities.
// *solana.Client implements it.
type ChainInterface interface {
	SignatureStatus(ctx context.Context, sig solanago.Signature) (chain.SignatureStatus, error)
	TokenBalance(ctx context.Context, owner, mint solanago.PublicKey) (chain.TokenAmount, bool, error)
}

// LedgerInterface defines the ledger writes needed by activities.
// *ledger.Repository implements it.
type LedgerInterface interface {
	UpdateStatus(ctx context.Context, address, sig string, status ledger.Status) (ledger.Record, ledger.Book, error)
	Reconcile(ctx context.Context, address string, gold decimal.Decimal) (ledger.Book, error)
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	chain    ChainInterface
	ledger   LedgerInterface
	goldMint solanago.PublicKey
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(chainClient ChainInterface, repo LedgerInterface, goldMint solanago.PublicKey, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		chain:    chainClient,
		ledger:   repo,
		goldMint: goldMint,
		metrics:  m,
		logger:   logger,
	}
}

// CheckSignatureStatus asks the cluster for the status of one signature.
// An unknown or unconfirmed signature is reported as pending.
func (a *Activities) CheckSignatureStatus(ctx context.Context, input CheckSignatureStatusInput) (*CheckSignatureStatusResult, error) {
	sig, err := solanago.SignatureFromBase58(input.Signature)
	if err != nil {
		return nil, temporalNonRetryable("invalid signature", err)
	}

	st, err := a.chain.SignatureStatus(ctx, sig)
	if err != nil {
		a.logger.WarnContext(ctx, "signature status lookup failed",
			"signature", input.Signature,
			"attempt", input.Attempt,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}

	result := &CheckSignatureStatusResult{
		Status:             ledger.StatusPending,
		ConfirmationStatus: string(st.ConfirmationStatus),
		Slot:               st.Slot,
	}
	switch {
	case st.Failed():
		result.Status = ledger.StatusFailed
		result.Error = fmt.Sprint(st.Err)
	case st.Confirmed():
		result.Status = ledger.StatusConfirmed
	}

	if result.Status == ledger.StatusPending && input.MaxAttempts > 0 && input.Attempt >= input.MaxAttempts {
		a.recordAttempts("timeout", input.Attempt)
	}

	a.logger.DebugContext(ctx, "checked signature status",
		"signature", input.Signature,
		"attempt", input.Attempt,
		"status", result.Status,
		"confirmation_status", result.ConfirmationStatus,
	)
	return result, nil
}

// UpdateLedgerStatus writes a settled status to the wallet's ledger. The
// repository applies the balance effect and publishes the change.
func (a *Activities) UpdateLedgerStatus(ctx context.Context, input UpdateLedgerStatusInput) (*UpdateLedgerStatusResult, error) {
	rec, book, err := a.ledger.UpdateStatus(ctx, input.Address, input.Signature, input.Status)
	if err != nil {
		if wallet.KindOf(err) == wallet.KindInvalidAddress || errors.Is(err, ledger.ErrRecordNotFound) {
			return nil, temporalNonRetryable("cannot update ledger", err)
		}
		return nil, fmt.Errorf("failed to update ledger status: %w", err)
	}

	a.recordAttempts(string(input.Status), input.Attempts)
	a.logger.InfoContext(ctx, "ledger status updated",
		"address", input.Address,
		"signature", input.Signature,
		"status", rec.Status,
		"attempts", input.Attempts,
	)
	return &UpdateLedgerStatusResult{
		Status:            rec.Status,
		EffectApplied:     rec.EffectApplied,
		GoldBalance:       book.GoldBalance.String(),
		StakedGoldBalance: book.StakedGoldBalance.String(),
	}, nil
}

// FetchGoldBalance reads the GOLD balance of a wallet from the chain.
func (a *Activities) FetchGoldBalance(ctx context.Context, input FetchGoldBalanceInput) (*FetchGoldBalanceResult, error) {
	owner, err := wallet.ParseAddress(input.Address)
	if err != nil {
		return nil, temporalNonRetryable("invalid address", err)
	}

	amount, exists, err := a.chain.TokenBalance(ctx, owner, a.goldMint)
	if err != nil {
		return nil, fmt.Errorf("failed to get GOLD balance: %w", err)
	}
	if !exists {
		return &FetchGoldBalanceResult{Amount: "0"}, nil
	}
	return &FetchGoldBalanceResult{Amount: amount.UI.String(), Exists: true}, nil
}

// ReconcileLedger overwrites the ledger's GOLD balance with the chain value.
func (a *Activities) ReconcileLedger(ctx context.Context, input ReconcileLedgerInput) (*ReconcileLedgerResult, error) {
	gold, err := decimal.NewFromString(input.Gold)
	if err != nil {
		return nil, temporalNonRetryable("invalid amount", err)
	}
	book, err := a.ledger.Reconcile(ctx, input.Address, gold)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile ledger: %w", err)
	}
	return &ReconcileLedgerResult{GoldBalance: book.GoldBalance.String()}, nil
}

func (a *Activities) recordAttempts(outcome string, attempts int) {
	if a.metrics != nil {
		a.metrics.RecordConfirmationAttempts(outcome, attempts)
	}
}

// temporalNonRetryable marks bad input so Temporal does not retry it.
func temporalNonRetryable(msg string, err error) error {
	return temporalsdk.NewNonRetryableApplicationError(msg, "InvalidInput", err)
}
