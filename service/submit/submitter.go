// Package submit builds goldium transactions, has the connected wallet sign
// them, sends them, and follows them to confirmation.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/goldium-labs/goldium/service/ledger"
	"github.com/goldium-labs/goldium/service/metrics"
	chain "github.com/goldium-labs/goldium/service/solana"
	"github.com/goldium-labs/goldium/service/wallet"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrUnsupported       = errors.New("unsupported operation")
	ErrTransactionFailed = errors.New("transaction failed on chain")
)

// Signer signs with the connected wallet.
type Signer interface {
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// Ledger is the active wallet's transaction history.
type Ledger interface {
	Record(ctx context.Context, rec ledger.Record) (ledger.Record, error)
	UpdateStatus(ctx context.Context, sig string, status ledger.Status) (ledger.Record, error)
	Balances() ledger.Balances
}

// Nudger triggers an immediate balance refresh.
type Nudger interface {
	Nudge()
}

// ConfirmationTracker keeps watching a signature after the local polling
// budget runs out.
type ConfirmationTracker interface {
	TrackConfirmation(ctx context.Context, address, signature string) error
}

// Params describes one operation. Send uses Token and Recipient; swap uses
// FromToken and ToToken; every operation uses Amount.
type Params struct {
	Token     string
	Recipient string
	FromToken string
	ToToken   string
	Amount    decimal.Decimal
}

// Result is what a submission ended with. Signature is set as soon as the
// transaction was sent, even when an error is returned.
type Result struct {
	Signature string        `json:"signature"`
	Status    ledger.Status `json:"status"`
	Record    ledger.Record `json:"record"`
	Attempts  int           `json:"attempts"`
	Tracked   bool          `json:"tracked,omitempty"`
}

// Config holds the accounts and limits used to build and follow
// transactions.
type Config struct {
	GoldMint     solana.PublicKey
	GoldDecimals uint8
	StakeVault   solana.PublicKey
	SwapTreasury solana.PublicKey
	SwapRate     decimal.Decimal // GOLD per SOL

	PollInterval time.Duration
	MaxAttempts  int
}

// Submitter runs the submit flow for the connected wallet.
type Submitter struct {
	client  *chain.Client
	store   *wallet.Store
	signer  Signer
	ledger  Ledger
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.RWMutex
	nudger  Nudger
	tracker ConfirmationTracker
}

// New creates a submitter. If metrics is nil, no metrics will be recorded.
func New(client *chain.Client, store *wallet.Store, signer Signer, l Ledger, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Submitter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		client:  client,
		store:   store,
		signer:  signer,
		ledger:  l,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "submitter"),
	}
}

// SetNudger sets what gets nudged after a confirmation.
func (s *Submitter) SetNudger(n Nudger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nudger = n
}

// SetTracker sets the hand-off for transactions still pending when the
// polling budget is exhausted.
func (s *Submitter) SetTracker(t ConfirmationTracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker = t
}

// Submit builds, signs, sends and follows one operation.
func (s *Submitter) Submit(ctx context.Context, op ledger.TxType, p Params) (res Result, err error) {
	defer func() {
		if s.metrics == nil {
			return
		}
		outcome := string(res.Status)
		if err != nil {
			if kind := wallet.KindOf(err); kind != "" {
				outcome = string(kind)
			} else if errors.Is(err, ErrTransactionFailed) {
				outcome = string(ledger.StatusFailed)
			} else {
				outcome = "error"
			}
		}
		s.metrics.RecordSubmission(string(op), outcome)
	}()

	state := s.store.State()
	if !state.Connected {
		return Result{}, wallet.Errorf(wallet.KindNotConnected, string(op), "no wallet connected")
	}
	owner := state.PublicKey

	pl, err := s.plan(ctx, owner, op, p)
	if err != nil {
		return Result{}, err
	}
	if err := s.preflight(ctx, owner, op, pl); err != nil {
		return Result{}, err
	}

	hash, err := s.client.LatestBlockhash(ctx)
	if err != nil {
		return Result{}, err
	}
	tx, err := solana.NewTransaction(pl.instructions, hash, solana.TransactionPayer(owner))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	signed, err := s.signer.SignTransaction(ctx, tx)
	if err != nil {
		return Result{}, err
	}

	sig, err := s.client.Send(ctx, signed)
	if err != nil {
		return Result{}, err
	}
	res.Signature = sig.String()
	s.logger.InfoContext(ctx, "transaction sent",
		"type", op,
		"signature", res.Signature,
		"address", state.Address,
	)

	rec := pl.record
	rec.Signature = res.Signature
	rec.Status = ledger.StatusPending
	stored, err := s.ledger.Record(ctx, rec)
	if err != nil {
		// The transaction is already in flight; keep following it.
		s.logger.ErrorContext(ctx, "failed to record transaction", "signature", res.Signature, "error", err)
		stored = rec
	}
	res.Record = stored
	res.Status = ledger.StatusPending

	return s.confirm(ctx, state.Address, sig, res)
}

// preflight compares the operation's spend with the chain balances. It is
// not a simulation: the cluster can still reject the transaction.
func (s *Submitter) preflight(ctx context.Context, owner solana.PublicKey, op ledger.TxType, pl *plan) error {
	fee := uint64(signatureFeeLamports)
	if pl.lamports > math.MaxUint64-fee {
		return fmt.Errorf("%w: %d lamports plus fees is too large", ErrInvalidAmount, pl.lamports)
	}
	lamports, err := s.client.NativeBalance(ctx, owner)
	if err != nil {
		return err
	}
	if need := pl.lamports + fee; lamports < need {
		return wallet.Errorf(wallet.KindInsufficientBalance, string(op),
			"need %.9f SOL including fees, have %.9f", wallet.LamportsToSOL(need), wallet.LamportsToSOL(lamports))
	}

	if pl.tokenRaw == 0 {
		return nil
	}
	amount, _, err := s.client.TokenBalance(ctx, owner, s.cfg.GoldMint)
	if err != nil {
		return err
	}
	if amount.Raw < pl.tokenRaw {
		need := decimal.NewFromBigInt(new(big.Int).SetUint64(pl.tokenRaw), -int32(s.cfg.GoldDecimals))
		return wallet.Errorf(wallet.KindInsufficientBalance, string(op),
			"need %s GOLD, have %s", need, amount.UI)
	}
	return nil
}

func (s *Submitter) confirm(ctx context.Context, address string, sig solana.Signature, res Result) (Result, error) {
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt
		status, err := s.client.SignatureStatus(ctx, sig)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			s.logger.WarnContext(ctx, "signature status check failed", "signature", res.Signature, "attempt", attempt, "error", err)
		case status.Confirmed():
			return s.settle(ctx, res, ledger.StatusConfirmed, nil)
		case status.Failed():
			return s.settle(ctx, res, ledger.StatusFailed,
				fmt.Errorf("%w: %s: %v", ErrTransactionFailed, res.Signature, status.Err))
		}

		if attempt == s.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}

	s.recordAttempts("timeout", res.Attempts)
	s.mu.RLock()
	tracker := s.tracker
	s.mu.RUnlock()
	if tracker != nil {
		if err := tracker.TrackConfirmation(ctx, address, res.Signature); err != nil {
			s.logger.WarnContext(ctx, "failed to hand off confirmation", "signature", res.Signature, "error", err)
		} else {
			res.Tracked = true
		}
	}
	return res, wallet.Errorf(wallet.KindConfirmationTimeout, "confirm",
		"%s not confirmed after %d attempts", res.Signature, res.Attempts)
}

func (s *Submitter) settle(ctx context.Context, res Result, status ledger.Status, failure error) (Result, error) {
	s.recordAttempts(string(status), res.Attempts)
	res.Status = status
	updated, err := s.ledger.UpdateStatus(ctx, res.Signature, status)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to update transaction status", "signature", res.Signature, "status", status, "error", err)
	} else {
		res.Record = updated
	}

	if status == ledger.StatusConfirmed {
		s.mu.RLock()
		n := s.nudger
		s.mu.RUnlock()
		if n != nil {
			n.Nudge()
		}
	}
	s.logger.InfoContext(ctx, "transaction settled", "signature", res.Signature, "status", status, "attempts", res.Attempts)
	return res, failure
}

func (s *Submitter) recordAttempts(outcome string, attempts int) {
	if s.metrics != nil {
		s.metrics.RecordConfirmationAttempts(outcome, attempts)
	}
}
