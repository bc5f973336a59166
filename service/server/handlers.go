package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/goldium-labs/goldium/service/ledger"
	"github.com/goldium-labs/goldium/service/temporal"
	"github.com/goldium-labs/goldium/service/wallet"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
	maxSignatureLength = 128     // base58 signatures are 87-88 chars
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// Tracker hands a submitted signature to the confirmation worker.
type Tracker interface {
	TrackConfirmation(ctx context.Context, address, signature string) error
}

type ledgerResponse struct {
	Address           string              `json:"address"`
	Transactions      []ledger.Record     `json:"transactions"`
	GoldBalance       decimal.Decimal     `json:"goldBalance"`
	StakedGoldBalance decimal.Decimal     `json:"stakedGoldBalance"`
	Staking           *ledger.StakingInfo `json:"staking,omitempty"`
}

func bookToResponse(address string, b ledger.Book, staking *ledger.StakingInfo) ledgerResponse {
	txs := b.Transactions
	if txs == nil {
		txs = []ledger.Record{}
	}
	return ledgerResponse{
		Address:           address,
		Transactions:      txs,
		GoldBalance:       b.GoldBalance,
		StakedGoldBalance: b.StakedGoldBalance,
		Staking:           staking,
	}
}

// handleGetLedger returns a handler that reads a wallet's ledger.
// GET /api/v1/wallets/{address}/ledger
func handleGetLedger(repo *ledger.Repository, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		book, err := repo.Load(r.Context(), address)
		if err != nil {
			writeLedgerError(w, logger, "failed to load ledger", address, err)
			return
		}
		staking, err := repo.LoadStaking(r.Context(), address)
		if err != nil {
			writeLedgerError(w, logger, "failed to load staking info", address, err)
			return
		}

		writeJSON(w, bookToResponse(address, book, &staking), http.StatusOK)
	})
}

// handleClearLedger returns a handler that clears a wallet's history. The
// balances are kept.
// DELETE /api/v1/wallets/{address}/ledger
func handleClearLedger(repo *ledger.Repository, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		book, err := repo.ClearHistory(r.Context(), address)
		if err != nil {
			writeLedgerError(w, logger, "failed to clear ledger", address, err)
			return
		}

		logger.Info("ledger cleared", "address", address)
		writeJSON(w, bookToResponse(address, book, nil), http.StatusOK)
	})
}

type recordTransactionRequest struct {
	Type             string          `json:"type"`
	Signature        string          `json:"signature"`
	FromToken        string          `json:"fromToken"`
	ToToken          string          `json:"toToken"`
	FromAmount       decimal.Decimal `json:"fromAmount"`
	ToAmount         decimal.Decimal `json:"toAmount"`
	RecipientAddress string          `json:"recipientAddress"`
	Status           string          `json:"status"`
}

func (req recordTransactionRequest) toRecord() (ledger.Record, error) {
	txType, err := ledger.ParseTxType(req.Type)
	if err != nil {
		return ledger.Record{}, errorf("%v", err)
	}
	status := ledger.StatusPending
	if req.Status != "" {
		if status, err = ledger.ParseStatus(req.Status); err != nil {
			return ledger.Record{}, errorf("%v", err)
		}
	}
	if err := validateSignature(req.Signature); err != nil {
		return ledger.Record{}, err
	}
	if req.FromAmount.IsNegative() || req.ToAmount.IsNegative() {
		return ledger.Record{}, errorf("amounts must not be negative")
	}
	if req.RecipientAddress != "" {
		if err := validateAddress(req.RecipientAddress); err != nil {
			return ledger.Record{}, errorf("invalid recipientAddress: %v", err)
		}
	}
	return ledger.Record{
		Type:             txType,
		Signature:        req.Signature,
		FromToken:        strings.ToUpper(req.FromToken),
		ToToken:          strings.ToUpper(req.ToToken),
		FromAmount:       req.FromAmount,
		ToAmount:         req.ToAmount,
		RecipientAddress: req.RecipientAddress,
		Status:           status,
	}, nil
}

// handleRecordTransaction returns a handler that appends a record to a
// wallet's ledger.
// POST /api/v1/wallets/{address}/transactions
func handleRecordTransaction(repo *ledger.Repository, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req recordTransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("invalid request body", "error", err)
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		rec, err := req.toRecord()
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		stored, _, err := repo.Record(r.Context(), address, rec)
		if err != nil {
			writeLedgerError(w, logger, "failed to record transaction", address, err)
			return
		}
		writeJSON(w, stored, http.StatusCreated)
	})
}

// handleTrackTransaction returns a handler that starts confirmation tracking
// for a recorded signature.
// POST /api/v1/wallets/{address}/transactions/{signature}/track
func handleTrackTransaction(repo *ledger.Repository, tracker Tracker, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tracker == nil {
			writeError(w, "confirmation tracking is not configured", http.StatusServiceUnavailable)
			return
		}

		address := r.PathValue("address")
		signature := r.PathValue("signature")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateSignature(signature); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		book, err := repo.Load(r.Context(), address)
		if err != nil {
			writeLedgerError(w, logger, "failed to load ledger", address, err)
			return
		}
		rec, ok := book.Find(signature)
		if !ok {
			writeError(w, "transaction not found", http.StatusNotFound)
			return
		}

		workflowID := temporal.ConfirmationWorkflowID(signature)
		if rec.Status != ledger.StatusPending {
			writeJSON(w, map[string]string{
				"workflow_id": workflowID,
				"status":      string(rec.Status),
			}, http.StatusOK)
			return
		}

		if err := tracker.TrackConfirmation(r.Context(), address, signature); err != nil {
			logger.Error("failed to start confirmation tracking", "address", address, "signature", signature, "error", err)
			writeError(w, "failed to start confirmation tracking", http.StatusInternalServerError)
			return
		}

		logger.Info("confirmation tracking started", "address", address, "signature", signature, "workflow_id", workflowID)
		writeJSON(w, map[string]string{
			"workflow_id": workflowID,
			"status":      string(rec.Status),
		}, http.StatusAccepted)
	})
}

// writeLedgerError maps repository errors to HTTP statuses.
func writeLedgerError(w http.ResponseWriter, logger *slog.Logger, msg, address string, err error) {
	switch {
	case wallet.KindOf(err) == wallet.KindInvalidAddress:
		writeError(w, wallet.Message(err), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrDuplicateSignature):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrRecordNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	default:
		logger.Error(msg, "address", address, "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	// Check for null bytes and control characters
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	if _, err := solanago.PublicKeyFromBase58(address); err != nil {
		return errorf("invalid address: %v", err)
	}

	return nil
}

// validateSignature validates a base58 transaction signature.
func validateSignature(sig string) error {
	if sig == "" {
		return errorf("signature is required")
	}
	if len(sig) > maxSignatureLength || !validAddressRegex.MatchString(sig) {
		return errorf("invalid signature format")
	}
	if _, err := solanago.SignatureFromBase58(sig); err != nil {
		return errorf("invalid signature: %v", err)
	}
	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
