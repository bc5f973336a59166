package server

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"github.com/goldium-labs/goldium/service/ledger"
)

const (
	payLabel      = "Goldium"
	maxMemoLength = 120
)

// ReceiveRequest is a Solana Pay request for receiving SOL or GOLD.
type ReceiveRequest struct {
	Address    string           `json:"address"`
	Token      string           `json:"token"`
	Mint       string           `json:"mint,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Memo       string           `json:"memo,omitempty"`
	PaymentURL string           `json:"payment_url"`
	QRCodeData string           `json:"qr_code_data"` // Base64 encoded PNG
}

// handleReceive returns a handler that builds a Solana Pay request for the
// wallet.
// GET /api/v1/wallets/{address}/receive?amount={amount}&token={SOL|GOLD}&memo={memo}
func handleReceive(goldMint string, goldDecimals int, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		query := r.URL.Query()
		req := ReceiveRequest{Address: address, Token: strings.ToUpper(query.Get("token"))}
		decimals := 9
		switch req.Token {
		case "", ledger.TokenSOL:
			req.Token = ledger.TokenSOL
		case ledger.TokenGOLD:
			req.Mint = goldMint
			decimals = goldDecimals
		default:
			writeError(w, "invalid token: must be SOL or GOLD", http.StatusBadRequest)
			return
		}

		if raw := query.Get("amount"); raw != "" {
			amount, err := parseAmount(raw, decimals)
			if err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			req.Amount = &amount
		}

		if memo := query.Get("memo"); memo != "" {
			if err := validateMemo(memo); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			req.Memo = memo
		}

		req.PaymentURL = buildSolanaPayURL(req.Address, req.Amount, req.Mint, req.Memo)
		qr, err := generateQRCode(req.PaymentURL)
		if err != nil {
			// The URL alone is still usable.
			logger.Warn("failed to generate QR code", "address", address, "error", err)
		}
		req.QRCodeData = qr

		writeJSON(w, req, http.StatusOK)
	})
}

func parseAmount(raw string, decimals int) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errorf("invalid amount: %q is not a number", raw)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, errorf("invalid amount: must be positive")
	}
	if !amount.Equal(amount.Truncate(int32(decimals))) {
		return decimal.Decimal{}, errorf("invalid amount: at most %d decimal places", decimals)
	}
	return amount, nil
}

func validateMemo(memo string) error {
	if len(memo) > maxMemoLength {
		return errorf("memo too long: maximum length is %d characters", maxMemoLength)
	}
	for _, r := range memo {
		if unicode.IsControl(r) {
			return errorf("invalid characters in memo: control characters not allowed")
		}
	}
	return nil
}

// buildSolanaPayURL creates a Solana Pay transfer request URL.
// Format: solana:{recipient}?amount={amount}&spl-token={mint}&memo={memo}&label={label}&message={message}
func buildSolanaPayURL(recipient string, amount *decimal.Decimal, tokenMint, memo string) string {
	params := url.Values{}
	if amount != nil {
		params.Set("amount", amount.String())
	}
	if tokenMint != "" {
		params.Set("spl-token", tokenMint)
	}
	if memo != "" {
		params.Set("memo", memo)
	}
	params.Set("label", payLabel)
	if tokenMint != "" {
		params.Set("message", "Send GOLD to this Goldium wallet")
	} else {
		params.Set("message", "Send SOL to this Goldium wallet")
	}

	return fmt.Sprintf("solana:%s?%s", recipient, params.Encode())
}

// generateQRCode creates a QR code image from a payment URL and returns it as base64-encoded PNG.
func generateQRCode(data string) (string, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code as PNG: %w", err)
	}

	return base64.StdEncoding.EncodeToString(png), nil
}
