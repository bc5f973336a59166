// Package connector detects injected wallet providers, normalizes their
// vendor-specific APIs, and drives connect and disconnect against the
// wallet store.
package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/goldium-labs/goldium/service/wallet"
)

// Provider is the normalized wallet API every vendor adapter exposes.
type Provider interface {
	Kind() wallet.Kind
	Connect(ctx context.Context) (solana.PublicKey, error)
	Disconnect(ctx context.Context) error
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// Globals is the injection environment: vendors install their objects
// under well-known names and adapters look them up.
type Globals map[string]any

// Provider error codes follow EIP-1193, which Solana wallets reuse.
const (
	CodeUserRejected = 4001
	CodeUnauthorized = 4100
)

// ProviderError is a structured error raised by an injected wallet.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// classify maps vendor errors onto the wallet error taxonomy. Only the
// structured code is consulted.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var werr *wallet.Error
	if errors.As(err, &werr) {
		return err
	}
	var perr *ProviderError
	if errors.As(err, &perr) && perr.Code == CodeUserRejected {
		return wallet.NewError(wallet.KindUserRejected, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
