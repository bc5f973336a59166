package wallet

import (
	"errors"
	"fmt"
)

// ErrorKind tags a wallet-layer failure so callers can branch without
// inspecting message text.
type ErrorKind string

const (
	KindProviderNotFound                  ErrorKind = "provider_not_found"
	KindUserRejected                      ErrorKind = "user_rejected"
	KindInsufficientBalance               ErrorKind = "insufficient_balance"
	KindInvalidAddress                    ErrorKind = "invalid_address"
	KindRPCUnavailable                    ErrorKind = "rpc_unavailable"
	KindConfirmationTimeout               ErrorKind = "confirmation_timeout"
	KindAlreadyConnectedToDifferentWallet ErrorKind = "already_connected_to_different_wallet"
	KindNotConnected                      ErrorKind = "not_connected"
	KindInvalidTransition                 ErrorKind = "invalid_transition"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrProviderNotFound                  = &Error{Kind: KindProviderNotFound}
	ErrUserRejected                      = &Error{Kind: KindUserRejected}
	ErrInsufficientBalance               = &Error{Kind: KindInsufficientBalance}
	ErrInvalidAddress                    = &Error{Kind: KindInvalidAddress}
	ErrRPCUnavailable                    = &Error{Kind: KindRPCUnavailable}
	ErrConfirmationTimeout               = &Error{Kind: KindConfirmationTimeout}
	ErrAlreadyConnectedToDifferentWallet = &Error{Kind: KindAlreadyConnectedToDifferentWallet}
	ErrNotConnected                      = &Error{Kind: KindNotConnected}
	ErrInvalidTransition                 = &Error{Kind: KindInvalidTransition}
)

// Error is the tagged error returned across every wallet-layer boundary.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError builds an *Error for op, wrapping err (which may be nil).
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error whose cause is a formatted message.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns a short human-readable description suitable for a toast.
func Message(err error) string {
	switch KindOf(err) {
	case KindProviderNotFound:
		return "Wallet not found. Please install the wallet extension."
	case KindUserRejected:
		return "Request was rejected in the wallet."
	case KindInsufficientBalance:
		return "Insufficient balance for this transaction."
	case KindInvalidAddress:
		return "The address is not a valid Solana address."
	case KindRPCUnavailable:
		return "The Solana network is unreachable. Please try again."
	case KindConfirmationTimeout:
		return "Transaction sent but not yet confirmed. Check the explorer for its final status."
	case KindAlreadyConnectedToDifferentWallet:
		return "Another wallet is already connected."
	case KindNotConnected:
		return "Connect a wallet first."
	case "":
		if err == nil {
			return ""
		}
	}
	return "Something went wrong."
}
