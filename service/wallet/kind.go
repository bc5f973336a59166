package wallet

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Kind identifies a wallet vendor.
type Kind string

const (
	Phantom  Kind = "phantom"
	Solflare Kind = "solflare"
	Backpack Kind = "backpack"
	Trust    Kind = "trust"
)

// Kinds lists every supported vendor in detection order.
var Kinds = []Kind{Phantom, Solflare, Backpack, Trust}

// ParseKind converts a user-supplied vendor name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", Errorf(KindProviderNotFound, "parse kind", "unknown wallet %q", s)
}

// ParseAddress decodes a base58 account address, returning an
// InvalidAddress error for anything that is not exactly 32 bytes.
func ParseAddress(address string) (solana.PublicKey, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return solana.PublicKey{}, NewError(KindInvalidAddress, "parse address", fmt.Errorf("%q: %w", address, err))
	}
	if len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, Errorf(KindInvalidAddress, "parse address", "%q decodes to %d bytes", address, len(raw))
	}
	return solana.PublicKeyFromBytes(raw), nil
}
