package connector

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/goldium-labs/goldium/service/wallet"
)

// Keypair is a local signer that can pose as any vendor's injected object.
// The CLI uses it with the embedded demo key; tests use its knobs to
// simulate user rejection and failing providers.
type Keypair struct {
	key solana.PrivateKey

	mu            sync.Mutex
	connected     bool
	rejectConnect bool
	rejectSign    bool
	disconnectErr error
}

// NewKeypair wraps key.
func NewKeypair(key solana.PrivateKey) *Keypair {
	return &Keypair{key: key}
}

// PublicKey returns the signer's public key.
func (k *Keypair) PublicKey() solana.PublicKey { return k.key.PublicKey() }

// RejectConnect makes the next connects fail as if the user declined.
func (k *Keypair) RejectConnect(v bool) { k.mu.Lock(); k.rejectConnect = v; k.mu.Unlock() }

// RejectSign makes signing fail as if the user declined.
func (k *Keypair) RejectSign(v bool) { k.mu.Lock(); k.rejectSign = v; k.mu.Unlock() }

// FailDisconnect makes Disconnect return err.
func (k *Keypair) FailDisconnect(err error) { k.mu.Lock(); k.disconnectErr = err; k.mu.Unlock() }

// Connected reports whether the signer considers itself connected.
func (k *Keypair) Connected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.connected
}

func (k *Keypair) connect(ctx context.Context) (solana.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return solana.PublicKey{}, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.rejectConnect {
		return solana.PublicKey{}, &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
	}
	k.connected = true
	return k.key.PublicKey(), nil
}

func (k *Keypair) disconnect(context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.connected = false
	return k.disconnectErr
}

func (k *Keypair) sign(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k.mu.Lock()
	connected, reject := k.connected, k.rejectSign
	k.mu.Unlock()
	if !connected {
		return nil, &ProviderError{Code: CodeUnauthorized, Message: "wallet is not connected"}
	}
	if reject {
		return nil, &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
	}

	if err := signInPlace(tx, k.key); err != nil {
		return nil, err
	}
	return tx, nil
}

// signInPlace writes key's signature into its slot, leaving other signers'
// slots untouched.
func signInPlace(tx *solana.Transaction, key solana.PrivateKey) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	n := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) < n {
		sigs := make([]solana.Signature, n)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	pub := key.PublicKey()
	for i := 0; i < n && i < len(tx.Message.AccountKeys); i++ {
		if !tx.Message.AccountKeys[i].Equals(pub) {
			continue
		}
		sig, err := key.Sign(msg)
		if err != nil {
			return fmt.Errorf("failed to sign transaction: %w", err)
		}
		tx.Signatures[i] = sig
		return nil
	}
	return fmt.Errorf("%s is not a required signer of this transaction", pub)
}

func (k *Keypair) signWire(ctx context.Context, wire []byte) ([]byte, error) {
	tx, err := solana.TransactionFromBytes(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	signed, err := k.sign(ctx, tx)
	if err != nil {
		return nil, err
	}
	return signed.MarshalBinary()
}

type keypairPhantom struct{ *Keypair }

func (w keypairPhantom) IsPhantom() bool { return true }
func (w keypairPhantom) Connect(ctx context.Context, _ bool) (solana.PublicKey, error) {
	return w.connect(ctx)
}
func (w keypairPhantom) Disconnect(ctx context.Context) error { return w.disconnect(ctx) }
func (w keypairPhantom) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	return w.sign(ctx, tx)
}

type keypairSolflare struct{ *Keypair }

func (w keypairSolflare) IsSolflare() bool { return true }
func (w keypairSolflare) Connect(ctx context.Context) (bool, error) {
	_, err := w.connect(ctx)
	return err == nil, err
}
func (w keypairSolflare) PublicKey() solana.PublicKey {
	if !w.Connected() {
		return solana.PublicKey{}
	}
	return w.Keypair.PublicKey()
}
func (w keypairSolflare) Disconnect(ctx context.Context) error { return w.disconnect(ctx) }
func (w keypairSolflare) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	return w.sign(ctx, tx)
}

type keypairBackpack struct{ *Keypair }

func (w keypairBackpack) IsBackpack() bool { return true }
func (w keypairBackpack) Connect(ctx context.Context) (BackpackAccount, error) {
	pk, err := w.connect(ctx)
	if err != nil {
		return BackpackAccount{}, err
	}
	return BackpackAccount{Address: pk.String()}, nil
}
func (w keypairBackpack) Disconnect(ctx context.Context) error { return w.disconnect(ctx) }
func (w keypairBackpack) SignTransaction(ctx context.Context, wire []byte) ([]byte, error) {
	return w.signWire(ctx, wire)
}

type keypairTrust struct{ *Keypair }

func (w keypairTrust) IsTrust() bool { return true }
func (w keypairTrust) Request(ctx context.Context, method string, params any) (any, error) {
	switch method {
	case "connect":
		pk, err := w.connect(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"publicKey": pk.String()}, nil
	case "disconnect":
		return nil, w.disconnect(ctx)
	case "signTransaction":
		p, _ := params.(map[string]any)
		encoded, _ := p["transaction"].(string)
		wire, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid transaction encoding: %w", err)
		}
		signed, err := w.signWire(ctx, wire)
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.EncodeToString(signed), nil
	default:
		return nil, &ProviderError{Code: 4200, Message: fmt.Sprintf("unsupported method %q", method)}
	}
}

// InjectKeypair installs k into g shaped as kind's injected object.
func InjectKeypair(g Globals, kind wallet.Kind, k *Keypair) error {
	switch kind {
	case wallet.Phantom:
		g[GlobalPhantom] = keypairPhantom{k}
	case wallet.Solflare:
		g[GlobalSolflare] = keypairSolflare{k}
	case wallet.Backpack:
		g[GlobalBackpack] = keypairBackpack{k}
	case wallet.Trust:
		g[GlobalTrust] = keypairTrust{k}
	default:
		return wallet.Errorf(wallet.KindProviderNotFound, "inject", "unknown wallet %q", kind)
	}
	return nil
}
