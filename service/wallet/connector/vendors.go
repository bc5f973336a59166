package connector

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/goldium-labs/goldium/service/wallet"
)

// PhantomInjected is installed under "phantom".
type PhantomInjected interface {
	IsPhantom() bool
	Connect(ctx context.Context, onlyIfTrusted bool) (solana.PublicKey, error)
	Disconnect(ctx context.Context) error
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// SolflareInjected is installed under "solflare". Connect reports success
// as a bool and the key is read separately.
type SolflareInjected interface {
	IsSolflare() bool
	Connect(ctx context.Context) (bool, error)
	PublicKey() solana.PublicKey
	Disconnect(ctx context.Context) error
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// BackpackAccount is what Backpack returns from Connect.
type BackpackAccount struct {
	Address string
}

// BackpackInjected is installed under "backpack" and signs wire bytes.
type BackpackInjected interface {
	IsBackpack() bool
	Connect(ctx context.Context) (BackpackAccount, error)
	Disconnect(ctx context.Context) error
	SignTransaction(ctx context.Context, wire []byte) ([]byte, error)
}

// TrustInjected is installed under "trustwallet" and speaks a request API.
//
//	connect         -> map{"publicKey": base58}
//	disconnect      -> nil
//	signTransaction -> params map{"transaction": base64 wire}, result base64 wire
type TrustInjected interface {
	IsTrust() bool
	Request(ctx context.Context, method string, params any) (any, error)
}

// Global names vendors install themselves under.
const (
	GlobalPhantom  = "phantom"
	GlobalSolflare = "solflare"
	GlobalBackpack = "backpack"
	GlobalTrust    = "trustwallet"
)

type phantomProvider struct{ obj PhantomInjected }

func newPhantom(g Globals) (Provider, error) {
	obj, ok := g[GlobalPhantom].(PhantomInjected)
	if !ok || !obj.IsPhantom() {
		return nil, wallet.Errorf(wallet.KindProviderNotFound, "detect", "phantom is not installed")
	}
	return &phantomProvider{obj: obj}, nil
}

func (p *phantomProvider) Kind() wallet.Kind { return wallet.Phantom }

func (p *phantomProvider) Connect(ctx context.Context) (solana.PublicKey, error) {
	pk, err := p.obj.Connect(ctx, false)
	if err != nil {
		return solana.PublicKey{}, classify("phantom connect", err)
	}
	return pk, nil
}

func (p *phantomProvider) Disconnect(ctx context.Context) error {
	return classify("phantom disconnect", p.obj.Disconnect(ctx))
}

func (p *phantomProvider) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	signed, err := p.obj.SignTransaction(ctx, tx)
	if err != nil {
		return nil, classify("phantom sign", err)
	}
	return signed, nil
}

type solflareProvider struct{ obj SolflareInjected }

func newSolflare(g Globals) (Provider, error) {
	obj, ok := g[GlobalSolflare].(SolflareInjected)
	if !ok || !obj.IsSolflare() {
		return nil, wallet.Errorf(wallet.KindProviderNotFound, "detect", "solflare is not installed")
	}
	return &solflareProvider{obj: obj}, nil
}

func (p *solflareProvider) Kind() wallet.Kind { return wallet.Solflare }

func (p *solflareProvider) Connect(ctx context.Context) (solana.PublicKey, error) {
	ok, err := p.obj.Connect(ctx)
	if err != nil {
		return solana.PublicKey{}, classify("solflare connect", err)
	}
	if !ok {
		return solana.PublicKey{}, wallet.Errorf(wallet.KindUserRejected, "solflare connect", "connection was not approved")
	}
	pk := p.obj.PublicKey()
	if pk.IsZero() {
		return solana.PublicKey{}, fmt.Errorf("solflare connect: no public key after connect")
	}
	return pk, nil
}

func (p *solflareProvider) Disconnect(ctx context.Context) error {
	return classify("solflare disconnect", p.obj.Disconnect(ctx))
}

func (p *solflareProvider) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	signed, err := p.obj.SignTransaction(ctx, tx)
	if err != nil {
		return nil, classify("solflare sign", err)
	}
	return signed, nil
}

type backpackProvider struct{ obj BackpackInjected }

func newBackpack(g Globals) (Provider, error) {
	obj, ok := g[GlobalBackpack].(BackpackInjected)
	if !ok || !obj.IsBackpack() {
		return nil, wallet.Errorf(wallet.KindProviderNotFound, "detect", "backpack is not installed")
	}
	return &backpackProvider{obj: obj}, nil
}

func (p *backpackProvider) Kind() wallet.Kind { return wallet.Backpack }

func (p *backpackProvider) Connect(ctx context.Context) (solana.PublicKey, error) {
	acct, err := p.obj.Connect(ctx)
	if err != nil {
		return solana.PublicKey{}, classify("backpack connect", err)
	}
	return wallet.ParseAddress(acct.Address)
}

func (p *backpackProvider) Disconnect(ctx context.Context) error {
	return classify("backpack disconnect", p.obj.Disconnect(ctx))
}

func (p *backpackProvider) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	wire, err := encodeForSigning(tx)
	if err != nil {
		return nil, fmt.Errorf("backpack sign: failed to encode transaction: %w", err)
	}
	signed, err := p.obj.SignTransaction(ctx, wire)
	if err != nil {
		return nil, classify("backpack sign", err)
	}
	out, err := solana.TransactionFromBytes(signed)
	if err != nil {
		return nil, fmt.Errorf("backpack sign: failed to decode signed transaction: %w", err)
	}
	return out, nil
}

type trustProvider struct{ obj TrustInjected }

func newTrust(g Globals) (Provider, error) {
	obj, ok := g[GlobalTrust].(TrustInjected)
	if !ok || !obj.IsTrust() {
		return nil, wallet.Errorf(wallet.KindProviderNotFound, "detect", "trust wallet is not installed")
	}
	return &trustProvider{obj: obj}, nil
}

func (p *trustProvider) Kind() wallet.Kind { return wallet.Trust }

func (p *trustProvider) Connect(ctx context.Context) (solana.PublicKey, error) {
	res, err := p.obj.Request(ctx, "connect", nil)
	if err != nil {
		return solana.PublicKey{}, classify("trust connect", err)
	}
	var address string
	switch v := res.(type) {
	case map[string]any:
		address, _ = v["publicKey"].(string)
	case string:
		address = v
	}
	if address == "" {
		return solana.PublicKey{}, fmt.Errorf("trust connect: unexpected response %T", res)
	}
	return wallet.ParseAddress(address)
}

func (p *trustProvider) Disconnect(ctx context.Context) error {
	_, err := p.obj.Request(ctx, "disconnect", nil)
	return classify("trust disconnect", err)
}

func (p *trustProvider) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	wire, err := encodeForSigning(tx)
	if err != nil {
		return nil, fmt.Errorf("trust sign: failed to encode transaction: %w", err)
	}
	res, err := p.obj.Request(ctx, "signTransaction", map[string]any{
		"transaction": base64.StdEncoding.EncodeToString(wire),
	})
	if err != nil {
		return nil, classify("trust sign", err)
	}
	encoded, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("trust sign: unexpected response %T", res)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("trust sign: invalid base64: %w", err)
	}
	out, err := solana.TransactionFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("trust sign: failed to decode signed transaction: %w", err)
	}
	return out, nil
}

// encodeForSigning serializes tx with empty slots for missing signatures,
// the wire form wallets expect for a transaction they have yet to sign.
func encodeForSigning(tx *solana.Transaction) ([]byte, error) {
	cp := *tx
	n := int(tx.Message.Header.NumRequiredSignatures)
	if len(cp.Signatures) < n {
		sigs := make([]solana.Signature, n)
		copy(sigs, tx.Signatures)
		cp.Signatures = sigs
	}
	return cp.MarshalBinary()
}
