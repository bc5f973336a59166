package solana

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// FakeRPC is an in-memory RPCClient for tests. It models a tiny cluster:
// lamport balances, SPL token accounts, and signature statuses.
type FakeRPC struct {
	mu        sync.Mutex
	balances  map[solana.PublicKey]uint64
	tokens    map[solana.PublicKey]*rpc.UiTokenAmount
	statuses  map[solana.Signature]*rpc.SignatureStatusesResult
	sent      []*solana.Transaction
	calls     map[string]int
	err       error
	blockhash solana.Hash
	onSend    func(*solana.Transaction)
}

// NewFakeRPC creates an empty fake cluster.
func NewFakeRPC() *FakeRPC {
	return &FakeRPC{
		balances:  make(map[solana.PublicKey]uint64),
		tokens:    make(map[solana.PublicKey]*rpc.UiTokenAmount),
		statuses:  make(map[solana.Signature]*rpc.SignatureStatusesResult),
		calls:     make(map[string]int),
		blockhash: solana.Hash{0x67, 0x6f, 0x6c, 0x64},
	}
}

// SetBalance sets the lamport balance of owner.
func (f *FakeRPC) SetBalance(owner solana.PublicKey, lamports uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[owner] = lamports
}

// SetTokenBalance creates or updates owner's associated token account for mint.
func (f *FakeRPC) SetTokenBalance(owner, mint solana.PublicKey, raw uint64, decimals uint8) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[ata] = &rpc.UiTokenAmount{
		Amount:   strconv.FormatUint(raw, 10),
		Decimals: decimals,
	}
}

// OnSend registers fn to run after each accepted transaction, letting tests
// settle balances and statuses the way the cluster would.
func (f *FakeRPC) OnSend(fn func(*solana.Transaction)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSend = fn
}

// SetStatus sets the confirmation status reported for sig. A non-nil txErr
// marks the transaction as failed on chain.
func (f *FakeRPC) SetStatus(sig solana.Signature, status rpc.ConfirmationStatusType, txErr any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[sig] = &rpc.SignatureStatusesResult{ConfirmationStatus: status, Err: txErr, Slot: 1}
}

// Fail makes every call return err until Fail(nil) is called.
func (f *FakeRPC) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Calls returns how many times method was invoked.
func (f *FakeRPC) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Sent returns the transactions submitted so far.
func (f *FakeRPC) Sent() []*solana.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*solana.Transaction(nil), f.sent...)
}

func (f *FakeRPC) begin(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.err
}

func (f *FakeRPC) GetBalance(ctx context.Context, account solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if err := f.begin("getBalance"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &rpc.GetBalanceResult{Value: f.balances[account]}, nil
}

func (f *FakeRPC) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	if err := f.begin("getTokenAccountBalance"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	amt, ok := f.tokens[account]
	if !ok {
		return nil, &jsonrpc.RPCError{Code: errCodeInvalidParams, Message: "Invalid param: could not find account"}
	}
	cp := *amt
	return &rpc.GetTokenAccountBalanceResult{Value: &cp}, nil
}

func (f *FakeRPC) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, _ *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error) {
	if err := f.begin("getTokenAccountsByOwner"); err != nil {
		return nil, err
	}
	if conf == nil || conf.Mint == nil {
		return nil, errors.New("conf.Mint is required")
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, *conf.Mint)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &rpc.GetTokenAccountsResult{}
	if _, ok := f.tokens[ata]; ok {
		out.Value = append(out.Value, &rpc.TokenAccount{Pubkey: ata})
	}
	return out, nil
}

func (f *FakeRPC) GetLatestBlockhash(ctx context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if err := f.begin("getLatestBlockhash"); err != nil {
		return nil, err
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: f.blockhash, LastValidBlockHeight: 1000},
	}, nil
}

func (f *FakeRPC) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	if err := f.begin("sendTransaction"); err != nil {
		return solana.Signature{}, err
	}
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, &jsonrpc.RPCError{Code: -32602, Message: "transaction is not signed"}
	}
	f.mu.Lock()
	f.sent = append(f.sent, tx)
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(tx)
	}
	return tx.Signatures[0], nil
}

func (f *FakeRPC) GetSignatureStatuses(ctx context.Context, _ bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if err := f.begin("getSignatureStatuses"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &rpc.GetSignatureStatusesResult{}
	for _, sig := range signatures {
		if st, ok := f.statuses[sig]; ok {
			cp := *st
			out.Value = append(out.Value, &cp)
		} else {
			out.Value = append(out.Value, nil)
		}
	}
	return out, nil
}

func (f *FakeRPC) GetParsedTransaction(ctx context.Context, sig solana.Signature, _ *rpc.GetParsedTransactionOpts) (*rpc.GetParsedTransactionResult, error) {
	if err := f.begin("getParsedTransaction"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[sig]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetParsedTransactionResult{
		Slot: st.Slot,
		Meta: &rpc.ParsedTransactionMeta{Err: st.Err, Fee: 5000},
	}, nil
}

// NewFakeClient builds a Client over fakes in priority order, allowing a
// call to try every one of them.
func NewFakeClient(logger *slog.Logger, fakes ...*FakeRPC) *Client {
	endpoints := make([]Endpoint, len(fakes))
	for i, f := range fakes {
		endpoints[i] = Endpoint{Name: "e" + strconv.Itoa(i+1), Client: f}
	}
	pool, err := NewPool(endpoints, PoolConfig{MaxAttempts: len(fakes)}, nil, logger)
	if err != nil {
		panic(err)
	}
	return NewClient(pool, logger)
}
