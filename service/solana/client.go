package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/shopspring/decimal"
)

// errCodeInvalidParams is what nodes return for getTokenAccountBalance on
// an account that does not exist.
const errCodeInvalidParams = -32602

// TokenAmount is an SPL token balance.
type TokenAmount struct {
	Raw      uint64
	Decimals uint8
	UI       decimal.Decimal
}

// SignatureStatus is the cluster's view of a submitted transaction.
type SignatureStatus struct {
	Found              bool
	ConfirmationStatus rpc.ConfirmationStatusType
	Err                any // non-nil when the transaction failed on chain
	Slot               uint64
}

// Confirmed reports whether the status is confirmed or finalized.
func (s SignatureStatus) Confirmed() bool {
	return s.Found && s.Err == nil &&
		(s.ConfirmationStatus == rpc.ConfirmationStatusConfirmed || s.ConfirmationStatus == rpc.ConfirmationStatusFinalized)
}

// Failed reports whether the transaction landed with an error.
func (s SignatureStatus) Failed() bool {
	return s.Found && s.Err != nil
}

// Client provides the wallet-layer Solana operations on top of a Pool.
type Client struct {
	pool       *Pool
	logger     *slog.Logger
	commitment rpc.CommitmentType
}

// NewClient creates a new Solana client reading at "confirmed" commitment.
func NewClient(pool *Pool, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		pool:       pool,
		logger:     logger.With("component", "solana_client"),
		commitment: rpc.CommitmentConfirmed,
	}
}

// NativeBalance returns the lamport balance of owner.
func (c *Client) NativeBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	var lamports uint64
	err := c.pool.Do(ctx, "getBalance", func(ctx context.Context, rc RPCClient) error {
		out, err := rc.GetBalance(ctx, owner, c.commitment)
		if err != nil {
			return err
		}
		if out == nil {
			return errors.New("empty getBalance response")
		}
		lamports = out.Value
		return nil
	})
	if err != nil {
		return 0, err
	}
	return lamports, nil
}

// TokenBalance returns owner's balance of mint held in its associated token
// account. exists is false when the account has never been created.
func (c *Client) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (amount TokenAmount, exists bool, err error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return TokenAmount{}, false, fmt.Errorf("failed to derive token account: %w", err)
	}

	var res *rpc.GetTokenAccountBalanceResult
	err = c.pool.Do(ctx, "getTokenAccountBalance", func(ctx context.Context, rc RPCClient) error {
		var callErr error
		res, callErr = rc.GetTokenAccountBalance(ctx, ata, c.commitment)
		return callErr
	})
	if err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == errCodeInvalidParams {
			c.logger.DebugContext(ctx, "token account does not exist", "owner", owner, "mint", mint, "ata", ata)
			return TokenAmount{}, false, nil
		}
		return TokenAmount{}, false, err
	}
	if res == nil || res.Value == nil {
		return TokenAmount{}, false, nil
	}

	amount, err = parseTokenAmount(res.Value)
	if err != nil {
		return TokenAmount{}, false, err
	}
	return amount, true, nil
}

func parseTokenAmount(v *rpc.UiTokenAmount) (TokenAmount, error) {
	raw, err := decimal.NewFromString(v.Amount)
	if err != nil {
		return TokenAmount{}, fmt.Errorf("invalid token amount %q: %w", v.Amount, err)
	}
	if raw.IsNegative() {
		return TokenAmount{}, fmt.Errorf("negative token amount %q", v.Amount)
	}
	n := raw.BigInt()
	if !n.IsUint64() {
		return TokenAmount{}, fmt.Errorf("token amount %q overflows uint64", v.Amount)
	}
	return TokenAmount{
		Raw:      n.Uint64(),
		Decimals: v.Decimals,
		UI:       raw.Shift(-int32(v.Decimals)),
	}, nil
}

// TokenAccounts lists owner's token accounts for mint.
func (c *Client) TokenAccounts(ctx context.Context, owner, mint solana.PublicKey) ([]solana.PublicKey, error) {
	var accounts []solana.PublicKey
	err := c.pool.Do(ctx, "getTokenAccountsByOwner", func(ctx context.Context, rc RPCClient) error {
		out, err := rc.GetTokenAccountsByOwner(ctx, owner,
			&rpc.GetTokenAccountsConfig{Mint: &mint},
			&rpc.GetTokenAccountsOpts{Commitment: c.commitment, Encoding: solana.EncodingBase64},
		)
		if err != nil {
			return err
		}
		accounts = accounts[:0]
		if out != nil {
			for _, acc := range out.Value {
				accounts = append(accounts, acc.Pubkey)
			}
		}
		return nil
	})
	return accounts, err
}

// LatestBlockhash returns a fresh blockhash for a new transaction.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	err := c.pool.Do(ctx, "getLatestBlockhash", func(ctx context.Context, rc RPCClient) error {
		out, err := rc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		if out == nil || out.Value == nil {
			return errors.New("empty getLatestBlockhash response")
		}
		hash = out.Value.Blockhash
		return nil
	})
	return hash, err
}

// Send submits a signed transaction. Re-sending the same signed bytes to a
// fallback endpoint is safe because the signature identifies the transaction.
func (c *Client) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	err := c.pool.Do(ctx, "sendTransaction", func(ctx context.Context, rc RPCClient) error {
		var err error
		sig, err = rc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			PreflightCommitment: c.commitment,
		})
		return err
	})
	return sig, err
}

// SignatureStatus looks up a single signature.
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (SignatureStatus, error) {
	var status SignatureStatus
	err := c.pool.Do(ctx, "getSignatureStatuses", func(ctx context.Context, rc RPCClient) error {
		out, err := rc.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return err
		}
		status = SignatureStatus{}
		if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
			return nil
		}
		v := out.Value[0]
		status = SignatureStatus{
			Found:              true,
			ConfirmationStatus: v.ConfirmationStatus,
			Err:                v.Err,
			Slot:               v.Slot,
		}
		return nil
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return SignatureStatus{}, nil
	}
	return status, err
}

// ParsedTransaction fetches a landed transaction in jsonParsed form.
func (c *Client) ParsedTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetParsedTransactionResult, error) {
	var out *rpc.GetParsedTransactionResult
	maxVersion := uint64(0)
	err := c.pool.Do(ctx, "getParsedTransaction", func(ctx context.Context, rc RPCClient) error {
		var err error
		out, err = rc.GetParsedTransaction(ctx, sig, &rpc.GetParsedTransactionOpts{
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		return err
	})
	return out, err
}
