package submit

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/memo"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/goldium-labs/goldium/service/ledger"
	"github.com/goldium-labs/goldium/service/wallet"
	"github.com/shopspring/decimal"
)

const (
	// signatureFeeLamports is the base fee per signature.
	signatureFeeLamports = 5000

	// ataRentLamports is the rent-exempt minimum of a new token account.
	ataRentLamports = 2_039_280

	solDecimals = 9
)

// Memo tags identify goldium program actions on chain.
const (
	MemoStake   = "goldium:stake"
	MemoUnstake = "goldium:unstake:"
	MemoSwap    = "goldium:swap:"
)

// plan is a fully resolved operation: what to run on chain, what it costs,
// and the ledger record describing it.
type plan struct {
	instructions []solana.Instruction
	lamports     uint64 // native spend, excluding fees
	tokenRaw     uint64 // GOLD spend in base units
	record       ledger.Record
}

func (s *Submitter) plan(ctx context.Context, owner solana.PublicKey, op ledger.TxType, p Params) (*plan, error) {
	switch op {
	case ledger.TypeSend:
		return s.planSend(ctx, owner, p)
	case ledger.TypeStake:
		return s.planStake(ctx, owner, p)
	case ledger.TypeUnstake:
		return s.planUnstake(owner, p)
	case ledger.TypeSwap:
		return s.planSwap(ctx, owner, p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, op)
	}
}

func (s *Submitter) planSend(ctx context.Context, owner solana.PublicKey, p Params) (*plan, error) {
	recipient, err := wallet.ParseAddress(p.Recipient)
	if err != nil {
		return nil, err
	}
	rec := ledger.Record{
		Type:             ledger.TypeSend,
		FromToken:        p.Token,
		FromAmount:       p.Amount,
		RecipientAddress: recipient.String(),
	}

	switch p.Token {
	case ledger.TokenSOL:
		lamports, err := toBaseUnits(p.Amount, solDecimals)
		if err != nil {
			return nil, err
		}
		rec.ToToken = ledger.TokenSOL
		rec.ToAmount = p.Amount
		return &plan{
			instructions: []solana.Instruction{
				system.NewTransferInstruction(lamports, owner, recipient).Build(),
			},
			lamports: lamports,
			record:   rec,
		}, nil

	case ledger.TokenGOLD:
		raw, err := toBaseUnits(p.Amount, s.cfg.GoldDecimals)
		if err != nil {
			return nil, err
		}
		instrs, rent, err := s.goldTransfer(ctx, owner, recipient, raw)
		if err != nil {
			return nil, err
		}
		rec.ToToken = ledger.TokenGOLD
		rec.ToAmount = p.Amount
		return &plan{instructions: instrs, lamports: rent, tokenRaw: raw, record: rec}, nil

	default:
		return nil, fmt.Errorf("%w: cannot send %q", ErrUnsupported, p.Token)
	}
}

func (s *Submitter) planStake(ctx context.Context, owner solana.PublicKey, p Params) (*plan, error) {
	raw, err := toBaseUnits(p.Amount, s.cfg.GoldDecimals)
	if err != nil {
		return nil, err
	}
	instrs, rent, err := s.goldTransfer(ctx, owner, s.cfg.StakeVault, raw)
	if err != nil {
		return nil, err
	}
	instrs = append(instrs, memo.NewMemoInstruction([]byte(MemoStake), owner).Build())
	return &plan{
		instructions: instrs,
		lamports:     rent,
		tokenRaw:     raw,
		record: ledger.Record{
			Type:       ledger.TypeStake,
			FromToken:  ledger.TokenGOLD,
			ToToken:    ledger.TokenGOLD,
			FromAmount: p.Amount,
			ToAmount:   p.Amount,
		},
	}, nil
}

// planUnstake requests a release from the stake vault. The vault's program
// pays the tokens back, so the wallet only signs a tagged memo.
func (s *Submitter) planUnstake(owner solana.PublicKey, p Params) (*plan, error) {
	if _, err := toBaseUnits(p.Amount, s.cfg.GoldDecimals); err != nil {
		return nil, err
	}
	staked := s.ledger.Balances().StakedGold
	if p.Amount.GreaterThan(staked) {
		return nil, wallet.Errorf(wallet.KindInsufficientBalance, "unstake",
			"requested %s GOLD but only %s is staked", p.Amount, staked)
	}
	tag := MemoUnstake + p.Amount.String()
	return &plan{
		instructions: []solana.Instruction{memo.NewMemoInstruction([]byte(tag), owner).Build()},
		record: ledger.Record{
			Type:       ledger.TypeUnstake,
			FromToken:  ledger.TokenGOLD,
			ToToken:    ledger.TokenGOLD,
			FromAmount: p.Amount,
			ToAmount:   p.Amount,
		},
	}, nil
}

func (s *Submitter) planSwap(ctx context.Context, owner solana.PublicKey, p Params) (*plan, error) {
	if s.cfg.SwapRate.Sign() <= 0 {
		return nil, fmt.Errorf("%w: swap rate is not configured", ErrUnsupported)
	}
	tag := memo.NewMemoInstruction([]byte(MemoSwap+p.FromToken+":"+p.ToToken), owner).Build()

	switch {
	case p.FromToken == ledger.TokenSOL && p.ToToken == ledger.TokenGOLD:
		lamports, err := toBaseUnits(p.Amount, solDecimals)
		if err != nil {
			return nil, err
		}
		return &plan{
			instructions: []solana.Instruction{
				system.NewTransferInstruction(lamports, owner, s.cfg.SwapTreasury).Build(),
				tag,
			},
			lamports: lamports,
			record: ledger.Record{
				Type:       ledger.TypeSwap,
				FromToken:  ledger.TokenSOL,
				ToToken:    ledger.TokenGOLD,
				FromAmount: p.Amount,
				ToAmount:   p.Amount.Mul(s.cfg.SwapRate).Truncate(int32(s.cfg.GoldDecimals)),
			},
		}, nil

	case p.FromToken == ledger.TokenGOLD && p.ToToken == ledger.TokenSOL:
		raw, err := toBaseUnits(p.Amount, s.cfg.GoldDecimals)
		if err != nil {
			return nil, err
		}
		instrs, rent, err := s.goldTransfer(ctx, owner, s.cfg.SwapTreasury, raw)
		if err != nil {
			return nil, err
		}
		return &plan{
			instructions: append(instrs, tag),
			lamports:     rent,
			tokenRaw:     raw,
			record: ledger.Record{
				Type:       ledger.TypeSwap,
				FromToken:  ledger.TokenGOLD,
				ToToken:    ledger.TokenSOL,
				FromAmount: p.Amount,
				ToAmount:   p.Amount.DivRound(s.cfg.SwapRate, solDecimals),
			},
		}, nil

	default:
		return nil, fmt.Errorf("%w: swap %s to %s", ErrUnsupported, p.FromToken, p.ToToken)
	}
}

// goldTransfer moves raw GOLD base units from owner to dest's associated
// token account, creating that account first when it does not exist yet.
// It returns the rent the creation costs.
func (s *Submitter) goldTransfer(ctx context.Context, owner, dest solana.PublicKey, raw uint64) ([]solana.Instruction, uint64, error) {
	mint := s.cfg.GoldMint
	source, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to derive source token account: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(dest, mint)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to derive destination token account: %w", err)
	}

	var (
		instrs []solana.Instruction
		rent   uint64
	)
	_, exists, err := s.client.TokenBalance(ctx, dest, mint)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		instrs = append(instrs, associatedtokenaccount.NewCreateInstruction(owner, dest, mint).Build())
		rent = ataRentLamports
	}
	instrs = append(instrs, token.NewTransferCheckedInstruction(
		raw,
		s.cfg.GoldDecimals,
		source,
		mint,
		destATA,
		owner,
		[]solana.PublicKey{},
	).Build())
	return instrs, rent, nil
}

// toBaseUnits converts a UI amount into integer base units, rejecting
// non-positive amounts and amounts finer than the token allows.
func toBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, amount)
	}
	base := amount.Shift(int32(decimals))
	if !base.Equal(base.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, amount, decimals)
	}
	if !base.BigInt().IsUint64() {
		return 0, fmt.Errorf("%w: %s is too large", ErrInvalidAmount, amount)
	}
	return base.BigInt().Uint64(), nil
}
