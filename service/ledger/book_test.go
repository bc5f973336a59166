package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func TestBook_Effects(t *testing.T) {
	tests := []struct {
		name       string
		gold       string
		staked     string
		record     Record
		wantGold   string
		wantStaked string
	}{
		{
			name:     "swap SOL into GOLD",
			gold:     "10",
			record:   Record{Type: TypeSwap, FromToken: TokenSOL, ToToken: TokenGOLD, FromAmount: d("0.5"), ToAmount: d("500")},
			wantGold: "510",
		},
		{
			name:     "swap GOLD into SOL",
			gold:     "600",
			record:   Record{Type: TypeSwap, FromToken: TokenGOLD, ToToken: TokenSOL, FromAmount: d("100"), ToAmount: d("0.1")},
			wantGold: "500",
		},
		{
			name:     "send GOLD",
			gold:     "50",
			record:   Record{Type: TypeSend, FromToken: TokenGOLD, FromAmount: d("20"), RecipientAddress: "x"},
			wantGold: "30",
		},
		{
			name:     "send SOL leaves GOLD alone",
			gold:     "50",
			record:   Record{Type: TypeSend, FromToken: TokenSOL, FromAmount: d("1")},
			wantGold: "50",
		},
		{
			name:       "stake moves gold to staked",
			gold:       "100",
			staked:     "5",
			record:     Record{Type: TypeStake, FromToken: TokenGOLD, FromAmount: d("40")},
			wantGold:   "60",
			wantStaked: "45",
		},
		{
			name:       "unstake moves staked to gold",
			gold:       "1",
			staked:     "10",
			record:     Record{Type: TypeUnstake, FromToken: TokenGOLD, FromAmount: d("4")},
			wantGold:   "5",
			wantStaked: "6",
		},
		{
			name:     "overdrawn send clamps at zero",
			gold:     "3",
			record:   Record{Type: TypeSend, FromToken: TokenGOLD, FromAmount: d("10")},
			wantGold: "0",
		},
		{
			name:       "stake more than held moves only what is held",
			gold:       "3",
			record:     Record{Type: TypeStake, FromToken: TokenGOLD, FromAmount: d("10")},
			wantGold:   "0",
			wantStaked: "3",
		},
		{
			name:       "unstake more than staked",
			staked:     "2",
			record:     Record{Type: TypeUnstake, FromToken: TokenGOLD, FromAmount: d("7")},
			wantGold:   "2",
			wantStaked: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Book{GoldBalance: d(orZero(tt.gold)), StakedGoldBalance: d(orZero(tt.staked))}
			rec := tt.record
			rec.Signature = "sig-" + tt.name
			rec.Status = StatusConfirmed

			stored, err := b.Record(rec)
			require.NoError(t, err)
			assert.True(t, stored.EffectApplied)
			assertDecimal(t, orZero(tt.wantGold), b.GoldBalance)
			assertDecimal(t, orZero(tt.wantStaked), b.StakedGoldBalance)
		})
	}
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func TestBook_PendingDoesNotMoveBalances(t *testing.T) {
	b := Book{GoldBalance: d("10")}
	stored, err := b.Record(Record{Type: TypeSend, Signature: "s1", FromToken: TokenGOLD, FromAmount: d("4"), Status: StatusPending})
	require.NoError(t, err)
	assert.False(t, stored.EffectApplied)
	assertDecimal(t, "10", b.GoldBalance)

	_, err = b.UpdateStatus("s1", StatusFailed)
	require.NoError(t, err)
	assertDecimal(t, "10", b.GoldBalance)
}

func TestBook_ConfirmTwiceAppliesOnce(t *testing.T) {
	b := Book{GoldBalance: d("10")}
	_, err := b.Record(Record{Type: TypeSend, Signature: "s1", FromToken: TokenGOLD, FromAmount: d("4"), Status: StatusPending})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		r, err := b.UpdateStatus("s1", StatusConfirmed)
		require.NoError(t, err)
		assert.True(t, r.EffectApplied)
	}
	assertDecimal(t, "6", b.GoldBalance)

	// Flapping back through pending does not re-apply either.
	_, err = b.UpdateStatus("s1", StatusPending)
	require.NoError(t, err)
	_, err = b.UpdateStatus("s1", StatusConfirmed)
	require.NoError(t, err)
	assertDecimal(t, "6", b.GoldBalance)
}

func TestBook_NeverNegative(t *testing.T) {
	b := Book{}
	types := []TxType{TypeSend, TypeStake, TypeUnstake, TypeSwap}
	for i := 0; i < 40; i++ {
		rec := Record{
			Type:       types[i%len(types)],
			Signature:  "sig" + decimal.NewFromInt(int64(i)).String(),
			FromToken:  TokenGOLD,
			ToToken:    TokenSOL,
			FromAmount: decimal.NewFromInt(int64(i*7%13 + 1)),
			Status:     StatusConfirmed,
		}
		if i%5 == 0 {
			rec.FromToken, rec.ToToken = TokenSOL, TokenGOLD
			rec.ToAmount = decimal.NewFromInt(3)
		}
		_, err := b.Record(rec)
		require.NoError(t, err)
		assert.False(t, b.GoldBalance.IsNegative())
		assert.False(t, b.StakedGoldBalance.IsNegative())
	}
}

func TestBook_NewestFirstAndLookups(t *testing.T) {
	b := Book{}
	for _, sig := range []string{"a", "b", "c"} {
		_, err := b.Record(Record{Type: TypeSend, Signature: sig, Status: StatusPending})
		require.NoError(t, err)
	}
	require.Len(t, b.Transactions, 3)
	assert.Equal(t, "c", b.Transactions[0].Signature)
	assert.Equal(t, "a", b.Transactions[2].Signature)

	_, err := b.Record(Record{Type: TypeSend, Signature: "b", Status: StatusPending})
	assert.ErrorIs(t, err, ErrDuplicateSignature)

	_, err = b.UpdateStatus("zzz", StatusConfirmed)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	b.ClearHistory()
	assert.Empty(t, b.Transactions)
}

func TestBook_Validation(t *testing.T) {
	tests := []struct {
		name   string
		record Record
	}{
		{"unknown type", Record{Type: "mint", Signature: "s", Status: StatusPending}},
		{"unknown status", Record{Type: TypeSend, Signature: "s", Status: "done"}},
		{"missing signature", Record{Type: TypeSend, Status: StatusPending}},
		{"negative amount", Record{Type: TypeSend, Signature: "s", Status: StatusPending, FromAmount: d("-1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Book{}
			_, err := b.Record(tt.record)
			assert.Error(t, err)
			assert.Empty(t, b.Transactions)
		})
	}
}

func TestBook_Reconcile(t *testing.T) {
	b := Book{GoldBalance: d("10")}
	b.Reconcile(d("42.5"))
	assertDecimal(t, "42.5", b.GoldBalance)
	b.Reconcile(d("-1"))
	assertDecimal(t, "0", b.GoldBalance)
}
