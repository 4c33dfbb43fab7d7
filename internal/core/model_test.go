package core_test

import (
	"testing"

	"farm-ledger/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerType_Normalize(t *testing.T) {
	tests := []struct {
		typ    core.LedgerType
		amount int64
		want   int64
	}{
		{core.LedgerPayment, 5000, -5000},
		{core.LedgerPayment, -5000, -5000},
		{core.LedgerReturn, 300, -300},
		{core.LedgerSaleCancel, 300, -300},
		{core.LedgerCarryOver, -5000, 5000},
		{core.LedgerSale, -1, 1},
		{core.LedgerReceivable, 10, 10},
		{core.LedgerAdjustment, -250, -250},
		{core.LedgerAdjustment, 250, 250},
		{core.LedgerSale, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.typ.Normalize(tt.amount), "%s %d", tt.typ, tt.amount)
	}
	assert.False(t, core.LedgerType("외상").IsValid())
}

func TestMaterialRequirement_RoundsUp(t *testing.T) {
	tests := []struct {
		qty, ratio string
		want       int
	}{
		{"4", "2.5", 10},
		{"3", "0.3", 1},
		{"10", "0.3", 3},
		{"12.5", "0.3", 4},
		{"1", "1", 1},
		{"7", "0.0001", 1},
	}
	for _, tt := range tests {
		got := core.MaterialRequirement(decimal.RequireFromString(tt.qty), decimal.RequireFromString(tt.ratio))
		assert.Equal(t, tt.want, got, "%s x %s", tt.qty, tt.ratio)
	}
}

func TestParseDate(t *testing.T) {
	for in, want := range map[string]string{
		"2024-01-05":   "2024-01-05",
		"20240105":     "2024-01-05",
		" 2024-12-31 ": "2024-12-31",
	} {
		got, err := core.ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"", "2024-02-30", "2024/01/05", "240105"} {
		_, err := core.ParseDate(in)
		assert.ErrorIs(t, err, core.ErrValidation, in)
	}
}

func TestSaleStatus_Terminal(t *testing.T) {
	for _, s := range []core.SaleStatus{core.SaleReceived, core.SalePaid, core.SaleShipping} {
		assert.True(t, s.IsValid())
		assert.False(t, s.IsTerminal(), s)
	}
	for _, s := range []core.SaleStatus{core.SaleDelivered, core.SaleCancelled, core.SaleReturned, core.SaleExchanged} {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, core.SaleStatus("보류").IsValid())
}
