package models

import (
	"testing"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestAmountRemaining(t *testing.T) {
	tests := []struct {
		name      string
		total     string
		charged   string
		cancelled string
		want      string
	}{
		{name: "untouched", total: "100", charged: "0", cancelled: "0", want: "100"},
		{name: "partly charged", total: "100", charged: "30", cancelled: "0", want: "70"},
		{name: "charged and cancelled", total: "100", charged: "30", cancelled: "20.5", want: "49.5"},
		{name: "fully used", total: "100", charged: "60", cancelled: "40", want: "0"},
		{name: "floored at zero", total: "100", charged: "80", cancelled: "40", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAmount(dec(tt.total))
			a.SetCharged(dec(tt.charged))
			a.SetCancelled(dec(tt.cancelled))
			assert.True(t, a.Remaining().Equal(dec(tt.want)), "got %s", a.Remaining())
		})
	}
}

func TestAmountApply(t *testing.T) {
	t.Run("books charged and cancelled deltas", func(t *testing.T) {
		a := NewAmount(dec("100"))
		require.NoError(t, a.Apply(AmountCharged, dec("40")))
		require.NoError(t, a.Apply(AmountCancelled, dec("60")))
		assert.True(t, a.Charged().Equal(dec("40")))
		assert.True(t, a.Cancelled().Equal(dec("60")))
		assert.True(t, a.Remaining().IsZero())
	})

	t.Run("rejects negative delta", func(t *testing.T) {
		a := NewAmount(dec("100"))
		err := a.Apply(AmountCancelled, dec("-1"))
		require.Error(t, err)
		assert.True(t, apierr.IsUsage(err))
		assert.True(t, a.Cancelled().IsZero())
	})

	t.Run("rejects delta above remaining", func(t *testing.T) {
		a := NewAmount(dec("100"))
		require.NoError(t, a.Apply(AmountCharged, dec("90")))
		err := a.Apply(AmountCancelled, dec("10.01"))
		require.Error(t, err)
		assert.True(t, apierr.IsUsage(err))
		assert.True(t, a.Remaining().Equal(dec("10")))
	})

	t.Run("book bypasses the local check", func(t *testing.T) {
		a := NewAmount(dec("10"))
		a.Book(AmountCancelled, dec("15"))
		assert.True(t, a.Remaining().IsZero())
	})
}
