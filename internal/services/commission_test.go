package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCommission(t *testing.T) {
	tests := []struct {
		name   string
		charge string
		rate   string
		want   string
	}{
		{"starter plan", "79.00", "0.20", "15.80"},
		{"zero charge", "0", "0.20", "0"},
		{"rounds half up", "0.025", "1", "0.03"},
		{"rounds to cents", "33.33", "0.20", "6.67"},
		{"custom rate", "199.99", "0.30", "60.00"},
		{"zero rate", "120.00", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeCommission(dec(tt.charge), dec(tt.rate))
			require.NoError(t, err)
			assert.True(t, dec(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestComputeCommissionMatchesRoundedProduct(t *testing.T) {
	for cents := int64(0); cents <= 20000; cents += 137 {
		charge := decimal.New(cents, -2)
		got, err := ComputeCommission(charge, DefaultCommissionRate)
		require.NoError(t, err)
		assert.True(t, charge.Mul(dec("0.20")).Round(2).Equal(got), "charge %s", charge)
	}
}

func TestComputeCommissionRejectsInvalidInput(t *testing.T) {
	_, err := ComputeCommission(dec("-1.00"), DefaultCommissionRate)
	assert.ErrorIs(t, err, ErrInvalidChargeAmount)

	_, err = ComputeCommission(dec("10.00"), dec("-0.01"))
	assert.ErrorIs(t, err, ErrInvalidCommissionRate)

	_, err = ComputeCommission(dec("10.00"), dec("1.01"))
	assert.ErrorIs(t, err, ErrInvalidCommissionRate)
}

func TestComputeConversionRate(t *testing.T) {
	assert.True(t, ComputeConversionRate(0, 0).Equal(decimal.Zero))
	assert.True(t, ComputeConversionRate(5, 0).Equal(decimal.Zero))
	assert.Equal(t, "50.0", ComputeConversionRate(1, 2).StringFixed(1))
	assert.Equal(t, "33.3", ComputeConversionRate(1, 3).StringFixed(1))
	assert.Equal(t, "66.7", ComputeConversionRate(2, 3).StringFixed(1))
	assert.Equal(t, "100.0", ComputeConversionRate(4, 4).StringFixed(1))
}

func TestCanRequestPayout(t *testing.T) {
	assert.False(t, CanRequestPayout(dec("49.99"), dec("50.00")))
	assert.True(t, CanRequestPayout(dec("50.00"), dec("50.00")))
	assert.True(t, CanRequestPayout(dec("50.01"), DefaultPayoutThreshold))
	assert.False(t, CanRequestPayout(decimal.Zero, DefaultPayoutThreshold))
}
