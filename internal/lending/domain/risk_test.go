package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCollateralValue(t *testing.T) {
	value, err := CollateralValue(d("0.5"), d("45000"))
	require.NoError(t, err)
	assert.True(t, value.Equal(d("22500")), "got %s", value)

	_, err = CollateralValue(d("-0.5"), d("45000"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = CollateralValue(d("0.5"), d("-1"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	zero, err := CollateralValue(decimal.Zero, d("45000"))
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}

func TestAccruedInterest(t *testing.T) {
	// 10000 at 8% APR over 90 days: 10000 * 0.08 / 365 * 90.
	got := AccruedInterest(d("10000"), d("0.08"), d("90"))
	assert.Equal(t, "197.26", got.StringFixed(2))

	assert.True(t, AccruedInterest(d("10000"), d("0.08"), decimal.Zero).IsZero())
	assert.True(t, AccruedInterest(decimal.Zero, d("0.08"), d("90")).IsZero())
}

func TestTotalRepayment(t *testing.T) {
	got := TotalRepayment(d("10000"), d("0.08"), d("365"))
	assert.Equal(t, "10800.00", got.StringFixed(2))
}

func TestHealthFactor(t *testing.T) {
	hf, ok := HealthFactor(d("22500"), d("15750"))
	require.True(t, ok)
	assert.Equal(t, "1.4286", hf.StringFixed(4))

	_, ok = HealthFactor(d("22500"), decimal.Zero)
	assert.False(t, ok, "zero balance has no defined health factor")
}

func TestLiquidationPrice(t *testing.T) {
	// Price at which 0.5 BTC backing 15750 hits a 0.8 health factor.
	got := LiquidationPrice(d("15750"), d("0.8"), d("0.5"))
	assert.True(t, got.Equal(d("25200")), "got %s", got)

	assert.True(t, LiquidationPrice(d("15750"), d("0.8"), decimal.Zero).IsZero())
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		healthFactor string
		want         RiskTier
	}{
		{"3.0", RiskTierLow},
		{"2.0", RiskTierLow},
		{"1.99", RiskTierMedium},
		{"1.5", RiskTierMedium},
		{"1.49", RiskTierHigh},
		{"0.5", RiskTierHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(d(tt.healthFactor)), "health factor %s", tt.healthFactor)
	}
}

func TestDaysBetween(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got := DaysBetween(from, from.Add(36*time.Hour))
	assert.True(t, got.Equal(d("1.5")), "got %s", got)

	assert.True(t, DaysBetween(from, from).IsZero())
	assert.True(t, DaysBetween(from, from.Add(-time.Hour)).IsZero(), "negative spans floor at zero")
}
