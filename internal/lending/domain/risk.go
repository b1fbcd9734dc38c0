package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Risk tier boundaries on the health factor. Protocol constants, not
// derived from the liquidation threshold.
var (
	riskTierLowMin    = decimal.NewFromFloat(2.0)
	riskTierMediumMin = decimal.NewFromFloat(1.5)
)

var daysPerYear = decimal.NewFromInt(365)

// RiskTier buckets a position by health factor.
type RiskTier string

const (
	RiskTierLow    RiskTier = "LOW"
	RiskTierMedium RiskTier = "MEDIUM"
	RiskTierHigh   RiskTier = "HIGH"
)

// CollateralValue returns collateralAmount × price.
func CollateralValue(collateralAmount, price decimal.Decimal) (decimal.Decimal, error) {
	if collateralAmount.IsNegative() || price.IsNegative() {
		return decimal.Zero, ErrInvalidInput
	}
	return collateralAmount.Mul(price), nil
}

// AccruedInterest computes simple daily interest over elapsedDays:
// principal × (annualRate / 365) × elapsedDays. The accrual is not
// compounded; historical repayment amounts depend on this staying exact.
func AccruedInterest(principal, annualRate, elapsedDays decimal.Decimal) decimal.Decimal {
	return principal.Mul(annualRate).Div(daysPerYear).Mul(elapsedDays)
}

// TotalRepayment returns principal plus the interest accrued over the
// full term.
func TotalRepayment(principal, annualRate, durationDays decimal.Decimal) decimal.Decimal {
	return principal.Add(AccruedInterest(principal, annualRate, durationDays))
}

// HealthFactor returns collateralValue / remainingBalance. The second
// return is false when remainingBalance is zero and the ratio is
// undefined (treated as infinitely healthy).
func HealthFactor(collateralValue, remainingBalance decimal.Decimal) (decimal.Decimal, bool) {
	if remainingBalance.IsZero() {
		return decimal.Zero, false
	}
	return collateralValue.Div(remainingBalance), true
}

// LiquidationPrice returns the collateral price at which the health
// factor would equal liquidationThreshold.
func LiquidationPrice(remainingBalance, liquidationThreshold, collateralAmount decimal.Decimal) decimal.Decimal {
	if collateralAmount.IsZero() {
		return decimal.Zero
	}
	return remainingBalance.Mul(liquidationThreshold).Div(collateralAmount)
}

// TierFor buckets a defined health factor.
func TierFor(healthFactor decimal.Decimal) RiskTier {
	switch {
	case healthFactor.GreaterThanOrEqual(riskTierLowMin):
		return RiskTierLow
	case healthFactor.GreaterThanOrEqual(riskTierMediumMin):
		return RiskTierMedium
	default:
		return RiskTierHigh
	}
}

// DaysBetween returns the fractional days from from to to, floored at zero.
func DaysBetween(from, to time.Time) decimal.Decimal {
	if !to.After(from) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(to.Sub(from).Hours() / 24)
}
