package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestLoan(t *testing.T) *LoanPosition {
	t.Helper()
	loan, err := NewLoanPosition("acct-1", "lock-1", d("0.5"), d("10000"), d("0.08"), 180, testStart)
	require.NoError(t, err)
	return loan
}

func TestNewLoanPosition(t *testing.T) {
	loan := newTestLoan(t)

	assert.NotEmpty(t, loan.ID)
	assert.Equal(t, LoanStatusActive, loan.Status)
	assert.True(t, loan.RemainingBalance.Equal(loan.Principal))
	assert.True(t, loan.PaidInterest.IsZero())
	assert.False(t, loan.LiquidationRisk)
	assert.Equal(t, testStart.AddDate(0, 0, 180), loan.DueAt)
}

func TestNewLoanPositionRejectsBadInput(t *testing.T) {
	_, err := NewLoanPosition("a", "l", decimal.Zero, d("100"), d("0.08"), 30, testStart)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewLoanPosition("a", "l", d("1"), d("-100"), d("0.08"), 30, testStart)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewLoanPosition("a", "l", d("1"), d("100"), d("0.08"), 0, testStart)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRepayReducesBalance(t *testing.T) {
	loan := newTestLoan(t)

	require.NoError(t, loan.Repay(d("4000"), testStart.AddDate(0, 0, 30)))
	assert.True(t, loan.RemainingBalance.Equal(d("6000")), "got %s", loan.RemainingBalance)
	assert.Equal(t, LoanStatusActive, loan.Status)
}

func TestRepayAttributesInterest(t *testing.T) {
	loan := newTestLoan(t)

	// 30 days of accrual on 10000 at 8%: 65.75. A larger repayment
	// attributes exactly that much to interest.
	require.NoError(t, loan.Repay(d("1000"), testStart.AddDate(0, 0, 30)))
	assert.Equal(t, "65.75", loan.PaidInterest.StringFixed(2))

	// A repayment smaller than the newly accrued interest is all interest.
	loan2 := newTestLoan(t)
	require.NoError(t, loan2.Repay(d("10"), testStart.AddDate(0, 0, 30)))
	assert.Equal(t, "10.00", loan2.PaidInterest.StringFixed(2))
}

func TestRepayExactBalanceCloses(t *testing.T) {
	loan := newTestLoan(t)

	loan.LiquidationRisk = true
	require.NoError(t, loan.Repay(d("10000"), testStart.AddDate(0, 0, 10)))
	assert.Equal(t, LoanStatusRepaid, loan.Status)
	assert.True(t, loan.RemainingBalance.IsZero())
	assert.False(t, loan.LiquidationRisk, "closing clears the flag")

	assert.ErrorIs(t, loan.Repay(d("1"), testStart.AddDate(0, 0, 11)), ErrLoanNotActive)
}

func TestRepayRejectsOverpayment(t *testing.T) {
	loan := newTestLoan(t)
	err := loan.Repay(d("10000.01"), testStart.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, ErrExceedsBalance)
	assert.True(t, loan.RemainingBalance.Equal(d("10000")), "failed repayment must not change state")
}

func TestRepayRejectsNonPositive(t *testing.T) {
	loan := newTestLoan(t)
	assert.ErrorIs(t, loan.Repay(decimal.Zero, testStart), ErrInvalidInput)
	assert.ErrorIs(t, loan.Repay(d("-5"), testStart), ErrInvalidInput)
}

func TestExtendCapitalizesFee(t *testing.T) {
	loan := newTestLoan(t)
	originalDue := loan.DueAt

	require.NoError(t, loan.Extend(30, d("50"), testStart.AddDate(0, 0, 5)))
	assert.Equal(t, originalDue.AddDate(0, 0, 30), loan.DueAt)
	assert.True(t, loan.Principal.Equal(d("10050")))
	assert.True(t, loan.RemainingBalance.Equal(d("10050")))
	assert.True(t, loan.RemainingBalance.LessThanOrEqual(loan.Principal))
}

func TestExtendRequiresActive(t *testing.T) {
	loan := newTestLoan(t)
	require.NoError(t, loan.Repay(d("10000"), testStart))
	assert.ErrorIs(t, loan.Extend(30, d("50"), testStart), ErrLoanNotActive)
}

func TestRepriceFlagsAndClears(t *testing.T) {
	loan := newTestLoan(t)
	threshold := d("0.8")

	// 0.5 BTC backing 10000: health factor 0.75 at 15000.
	changed := loan.Reprice(d("15000"), threshold, testStart.Add(time.Hour))
	assert.True(t, changed)
	assert.True(t, loan.LiquidationRisk)

	// Same price again: idempotent.
	changed = loan.Reprice(d("15000"), threshold, testStart.Add(2*time.Hour))
	assert.False(t, changed)
	assert.True(t, loan.LiquidationRisk)

	// Recovery clears the flag without touching the balance.
	changed = loan.Reprice(d("45000"), threshold, testStart.Add(3*time.Hour))
	assert.True(t, changed)
	assert.False(t, loan.LiquidationRisk)
	assert.True(t, loan.RemainingBalance.Equal(d("10000")))
}

func TestRepriceExactThresholdNotFlagged(t *testing.T) {
	loan := newTestLoan(t)
	// Health factor exactly 0.8: 0.5 * 16000 / 10000.
	loan.Reprice(d("16000"), d("0.8"), testStart)
	assert.False(t, loan.LiquidationRisk, "flag requires strictly below threshold")
}

func TestIsPastGrace(t *testing.T) {
	loan := newTestLoan(t)

	assert.False(t, loan.IsPastGrace(30, loan.DueAt.AddDate(0, 0, 30)))
	assert.True(t, loan.IsPastGrace(30, loan.DueAt.AddDate(0, 0, 31)))

	require.NoError(t, loan.MarkDefaulted(testStart))
	assert.False(t, loan.IsPastGrace(30, loan.DueAt.AddDate(0, 0, 60)), "terminal positions are never past grace")
}

func TestMarkLiquidated(t *testing.T) {
	loan := newTestLoan(t)

	assert.ErrorIs(t, loan.MarkLiquidated(testStart), ErrNotLiquidatable)

	loan.Reprice(d("10000"), d("0.8"), testStart)
	require.True(t, loan.LiquidationRisk)
	require.NoError(t, loan.MarkLiquidated(testStart))
	assert.Equal(t, LoanStatusLiquidated, loan.Status)

	assert.ErrorIs(t, loan.MarkLiquidated(testStart), ErrLoanNotActive)
}

func TestValueAt(t *testing.T) {
	loan := newTestLoan(t)

	v := loan.ValueAt(d("45000"), d("0.8"), testStart.AddDate(0, 0, 90))
	assert.True(t, v.CollateralValue.Equal(d("22500")))
	require.True(t, v.HealthDefined)
	assert.Equal(t, "2.25", v.HealthFactor.StringFixed(2))
	assert.Equal(t, RiskTierLow, v.RiskTier)
	assert.False(t, v.LiquidationRisk)
	assert.Equal(t, "197.26", v.AccruedInterest.StringFixed(2))
	assert.True(t, v.LiquidationPrice.Equal(d("16000")), "got %s", v.LiquidationPrice)
}

func TestLoanPositionJSONRoundTrip(t *testing.T) {
	loan := newTestLoan(t)

	data, err := json.Marshal(loan)
	require.NoError(t, err)

	var decoded LoanPosition
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, loan.ID, decoded.ID)
	assert.Equal(t, loan.Status, decoded.Status)
	assert.True(t, decoded.RemainingBalance.Equal(loan.RemainingBalance))
	assert.True(t, decoded.CollateralAmount.Equal(loan.CollateralAmount))
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()

	fee, ok := p.ExtensionFee(60)
	require.True(t, ok)
	assert.True(t, fee.Equal(d("90")))

	_, ok = p.ExtensionFee(45)
	assert.False(t, ok)
}
