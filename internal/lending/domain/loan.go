package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrLoanNotFound           = errors.New("loan not found")
	ErrLoanNotActive          = errors.New("loan not active")
	ErrExceedsBalance         = errors.New("amount exceeds remaining balance")
	ErrExceedsLoanToValue     = errors.New("requested principal exceeds loan-to-value limit")
	ErrBelowMinimumCollateral = errors.New("collateral below minimum lock amount")
	ErrAmountOutOfBounds      = errors.New("loan amount outside configured bounds")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidExtension       = errors.New("unsupported extension period")
	ErrNotLiquidatable        = errors.New("loan not flagged for liquidation")
	ErrDuplicateLoanID        = errors.New("duplicate loan id")
	ErrStorageUnavailable     = errors.New("storage unavailable")
)

type LoanStatus string

const (
	LoanStatusActive     LoanStatus = "ACTIVE"
	LoanStatusRepaid     LoanStatus = "REPAID"
	LoanStatusLiquidated LoanStatus = "LIQUIDATED"
	LoanStatusDefaulted  LoanStatus = "DEFAULTED"
)

// IsTerminal reports whether no further transitions are possible.
func (s LoanStatus) IsTerminal() bool {
	return s == LoanStatusRepaid || s == LoanStatusLiquidated || s == LoanStatusDefaulted
}

// LoanPosition is a single collateralized borrowing. The record store owns
// the canonical copy; everything else works on values read from it.
type LoanPosition struct {
	ID                 string          `json:"id"`
	AccountID          string          `json:"account_id"`
	CollateralAmount   decimal.Decimal `json:"collateral_amount"`
	Principal          decimal.Decimal `json:"principal"`
	InterestRateAnnual decimal.Decimal `json:"interest_rate_annual"`
	RemainingBalance   decimal.Decimal `json:"remaining_balance"`
	PaidInterest       decimal.Decimal `json:"paid_interest"`
	Status             LoanStatus      `json:"status"`
	LiquidationRisk    bool            `json:"liquidation_risk"`
	CustodyReference   string          `json:"custody_reference"`
	LastAccrualAt      time.Time       `json:"last_accrual_at"`
	CreatedAt          time.Time       `json:"created_at"`
	DueAt              time.Time       `json:"due_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NewLoanPosition creates an active position with the full principal
// outstanding and a fresh id.
func NewLoanPosition(accountID, custodyRef string, collateralAmount, principal, annualRate decimal.Decimal, durationDays int, now time.Time) (*LoanPosition, error) {
	if !collateralAmount.IsPositive() || !principal.IsPositive() || annualRate.IsNegative() || durationDays <= 0 {
		return nil, ErrInvalidInput
	}
	return &LoanPosition{
		ID:                 uuid.NewString(),
		AccountID:          accountID,
		CollateralAmount:   collateralAmount,
		Principal:          principal,
		InterestRateAnnual: annualRate,
		RemainingBalance:   principal,
		PaidInterest:       decimal.Zero,
		Status:             LoanStatusActive,
		CustodyReference:   custodyRef,
		LastAccrualAt:      now,
		CreatedAt:          now,
		DueAt:              now.AddDate(0, 0, durationDays),
		UpdatedAt:          now,
	}, nil
}

// Repay reduces the remaining balance by amount, attributing the interest
// accrued since the last accrual point to PaidInterest. Reaching exactly
// zero transitions the position to Repaid.
func (l *LoanPosition) Repay(amount decimal.Decimal, now time.Time) error {
	if l.Status != LoanStatusActive {
		return ErrLoanNotActive
	}
	if !amount.IsPositive() {
		return ErrInvalidInput
	}
	if amount.GreaterThan(l.RemainingBalance) {
		return ErrExceedsBalance
	}

	accrued := AccruedInterest(l.RemainingBalance, l.InterestRateAnnual, DaysBetween(l.LastAccrualAt, now))
	interestPortion := decimal.Min(amount, accrued)
	l.PaidInterest = l.PaidInterest.Add(interestPortion)

	l.RemainingBalance = l.RemainingBalance.Sub(amount)
	l.LastAccrualAt = now

	if l.RemainingBalance.IsZero() {
		l.Status = LoanStatusRepaid
		l.LiquidationRisk = false
	}
	l.UpdatedAt = now
	return nil
}

// Extend pushes the due date forward and capitalizes the flat fee into
// both principal and remaining balance, keeping balance ≤ principal.
func (l *LoanPosition) Extend(extensionDays int, fee decimal.Decimal, now time.Time) error {
	if l.Status != LoanStatusActive {
		return ErrLoanNotActive
	}
	if extensionDays <= 0 || fee.IsNegative() {
		return ErrInvalidInput
	}
	l.DueAt = l.DueAt.AddDate(0, 0, extensionDays)
	l.Principal = l.Principal.Add(fee)
	l.RemainingBalance = l.RemainingBalance.Add(fee)
	l.UpdatedAt = now
	return nil
}

// Reprice recomputes the liquidation flag against price. It never touches
// the remaining balance, so repeated calls with the same price are
// idempotent. Returns whether the flag value changed.
func (l *LoanPosition) Reprice(price, liquidationThreshold decimal.Decimal, now time.Time) bool {
	if l.Status != LoanStatusActive {
		return false
	}
	value := l.CollateralAmount.Mul(price)
	atRisk := false
	if hf, ok := HealthFactor(value, l.RemainingBalance); ok {
		atRisk = hf.LessThan(liquidationThreshold)
	}
	changed := atRisk != l.LiquidationRisk
	l.LiquidationRisk = atRisk
	if changed {
		l.UpdatedAt = now
	}
	return changed
}

// IsPastGrace reports whether an active position is overdue beyond the
// grace period.
func (l *LoanPosition) IsPastGrace(gracePeriodDays int, now time.Time) bool {
	return l.Status == LoanStatusActive && now.After(l.DueAt.AddDate(0, 0, gracePeriodDays))
}

// MarkDefaulted transitions an overdue active position to Defaulted.
func (l *LoanPosition) MarkDefaulted(now time.Time) error {
	if l.Status != LoanStatusActive {
		return ErrLoanNotActive
	}
	l.Status = LoanStatusDefaulted
	l.UpdatedAt = now
	return nil
}

// MarkLiquidated transitions a flagged active position to Liquidated.
// Collateral seizure itself happens outside this service.
func (l *LoanPosition) MarkLiquidated(now time.Time) error {
	if l.Status != LoanStatusActive {
		return ErrLoanNotActive
	}
	if !l.LiquidationRisk {
		return ErrNotLiquidatable
	}
	l.Status = LoanStatusLiquidated
	l.UpdatedAt = now
	return nil
}

// Valuation is the price-dependent view of a position. Derived on read,
// never stored.
type Valuation struct {
	CollateralValue  decimal.Decimal `json:"collateral_value"`
	HealthFactor     decimal.Decimal `json:"health_factor"`
	HealthDefined    bool            `json:"health_defined"`
	LiquidationRisk  bool            `json:"liquidation_risk"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	RiskTier         RiskTier        `json:"risk_tier"`
	AccruedInterest  decimal.Decimal `json:"accrued_interest"`
}

// ValueAt derives the valuation of the position at price as of now.
func (l *LoanPosition) ValueAt(price, liquidationThreshold decimal.Decimal, now time.Time) Valuation {
	value := l.CollateralAmount.Mul(price)
	v := Valuation{
		CollateralValue:  value,
		LiquidationPrice: LiquidationPrice(l.RemainingBalance, liquidationThreshold, l.CollateralAmount),
		RiskTier:         RiskTierLow,
		AccruedInterest:  AccruedInterest(l.RemainingBalance, l.InterestRateAnnual, DaysBetween(l.LastAccrualAt, now)),
	}
	if hf, ok := HealthFactor(value, l.RemainingBalance); ok {
		v.HealthFactor = hf
		v.HealthDefined = true
		v.LiquidationRisk = hf.LessThan(liquidationThreshold)
		v.RiskTier = TierFor(hf)
	}
	return v
}

// Params are the protocol constants every lifecycle decision consults.
type Params struct {
	LoanToValueRatio     decimal.Decimal
	LiquidationThreshold decimal.Decimal
	InterestRateAnnual   decimal.Decimal
	MinimumCollateral    decimal.Decimal
	MaximumCollateral    decimal.Decimal
	MinimumLoanAmount    decimal.Decimal
	MaximumLoanAmount    decimal.Decimal
	MaxDurationDays      int
	GracePeriodDays      int
	// ExtensionFees is the flat fee schedule keyed by extension days.
	ExtensionFees map[int]decimal.Decimal
}

// DefaultParams returns the protocol defaults: 70% LTV, 8% APR, 0.8
// liquidation threshold, 0.001–100 BTC lock, $100–$1M loans, 365 day max
// term, 30 day grace and the 30/60/90 day fee table.
func DefaultParams() Params {
	return Params{
		LoanToValueRatio:     decimal.NewFromFloat(0.7),
		LiquidationThreshold: decimal.NewFromFloat(0.8),
		InterestRateAnnual:   decimal.NewFromFloat(0.08),
		MinimumCollateral:    decimal.NewFromFloat(0.001),
		MaximumCollateral:    decimal.NewFromInt(100),
		MinimumLoanAmount:    decimal.NewFromInt(100),
		MaximumLoanAmount:    decimal.NewFromInt(1000000),
		MaxDurationDays:      365,
		GracePeriodDays:      30,
		ExtensionFees: map[int]decimal.Decimal{
			30: decimal.NewFromInt(50),
			60: decimal.NewFromInt(90),
			90: decimal.NewFromInt(120),
		},
	}
}

// ExtensionFee looks up the flat fee for extensionDays.
func (p Params) ExtensionFee(extensionDays int) (decimal.Decimal, bool) {
	fee, ok := p.ExtensionFees[extensionDays]
	return fee, ok
}
