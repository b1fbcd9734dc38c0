package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hodlfi/btclending/internal/lending/domain"
)

// PriceSource provides the latest observed collateral price.
type PriceSource interface {
	Latest(ctx context.Context) (decimal.Decimal, bool, error)
}

// Summary is the aggregate view of one account's active positions.
// Terminal positions contribute to the counters only.
type Summary struct {
	AccountID            string          `json:"account_id"`
	ActiveLoans          int             `json:"active_loans"`
	TotalBorrowed        decimal.Decimal `json:"total_borrowed"`
	TotalCollateral      decimal.Decimal `json:"total_collateral"`
	TotalCollateralValue decimal.Decimal `json:"total_collateral_value"`
	TotalAccruedInterest decimal.Decimal `json:"total_accrued_interest"`
	TotalRepaymentDue    decimal.Decimal `json:"total_repayment_due"`
	HealthFactor         decimal.Decimal `json:"health_factor"`
	HealthDefined        bool            `json:"health_defined"`
	RiskTier             domain.RiskTier `json:"risk_tier"`
	Price                decimal.Decimal `json:"price"`
	PriceKnown           bool            `json:"price_known"`
}

// Stats counts an account's positions by lifecycle status.
type Stats struct {
	AccountID  string `json:"account_id"`
	Total      int    `json:"total"`
	Active     int    `json:"active"`
	Repaid     int    `json:"repaid"`
	Liquidated int    `json:"liquidated"`
	Defaulted  int    `json:"defaulted"`
	AtRisk     int    `json:"at_risk"`
}

// AtRiskPosition pairs a flagged position with its current valuation.
type AtRiskPosition struct {
	Loan      *domain.LoanPosition `json:"loan"`
	Valuation domain.Valuation     `json:"valuation"`
}

// PortfolioService derives read-side aggregates from the loan record
// store. It never mutates positions.
type PortfolioService struct {
	loans  domain.LoanRepository
	prices PriceSource
	params domain.Params
	logger *slog.Logger
	now    func() time.Time
}

func NewPortfolioService(loans domain.LoanRepository, prices PriceSource, params domain.Params, logger *slog.Logger) *PortfolioService {
	return &PortfolioService{
		loans:  loans,
		prices: prices,
		params: params,
		logger: logger,
		now:    time.Now,
	}
}

// Summarize aggregates the account's active positions at the latest
// price. Price-dependent fields are zero with PriceKnown false when no
// price has been observed.
func (s *PortfolioService) Summarize(ctx context.Context, accountID string) (*Summary, error) {
	loans, err := s.loans.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	price, priceKnown, err := s.prices.Latest(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "price lookup failed, summarizing without valuation", "error", err)
		priceKnown = false
	}

	now := s.now()
	summary := &Summary{
		AccountID:            accountID,
		TotalBorrowed:        decimal.Zero,
		TotalCollateral:      decimal.Zero,
		TotalCollateralValue: decimal.Zero,
		TotalAccruedInterest: decimal.Zero,
		TotalRepaymentDue:    decimal.Zero,
		RiskTier:             domain.RiskTierLow,
		Price:                price,
		PriceKnown:           priceKnown,
	}

	for _, loan := range loans {
		if loan.Status != domain.LoanStatusActive {
			continue
		}
		summary.ActiveLoans++
		summary.TotalBorrowed = summary.TotalBorrowed.Add(loan.RemainingBalance)
		summary.TotalCollateral = summary.TotalCollateral.Add(loan.CollateralAmount)

		accrued := domain.AccruedInterest(loan.RemainingBalance, loan.InterestRateAnnual, domain.DaysBetween(loan.LastAccrualAt, now))
		summary.TotalAccruedInterest = summary.TotalAccruedInterest.Add(accrued)
		summary.TotalRepaymentDue = summary.TotalRepaymentDue.Add(loan.RemainingBalance.Add(accrued))

		if priceKnown {
			summary.TotalCollateralValue = summary.TotalCollateralValue.Add(loan.CollateralAmount.Mul(price))
		}
	}

	if priceKnown {
		if hf, ok := domain.HealthFactor(summary.TotalCollateralValue, summary.TotalBorrowed); ok {
			summary.HealthFactor = hf
			summary.HealthDefined = true
			summary.RiskTier = domain.TierFor(hf)
		}
	}
	return summary, nil
}

// GetStats counts the account's positions by status.
func (s *PortfolioService) GetStats(ctx context.Context, accountID string) (*Stats, error) {
	loans, err := s.loans.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{AccountID: accountID, Total: len(loans)}
	for _, loan := range loans {
		switch loan.Status {
		case domain.LoanStatusActive:
			stats.Active++
			if loan.LiquidationRisk {
				stats.AtRisk++
			}
		case domain.LoanStatusRepaid:
			stats.Repaid++
		case domain.LoanStatusLiquidated:
			stats.Liquidated++
		case domain.LoanStatusDefaulted:
			stats.Defaulted++
		}
	}
	return stats, nil
}

// ListAtRisk returns the active positions currently flagged as
// liquidation candidates, with valuations when a price is known. An
// empty accountID means all accounts.
func (s *PortfolioService) ListAtRisk(ctx context.Context, accountID string) ([]AtRiskPosition, error) {
	loans, err := s.loans.ListByStatus(ctx, domain.LoanStatusActive)
	if err != nil {
		return nil, err
	}

	price, priceKnown, err := s.prices.Latest(ctx)
	if err != nil {
		priceKnown = false
	}

	now := s.now()
	atRisk := make([]AtRiskPosition, 0)
	for _, loan := range loans {
		if !loan.LiquidationRisk {
			continue
		}
		if accountID != "" && loan.AccountID != accountID {
			continue
		}
		position := AtRiskPosition{Loan: loan}
		if priceKnown {
			position.Valuation = loan.ValueAt(price, s.params.LiquidationThreshold, now)
		}
		atRisk = append(atRisk, position)
	}
	return atRisk, nil
}

// WithClock overrides the time source. Test hook.
func (s *PortfolioService) WithClock(now func() time.Time) *PortfolioService {
	s.now = now
	return s
}
