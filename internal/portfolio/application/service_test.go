package application

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hodlfi/btclending/internal/lending/domain"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeLoanRepo struct {
	loans []*domain.LoanPosition
}

func (r *fakeLoanRepo) Create(_ context.Context, loan *domain.LoanPosition) error {
	r.loans = append(r.loans, loan)
	return nil
}

func (r *fakeLoanRepo) Get(_ context.Context, id string) (*domain.LoanPosition, error) {
	for _, l := range r.loans {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, domain.ErrLoanNotFound
}

func (r *fakeLoanRepo) ListByAccount(_ context.Context, accountID string) ([]*domain.LoanPosition, error) {
	var out []*domain.LoanPosition
	for _, l := range r.loans {
		if l.AccountID == accountID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeLoanRepo) ListByStatus(_ context.Context, status domain.LoanStatus) ([]*domain.LoanPosition, error) {
	var out []*domain.LoanPosition
	for _, l := range r.loans {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeLoanRepo) ListAll(_ context.Context) ([]*domain.LoanPosition, error) {
	return r.loans, nil
}

func (r *fakeLoanRepo) Update(_ context.Context, id string, mutate func(*domain.LoanPosition) error) (*domain.LoanPosition, error) {
	loan, err := r.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if err := mutate(loan); err != nil {
		return nil, err
	}
	return loan, nil
}

type staticPrice struct {
	price decimal.Decimal
	known bool
}

func (p staticPrice) Latest(context.Context) (decimal.Decimal, bool, error) {
	return p.price, p.known, nil
}

func mustLoan(t *testing.T, accountID, collateral, principal string, durationDays int) *domain.LoanPosition {
	t.Helper()
	loan, err := domain.NewLoanPosition(accountID, "lock", d(collateral), d(principal), d("0.08"), durationDays, testStart)
	require.NoError(t, err)
	return loan
}

func newService(repo *fakeLoanRepo, prices PriceSource) *PortfolioService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPortfolioService(repo, prices, domain.DefaultParams(), logger).
		WithClock(func() time.Time { return testStart.AddDate(0, 0, 30) })
}

func TestSummarize(t *testing.T) {
	repo := &fakeLoanRepo{}
	repo.loans = append(repo.loans,
		mustLoan(t, "acct-1", "0.5", "10000", 180),
		mustLoan(t, "acct-1", "0.3", "5000", 90),
		mustLoan(t, "acct-2", "1.0", "20000", 180),
	)

	// A repaid position must not contribute to the totals.
	closed := mustLoan(t, "acct-1", "0.2", "1000", 90)
	require.NoError(t, closed.Repay(d("1000"), testStart))
	repo.loans = append(repo.loans, closed)

	service := newService(repo, staticPrice{price: d("45000"), known: true})
	summary, err := service.Summarize(context.Background(), "acct-1")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ActiveLoans)
	assert.True(t, summary.TotalBorrowed.Equal(d("15000")), "got %s", summary.TotalBorrowed)
	assert.True(t, summary.TotalCollateral.Equal(d("0.8")))
	assert.True(t, summary.TotalCollateralValue.Equal(d("36000")))

	// 30 days of accrual: 10000 and 5000 at 8% is 65.75 + 32.88.
	assert.Equal(t, "98.63", summary.TotalAccruedInterest.StringFixed(2))
	assert.Equal(t, "15098.63", summary.TotalRepaymentDue.StringFixed(2))

	require.True(t, summary.HealthDefined)
	assert.Equal(t, "2.40", summary.HealthFactor.StringFixed(2))
	assert.Equal(t, domain.RiskTierLow, summary.RiskTier)
}

func TestSummarizeWithoutPrice(t *testing.T) {
	repo := &fakeLoanRepo{}
	repo.loans = append(repo.loans, mustLoan(t, "acct-1", "0.5", "10000", 180))

	service := newService(repo, staticPrice{})
	summary, err := service.Summarize(context.Background(), "acct-1")
	require.NoError(t, err)

	assert.False(t, summary.PriceKnown)
	assert.False(t, summary.HealthDefined)
	assert.True(t, summary.TotalCollateralValue.IsZero())
	assert.True(t, summary.TotalBorrowed.Equal(d("10000")), "price-independent totals still aggregate")
}

func TestSummarizeEmptyAccount(t *testing.T) {
	service := newService(&fakeLoanRepo{}, staticPrice{price: d("45000"), known: true})
	summary, err := service.Summarize(context.Background(), "nobody")
	require.NoError(t, err)

	assert.Zero(t, summary.ActiveLoans)
	assert.False(t, summary.HealthDefined, "no debt means no defined health factor")
	assert.Equal(t, domain.RiskTierLow, summary.RiskTier)
}

func TestGetStats(t *testing.T) {
	repo := &fakeLoanRepo{}
	active := mustLoan(t, "acct-1", "0.5", "10000", 180)
	flagged := mustLoan(t, "acct-1", "0.1", "3000", 180)
	flagged.Reprice(d("20000"), d("0.8"), testStart)
	repaid := mustLoan(t, "acct-1", "0.2", "1000", 90)
	require.NoError(t, repaid.Repay(d("1000"), testStart))
	defaulted := mustLoan(t, "acct-1", "0.2", "1000", 90)
	require.NoError(t, defaulted.MarkDefaulted(testStart))
	repo.loans = append(repo.loans, active, flagged, repaid, defaulted)

	service := newService(repo, staticPrice{price: d("45000"), known: true})
	stats, err := service.GetStats(context.Background(), "acct-1")
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Repaid)
	assert.Equal(t, 1, stats.Defaulted)
	assert.Equal(t, 0, stats.Liquidated)
	assert.Equal(t, 1, stats.AtRisk)
}

func TestListAtRisk(t *testing.T) {
	repo := &fakeLoanRepo{}
	healthy := mustLoan(t, "acct-1", "1.0", "10000", 180)
	flagged := mustLoan(t, "acct-2", "0.1", "3000", 180)
	flagged.Reprice(d("20000"), d("0.8"), testStart)
	repo.loans = append(repo.loans, healthy, flagged)

	service := newService(repo, staticPrice{price: d("20000"), known: true})
	atRisk, err := service.ListAtRisk(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, atRisk, 1)
	assert.Equal(t, flagged.ID, atRisk[0].Loan.ID)
	assert.True(t, atRisk[0].Valuation.LiquidationRisk)
	assert.Equal(t, domain.RiskTierHigh, atRisk[0].Valuation.RiskTier)

	// Filtering by account excludes other accounts' positions.
	atRisk, err = service.ListAtRisk(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Empty(t, atRisk)

	atRisk, err = service.ListAtRisk(context.Background(), "acct-2")
	require.NoError(t, err)
	assert.Len(t, atRisk, 1)
}
