package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hodlfi/btclending/internal/lending/domain"
	"github.com/hodlfi/btclending/pkg/metrics"
)

// RequestLoanCommand carries everything needed to open a position. The
// caller owns the price value; the engine never reads an ambient one.
type RequestLoanCommand struct {
	AccountID        string
	CustodyReference string
	CollateralAmount decimal.Decimal
	Principal        decimal.Decimal
	DurationDays     int
	CurrentPrice     decimal.Decimal
}

// PriceSweepResult summarizes one onPriceUpdate pass.
type PriceSweepResult struct {
	Price     decimal.Decimal `json:"price"`
	Scanned   int             `json:"scanned"`
	Flagged   []string        `json:"flagged"`
	Cleared   []string        `json:"cleared"`
	Defaulted []string        `json:"defaulted"`
	Failed    int             `json:"failed"`
}

// LendingService is the loan lifecycle engine. All state changes go
// through the repository; nothing is returned to a caller before
// persistence has acknowledged the write.
type LendingService struct {
	loans      domain.LoanRepository
	collateral domain.CollateralVerifier
	events     domain.EventPublisher
	params     domain.Params
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewLendingService(
	loans domain.LoanRepository,
	collateral domain.CollateralVerifier,
	events domain.EventPublisher,
	params domain.Params,
	m *metrics.Metrics,
	logger *slog.Logger,
) *LendingService {
	return &LendingService{
		loans:      loans,
		collateral: collateral,
		events:     events,
		params:     params,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// RequestLoan validates the request against the protocol constants,
// consumes the custody lock and opens an active position.
func (s *LendingService) RequestLoan(ctx context.Context, cmd RequestLoanCommand) (*domain.LoanPosition, error) {
	if !cmd.CollateralAmount.IsPositive() || !cmd.Principal.IsPositive() || !cmd.CurrentPrice.IsPositive() {
		return nil, domain.ErrInvalidInput
	}
	if cmd.DurationDays <= 0 || cmd.DurationDays > s.params.MaxDurationDays {
		return nil, domain.ErrInvalidInput
	}
	if cmd.CollateralAmount.GreaterThan(s.params.MaximumCollateral) {
		return nil, domain.ErrInvalidInput
	}

	collateralValue, err := domain.CollateralValue(cmd.CollateralAmount, cmd.CurrentPrice)
	if err != nil {
		return nil, err
	}
	maxPrincipal := collateralValue.Mul(s.params.LoanToValueRatio)
	if cmd.Principal.GreaterThan(maxPrincipal) {
		return nil, domain.ErrExceedsLoanToValue
	}
	if cmd.CollateralAmount.LessThan(s.params.MinimumCollateral) {
		return nil, domain.ErrBelowMinimumCollateral
	}
	if cmd.Principal.LessThan(s.params.MinimumLoanAmount) || cmd.Principal.GreaterThan(s.params.MaximumLoanAmount) {
		return nil, domain.ErrAmountOutOfBounds
	}

	if err := s.collateral.ConsumeLock(ctx, cmd.AccountID, cmd.CustodyReference, cmd.CollateralAmount); err != nil {
		return nil, fmt.Errorf("collateral lock: %w", err)
	}

	now := s.now()
	loan, err := domain.NewLoanPosition(cmd.AccountID, cmd.CustodyReference, cmd.CollateralAmount, cmd.Principal, s.params.InterestRateAnnual, cmd.DurationDays, now)
	if err != nil {
		return nil, err
	}

	if err := s.loans.Create(ctx, loan); err != nil {
		return nil, err
	}

	s.publish(ctx, domain.NewLoanEvent(domain.LoanCreatedEventType, loan, cmd.CurrentPrice, now))
	if s.metrics != nil {
		s.metrics.LoansCreatedTotal.Inc()
		s.metrics.LoansActive.Inc()
	}
	s.logger.InfoContext(ctx, "loan created",
		"loan_id", loan.ID,
		"account_id", loan.AccountID,
		"principal", loan.Principal.String(),
		"collateral", loan.CollateralAmount.String(),
	)
	return loan, nil
}

// Repay applies a repayment against fresh state. Repaying the exact
// remaining balance transitions the position to Repaid.
func (s *LendingService) Repay(ctx context.Context, loanID string, amount, currentPrice decimal.Decimal) (*domain.LoanPosition, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidInput
	}

	now := s.now()
	loan, err := s.loans.Update(ctx, loanID, func(l *domain.LoanPosition) error {
		return l.Repay(amount, now)
	})
	if err != nil {
		return nil, err
	}

	eventType := domain.LoanRepaymentEventType
	if loan.Status == domain.LoanStatusRepaid {
		eventType = domain.LoanRepaidEventType
		if s.metrics != nil {
			s.metrics.LoansRepaidTotal.Inc()
			s.metrics.LoansActive.Dec()
		}
	}
	s.publish(ctx, domain.NewLoanEvent(eventType, loan, currentPrice, now))
	s.logger.InfoContext(ctx, "loan repayment applied",
		"loan_id", loan.ID,
		"amount", amount.String(),
		"remaining", loan.RemainingBalance.String(),
		"status", string(loan.Status),
	)
	return loan, nil
}

// Extend advances the due date by a supported period and capitalizes the
// flat fee from the configured schedule.
func (s *LendingService) Extend(ctx context.Context, loanID string, extensionDays int) (*domain.LoanPosition, error) {
	fee, ok := s.params.ExtensionFee(extensionDays)
	if !ok {
		return nil, domain.ErrInvalidExtension
	}

	now := s.now()
	loan, err := s.loans.Update(ctx, loanID, func(l *domain.LoanPosition) error {
		return l.Extend(extensionDays, fee, now)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.NewLoanEvent(domain.LoanExtendedEventType, loan, decimal.Zero, now))
	if s.metrics != nil {
		s.metrics.LoansExtendedTotal.Inc()
	}
	s.logger.InfoContext(ctx, "loan extended",
		"loan_id", loan.ID,
		"days", extensionDays,
		"fee", fee.String(),
		"due_at", loan.DueAt,
	)
	return loan, nil
}

// OnPriceUpdate sweeps every active position against the new price,
// re-flagging liquidation candidates and defaulting positions overdue
// beyond the grace period. It never changes a remaining balance and is
// idempotent for a given price.
func (s *LendingService) OnPriceUpdate(ctx context.Context, price decimal.Decimal) (*PriceSweepResult, error) {
	if !price.IsPositive() {
		return nil, domain.ErrInvalidInput
	}

	active, err := s.loans.ListByStatus(ctx, domain.LoanStatusActive)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := &PriceSweepResult{
		Price:     price,
		Scanned:   len(active),
		Flagged:   []string{},
		Cleared:   []string{},
		Defaulted: []string{},
	}

	atRisk := 0
	remaining := 0
	for _, candidate := range active {
		var flagChanged, flaggedNow, defaulted bool
		updated, err := s.loans.Update(ctx, candidate.ID, func(l *domain.LoanPosition) error {
			if l.Status != domain.LoanStatusActive {
				// Mutated concurrently into a terminal state; nothing to do.
				return nil
			}
			flagChanged = l.Reprice(price, s.params.LiquidationThreshold, now)
			flaggedNow = l.LiquidationRisk
			if l.IsPastGrace(s.params.GracePeriodDays, now) {
				if err := l.MarkDefaulted(now); err != nil {
					return err
				}
				defaulted = true
			}
			return nil
		})
		if err != nil {
			result.Failed++
			s.logger.ErrorContext(ctx, "price sweep update failed", "loan_id", candidate.ID, "error", err)
			continue
		}

		switch {
		case defaulted:
			result.Defaulted = append(result.Defaulted, updated.ID)
			s.publish(ctx, domain.NewLoanEvent(domain.LoanDefaultedEventType, updated, price, now))
		case flagChanged && flaggedNow:
			result.Flagged = append(result.Flagged, updated.ID)
			s.publish(ctx, domain.NewLoanEvent(domain.LoanLiquidationFlaggedEventType, updated, price, now))
		case flagChanged:
			result.Cleared = append(result.Cleared, updated.ID)
			s.publish(ctx, domain.NewLoanEvent(domain.LoanLiquidationClearedEventType, updated, price, now))
		}

		if updated.Status == domain.LoanStatusActive {
			remaining++
			if updated.LiquidationRisk {
				atRisk++
			}
		}
	}

	if s.metrics != nil {
		s.metrics.PriceUpdatesTotal.Inc()
		s.metrics.CollateralPrice.Set(price.InexactFloat64())
		s.metrics.LoansActive.Set(float64(remaining))
		s.metrics.LoansAtRisk.Set(float64(atRisk))
	}
	s.logger.InfoContext(ctx, "price sweep completed",
		"price", price.String(),
		"scanned", result.Scanned,
		"flagged", len(result.Flagged),
		"defaulted", len(result.Defaulted),
		"failed", result.Failed,
	)
	return result, nil
}

// Liquidate transitions a flagged active position to Liquidated. Called
// by the external liquidation executor after seizure.
func (s *LendingService) Liquidate(ctx context.Context, loanID string) (*domain.LoanPosition, error) {
	now := s.now()
	loan, err := s.loans.Update(ctx, loanID, func(l *domain.LoanPosition) error {
		return l.MarkLiquidated(now)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.NewLoanEvent(domain.LoanLiquidatedEventType, loan, decimal.Zero, now))
	if s.metrics != nil {
		s.metrics.LoansActive.Dec()
	}
	s.logger.InfoContext(ctx, "loan liquidated", "loan_id", loan.ID)
	return loan, nil
}

// GetLoan returns a single position.
func (s *LendingService) GetLoan(ctx context.Context, loanID string) (*domain.LoanPosition, error) {
	return s.loans.Get(ctx, loanID)
}

// ListByAccount returns the account's positions in creation order.
func (s *LendingService) ListByAccount(ctx context.Context, accountID string) ([]*domain.LoanPosition, error) {
	return s.loans.ListByAccount(ctx, accountID)
}

// Params exposes the protocol constants for read-side valuation.
func (s *LendingService) Params() domain.Params {
	return s.params
}

// WithClock overrides the time source. Test hook.
func (s *LendingService) WithClock(now func() time.Time) *LendingService {
	s.now = now
	return s
}

func (s *LendingService) publish(ctx context.Context, event domain.LoanEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", "type", event.Type, "loan_id", event.LoanID, "error", err)
	}
}
