package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hodlfi/btclending/internal/custody/domain"
)

// CustodyService manages collateral locks: deposit registration, chain
// confirmation tracking, consumption by the lending engine and release.
// It implements the lending side's CollateralVerifier port.
type CustodyService struct {
	locks                 domain.LockRepository
	requiredConfirmations int
	logger                *slog.Logger
	now                   func() time.Time
}

func NewCustodyService(locks domain.LockRepository, requiredConfirmations int, logger *slog.Logger) *CustodyService {
	return &CustodyService{
		locks:                 locks,
		requiredConfirmations: requiredConfirmations,
		logger:                logger,
		now:                   time.Now,
	}
}

// RegisterDeposit records an announced deposit transaction as a pending
// lock.
func (s *CustodyService) RegisterDeposit(ctx context.Context, accountID, txHash string, amount decimal.Decimal) (*domain.CollateralLock, error) {
	lock, err := domain.NewCollateralLock(accountID, txHash, amount, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.locks.Create(ctx, lock); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "collateral deposit registered",
		"lock_id", lock.ID,
		"account_id", accountID,
		"amount", amount.String(),
		"tx_hash", txHash,
	)
	return lock, nil
}

// ConfirmDeposit applies a chain watcher confirmation report. The lock
// becomes Confirmed once the configured depth is reached.
func (s *CustodyService) ConfirmDeposit(ctx context.Context, lockID string, confirmations int) (*domain.CollateralLock, error) {
	now := s.now()
	lock, err := s.locks.Update(ctx, lockID, func(l *domain.CollateralLock) error {
		return l.RecordConfirmations(confirmations, s.requiredConfirmations, now)
	})
	if err != nil {
		return nil, err
	}
	if lock.Status == domain.LockStatusConfirmed {
		s.logger.InfoContext(ctx, "collateral lock confirmed",
			"lock_id", lock.ID,
			"confirmations", lock.Confirmations,
		)
	}
	return lock, nil
}

// ConsumeLock atomically checks and spends a confirmed lock on behalf of
// a loan. Satisfies the lending engine's collateral port.
func (s *CustodyService) ConsumeLock(ctx context.Context, accountID, reference string, amount decimal.Decimal) error {
	now := s.now()
	_, err := s.locks.Update(ctx, reference, func(l *domain.CollateralLock) error {
		return l.Consume(accountID, amount, now)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "collateral lock consumed",
		"lock_id", reference,
		"account_id", accountID,
		"amount", amount.String(),
	)
	return nil
}

// ReleaseLock returns an unconsumed lock to the depositor.
func (s *CustodyService) ReleaseLock(ctx context.Context, lockID string) (*domain.CollateralLock, error) {
	now := s.now()
	lock, err := s.locks.Update(ctx, lockID, func(l *domain.CollateralLock) error {
		return l.Release(now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "collateral lock released", "lock_id", lock.ID)
	return lock, nil
}

// GetLock returns a single lock.
func (s *CustodyService) GetLock(ctx context.Context, lockID string) (*domain.CollateralLock, error) {
	return s.locks.Get(ctx, lockID)
}

// ListByAccount returns the account's locks.
func (s *CustodyService) ListByAccount(ctx context.Context, accountID string) ([]*domain.CollateralLock, error) {
	return s.locks.ListByAccount(ctx, accountID)
}

// WithClock overrides the time source. Test hook.
func (s *CustodyService) WithClock(now func() time.Time) *CustodyService {
	s.now = now
	return s
}
