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

	"github.com/hodlfi/btclending/internal/custody/domain"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeLockRepo struct {
	locks map[string]*domain.CollateralLock
}

func newFakeLockRepo() *fakeLockRepo {
	return &fakeLockRepo{locks: make(map[string]*domain.CollateralLock)}
}

func (r *fakeLockRepo) Create(_ context.Context, lock *domain.CollateralLock) error {
	stored := *lock
	r.locks[lock.ID] = &stored
	return nil
}

func (r *fakeLockRepo) Get(_ context.Context, id string) (*domain.CollateralLock, error) {
	lock, ok := r.locks[id]
	if !ok {
		return nil, domain.ErrLockNotFound
	}
	copied := *lock
	return &copied, nil
}

func (r *fakeLockRepo) ListByAccount(_ context.Context, accountID string) ([]*domain.CollateralLock, error) {
	var out []*domain.CollateralLock
	for _, lock := range r.locks {
		if lock.AccountID == accountID {
			copied := *lock
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeLockRepo) Update(_ context.Context, id string, mutate func(*domain.CollateralLock) error) (*domain.CollateralLock, error) {
	lock, ok := r.locks[id]
	if !ok {
		return nil, domain.ErrLockNotFound
	}
	working := *lock
	if err := mutate(&working); err != nil {
		return nil, err
	}
	r.locks[id] = &working
	copied := working
	return &copied, nil
}

func newTestService() (*CustodyService, *fakeLockRepo) {
	repo := newFakeLockRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewCustodyService(repo, 3, logger).
		WithClock(func() time.Time { return testStart })
	return service, repo
}

func TestDepositLifecycle(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	lock, err := service.RegisterDeposit(ctx, "acct-1", "0xabc", d("0.5"))
	require.NoError(t, err)
	assert.Equal(t, domain.LockStatusPending, lock.Status)

	// Consuming before confirmation depth must fail.
	err = service.ConsumeLock(ctx, "acct-1", lock.ID, d("0.5"))
	assert.ErrorIs(t, err, domain.ErrLockNotConfirmed)

	confirmed, err := service.ConfirmDeposit(ctx, lock.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.LockStatusConfirmed, confirmed.Status)

	require.NoError(t, service.ConsumeLock(ctx, "acct-1", lock.ID, d("0.5")))

	// A lock is spendable exactly once.
	err = service.ConsumeLock(ctx, "acct-1", lock.ID, d("0.5"))
	assert.ErrorIs(t, err, domain.ErrLockConsumed)
}

func TestConsumeLockChecksOwnership(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	lock, err := service.RegisterDeposit(ctx, "acct-1", "0xabc", d("0.5"))
	require.NoError(t, err)
	_, err = service.ConfirmDeposit(ctx, lock.ID, 3)
	require.NoError(t, err)

	err = service.ConsumeLock(ctx, "acct-2", lock.ID, d("0.5"))
	assert.ErrorIs(t, err, domain.ErrLockAccountMismatch)

	err = service.ConsumeLock(ctx, "acct-1", lock.ID, d("0.6"))
	assert.ErrorIs(t, err, domain.ErrInsufficientLock)

	// Failed attempts leave the lock intact.
	require.NoError(t, service.ConsumeLock(ctx, "acct-1", lock.ID, d("0.5")))
}

func TestReleaseLock(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	lock, err := service.RegisterDeposit(ctx, "acct-1", "0xabc", d("0.5"))
	require.NoError(t, err)

	released, err := service.ReleaseLock(ctx, lock.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockStatusReleased, released.Status)

	err = service.ConsumeLock(ctx, "acct-1", lock.ID, d("0.5"))
	assert.ErrorIs(t, err, domain.ErrLockNotConfirmed)
}

func TestConsumeUnknownLock(t *testing.T) {
	service, _ := newTestService()
	err := service.ConsumeLock(context.Background(), "acct-1", "missing", d("0.5"))
	assert.ErrorIs(t, err, domain.ErrLockNotFound)
}
