package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrLockNotFound        = errors.New("collateral lock not found")
	ErrLockNotConfirmed    = errors.New("collateral lock not confirmed")
	ErrLockNotPending      = errors.New("collateral lock not pending")
	ErrLockConsumed        = errors.New("collateral lock already consumed")
	ErrInsufficientLock    = errors.New("lock amount below requested collateral")
	ErrLockAccountMismatch = errors.New("lock belongs to another account")
	ErrInvalidLockInput    = errors.New("invalid lock input")
)

type LockStatus string

const (
	LockStatusPending   LockStatus = "PENDING"
	LockStatusConfirmed LockStatus = "CONFIRMED"
	LockStatusConsumed  LockStatus = "CONSUMED"
	LockStatusReleased  LockStatus = "RELEASED"
)

// CollateralLock tracks BTC deposited against a pending loan. A lock is
// created when the deposit transaction is announced, confirmed once the
// chain watcher reports enough confirmations, and consumed exactly once
// when a loan opens against it.
type CollateralLock struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	TxHash        string          `json:"tx_hash"`
	Confirmations int             `json:"confirmations"`
	Status        LockStatus      `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewCollateralLock registers an announced deposit as pending.
func NewCollateralLock(accountID, txHash string, amount decimal.Decimal, now time.Time) (*CollateralLock, error) {
	if accountID == "" || txHash == "" || !amount.IsPositive() {
		return nil, ErrInvalidLockInput
	}
	return &CollateralLock{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Amount:    amount,
		TxHash:    txHash,
		Status:    LockStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// RecordConfirmations updates the confirmation count and promotes the
// lock to Confirmed once required is reached. Idempotent for repeated
// watcher reports.
func (l *CollateralLock) RecordConfirmations(confirmations, required int, now time.Time) error {
	if l.Status != LockStatusPending && l.Status != LockStatusConfirmed {
		return ErrLockNotPending
	}
	if confirmations < 0 {
		return ErrInvalidLockInput
	}
	if confirmations > l.Confirmations {
		l.Confirmations = confirmations
		l.UpdatedAt = now
	}
	if l.Confirmations >= required && l.Status == LockStatusPending {
		l.Status = LockStatusConfirmed
		l.UpdatedAt = now
	}
	return nil
}

// Consume marks a confirmed lock as spent by a loan. amount must not
// exceed the locked amount.
func (l *CollateralLock) Consume(accountID string, amount decimal.Decimal, now time.Time) error {
	if l.Status == LockStatusConsumed {
		return ErrLockConsumed
	}
	if l.Status != LockStatusConfirmed {
		return ErrLockNotConfirmed
	}
	if l.AccountID != accountID {
		return ErrLockAccountMismatch
	}
	if amount.GreaterThan(l.Amount) {
		return ErrInsufficientLock
	}
	l.Status = LockStatusConsumed
	l.UpdatedAt = now
	return nil
}

// Release returns an unconsumed lock to the depositor.
func (l *CollateralLock) Release(now time.Time) error {
	if l.Status != LockStatusPending && l.Status != LockStatusConfirmed {
		return ErrLockNotPending
	}
	l.Status = LockStatusReleased
	l.UpdatedAt = now
	return nil
}

// LockRepository owns the canonical lock records. Update serializes
// mutations per lock, matching the loan store's contract.
type LockRepository interface {
	Create(ctx context.Context, lock *CollateralLock) error
	Get(ctx context.Context, id string) (*CollateralLock, error)
	ListByAccount(ctx context.Context, accountID string) ([]*CollateralLock, error)
	Update(ctx context.Context, id string, mutate func(*CollateralLock) error) (*CollateralLock, error)
}
