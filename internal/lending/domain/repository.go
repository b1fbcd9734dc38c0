package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// LoanRepository owns the canonical copy of every position. Update runs
// the mutation against fresh state under per-position serialization;
// concurrent mutations of the same id never interleave.
type LoanRepository interface {
	Create(ctx context.Context, loan *LoanPosition) error
	Get(ctx context.Context, id string) (*LoanPosition, error)
	ListByAccount(ctx context.Context, accountID string) ([]*LoanPosition, error)
	ListByStatus(ctx context.Context, status LoanStatus) ([]*LoanPosition, error)
	ListAll(ctx context.Context) ([]*LoanPosition, error)
	Update(ctx context.Context, id string, mutate func(*LoanPosition) error) (*LoanPosition, error)
}

// EventPublisher emits lifecycle events. Publish failures must not block
// already-persisted state changes.
type EventPublisher interface {
	Publish(ctx context.Context, event LoanEvent) error
}

// CollateralVerifier is the custody port: it atomically checks and
// consumes a confirmed collateral lock before a loan is opened.
type CollateralVerifier interface {
	ConsumeLock(ctx context.Context, accountID, reference string, amount decimal.Decimal) error
}
