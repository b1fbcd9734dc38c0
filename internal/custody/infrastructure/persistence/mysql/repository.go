package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hodlfi/btclending/internal/custody/domain"
	lending "github.com/hodlfi/btclending/internal/lending/domain"
	"github.com/hodlfi/btclending/pkg/db"
)

// LockModel is the persistence shape of a collateral lock.
type LockModel struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)"`
	AccountID     string          `gorm:"type:varchar(64);index;not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	TxHash        string          `gorm:"type:varchar(128);uniqueIndex;not null"`
	Confirmations int             `gorm:"not null"`
	Status        string          `gorm:"type:varchar(16);index;not null"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

func (LockModel) TableName() string {
	return "collateral_locks"
}

func toModel(l *domain.CollateralLock) *LockModel {
	return &LockModel{
		ID:            l.ID,
		AccountID:     l.AccountID,
		Amount:        l.Amount,
		TxHash:        l.TxHash,
		Confirmations: l.Confirmations,
		Status:        string(l.Status),
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

func toDomain(m *LockModel) *domain.CollateralLock {
	return &domain.CollateralLock{
		ID:            m.ID,
		AccountID:     m.AccountID,
		Amount:        m.Amount,
		TxHash:        m.TxHash,
		Confirmations: m.Confirmations,
		Status:        domain.LockStatus(m.Status),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// LockRepository is the MySQL implementation of the collateral lock
// store. Update uses the same SELECT ... FOR UPDATE discipline as the
// loan store so a lock can only be consumed once.
type LockRepository struct {
	db *db.DB
}

func NewLockRepository(database *db.DB) *LockRepository {
	return &LockRepository{db: database}
}

func (r *LockRepository) Create(ctx context.Context, lock *domain.CollateralLock) error {
	if err := r.db.WithContext(ctx).Create(toModel(lock)).Error; err != nil {
		return fmt.Errorf("%w: create lock: %v", lending.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *LockRepository) Get(ctx context.Context, id string) (*domain.CollateralLock, error) {
	var m LockModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLockNotFound
		}
		return nil, fmt.Errorf("%w: get lock: %v", lending.ErrStorageUnavailable, err)
	}
	return toDomain(&m), nil
}

func (r *LockRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.CollateralLock, error) {
	var models []LockModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list locks: %v", lending.ErrStorageUnavailable, err)
	}
	locks := make([]*domain.CollateralLock, 0, len(models))
	for i := range models {
		locks = append(locks, toDomain(&models[i]))
	}
	return locks, nil
}

func (r *LockRepository) Update(ctx context.Context, id string, mutate func(*domain.CollateralLock) error) (*domain.CollateralLock, error) {
	var updated *domain.CollateralLock
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		var m LockModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&m, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrLockNotFound
			}
			return fmt.Errorf("%w: lock collateral lock: %v", lending.ErrStorageUnavailable, err)
		}

		lock := toDomain(&m)
		if err := mutate(lock); err != nil {
			return err
		}

		if err := tx.Model(&LockModel{}).Where("id = ?", id).
			Select("*").Updates(toModel(lock)).Error; err != nil {
			return fmt.Errorf("%w: save lock: %v", lending.ErrStorageUnavailable, err)
		}
		updated = lock
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
