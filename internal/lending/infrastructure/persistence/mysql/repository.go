package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hodlfi/btclending/internal/lending/domain"
	"github.com/hodlfi/btclending/pkg/db"
)

// LoanModel is the persistence shape of a loan position.
type LoanModel struct {
	ID                 string          `gorm:"primaryKey;type:varchar(36)"`
	AccountID          string          `gorm:"type:varchar(64);index;not null"`
	CollateralAmount   decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Principal          decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	InterestRateAnnual decimal.Decimal `gorm:"type:decimal(10,6);not null"`
	RemainingBalance   decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	PaidInterest       decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Status             string          `gorm:"type:varchar(16);index;not null"`
	LiquidationRisk    bool            `gorm:"not null"`
	CustodyReference   string          `gorm:"type:varchar(128);not null"`
	LastAccrualAt      time.Time       `gorm:"not null"`
	CreatedAt          time.Time       `gorm:"not null"`
	DueAt              time.Time       `gorm:"not null"`
	UpdatedAt          time.Time       `gorm:"not null"`
}

func (LoanModel) TableName() string {
	return "loan_positions"
}

func toModel(l *domain.LoanPosition) *LoanModel {
	return &LoanModel{
		ID:                 l.ID,
		AccountID:          l.AccountID,
		CollateralAmount:   l.CollateralAmount,
		Principal:          l.Principal,
		InterestRateAnnual: l.InterestRateAnnual,
		RemainingBalance:   l.RemainingBalance,
		PaidInterest:       l.PaidInterest,
		Status:             string(l.Status),
		LiquidationRisk:    l.LiquidationRisk,
		CustodyReference:   l.CustodyReference,
		LastAccrualAt:      l.LastAccrualAt,
		CreatedAt:          l.CreatedAt,
		DueAt:              l.DueAt,
		UpdatedAt:          l.UpdatedAt,
	}
}

func toDomain(m *LoanModel) *domain.LoanPosition {
	return &domain.LoanPosition{
		ID:                 m.ID,
		AccountID:          m.AccountID,
		CollateralAmount:   m.CollateralAmount,
		Principal:          m.Principal,
		InterestRateAnnual: m.InterestRateAnnual,
		RemainingBalance:   m.RemainingBalance,
		PaidInterest:       m.PaidInterest,
		Status:             domain.LoanStatus(m.Status),
		LiquidationRisk:    m.LiquidationRisk,
		CustodyReference:   m.CustodyReference,
		LastAccrualAt:      m.LastAccrualAt,
		CreatedAt:          m.CreatedAt,
		DueAt:              m.DueAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// LoanRepository is the MySQL implementation of the loan record store.
// Update serializes per position with a SELECT ... FOR UPDATE row lock.
type LoanRepository struct {
	db *db.DB
}

func NewLoanRepository(database *db.DB) *LoanRepository {
	return &LoanRepository{db: database}
}

func (r *LoanRepository) Create(ctx context.Context, loan *domain.LoanPosition) error {
	err := r.db.WithContext(ctx).Create(toModel(loan)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateLoanID
		}
		return fmt.Errorf("%w: create loan: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *LoanRepository) Get(ctx context.Context, id string) (*domain.LoanPosition, error) {
	var m LoanModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, fmt.Errorf("%w: get loan: %v", domain.ErrStorageUnavailable, err)
	}
	return toDomain(&m), nil
}

func (r *LoanRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.LoanPosition, error) {
	var models []LoanModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list loans by account: %v", domain.ErrStorageUnavailable, err)
	}
	return toDomainList(models), nil
}

func (r *LoanRepository) ListByStatus(ctx context.Context, status domain.LoanStatus) ([]*domain.LoanPosition, error) {
	var models []LoanModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list loans by status: %v", domain.ErrStorageUnavailable, err)
	}
	return toDomainList(models), nil
}

func (r *LoanRepository) ListAll(ctx context.Context) ([]*domain.LoanPosition, error) {
	var models []LoanModel
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list loans: %v", domain.ErrStorageUnavailable, err)
	}
	return toDomainList(models), nil
}

// Update loads the row under a FOR UPDATE lock, applies mutate to the
// domain object and writes the result back inside the same transaction.
func (r *LoanRepository) Update(ctx context.Context, id string, mutate func(*domain.LoanPosition) error) (*domain.LoanPosition, error) {
	var updated *domain.LoanPosition
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		var m LoanModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&m, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrLoanNotFound
			}
			return fmt.Errorf("%w: lock loan: %v", domain.ErrStorageUnavailable, err)
		}

		loan := toDomain(&m)
		if err := mutate(loan); err != nil {
			return err
		}

		if err := tx.Model(&LoanModel{}).Where("id = ?", id).
			Select("*").Updates(toModel(loan)).Error; err != nil {
			return fmt.Errorf("%w: save loan: %v", domain.ErrStorageUnavailable, err)
		}
		updated = loan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func toDomainList(models []LoanModel) []*domain.LoanPosition {
	loans := make([]*domain.LoanPosition, 0, len(models))
	for i := range models {
		loans = append(loans, toDomain(&models[i]))
	}
	return loans
}
