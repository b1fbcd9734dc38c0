package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	LoanCreatedEventType            = "lending.loan.created"
	LoanRepaymentEventType          = "lending.loan.repayment"
	LoanRepaidEventType             = "lending.loan.repaid"
	LoanExtendedEventType           = "lending.loan.extended"
	LoanLiquidationFlaggedEventType = "lending.loan.liquidation_flagged"
	LoanLiquidationClearedEventType = "lending.loan.liquidation_cleared"
	LoanDefaultedEventType          = "lending.loan.defaulted"
	LoanLiquidatedEventType         = "lending.loan.liquidated"
)

// LoanEvent is published after every acknowledged state change.
type LoanEvent struct {
	Type             string          `json:"type"`
	LoanID           string          `json:"loan_id"`
	AccountID        string          `json:"account_id"`
	Status           LoanStatus      `json:"status"`
	Principal        decimal.Decimal `json:"principal"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	Price            decimal.Decimal `json:"price,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// NewLoanEvent snapshots loan into an event of the given type.
func NewLoanEvent(eventType string, loan *LoanPosition, price decimal.Decimal, now time.Time) LoanEvent {
	return LoanEvent{
		Type:             eventType,
		LoanID:           loan.ID,
		AccountID:        loan.AccountID,
		Status:           loan.Status,
		Principal:        loan.Principal,
		RemainingBalance: loan.RemainingBalance,
		Price:            price,
		OccurredAt:       now,
	}
}
