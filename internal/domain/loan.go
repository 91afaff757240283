package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pawn-settlement/internal/money"
)

type LoanStatus string

const (
	LoanStatusActive     LoanStatus = "ACTIVE"
	LoanStatusDelinquent LoanStatus = "DELINQUENT"
	LoanStatusPaidOff    LoanStatus = "PAID_OFF"
	LoanStatusLiquidated LoanStatus = "LIQUIDATED"
)

func (s LoanStatus) IsTerminal() bool {
	return s == LoanStatusPaidOff || s == LoanStatusLiquidated
}

// Loan is the aggregate guarded by Version. Status and RemainingAmount are
// derived from the schedule and written back only by the settlement service.
type Loan struct {
	ID              uuid.UUID
	Code            string
	CollateralID    uuid.UUID
	Principal       money.Amount
	Currency        money.Currency
	Status          LoanStatus
	RemainingAmount money.Amount
	Version         int64
	LiquidatedAt    *time.Time
	ClosedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
