package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pawn-settlement/internal/money"
)

// LiquidationResult is the derived outcome of selling a loan's collateral.
// At most one of RemainingAmount and ExcessAmount is nonzero.
type LiquidationResult struct {
	CollateralID        uuid.UUID
	SellPrice           money.Amount
	SellDate            time.Time
	LoanID              uuid.UUID
	LoanCode            string
	PaymentID           *uuid.UUID
	AmountPaidToLoan    money.Amount
	RemainingAmount     money.Amount
	ExcessAmount        money.Amount
	LoanStatus          LoanStatus
	LoanRemainingAmount money.Amount
	Message             string
}
