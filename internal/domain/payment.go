package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pawn-settlement/internal/money"
)

type PaymentSource string

const (
	PaymentSourceRepayment   PaymentSource = "repayment"
	PaymentSourceLiquidation PaymentSource = "liquidation"
)

// Allocation is the part of a payment applied to one schedule item.
type Allocation struct {
	ID             uuid.UUID
	PaymentID      uuid.UUID
	ScheduleItemID uuid.UUID
	Applied        Components
	CreatedAt      time.Time
}

// Payment is the append-only record of one allocation event. AppliedAmount is
// what reached the schedule; OverpaymentRemainder is what was left over.
type Payment struct {
	ID                   uuid.UUID
	LoanID               uuid.UUID
	IdempotencyKey       string
	Source               PaymentSource
	CollateralID         *uuid.UUID
	SubmittedAmount      money.Amount
	AppliedAmount        money.Amount
	OverpaymentRemainder money.Amount
	Currency             money.Currency
	Allocations          []Allocation
	OccurredAt           time.Time
	CreatedAt            time.Time

	// Replayed is set when the payment was returned for an idempotency key
	// that had already been committed. Not persisted.
	Replayed bool
}

// AppliedComponents sums the allocations per component.
func (p *Payment) AppliedComponents() Components {
	var c Components
	for _, a := range p.Allocations {
		c = c.Add(a.Applied)
	}
	return c
}
