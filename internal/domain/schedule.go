package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pawn-settlement/internal/money"
)

type ItemStatus string

const (
	ItemStatusPending       ItemStatus = "PENDING"
	ItemStatusPartiallyPaid ItemStatus = "PARTIALLY_PAID"
	ItemStatusPaid          ItemStatus = "PAID"
	ItemStatusOverdue       ItemStatus = "OVERDUE"
)

// Components is a principal/interest/fee breakdown of one installment.
type Components struct {
	Principal money.Amount
	Interest  money.Amount
	Fee       money.Amount
}

func (c Components) Total() money.Amount {
	return c.Principal + c.Interest + c.Fee
}

func (c Components) Add(o Components) Components {
	return Components{
		Principal: c.Principal + o.Principal,
		Interest:  c.Interest + o.Interest,
		Fee:       c.Fee + o.Fee,
	}
}

func (c Components) Sub(o Components) Components {
	return Components{
		Principal: c.Principal - o.Principal,
		Interest:  c.Interest - o.Interest,
		Fee:       c.Fee - o.Fee,
	}
}

func (c Components) IsZero() bool {
	return c.Principal == 0 && c.Interest == 0 && c.Fee == 0
}

func (c Components) HasNegative() bool {
	return c.Principal < 0 || c.Interest < 0 || c.Fee < 0
}

// Exceeds reports whether any component of c is larger than the same
// component of limit.
func (c Components) Exceeds(limit Components) bool {
	return c.Principal > limit.Principal || c.Interest > limit.Interest || c.Fee > limit.Fee
}

// ScheduleItem is one installment of a loan's repayment schedule. Seq is the
// creation order and breaks due-date ties.
type ScheduleItem struct {
	ID        uuid.UUID
	LoanID    uuid.UUID
	Seq       int
	DueDate   time.Time
	Scheduled Components
	Paid      Components
	Status    ItemStatus
	PaidAt    *time.Time
	CreatedAt time.Time
}

func (i *ScheduleItem) Unpaid() Components {
	return i.Scheduled.Sub(i.Paid)
}

func (i *ScheduleItem) IsSettled() bool {
	return i.Paid == i.Scheduled
}

// IsPastDue reports whether the UTC calendar day of asOf is after the due day.
func (i *ScheduleItem) IsPastDue(asOf time.Time) bool {
	return dayOf(asOf).After(dayOf(i.DueDate))
}

// DeriveStatus computes the item status from its paid breakdown and asOf.
// PAID wins over OVERDUE, which wins over PARTIALLY_PAID.
func (i *ScheduleItem) DeriveStatus(asOf time.Time) ItemStatus {
	switch {
	case i.IsSettled():
		return ItemStatusPaid
	case i.IsPastDue(asOf):
		return ItemStatusOverdue
	case i.Paid.Total() > 0:
		return ItemStatusPartiallyPaid
	default:
		return ItemStatusPending
	}
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
