// Package engine holds the pure settlement rules: payment allocation, loan
// status derivation and liquidation settlement. Nothing here touches the
// store; callers load a schedule.Ledger inside a transaction, run the rules,
// and persist what changed.
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/money"
	"github.com/josh-kwaku/pawn-settlement/internal/schedule"
)

// Allocate distributes amount over the loan's outstanding items, oldest due
// first, paying fee then interest then principal within each item. Whatever
// cannot be applied is returned as the payment's OverpaymentRemainder.
func Allocate(l *schedule.Ledger, loan *domain.Loan, amount money.Amount, at time.Time) (*domain.Payment, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("Allocate: %w", domain.ErrInvalidAmount)
	}
	if loan.Status.IsTerminal() {
		return nil, fmt.Errorf("Allocate: loan %s is %s: %w", loan.Code, loan.Status, domain.ErrLoanClosed)
	}

	outstanding := l.OutstandingItems()
	if len(outstanding) == 0 {
		return nil, fmt.Errorf("Allocate: loan %s: %w", loan.Code, domain.ErrNoOutstandingBalance)
	}

	p := &domain.Payment{
		ID:              uuid.New(),
		LoanID:          loan.ID,
		Source:          domain.PaymentSourceRepayment,
		SubmittedAmount: amount,
		Currency:        loan.Currency,
		OccurredAt:      at.UTC(),
	}

	remaining := amount
	for _, it := range outstanding {
		if remaining == 0 {
			break
		}

		delta, left := split(remaining, it.Unpaid())
		if delta.IsZero() {
			continue
		}
		if err := l.ApplyToItem(it.ID, delta, at); err != nil {
			return nil, fmt.Errorf("Allocate: %w", err)
		}
		remaining = left

		p.Allocations = append(p.Allocations, domain.Allocation{
			ID:             uuid.New(),
			PaymentID:      p.ID,
			ScheduleItemID: it.ID,
			Applied:        delta,
		})
	}

	p.AppliedAmount = amount - remaining
	p.OverpaymentRemainder = remaining
	return p, nil
}

// split takes as much of amount as unpaid allows in fee, interest, principal
// order and returns the taken components with what is left of amount.
func split(amount money.Amount, unpaid domain.Components) (domain.Components, money.Amount) {
	var d domain.Components
	d.Fee = money.Min(amount, unpaid.Fee)
	amount -= d.Fee
	d.Interest = money.Min(amount, unpaid.Interest)
	amount -= d.Interest
	d.Principal = money.Min(amount, unpaid.Principal)
	amount -= d.Principal
	return d, amount
}
