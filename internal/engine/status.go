package engine

import (
	"time"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/schedule"
)

// DeriveStatus is the loan status for a schedule snapshot. It has no side
// effects, so it is safe to call after every mutation.
func DeriveStatus(items []*domain.ScheduleItem, liquidated bool, asOf time.Time) domain.LoanStatus {
	if liquidated {
		return domain.LoanStatusLiquidated
	}

	outstanding := false
	for _, it := range items {
		if it.IsSettled() {
			continue
		}
		if it.IsPastDue(asOf) {
			return domain.LoanStatusDelinquent
		}
		outstanding = true
	}
	if !outstanding {
		return domain.LoanStatusPaidOff
	}
	return domain.LoanStatusActive
}

// Transition moves loan to next. A terminal loan never moves; entering a
// terminal state stamps ClosedAt, and LIQUIDATED also stamps LiquidatedAt.
func Transition(loan *domain.Loan, next domain.LoanStatus, at time.Time) bool {
	if loan.Status.IsTerminal() || loan.Status == next {
		return false
	}
	loan.Status = next
	if next.IsTerminal() {
		ts := at.UTC()
		loan.ClosedAt = &ts
		if next == domain.LoanStatusLiquidated {
			loan.LiquidatedAt = &ts
		}
	}
	return true
}

// Recompute re-derives the loan's status and cached remaining amount from the
// ledger and reports whether either changed. Terminal loans keep their status.
func Recompute(loan *domain.Loan, l *schedule.Ledger, asOf time.Time) bool {
	prevRemaining := loan.RemainingAmount
	loan.RemainingAmount = l.TotalOutstanding()
	moved := Transition(loan, DeriveStatus(l.Items(), false, asOf), asOf)
	return moved || loan.RemainingAmount != prevRemaining
}
