package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/engine"
	"github.com/josh-kwaku/pawn-settlement/internal/logging"
)

// RefreshLoanStatus re-derives item and loan status as of asOf, so a loan
// whose installment fell due without payment turns DELINQUENT. Nothing is
// written when nothing changed.
func (s *Service) RefreshLoanStatus(ctx context.Context, loanID uuid.UUID, asOf time.Time) (*domain.Loan, error) {
	loan, _, err := s.refreshLoan(ctx, loanID, asOf)
	if err != nil {
		return nil, fmt.Errorf("RefreshLoanStatus: %w", err)
	}
	return loan, nil
}

// RefreshOpenLoans runs the status refresh over every open loan and returns
// how many changed. A failing loan is logged and skipped.
func (s *Service) RefreshOpenLoans(ctx context.Context, asOf time.Time) (int, error) {
	ids, err := s.loans.ListOpenIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("RefreshOpenLoans: %w", err)
	}

	log := logging.FromContext(ctx)
	changed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return changed, fmt.Errorf("RefreshOpenLoans: %w", err)
		}
		_, moved, err := s.refreshLoan(ctx, id, asOf)
		if err != nil {
			log.Warn("status refresh failed", "loan_id", id, "error", err)
			continue
		}
		if moved {
			changed++
		}
	}
	log.Info("open loans refreshed", "checked", len(ids), "changed", changed)
	return changed, nil
}

func (s *Service) refreshLoan(ctx context.Context, loanID uuid.UUID, asOf time.Time) (loan *domain.Loan, changed bool, err error) {
	ctx, span := s.tracer.Start(ctx, "settlement.RefreshLoanStatus", trace.WithAttributes(
		attribute.String("loan.id", loanID.String()),
	))
	defer func() { endSpan(span, err) }()
	ctx, log := logging.With(ctx, "loan_id", loanID)

	if asOf.IsZero() {
		asOf = s.now()
	}

	err = s.withRetry(ctx, "RefreshLoanStatus", func(ctx context.Context) error {
		var aerr error
		loan, changed, aerr = s.refresh(ctx, loanID, asOf)
		return aerr
	})
	if err != nil {
		return nil, false, err
	}

	span.SetAttributes(
		attribute.String("loan.status", string(loan.Status)),
		attribute.Bool("loan.changed", changed),
	)
	if changed {
		log.Info("loan status refreshed", "status", loan.Status, "remaining_amount", loan.RemainingAmount)
	}
	return loan, changed, nil
}

func (s *Service) refresh(ctx context.Context, loanID uuid.UUID, asOf time.Time) (*domain.Loan, bool, error) {
	u, err := s.begin(ctx, loanID)
	if err != nil {
		return nil, false, err
	}
	defer u.rollback()

	if u.loan.Status.IsTerminal() {
		return u.loan, false, nil
	}

	items := u.ledger.RefreshStatuses(asOf)
	moved := engine.Recompute(u.loan, u.ledger, asOf)
	if items == 0 && !moved {
		return u.loan, false, nil
	}

	if err := s.claimLoan(ctx, u); err != nil {
		return nil, false, err
	}
	if err := s.writeItems(ctx, u); err != nil {
		return nil, false, err
	}
	if err := s.recordStatusChange(ctx, u, asOf); err != nil {
		return nil, false, err
	}
	if err := s.commit(ctx, u); err != nil {
		return nil, false, err
	}
	return u.loan, true, nil
}
