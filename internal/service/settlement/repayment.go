package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/engine"
	"github.com/josh-kwaku/pawn-settlement/internal/logging"
	"github.com/josh-kwaku/pawn-settlement/internal/money"
)

type SubmitPaymentCommand struct {
	LoanID         uuid.UUID
	Amount         money.Amount
	OccurredAt     time.Time
	IdempotencyKey string
}

// SubmitPayment allocates amount to the loan's outstanding schedule and
// commits the payment. Submitting the same idempotency key again returns the
// committed payment with Replayed set and changes nothing.
func (s *Service) SubmitPayment(ctx context.Context, cmd SubmitPaymentCommand) (p *domain.Payment, err error) {
	ctx, span := s.tracer.Start(ctx, "settlement.SubmitPayment", trace.WithAttributes(
		attribute.String("loan.id", cmd.LoanID.String()),
		attribute.Int64("payment.amount", cmd.Amount.Int64()),
	))
	defer func() { endSpan(span, err) }()
	ctx, log := logging.With(ctx, "loan_id", cmd.LoanID, "idempotency_key", cmd.IdempotencyKey)

	if err := validateSubmit(cmd); err != nil {
		return nil, fmt.Errorf("SubmitPayment: %w", err)
	}
	if cmd.OccurredAt.IsZero() {
		cmd.OccurredAt = s.now()
	}

	if prior, err := s.replay(ctx, cmd); err != nil || prior != nil {
		if err != nil {
			return nil, fmt.Errorf("SubmitPayment: %w", err)
		}
		span.SetAttributes(attribute.Bool("payment.replayed", true))
		return prior, nil
	}

	err = s.withRetry(ctx, "SubmitPayment", func(ctx context.Context) error {
		var aerr error
		p, aerr = s.applyPayment(ctx, cmd)
		return aerr
	})
	if err != nil {
		// A concurrent submission with the same key may have committed first.
		if prior, rerr := s.replay(ctx, cmd); rerr != nil || prior != nil {
			if rerr != nil {
				return nil, fmt.Errorf("SubmitPayment: %w", rerr)
			}
			span.SetAttributes(attribute.Bool("payment.replayed", true))
			return prior, nil
		}
		if errors.Is(err, domain.ErrOverAllocation) {
			log.Error("allocation invariant violated", "error", err)
		}
		return nil, fmt.Errorf("SubmitPayment: %w", err)
	}

	span.SetAttributes(
		attribute.String("payment.id", p.ID.String()),
		attribute.Int64("payment.applied", p.AppliedAmount.Int64()),
	)
	log.Info("payment applied",
		"payment_id", p.ID,
		"submitted_amount", p.SubmittedAmount,
		"applied_amount", p.AppliedAmount,
		"overpayment_remainder", p.OverpaymentRemainder,
		"allocations", len(p.Allocations),
	)
	return p, nil
}

func (s *Service) applyPayment(ctx context.Context, cmd SubmitPaymentCommand) (*domain.Payment, error) {
	u, err := s.begin(ctx, cmd.LoanID)
	if err != nil {
		return nil, err
	}
	defer u.rollback()

	p, err := engine.Allocate(u.ledger, u.loan, cmd.Amount, cmd.OccurredAt)
	if err != nil {
		return nil, err
	}
	p.IdempotencyKey = cmd.IdempotencyKey

	u.ledger.RefreshStatuses(cmd.OccurredAt)
	engine.Recompute(u.loan, u.ledger, cmd.OccurredAt)

	if err := s.claimLoan(ctx, u); err != nil {
		return nil, err
	}
	if err := s.writeItems(ctx, u); err != nil {
		return nil, err
	}
	if err := s.writePayment(ctx, u, p); err != nil {
		return nil, err
	}
	if err := s.recordEvent(ctx, u, domain.SettlementEventPaymentApplied, &p.ID, newPaymentAppliedPayload(p, u.loan)); err != nil {
		return nil, err
	}
	if err := s.recordStatusChange(ctx, u, cmd.OccurredAt); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, u); err != nil {
		return nil, err
	}
	return p, nil
}

// replay returns the committed payment for cmd's key, nil when the key is
// unused, or ErrIdempotencyKeyReused when the key belongs to a different
// payment.
func (s *Service) replay(ctx context.Context, cmd SubmitPaymentCommand) (*domain.Payment, error) {
	p, err := s.payments.GetByIdempotencyKey(ctx, cmd.IdempotencyKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("replay: %w", err)
	}
	if p.LoanID != cmd.LoanID || p.SubmittedAmount != cmd.Amount || p.Source != domain.PaymentSourceRepayment {
		return nil, fmt.Errorf("replay: key %q: %w", cmd.IdempotencyKey, domain.ErrIdempotencyKeyReused)
	}
	p.Replayed = true
	logging.FromContext(ctx).Info("payment replayed", "payment_id", p.ID)
	return p, nil
}

func validateSubmit(cmd SubmitPaymentCommand) error {
	if !cmd.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return domain.ErrMissingIdempotency
	}
	if cmd.LoanID == uuid.Nil {
		return fmt.Errorf("%w: loan id is required", domain.ErrValidation)
	}
	return nil
}
