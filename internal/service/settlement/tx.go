package settlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/events"
	"github.com/josh-kwaku/pawn-settlement/internal/schedule"
)

// unit is one transaction attempt: the loan as read, its ledger, and the
// events to publish if the attempt commits.
type unit struct {
	tx     *sql.Tx
	loan   *domain.Loan
	ledger *schedule.Ledger
	buf    *events.Buffer
	prev   domain.LoanStatus
}

func (s *Service) begin(ctx context.Context, loanID uuid.UUID) (*unit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	u := &unit{tx: tx, buf: events.NewBuffer(s.publisher)}
	u.loan, err = s.loans.GetInTx(ctx, tx, loanID)
	if err != nil {
		u.rollback()
		return nil, fmt.Errorf("load loan: %w", err)
	}
	u.prev = u.loan.Status

	items, err := s.schedule.ListByLoanInTx(ctx, tx, loanID)
	if err != nil {
		u.rollback()
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	u.ledger, err = schedule.NewLedger(loanID, items)
	if err != nil {
		u.rollback()
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	return u, nil
}

func (u *unit) rollback() {
	u.buf.Discard()
	_ = u.tx.Rollback()
}

// claimLoan bumps the loan version. It is the first write of every attempt,
// so a concurrent writer on the same loan blocks here and then loses the
// version check instead of double-allocating.
func (s *Service) claimLoan(ctx context.Context, u *unit) error {
	if err := s.loans.UpdateState(ctx, u.tx, u.loan, u.loan.Version+1); err != nil {
		return fmt.Errorf("claim loan: %w", err)
	}
	return nil
}

func (s *Service) writeItems(ctx context.Context, u *unit) error {
	for _, it := range u.ledger.Dirty() {
		if err := s.schedule.UpdatePaid(ctx, u.tx, it); err != nil {
			return fmt.Errorf("write item %d: %w", it.Seq, err)
		}
	}
	return nil
}

func (s *Service) writePayment(ctx context.Context, u *unit, p *domain.Payment) error {
	now := s.now()
	p.CreatedAt = now
	for i := range p.Allocations {
		p.Allocations[i].CreatedAt = now
	}
	if err := s.payments.Create(ctx, u.tx, p); err != nil {
		return fmt.Errorf("write payment: %w", err)
	}
	return nil
}

func (s *Service) recordEvent(ctx context.Context, u *unit, typ domain.SettlementEventType, paymentID *uuid.UUID, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("record %s: marshal: %w", typ, err)
	}
	e := &domain.SettlementEvent{
		ID:        uuid.New(),
		LoanID:    u.loan.ID,
		PaymentID: paymentID,
		EventType: typ,
		Payload:   raw,
		CreatedAt: s.now(),
	}
	if err := s.events.Create(ctx, u.tx, e); err != nil {
		return fmt.Errorf("record %s: %w", typ, err)
	}
	u.buf.Add(e)
	return nil
}

// recordStatusChange emits loan.status_changed when the attempt moved the
// loan to a different status.
func (s *Service) recordStatusChange(ctx context.Context, u *unit, asOf time.Time) error {
	if u.loan.Status == u.prev {
		return nil
	}
	return s.recordEvent(ctx, u, domain.SettlementEventLoanStatusChange, nil, statusChangedPayload{
		LoanID:          u.loan.ID,
		LoanCode:        u.loan.Code,
		From:            u.prev,
		To:              u.loan.Status,
		RemainingAmount: u.loan.RemainingAmount,
		AsOf:            asOf.UTC(),
	})
}

func (s *Service) commit(ctx context.Context, u *unit) error {
	if err := u.tx.Commit(); err != nil {
		u.buf.Discard()
		return fmt.Errorf("commit: %w", err)
	}
	u.buf.Flush(ctx)
	return nil
}
