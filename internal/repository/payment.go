package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
)

const paymentColumns = `id, loan_id, idempotency_key, source, collateral_id,
	submitted_amount, applied_amount, overpayment_remainder, currency,
	occurred_at, created_at`

const idempotencyConstraint = "payments_idempotency_key_key"

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts the payment and its allocations. A key that is already taken
// yields ErrDuplicateIdempotencyKey and leaves tx unusable.
func (r *PaymentRepository) Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (
			id, loan_id, idempotency_key, source, collateral_id,
			submitted_amount, applied_amount, overpayment_remainder, currency,
			occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.LoanID, p.IdempotencyKey, p.Source, p.CollateralID,
		p.SubmittedAmount, p.AppliedAmount, p.OverpaymentRemainder, p.Currency,
		p.OccurredAt, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, idempotencyConstraint) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateIdempotencyKey)
		}
		return fmt.Errorf("Create: %w", err)
	}

	for _, a := range p.Allocations {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO payment_allocations (id, payment_id, schedule_item_id, principal, interest, fee, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, a.PaymentID, a.ScheduleItemID,
			a.Applied.Principal, a.Applied.Interest, a.Applied.Fee, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("Create: allocation %s: %w", a.ID, err)
		}
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id,
	)
	p, err := r.load(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key,
	)
	p, err := r.load(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("GetByIdempotencyKey: %w", err)
	}
	return p, nil
}

// ListByLoan returns the loan's payments oldest first, allocations included.
func (r *PaymentRepository) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE loan_id = $1 ORDER BY created_at, id`, loanID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByLoan: %w", err)
	}

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("ListByLoan: scan: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("ListByLoan: rows: %w", err)
	}
	rows.Close()

	for _, p := range payments {
		allocs, err := r.listAllocations(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("ListByLoan: %w", err)
		}
		p.Allocations = allocs
	}
	return payments, nil
}

func (r *PaymentRepository) load(ctx context.Context, row *sql.Row) (*domain.Payment, error) {
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	p.Allocations, err = r.listAllocations(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PaymentRepository) listAllocations(ctx context.Context, paymentID uuid.UUID) ([]domain.Allocation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.payment_id, a.schedule_item_id, a.principal, a.interest, a.fee, a.created_at
		FROM payment_allocations a
		JOIN repayment_schedule_items s ON s.id = a.schedule_item_id
		WHERE a.payment_id = $1
		ORDER BY s.due_date, s.seq`, paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("listAllocations: %w", err)
	}
	defer rows.Close()

	var allocs []domain.Allocation
	for rows.Next() {
		var a domain.Allocation
		if err := rows.Scan(
			&a.ID, &a.PaymentID, &a.ScheduleItemID,
			&a.Applied.Principal, &a.Applied.Interest, &a.Applied.Fee, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("listAllocations: scan: %w", err)
		}
		allocs = append(allocs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listAllocations: rows: %w", err)
	}
	return allocs, nil
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	err := s.Scan(
		&p.ID, &p.LoanID, &p.IdempotencyKey, &p.Source, &p.CollateralID,
		&p.SubmittedAmount, &p.AppliedAmount, &p.OverpaymentRemainder, &p.Currency,
		&p.OccurredAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
