package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
)

const scheduleItemColumns = `id, loan_id, seq, due_date,
	scheduled_principal, scheduled_interest, scheduled_fee,
	paid_principal, paid_interest, paid_fee, status, paid_at, created_at`

type ScheduleItemRepository struct {
	db *sql.DB
}

func NewScheduleItemRepository(db *sql.DB) *ScheduleItemRepository {
	return &ScheduleItemRepository{db: db}
}

func (r *ScheduleItemRepository) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduleItem, error) {
	items, err := listScheduleItems(ctx, r.db, loanID)
	if err != nil {
		return nil, fmt.Errorf("ListByLoan: %w", err)
	}
	return items, nil
}

func (r *ScheduleItemRepository) ListByLoanInTx(ctx context.Context, tx *sql.Tx, loanID uuid.UUID) ([]*domain.ScheduleItem, error) {
	items, err := listScheduleItems(ctx, tx, loanID)
	if err != nil {
		return nil, fmt.Errorf("ListByLoanInTx: %w", err)
	}
	return items, nil
}

func (r *ScheduleItemRepository) Create(ctx context.Context, tx *sql.Tx, item *domain.ScheduleItem) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO repayment_schedule_items (
			id, loan_id, seq, due_date,
			scheduled_principal, scheduled_interest, scheduled_fee,
			paid_principal, paid_interest, paid_fee, status, paid_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		item.ID, item.LoanID, item.Seq, item.DueDate.UTC().Format(time.DateOnly),
		item.Scheduled.Principal, item.Scheduled.Interest, item.Scheduled.Fee,
		item.Paid.Principal, item.Paid.Interest, item.Paid.Fee,
		item.Status, item.PaidAt, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// UpdatePaid writes the paid breakdown and status of one item. The scheduled
// columns are never rewritten.
func (r *ScheduleItemRepository) UpdatePaid(ctx context.Context, tx *sql.Tx, item *domain.ScheduleItem) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE repayment_schedule_items
		SET paid_principal = $1, paid_interest = $2, paid_fee = $3, status = $4, paid_at = $5
		WHERE id = $6 AND loan_id = $7`,
		item.Paid.Principal, item.Paid.Interest, item.Paid.Fee, item.Status, item.PaidAt,
		item.ID, item.LoanID,
	)
	if err != nil {
		return fmt.Errorf("UpdatePaid: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdatePaid: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdatePaid: item %s: %w", item.ID, domain.ErrNotFound)
	}
	return nil
}

func listScheduleItems(ctx context.Context, q querier, loanID uuid.UUID) ([]*domain.ScheduleItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+scheduleItemColumns+` FROM repayment_schedule_items
		WHERE loan_id = $1 ORDER BY due_date, seq`, loanID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.ScheduleItem
	for rows.Next() {
		it, err := scanScheduleItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return items, nil
}

func scanScheduleItem(s scanner) (*domain.ScheduleItem, error) {
	var it domain.ScheduleItem
	err := s.Scan(
		&it.ID, &it.LoanID, &it.Seq, &it.DueDate,
		&it.Scheduled.Principal, &it.Scheduled.Interest, &it.Scheduled.Fee,
		&it.Paid.Principal, &it.Paid.Interest, &it.Paid.Fee,
		&it.Status, &it.PaidAt, &it.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	it.DueDate = it.DueDate.UTC()
	return &it, nil
}
