package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
)

const loanColumns = `id, code, collateral_id, principal, currency, status,
	remaining_amount, version, liquidated_at, closed_at, created_at, updated_at`

type LoanRepository struct {
	db *sql.DB
}

func NewLoanRepository(db *sql.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

func (r *LoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	l, err := getLoan(ctx, r.db, id)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return l, nil
}

// GetInTx reads the loan inside tx without locking it; writers detect
// concurrent changes through the version column.
func (r *LoanRepository) GetInTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Loan, error) {
	l, err := getLoan(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("GetInTx: %w", err)
	}
	return l, nil
}

func (r *LoanRepository) GetByCode(ctx context.Context, code string) (*domain.Loan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE code = $1`, code,
	)
	l, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByCode: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByCode: %w", err)
	}
	return l, nil
}

// ListOpenIDs returns the ids of ACTIVE and DELINQUENT loans, oldest first.
func (r *LoanRepository) ListOpenIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM loans WHERE status IN ($1, $2) ORDER BY created_at, id`,
		domain.LoanStatusActive, domain.LoanStatusDelinquent,
	)
	if err != nil {
		return nil, fmt.Errorf("ListOpenIDs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListOpenIDs: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListOpenIDs: rows: %w", err)
	}
	return ids, nil
}

func (r *LoanRepository) Create(ctx context.Context, tx *sql.Tx, loan *domain.Loan) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO loans (
			id, code, collateral_id, principal, currency, status,
			remaining_amount, version, liquidated_at, closed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		loan.ID, loan.Code, loan.CollateralID, loan.Principal, loan.Currency, loan.Status,
		loan.RemainingAmount, loan.Version, loan.LiquidatedAt, loan.ClosedAt,
		loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// UpdateState writes the derived status and remaining amount, moving the
// version from newVersion-1 to newVersion. A concurrent writer that got there
// first makes this fail with ErrVersionConflict.
func (r *LoanRepository) UpdateState(ctx context.Context, tx *sql.Tx, loan *domain.Loan, newVersion int64) error {
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE loans SET status = $1, remaining_amount = $2, liquidated_at = $3,
			closed_at = $4, version = $5, updated_at = $6
		WHERE id = $7 AND version = $8`,
		loan.Status, loan.RemainingAmount, loan.LiquidatedAt,
		loan.ClosedAt, newVersion, now,
		loan.ID, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateState: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateState: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateState: %w", domain.ErrVersionConflict)
	}

	loan.Version = newVersion
	loan.UpdatedAt = now
	return nil
}

func getLoan(ctx context.Context, q querier, id uuid.UUID) (*domain.Loan, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = $1`, id,
	)
	l, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

func scanLoan(s scanner) (*domain.Loan, error) {
	var l domain.Loan
	err := s.Scan(
		&l.ID, &l.Code, &l.CollateralID, &l.Principal, &l.Currency, &l.Status,
		&l.RemainingAmount, &l.Version, &l.LiquidatedAt, &l.ClosedAt,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
