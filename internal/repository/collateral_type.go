package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
)

const collateralTypeColumns = `id, name, custody_fee_rate_monthly, created_at, updated_at`

type CollateralTypeRepository struct {
	db *sql.DB
}

func NewCollateralTypeRepository(db *sql.DB) *CollateralTypeRepository {
	return &CollateralTypeRepository{db: db}
}

func (r *CollateralTypeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CollateralType, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+collateralTypeColumns+` FROM collateral_types WHERE id = $1`, id,
	)
	ct, err := scanCollateralType(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return ct, nil
}

func (r *CollateralTypeRepository) GetByName(ctx context.Context, name string) (*domain.CollateralType, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+collateralTypeColumns+` FROM collateral_types WHERE name = $1`, name,
	)
	ct, err := scanCollateralType(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByName: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByName: %w", err)
	}
	return ct, nil
}

func (r *CollateralTypeRepository) List(ctx context.Context) ([]*domain.CollateralType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+collateralTypeColumns+` FROM collateral_types ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var out []*domain.CollateralType
	for rows.Next() {
		ct, err := scanCollateralType(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return out, nil
}

// UpsertByName inserts the type or updates the fee rate of the existing row
// with the same name. ct.ID and timestamps are refreshed from the stored row.
func (r *CollateralTypeRepository) UpsertByName(ctx context.Context, ct *domain.CollateralType) error {
	if ct.ID == uuid.Nil {
		ct.ID = uuid.New()
	}
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO collateral_types (id, name, custody_fee_rate_monthly)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
			SET custody_fee_rate_monthly = EXCLUDED.custody_fee_rate_monthly, updated_at = now()
		RETURNING `+collateralTypeColumns,
		ct.ID, ct.Name, ct.CustodyFeeRateMonthly,
	)
	stored, err := scanCollateralType(row)
	if err != nil {
		return fmt.Errorf("UpsertByName: %w", err)
	}
	*ct = *stored
	return nil
}

func scanCollateralType(s scanner) (*domain.CollateralType, error) {
	var ct domain.CollateralType
	if err := s.Scan(&ct.ID, &ct.Name, &ct.CustodyFeeRateMonthly, &ct.CreatedAt, &ct.UpdatedAt); err != nil {
		return nil, err
	}
	return &ct, nil
}
