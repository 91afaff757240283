package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/money"
)

const collateralColumns = `id, collateral_type_id, description, appraised_value,
	status, sell_price, liquidated_at, created_at`

type CollateralRepository struct {
	db *sql.DB
}

func NewCollateralRepository(db *sql.DB) *CollateralRepository {
	return &CollateralRepository{db: db}
}

func (r *CollateralRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Collateral, error) {
	c, err := getCollateral(ctx, r.db, id)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return c, nil
}

func (r *CollateralRepository) GetInTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Collateral, error) {
	c, err := getCollateral(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("GetInTx: %w", err)
	}
	return c, nil
}

func (r *CollateralRepository) Create(ctx context.Context, tx *sql.Tx, c *domain.Collateral) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO collaterals (
			id, collateral_type_id, description, appraised_value,
			status, sell_price, liquidated_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.CollateralTypeID, c.Description, c.AppraisedValue,
		c.Status, c.SellPrice, c.LiquidatedAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// MarkLiquidated records the sale. Only a pledged item can be sold, so a
// second sale of the same item reports ErrCollateralLiquidated.
func (r *CollateralRepository) MarkLiquidated(ctx context.Context, tx *sql.Tx, id uuid.UUID, sellPrice money.Amount, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE collaterals SET status = $1, sell_price = $2, liquidated_at = $3
		WHERE id = $4 AND status = $5`,
		domain.CollateralStatusLiquidated, sellPrice, at,
		id, domain.CollateralStatusPledged,
	)
	if err != nil {
		return fmt.Errorf("MarkLiquidated: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkLiquidated: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkLiquidated: %w", domain.ErrCollateralLiquidated)
	}
	return nil
}

func getCollateral(ctx context.Context, q querier, id uuid.UUID) (*domain.Collateral, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+collateralColumns+` FROM collaterals WHERE id = $1`, id,
	)
	var c domain.Collateral
	err := row.Scan(
		&c.ID, &c.CollateralTypeID, &c.Description, &c.AppraisedValue,
		&c.Status, &c.SellPrice, &c.LiquidatedAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
