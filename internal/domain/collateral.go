package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/pawn-settlement/internal/money"
)

// CollateralType is reference data maintained by the seed job.
type CollateralType struct {
	ID                    uuid.UUID
	Name                  string
	CustodyFeeRateMonthly decimal.Decimal
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type CollateralStatus string

const (
	CollateralStatusPledged    CollateralStatus = "pledged"
	CollateralStatusLiquidated CollateralStatus = "liquidated"
)

type Collateral struct {
	ID               uuid.UUID
	CollateralTypeID uuid.UUID
	Description      string
	AppraisedValue   money.Amount
	Status           CollateralStatus
	SellPrice        *money.Amount
	LiquidatedAt     *time.Time
	CreatedAt        time.Time
}
