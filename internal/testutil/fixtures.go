package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/engine"
	"github.com/josh-kwaku/pawn-settlement/internal/money"
	"github.com/josh-kwaku/pawn-settlement/internal/repository"
)

type Installment struct {
	DueDate   time.Time
	Principal money.Amount
	Interest  money.Amount
	Fee       money.Amount
}

type LoanFixture struct {
	Code           string
	Currency       money.Currency
	CollateralType *domain.CollateralType
	AppraisedValue money.Amount
	Installments   []Installment
}

type SeededLoan struct {
	Loan       *domain.Loan
	Collateral *domain.Collateral
	Items      []*domain.ScheduleItem
}

func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func SeedCollateralType(t *testing.T, db *sql.DB, name, monthlyRate string) *domain.CollateralType {
	t.Helper()

	ct := &domain.CollateralType{Name: name, CustodyFeeRateMonthly: decimal.RequireFromString(monthlyRate)}
	if err := repository.NewCollateralTypeRepository(db).UpsertByName(context.Background(), ct); err != nil {
		t.Fatalf("seed collateral type %s: %v", name, err)
	}
	return ct
}

// MonthlyInstallments splits principal over months installments due on the
// same day of consecutive months. Interest is a flat monthly rate on the
// full principal and the fee is one month of custody for ct.
func MonthlyInstallments(firstDue time.Time, principal money.Amount, months int, monthlyInterest string, ct *domain.CollateralType) []Installment {
	rate := decimal.RequireFromString(monthlyInterest)
	per := principal / money.Amount(months)

	out := make([]Installment, months)
	for i := range out {
		p := per
		if i == months-1 {
			p = principal - per*money.Amount(months-1)
		}
		out[i] = Installment{
			DueDate:   firstDue.AddDate(0, i, 0),
			Principal: p,
			Interest:  principal.MulRate(rate),
			Fee:       engine.CustodyFee(principal, ct, 1),
		}
	}
	return out
}

// SeedLoan writes a pledged collateral, an ACTIVE loan and its schedule in
// one transaction.
func SeedLoan(t *testing.T, db *sql.DB, f LoanFixture) *SeededLoan {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	if f.Currency == "" {
		f.Currency = money.CurrencyIDR
	}
	if f.Code == "" {
		f.Code = fmt.Sprintf("PWN-%s", uuid.NewString()[:8])
	}

	collateral := &domain.Collateral{
		ID:               uuid.New(),
		CollateralTypeID: f.CollateralType.ID,
		Description:      "test collateral",
		AppraisedValue:   f.AppraisedValue,
		Status:           domain.CollateralStatusPledged,
		CreatedAt:        now,
	}

	loan := &domain.Loan{
		ID:           uuid.New(),
		Code:         f.Code,
		CollateralID: collateral.ID,
		Currency:     f.Currency,
		Status:       domain.LoanStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	items := make([]*domain.ScheduleItem, len(f.Installments))
	for i, in := range f.Installments {
		items[i] = &domain.ScheduleItem{
			ID:        uuid.New(),
			LoanID:    loan.ID,
			Seq:       i + 1,
			DueDate:   in.DueDate,
			Scheduled: domain.Components{Principal: in.Principal, Interest: in.Interest, Fee: in.Fee},
			Status:    domain.ItemStatusPending,
			CreatedAt: now,
		}
		loan.Principal += in.Principal
		loan.RemainingAmount += items[i].Scheduled.Total()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin seed tx: %v", err)
	}
	defer tx.Rollback()

	if err := repository.NewCollateralRepository(db).Create(ctx, tx, collateral); err != nil {
		t.Fatalf("seed collateral: %v", err)
	}
	if err := repository.NewLoanRepository(db).Create(ctx, tx, loan); err != nil {
		t.Fatalf("seed loan: %v", err)
	}
	itemRepo := repository.NewScheduleItemRepository(db)
	for _, it := range items {
		if err := itemRepo.Create(ctx, tx, it); err != nil {
			t.Fatalf("seed schedule item %d: %v", it.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit seed tx: %v", err)
	}

	return &SeededLoan{Loan: loan, Collateral: collateral, Items: items}
}

func CountRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}
