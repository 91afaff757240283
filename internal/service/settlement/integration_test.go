package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/money"
	"github.com/josh-kwaku/pawn-settlement/internal/repository"
	"github.com/josh-kwaku/pawn-settlement/internal/testutil"
)

type testEnv struct {
	db        *sql.DB
	svc       *Service
	publisher *recordingPublisher
	gold      *domain.CollateralType
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	pub := &recordingPublisher{}

	svc := NewService(Repositories{
		Loans:       repository.NewLoanRepository(db),
		Schedule:    repository.NewScheduleItemRepository(db),
		Payments:    repository.NewPaymentRepository(db),
		Collaterals: repository.NewCollateralRepository(db),
		Events:      repository.NewSettlementEventRepository(db),
	}, db, Options{
		MaxRetries: 20,
		RetryBase:  2 * time.Millisecond,
		Publisher:  pub,
	})

	return &testEnv{
		db:        db,
		svc:       svc,
		publisher: pub,
		gold:      testutil.SeedCollateralType(t, db, "gold", "0.02"),
	}
}

// Two installments of 500,000: 400k principal, 80k interest, 20k custody fee.
func (e *testEnv) seedMillionLoan(t *testing.T) *testutil.SeededLoan {
	t.Helper()
	return testutil.SeedLoan(t, e.db, testutil.LoanFixture{
		CollateralType: e.gold,
		AppraisedValue: 1_200_000,
		Installments: []testutil.Installment{
			{DueDate: testutil.Date(2024, 1, 1), Principal: 400_000, Interest: 80_000, Fee: 20_000},
			{DueDate: testutil.Date(2024, 2, 1), Principal: 400_000, Interest: 80_000, Fee: 20_000},
		},
	})
}

func (e *testEnv) items(t *testing.T, loanID uuid.UUID) []*domain.ScheduleItem {
	t.Helper()
	items, err := e.svc.ListScheduleItems(context.Background(), loanID)
	require.NoError(t, err)
	return items
}

func (e *testEnv) loan(t *testing.T, loanID uuid.UUID) *domain.Loan {
	t.Helper()
	l, err := e.svc.GetLoan(context.Background(), loanID)
	require.NoError(t, err)
	return l
}

func pay(loanID uuid.UUID, amount money.Amount, at time.Time) SubmitPaymentCommand {
	return SubmitPaymentCommand{
		LoanID:         loanID,
		Amount:         amount,
		OccurredAt:     at,
		IdempotencyKey: uuid.NewString(),
	}
}

func TestSubmitPayment_FeeThenInterestThenPrincipal(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	seeded := testutil.SeedLoan(t, env.db, testutil.LoanFixture{
		CollateralType: env.gold,
		Installments: []testutil.Installment{
			{DueDate: testutil.Date(2024, 3, 1), Principal: 100, Interest: 20, Fee: 10},
		},
	})

	p, err := env.svc.SubmitPayment(ctx, pay(seeded.Loan.ID, 25, testutil.Date(2024, 1, 10)))
	require.NoError(t, err)

	require.Len(t, p.Allocations, 1)
	assert.Equal(t, domain.Components{Fee: 10, Interest: 15}, p.Allocations[0].Applied)

	items := env.items(t, seeded.Loan.ID)
	assert.Equal(t, domain.Components{Fee: 10, Interest: 15}, items[0].Paid)
	assert.Equal(t, domain.ItemStatusPartiallyPaid, items[0].Status)

	loan := env.loan(t, seeded.Loan.ID)
	assert.Equal(t, domain.LoanStatusActive, loan.Status)
	assert.EqualValues(t, 105, loan.RemainingAmount)
	assert.EqualValues(t, 1, loan.Version)
}

func TestSubmitPayment_OldestFirstAndPayoff(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	seeded := env.seedMillionLoan(t)
	at := testutil.Date(2023, 12, 20)

	p, err := env.svc.SubmitPayment(ctx, pay(seeded.Loan.ID, 500_000, at))
	require.NoError(t, err)
	require.Len(t, p.Allocations, 1)
	assert.Equal(t, seeded.Items[0].ID, p.Allocations[0].ScheduleItemID)

	items := env.items(t, seeded.Loan.ID)
	assert.Equal(t, domain.ItemStatusPaid, items[0].Status)
	assert.NotNil(t, items[0].PaidAt)
	assert.Equal(t, domain.ItemStatusPending, items[1].Status)

	_, err = env.svc.SubmitPayment(ctx, pay(seeded.Loan.ID, 500_000, at))
	require.NoError(t, err)

	loan := env.loan(t, seeded.Loan.ID)
	assert.Equal(t, domain.LoanStatusPaidOff, loan.Status)
	assert.EqualValues(t, 0, loan.RemainingAmount)
	assert.NotNil(t, loan.ClosedAt)

	assert.Equal(t, []domain.SettlementEventType{
		domain.SettlementEventPaymentApplied,
		domain.SettlementEventPaymentApplied,
		domain.SettlementEventLoanStatusChange,
	}, env.publisher.types())
	assert.Equal(t, 3, testutil.CountRows(t, env.db,
		`SELECT count(*) FROM settlement_events WHERE loan_id = $1`, seeded.Loan.ID))
}

func TestSubmitPayment_OverpaymentRemainder(t *testing.T) {
	env := setupEnv(t)
	seeded := env.seedMillionLoan(t)

	p, err := env.svc.SubmitPayment(context.Background(), pay(seeded.Loan.ID, 1_000_500, testutil.Date(2023, 12, 20)))
	require.NoError(t, err)

	assert.EqualValues(t, 1_000_000, p.AppliedAmount)
	assert.EqualValues(t, 500, p.OverpaymentRemainder)
	assert.Equal(t, domain.LoanStatusPaidOff, env.loan(t, seeded.Loan.ID).Status)

	stored, err := env.svc.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 500, stored.OverpaymentRemainder)
	assert.Equal(t, p.AppliedComponents(), stored.AppliedComponents())
}

func TestSubmitPayment_TerminalLoanRejected(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	seeded := env.seedMillionLoan(t)

	_, err := env.svc.SubmitPayment(ctx, pay(seeded.Loan.ID, 1_000_000, testutil.Date(2023, 12, 20)))
	require.NoError(t, err)

	_, err = env.svc.SubmitPayment(ctx, pay(seeded.Loan.ID, 10, testutil.Date(2023, 12, 21)))
	require.ErrorIs(t, err, domain.ErrLoanClosed)
	assert.Equal(t, "LOAN_CLOSED", domain.ErrorCode(err))

	assert.Equal(t, 1, testutil.CountRows(t, env.db,
		`SELECT count(*) FROM payments WHERE loan_id = $1`, seeded.Loan.ID))
	assert.EqualValues(t, 1, env.loan(t, seeded.Loan.ID).Version)
}

func TestSubmitPayment_Idempotency(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	seeded := env.seedMillionLoan(t)
	cmd := pay(seeded.Loan.ID, 300_000, testutil.Date(2023, 12, 20))

	first, err := env.svc.SubmitPayment(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := env.svc.SubmitPayment(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.AppliedComponents(), second.AppliedComponents())

	assert.Equal(t, 1, testutil.CountRows(t, env.db,
		`SELECT count(*) FROM payments WHERE loan_id = $1`, seeded.Loan.ID))
	assert.EqualValues(t, 700_000, env.loan(t, seeded.Loan.ID).RemainingAmount)

	reused := cmd
	reused.Amount = 1
	_, err = env.svc.SubmitPayment(ctx, reused)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyReused)
}

func TestSubmitPayment_ConcurrentSameKey(t *testing.T) {
	env := setupEnv(t)
	seeded := env.seedMillionLoan(t)
	cmd := pay(seeded.Loan.ID, 200_000, testutil.Date(2023, 12, 20))

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 4)
	errs := make([]error, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := env.svc.SubmitPayment(context.Background(), cmd)
			errs[i] = err
			if err == nil {
				ids[i] = p.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.EqualValues(t, 800_000, env.loan(t, seeded.Loan.ID).RemainingAmount)
}

func TestSubmitPayment_ValidationBeforeMutation(t *testing.T) {
	env := setupEnv(t)
	seeded := env.seedMillionLoan(t)

	_, err := env.svc.SubmitPayment(context.Background(), pay(seeded.Loan.ID, 0, testutil.Date(2024, 1, 1)))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = env.svc.SubmitPayment(context.Background(), pay(uuid.New(), 10, testutil.Date(2024, 1, 1)))
	require.ErrorIs(t, err, domain.ErrNotFound)

	assert.EqualValues(t, 0, env.loan(t, seeded.Loan.ID).Version)
	assert.Empty(t, env.publisher.types())
}

func TestSubmitPayment_ConcurrentHalves(t *testing.T) {
	env := setupEnv(t)
	seeded := env.seedMillionLoan(t)
	at := testutil.Date(2023, 12, 20)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.SubmitPayment(context.Background(), pay(seeded.Loan.ID, 500_000, at))
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	loan := env.loan(t, seeded.Loan.ID)
	assert.Equal(t, domain.LoanStatusPaidOff, loan.Status)
	assert.EqualValues(t, 0, loan.RemainingAmount)
	assert.EqualValues(t, 2, loan.Version)

	payments, err := env.svc.ListPayments(context.Background(), seeded.Loan.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	for _, p := range payments {
		assert.EqualValues(t, 500_000, p.AppliedAmount)
		assert.Zero(t, p.OverpaymentRemainder)
	}
}

func TestSubmitPayment_ContentionNeverOverAllocates(t *testing.T) {
	env := setupEnv(t)
	seeded := env.seedMillionLoan(t)
	at := testutil.Date(2023, 12, 20)

	const workers = 8
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Late arrivals may find the loan closed; that is an expected outcome.
			_, _ = env.svc.SubmitPayment(context.Background(), pay(seeded.Loan.ID, 300_000, at))
		}()
	}
	wg.Wait()

	var applied, paid int64
	require.NoError(t, env.db.QueryRow(
		`SELECT COALESCE(SUM(applied_amount), 0) FROM payments WHERE loan_id = $1`, seeded.Loan.ID,
	).Scan(&applied))
	require.NoError(t, env.db.QueryRow(
		`SELECT COALESCE(SUM(paid_principal + paid_interest + paid_fee), 0)
		FROM repayment_schedule_items WHERE loan_id = $1`, seeded.Loan.ID,
	).Scan(&paid))

	assert.EqualValues(t, 1_000_000, applied)
	assert.Equal(t, applied, paid)
	assert.Equal(t, domain.LoanStatusPaidOff, env.loan(t, seeded.Loan.ID).Status)
}

func TestSubmitPayment_DifferentLoansIndependent(t *testing.T) {
	env := setupEnv(t)
	loans := []*testutil.SeededLoan{env.seedMillionLoan(t), env.seedMillionLoan(t), env.seedMillionLoan(t)}

	var wg sync.WaitGroup
	errs := make([]error, len(loans))
	for i, l := range loans {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = env.svc.SubmitPayment(context.Background(), pay(id, 250_000, testutil.Date(2023, 12, 20)))
		}(i, l.Loan.ID)
	}
	wg.Wait()

	for i, l := range loans {
		require.NoError(t, errs[i])
		loan := env.loan(t, l.Loan.ID)
		assert.EqualValues(t, 750_000, loan.RemainingAmount)
		assert.EqualValues(t, 1, loan.Version)
	}
}

func TestLiquidateCollateral_Shortfall(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	seeded := env.seedMillionLoan(t)
	sellDate := testutil.Date(2024, 3, 1)

	res, err := env.svc.LiquidateCollateral(ctx, LiquidateCollateralCommand{
		LoanID:       seeded.Loan.ID,
		CollateralID: seeded.Collateral.ID,
		SellPrice:    800_000,
		OccurredAt:   sellDate,
	})
	require.NoError(t, err)

	assert.EqualValues(t, 800_000, res.AmountPaidToLoan)
	assert.EqualValues(t, 200_000, res.RemainingAmount)
	assert.EqualValues(t, 0, res.ExcessAmount)
	assert.Equal(t, domain.LoanStatusLiquidated, res.LoanStatus)
	require.NotNil(t, res.PaymentID)

	loan := env.loan(t, seeded.Loan.ID)
	assert.Equal(t, domain.LoanStatusLiquidated, loan.Status)
	assert.EqualValues(t, 200_000, loan.RemainingAmount)
	require.NotNil(t, loan.LiquidatedAt)

	p, err := env.svc.GetPayment(ctx, *res.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSourceLiquidation, p.Source)
	assert.Equal(t, seeded.Collateral.ID, *p.CollateralID)

	collateral, err := repository.NewCollateralRepository(env.db).GetByID(ctx, seeded.Collateral.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CollateralStatusLiquidated, collateral.Status)
	assert.EqualValues(t, 800_000, *collateral.SellPrice)

	_, err = env.svc.SubmitPayment(ctx, pay(seeded.Loan.ID, 200_000, testutil.Date(2024, 3, 2)))
	require.ErrorIs(t, err, domain.ErrLoanClosed)

	_, err = env.svc.LiquidateCollateral(ctx, LiquidateCollateralCommand{
		LoanID: seeded.Loan.ID, CollateralID: seeded.Collateral.ID, SellPrice: 1, OccurredAt: sellDate,
	})
	require.ErrorIs(t, err, domain.ErrLoanClosed)

	assert.Contains(t, env.publisher.types(), domain.SettlementEventLoanLiquidated)
}

func TestLiquidateCollateral_Surplus(t *testing.T) {
	env := setupEnv(t)
	seeded := env.seedMillionLoan(t)

	res, err := env.svc.LiquidateCollateral(context.Background(), LiquidateCollateralCommand{
		LoanID:       seeded.Loan.ID,
		CollateralID: seeded.Collateral.ID,
		SellPrice:    1_500_000,
		OccurredAt:   testutil.Date(2024, 1, 20),
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1_000_000, res.AmountPaidToLoan)
	assert.EqualValues(t, 0, res.RemainingAmount)
	assert.EqualValues(t, 500_000, res.ExcessAmount)
	assert.Equal(t, domain.LoanStatusLiquidated, env.loan(t, seeded.Loan.ID).Status)

	for _, it := range env.items(t, seeded.Loan.ID) {
		assert.Equal(t, domain.ItemStatusPaid, it.Status)
	}
}

func TestLiquidateCollateral_MismatchLeavesLoanUntouched(t *testing.T) {
	env := setupEnv(t)
	seeded := env.seedMillionLoan(t)
	other := env.seedMillionLoan(t)

	_, err := env.svc.LiquidateCollateral(context.Background(), LiquidateCollateralCommand{
		LoanID:       seeded.Loan.ID,
		CollateralID: other.Collateral.ID,
		SellPrice:    100,
		OccurredAt:   testutil.Date(2024, 3, 1),
	})
	require.ErrorIs(t, err, domain.ErrCollateralMismatch)

	loan := env.loan(t, seeded.Loan.ID)
	assert.Equal(t, domain.LoanStatusActive, loan.Status)
	assert.EqualValues(t, 0, loan.Version)
	assert.Equal(t, 0, testutil.CountRows(t, env.db,
		`SELECT count(*) FROM payments WHERE loan_id = $1`, seeded.Loan.ID))
}

func TestLiquidateCollateral_ZeroSellPrice(t *testing.T) {
	env := setupEnv(t)
	seeded := env.seedMillionLoan(t)

	res, err := env.svc.LiquidateCollateral(context.Background(), LiquidateCollateralCommand{
		LoanID:       seeded.Loan.ID,
		CollateralID: seeded.Collateral.ID,
		SellPrice:    0,
		OccurredAt:   testutil.Date(2024, 3, 1),
	})
	require.NoError(t, err)

	assert.Nil(t, res.PaymentID)
	assert.EqualValues(t, 1_000_000, res.RemainingAmount)
	assert.Equal(t, domain.LoanStatusLiquidated, env.loan(t, seeded.Loan.ID).Status)
}

func TestRefreshLoanStatus(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	seeded := env.seedMillionLoan(t)

	loan, err := env.svc.RefreshLoanStatus(ctx, seeded.Loan.ID, testutil.Date(2023, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, loan.Status)
	assert.EqualValues(t, 0, loan.Version)

	loan, err = env.svc.RefreshLoanStatus(ctx, seeded.Loan.ID, testutil.Date(2024, 1, 15))
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusDelinquent, loan.Status)
	assert.EqualValues(t, 1, loan.Version)
	assert.Equal(t, domain.ItemStatusOverdue, env.items(t, seeded.Loan.ID)[0].Status)

	again, err := env.svc.RefreshLoanStatus(ctx, seeded.Loan.ID, testutil.Date(2024, 1, 15))
	require.NoError(t, err)
	assert.Equal(t, loan.Status, again.Status)
	assert.EqualValues(t, 1, again.Version)

	_, err = env.svc.SubmitPayment(ctx, pay(seeded.Loan.ID, 500_000, testutil.Date(2024, 1, 16)))
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusActive, env.loan(t, seeded.Loan.ID).Status)
}

func TestReadModels_NotFound(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	_, err := env.svc.GetLoan(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.GetPayment(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.ListScheduleItems(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.GetLoanByCode(ctx, fmt.Sprintf("PWN-%d", time.Now().UnixNano()))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRefreshOpenLoans(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	overdue := env.seedMillionLoan(t)
	current := testutil.SeedLoan(t, env.db, testutil.LoanFixture{
		CollateralType: env.gold,
		Installments:   testutil.MonthlyInstallments(testutil.Date(2024, 6, 1), 300_000, 3, "0.03", env.gold),
	})
	closed := env.seedMillionLoan(t)
	_, err := env.svc.SubmitPayment(ctx, pay(closed.Loan.ID, 1_000_000, testutil.Date(2023, 12, 1)))
	require.NoError(t, err)

	changed, err := env.svc.RefreshOpenLoans(ctx, testutil.Date(2024, 1, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	assert.Equal(t, domain.LoanStatusDelinquent, env.loan(t, overdue.Loan.ID).Status)
	assert.Equal(t, domain.LoanStatusActive, env.loan(t, current.Loan.ID).Status)
	assert.Equal(t, domain.LoanStatusPaidOff, env.loan(t, closed.Loan.ID).Status)
}
