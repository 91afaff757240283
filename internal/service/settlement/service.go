// Package settlement runs repayment and liquidation against the store. Each
// operation is one SQL transaction that reads the loan and its schedule,
// applies the engine rules and writes the result back, guarded by the loan's
// version. Conflicting attempts are retried from a fresh read.
package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/events"
	"github.com/josh-kwaku/pawn-settlement/internal/money"
)

const tracerName = "github.com/josh-kwaku/pawn-settlement/internal/service/settlement"

type loanRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	GetByCode(ctx context.Context, code string) (*domain.Loan, error)
	GetInTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Loan, error)
	ListOpenIDs(ctx context.Context) ([]uuid.UUID, error)
	UpdateState(ctx context.Context, tx *sql.Tx, loan *domain.Loan, newVersion int64) error
}

type scheduleRepo interface {
	ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduleItem, error)
	ListByLoanInTx(ctx context.Context, tx *sql.Tx, loanID uuid.UUID) ([]*domain.ScheduleItem, error)
	UpdatePaid(ctx context.Context, tx *sql.Tx, item *domain.ScheduleItem) error
}

type paymentRepo interface {
	Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error)
	ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.Payment, error)
}

type collateralRepo interface {
	GetInTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Collateral, error)
	MarkLiquidated(ctx context.Context, tx *sql.Tx, id uuid.UUID, sellPrice money.Amount, at time.Time) error
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.SettlementEvent) error
}

type Repositories struct {
	Loans       loanRepo
	Schedule    scheduleRepo
	Payments    paymentRepo
	Collaterals collateralRepo
	Events      eventRepo
}

type Options struct {
	// MaxRetries is the number of extra attempts after a version conflict.
	MaxRetries int
	RetryBase  time.Duration
	Publisher  events.Publisher
	Tracer     trace.Tracer
	Now        func() time.Time
}

type Service struct {
	loans       loanRepo
	schedule    scheduleRepo
	payments    paymentRepo
	collaterals collateralRepo
	events      eventRepo
	db          *sql.DB

	publisher  events.Publisher
	tracer     trace.Tracer
	now        func() time.Time
	maxRetries int
	retryBase  time.Duration
}

func NewService(repos Repositories, db *sql.DB, opts Options) *Service {
	s := &Service{
		loans:       repos.Loans,
		schedule:    repos.Schedule,
		payments:    repos.Payments,
		collaterals: repos.Collaterals,
		events:      repos.Events,
		db:          db,
		publisher:   opts.Publisher,
		tracer:      opts.Tracer,
		now:         opts.Now,
		maxRetries:  opts.MaxRetries,
		retryBase:   opts.RetryBase,
	}
	if s.publisher == nil {
		s.publisher = events.NewLogPublisher(nil)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.retryBase <= 0 {
		s.retryBase = 20 * time.Millisecond
	}
	return s
}

func (s *Service) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	l, err := s.loans.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetLoan: %w", err)
	}
	return l, nil
}

func (s *Service) GetLoanByCode(ctx context.Context, code string) (*domain.Loan, error) {
	l, err := s.loans.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("GetLoanByCode: %w", err)
	}
	return l, nil
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetPayment: %w", err)
	}
	return p, nil
}

func (s *Service) ListPayments(ctx context.Context, loanID uuid.UUID) ([]*domain.Payment, error) {
	if _, err := s.loans.GetByID(ctx, loanID); err != nil {
		return nil, fmt.Errorf("ListPayments: %w", err)
	}
	ps, err := s.payments.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("ListPayments: %w", err)
	}
	return ps, nil
}

// ListScheduleItems returns the loan's items in allocation order.
func (s *Service) ListScheduleItems(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduleItem, error) {
	if _, err := s.loans.GetByID(ctx, loanID); err != nil {
		return nil, fmt.Errorf("ListScheduleItems: %w", err)
	}
	items, err := s.schedule.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("ListScheduleItems: %w", err)
	}
	return items, nil
}
