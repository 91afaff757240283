package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/money"
	"github.com/josh-kwaku/pawn-settlement/internal/schedule"
)

// Settlement is the outcome of applying sale proceeds to a loan.
type Settlement struct {
	Payment          *domain.Payment
	TotalOutstanding money.Amount
	AmountApplied    money.Amount
	RemainingAmount  money.Amount
	ExcessAmount     money.Amount
}

// Liquidate applies the proceeds of selling the loan's collateral, marks the
// collateral liquidated and moves the loan to LIQUIDATED whether or not the
// proceeds covered the debt. The returned payment is nil when nothing was
// applied.
func Liquidate(l *schedule.Ledger, loan *domain.Loan, collateral *domain.Collateral, sellPrice money.Amount, sellDate time.Time) (*Settlement, error) {
	if sellPrice.IsNegative() {
		return nil, fmt.Errorf("Liquidate: %w", domain.ErrNegativeSellPrice)
	}
	if loan.Status.IsTerminal() {
		return nil, fmt.Errorf("Liquidate: loan %s is %s: %w", loan.Code, loan.Status, domain.ErrLoanClosed)
	}
	if collateral.ID != loan.CollateralID {
		return nil, fmt.Errorf("Liquidate: %w", domain.ErrCollateralMismatch)
	}
	if collateral.Status == domain.CollateralStatusLiquidated {
		return nil, fmt.Errorf("Liquidate: %w", domain.ErrCollateralLiquidated)
	}

	total := l.TotalOutstanding()
	s := &Settlement{
		TotalOutstanding: total,
		AmountApplied:    money.Min(sellPrice, total),
		ExcessAmount:     money.Max(0, sellPrice-total),
	}

	if s.AmountApplied.IsPositive() {
		p, err := Allocate(l, loan, s.AmountApplied, sellDate)
		if err != nil {
			return nil, fmt.Errorf("Liquidate: %w", err)
		}
		if p.OverpaymentRemainder != 0 {
			return nil, fmt.Errorf("Liquidate: %d left after applying %d: %w", p.OverpaymentRemainder, s.AmountApplied, domain.ErrOverAllocation)
		}
		p.Source = domain.PaymentSourceLiquidation
		p.CollateralID = &collateral.ID
		s.Payment = p
	}
	s.RemainingAmount = total - s.AmountApplied

	soldAt := sellDate.UTC()
	price := sellPrice
	collateral.Status = domain.CollateralStatusLiquidated
	collateral.SellPrice = &price
	collateral.LiquidatedAt = &soldAt

	l.RefreshStatuses(sellDate)
	loan.RemainingAmount = l.TotalOutstanding()
	Transition(loan, DeriveStatus(l.Items(), true, sellDate), sellDate)

	return s, nil
}

// Result builds the caller-facing view of a settlement.
func (s *Settlement) Result(loan *domain.Loan, collateral *domain.Collateral, sellPrice money.Amount, sellDate time.Time) *domain.LiquidationResult {
	r := &domain.LiquidationResult{
		CollateralID:        collateral.ID,
		SellPrice:           sellPrice,
		SellDate:            sellDate.UTC(),
		LoanID:              loan.ID,
		LoanCode:            loan.Code,
		AmountPaidToLoan:    s.AmountApplied,
		RemainingAmount:     s.RemainingAmount,
		ExcessAmount:        s.ExcessAmount,
		LoanStatus:          loan.Status,
		LoanRemainingAmount: loan.RemainingAmount,
	}
	if s.Payment != nil {
		id := s.Payment.ID
		r.PaymentID = &id
	}

	switch {
	case s.ExcessAmount.IsPositive():
		r.Message = fmt.Sprintf("Collateral sold; loan settled in full, %s refundable to borrower", s.ExcessAmount)
	case s.RemainingAmount.IsPositive():
		r.Message = fmt.Sprintf("Collateral sold; proceeds insufficient, %s still owed", s.RemainingAmount)
	default:
		r.Message = "Collateral sold; loan settled in full"
	}
	return r
}

// CustodyFee is the custody charge for holding collateral of the given type
// for months, computed on base and rounded once.
func CustodyFee(base money.Amount, ct *domain.CollateralType, months int) money.Amount {
	if months <= 0 {
		return 0
	}
	return base.MulRate(ct.CustodyFeeRateMonthly.Mul(decimal.NewFromInt(int64(months))))
}
