package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/engine"
	"github.com/josh-kwaku/pawn-settlement/internal/logging"
	"github.com/josh-kwaku/pawn-settlement/internal/money"
)

type LiquidateCollateralCommand struct {
	LoanID       uuid.UUID
	CollateralID uuid.UUID
	SellPrice    money.Amount
	OccurredAt   time.Time
}

// LiquidateCollateral applies the sale proceeds of the loan's collateral and
// closes the loan as LIQUIDATED, whether or not the proceeds covered it.
func (s *Service) LiquidateCollateral(ctx context.Context, cmd LiquidateCollateralCommand) (res *domain.LiquidationResult, err error) {
	ctx, span := s.tracer.Start(ctx, "settlement.LiquidateCollateral", trace.WithAttributes(
		attribute.String("loan.id", cmd.LoanID.String()),
		attribute.String("collateral.id", cmd.CollateralID.String()),
		attribute.Int64("collateral.sell_price", cmd.SellPrice.Int64()),
	))
	defer func() { endSpan(span, err) }()
	ctx, log := logging.With(ctx, "loan_id", cmd.LoanID, "collateral_id", cmd.CollateralID)

	if cmd.SellPrice.IsNegative() {
		return nil, fmt.Errorf("LiquidateCollateral: %w", domain.ErrNegativeSellPrice)
	}
	if cmd.OccurredAt.IsZero() {
		cmd.OccurredAt = s.now()
	}

	err = s.withRetry(ctx, "LiquidateCollateral", func(ctx context.Context) error {
		var aerr error
		res, aerr = s.liquidate(ctx, cmd)
		return aerr
	})
	if err != nil {
		return nil, fmt.Errorf("LiquidateCollateral: %w", err)
	}

	span.SetAttributes(
		attribute.Int64("liquidation.applied", res.AmountPaidToLoan.Int64()),
		attribute.Int64("liquidation.remaining", res.RemainingAmount.Int64()),
		attribute.Int64("liquidation.excess", res.ExcessAmount.Int64()),
	)
	log.Info("collateral liquidated",
		"sell_price", res.SellPrice,
		"amount_paid_to_loan", res.AmountPaidToLoan,
		"remaining_amount", res.RemainingAmount,
		"excess_amount", res.ExcessAmount,
	)
	return res, nil
}

func (s *Service) liquidate(ctx context.Context, cmd LiquidateCollateralCommand) (*domain.LiquidationResult, error) {
	u, err := s.begin(ctx, cmd.LoanID)
	if err != nil {
		return nil, err
	}
	defer u.rollback()

	// A foreign collateral id is never loaded; the engine rejects it after
	// the closed-loan check.
	collateral := &domain.Collateral{ID: cmd.CollateralID, Status: domain.CollateralStatusPledged}
	if cmd.CollateralID == u.loan.CollateralID {
		collateral, err = s.collaterals.GetInTx(ctx, u.tx, cmd.CollateralID)
		if err != nil {
			return nil, fmt.Errorf("load collateral: %w", err)
		}
	}

	st, err := engine.Liquidate(u.ledger, u.loan, collateral, cmd.SellPrice, cmd.OccurredAt)
	if err != nil {
		return nil, err
	}

	if err := s.claimLoan(ctx, u); err != nil {
		return nil, err
	}
	if err := s.collaterals.MarkLiquidated(ctx, u.tx, collateral.ID, cmd.SellPrice, cmd.OccurredAt); err != nil {
		return nil, err
	}
	if err := s.writeItems(ctx, u); err != nil {
		return nil, err
	}

	var paymentID *uuid.UUID
	if st.Payment != nil {
		st.Payment.IdempotencyKey = liquidationKey(collateral.ID)
		if err := s.writePayment(ctx, u, st.Payment); err != nil {
			return nil, err
		}
		paymentID = &st.Payment.ID
		if err := s.recordEvent(ctx, u, domain.SettlementEventPaymentApplied, paymentID, newPaymentAppliedPayload(st.Payment, u.loan)); err != nil {
			return nil, err
		}
	}

	res := st.Result(u.loan, collateral, cmd.SellPrice, cmd.OccurredAt)
	if err := s.recordEvent(ctx, u, domain.SettlementEventLoanLiquidated, paymentID, loanLiquidatedPayload{
		LoanID:           u.loan.ID,
		LoanCode:         u.loan.Code,
		CollateralID:     collateral.ID,
		PaymentID:        paymentID,
		SellPrice:        res.SellPrice,
		SellDate:         res.SellDate,
		AmountPaidToLoan: res.AmountPaidToLoan,
		RemainingAmount:  res.RemainingAmount,
		ExcessAmount:     res.ExcessAmount,
	}); err != nil {
		return nil, err
	}
	if err := s.recordStatusChange(ctx, u, cmd.OccurredAt); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, u); err != nil {
		return nil, err
	}
	return res, nil
}

func liquidationKey(collateralID uuid.UUID) string {
	return "liquidation:" + collateralID.String()
}
