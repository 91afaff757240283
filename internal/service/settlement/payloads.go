package settlement

import (
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/money"
)

type allocationPayload struct {
	ScheduleItemID uuid.UUID    `json:"schedule_item_id"`
	Principal      money.Amount `json:"principal"`
	Interest       money.Amount `json:"interest"`
	Fee            money.Amount `json:"fee"`
}

type paymentAppliedPayload struct {
	PaymentID            uuid.UUID            `json:"payment_id"`
	LoanID               uuid.UUID            `json:"loan_id"`
	LoanCode             string               `json:"loan_code"`
	Source               domain.PaymentSource `json:"source"`
	Currency             money.Currency       `json:"currency"`
	SubmittedAmount      money.Amount         `json:"submitted_amount"`
	AppliedAmount        money.Amount         `json:"applied_amount"`
	OverpaymentRemainder money.Amount         `json:"overpayment_remainder"`
	Allocations          []allocationPayload  `json:"allocations"`
	LoanStatus           domain.LoanStatus    `json:"loan_status"`
	LoanRemainingAmount  money.Amount         `json:"loan_remaining_amount"`
	OccurredAt           time.Time            `json:"occurred_at"`
}

func newPaymentAppliedPayload(p *domain.Payment, loan *domain.Loan) paymentAppliedPayload {
	out := paymentAppliedPayload{
		PaymentID:            p.ID,
		LoanID:               loan.ID,
		LoanCode:             loan.Code,
		Source:               p.Source,
		Currency:             p.Currency,
		SubmittedAmount:      p.SubmittedAmount,
		AppliedAmount:        p.AppliedAmount,
		OverpaymentRemainder: p.OverpaymentRemainder,
		Allocations:          make([]allocationPayload, 0, len(p.Allocations)),
		LoanStatus:           loan.Status,
		LoanRemainingAmount:  loan.RemainingAmount,
		OccurredAt:           p.OccurredAt,
	}
	for _, a := range p.Allocations {
		out.Allocations = append(out.Allocations, allocationPayload{
			ScheduleItemID: a.ScheduleItemID,
			Principal:      a.Applied.Principal,
			Interest:       a.Applied.Interest,
			Fee:            a.Applied.Fee,
		})
	}
	return out
}

type loanLiquidatedPayload struct {
	LoanID           uuid.UUID    `json:"loan_id"`
	LoanCode         string       `json:"loan_code"`
	CollateralID     uuid.UUID    `json:"collateral_id"`
	PaymentID        *uuid.UUID   `json:"payment_id,omitempty"`
	SellPrice        money.Amount `json:"sell_price"`
	SellDate         time.Time    `json:"sell_date"`
	AmountPaidToLoan money.Amount `json:"amount_paid_to_loan"`
	RemainingAmount  money.Amount `json:"remaining_amount"`
	ExcessAmount     money.Amount `json:"excess_amount"`
}

type statusChangedPayload struct {
	LoanID          uuid.UUID         `json:"loan_id"`
	LoanCode        string            `json:"loan_code"`
	From            domain.LoanStatus `json:"from"`
	To              domain.LoanStatus `json:"to"`
	RemainingAmount money.Amount      `json:"remaining_amount"`
	AsOf            time.Time         `json:"as_of"`
}
