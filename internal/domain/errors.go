package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrValidation              = errors.New("validation failed")
	ErrOverAllocation          = errors.New("allocation exceeds scheduled component")
	ErrNoOutstandingBalance    = errors.New("loan has no outstanding balance")
	ErrLoanClosed              = errors.New("loan is closed")
	ErrConcurrencyConflict     = errors.New("concurrent modification, retries exhausted")
	ErrVersionConflict         = errors.New("optimistic lock conflict")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrIdempotencyKeyReused    = errors.New("idempotency key reused with a different payment")

	ErrInvalidAmount        = fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	ErrNegativeSellPrice    = fmt.Errorf("%w: sell price must not be negative", ErrValidation)
	ErrCollateralMismatch   = fmt.Errorf("%w: collateral is not pledged to this loan", ErrValidation)
	ErrMissingIdempotency   = fmt.Errorf("%w: idempotency key is required", ErrValidation)
	ErrCollateralLiquidated = fmt.Errorf("%w: collateral already liquidated", ErrValidation)
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidAmount, "INVALID_AMOUNT"},
	{ErrNegativeSellPrice, "INVALID_SELL_PRICE"},
	{ErrCollateralMismatch, "COLLATERAL_MISMATCH"},
	{ErrMissingIdempotency, "MISSING_IDEMPOTENCY_KEY"},
	{ErrCollateralLiquidated, "COLLATERAL_LIQUIDATED"},
	{ErrValidation, "VALIDATION_FAILED"},
	{ErrOverAllocation, "OVER_ALLOCATION"},
	{ErrNoOutstandingBalance, "NO_OUTSTANDING_BALANCE"},
	{ErrLoanClosed, "LOAN_CLOSED"},
	{ErrConcurrencyConflict, "CONCURRENCY_CONFLICT"},
	{ErrVersionConflict, "VERSION_CONFLICT"},
	{ErrIdempotencyKeyReused, "IDEMPOTENCY_KEY_REUSED"},
	{ErrDuplicateIdempotencyKey, "DUPLICATE_IDEMPOTENCY_KEY"},
	{ErrNotFound, "NOT_FOUND"},
}

// ErrorCode returns the stable identifier of the most specific error kind in
// err's chain, or INTERNAL_ERROR when err is not an engine error.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "INTERNAL_ERROR"
}
