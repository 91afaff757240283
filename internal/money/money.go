// Package money holds the fixed-point amount type used for every balance,
// payment and sale price. Amounts are integer minor units; binary floating
// point never touches them.
package money

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

var ErrNegative = errors.New("amount must not be negative")

// Amount is a quantity of currency minor units (cents, rupiah, ...).
// Negative values only ever appear as deltas.
type Amount int64

const Zero Amount = 0

func (a Amount) IsPositive() bool { return a > 0 }

func (a Amount) IsZero() bool { return a == 0 }

func (a Amount) IsNegative() bool { return a < 0 }

func (a Amount) Int64() int64 { return int64(a) }

func (a Amount) String() string { return strconv.FormatInt(int64(a), 10) }

// Validate rejects negative amounts that would otherwise be stored as balances.
func (a Amount) Validate() error {
	if a < 0 {
		return fmt.Errorf("Validate: %d: %w", a, ErrNegative)
	}
	return nil
}

func Min(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}

func Max(a, b Amount) Amount {
	if a > b {
		return a
	}
	return b
}

func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}

// MulRate multiplies the amount by a ratio and rounds once, half away from
// zero, back to whole minor units. Used for every rate x principal product.
func (a Amount) MulRate(rate decimal.Decimal) Amount {
	product := decimal.NewFromInt(int64(a)).Mul(rate)
	return Amount(product.Round(0).IntPart())
}

// Currency is an ISO-4217 code tagging the amounts of a loan.
type Currency string

const (
	CurrencyIDR Currency = "IDR"
	CurrencyVND Currency = "VND"
	CurrencyUSD Currency = "USD"
)

func (c Currency) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
