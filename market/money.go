package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places kept for every price and cash
// amount.
const Places int32 = 2

// Round rounds d half-to-even to Places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Places)
}

// Notional is price × qty, rounded.
func Notional(price decimal.Decimal, qty int64) decimal.Decimal {
	return Round(price.Mul(decimal.NewFromInt(qty)))
}

// ParseCash parses a strictly positive decimal amount and rounds it.
func ParseCash(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount %q must be positive", s)
	}
	return Round(d), nil
}

// Format renders d with exactly two decimals, e.g. "99000.00".
func Format(d decimal.Decimal) string {
	return d.StringFixedBank(Places)
}
