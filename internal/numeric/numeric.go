// Package numeric holds the decimal conventions shared by pricing,
// snapshots and event processing.
package numeric

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// DivPrecision is the number of decimal places kept by Div.
const DivPrecision = 36

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
	Two  = decimal.NewFromInt(2)
	E8   = decimal.New(1, 8)
	E18  = decimal.New(1, 18)
	// FeePrecision scales fee, admin_fee and offpeg_fee_multiplier.
	FeePrecision = decimal.New(1, 10)
)

// Div returns a/b, or zero when b is zero.
func Div(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.DivRound(b, DivPrecision)
}

// Pow10 returns 10^n as a decimal.
func Pow10(n int) decimal.Decimal {
	return decimal.New(1, int32(n))
}

// FromBig converts a raw integer to a decimal. nil is zero.
func FromBig(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}

// Scaled converts a raw token amount to units using decimals.
func Scaled(v *big.Int, decimals int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -int32(decimals))
}

// Unscale converts an already-decimal raw amount to units.
func Unscale(v decimal.Decimal, decimals int) decimal.Decimal {
	return v.Shift(-int32(decimals))
}

// ParseBig parses a base-10 integer string, returning zero on failure.
func ParseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// ParseDecimal parses a decimal string, returning zero on failure.
func ParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// GrowthRate is (current-previous)/previous, zero when previous is zero.
func GrowthRate(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return Div(current.Sub(previous), previous)
}

// Truncate drops the fractional part, used for 1e18-normalized reserves.
func Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(0)
}
