// Package fixed provides checked uint64 balance arithmetic and the
// decimal helpers used for fulfillment fractions, token prices, and
// per-second interest rates.
package fixed

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrOverflow  = errors.New("arithmetic overflow")
	ErrUnderflow = errors.New("arithmetic underflow")
)

// ratePrecision bounds intermediate results when compounding interest
// rates; fracPrecision is used for ratios, prices, and scores.
const (
	ratePrecision = 27
	fracPrecision = 18
)

func Add(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

func FromUint(v uint64) decimal.Decimal {
	return decimal.NewFromUint64(v)
}

// ToUint converts a non-negative decimal to uint64, truncating any
// fractional part.
func ToUint(d decimal.Decimal) (uint64, error) {
	if d.IsNegative() {
		return 0, ErrUnderflow
	}
	bi := d.Floor().BigInt()
	if !bi.IsUint64() {
		return 0, ErrOverflow
	}
	return bi.Uint64(), nil
}

// MulFloor multiplies amount by a fraction, rounding down.
func MulFloor(frac decimal.Decimal, amount uint64) (uint64, error) {
	return ToUint(frac.Mul(FromUint(amount)))
}

// MulCeil multiplies amount by a fraction, rounding up.
func MulCeil(frac decimal.Decimal, amount uint64) (uint64, error) {
	d := frac.Mul(FromUint(amount)).Ceil()
	if d.IsNegative() {
		return 0, ErrUnderflow
	}
	bi := d.BigInt()
	if !bi.IsUint64() {
		return 0, ErrOverflow
	}
	return bi.Uint64(), nil
}

// Ratio returns num/den. A zero denominator yields zero.
func Ratio(num, den uint64) decimal.Decimal {
	if den == 0 {
		return decimal.Decimal{}
	}
	return FromUint(num).DivRound(FromUint(den), fracPrecision)
}

// DivFloor divides amount by a positive decimal, rounding down.
func DivFloor(amount uint64, d decimal.Decimal) (uint64, error) {
	if d.Sign() <= 0 {
		return 0, ErrOverflow
	}
	return ToUint(FromUint(amount).DivRound(d, fracPrecision))
}

// Reciprocal returns 1/d, or zero for non-positive d.
func Reciprocal(d decimal.Decimal) decimal.Decimal {
	if d.Sign() <= 0 {
		return decimal.Decimal{}
	}
	return decimal.New(1, 0).DivRound(d, fracPrecision)
}

// PowRound raises base to an integer power by squaring, truncating
// intermediate results so that long compounding windows stay bounded
// in precision.
func PowRound(base decimal.Decimal, exp uint64) decimal.Decimal {
	result := decimal.New(1, 0)
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(base).Truncate(ratePrecision)
		}
		exp >>= 1
		if exp > 0 {
			base = base.Mul(base).Truncate(ratePrecision)
		}
	}
	return result
}
