package fixed

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAddOverflow(t *testing.T) {
	if _, err := Add(math.MaxUint64, 1); err != ErrOverflow {
		t.Fatalf("expected overflow, got %v", err)
	}
	got, err := Add(40, 2)
	if err != nil || got != 42 {
		t.Fatalf("Add(40, 2) = %d, %v", got, err)
	}
}

func TestSubUnderflow(t *testing.T) {
	if _, err := Sub(1, 2); err != ErrUnderflow {
		t.Fatalf("expected underflow, got %v", err)
	}
	got, err := Sub(44, 2)
	if err != nil || got != 42 {
		t.Fatalf("Sub(44, 2) = %d, %v", got, err)
	}
}

func TestMulFloor(t *testing.T) {
	half := decimal.RequireFromString("0.5")
	got, err := MulFloor(half, 101)
	if err != nil || got != 50 {
		t.Fatalf("MulFloor(0.5, 101) = %d, %v", got, err)
	}
}

func TestMulCeil(t *testing.T) {
	half := decimal.RequireFromString("0.5")
	got, err := MulCeil(half, 101)
	if err != nil || got != 51 {
		t.Fatalf("MulCeil(0.5, 101) = %d, %v", got, err)
	}
}

func TestRatioZeroDenominator(t *testing.T) {
	if !Ratio(5, 0).IsZero() {
		t.Fatal("Ratio with zero denominator should be zero")
	}
	if got := Ratio(1, 2); !got.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("Ratio(1, 2) = %s", got)
	}
}

func TestDivFloor(t *testing.T) {
	price := decimal.RequireFromString("1.5")
	got, err := DivFloor(500, price)
	if err != nil || got != 333 {
		t.Fatalf("DivFloor(500, 1.5) = %d, %v", got, err)
	}
	if _, err := DivFloor(1, decimal.Decimal{}); err != ErrOverflow {
		t.Fatalf("expected error for zero divisor, got %v", err)
	}
}

func TestPowRound(t *testing.T) {
	two := decimal.NewFromInt(2)
	if got := PowRound(two, 10); !got.Equal(decimal.NewFromInt(1024)) {
		t.Fatalf("2^10 = %s", got)
	}
	if got := PowRound(two, 0); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("2^0 = %s", got)
	}
	// Roughly 10% APR as a per-second factor, compounded over a year,
	// must land close to 1.105 (continuous compounding of 10%).
	rate := decimal.RequireFromString("1.0000000031709791983764586504")
	year := PowRound(rate, 365*24*60*60)
	lo := decimal.RequireFromString("1.1051")
	hi := decimal.RequireFromString("1.1052")
	if year.LessThan(lo) || year.GreaterThan(hi) {
		t.Fatalf("one year of 10%% APR compounding = %s", year)
	}
}

func TestToUintBounds(t *testing.T) {
	if _, err := ToUint(decimal.NewFromInt(-1)); err != ErrUnderflow {
		t.Fatalf("expected underflow, got %v", err)
	}
	big := decimal.NewFromUint64(math.MaxUint64).Add(decimal.NewFromInt(1))
	if _, err := ToUint(big); err != ErrOverflow {
		t.Fatalf("expected overflow, got %v", err)
	}
	got, err := ToUint(decimal.RequireFromString("42.9"))
	if err != nil || got != 42 {
		t.Fatalf("ToUint(42.9) = %d, %v", got, err)
	}
}
