package pool

import (
	"github.com/shopspring/decimal"

	"github.com/trancheworks/pool-engine/internal/fixed"
)

// TrancheType distinguishes the residual (junior, first-loss) tranche
// from non-residual tranches carrying a fixed interest rate and a
// minimum risk buffer.
type TrancheType uint8

const (
	Residual TrancheType = iota
	NonResidual
)

// MaxTranches caps the tranche count of a single pool.
const MaxTranches = 5

// Tranche is one layer of the pool waterfall. Tranches are stored
// junior-first: index 0 is the residual tranche, the last index the
// most senior one.
type Tranche struct {
	Type TrancheType

	// InterestRatePerSec is the per-second compounding factor of a
	// non-residual tranche, e.g. 1.0000000031709 for roughly 10% APR.
	InterestRatePerSec decimal.Decimal
	// MinRiskBuffer is the minimum subordination ratio required below
	// a non-residual tranche, in [0, 1].
	MinRiskBuffer decimal.Decimal
	Seniority     uint32

	Debt                uint64
	Reserve             uint64
	Loss                uint64
	Ratio               decimal.Decimal
	LastUpdatedInterest uint64
}

// Balance is the sum of debt and reserve.
func (t *Tranche) Balance() (uint64, error) {
	return fixed.Add(t.Debt, t.Reserve)
}

func (t *Tranche) interestRatePerSec() decimal.Decimal {
	if t.Type == Residual {
		return decimal.New(1, 0)
	}
	return t.InterestRatePerSec
}

func (t *Tranche) minRiskBuffer() decimal.Decimal {
	if t.Type == Residual {
		return decimal.Decimal{}
	}
	return t.MinRiskBuffer
}

// Accrue compounds the tranche debt with the per-second interest rate
// since the last update: debt = debt * rate^(now - lastUpdated).
func (t *Tranche) Accrue(now uint64) error {
	if now <= t.LastUpdatedInterest {
		return nil
	}
	delta := now - t.LastUpdatedInterest
	t.LastUpdatedInterest = now
	if t.Type == Residual || t.Debt == 0 {
		return nil
	}
	factor := fixed.PowRound(t.InterestRatePerSec, delta)
	debt, err := fixed.ToUint(factor.Mul(fixed.FromUint(t.Debt)))
	if err != nil {
		return err
	}
	t.Debt = debt
	return nil
}

// Tranches holds the pool's tranches junior-first.
type Tranches []Tranche

// TrancheInput describes one tranche at pool creation, junior-first.
type TrancheInput struct {
	Type               TrancheType
	InterestRatePerSec decimal.Decimal
	MinRiskBuffer      decimal.Decimal
}

// NewTranches validates the tranche structure and builds the initial
// tranches. The first tranche must be residual and the only residual
// one; interest rates must not increase walking towards the senior
// end, so that more senior tranches never pay more than juniors.
func NewTranches(inputs []TrancheInput, now uint64) (Tranches, error) {
	if len(inputs) == 0 || len(inputs) > MaxTranches {
		return nil, ErrInvalidTrancheStructure
	}
	one := decimal.New(1, 0)
	tranches := make(Tranches, 0, len(inputs))
	prevRate := decimal.Decimal{}
	for i, in := range inputs {
		if i == 0 {
			if in.Type != Residual {
				return nil, ErrInvalidTrancheStructure
			}
		} else {
			if in.Type != NonResidual {
				return nil, ErrInvalidTrancheStructure
			}
			if in.InterestRatePerSec.LessThan(one) {
				return nil, ErrInvalidTrancheStructure
			}
			if in.MinRiskBuffer.IsNegative() || in.MinRiskBuffer.GreaterThan(one) {
				return nil, ErrInvalidTrancheStructure
			}
			if i > 1 && in.InterestRatePerSec.GreaterThan(prevRate) {
				return nil, ErrInvalidTrancheStructure
			}
			prevRate = in.InterestRatePerSec
		}
		tranches = append(tranches, Tranche{
			Type:                in.Type,
			InterestRatePerSec:  in.InterestRatePerSec,
			MinRiskBuffer:       in.MinRiskBuffer,
			Seniority:           uint32(i),
			LastUpdatedInterest: now,
		})
	}
	return tranches, nil
}

// Clone returns a deep copy.
func (ts Tranches) Clone() Tranches {
	out := make(Tranches, len(ts))
	copy(out, ts)
	return out
}

// CalculatePrices walks the waterfall senior-first and prices each
// tranche token from the total pool assets. A tranche without issued
// tokens is priced at one; if the whole pool is worth nothing every
// priced tranche is worth zero. Non-residual tranches are valued at
// min(debt+reserve, remaining assets) after accruing interest, and
// the residual tranche takes whatever is left. Prices are returned
// junior-first, matching the tranche order.
func (ts Tranches) CalculatePrices(totalAssets uint64, supplies []uint64, now uint64) ([]decimal.Decimal, error) {
	remaining := totalAssets
	poolIsZero := totalAssets == 0
	prices := make([]decimal.Decimal, len(ts))
	for i := len(ts) - 1; i >= 0; i-- {
		t := &ts[i]
		supply := supplies[i]
		switch {
		case supply == 0:
			prices[i] = decimal.New(1, 0)
		case poolIsZero:
			prices[i] = decimal.Decimal{}
		case t.Type == Residual:
			prices[i] = fixed.Ratio(remaining, supply)
		default:
			if err := t.Accrue(now); err != nil {
				return nil, err
			}
			value, err := t.Balance()
			if err != nil {
				return nil, err
			}
			if value > remaining {
				value = remaining
			}
			remaining -= value
			prices[i] = fixed.Ratio(value, supply)
		}
	}
	return prices, nil
}

// ExecutedAmounts carries the fulfilled invest and redeem volume of a
// tranche after an epoch execution.
type ExecutedAmounts struct {
	Invest uint64
	Redeem uint64
}

// Rebalance reassigns debt and reserve across the tranches after an
// epoch execution. Each tranche's new asset value is its accrued
// balance plus executed investments minus executed redemptions,
// capped by the assets still unclaimed by more senior tranches. A
// non-residual tranche's debt is then pinned to its ratio of the NAV
// and the residual tranche absorbs the remaining NAV and reserve.
func (ts Tranches) Rebalance(now uint64, totalReserve, nav uint64, ratios []decimal.Decimal, executed []ExecutedAmounts) error {
	totalAssets, err := fixed.Add(totalReserve, nav)
	if err != nil {
		return err
	}

	values := make([]uint64, len(ts))
	for i := len(ts) - 1; i >= 0; i-- {
		t := &ts[i]
		if err := t.Accrue(now); err != nil {
			return err
		}
		balance, err := t.Balance()
		if err != nil {
			return err
		}
		value, err := fixed.Add(balance, executed[i].Invest)
		if err != nil {
			return err
		}
		value, err = fixed.Sub(value, executed[i].Redeem)
		if err != nil {
			return err
		}
		if value > totalAssets {
			value = totalAssets
		}
		totalAssets -= value
		values[i] = value
	}

	remainingNAV := nav
	remainingReserve := totalReserve
	for i := len(ts) - 1; i >= 0; i-- {
		t := &ts[i]
		t.Ratio = ratios[i]
		if t.Type == Residual {
			t.Debt = remainingNAV
			t.Reserve = remainingReserve
			continue
		}
		debt, err := fixed.MulCeil(t.Ratio, nav)
		if err != nil {
			return err
		}
		if debt > values[i] {
			debt = values[i]
		}
		t.Debt = debt
		t.Reserve = values[i] - debt
		if remainingNAV, err = fixed.Sub(remainingNAV, t.Debt); err != nil {
			return err
		}
		if remainingReserve, err = fixed.Sub(remainingReserve, t.Reserve); err != nil {
			return err
		}
	}
	return nil
}

// CalculateRiskBuffers computes each tranche's subordination ratio:
// the share of total pool value held by tranches junior to it. The
// residual tranche's buffer is always zero.
func CalculateRiskBuffers(supplies []uint64, prices []decimal.Decimal) ([]decimal.Decimal, error) {
	values := make([]uint64, len(supplies))
	var poolValue uint64
	for i := range supplies {
		v, err := fixed.MulFloor(prices[i], supplies[i])
		if err != nil {
			return nil, err
		}
		values[i] = v
		if poolValue, err = fixed.Add(poolValue, v); err != nil {
			return nil, err
		}
	}

	buffers := make([]decimal.Decimal, len(values))
	remaining := poolValue
	for i := len(values) - 1; i >= 0; i-- {
		if values[i] > remaining {
			remaining = 0
		} else {
			remaining -= values[i]
		}
		buffers[i] = fixed.Ratio(remaining, poolValue)
	}
	return buffers, nil
}
