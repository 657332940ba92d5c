package pool

import (
	"github.com/trancheworks/pool-engine/internal/fixed"
)

// PoolID identifies a pool.
type PoolID uint64

// ReserveDetails tracks the pool's on-hand currency. Total is all
// currency held, available the part released for withdrawals by the
// last executed epoch, and max the reserve ceiling enforced on epoch
// solutions.
type ReserveDetails struct {
	Max       uint64
	Total     uint64
	Available uint64
}

// EpochState tracks the epoch counters. Current is the epoch orders
// are currently collected for; LastExecuted trails it by at least one
// while an epoch awaits execution.
type EpochState struct {
	Current      uint32
	LastClosed   uint64
	LastExecuted uint32
}

// PoolParameters are the per-pool closing constraints.
type PoolParameters struct {
	// MinEpochTime is the minimum number of seconds between epoch
	// closings.
	MinEpochTime uint64
	// MaxNAVAge is the maximum tolerated age in seconds of the NAV
	// used to close an epoch.
	MaxNAVAge uint64
}

// Pool is the full state of a tranched pool.
type Pool struct {
	ID         PoolID
	Tranches   Tranches
	Parameters PoolParameters
	Epoch      EpochState
	Reserve    ReserveDetails
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	out := *p
	out.Tranches = p.Tranches.Clone()
	return &out
}

// StartNextEpoch bumps the epoch counter at closing time and locks
// the reserve until the closed epoch has been executed.
func (p *Pool) StartNextEpoch(now uint64) {
	p.Epoch.Current++
	p.Epoch.LastClosed = now
	p.Reserve.Available = 0
}

// ExecutePreviousEpoch releases the reserve and advances the executed
// epoch counter.
func (p *Pool) ExecutePreviousEpoch() {
	p.Reserve.Available = p.Reserve.Total
	p.Epoch.LastExecuted++
}

// DepositFromEpoch applies the net currency flow of an executed epoch
// to the reserve.
func (p *Pool) DepositFromEpoch(accInvest, accRedeem uint64) error {
	total, err := fixed.Add(p.Reserve.Total, accInvest)
	if err != nil {
		return err
	}
	total, err = fixed.Sub(total, accRedeem)
	if err != nil {
		return ErrInsufficientCurrency
	}
	p.Reserve.Total = total
	return nil
}

// Deposit pays currency back into the pool and distributes it down
// the waterfall: each non-residual tranche, senior first, is entitled
// to its ratio of the amount capped by its outstanding debt, and the
// residual tranche takes the remainder.
func (p *Pool) Deposit(amount uint64, now uint64) error {
	total, err := fixed.Add(p.Reserve.Total, amount)
	if err != nil {
		return err
	}
	p.Reserve.Total = total

	remaining := amount
	for i := len(p.Tranches) - 1; i >= 0; i-- {
		t := &p.Tranches[i]
		if err := t.Accrue(now); err != nil {
			return err
		}

		var trancheAmount uint64
		if t.Type != Residual {
			entitled, err := fixed.MulCeil(t.Ratio, amount)
			if err != nil {
				return err
			}
			if entitled > t.Debt {
				entitled = t.Debt
			}
			trancheAmount = entitled
		} else {
			trancheAmount = remaining
		}

		// The residual tranche has no real debt and is merely
		// entitled to the left-overs, so the subtraction saturates.
		if trancheAmount > t.Debt {
			t.Debt = 0
		} else {
			t.Debt -= trancheAmount
		}
		if t.Reserve, err = fixed.Add(t.Reserve, trancheAmount); err != nil {
			return err
		}
		if remaining, err = fixed.Sub(remaining, trancheAmount); err != nil {
			return err
		}
	}
	return nil
}

// Withdraw takes currency out of the pool, senior tranches first,
// converting each tranche's contribution into debt. Only currency
// released by the last executed epoch may leave the pool.
func (p *Pool) Withdraw(amount uint64, now uint64) error {
	total, err := fixed.Sub(p.Reserve.Total, amount)
	if err != nil {
		return ErrInsufficientReserve
	}
	available, err := fixed.Sub(p.Reserve.Available, amount)
	if err != nil {
		return ErrInsufficientReserve
	}
	p.Reserve.Total = total
	p.Reserve.Available = available

	remaining := amount
	for i := len(p.Tranches) - 1; i >= 0; i-- {
		t := &p.Tranches[i]
		if err := t.Accrue(now); err != nil {
			return err
		}

		var trancheAmount uint64
		if t.Type != Residual {
			if trancheAmount, err = fixed.MulCeil(t.Ratio, amount); err != nil {
				return err
			}
		} else {
			trancheAmount = remaining
		}
		if trancheAmount > t.Reserve {
			trancheAmount = t.Reserve
		}
		if trancheAmount > remaining {
			trancheAmount = remaining
		}

		t.Reserve -= trancheAmount
		if t.Debt, err = fixed.Add(t.Debt, trancheAmount); err != nil {
			return err
		}
		remaining -= trancheAmount
	}
	return nil
}
