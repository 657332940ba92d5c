package pool

import (
	"github.com/shopspring/decimal"

	"github.com/trancheworks/pool-engine/internal/fixed"
)

// EpochExecutionTranche freezes one tranche's view at epoch closing
// time: token supply, token price, and the summed invest and redeem
// orders awaiting fulfillment.
type EpochExecutionTranche struct {
	Supply        uint64
	Price         decimal.Decimal
	Invest        uint64
	Redeem        uint64
	MinRiskBuffer decimal.Decimal
	Seniority     uint32
}

// EpochExecutionTranches is ordered junior-first like Tranches.
type EpochExecutionTranches []EpochExecutionTranche

// EpochExecutionInfo is persisted while a closed epoch waits for an
// executable solution. Its presence marks the submission period.
type EpochExecutionInfo struct {
	Epoch      uint32
	NAV        uint64
	Reserve    uint64
	MaxReserve uint64
	Tranches   EpochExecutionTranches

	BestSubmission     *EpochSolution
	ChallengePeriodEnd *uint64
}

// Clone returns a deep copy of the execution info.
func (e *EpochExecutionInfo) Clone() *EpochExecutionInfo {
	out := *e
	out.Tranches = make(EpochExecutionTranches, len(e.Tranches))
	copy(out.Tranches, e.Tranches)
	if e.BestSubmission != nil {
		best := e.BestSubmission.Clone()
		out.BestSubmission = &best
	}
	if e.ChallengePeriodEnd != nil {
		end := *e.ChallengePeriodEnd
		out.ChallengePeriodEnd = &end
	}
	return &out
}

// Prices returns the frozen tranche prices, junior-first.
func (ts EpochExecutionTranches) Prices() []decimal.Decimal {
	prices := make([]decimal.Decimal, len(ts))
	for i := range ts {
		prices[i] = ts[i].Price
	}
	return prices
}

// SuppliesWithFulfillment returns each tranche's token supply after
// applying a solution's fulfillments. An underflow means the solution
// redeems more tokens than would exist.
func (ts EpochExecutionTranches) SuppliesWithFulfillment(solution []TrancheSolution) ([]uint64, error) {
	supplies := make([]uint64, len(ts))
	for i := range ts {
		invest, err := fixed.MulFloor(solution[i].InvestFulfillment, ts[i].Invest)
		if err != nil {
			return nil, err
		}
		redeem, err := fixed.MulFloor(solution[i].RedeemFulfillment, ts[i].Redeem)
		if err != nil {
			return nil, err
		}
		supply, err := fixed.Add(ts[i].Supply, invest)
		if err != nil {
			return nil, err
		}
		if supply, err = fixed.Sub(supply, redeem); err != nil {
			return nil, err
		}
		supplies[i] = supply
	}
	return supplies, nil
}

// CalculateWeights returns the (invest, redeem) scoring weight per
// tranche. Redemption weights start above every investment weight and
// grow with seniority while investment weights shrink with it, so the
// preference order is senior redemptions, junior redemptions, junior
// investments, senior investments.
func (ts EpochExecutionTranches) CalculateWeights() []SolutionWeight {
	n := int64(len(ts))
	redeemStart := decimal.New(1, int32(n))
	weights := make([]SolutionWeight, len(ts))
	for i := range ts {
		s := int64(ts[i].Seniority)
		weights[i] = SolutionWeight{
			Invest: decimal.New(1, int32(n-s)),
			Redeem: redeemStart.Mul(decimal.New(1, int32(s+1))),
		}
	}
	return weights
}

// SolutionWeight is the scoring weight pair of one tranche.
type SolutionWeight struct {
	Invest decimal.Decimal
	Redeem decimal.Decimal
}
