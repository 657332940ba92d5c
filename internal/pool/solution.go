package pool

import (
	"github.com/shopspring/decimal"

	"github.com/trancheworks/pool-engine/internal/fixed"
)

// TrancheSolution is the proposed fulfillment fractions for one
// tranche's invest and redeem orders, both in [0, 1].
type TrancheSolution struct {
	InvestFulfillment decimal.Decimal
	RedeemFulfillment decimal.Decimal
}

// FullSolution fulfills every order of every tranche completely.
func FullSolution(n int) []TrancheSolution {
	one := decimal.New(1, 0)
	out := make([]TrancheSolution, n)
	for i := range out {
		out[i] = TrancheSolution{InvestFulfillment: one, RedeemFulfillment: one}
	}
	return out
}

// ZeroSolution fulfills nothing. It is always feasible for a solvent
// pool and seeds the best submission when an epoch cannot execute
// immediately.
func ZeroSolution(n int) []TrancheSolution {
	return make([]TrancheSolution, n)
}

// UnhealthyState flags a constraint a solution would violate.
type UnhealthyState uint8

const (
	// MaxReserveViolated means the solution would leave more currency
	// in the reserve than the pool allows.
	MaxReserveViolated UnhealthyState = iota
	// MinRiskBufferViolated means at least one non-residual tranche
	// would end up with less subordination than it requires.
	MinRiskBufferViolated
)

// EpochSolution is a scored solution. Healthy solutions carry a
// single score; unhealthy ones carry improvement scores measuring how
// close they come to resolving each violated constraint.
type EpochSolution struct {
	Solution []TrancheSolution

	Healthy bool
	// Score orders healthy solutions; higher is better.
	Score decimal.Decimal

	State []UnhealthyState
	// RiskBufferImprovementScores holds 1/(minBuffer - buffer) per
	// non-residual tranche, most senior first. Closing the gap on a
	// senior tranche beats any improvement on a junior one.
	RiskBufferImprovementScores []decimal.Decimal
	// ReserveImprovementScore is 1/(newReserve - maxReserve).
	ReserveImprovementScore decimal.Decimal
}

// Clone returns a deep copy.
func (s EpochSolution) Clone() EpochSolution {
	out := s
	out.Solution = append([]TrancheSolution(nil), s.Solution...)
	out.State = append([]UnhealthyState(nil), s.State...)
	out.RiskBufferImprovementScores = append([]decimal.Decimal(nil), s.RiskBufferImprovementScores...)
	return out
}

func (s *EpochSolution) hasState(state UnhealthyState) bool {
	for _, st := range s.State {
		if st == state {
			return true
		}
	}
	return false
}

// Compare orders two scored solutions: -1 if s is worse than other,
// 0 if equal, +1 if better. A healthy solution always beats an
// unhealthy one. Unhealthy solutions are ranked by risk buffer
// improvement first, lexicographically senior-first, then by reserve
// improvement; a solution that avoids a violation entirely beats any
// that incurs it.
func (s *EpochSolution) Compare(other *EpochSolution) int {
	switch {
	case s.Healthy && other.Healthy:
		return s.Score.Cmp(other.Score)
	case s.Healthy:
		return 1
	case other.Healthy:
		return -1
	}

	switch sViol, oViol := s.hasState(MinRiskBufferViolated), other.hasState(MinRiskBufferViolated); {
	case sViol && oViol:
		if c := compareLex(s.RiskBufferImprovementScores, other.RiskBufferImprovementScores); c != 0 {
			return c
		}
	case oViol:
		return 1
	case sViol:
		return -1
	}

	switch sViol, oViol := s.hasState(MaxReserveViolated), other.hasState(MaxReserveViolated); {
	case sViol && oViol:
		if c := s.ReserveImprovementScore.Cmp(other.ReserveImprovementScore); c != 0 {
			return c
		}
	case oViol:
		return 1
	case sViol:
		return -1
	}
	return 0
}

func compareLex(a, b []decimal.Decimal) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := a[i].Cmp(b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// SolutionParameters aggregates what a solution would do to the pool:
// the total invested and redeemed currency and the resulting risk
// buffers.
type SolutionParameters struct {
	AccInvest   uint64
	AccRedeem   uint64
	RiskBuffers []decimal.Decimal
}

// CalculateSolutionParameters sums a solution's currency flows and
// derives the post-fulfillment risk buffers.
func (e *EpochExecutionInfo) CalculateSolutionParameters(solution []TrancheSolution) (SolutionParameters, error) {
	var params SolutionParameters
	for i := range e.Tranches {
		invest, err := fixed.MulFloor(solution[i].InvestFulfillment, e.Tranches[i].Invest)
		if err != nil {
			return params, err
		}
		redeem, err := fixed.MulFloor(solution[i].RedeemFulfillment, e.Tranches[i].Redeem)
		if err != nil {
			return params, err
		}
		if params.AccInvest, err = fixed.Add(params.AccInvest, invest); err != nil {
			return params, err
		}
		if params.AccRedeem, err = fixed.Add(params.AccRedeem, redeem); err != nil {
			return params, err
		}
	}

	supplies, err := e.Tranches.SuppliesWithFulfillment(solution)
	if err != nil {
		return params, ErrInsufficientCurrency
	}
	params.RiskBuffers, err = CalculateRiskBuffers(supplies, e.Tranches.Prices())
	if err != nil {
		return params, err
	}
	return params, nil
}

// Inspect validates a solution against the pool constraints and
// returns the violations it would cause. An empty result means the
// solution is healthy.
func (e *EpochExecutionInfo) Inspect(solution []TrancheSolution) ([]UnhealthyState, error) {
	if len(solution) != len(e.Tranches) {
		return nil, ErrInvalidSolution
	}
	params, err := e.CalculateSolutionParameters(solution)
	if err != nil {
		return nil, err
	}
	currencyAvailable, err := fixed.Add(params.AccInvest, e.Reserve)
	if err != nil {
		return nil, err
	}
	newReserve, err := fixed.Sub(currencyAvailable, params.AccRedeem)
	if err != nil {
		return nil, ErrInsufficientCurrency
	}

	var state []UnhealthyState
	if newReserve > e.MaxReserve {
		state = append(state, MaxReserveViolated)
	}
	for i := len(e.Tranches) - 1; i >= 1; i-- {
		if params.RiskBuffers[i].LessThan(e.Tranches[i].MinRiskBuffer) {
			state = append(state, MinRiskBufferViolated)
			break
		}
	}
	return state, nil
}

// Score inspects and scores a solution. Scoring can fail for
// solutions that no waiting would ever make executable, e.g. ones
// redeeming more currency than the pool could hold.
func (e *EpochExecutionInfo) Score(solution []TrancheSolution) (EpochSolution, error) {
	state, err := e.Inspect(solution)
	if err != nil {
		return EpochSolution{}, err
	}
	if len(state) == 0 {
		return e.scoreHealthy(solution)
	}
	return e.scoreUnhealthy(solution, state)
}

func (e *EpochExecutionInfo) scoreHealthy(solution []TrancheSolution) (EpochSolution, error) {
	weights := e.Tranches.CalculateWeights()
	score := decimal.Decimal{}
	for i := range e.Tranches {
		invest, err := fixed.MulFloor(solution[i].InvestFulfillment, e.Tranches[i].Invest)
		if err != nil {
			return EpochSolution{}, err
		}
		redeem, err := fixed.MulFloor(solution[i].RedeemFulfillment, e.Tranches[i].Redeem)
		if err != nil {
			return EpochSolution{}, err
		}
		score = score.
			Add(fixed.FromUint(invest).Mul(weights[i].Invest)).
			Add(fixed.FromUint(redeem).Mul(weights[i].Redeem))
	}
	return EpochSolution{
		Solution: append([]TrancheSolution(nil), solution...),
		Healthy:  true,
		Score:    score,
	}, nil
}

func (e *EpochExecutionInfo) scoreUnhealthy(solution []TrancheSolution, state []UnhealthyState) (EpochSolution, error) {
	result := EpochSolution{
		Solution: append([]TrancheSolution(nil), solution...),
		State:    append([]UnhealthyState(nil), state...),
	}

	riskBufferViolated := false
	reserveViolated := false
	for _, st := range state {
		switch st {
		case MinRiskBufferViolated:
			riskBufferViolated = true
		case MaxReserveViolated:
			reserveViolated = true
		}
	}

	if riskBufferViolated {
		supplies, err := e.Tranches.SuppliesWithFulfillment(solution)
		if err != nil {
			return EpochSolution{}, ErrInsufficientCurrency
		}
		buffers, err := CalculateRiskBuffers(supplies, e.Tranches.Prices())
		if err != nil {
			return EpochSolution{}, err
		}
		// Senior-first, so lexicographic comparison prefers closing
		// the gap on the most senior violated tranche. Tranches that
		// satisfy their buffer get the highest possible score.
		scores := make([]decimal.Decimal, 0, len(e.Tranches)-1)
		for i := len(e.Tranches) - 1; i >= 1; i-- {
			gap := e.Tranches[i].MinRiskBuffer.Sub(buffers[i])
			if gap.Sign() <= 0 {
				scores = append(scores, maxImprovementScore)
				continue
			}
			scores = append(scores, fixed.Reciprocal(gap))
		}
		result.RiskBufferImprovementScores = scores
	}

	if reserveViolated {
		params, err := e.CalculateSolutionParameters(solution)
		if err != nil {
			return EpochSolution{}, err
		}
		currencyAvailable, err := fixed.Add(params.AccInvest, e.Reserve)
		if err != nil {
			return EpochSolution{}, err
		}
		newReserve, err := fixed.Sub(currencyAvailable, params.AccRedeem)
		if err != nil {
			return EpochSolution{}, ErrInsufficientCurrency
		}
		diff, err := fixed.Sub(newReserve, e.MaxReserve)
		if err != nil {
			return EpochSolution{}, err
		}
		result.ReserveImprovementScore = fixed.Reciprocal(fixed.FromUint(diff))
	}

	return result, nil
}

// maxImprovementScore outranks any reciprocal of a positive gap.
var maxImprovementScore = decimal.New(1, 30)
