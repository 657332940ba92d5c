package pool

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func one() decimal.Decimal { return decimal.New(1, 0) }

// testInfo builds a two tranche execution snapshot with unit prices.
func testInfo() *EpochExecutionInfo {
	return &EpochExecutionInfo{
		Epoch:      1,
		NAV:        0,
		Reserve:    0,
		MaxReserve: 10_000,
		Tranches: EpochExecutionTranches{
			{Supply: 0, Price: one(), Invest: 500, Redeem: 0, Seniority: 0},
			{
				Supply: 0, Price: one(), Invest: 500, Redeem: 0, Seniority: 1,
				MinRiskBuffer: decimal.RequireFromString("0.1"),
			},
		},
	}
}

func TestCalculateWeights(t *testing.T) {
	info := testInfo()
	weights := info.Tranches.CalculateWeights()

	// Junior invest outweighs senior invest; redemptions outweigh all
	// investments and grow with seniority.
	require.True(t, weights[0].Invest.Equal(decimal.New(100, 0)), "junior invest %s", weights[0].Invest)
	require.True(t, weights[1].Invest.Equal(decimal.New(10, 0)), "senior invest %s", weights[1].Invest)
	require.True(t, weights[0].Redeem.Equal(decimal.New(1_000, 0)), "junior redeem %s", weights[0].Redeem)
	require.True(t, weights[1].Redeem.Equal(decimal.New(10_000, 0)), "senior redeem %s", weights[1].Redeem)
}

func TestInspectHealthyFullSolution(t *testing.T) {
	info := testInfo()
	state, err := info.Inspect(FullSolution(2))
	require.NoError(t, err)
	require.Empty(t, state)
}

func TestInspectRejectsWrongLength(t *testing.T) {
	info := testInfo()
	_, err := info.Inspect(FullSolution(3))
	require.ErrorIs(t, err, ErrInvalidSolution)
}

func TestInspectMaxReserveViolated(t *testing.T) {
	info := testInfo()
	info.MaxReserve = 900
	state, err := info.Inspect(FullSolution(2))
	require.NoError(t, err)
	require.Equal(t, []UnhealthyState{MaxReserveViolated}, state)
}

func TestInspectMinRiskBufferViolated(t *testing.T) {
	info := testInfo()
	info.Tranches[1].MinRiskBuffer = decimal.RequireFromString("0.7")
	state, err := info.Inspect(FullSolution(2))
	require.NoError(t, err)
	require.Equal(t, []UnhealthyState{MinRiskBufferViolated}, state)
}

func TestInspectInsufficientCurrency(t *testing.T) {
	info := testInfo()
	info.Tranches[1].Invest = 0
	info.Tranches[1].Redeem = 600
	info.Tranches[1].Supply = 600
	info.Tranches[0].Invest = 0

	// Redeeming 600 against an empty reserve cannot be funded.
	_, err := info.Inspect(FullSolution(2))
	require.ErrorIs(t, err, ErrInsufficientCurrency)
}

func TestScoreHealthyWeightsFulfillments(t *testing.T) {
	info := testInfo()
	info.Tranches[0].Redeem = 100
	info.Tranches[0].Supply = 100
	info.Reserve = 200

	scored, err := info.Score(FullSolution(2))
	require.NoError(t, err)
	require.True(t, scored.Healthy)

	// 500*100 + 500*10 + 100*1000 = 155000.
	require.True(t, scored.Score.Equal(decimal.New(155_000, 0)), "score %s", scored.Score)
}

func TestScoreUnhealthyRiskBufferGap(t *testing.T) {
	info := testInfo()
	info.Tranches[1].MinRiskBuffer = decimal.RequireFromString("0.7")

	scored, err := info.Score(FullSolution(2))
	require.NoError(t, err)
	require.False(t, scored.Healthy)
	require.Equal(t, []UnhealthyState{MinRiskBufferViolated}, scored.State)

	// Post-solution buffer is 0.5, so the gap to 0.7 scores 1/0.2.
	require.Len(t, scored.RiskBufferImprovementScores, 1)
	require.True(t, scored.RiskBufferImprovementScores[0].Equal(decimal.New(5, 0)),
		"improvement score %s", scored.RiskBufferImprovementScores[0])
}

func TestScoreUnhealthyReserveExcess(t *testing.T) {
	info := testInfo()
	info.MaxReserve = 600

	scored, err := info.Score(FullSolution(2))
	require.NoError(t, err)
	require.False(t, scored.Healthy)
	require.Equal(t, []UnhealthyState{MaxReserveViolated}, scored.State)

	// New reserve 1000 overshoots by 400, scoring 1/400.
	require.True(t, scored.ReserveImprovementScore.Equal(decimal.RequireFromString("0.0025")),
		"reserve score %s", scored.ReserveImprovementScore)
}

func TestCompareHealthyBeatsUnhealthy(t *testing.T) {
	healthy := &EpochSolution{Healthy: true, Score: decimal.New(1, 0)}
	unhealthy := &EpochSolution{State: []UnhealthyState{MaxReserveViolated}}
	require.Equal(t, 1, healthy.Compare(unhealthy))
	require.Equal(t, -1, unhealthy.Compare(healthy))
}

func TestCompareHealthyByScore(t *testing.T) {
	lo := &EpochSolution{Healthy: true, Score: decimal.New(10, 0)}
	hi := &EpochSolution{Healthy: true, Score: decimal.New(20, 0)}
	require.Equal(t, -1, lo.Compare(hi))
	require.Equal(t, 1, hi.Compare(lo))
	require.Equal(t, 0, hi.Compare(hi))
}

func TestCompareAvoidedRiskBufferViolationWins(t *testing.T) {
	reserveOnly := &EpochSolution{
		State:                   []UnhealthyState{MaxReserveViolated},
		ReserveImprovementScore: decimal.New(1, 0),
	}
	bufferViolated := &EpochSolution{
		State:                       []UnhealthyState{MinRiskBufferViolated},
		RiskBufferImprovementScores: []decimal.Decimal{decimal.New(1_000, 0)},
	}
	require.Equal(t, 1, reserveOnly.Compare(bufferViolated))
	require.Equal(t, -1, bufferViolated.Compare(reserveOnly))
}

func TestCompareRiskBufferLexicographic(t *testing.T) {
	// Improvement scores are senior-first: closing the senior gap
	// beats any improvement further down.
	seniorBetter := &EpochSolution{
		State: []UnhealthyState{MinRiskBufferViolated},
		RiskBufferImprovementScores: []decimal.Decimal{
			decimal.New(10, 0), decimal.New(1, 0),
		},
	}
	juniorBetter := &EpochSolution{
		State: []UnhealthyState{MinRiskBufferViolated},
		RiskBufferImprovementScores: []decimal.Decimal{
			decimal.New(5, 0), decimal.New(100, 0),
		},
	}
	require.Equal(t, 1, seniorBetter.Compare(juniorBetter))
	require.Equal(t, -1, juniorBetter.Compare(seniorBetter))
}

func TestCompareReserveImprovement(t *testing.T) {
	better := &EpochSolution{
		State:                   []UnhealthyState{MaxReserveViolated},
		ReserveImprovementScore: decimal.New(2, 0),
	}
	worse := &EpochSolution{
		State:                   []UnhealthyState{MaxReserveViolated},
		ReserveImprovementScore: decimal.New(1, 0),
	}
	require.Equal(t, 1, better.Compare(worse))
	require.Equal(t, 0, better.Compare(better))
}

func TestSatisfiedBufferOutranksAnyGap(t *testing.T) {
	tiniestGap := decimal.New(1, -18)
	require.Equal(t, 1, maxImprovementScore.Cmp(one().DivRound(tiniestGap, 18)))
}
