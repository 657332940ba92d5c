package pool

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// 10% APR compounded per second.
var testRate = decimal.RequireFromString("1.000000003170979198376458650")

func twoTrancheInputs() []TrancheInput {
	return []TrancheInput{
		{Type: Residual},
		{
			Type:               NonResidual,
			InterestRatePerSec: testRate,
			MinRiskBuffer:      decimal.RequireFromString("0.1"),
		},
	}
}

func TestNewTranchesValid(t *testing.T) {
	tranches, err := NewTranches(twoTrancheInputs(), 1_000)
	require.NoError(t, err)
	require.Len(t, tranches, 2)
	require.Equal(t, Residual, tranches[0].Type)
	require.Equal(t, uint32(0), tranches[0].Seniority)
	require.Equal(t, uint32(1), tranches[1].Seniority)
	require.Equal(t, uint64(1_000), tranches[1].LastUpdatedInterest)
}

func TestNewTranchesRejectsBadStructures(t *testing.T) {
	one := decimal.New(1, 0)
	nonResidual := func(rate string) TrancheInput {
		return TrancheInput{
			Type:               NonResidual,
			InterestRatePerSec: decimal.RequireFromString(rate),
		}
	}

	cases := map[string][]TrancheInput{
		"empty":              {},
		"first not residual": {nonResidual("1.1")},
		"second residual":    {{Type: Residual}, {Type: Residual}},
		"rate below one":     {{Type: Residual}, nonResidual("0.9")},
		"rate increases towards senior": {
			{Type: Residual}, nonResidual("1.1"), nonResidual("1.2"),
		},
		"risk buffer above one": {
			{Type: Residual},
			{Type: NonResidual, InterestRatePerSec: one, MinRiskBuffer: decimal.RequireFromString("1.5")},
		},
		"too many": {
			{Type: Residual},
			nonResidual("1.5"), nonResidual("1.4"), nonResidual("1.3"),
			nonResidual("1.2"), nonResidual("1.1"),
		},
	}
	for name, inputs := range cases {
		_, err := NewTranches(inputs, 0)
		require.ErrorIs(t, err, ErrInvalidTrancheStructure, name)
	}
}

func TestAccrueCompounds(t *testing.T) {
	tr := Tranche{
		Type:               NonResidual,
		InterestRatePerSec: testRate,
		Debt:               1_000_000_000_000,
	}
	const secondsPerYear = 365 * 24 * 60 * 60
	require.NoError(t, tr.Accrue(secondsPerYear))

	// Continuous compounding of 10% over a year lands close to e^0.1.
	require.Greater(t, tr.Debt, uint64(1_105_100_000_000))
	require.Less(t, tr.Debt, uint64(1_105_200_000_000))
	require.Equal(t, uint64(secondsPerYear), tr.LastUpdatedInterest)

	// A second accrual at the same time is a no-op.
	before := tr.Debt
	require.NoError(t, tr.Accrue(secondsPerYear))
	require.Equal(t, before, tr.Debt)
}

func TestAccrueSkipsResidualAndZeroDebt(t *testing.T) {
	res := Tranche{Type: Residual, Debt: 500}
	require.NoError(t, res.Accrue(100))
	require.Equal(t, uint64(500), res.Debt)

	zero := Tranche{Type: NonResidual, InterestRatePerSec: testRate}
	require.NoError(t, zero.Accrue(100))
	require.Equal(t, uint64(0), zero.Debt)
}

func TestCalculatePricesZeroSupply(t *testing.T) {
	tranches, err := NewTranches(twoTrancheInputs(), 0)
	require.NoError(t, err)

	prices, err := tranches.CalculatePrices(1_000, []uint64{0, 0}, 0)
	require.NoError(t, err)
	require.True(t, prices[0].Equal(decimal.New(1, 0)))
	require.True(t, prices[1].Equal(decimal.New(1, 0)))
}

func TestCalculatePricesZeroPool(t *testing.T) {
	tranches, err := NewTranches(twoTrancheInputs(), 0)
	require.NoError(t, err)

	prices, err := tranches.CalculatePrices(0, []uint64{500, 500}, 0)
	require.NoError(t, err)
	require.True(t, prices[0].IsZero())
	require.True(t, prices[1].IsZero())
}

func TestCalculatePricesWaterfall(t *testing.T) {
	tranches, err := NewTranches(twoTrancheInputs(), 0)
	require.NoError(t, err)
	tranches[1].Reserve = 500

	// Senior takes its balance, the residual the remainder.
	prices, err := tranches.CalculatePrices(1_200, []uint64{500, 500}, 0)
	require.NoError(t, err)
	require.True(t, prices[1].Equal(decimal.New(1, 0)), "senior price %s", prices[1])
	require.True(t, prices[0].Equal(decimal.RequireFromString("1.4")), "residual price %s", prices[0])
}

func TestCalculatePricesSeniorCapped(t *testing.T) {
	tranches, err := NewTranches(twoTrancheInputs(), 0)
	require.NoError(t, err)
	tranches[1].Debt = 800

	// Pool assets cover only part of the senior claim; the residual
	// is left with nothing and prices at zero.
	prices, err := tranches.CalculatePrices(600, []uint64{500, 500}, 0)
	require.NoError(t, err)
	require.True(t, prices[1].Equal(decimal.RequireFromString("1.2")), "senior price %s", prices[1])
	require.True(t, prices[0].IsZero(), "residual price %s", prices[0])
}

func TestCalculateRiskBuffers(t *testing.T) {
	one := decimal.New(1, 0)
	buffers, err := CalculateRiskBuffers([]uint64{500, 500}, []decimal.Decimal{one, one})
	require.NoError(t, err)
	require.True(t, buffers[0].IsZero(), "residual buffer %s", buffers[0])
	require.True(t, buffers[1].Equal(decimal.RequireFromString("0.5")), "senior buffer %s", buffers[1])
}

func TestCalculateRiskBuffersZeroPool(t *testing.T) {
	buffers, err := CalculateRiskBuffers([]uint64{0, 0}, []decimal.Decimal{{}, {}})
	require.NoError(t, err)
	require.True(t, buffers[0].IsZero())
	require.True(t, buffers[1].IsZero())
}

func TestRebalanceDistributesInvestments(t *testing.T) {
	tranches, err := NewTranches(twoTrancheInputs(), 0)
	require.NoError(t, err)

	half := decimal.RequireFromString("0.5")
	executed := []ExecutedAmounts{{Invest: 500}, {Invest: 500}}
	require.NoError(t, tranches.Rebalance(0, 1_000, 0, []decimal.Decimal{half, half}, executed))

	require.Equal(t, uint64(0), tranches[1].Debt)
	require.Equal(t, uint64(500), tranches[1].Reserve)
	require.Equal(t, uint64(0), tranches[0].Debt)
	require.Equal(t, uint64(500), tranches[0].Reserve)
	require.True(t, tranches[1].Ratio.Equal(half))
}

func TestRebalancePinsDebtToNAV(t *testing.T) {
	tranches, err := NewTranches(twoTrancheInputs(), 0)
	require.NoError(t, err)
	tranches[1].Debt = 200
	tranches[1].Reserve = 300
	tranches[0].Reserve = 500

	half := decimal.RequireFromString("0.5")
	executed := make([]ExecutedAmounts, 2)
	require.NoError(t, tranches.Rebalance(0, 800, 200, []decimal.Decimal{half, half}, executed))

	// Senior debt becomes its ratio of the NAV, the rest of its value
	// turns into reserve. The residual absorbs the remainders.
	require.Equal(t, uint64(100), tranches[1].Debt)
	require.Equal(t, uint64(400), tranches[1].Reserve)
	require.Equal(t, uint64(100), tranches[0].Debt)
	require.Equal(t, uint64(400), tranches[0].Reserve)
}
