package trading

import (
	"testing"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestEstimateRoundtripCostBpsZeroOnInvalidInputs(t *testing.T) {
	require.Equal(t, 0.0, EstimateRoundtripCostBps(RoundtripCostParams{Price: 0, LotSize: 100}))
	require.Equal(t, 0.0, EstimateRoundtripCostBps(RoundtripCostParams{Price: 10, LotSize: 0}))
}

func TestEstimateRoundtripCostBpsIncludesCommissionFloor(t *testing.T) {
	bps := EstimateRoundtripCostBps(RoundtripCostParams{
		Price: 10, LotSize: 100, CommissionRate: 0.0003, MinCommission: 5,
		TransferFeeRate: 0.00001, StampDutySellRate: 0.0005, SlippageRate: 0.0005,
	})
	require.Greater(t, bps, 0.0)
}

func TestRequiredCashForMinLotAddsBuyFee(t *testing.T) {
	cash := RequiredCashForMinLot(RequiredCashParams{
		Price: 10, LotSize: 100, CommissionRate: 0.0003, MinCommission: 5, TransferFeeRate: 0.00001,
	})
	require.Greater(t, cash, 1000.0)
}

func TestInferExpectedEdgeBpsHigherConfidenceHigherEdge(t *testing.T) {
	low := InferExpectedEdgeBps(ExpectedEdgeParams{Confidence: 0.5})
	high := InferExpectedEdgeBps(ExpectedEdgeParams{Confidence: 0.9})
	require.Equal(t, 0.0, low)
	require.Greater(t, high, low)
}

func TestEstimateFillProbabilityZeroWhenSuspended(t *testing.T) {
	p := EstimateFillProbability(FillProbabilityParams{Side: domain.ActionBuy, IsSuspended: true, ProbabilityFloor: 0.02})
	require.Equal(t, 0.0, p)
}

func TestEstimateFillProbabilityFloorsOnOneWordLimit(t *testing.T) {
	p := EstimateFillProbability(FillProbabilityParams{Side: domain.ActionBuy, IsOneWordLimitUp: true, ProbabilityFloor: 0.02})
	require.Equal(t, 0.02, p)
}

func TestFilledQuantityByProbabilityRoundsDownToLotSize(t *testing.T) {
	q := FilledQuantityByProbability(1000, 100, 0.55)
	require.Equal(t, 500, q)
}
