package trading

import (
	"testing"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/strategy"
	"github.com/stretchr/testify/require"
)

func TestApplySmallCapitalOverridesSkipsWhenDisabled(t *testing.T) {
	c := &strategy.Candidate{Action: domain.ActionBuy, Reason: "trend entry"}
	note := ApplySmallCapitalOverrides(c, SmallCapitalOverrideParams{EnableSmallCapitalMode: false})
	require.Empty(t, note)
	require.Equal(t, domain.ActionBuy, c.Action)
}

func TestApplySmallCapitalOverridesDowngradesWhenUnaffordable(t *testing.T) {
	c := &strategy.Candidate{Action: domain.ActionBuy, Reason: "trend entry"}
	note := ApplySmallCapitalOverrides(c, SmallCapitalOverrideParams{
		EnableSmallCapitalMode: true, Principal: 100, LatestPrice: 50, LotSize: 100,
		CommissionRate: 0.0003, MinCommission: 5, TransferFeeRate: 0.00001,
		CashBufferRatio: 0.05, MaxSinglePosition: 0.5, MaxPositions: 3,
	})
	require.NotEmpty(t, note)
	require.Equal(t, domain.ActionWatch, c.Action)
	require.Nil(t, c.SuggestedPosition)
	require.Equal(t, "downgraded_not_affordable", c.Metadata["small_capital_override"])
}

func TestApplySmallCapitalOverridesSizesAffordablePosition(t *testing.T) {
	c := &strategy.Candidate{Action: domain.ActionBuy, Reason: "trend entry"}
	note := ApplySmallCapitalOverrides(c, SmallCapitalOverrideParams{
		EnableSmallCapitalMode: true, Principal: 2000, LatestPrice: 10, LotSize: 100,
		CommissionRate: 0.0003, MinCommission: 5, TransferFeeRate: 0.00001,
		CashBufferRatio: 0.05, MaxSinglePosition: 0.5, MaxPositions: 3,
	})
	require.Empty(t, note)
	require.Equal(t, domain.ActionBuy, c.Action)
	require.NotNil(t, c.SuggestedPosition)
	require.Equal(t, "position_adjusted", c.Metadata["small_capital_override"])
}
