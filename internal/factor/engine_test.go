package factor

import (
	"testing"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/fundamental"
	"github.com/stretchr/testify/require"
)

func barsFixture(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 10.0
	for i := 0; i < n; i++ {
		price += 0.1
		bars[i] = domain.Bar{
			TradeDate: base.AddDate(0, 0, i),
			Symbol:    "600000.SH",
			Open:      price, High: price + 0.2, Low: price - 0.2, Close: price,
			Volume: 1_000_000, Amount: 10_000_000,
		}
	}
	return bars
}

func TestComputeNeverRaisesOnMissingFundamentals(t *testing.T) {
	engine := NewEngine()
	rows := engine.Compute(barsFixture(30), nil, nil)
	require.Len(t, rows, 30)
	last := rows[len(rows)-1]
	require.False(t, last.FundamentalAvailable)
	require.Equal(t, defaultNeutralScore, last.FundamentalScore)
	require.False(t, last.TushareAdvancedAvailable)
	require.Equal(t, defaultNeutralScore, last.TushareAdvancedScore)
	require.NotNil(t, last.Momentum20)
}

func TestComputeRSI14PopulatedOnceWindowFilled(t *testing.T) {
	engine := NewEngine()
	rows := engine.Compute(barsFixture(30), nil, nil)
	require.Len(t, rows, 30)
	require.Nil(t, rows[10].RSI14)
	require.NotNil(t, rows[29].RSI14)
	require.GreaterOrEqual(t, *rows[29].RSI14, 0.0)
	require.LessOrEqual(t, *rows[29].RSI14, 100.0)
}

func TestComputeMovingAveragesUseAvailableWindow(t *testing.T) {
	engine := NewEngine()
	rows := engine.Compute(barsFixture(3), nil, nil)
	require.Len(t, rows, 3)
	require.InDelta(t, rows[0].Close, rows[0].MA20, 1e-9)
	require.InDelta(t, (rows[0].Close+rows[1].Close)/2, rows[1].MA20, 1e-9)
}

func TestComputeFundamentalScoreDampenedWhenStale(t *testing.T) {
	roe := 0.25
	fresh := fundamental.EnrichedBar{Available: true, PITOk: true, IsStale: false, Metrics: fundamental.Metrics{ROE: &roe}}
	stale := fundamental.EnrichedBar{Available: true, PITOk: true, IsStale: true, Metrics: fundamental.Metrics{ROE: &roe}}

	engine := NewEngine()
	bars := barsFixture(1)
	freshRows := engine.Compute(bars, []fundamental.EnrichedBar{fresh}, nil)
	staleRows := engine.Compute(bars, []fundamental.EnrichedBar{stale}, nil)

	require.Greater(t, freshRows[0].FundamentalScore, staleRows[0].FundamentalScore)
}

func TestComputeEmptyBarsReturnsNil(t *testing.T) {
	engine := NewEngine()
	require.Nil(t, engine.Compute(nil, nil, nil))
}

func TestTushareAdvancedScoreAveragesAvailableSubScores(t *testing.T) {
	turnover, valuation := 0.8, 0.4
	input := &TushareAdvancedInput{TurnoverScore: &turnover, ValuationScore: &valuation, TradabilityScore: 0.9}
	engine := NewEngine()
	rows := engine.Compute(barsFixture(1), nil, []*TushareAdvancedInput{input})
	require.True(t, rows[0].TushareAdvancedAvailable)
	require.InDelta(t, 0.6, rows[0].TushareAdvancedScore, 1e-9)
	require.InDelta(t, 0.9, rows[0].TushareTradabilityScore, 1e-9)
}
