package strategy

import (
	"testing"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/factor"
	"github.com/stretchr/testify/require"
)

func rowsFixture(n int, trend float64) []factor.Row {
	rows := make([]factor.Row, n)
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 10.0
	for i := 0; i < n; i++ {
		price += trend
		m20 := 0.0
		rows[i] = factor.Row{
			TradeDate: base.AddDate(0, 0, i), Symbol: "600000.SH", Close: price,
			Momentum20: &m20,
		}
	}
	if n > 20 {
		for i := 20; i < n; i++ {
			m := rows[i].Close/rows[i-20].Close - 1
			rows[i].Momentum20 = &m
		}
	}
	return rows
}

func TestTrendFollowingEmptyFeaturesReturnsNoCandidates(t *testing.T) {
	s := NewTrendFollowing()
	require.Empty(t, s.Generate(nil, Context{}))
}

func TestTrendFollowingShortHistoryWatches(t *testing.T) {
	s := NewTrendFollowing()
	out := s.Generate(rowsFixture(1, 0.1), Context{})
	require.Len(t, out, 1)
	require.Equal(t, domain.ActionWatch, out[0].Action)
}

func TestTrendFollowingUptrendBuys(t *testing.T) {
	s := NewTrendFollowing()
	out := s.Generate(rowsFixture(60, 0.3), Context{Params: map[string]any{"entry_ma_fast": 5, "entry_ma_slow": 20}})
	require.Len(t, out, 1)
	require.Equal(t, domain.ActionBuy, out[0].Action)
	require.NotNil(t, out[0].SuggestedPosition)
	require.InDelta(t, 0.08, *out[0].SuggestedPosition, 1e-9)
}

func TestTrendFollowingWeakFundamentalDowngradesBuyToWatch(t *testing.T) {
	s := NewTrendFollowing()
	rows := rowsFixture(60, 0.3)
	rows[len(rows)-1].FundamentalAvailable = true
	rows[len(rows)-1].FundamentalScore = 0.1
	out := s.Generate(rows, Context{Params: map[string]any{"entry_ma_fast": 5, "entry_ma_slow": 20}})
	require.Len(t, out, 1)
	require.Equal(t, domain.ActionWatch, out[0].Action)
	require.Contains(t, out[0].Reason, "fundamental score")
}

func TestTrendFollowingHighDisclosureRiskBlocksBuy(t *testing.T) {
	s := NewTrendFollowing()
	rows := rowsFixture(60, 0.3)
	rows[len(rows)-1].TushareAdvancedAvailable = true
	rows[len(rows)-1].TushareAdvancedScore = 0.8
	rows[len(rows)-1].TushareDisclosureRiskScore = 0.95
	out := s.Generate(rows, Context{Params: map[string]any{"entry_ma_fast": 5, "entry_ma_slow": 20}})
	require.Len(t, out, 1)
	require.Equal(t, domain.ActionWatch, out[0].Action)
	require.Contains(t, out[0].Reason, "disclosure risk")
}

func TestRegistryGetUnknownStrategyErrors(t *testing.T) {
	r := NewRegistry()
	r.Register(NewTrendFollowing())
	_, err := r.Get("nope")
	require.Error(t, err)
	got, err := r.Get("trend_following")
	require.NoError(t, err)
	require.Equal(t, "trend_following", got.Info().Name)
}
