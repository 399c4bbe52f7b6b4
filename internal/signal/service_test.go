package signal

import (
	"testing"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/risk"
	"github.com/aristath/trading-assistant/internal/strategy"
	"github.com/stretchr/testify/require"
)

func TestToTradePrepSheetCarriesCandidateAndRiskFields(t *testing.T) {
	svc := NewService()
	position := 0.08
	candidate := strategy.Candidate{
		Symbol: "600000.SH", StrategyName: "trend_following", TradeDate: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Action: domain.ActionBuy, Confidence: 0.7, Reason: "breakout", SuggestedPosition: &position,
		Metadata: map[string]any{"ma_fast": 10.1},
	}
	result := risk.CheckResult{
		Blocked: false, Level: domain.SeverityWarning,
		Hits:    []risk.RuleHit{{RuleName: "position_limit", Passed: true, Level: domain.SeverityInfo}},
		Summary: "1 warning", Recommendations: []string{"reduce size"},
	}

	sheet := svc.ToTradePrepSheet(candidate, result)
	require.Equal(t, "600000.SH", sheet.Symbol)
	require.Equal(t, domain.ActionBuy, sheet.Action)
	require.False(t, sheet.Blocked)
	require.Equal(t, domain.SeverityWarning, sheet.Level)
	require.Len(t, sheet.Hits, 1)
	require.Equal(t, []string{"reduce size"}, sheet.Recommendations)
	require.InDelta(t, 0.08, *sheet.SuggestedPosition, 1e-9)
}
