package risk

import (
	"testing"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestEvaluatePassesCleanBuy(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig(0.10, 0.25, 0.30, 1_000_000))
	req := CheckRequest{
		Signal:         SignalInput{Action: domain.ActionBuy, SuggestedPosition: ptr(0.05)},
		AvgTurnover20D: ptr(2_000_000),
	}
	result := engine.Evaluate(req)
	require.False(t, result.Blocked)
	require.Equal(t, domain.SeverityInfo, result.Level)
}

func TestEvaluateBlocksOnSuspendedBuy(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig(0.10, 0.25, 0.30, 1_000_000))
	req := CheckRequest{
		Signal:      SignalInput{Action: domain.ActionBuy, SuggestedPosition: ptr(0.05)},
		IsSuspended: true,
	}
	result := engine.Evaluate(req)
	require.True(t, result.Blocked)
	require.Equal(t, domain.SeverityCritical, result.Level)
}

func TestEvaluateWarnsWithoutBlockingOnLowLiquidity(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig(0.10, 0.25, 0.30, 1_000_000))
	req := CheckRequest{
		Signal:         SignalInput{Action: domain.ActionBuy, SuggestedPosition: ptr(0.05)},
		AvgTurnover20D: ptr(100),
	}
	result := engine.Evaluate(req)
	require.False(t, result.Blocked)
	require.Equal(t, domain.SeverityWarning, result.Level)
}

func TestTushareRuleBlocksOnCriticalDisclosureRisk(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig(0.10, 0.25, 0.30, 1_000_000))
	req := CheckRequest{
		Signal:                     SignalInput{Action: domain.ActionBuy, SuggestedPosition: ptr(0.05)},
		AvgTurnover20D:             ptr(2_000_000),
		TushareAdvancedAvailable:   true,
		TushareDisclosureRiskScore: 0.95,
	}
	result := engine.Evaluate(req)
	require.True(t, result.Blocked)
	require.Equal(t, domain.SeverityCritical, result.Level)
}

func TestTushareRuleSkippedWhenDatasetUnavailable(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig(0.10, 0.25, 0.30, 1_000_000))
	req := CheckRequest{
		Signal:                     SignalInput{Action: domain.ActionBuy, SuggestedPosition: ptr(0.05)},
		AvgTurnover20D:             ptr(2_000_000),
		TushareAdvancedAvailable:   false,
		TushareDisclosureRiskScore: 0.99,
	}
	result := engine.Evaluate(req)
	require.False(t, result.Blocked)
	require.Equal(t, domain.SeverityInfo, result.Level)
}

func TestEvaluatePortfolioBlocksOnDrawdown(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig(0.10, 0.25, 0.30, 1_000_000))
	result := engine.EvaluatePortfolio(PortfolioRequest{
		Portfolio:            PortfolioSnapshot{CurrentDrawdown: 0.30},
		MaxDrawdown:          0.25,
		MaxIndustryExposure:  0.30,
		MaxThemeExposure:     0.40,
		MaxDailyLoss:         0.05,
		MaxConsecutiveLosses: 5,
		VaRConfidence:        0.95,
		MaxVaR:               0.10,
		MaxES:                0.15,
	})
	require.True(t, result.Blocked)
	require.Equal(t, domain.SeverityCritical, result.Level)
}

func TestEvaluatePortfolioLossCircuitBreaker(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig(0.10, 0.25, 0.30, 1_000_000))
	result := engine.EvaluatePortfolio(PortfolioRequest{
		Portfolio:            PortfolioSnapshot{CurrentDrawdown: 0.05},
		MaxDrawdown:          0.25,
		MaxIndustryExposure:  0.30,
		MaxThemeExposure:     0.40,
		MaxDailyLoss:         0.05,
		RecentTradePnLs:      []float64{10, -5, -3, -2},
		MaxConsecutiveLosses: 3,
		VaRConfidence:        0.95,
		MaxVaR:               0.10,
		MaxES:                0.15,
	})
	require.True(t, result.Blocked)
	require.Len(t, result.Hits, 1)
	require.Equal(t, "loss_circuit_breaker", result.Hits[0].RuleName)
}

func TestHistoricalVaREsAtConfidence(t *testing.T) {
	returns := []float64{0.01, -0.01, -0.02, -0.03, -0.04, 0.02, -0.10}
	varValue, esValue := historicalVaRES(returns, 0.90)
	require.NotNil(t, varValue)
	require.NotNil(t, esValue)
	require.GreaterOrEqual(t, *esValue, *varValue)
}

func TestEvaluatePortfolioFlagsHistoricalDrawdownAndReportsRatios(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig(0.10, 0.05, 0.30, 1_000_000))
	returns := []float64{0.02, 0.01, -0.08, -0.06, -0.05, 0.01, 0.01}
	result := engine.EvaluatePortfolio(PortfolioRequest{
		Portfolio:            PortfolioSnapshot{CurrentDrawdown: 0.01},
		MaxDrawdown:          0.05,
		MaxIndustryExposure:  0.30,
		MaxThemeExposure:     0.40,
		MaxDailyLoss:         0.50,
		DailyReturns:         returns,
		MaxConsecutiveLosses: 10,
		VaRConfidence:        0.95,
		MaxVaR:               1,
		MaxES:                1,
	})
	require.NotNil(t, result.Drawdown)
	require.Greater(t, result.Drawdown.MaxDrawdown, 0.05)
	require.NotNil(t, result.SharpeRatio)
	require.NotNil(t, result.SortinoRatio)

	var found bool
	for _, h := range result.Hits {
		if h.RuleName == "historical_drawdown" {
			found = true
		}
	}
	require.True(t, found)
}

func TestEvaluatePortfolioOmitsRatiosWithoutReturnHistory(t *testing.T) {
	engine := NewEngine(DefaultEngineConfig(0.10, 0.25, 0.30, 1_000_000))
	result := engine.EvaluatePortfolio(PortfolioRequest{
		Portfolio:            PortfolioSnapshot{CurrentDrawdown: 0.05},
		MaxDrawdown:          0.25,
		MaxIndustryExposure:  0.30,
		MaxThemeExposure:     0.40,
		MaxDailyLoss:         0.05,
		MaxConsecutiveLosses: 5,
		VaRConfidence:        0.95,
		MaxVaR:               0.10,
		MaxES:                0.15,
	})
	require.Nil(t, result.SharpeRatio)
	require.Nil(t, result.SortinoRatio)
	require.Nil(t, result.Drawdown)
}

func TestConsecutiveLossesStopsAtFirstWin(t *testing.T) {
	require.Equal(t, 0, consecutiveLosses([]float64{-1, -2, 3}))
	require.Equal(t, 2, consecutiveLosses([]float64{-1, 2, -3, -4}))
	require.Equal(t, 0, consecutiveLosses(nil))
}
