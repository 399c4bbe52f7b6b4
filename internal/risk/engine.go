package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/pkg/formulas"
)

// EngineConfig carries every threshold the engine evaluates against.
type EngineConfig struct {
	MaxSinglePosition   float64
	MaxDrawdown         float64
	MaxIndustryExposure float64
	MinTurnover20D      float64

	FundamentalBuyWarningScore    float64
	FundamentalBuyCriticalScore   float64
	FundamentalRequireDataForBuy  bool

	TushareDisclosureWarningScore  float64
	TushareDisclosureCriticalScore float64
	TushareForecastWarningPct      float64
	TushareForecastCriticalPct     float64
	SmallCapPledgeCriticalRatio    float64
	SmallCapUnlockWarningRatio     float64
	SmallCapUnlockCriticalRatio    float64
	SmallCapOverhangWarningScore   float64

	RiskFreeRate float64
}

// DefaultEngineConfig returns the engine's baseline thresholds, with the
// four caller-tunable fields overridden by the given values.
func DefaultEngineConfig(maxSinglePosition, maxDrawdown, maxIndustryExposure, minTurnover20D float64) EngineConfig {
	return EngineConfig{
		MaxSinglePosition:   maxSinglePosition,
		MaxDrawdown:         maxDrawdown,
		MaxIndustryExposure: maxIndustryExposure,
		MinTurnover20D:      minTurnover20D,

		FundamentalBuyWarningScore:   0.50,
		FundamentalBuyCriticalScore:  0.35,
		FundamentalRequireDataForBuy: false,

		TushareDisclosureWarningScore:  0.75,
		TushareDisclosureCriticalScore: 0.90,
		TushareForecastWarningPct:      -35.0,
		TushareForecastCriticalPct:     -60.0,
		SmallCapPledgeCriticalRatio:    50.0,
		SmallCapUnlockWarningRatio:     0.20,
		SmallCapUnlockCriticalRatio:    0.45,
		SmallCapOverhangWarningScore:   0.75,

		RiskFreeRate: 0.02,
	}
}

// Engine runs the configured Rule pipeline and aggregates hits into a
// blocked/warning/info verdict.
type Engine struct {
	rules       []Rule
	maxDrawdown float64
	maxIndustryExposure float64
	riskFreeRate float64
}

func NewEngine(cfg EngineConfig) *Engine {
	riskFreeRate := cfg.RiskFreeRate
	if riskFreeRate == 0 {
		riskFreeRate = 0.02
	}
	return &Engine{
		maxDrawdown:         cfg.MaxDrawdown,
		maxIndustryExposure: cfg.MaxIndustryExposure,
		riskFreeRate:        riskFreeRate,
		rules: []Rule{
			TPlusOneRule{},
			STRule{},
			SuspensionRule{},
			LimitPriceRule{},
			PositionLimitRule{MaxSinglePosition: cfg.MaxSinglePosition},
			LiquidityRule{MinTurnover20D: cfg.MinTurnover20D},
			SmallCapitalTradabilityRule{},
			DrawdownRule{MaxDrawdown: cfg.MaxDrawdown},
			IndustryExposureRule{MaxIndustryExposure: cfg.MaxIndustryExposure},
			FundamentalQualityRule{
				WarningScore:      cfg.FundamentalBuyWarningScore,
				CriticalScore:     cfg.FundamentalBuyCriticalScore,
				RequireDataForBuy: cfg.FundamentalRequireDataForBuy,
			},
			TushareDisclosureAndOverhangRule{
				DisclosureWarningScore:       cfg.TushareDisclosureWarningScore,
				DisclosureCriticalScore:      cfg.TushareDisclosureCriticalScore,
				ForecastWarningPct:           cfg.TushareForecastWarningPct,
				ForecastCriticalPct:          cfg.TushareForecastCriticalPct,
				SmallCapPledgeCriticalRatio:  cfg.SmallCapPledgeCriticalRatio,
				SmallCapUnlockWarningRatio:   cfg.SmallCapUnlockWarningRatio,
				SmallCapUnlockCriticalRatio:  cfg.SmallCapUnlockCriticalRatio,
				SmallCapOverhangWarningScore: cfg.SmallCapOverhangWarningScore,
			},
		},
	}
}

// Evaluate runs every configured rule against req and aggregates the result:
// any failed CRITICAL hit blocks execution outright; otherwise any failed
// WARNING hit flags the signal for manual confirmation without blocking it;
// otherwise the signal passes clean.
func (e *Engine) Evaluate(req CheckRequest) CheckResult {
	hits := make([]RuleHit, 0, len(e.rules))
	for _, rule := range e.rules {
		hits = append(hits, rule.Check(req))
	}

	var failedCritical, failedWarning bool
	for _, h := range hits {
		if h.Passed {
			continue
		}
		switch h.Level {
		case domain.SeverityCritical:
			failedCritical = true
		case domain.SeverityWarning:
			failedWarning = true
		}
	}

	if failedCritical {
		return CheckResult{
			Blocked: true, Level: domain.SeverityCritical, Hits: hits,
			Summary:         "Hard risk limits triggered.",
			Recommendations: []string{"Hard risk rules triggered. Block execution and move to review queue."},
		}
	}
	if failedWarning {
		return CheckResult{
			Blocked: false, Level: domain.SeverityWarning, Hits: hits,
			Summary: "Execution risk warnings triggered.",
			Recommendations: []string{
				"Signal can proceed only after manual confirmation.",
				"Consider reducing target position size.",
			},
		}
	}
	return CheckResult{
		Blocked: false, Level: domain.SeverityInfo, Hits: hits,
		Summary:         "Risk validation passed.",
		Recommendations: []string{"All configured risk checks passed."},
	}
}

// EvaluatePortfolio runs the account-wide checks: drawdown, industry/theme
// concentration, daily max loss, a consecutive-loss circuit breaker,
// historical VaR/ES, and an equity-curve drawdown/Sharpe/Sortino read
// derived from DailyReturns, plus a projection of the pending signal's
// exposure.
func (e *Engine) EvaluatePortfolio(req PortfolioRequest) PortfolioResult {
	var hits []RuleHit

	varValue, esValue := historicalVaRES(req.DailyReturns, req.VaRConfidence)
	curve := equityCurve(req.DailyReturns)
	sharpe := formulas.CalculateSharpeFromPrices(curve, e.riskFreeRate)
	sortino := formulas.CalculateSortinoRatio(req.DailyReturns, e.riskFreeRate, 0, 252)
	drawdownDetail := formulas.CalculateDrawdownMetrics(curve)

	if drawdownDetail != nil && drawdownDetail.MaxDrawdown > req.MaxDrawdown {
		hits = append(hits, RuleHit{
			RuleName: "historical_drawdown", Level: domain.SeverityWarning,
			Message: fmt.Sprintf("Equity-curve max drawdown %.2f%% over the return history exceeds threshold %.2f%%.",
				drawdownDetail.MaxDrawdown*100, req.MaxDrawdown*100),
		})
	}

	if req.Portfolio.CurrentDrawdown > req.MaxDrawdown {
		hits = append(hits, RuleHit{
			RuleName: "portfolio_drawdown", Level: domain.SeverityCritical,
			Message: fmt.Sprintf("Portfolio drawdown %.2f%% exceeds threshold %.2f%%.",
				req.Portfolio.CurrentDrawdown*100, req.MaxDrawdown*100),
		})
	}

	if top, value, ok := maxExposure(req.Portfolio.IndustryExposure); ok && value > req.MaxIndustryExposure {
		hits = append(hits, RuleHit{
			RuleName: "industry_concentration", Level: domain.SeverityWarning,
			Message: fmt.Sprintf("Industry %s exposure %.2f%% exceeds threshold %.2f%%.", top, value*100, req.MaxIndustryExposure*100),
		})
	}

	if top, value, ok := maxExposure(req.Portfolio.ThemeExposure); ok && value > req.MaxThemeExposure {
		hits = append(hits, RuleHit{
			RuleName: "theme_concentration", Level: domain.SeverityWarning,
			Message: fmt.Sprintf("Theme %s exposure %.2f%% exceeds threshold %.2f%%.", top, value*100, req.MaxThemeExposure*100),
		})
	}

	if n := len(req.DailyReturns); n > 0 {
		latest := req.DailyReturns[n-1]
		if latest <= -req.MaxDailyLoss {
			hits = append(hits, RuleHit{
				RuleName: "daily_max_loss", Level: domain.SeverityCritical,
				Message: fmt.Sprintf("Daily return %.2f%% <= -max_daily_loss %.2f%%.", latest*100, -req.MaxDailyLoss*100),
			})
		}
	}

	consecutiveLosses := consecutiveLosses(req.RecentTradePnLs)
	if consecutiveLosses >= req.MaxConsecutiveLosses {
		hits = append(hits, RuleHit{
			RuleName: "loss_circuit_breaker", Level: domain.SeverityCritical,
			Message: fmt.Sprintf("Consecutive losses %d >= threshold %d.", consecutiveLosses, req.MaxConsecutiveLosses),
		})
	}

	if varValue != nil && *varValue > req.MaxVaR {
		hits = append(hits, RuleHit{
			RuleName: "portfolio_var", Level: domain.SeverityWarning,
			Message: fmt.Sprintf("Portfolio VaR %.2f%% exceeds %.2f%%.", *varValue*100, req.MaxVaR*100),
		})
	}
	if esValue != nil && *esValue > req.MaxES {
		hits = append(hits, RuleHit{
			RuleName: "portfolio_es", Level: domain.SeverityCritical,
			Message: fmt.Sprintf("Portfolio ES %.2f%% exceeds %.2f%%.", *esValue*100, req.MaxES*100),
		})
	}

	if req.PendingSignal != nil && req.PendingSignal.Action == domain.ActionBuy {
		suggested := 0.0
		if req.PendingSignal.SuggestedPosition != nil {
			suggested = *req.PendingSignal.SuggestedPosition
		}
		if industry, ok := stringMetadata(req.PendingSignal.Metadata, "industry"); ok {
			current := req.Portfolio.IndustryExposure[industry]
			projected := current + suggested
			if projected > req.MaxIndustryExposure {
				hits = append(hits, RuleHit{
					RuleName: "industry_exposure", Level: domain.SeverityWarning,
					Message: fmt.Sprintf("Projected %s exposure %.2f%% exceeds %.2f%%.", industry, projected*100, req.MaxIndustryExposure*100),
				})
			}
		}
		if theme, ok := stringMetadata(req.PendingSignal.Metadata, "theme"); ok {
			current := req.Portfolio.ThemeExposure[theme]
			projected := current + suggested
			if projected > req.MaxThemeExposure {
				hits = append(hits, RuleHit{
					RuleName: "theme_exposure", Level: domain.SeverityWarning,
					Message: fmt.Sprintf("Projected %s exposure %.2f%% exceeds %.2f%%.", theme, projected*100, req.MaxThemeExposure*100),
				})
			}
		}
	}

	result := PortfolioResult{
		Hits: hits, VaR: varValue, ES: esValue,
		SharpeRatio: sharpe, SortinoRatio: sortino, Drawdown: drawdownDetail,
	}
	if anyLevel(hits, domain.SeverityCritical) {
		result.Blocked = true
		result.Level = domain.SeverityCritical
		result.Summary = "Portfolio-level hard risk triggered."
	} else if len(hits) > 0 {
		result.Blocked = false
		result.Level = domain.SeverityWarning
		result.Summary = "Portfolio-level warning triggered."
	} else {
		result.Blocked = false
		result.Level = domain.SeverityInfo
		result.Summary = "Portfolio-level risk checks passed."
		result.Hits = nil
	}
	return result
}

func anyLevel(hits []RuleHit, level domain.Severity) bool {
	for _, h := range hits {
		if h.Level == level {
			return true
		}
	}
	return false
}

func maxExposure(exposure map[string]float64) (key string, value float64, ok bool) {
	if len(exposure) == 0 {
		return "", 0, false
	}
	keys := make([]string, 0, len(exposure))
	for k := range exposure {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := keys[0]
	for _, k := range keys {
		if exposure[k] > exposure[best] {
			best = k
		}
	}
	return best, exposure[best], true
}

func stringMetadata(metadata map[string]any, key string) (string, bool) {
	if metadata == nil {
		return "", false
	}
	v, ok := metadata[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// consecutiveLosses counts losing trades from the end of pnls until the
// first non-loss.
func consecutiveLosses(pnls []float64) int {
	count := 0
	for i := len(pnls) - 1; i >= 0; i-- {
		if pnls[i] < 0 {
			count++
		} else {
			break
		}
	}
	return count
}

// equityCurve turns a daily-return series into a unit-starting equity
// curve so CalculateDrawdownMetrics can run over it the same way it runs
// over a price series.
func equityCurve(returns []float64) []float64 {
	if len(returns) == 0 {
		return nil
	}
	curve := make([]float64, len(returns)+1)
	curve[0] = 1.0
	for i, r := range returns {
		curve[i+1] = curve[i] * (1 + r)
	}
	return curve
}

// historicalVaRES computes historical VaR/ES at the given confidence
// level over a sample of returns.
func historicalVaRES(returns []float64, confidence float64) (*float64, *float64) {
	if len(returns) == 0 {
		return nil, nil
	}
	losses := make([]float64, len(returns))
	for i, r := range returns {
		losses[i] = math.Max(0, -r)
	}
	sort.Float64s(losses)

	idx := int(math.Ceil(confidence*float64(len(losses)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(losses)-1 {
		idx = len(losses) - 1
	}
	varValue := losses[idx]

	tail := losses[idx:]
	sum := 0.0
	for _, v := range tail {
		sum += v
	}
	esValue := varValue
	if len(tail) > 0 {
		esValue = sum / float64(len(tail))
	}
	return &varValue, &esValue
}
