// Package factor derives technical, fundamental, and Tushare-advanced
// factor scores from a PIT-enriched bar timeline, feeding RiskEngine and
// the strategy layer. The technical block (moving averages, ATR, RSI,
// momentum, volatility, zscore, turnover) uses the statistics and RSI
// helpers in pkg/formulas plus markcheno/go-talib directly for Wilder
// ATR; the fundamental/Tushare sub-score weighting follows the same
// `_scale`/`_clip01` normalization idiom.
package factor

import (
	"sort"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/fundamental"
	"github.com/aristath/trading-assistant/pkg/formulas"
)

// Row is one symbol-day's full factor vector.
type Row struct {
	TradeDate time.Time
	Symbol    string
	Close     float64

	MA5  float64
	MA20 float64
	MA60 float64

	ATR14         *float64
	RSI14         *float64
	Ret1D         *float64
	Momentum20    *float64
	Momentum60    *float64
	Volatility20  *float64
	ZScore20      *float64
	Turnover20    float64

	FundamentalAvailable           bool
	FundamentalScore               float64
	FundamentalProfitabilityScore  float64
	FundamentalGrowthScore         float64
	FundamentalQualityScore        float64
	FundamentalLeverageScore       float64
	FundamentalCompleteness        float64

	TushareAdvancedAvailable     bool
	TushareAdvancedScore         float64
	TushareTradabilityScore      float64
	TushareMoneyflowScore        float64
	TushareDisclosureRiskScore   float64
	TushareOverhangRiskScore     float64
	TusharePledgeRatio           float64
	TushareShareFloatUnlockRatio float64
	TushareForecastPchgMid       *float64
}

// TushareAdvancedInput is the per-bar raw Tushare-advanced dataset, when
// the provider exposes it. Sub-scores are expected pre-normalized to
// [0,1] by the provider adapter (turnover/valuation/money-flow/liquidity
// bands); the engine only combines and clips them.
type TushareAdvancedInput struct {
	TurnoverScore   *float64
	ValuationScore  *float64
	MoneyflowScore  *float64
	LiquidityScore  *float64

	TradabilityScore      float64
	DisclosureRiskScore   float64
	OverhangRiskScore     float64
	PledgeRatio           float64
	ShareFloatUnlockRatio float64
	ForecastPchgMid       *float64
}

const defaultNeutralScore = 0.5

// Engine computes the factor vector for a sorted bar timeline. It never
// raises on missing upstream columns — it backs off to neutral 0.5 and
// marks the corresponding *_available flag false.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Compute derives the technical block from bars alone, plus the
// fundamental block from enriched (index-aligned with bars, possibly nil)
// and the Tushare-advanced block from advanced (also index-aligned,
// possibly nil per-row or nil altogether).
func (e *Engine) Compute(bars []domain.Bar, enriched []fundamental.EnrichedBar, advanced []*TushareAdvancedInput) []Row {
	if len(bars) == 0 {
		return nil
	}
	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TradeDate.Before(sorted[j].TradeDate) })

	closes := make([]float64, len(sorted))
	highs := make([]float64, len(sorted))
	lows := make([]float64, len(sorted))
	amounts := make([]float64, len(sorted))
	for i, b := range sorted {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		amounts[i] = b.Amount
	}

	ma5 := rollingMean(closes, 5)
	ma20 := rollingMean(closes, 20)
	ma60 := rollingMean(closes, 60)
	atr14 := wilderATR(highs, lows, closes, 14)
	turnover20 := rollingMean(amounts, 20)

	rows := make([]Row, len(sorted))
	for i, b := range sorted {
		row := Row{TradeDate: b.TradeDate, Symbol: b.Symbol, Close: b.Close,
			MA5: ma5[i], MA20: ma20[i], MA60: ma60[i], Turnover20: turnover20[i]}

		if i > 0 && closes[i-1] != 0 {
			ret := closes[i]/closes[i-1] - 1
			row.Ret1D = &ret
		}
		if v := atr14[i]; !isNaN(v) {
			row.ATR14 = &v
		}
		row.RSI14 = formulas.CalculateRSI(closes[:i+1], 14)
		row.Momentum20 = momentum(closes, i, 20)
		row.Momentum60 = momentum(closes, i, 60)
		row.Volatility20 = volatility(closes, i, 20)
		row.ZScore20 = zscore(closes, i, 20)

		row.applyFundamental(enrichedAt(enriched, i))
		row.applyTushareAdvanced(advancedAt(advanced, i))

		rows[i] = row
	}
	return rows
}

func enrichedAt(enriched []fundamental.EnrichedBar, i int) *fundamental.EnrichedBar {
	if i < len(enriched) {
		return &enriched[i]
	}
	return nil
}

func advancedAt(advanced []*TushareAdvancedInput, i int) *TushareAdvancedInput {
	if i < len(advanced) {
		return advanced[i]
	}
	return nil
}

// applyFundamental computes the four bounded sub-scores (profitability,
// growth, quality, leverage) and their weighted fundamental_score, damping
// by 0.6 when stale or PIT-failed.
func (r *Row) applyFundamental(e *fundamental.EnrichedBar) {
	if e == nil || !e.Available {
		r.FundamentalAvailable = false
		r.FundamentalScore = defaultNeutralScore
		r.FundamentalProfitabilityScore = defaultNeutralScore
		r.FundamentalGrowthScore = defaultNeutralScore
		r.FundamentalQualityScore = defaultNeutralScore
		r.FundamentalLeverageScore = defaultNeutralScore
		r.FundamentalCompleteness = 0
		return
	}
	r.FundamentalAvailable = true

	profitability := scaledOr(e.Metrics.ROE, 0.0, 0.20, defaultNeutralScore)

	growthTerms := make([]float64, 0, 2)
	if e.Metrics.RevenueYoY != nil {
		growthTerms = append(growthTerms, *e.Metrics.RevenueYoY)
	}
	if e.Metrics.NetProfitYoY != nil {
		growthTerms = append(growthTerms, *e.Metrics.NetProfitYoY)
	}
	growth := defaultNeutralScore
	if len(growthTerms) > 0 {
		growth = clip01(scale(formulas.Mean(growthTerms), -0.20, 0.40))
	}

	quality := scaledOr(e.Metrics.OCFToProfit, 0.0, 1.5, defaultNeutralScore)

	leverage := defaultNeutralScore
	if e.Metrics.DebtToAsset != nil {
		leverage = clip01(1.0 - scale(*e.Metrics.DebtToAsset, 0.30, 0.80))
	}

	present := 0
	for _, v := range []*float64{e.Metrics.ROE, e.Metrics.RevenueYoY, e.Metrics.NetProfitYoY, e.Metrics.GrossMargin, e.Metrics.DebtToAsset, e.Metrics.OCFToProfit, e.Metrics.EPS} {
		if v != nil {
			present++
		}
	}
	r.FundamentalCompleteness = float64(present) / 7.0

	score := 0.30*profitability + 0.25*growth + 0.25*quality + 0.20*leverage
	if (!e.PITOk) || e.IsStale {
		score *= 0.6
	}
	r.FundamentalProfitabilityScore = profitability
	r.FundamentalGrowthScore = growth
	r.FundamentalQualityScore = quality
	r.FundamentalLeverageScore = leverage
	r.FundamentalScore = clip01(score)
}

// applyTushareAdvanced combines the pre-normalized Tushare sub-scores into
// tushare_advanced_score and passes through the risk-facing fields RiskEngine
// consumes directly.
func (r *Row) applyTushareAdvanced(a *TushareAdvancedInput) {
	if a == nil {
		r.TushareAdvancedAvailable = false
		r.TushareAdvancedScore = defaultNeutralScore
		r.TushareTradabilityScore = defaultNeutralScore
		r.TushareMoneyflowScore = defaultNeutralScore
		r.TushareDisclosureRiskScore = defaultNeutralScore
		r.TushareOverhangRiskScore = defaultNeutralScore
		return
	}
	r.TushareAdvancedAvailable = true
	r.TushareTradabilityScore = a.TradabilityScore
	r.TushareMoneyflowScore = orDefault(a.MoneyflowScore, defaultNeutralScore)
	r.TushareDisclosureRiskScore = a.DisclosureRiskScore
	r.TushareOverhangRiskScore = a.OverhangRiskScore
	r.TusharePledgeRatio = a.PledgeRatio
	r.TushareShareFloatUnlockRatio = a.ShareFloatUnlockRatio
	r.TushareForecastPchgMid = a.ForecastPchgMid

	sum, n := 0.0, 0
	for _, v := range []*float64{a.TurnoverScore, a.ValuationScore, a.MoneyflowScore, a.LiquidityScore} {
		if v != nil {
			sum += clip01(*v)
			n++
		}
	}
	if n == 0 {
		r.TushareAdvancedScore = defaultNeutralScore
		return
	}
	r.TushareAdvancedScore = clip01(sum / float64(n))
}

func scaledOr(v *float64, low, high, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return clip01(scale(*v, low, high))
}

func orDefault(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func scale(value, low, high float64) float64 {
	if high == low {
		return 0
	}
	return clip01((value - low) / (high - low))
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func rollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		} else {
			sum -= values[lo-1]
		}
		n := i - lo + 1
		out[i] = sum / float64(n)
	}
	return out
}

func momentum(closes []float64, i, window int) *float64 {
	j := i - window
	if j < 0 || closes[j] == 0 {
		return nil
	}
	m := closes[i]/closes[j] - 1
	return &m
}

func volatility(closes []float64, i, window int) *float64 {
	lo := i - window + 1
	if lo < 1 {
		return nil
	}
	rets := make([]float64, 0, window)
	for k := lo; k <= i; k++ {
		if closes[k-1] == 0 {
			continue
		}
		rets = append(rets, closes[k]/closes[k-1]-1)
	}
	if len(rets) < 2 {
		return nil
	}
	v := formulas.StdDev(rets)
	return &v
}

func zscore(closes []float64, i, window int) *float64 {
	lo := i - window + 1
	if lo < 0 {
		return nil
	}
	slice := closes[lo : i+1]
	mean := formulas.Mean(slice)
	sd := formulas.StdDev(slice)
	if sd == 0 {
		return nil
	}
	z := (closes[i] - mean) / sd
	return &z
}

func wilderATR(highs, lows, closes []float64, period int) []float64 {
	if len(closes) == 0 {
		return nil
	}
	return talib.Atr(highs, lows, closes, period)
}

func isNaN(f float64) bool { return f != f }
