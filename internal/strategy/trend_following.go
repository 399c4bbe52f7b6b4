package strategy

import (
	"fmt"
	"math"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/factor"
)

// TrendFollowing is an MA-crossover strategy with an ATR exit filter. It
// always re-derives its moving averages from the close series rather than
// reading precomputed ma{window} columns, because the only windows
// FactorEngine materializes (5/20/60) rarely match the strategy's
// entry_ma_fast/entry_ma_slow defaults (12/34) — the same fallback path
// the original exercises in practice.
type TrendFollowing struct{}

func NewTrendFollowing() *TrendFollowing { return &TrendFollowing{} }

func (t *TrendFollowing) Info() Info {
	return Info{
		Name:        "trend_following",
		Title:       "Trend Following",
		Description: "MA crossover with ATR exit filter, suitable for daily bars.",
		Frequency:   "D",
		ParamsSchema: map[string]string{
			"entry_ma_fast":   "int",
			"entry_ma_slow":   "int",
			"atr_multiplier":  "float",
		},
	}
}

func (t *TrendFollowing) Generate(features []factor.Row, ctx Context) []Candidate {
	if len(features) == 0 {
		return nil
	}
	entryMAFast := intParam(ctx.Params, "entry_ma_fast", 12)
	if entryMAFast < 2 {
		entryMAFast = 2
	}
	entryMASlow := intParam(ctx.Params, "entry_ma_slow", 34)
	if entryMASlow < entryMAFast+1 {
		entryMASlow = entryMAFast + 1
	}
	atrMult := floatParam(ctx.Params, "atr_multiplier", 1.6)

	closes := make([]float64, len(features))
	for i, r := range features {
		closes[i] = r.Close
	}
	fastMA := rollingMean(closes, entryMAFast)
	slowMA := rollingMean(closes, entryMASlow)
	latest := features[len(features)-1]

	var action domain.SignalAction
	var reason string
	var momentum20, atr14 *float64

	if len(features) < 2 {
		action = domain.ActionWatch
		reason = "Insufficient history for trend confirmation."
		momentum20 = latest.Momentum20
		atr14 = latest.ATR14
	} else {
		prevFast := fastMA[len(fastMA)-2]
		prevSlow := slowMA[len(slowMA)-2]
		latestFast := fastMA[len(fastMA)-1]
		latestSlow := slowMA[len(slowMA)-1]
		latestClose := latest.Close
		momentum20 = latest.Momentum20
		atr14 = latest.ATR14

		if momentum20 == nil {
			action = domain.ActionWatch
			reason = "Insufficient factor history: momentum20 unavailable."
		} else {
			atrVal := 0.0
			if atr14 != nil {
				atrVal = *atr14
			}
			longSignal := latestFast >= latestSlow*0.998 && latestClose >= latestFast*0.997
			exitSignal := (latestFast < latestSlow*0.998 && prevFast >= prevSlow*0.995) ||
				(latestClose < latestFast-atrMult*atrVal) ||
				(*momentum20 < -0.015 && latestClose < latestFast)

			switch {
			case longSignal:
				action = domain.ActionBuy
				reason = fmt.Sprintf("MA%d is above MA%d and price confirms breakout.", entryMAFast, entryMASlow)
			case exitSignal:
				action = domain.ActionSell
				reason = "Price breaks below dynamic ATR exit band."
			default:
				action = domain.ActionWatch
				reason = "No clear trend entry or exit."
			}
		}
	}

	fundamentalAvailable := latest.FundamentalAvailable
	fundamentalScore := 0.5
	if fundamentalAvailable {
		fundamentalScore = latest.FundamentalScore
	}
	tushareAvailable := latest.TushareAdvancedAvailable
	tushareScore := 0.5
	disclosureRisk := 0.5
	overhangRisk := 0.5
	if tushareAvailable {
		tushareScore = latest.TushareAdvancedScore
		disclosureRisk = latest.TushareDisclosureRiskScore
		overhangRisk = latest.TushareOverhangRiskScore
	}

	if action == domain.ActionBuy && fundamentalAvailable && fundamentalScore < 0.25 {
		action = domain.ActionWatch
		reason = fmt.Sprintf("Trend entry detected, but fundamental score %.3f is too weak; downgraded to WATCH.", fundamentalScore)
	}
	if action == domain.ActionBuy && tushareAvailable && tushareScore < 0.20 {
		action = domain.ActionWatch
		reason = fmt.Sprintf("Trend entry detected, but tushare advanced score %.3f is too weak; downgraded to WATCH.", tushareScore)
	}
	if action == domain.ActionBuy && disclosureRisk >= 0.90 {
		action = domain.ActionWatch
		reason = fmt.Sprintf("Trend entry blocked by disclosure risk (%.2f).", disclosureRisk)
	}

	strength := 0.0
	if momentum20 != nil {
		strength = math.Abs(*momentum20)
	}
	baseConfidence := clampF(strength*2+0.45, 0.25, 0.95)
	var confidence float64
	if !fundamentalAvailable && !tushareAvailable {
		confidence = baseConfidence
	} else {
		confidence = clampF(0.65*baseConfidence+0.20*fundamentalScore+0.15*(1.0-math.Max(disclosureRisk, overhangRisk)), 0.2, 0.95)
	}

	var suggestedPosition *float64
	if action == domain.ActionBuy {
		v := 0.08
		suggestedPosition = &v
	}

	var atr14Rounded, momentum20Rounded any
	if atr14 != nil {
		atr14Rounded = round4(*atr14)
	}
	if momentum20 != nil {
		momentum20Rounded = round4(*momentum20)
	}

	return []Candidate{{
		Symbol:            latest.Symbol,
		TradeDate:         latest.TradeDate,
		Action:            action,
		Confidence:        confidence,
		Reason:            reason,
		StrategyName:      "trend_following",
		SuggestedPosition: suggestedPosition,
		Metadata: map[string]any{
			"entry_ma_fast":                  entryMAFast,
			"entry_ma_slow":                  entryMASlow,
			"ma_fast":                        round4(fastMA[len(fastMA)-1]),
			"ma_slow":                        round4(slowMA[len(slowMA)-1]),
			"atr14":                          atr14Rounded,
			"momentum20":                     momentum20Rounded,
			"fundamental_score":              round4(fundamentalScore),
			"fundamental_available":          fundamentalAvailable,
			"tushare_advanced_score":         round4(tushareScore),
			"tushare_disclosure_risk_score":  round4(disclosureRisk),
			"tushare_overhang_risk_score":    round4(overhangRisk),
		},
	}}
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

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
