// Package trading estimates roundtrip transaction costs, expected edge,
// and small-capital affordability for a trade candidate.
package trading

import (
	"math"

	"github.com/aristath/trading-assistant/internal/domain"
)

func CalcCommission(notional, rate, minCommission float64) float64 {
	if notional <= 0 {
		return 0
	}
	fee := notional * rate
	if minCommission > fee {
		return minCommission
	}
	return fee
}

func CalcTransferFee(notional, rate float64) float64 {
	if notional <= 0 {
		return 0
	}
	return notional * rate
}

func CalcStampDuty(notional, sellRate float64, isSell bool) float64 {
	if notional <= 0 || !isSell {
		return 0
	}
	return notional * sellRate
}

// SideFeeParams bundles the per-side fee schedule shared by buy and sell legs.
type SideFeeParams struct {
	Notional          float64
	CommissionRate    float64
	MinCommission     float64
	TransferFeeRate   float64
	StampDutySellRate float64
	IsSell            bool
}

func CalcSideFee(p SideFeeParams) float64 {
	if p.Notional <= 0 {
		return 0
	}
	return CalcCommission(p.Notional, p.CommissionRate, p.MinCommission) +
		CalcTransferFee(p.Notional, p.TransferFeeRate) +
		CalcStampDuty(p.Notional, p.StampDutySellRate, p.IsSell)
}

// RoundtripCostParams bundles the fee schedule and order shape used to
// estimate a single lot's buy+sell cost in basis points.
type RoundtripCostParams struct {
	Price             float64
	LotSize           int
	CommissionRate    float64
	MinCommission     float64
	TransferFeeRate   float64
	StampDutySellRate float64
	SlippageRate      float64
}

func EstimateRoundtripCostBps(p RoundtripCostParams) float64 {
	if p.Price <= 0 || p.LotSize <= 0 {
		return 0
	}
	notional := p.Price * float64(p.LotSize)
	buyFee := CalcSideFee(SideFeeParams{Notional: notional, CommissionRate: p.CommissionRate, MinCommission: p.MinCommission, TransferFeeRate: p.TransferFeeRate, StampDutySellRate: p.StampDutySellRate, IsSell: false})
	sellFee := CalcSideFee(SideFeeParams{Notional: notional, CommissionRate: p.CommissionRate, MinCommission: p.MinCommission, TransferFeeRate: p.TransferFeeRate, StampDutySellRate: p.StampDutySellRate, IsSell: true})
	slipCost := notional * math.Max(0, p.SlippageRate) * 2
	total := buyFee + sellFee + slipCost
	if notional <= 0 {
		return 0
	}
	return total / notional * 10000
}

type RequiredCashParams struct {
	Price           float64
	LotSize         int
	CommissionRate  float64
	MinCommission   float64
	TransferFeeRate float64
}

func RequiredCashForMinLot(p RequiredCashParams) float64 {
	if p.Price <= 0 || p.LotSize <= 0 {
		return 0
	}
	notional := p.Price * float64(p.LotSize)
	buyFee := CalcSideFee(SideFeeParams{Notional: notional, CommissionRate: p.CommissionRate, MinCommission: p.MinCommission, TransferFeeRate: p.TransferFeeRate, StampDutySellRate: 0, IsSell: false})
	return notional + buyFee
}

type ExpectedEdgeParams struct {
	Confidence        float64
	Momentum20        *float64
	EventScore        *float64
	FundamentalScore  *float64
}

func InferExpectedEdgeBps(p ExpectedEdgeParams) float64 {
	c := math.Max(0, math.Min(1, p.Confidence))
	base := math.Max(0, (c-0.5)*400)
	if p.Momentum20 != nil && !math.IsNaN(*p.Momentum20) && !math.IsInf(*p.Momentum20, 0) {
		base += math.Max(-80, math.Min(120, *p.Momentum20*300))
	}
	if p.EventScore != nil && !math.IsNaN(*p.EventScore) && !math.IsInf(*p.EventScore, 0) {
		base += math.Max(0, math.Min(80, (*p.EventScore-0.5)*200))
	}
	if p.FundamentalScore != nil && !math.IsNaN(*p.FundamentalScore) && !math.IsInf(*p.FundamentalScore, 0) {
		base += math.Max(-40, math.Min(60, (*p.FundamentalScore-0.5)*120))
	}
	return math.Max(0, base)
}

// TieredSlippageRate applies a piece-wise slippage uplift by order
// participation ratio (order notional over average 20-day turnover).
func TieredSlippageRate(orderNotional float64, avgTurnover20D *float64, baseSlippageRate float64) float64 {
	base := math.Max(0, baseSlippageRate)
	adv := 0.0
	if avgTurnover20D != nil {
		adv = *avgTurnover20D
	}
	if orderNotional <= 0 || adv <= 0 {
		return base
	}
	ratio := orderNotional / math.Max(adv, 1)
	var uplift float64
	switch {
	case ratio <= 0.005:
		uplift = 0
	case ratio <= 0.015:
		uplift = 0.0002
	case ratio <= 0.03:
		uplift = 0.0005
	case ratio <= 0.06:
		uplift = 0.0010
	default:
		uplift = 0.0020
	}
	return base + uplift
}

// EstimateMarketImpactRate is a square-root-like impact model:
// impact = coeff * participation^exponent * 0.001.
func EstimateMarketImpactRate(orderNotional float64, avgTurnover20D *float64, impactCoeff, impactExponent float64) float64 {
	adv := 0.0
	if avgTurnover20D != nil {
		adv = *avgTurnover20D
	}
	if orderNotional <= 0 || adv <= 0 {
		return 0
	}
	ratio := math.Max(0, orderNotional/math.Max(adv, 1))
	coeff := math.Max(0, impactCoeff)
	exponent := clampF(impactExponent, 0.1, 2.0)
	return coeff * math.Pow(ratio, exponent) * 0.001
}

type FillProbabilityParams struct {
	Side               domain.SignalAction
	IsSuspended        bool
	AtLimitUp          bool
	AtLimitDown        bool
	IsOneWordLimitUp   bool
	IsOneWordLimitDown bool
	AvgTurnover20D     *float64
	OrderNotional      *float64
	ProbabilityFloor   float64
}

// EstimateFillProbability derives a [0,1] fill likelihood: zero when
// suspended, the probability floor for a one-word limit move against the
// order's side, a fixed 0.15 floor for an ordinary limit touch, and a
// logistic decay on participation ratio otherwise.
func EstimateFillProbability(p FillProbabilityParams) float64 {
	floor := clampF(p.ProbabilityFloor, 0, 1)
	if p.IsSuspended {
		return 0
	}
	if p.Side == domain.ActionBuy && p.IsOneWordLimitUp {
		return floor
	}
	if p.Side == domain.ActionSell && p.IsOneWordLimitDown {
		return floor
	}
	if p.Side == domain.ActionBuy && p.AtLimitUp {
		return math.Max(floor, 0.15)
	}
	if p.Side == domain.ActionSell && p.AtLimitDown {
		return math.Max(floor, 0.15)
	}

	adv := 0.0
	if p.AvgTurnover20D != nil {
		adv = *p.AvgTurnover20D
	}
	notional := 0.0
	if p.OrderNotional != nil {
		notional = *p.OrderNotional
	}
	if adv <= 0 || notional <= 0 {
		return 1
	}
	participation := math.Max(0, notional/math.Max(adv, 1))
	prob := 1.0 / (1.0 + math.Exp(18.0*(participation-0.035)))
	return clampF(prob, floor, 1)
}

func FilledQuantityByProbability(desiredQty, lotSize int, fillProbability float64) int {
	if desiredQty <= 0 || lotSize <= 0 {
		return 0
	}
	prob := clampF(fillProbability, 0, 1)
	filled := int(float64(desiredQty)*prob) / lotSize * lotSize
	if filled < 0 {
		filled = 0
	}
	if filled > desiredQty {
		filled = desiredQty
	}
	return filled
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
