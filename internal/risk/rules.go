package risk

import (
	"fmt"

	"github.com/aristath/trading-assistant/internal/domain"
)

// Rule validates one concrete risk constraint against a CheckRequest:
// each concrete rule is a single independent check, aggregated by
// Engine.Evaluate.
type Rule interface {
	Name() string
	Check(req CheckRequest) RuleHit
}

func pass(name, message string) RuleHit {
	return RuleHit{RuleName: name, Passed: true, Level: domain.SeverityInfo, Message: message}
}

func fail(name string, level domain.Severity, message string) RuleHit {
	return RuleHit{RuleName: name, Passed: false, Level: level, Message: message}
}

// TPlusOneRule blocks a SELL when there is no available (unsettled-free)
// quantity to sell, matching T+1 settlement rules.
type TPlusOneRule struct{}

func (TPlusOneRule) Name() string { return "t_plus_one" }

func (r TPlusOneRule) Check(req CheckRequest) RuleHit {
	if req.Signal.Action != domain.ActionSell {
		return pass(r.Name(), "Not a SELL action.")
	}
	available := 0.0
	if req.Position != nil {
		available = req.Position.AvailableQuantity
	}
	if available <= 0 {
		return fail(r.Name(), domain.SeverityCritical, "T+1 constraint hit: no available quantity for selling.")
	}
	return pass(r.Name(), "T+1 validation passed.")
}

// STRule blocks new BUY signals on ST/risk-warning stocks.
type STRule struct{}

func (STRule) Name() string { return "st_filter" }

func (r STRule) Check(req CheckRequest) RuleHit {
	if req.Signal.Action == domain.ActionBuy && req.IsST {
		return fail(r.Name(), domain.SeverityCritical, "ST/risk-warning stock is blocked for new BUY signals.")
	}
	return pass(r.Name(), "ST validation passed.")
}

// SuspensionRule blocks BUY/SELL signals on a suspended security.
type SuspensionRule struct{}

func (SuspensionRule) Name() string { return "suspension_filter" }

func (r SuspensionRule) Check(req CheckRequest) RuleHit {
	if (req.Signal.Action == domain.ActionBuy || req.Signal.Action == domain.ActionSell) && req.IsSuspended {
		return fail(r.Name(), domain.SeverityCritical, "Security is suspended.")
	}
	return pass(r.Name(), "Suspension validation passed.")
}

// LimitPriceRule flags signals unlikely to fill at the daily price limit.
type LimitPriceRule struct{}

func (LimitPriceRule) Name() string { return "limit_price" }

func (r LimitPriceRule) Check(req CheckRequest) RuleHit {
	if req.Signal.Action == domain.ActionBuy && req.AtLimitUp {
		return fail(r.Name(), domain.SeverityWarning, "Near/up-limit-up, BUY may not be filled.")
	}
	if req.Signal.Action == domain.ActionSell && req.AtLimitDown {
		return fail(r.Name(), domain.SeverityWarning, "Near/at-limit-down, SELL may not be filled.")
	}
	return pass(r.Name(), "Limit-price validation passed.")
}

// PositionLimitRule caps the suggested position size of a single BUY.
type PositionLimitRule struct {
	MaxSinglePosition float64
}

func (PositionLimitRule) Name() string { return "single_position_limit" }

func (r PositionLimitRule) Check(req CheckRequest) RuleHit {
	target := req.Signal.SuggestedPosition
	if req.Signal.Action == domain.ActionBuy && target != nil && *target > r.MaxSinglePosition {
		return fail(r.Name(), domain.SeverityCritical,
			fmt.Sprintf("Target position %.2f%% exceeds limit %.2f%%.", *target*100, r.MaxSinglePosition*100))
	}
	return pass(r.Name(), "Single-position limit passed.")
}

// LiquidityRule requires a minimum 20-day average turnover for an executable signal.
type LiquidityRule struct {
	MinTurnover20D float64
}

func (LiquidityRule) Name() string { return "liquidity_min_turnover" }

func (r LiquidityRule) Check(req CheckRequest) RuleHit {
	if req.Signal.Action != domain.ActionBuy && req.Signal.Action != domain.ActionSell {
		return pass(r.Name(), "Not an executable signal.")
	}
	turnover := 0.0
	if req.AvgTurnover20D != nil {
		turnover = *req.AvgTurnover20D
	}
	if turnover < r.MinTurnover20D {
		return fail(r.Name(), domain.SeverityWarning,
			fmt.Sprintf("Avg turnover20 %.2f below threshold %.2f.", turnover, r.MinTurnover20D))
	}
	return pass(r.Name(), "Liquidity validation passed.")
}

// DrawdownRule blocks all signals once the portfolio drawdown exceeds a hard limit.
type DrawdownRule struct {
	MaxDrawdown float64
}

func (DrawdownRule) Name() string { return "portfolio_drawdown" }

func (r DrawdownRule) Check(req CheckRequest) RuleHit {
	if req.Portfolio == nil {
		return pass(r.Name(), "No portfolio snapshot.")
	}
	if req.Portfolio.CurrentDrawdown > r.MaxDrawdown {
		return fail(r.Name(), domain.SeverityCritical,
			fmt.Sprintf("Portfolio drawdown %.2f%% exceeds limit %.2f%%.", req.Portfolio.CurrentDrawdown*100, r.MaxDrawdown*100))
	}
	return pass(r.Name(), "Drawdown validation passed.")
}

// IndustryExposureRule flags a BUY that would push industry exposure past a cap.
type IndustryExposureRule struct {
	MaxIndustryExposure float64
}

func (IndustryExposureRule) Name() string { return "industry_exposure" }

func (r IndustryExposureRule) Check(req CheckRequest) RuleHit {
	if req.Portfolio == nil || req.SymbolIndustry == "" || req.Signal.Action != domain.ActionBuy {
		return pass(r.Name(), "Industry check not applicable.")
	}
	current := req.Portfolio.IndustryExposure[req.SymbolIndustry]
	incremental := 0.0
	if req.Signal.SuggestedPosition != nil {
		incremental = *req.Signal.SuggestedPosition
	}
	projected := current + incremental
	if projected > r.MaxIndustryExposure {
		return fail(r.Name(), domain.SeverityWarning,
			fmt.Sprintf("Projected industry exposure %.2f%% exceeds limit %.2f%%.", projected*100, r.MaxIndustryExposure*100))
	}
	return pass(r.Name(), "Industry exposure validation passed.")
}

// FundamentalQualityRule blocks or flags a BUY on a weak or stale fundamental score.
type FundamentalQualityRule struct {
	WarningScore       float64
	CriticalScore      float64
	RequireDataForBuy  bool
	StaleDaysThreshold int
}

func (FundamentalQualityRule) Name() string { return "fundamental_quality" }

func (r FundamentalQualityRule) Check(req CheckRequest) RuleHit {
	if req.Signal.Action != domain.ActionBuy {
		return pass(r.Name(), "Not a BUY action.")
	}
	if req.FundamentalPITOk != nil && !*req.FundamentalPITOk {
		return fail(r.Name(), domain.SeverityCritical, "Fundamental PIT check failed (publish time later than trade as-of).")
	}
	if req.FundamentalScore == nil {
		if r.RequireDataForBuy {
			return fail(r.Name(), domain.SeverityWarning, "No fundamental snapshot found; require manual confirmation.")
		}
		return pass(r.Name(), "No fundamental snapshot; fallback to technical/event factors.")
	}
	score := *req.FundamentalScore
	if score < r.CriticalScore {
		return fail(r.Name(), domain.SeverityCritical,
			fmt.Sprintf("Fundamental score %.3f below critical floor %.3f.", score, r.CriticalScore))
	}
	if score < r.WarningScore {
		return fail(r.Name(), domain.SeverityWarning,
			fmt.Sprintf("Fundamental score %.3f below warning floor %.3f.", score, r.WarningScore))
	}
	staleThreshold := r.StaleDaysThreshold
	if staleThreshold <= 0 {
		staleThreshold = 540
	}
	if req.FundamentalStaleDays != nil && *req.FundamentalStaleDays >= 0 && *req.FundamentalStaleDays > staleThreshold {
		return fail(r.Name(), domain.SeverityWarning,
			fmt.Sprintf("Fundamental snapshot is stale (%d days).", *req.FundamentalStaleDays))
	}
	return pass(r.Name(), "Fundamental quality passed.")
}

// SmallCapitalTradabilityRule blocks a small-account BUY that can't clear
// the minimum-lot cash requirement, and warns (without blocking) when its
// expected edge doesn't clear its edge-vs-cost floor.
type SmallCapitalTradabilityRule struct{}

func (SmallCapitalTradabilityRule) Name() string { return "small_capital_tradability" }

func (r SmallCapitalTradabilityRule) Check(req CheckRequest) RuleHit {
	if !req.EnableSmallCapitalMode {
		return pass(r.Name(), "Small-capital mode disabled.")
	}
	if req.Signal.Action != domain.ActionBuy {
		return pass(r.Name(), "Small-capital tradability check applies to BUY actions only.")
	}

	availableCash := req.AvailableCash
	if availableCash == nil {
		availableCash = req.SmallCapitalPrincipal
	}
	if availableCash == nil {
		return fail(r.Name(), domain.SeverityWarning, "Small-capital mode is enabled but available cash is unknown.")
	}

	if req.RequiredCashForMinLot != nil {
		bufferRatio := req.SmallCapitalCashBufferRatio
		if bufferRatio < 0 {
			bufferRatio = 0
		}
		maxUsableCash := *availableCash * (1.0 - bufferRatio)
		if maxUsableCash < 0 {
			maxUsableCash = 0
		}
		if maxUsableCash < *req.RequiredCashForMinLot {
			return fail(r.Name(), domain.SeverityCritical,
				fmt.Sprintf("Not tradable for small account: usable_cash=%.2f, required_cash_for_lot=%.2f.",
					maxUsableCash, *req.RequiredCashForMinLot))
		}
	}

	if req.ExpectedEdgeBps != nil && req.EstimatedRoundtripCostBps != nil && req.MinExpectedEdgeBps != nil {
		required := *req.EstimatedRoundtripCostBps + *req.MinExpectedEdgeBps
		if *req.ExpectedEdgeBps < required {
			return fail(r.Name(), domain.SeverityWarning,
				fmt.Sprintf("Expected edge %.1fbps < required %.1fbps (cost + safety margin).", *req.ExpectedEdgeBps, required))
		}
	}

	return pass(r.Name(), "Small-capital tradability passed.")
}

// TushareDisclosureAndOverhangRule flags a BUY against Tushare-derived
// disclosure risk, earnings-forecast deterioration, share-pledge ratio, and
// float-unlock overhang, when the advanced Tushare dataset is available for
// the symbol. Absent that dataset, the check is a no-op (the upstream
// factor/strategy layer already falls back to neutral defaults).
type TushareDisclosureAndOverhangRule struct {
	DisclosureWarningScore       float64
	DisclosureCriticalScore      float64
	ForecastWarningPct           float64
	ForecastCriticalPct          float64
	SmallCapPledgeCriticalRatio  float64
	SmallCapUnlockWarningRatio   float64
	SmallCapUnlockCriticalRatio  float64
	SmallCapOverhangWarningScore float64
}

func (TushareDisclosureAndOverhangRule) Name() string { return "tushare_disclosure_and_overhang" }

func (r TushareDisclosureAndOverhangRule) Check(req CheckRequest) RuleHit {
	if req.Signal.Action != domain.ActionBuy {
		return pass(r.Name(), "Not a BUY action.")
	}
	if !req.TushareAdvancedAvailable {
		return pass(r.Name(), "Tushare advanced dataset not available; check skipped.")
	}

	var criticalMsgs, warningMsgs []string

	disclosure := req.TushareDisclosureRiskScore
	switch {
	case disclosure >= r.DisclosureCriticalScore:
		criticalMsgs = append(criticalMsgs, fmt.Sprintf("disclosure risk %.2f at/above critical floor %.2f", disclosure, r.DisclosureCriticalScore))
	case disclosure >= r.DisclosureWarningScore:
		warningMsgs = append(warningMsgs, fmt.Sprintf("disclosure risk %.2f at/above warning floor %.2f", disclosure, r.DisclosureWarningScore))
	}

	if req.TushareForecastPchgMid != nil {
		forecast := *req.TushareForecastPchgMid
		switch {
		case forecast <= r.ForecastCriticalPct:
			criticalMsgs = append(criticalMsgs, fmt.Sprintf("earnings forecast change %.1f%% at/below critical floor %.1f%%", forecast, r.ForecastCriticalPct))
		case forecast <= r.ForecastWarningPct:
			warningMsgs = append(warningMsgs, fmt.Sprintf("earnings forecast change %.1f%% at/below warning floor %.1f%%", forecast, r.ForecastWarningPct))
		}
	}

	pledge := req.TusharePledgeRatio
	if pledge >= r.SmallCapPledgeCriticalRatio {
		criticalMsgs = append(criticalMsgs, fmt.Sprintf("pledge ratio %.1f%% at/above critical floor %.1f%%", pledge, r.SmallCapPledgeCriticalRatio))
	}

	unlock := req.TushareShareFloatUnlockRatio
	switch {
	case unlock >= r.SmallCapUnlockCriticalRatio:
		criticalMsgs = append(criticalMsgs, fmt.Sprintf("float-unlock ratio %.1f%% at/above critical floor %.1f%%", unlock*100, r.SmallCapUnlockCriticalRatio*100))
	case unlock >= r.SmallCapUnlockWarningRatio:
		warningMsgs = append(warningMsgs, fmt.Sprintf("float-unlock ratio %.1f%% at/above warning floor %.1f%%", unlock*100, r.SmallCapUnlockWarningRatio*100))
	}

	overhang := req.TushareOverhangRiskScore
	if overhang >= r.SmallCapOverhangWarningScore {
		warningMsgs = append(warningMsgs, fmt.Sprintf("overhang risk %.2f at/above warning floor %.2f", overhang, r.SmallCapOverhangWarningScore))
	}

	if len(criticalMsgs) > 0 {
		return fail(r.Name(), domain.SeverityCritical, "Disclosure/overhang hard limits triggered: "+joinMessages(criticalMsgs)+".")
	}
	if len(warningMsgs) > 0 {
		return fail(r.Name(), domain.SeverityWarning, "Disclosure/overhang warning limits triggered: "+joinMessages(warningMsgs)+".")
	}
	return pass(r.Name(), "Disclosure/overhang validation passed.")
}

func joinMessages(msgs []string) string {
	out := msgs[0]
	for _, m := range msgs[1:] {
		out += "; " + m
	}
	return out
}
