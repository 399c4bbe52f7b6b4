package trading

import (
	"fmt"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/strategy"
)

// SmallCapitalOverrideParams bundles the affordability/concentration
// schedule apply_small_capital_overrides mutates a BUY candidate against.
type SmallCapitalOverrideParams struct {
	EnableSmallCapitalMode bool
	Principal              float64
	LatestPrice            float64
	LotSize                int
	CommissionRate         float64
	MinCommission          float64
	TransferFeeRate        float64
	CashBufferRatio        float64
	MaxSinglePosition      float64
	MaxPositions           int
}

// ApplySmallCapitalOverrides downgrades a BUY candidate to WATCH when a
// single minimum lot is unaffordable or too concentrated for a small
// account. Otherwise it keeps the candidate's SuggestedPosition (or, when
// there is none, uses the account's per-position cash budget), raised to
// at least one lot's share and capped at MaxSinglePosition. It mutates
// candidate in place and returns an override note, if any.
func ApplySmallCapitalOverrides(candidate *strategy.Candidate, p SmallCapitalOverrideParams) string {
	if !p.EnableSmallCapitalMode || candidate.Action != domain.ActionBuy {
		return ""
	}
	if p.Principal <= 0 || p.LatestPrice <= 0 || p.LotSize <= 0 {
		return "Small-capital override skipped due to invalid principal/price/lot_size."
	}
	if candidate.Metadata == nil {
		candidate.Metadata = map[string]any{}
	}

	usableCash := p.Principal * clampF(1.0-p.CashBufferRatio, 0, 1)
	minLotCash := RequiredCashForMinLot(RequiredCashParams{
		Price: p.LatestPrice, LotSize: p.LotSize, CommissionRate: p.CommissionRate,
		MinCommission: p.MinCommission, TransferFeeRate: p.TransferFeeRate,
	})
	minLotPosition := p.LatestPrice * float64(p.LotSize) / p.Principal

	if minLotCash > usableCash {
		candidate.Action = domain.ActionWatch
		candidate.SuggestedPosition = nil
		candidate.Reason = fmt.Sprintf("%s [small-capital override] Not enough usable cash for one lot: %.2f < %.2f.",
			candidate.Reason, usableCash, minLotCash)
		candidate.Metadata["small_capital_override"] = "downgraded_not_affordable"
		return candidate.Reason
	}

	if minLotPosition > p.MaxSinglePosition {
		candidate.Action = domain.ActionWatch
		candidate.SuggestedPosition = nil
		candidate.Reason = fmt.Sprintf("%s [small-capital override] One-lot position ratio %.2f%% exceeds max_single_position %.2f%%.",
			candidate.Reason, minLotPosition*100, p.MaxSinglePosition*100)
		candidate.Metadata["small_capital_override"] = "downgraded_over_concentrated"
		return candidate.Reason
	}

	maxPositions := p.MaxPositions
	if maxPositions < 1 {
		maxPositions = 1
	}
	budgetPosition := usableCash / float64(maxPositions) / p.Principal
	suggested := budgetPosition
	if candidate.SuggestedPosition != nil {
		suggested = *candidate.SuggestedPosition
	}
	suggested = max(suggested, minLotPosition)
	suggested = min(p.MaxSinglePosition, suggested)
	rounded := round4(suggested)
	candidate.SuggestedPosition = &rounded
	candidate.Metadata["small_capital_override"] = "position_adjusted"
	candidate.Metadata["small_capital_min_lot_position"] = round4(minLotPosition)
	candidate.Metadata["small_capital_budget_position"] = round4(budgetPosition)
	return ""
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func round4(v float64) float64 {
	return float64(int(v*10000+0.5)) / 10000
}
