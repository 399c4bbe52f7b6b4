// Package risk implements the rule-based pre-trade and portfolio-level
// risk checks: a pipeline of independent RiskRule checks aggregated into a single
// blocked/warning/info verdict, plus a separate portfolio-level evaluation
// (drawdown, concentration, daily loss, consecutive-loss circuit breaker,
// historical VaR/ES).
package risk

import (
	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/pkg/formulas"
)

// RuleHit is the outcome of one RiskRule check.
type RuleHit struct {
	RuleName string
	Passed   bool
	Level    domain.Severity
	Message  string
}

// Position is the current holding for the symbol under evaluation, if any.
type Position struct {
	Quantity          float64
	AvailableQuantity float64
}

// PortfolioSnapshot is the account-wide state a rule may need to evaluate
// concentration or drawdown limits.
type PortfolioSnapshot struct {
	CurrentDrawdown  float64
	IndustryExposure map[string]float64
	ThemeExposure    map[string]float64
}

// CheckRequest bundles everything a RiskRule needs to evaluate one candidate
// signal. Fields are left at their zero value when not applicable to the
// signal being checked, matching the original's liberal use of optional
// fields on a single flat request object.
type CheckRequest struct {
	Signal SignalInput

	Position  *Position
	Portfolio *PortfolioSnapshot

	IsST          bool
	IsSuspended   bool
	AtLimitUp     bool
	AtLimitDown   bool
	SymbolIndustry string

	AvgTurnover20D *float64

	FundamentalScore     *float64
	FundamentalStaleDays *int
	FundamentalPITOk     *bool

	TushareAdvancedAvailable   bool
	TushareDisclosureRiskScore float64
	TushareOverhangRiskScore   float64
	TushareForecastPchgMid     *float64
	TusharePledgeRatio         float64
	TushareShareFloatUnlockRatio float64

	EnableSmallCapitalMode       bool
	AvailableCash                *float64
	SmallCapitalPrincipal        *float64
	SmallCapitalCashBufferRatio  float64
	RequiredCashForMinLot        *float64
	ExpectedEdgeBps              *float64
	EstimatedRoundtripCostBps     *float64
	MinExpectedEdgeBps           *float64
}

// SignalInput is the candidate signal under review.
type SignalInput struct {
	Action             domain.SignalAction
	SuggestedPosition  *float64
	Metadata           map[string]any
}

// CheckResult is the engine's verdict for one CheckRequest.
type CheckResult struct {
	Blocked         bool
	Level           domain.Severity
	Hits            []RuleHit
	Summary         string
	Recommendations []string
}

// PortfolioRequest bundles the account-wide state evaluate_portfolio needs.
type PortfolioRequest struct {
	Portfolio          PortfolioSnapshot
	MaxDrawdown        float64
	MaxIndustryExposure float64
	MaxThemeExposure   float64
	MaxDailyLoss       float64
	DailyReturns       []float64
	RecentTradePnLs    []float64
	MaxConsecutiveLosses int
	VaRConfidence      float64
	MaxVaR             float64
	MaxES              float64
	PendingSignal      *SignalInput
}

// PortfolioResult is the engine's verdict for one PortfolioRequest.
type PortfolioResult struct {
	Blocked bool
	Level   domain.Severity
	Summary string
	Hits    []RuleHit
	VaR     *float64
	ES      *float64

	// SharpeRatio and SortinoRatio are computed from DailyReturns and are
	// nil with fewer than two returns. SharpeRatio is also nil when the
	// returns have zero volatility, and SortinoRatio when no return is
	// below zero.
	SharpeRatio  *float64
	SortinoRatio *float64
	// Drawdown is derived from the equity curve implied by DailyReturns,
	// independent of the live Portfolio.CurrentDrawdown figure supplied by
	// the caller.
	Drawdown *formulas.DrawdownMetrics
}
