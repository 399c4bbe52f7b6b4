// Package signal converts a risk-evaluated strategy candidate into the
// flat sheet a trader or downstream execution system consumes.
package signal

import (
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/risk"
	"github.com/aristath/trading-assistant/internal/strategy"
)

// TradePrepSheet is the candidate plus its risk verdict, ready for display
// or hand-off to execution.
type TradePrepSheet struct {
	Symbol            string
	StrategyName      string
	TradeDate         time.Time
	Action            domain.SignalAction
	Confidence        float64
	Reason            string
	SuggestedPosition *float64
	Metadata          map[string]any

	Blocked         bool
	Level           domain.Severity
	Hits            []risk.RuleHit
	Summary         string
	Recommendations []string
}

type Service struct{}

func NewService() *Service { return &Service{} }

func (s *Service) ToTradePrepSheet(candidate strategy.Candidate, result risk.CheckResult) TradePrepSheet {
	return TradePrepSheet{
		Symbol: candidate.Symbol, StrategyName: candidate.StrategyName, TradeDate: candidate.TradeDate,
		Action: candidate.Action, Confidence: candidate.Confidence, Reason: candidate.Reason,
		SuggestedPosition: candidate.SuggestedPosition, Metadata: candidate.Metadata,
		Blocked: result.Blocked, Level: result.Level, Hits: result.Hits,
		Summary: result.Summary, Recommendations: result.Recommendations,
	}
}
