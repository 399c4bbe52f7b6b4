package replay

import (
	"fmt"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
)

// Service records signals and their linked executions, then computes
// follow-rate/slippage/delay statistics over the paired history.
type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

func (s *Service) RecordSignal(record domain.SignalRecord) (string, error) {
	return s.store.RecordSignal(record)
}

// RecordExecution requires the referenced signal to already exist,
// matching the KeyError ReplayService.record_execution raises otherwise.
func (s *Service) RecordExecution(record domain.ExecutionRecord) (int64, error) {
	exists, err := s.store.SignalExists(record.SignalID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("signal_id %q not found", record.SignalID)
	}
	return s.store.RecordExecution(record)
}

func (s *Service) ListSignals(symbol string, limit int) ([]domain.SignalRecord, error) {
	return s.store.ListSignals(symbol, limit)
}

// Item is one signal/execution pairing in a replay report.
type Item struct {
	SignalID        string
	Symbol          string
	SignalAction    domain.SignalAction
	ExecutedAction  *domain.SignalAction
	SignalConfidence float64
	ExecutedQuantity float64
	ExecutedPrice    float64
	SlippageBps      float64
	Followed         bool
	DelayDays        int
}

// Report summarizes follow-rate, average slippage, and average delay
// across a set of paired signal/execution rows.
type Report struct {
	Items           []Item
	FollowRate      float64
	AvgSlippageBps  float64
	AvgDelayDays    float64
}

// Report aggregates follow-rate, delay, and slippage over paired signal/
// execution history. There is no reference execution price to compare
// against an order book, so slippage_bps is always 0 for now — delay and
// follow-rate are the meaningful signals this report currently carries.
func (s *Service) Report(symbol string, startDate, endDate *time.Time, limit int) (Report, error) {
	rows, err := s.store.LoadPairs(symbol, startDate, endDate, limit)
	if err != nil {
		return Report{}, err
	}

	items := make([]Item, 0, len(rows))
	followedCount := 0
	slippageSum, slippageCount := 0.0, 0
	delaySum, delayCount := 0, 0

	for _, row := range rows {
		quantity := row.Quantity
		executedAction := row.ExecutedAction

		followed := executedAction != nil && *executedAction == row.SignalAction && quantity > 0
		if followed {
			followedCount++
		}

		slippageBps := 0.0
		if quantity > 0 {
			slippageSum += slippageBps
			slippageCount++
		}

		execDate := row.TradeDate
		if row.ExecutionDate != nil {
			execDate = *row.ExecutionDate
		}
		delayDays := 0
		if quantity > 0 {
			delayDays = daysBetween(row.TradeDate, execDate)
			if delayDays < 0 {
				delayDays = 0
			}
			delaySum += delayDays
			delayCount++
		}

		items = append(items, Item{
			SignalID: row.SignalID, Symbol: row.Symbol, SignalAction: row.SignalAction,
			ExecutedAction: executedAction, SignalConfidence: row.Confidence,
			ExecutedQuantity: quantity, ExecutedPrice: row.Price,
			SlippageBps: slippageBps, Followed: followed, DelayDays: delayDays,
		})
	}

	total := len(items)
	followRate, avgSlippage, avgDelay := 0.0, 0.0, 0.0
	if total > 0 {
		followRate = float64(followedCount) / float64(total)
	}
	if slippageCount > 0 {
		avgSlippage = slippageSum / float64(slippageCount)
	}
	if delayCount > 0 {
		avgDelay = float64(delaySum) / float64(delayCount)
	}

	return Report{Items: items, FollowRate: followRate, AvgSlippageBps: avgSlippage, AvgDelayDays: avgDelay}, nil
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
