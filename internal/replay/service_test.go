package replay

import (
	"fmt"
	"testing"
	"time"

	"github.com/aristath/trading-assistant/internal/database"
	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:replay_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileLedger,
		Name:    "replay_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)
	return NewService(store)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRecordExecutionRequiresExistingSignal(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.RecordExecution(domain.ExecutionRecord{SignalID: "missing", Symbol: "600000.SH", ExecutionDate: day(2026, 1, 5), Side: domain.ActionBuy, Quantity: 100, Price: 12.0})
	require.Error(t, err)
}

func TestReportComputesFollowRateAndDelay(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.RecordSignal(domain.SignalRecord{SignalID: "sig-1", Symbol: "600000.SH", StrategyName: "trend_following", TradeDate: day(2026, 1, 5), Action: domain.ActionBuy, Confidence: 0.8, Reason: "breakout"})
	require.NoError(t, err)
	_, err = svc.RecordExecution(domain.ExecutionRecord{SignalID: "sig-1", Symbol: "600000.SH", ExecutionDate: day(2026, 1, 6), Side: domain.ActionBuy, Quantity: 100, Price: 12.1, Fee: 5})
	require.NoError(t, err)

	_, err = svc.RecordSignal(domain.SignalRecord{SignalID: "sig-2", Symbol: "600000.SH", StrategyName: "trend_following", TradeDate: day(2026, 1, 7), Action: domain.ActionSell, Confidence: 0.6, Reason: "target hit"})
	require.NoError(t, err)
	// sig-2 is never executed.

	report, err := svc.Report("600000.SH", nil, nil, 500)
	require.NoError(t, err)
	require.Len(t, report.Items, 2)
	require.InDelta(t, 0.5, report.FollowRate, 1e-9)
	require.InDelta(t, 1.0, report.AvgDelayDays, 1e-9)
}

func TestReportFollowedRequiresMatchingActionAndPositiveQuantity(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.RecordSignal(domain.SignalRecord{SignalID: "sig-3", Symbol: "600001.SH", StrategyName: "trend_following", TradeDate: day(2026, 1, 5), Action: domain.ActionBuy, Confidence: 0.8, Reason: "breakout"})
	require.NoError(t, err)
	_, err = svc.RecordExecution(domain.ExecutionRecord{SignalID: "sig-3", Symbol: "600001.SH", ExecutionDate: day(2026, 1, 5), Side: domain.ActionSell, Quantity: 50, Price: 9.0})
	require.NoError(t, err)

	report, err := svc.Report("600001.SH", nil, nil, 500)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	require.False(t, report.Items[0].Followed)
}
