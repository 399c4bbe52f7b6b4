package dataquality

import (
	"testing"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestEvaluateEmptyDatasetIsCriticalFailure(t *testing.T) {
	svc := NewService()
	report := svc.Evaluate(Request{Symbol: "600000.SH", RequiredFields: []string{"open", "close"}}, nil, "tushare")
	require.False(t, report.Passed)
	require.Equal(t, 0, report.RowCount)
	require.Equal(t, domain.SeverityCritical, report.Issues[0].Severity)
	require.Equal(t, 0.0, report.FieldScores["open"])
}

func TestEvaluateDetectsDuplicateTradeDateAndBadHighLow(t *testing.T) {
	svc := NewService()
	date := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	bars := []domain.Bar{
		{TradeDate: date, Open: 10, High: 9, Low: 11, Close: 10, Volume: 100, Amount: 1000},
		{TradeDate: date, Open: 10, High: 12, Low: 9, Close: 10, Volume: 100, Amount: 1000},
	}
	report := svc.Evaluate(Request{Symbol: "600000.SH", RequiredFields: []string{"open", "high", "low", "close"}}, bars, "tushare")

	var types []string
	for _, issue := range report.Issues {
		types = append(types, issue.IssueType)
	}
	require.Contains(t, types, "duplicate_trade_date")
	require.Contains(t, types, "invalid_high_low")
	require.False(t, report.Passed) // invalid_high_low is CRITICAL
}

func TestEvaluateScoresNonPositiveValues(t *testing.T) {
	svc := NewService()
	bars := []domain.Bar{
		{TradeDate: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), Open: 0, High: 10, Low: 9, Close: 10, Volume: 100, Amount: 1000},
	}
	report := svc.Evaluate(Request{Symbol: "600000.SH", RequiredFields: []string{"open"}}, bars, "tushare")
	require.Less(t, report.FieldScores["open"], 1.0)
}
