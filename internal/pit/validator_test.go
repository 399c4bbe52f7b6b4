package pit

import (
	"testing"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, time.UTC) }

func TestValidateBarsDetectsFutureRows(t *testing.T) {
	v := NewValidator()
	asOf := d(2026, 1, 5)
	bars := []domain.Bar{
		{TradeDate: d(2026, 1, 3)},
		{TradeDate: d(2026, 1, 4)},
		{TradeDate: d(2026, 1, 6)}, // after asOf
	}
	result := v.ValidateBars("600000.SH", "tushare", bars, &asOf)
	require.False(t, result.Passed)

	found := false
	for _, i := range result.Issues {
		if i.IssueType == "future_row_detected" {
			found = true
		}
	}
	require.True(t, found)
}

func TestValidateBarsDetectsNonMonotonic(t *testing.T) {
	v := NewValidator()
	bars := []domain.Bar{{TradeDate: d(2026, 1, 5)}, {TradeDate: d(2026, 1, 3)}}
	result := v.ValidateBars("600000.SH", "tushare", bars, nil)
	require.False(t, result.Passed)
}

func TestValidateEventRowsCatchesOrderingViolations(t *testing.T) {
	v := NewValidator()
	eventTime := d(2026, 1, 5)
	earlier := d(2026, 1, 4)
	rows := []EventRow{
		{EventID: "e1", EventTime: eventTime, EffectiveTime: &earlier},
	}
	result := v.ValidateEventRows("600000.SH", rows)
	require.False(t, result.Passed)
	require.Equal(t, "effective_before_event", result.Issues[0].IssueType)
}
