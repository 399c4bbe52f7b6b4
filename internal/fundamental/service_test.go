package fundamental

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/marketdata"
	"github.com/stretchr/testify/require"
)

type fakeFundamentalProvider struct {
	name      string
	snapshots map[string]map[string]any // keyed by as-of date
}

func (f *fakeFundamentalProvider) Name() string { return f.name }
func (f *fakeFundamentalProvider) GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	return nil, marketdata.ErrUnsupported
}
func (f *fakeFundamentalProvider) GetTradeCalendar(ctx context.Context, start, end time.Time) ([]domain.TradeCalendarDay, error) {
	return nil, marketdata.ErrUnsupported
}
func (f *fakeFundamentalProvider) GetSecurityStatus(ctx context.Context, symbol string) (domain.SecurityStatus, error) {
	return domain.SecurityStatus{}, marketdata.ErrUnsupported
}
func (f *fakeFundamentalProvider) GetIntradayBars(ctx context.Context, symbol string, start, end time.Time, interval domain.IntradayInterval) ([]domain.IntradayBar, error) {
	return nil, marketdata.ErrUnsupported
}
func (f *fakeFundamentalProvider) GetFundamentalSnapshot(ctx context.Context, symbol string, asOf time.Time) (map[string]any, error) {
	snap, ok := f.snapshots[asOf.Format("2006-01-02")]
	if !ok {
		return nil, fmt.Errorf("no snapshot for %s", asOf.Format("2006-01-02"))
	}
	return snap, nil
}
func (f *fakeFundamentalProvider) GetCorporateEventSnapshot(ctx context.Context, symbol string, asOf time.Time, lookbackDays int) (map[string]any, error) {
	return nil, marketdata.ErrUnsupported
}
func (f *fakeFundamentalProvider) GetMarketStyleSnapshot(ctx context.Context, asOf time.Time, lookbackDays int) (map[string]any, error) {
	return nil, marketdata.ErrUnsupported
}

func TestEnrichBarsPointInTimeBackwardFillsAnchorSnapshot(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	p := &fakeFundamentalProvider{
		name: "tushare",
		snapshots: map[string]map[string]any{
			start.Format("2006-01-02"): {
				"roe": 0.12, "report_date": "2025-12-31", "publish_date": "2026-01-02",
			},
		},
	}
	composite, err := marketdata.NewCompositeProvider(p)
	require.NoError(t, err)
	svc := NewService(composite)

	bars := []domain.Bar{
		{TradeDate: start},
		{TradeDate: start.AddDate(0, 0, 1)},
		{TradeDate: start.AddDate(0, 0, 2)},
	}

	enriched, info := svc.EnrichBarsPointInTime(context.Background(), "600000.SH", bars, 540, FrequencyMonthly)
	require.True(t, info.Available)
	require.Len(t, enriched, 3)
	for _, row := range enriched {
		require.True(t, row.Available)
		require.NotNil(t, row.Metrics.ROE)
		require.InDelta(t, 0.12, *row.Metrics.ROE, 1e-9)
		require.True(t, row.PITOk)
	}
}

func TestEnrichBarsPointInTimeEmptyBars(t *testing.T) {
	composite, err := marketdata.NewCompositeProvider(&fakeFundamentalProvider{name: "tushare", snapshots: map[string]map[string]any{}})
	require.NoError(t, err)
	svc := NewService(composite)

	enriched, info := svc.EnrichBarsPointInTime(context.Background(), "600000.SH", nil, 540, FrequencyMonthly)
	require.False(t, info.Available)
	require.Equal(t, "empty_bars", info.Reason)
	require.Empty(t, enriched)
}
