package marketdata

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name       string
	bars       map[string][]domain.Bar
	calendar   []domain.TradeCalendarDay
	failBars   bool
	barsCalled int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	f.barsCalled++
	if f.failBars {
		return nil, fmt.Errorf("simulated provider outage")
	}
	var out []domain.Bar
	for _, b := range f.bars[symbol] {
		if !b.TradeDate.Before(start) && !b.TradeDate.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeProvider) GetTradeCalendar(ctx context.Context, start, end time.Time) ([]domain.TradeCalendarDay, error) {
	var out []domain.TradeCalendarDay
	for _, d := range f.calendar {
		if !d.TradeDate.Before(start) && !d.TradeDate.After(end) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeProvider) GetSecurityStatus(ctx context.Context, symbol string) (domain.SecurityStatus, error) {
	return domain.SecurityStatus{Symbol: symbol}, nil
}

func (f *fakeProvider) GetIntradayBars(ctx context.Context, symbol string, start, end time.Time, interval domain.IntradayInterval) ([]domain.IntradayBar, error) {
	return nil, ErrUnsupported
}
func (f *fakeProvider) GetFundamentalSnapshot(ctx context.Context, symbol string, asOf time.Time) (map[string]any, error) {
	return nil, ErrUnsupported
}
func (f *fakeProvider) GetCorporateEventSnapshot(ctx context.Context, symbol string, asOf time.Time, lookbackDays int) (map[string]any, error) {
	return nil, ErrUnsupported
}
func (f *fakeProvider) GetMarketStyleSnapshot(ctx context.Context, asOf time.Time, lookbackDays int) (map[string]any, error) {
	return nil, ErrUnsupported
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

// TestFallbackReturnsFromSecondProvider covers the case where the primary
// provider fails and the composite falls through to the backup.
func TestFallbackReturnsFromSecondProvider(t *testing.T) {
	primary := &fakeProvider{name: "primary", failBars: true}
	backup := &fakeProvider{name: "backup", bars: map[string][]domain.Bar{
		"600000.SH": {{TradeDate: day(2026, 1, 5), Symbol: "600000.SH", Close: 10.5}},
	}}

	composite, err := NewCompositeProvider(primary, backup)
	require.NoError(t, err)

	source, bars, err := composite.GetDailyBarsWithSource(context.Background(), "600000.SH", day(2026, 1, 5), day(2026, 1, 5))
	require.NoError(t, err)
	require.Equal(t, "backup", source)
	require.Len(t, bars, 1)
	require.Equal(t, 1, primary.barsCalled)
}

func TestAllProvidersFailReturnsJoinedError(t *testing.T) {
	a := &fakeProvider{name: "a", failBars: true}
	b := &fakeProvider{name: "b", failBars: true}
	composite, err := NewCompositeProvider(a, b)
	require.NoError(t, err)

	_, _, err = composite.GetDailyBarsWithSource(context.Background(), "600000.SH", day(2026, 1, 5), day(2026, 1, 5))
	require.Error(t, err)
	require.Contains(t, err.Error(), "a:")
	require.Contains(t, err.Error(), "b:")
}
