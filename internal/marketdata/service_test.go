package marketdata

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aristath/trading-assistant/internal/database"
	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:marketcache_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileCache,
		Name:    "market_cache_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cache, err := NewCache(db)
	require.NoError(t, err)
	return cache
}

func businessCalendar(start, end time.Time) []domain.TradeCalendarDay {
	var out []domain.TradeCalendarDay
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, domain.TradeCalendarDay{TradeDate: d, IsOpen: true})
	}
	return out
}

// TestCacheGapFillFetchesOnlyMissingRange covers the case where a
// partially-cached window triggers exactly one fetch for the missing
// range, and a repeat call hits the cache without calling the provider
// again.
func TestCacheGapFillFetchesOnlyMissingRange(t *testing.T) {
	cache := newTestCache(t)

	start := day(2026, 1, 5)
	end := day(2026, 1, 9)

	p := &fakeProvider{
		name:     "tushare",
		calendar: businessCalendar(start, end),
		bars: map[string][]domain.Bar{
			"600000.SH": {
				{TradeDate: day(2026, 1, 5), Symbol: "600000.SH", Close: 10},
				{TradeDate: day(2026, 1, 6), Symbol: "600000.SH", Close: 11},
				{TradeDate: day(2026, 1, 7), Symbol: "600000.SH", Close: 12},
				{TradeDate: day(2026, 1, 8), Symbol: "600000.SH", Close: 13},
				{TradeDate: day(2026, 1, 9), Symbol: "600000.SH", Close: 14},
			},
		},
	}
	composite, err := NewCompositeProvider(p)
	require.NoError(t, err)
	svc := NewService(composite, cache)

	// Pre-seed the cache with only the first two business days.
	require.NoError(t, cache.UpsertDailyBars("tushare", "600000.SH", p.bars["600000.SH"][:2]))

	bars, err := svc.GetDailyBars(context.Background(), "tushare", "600000.SH", start, end)
	require.NoError(t, err)
	require.Len(t, bars, 5)
	require.Equal(t, 1, p.barsCalled)

	// A repeat call for the same fully-covered window must not refetch.
	bars2, err := svc.GetDailyBars(context.Background(), "tushare", "600000.SH", start, end)
	require.NoError(t, err)
	require.Len(t, bars2, 5)
	require.Equal(t, 1, p.barsCalled)
}

func TestMergeRangesCombinesAdjacentSpans(t *testing.T) {
	ranges := []dateRange{
		{Start: day(2026, 1, 1), End: day(2026, 1, 2)},
		{Start: day(2026, 1, 3), End: day(2026, 1, 4)},
		{Start: day(2026, 2, 1), End: day(2026, 2, 2)},
	}
	merged := mergeRanges(ranges)
	require.Len(t, merged, 2)
	require.Equal(t, day(2026, 1, 1), merged[0].Start)
	require.Equal(t, day(2026, 1, 4), merged[0].End)
}
