package marketdata

import (
	"context"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
)

// Service is the point-in-time local bar cache layered over a
// CompositeProvider, with cache-aware daily and intraday bar paths.
type Service struct {
	provider *CompositeProvider
	cache    *Cache
}

func NewService(provider *CompositeProvider, cache *Cache) *Service {
	return &Service{provider: provider, cache: cache}
}

// expectedTradeDates returns every open trading day in [start,end]
// according to the trade calendar, ascending.
func expectedTradeDates(ctx context.Context, provider *CompositeProvider, start, end time.Time) ([]time.Time, error) {
	days, err := provider.GetTradeCalendar(ctx, start, end)
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for _, d := range days {
		if d.IsOpen {
			out = append(out, d.TradeDate)
		}
	}
	return out, nil
}

// GetDailyBars returns daily bars for [start,end], filling any cache gaps
// (outside-window and inside-window) from the composite provider first.
func (s *Service) GetDailyBars(ctx context.Context, providerName, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var missing []dateRange

	minCached, maxCached, count, ok := s.cache.Coverage(providerName, symbol)
	if !ok {
		missing = append(missing, dateRange{Start: start, End: end})
	} else {
		if start.Before(minCached) {
			missing = append(missing, dateRange{Start: start, End: minCached.AddDate(0, 0, -1)})
		}
		if end.After(maxCached) {
			missing = append(missing, dateRange{Start: maxCached.AddDate(0, 0, 1), End: end})
		}

		innerStart, innerEnd := start, end
		if innerStart.Before(minCached) {
			innerStart = minCached
		}
		if innerEnd.After(maxCached) {
			innerEnd = maxCached
		}
		if !innerStart.After(innerEnd) {
			expected, err := expectedTradeDates(ctx, s.provider, innerStart, innerEnd)
			if err == nil && len(expected) > 0 {
				cached, err := s.cache.LoadDailyBars(providerName, symbol, innerStart, innerEnd)
				if err == nil {
					cachedDates := make(map[string]bool, len(cached))
					for _, b := range cached {
						cachedDates[b.TradeDate.Format(dateLayout)] = true
					}
					missing = append(missing, missingRangesFromExpectedDates(expected, cachedDates)...)
				}
			}
		}
		_ = count
	}

	for _, r := range mergeRanges(missing) {
		fetched, err := s.fetchFrom(ctx, providerName, symbol, r.Start, r.End)
		if err == nil && len(fetched) > 0 {
			_ = s.cache.UpsertDailyBars(providerName, symbol, fetched)
		}
	}

	bars, err := s.cache.LoadDailyBars(providerName, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		fetched, err := s.fetchFrom(ctx, providerName, symbol, start, end)
		if err != nil {
			return nil, err
		}
		if len(fetched) > 0 {
			_ = s.cache.UpsertDailyBars(providerName, symbol, fetched)
		}
		return s.cache.LoadDailyBars(providerName, symbol, start, end)
	}
	return bars, nil
}

func (s *Service) fetchFrom(ctx context.Context, providerName, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if providerName != "" {
		if p, ok := s.provider.GetProviderByName(providerName); ok {
			return p.GetDailyBars(ctx, symbol, start, end)
		}
	}
	_, bars, err := s.provider.GetDailyBarsWithSource(ctx, symbol, start, end)
	return bars, err
}

// GetIntradayBars refetches whenever the cached window doesn't fully cover
// [start,end], matching the original's simpler intraday-cache rule.
func (s *Service) GetIntradayBars(ctx context.Context, providerName, symbol string, start, end time.Time, interval domain.IntradayInterval) ([]domain.IntradayBar, error) {
	minCached, maxCached, _, ok := s.cache.IntradayCoverage(providerName, symbol, interval)
	needsFetch := !ok || start.Before(minCached) || end.After(maxCached)

	if needsFetch {
		var bars []domain.IntradayBar
		var err error
		if providerName != "" {
			if p, pOk := s.provider.GetProviderByName(providerName); pOk {
				bars, err = p.GetIntradayBars(ctx, symbol, start, end, interval)
			}
		}
		if bars == nil && err == nil {
			_, bars, err = s.provider.GetIntradayBarsWithSource(ctx, symbol, start, end, interval)
		}
		if err != nil {
			return nil, err
		}
		if len(bars) > 0 {
			_ = s.cache.UpsertIntradayBars(providerName, symbol, interval, bars)
		}
	}

	bars, err := s.cache.LoadIntradayBars(providerName, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 && !needsFetch {
		_, fetched, err := s.provider.GetIntradayBarsWithSource(ctx, symbol, start, end, interval)
		if err != nil {
			return nil, err
		}
		if len(fetched) > 0 {
			_ = s.cache.UpsertIntradayBars(providerName, symbol, interval, fetched)
		}
		return s.cache.LoadIntradayBars(providerName, symbol, interval, start, end)
	}
	return bars, nil
}
