package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
)

// CompositeProvider tries its configured providers in order for every
// operation, falling through to the next on error.
type CompositeProvider struct {
	providers []Provider
}

func NewCompositeProvider(providers ...Provider) (*CompositeProvider, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("composite provider requires at least one provider")
	}
	return &CompositeProvider{providers: providers}, nil
}

func (c *CompositeProvider) ListProviderNames() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

func (c *CompositeProvider) GetProviderByName(name string) (Provider, bool) {
	for _, p := range c.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// callWithFallback tries fn against each provider in order, returning the
// first success. Every attempt's error (including ErrUnsupported) counts
// as a per-provider failure; if all fail a *ProviderError is returned
// joining every provider's reason.
func callWithFallback[T any](providers []Provider, operation string, fn func(Provider) (T, error)) (string, T, error) {
	var zero T
	var reasons []string
	for _, p := range providers {
		result, err := fn(p)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %s", p.Name(), err.Error()))
			continue
		}
		return p.Name(), result, nil
	}
	return "", zero, newProviderError(operation, reasons)
}

func (c *CompositeProvider) GetDailyBarsWithSource(ctx context.Context, symbol string, start, end time.Time) (string, []domain.Bar, error) {
	return callWithFallback(c.providers, "get_daily_bars", func(p Provider) ([]domain.Bar, error) {
		bars, err := p.GetDailyBars(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("empty result")
		}
		return bars, nil
	})
}

func (c *CompositeProvider) GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	_, bars, err := c.GetDailyBarsWithSource(ctx, symbol, start, end)
	return bars, err
}

func (c *CompositeProvider) GetTradeCalendarWithSource(ctx context.Context, start, end time.Time) (string, []domain.TradeCalendarDay, error) {
	return callWithFallback(c.providers, "get_trade_calendar", func(p Provider) ([]domain.TradeCalendarDay, error) {
		days, err := p.GetTradeCalendar(ctx, start, end)
		if err != nil {
			return nil, err
		}
		if len(days) == 0 {
			return nil, fmt.Errorf("empty result")
		}
		return days, nil
	})
}

func (c *CompositeProvider) GetTradeCalendar(ctx context.Context, start, end time.Time) ([]domain.TradeCalendarDay, error) {
	_, days, err := c.GetTradeCalendarWithSource(ctx, start, end)
	return days, err
}

func (c *CompositeProvider) GetSecurityStatus(ctx context.Context, symbol string) (domain.SecurityStatus, error) {
	_, status, err := callWithFallback(c.providers, "get_security_status", func(p Provider) (domain.SecurityStatus, error) {
		return p.GetSecurityStatus(ctx, symbol)
	})
	return status, err
}

func (c *CompositeProvider) GetIntradayBarsWithSource(ctx context.Context, symbol string, start, end time.Time, interval domain.IntradayInterval) (string, []domain.IntradayBar, error) {
	return callWithFallback(c.providers, "get_intraday_bars", func(p Provider) ([]domain.IntradayBar, error) {
		bars, err := p.GetIntradayBars(ctx, symbol, start, end, interval)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("empty result")
		}
		return bars, nil
	})
}

func (c *CompositeProvider) GetFundamentalSnapshotWithSource(ctx context.Context, symbol string, asOf time.Time) (string, map[string]any, error) {
	return callWithFallback(c.providers, "get_fundamental_snapshot", func(p Provider) (map[string]any, error) {
		snap, err := p.GetFundamentalSnapshot(ctx, symbol, asOf)
		if err != nil {
			return nil, err
		}
		if len(snap) == 0 {
			return nil, fmt.Errorf("empty result")
		}
		return snap, nil
	})
}

func (c *CompositeProvider) GetCorporateEventSnapshotWithSource(ctx context.Context, symbol string, asOf time.Time, lookbackDays int) (string, map[string]any, error) {
	return callWithFallback(c.providers, "get_corporate_event_snapshot", func(p Provider) (map[string]any, error) {
		snap, err := p.GetCorporateEventSnapshot(ctx, symbol, asOf, lookbackDays)
		if err != nil {
			return nil, err
		}
		if len(snap) == 0 {
			return nil, fmt.Errorf("empty result")
		}
		return snap, nil
	})
}

func (c *CompositeProvider) GetMarketStyleSnapshotWithSource(ctx context.Context, asOf time.Time, lookbackDays int) (string, map[string]any, error) {
	return callWithFallback(c.providers, "get_market_style_snapshot", func(p Provider) (map[string]any, error) {
		snap, err := p.GetMarketStyleSnapshot(ctx, asOf, lookbackDays)
		if err != nil {
			return nil, err
		}
		if len(snap) == 0 {
			return nil, fmt.Errorf("empty result")
		}
		return snap, nil
	})
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t == "1" || t == "true" || t == "True" || t == "TRUE"
	default:
		return false
	}
}
