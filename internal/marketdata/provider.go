// Package marketdata implements the MarketDataProvider capability
// contract, the ordered-failover CompositeProvider, and the
// point-in-time local cache.
package marketdata

import (
	"context"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
)

// Provider is the capability interface every market-data adapter
// implements. A provider that doesn't support one of the optional methods
// (intraday bars, fundamentals, corporate events, market style) returns
// ErrUnsupported; CompositeProvider treats that the same as any other
// per-provider failure, matching the original's except-Exception fallback.
type Provider interface {
	Name() string
	GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
	GetTradeCalendar(ctx context.Context, start, end time.Time) ([]domain.TradeCalendarDay, error)
	GetSecurityStatus(ctx context.Context, symbol string) (domain.SecurityStatus, error)

	GetIntradayBars(ctx context.Context, symbol string, start, end time.Time, interval domain.IntradayInterval) ([]domain.IntradayBar, error)
	GetFundamentalSnapshot(ctx context.Context, symbol string, asOf time.Time) (map[string]any, error)
	GetCorporateEventSnapshot(ctx context.Context, symbol string, asOf time.Time, lookbackDays int) (map[string]any, error)
	GetMarketStyleSnapshot(ctx context.Context, asOf time.Time, lookbackDays int) (map[string]any, error)
}
