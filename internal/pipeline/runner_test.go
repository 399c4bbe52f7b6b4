package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aristath/trading-assistant/internal/database"
	"github.com/aristath/trading-assistant/internal/dataquality"
	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/factor"
	"github.com/aristath/trading-assistant/internal/marketdata"
	"github.com/aristath/trading-assistant/internal/pit"
	"github.com/aristath/trading-assistant/internal/risk"
	"github.com/aristath/trading-assistant/internal/signal"
	"github.com/aristath/trading-assistant/internal/snapshot"
	"github.com/aristath/trading-assistant/internal/strategy"
	"github.com/stretchr/testify/require"
)

// fakeProvider feeds a fixed, synthetic uptrending bar series so strategy
// and risk logic can be exercised without a real data source.
type fakeProvider struct {
	bars []domain.Bar
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	return f.bars, nil
}

func (f *fakeProvider) GetTradeCalendar(ctx context.Context, start, end time.Time) ([]domain.TradeCalendarDay, error) {
	return nil, marketdata.ErrUnsupported
}

func (f *fakeProvider) GetSecurityStatus(ctx context.Context, symbol string) (domain.SecurityStatus, error) {
	return domain.SecurityStatus{Symbol: symbol}, nil
}

func (f *fakeProvider) GetIntradayBars(ctx context.Context, symbol string, start, end time.Time, interval domain.IntradayInterval) ([]domain.IntradayBar, error) {
	return nil, marketdata.ErrUnsupported
}

func (f *fakeProvider) GetFundamentalSnapshot(ctx context.Context, symbol string, asOf time.Time) (map[string]any, error) {
	return nil, marketdata.ErrUnsupported
}

func (f *fakeProvider) GetCorporateEventSnapshot(ctx context.Context, symbol string, asOf time.Time, lookbackDays int) (map[string]any, error) {
	return nil, marketdata.ErrUnsupported
}

func (f *fakeProvider) GetMarketStyleSnapshot(ctx context.Context, asOf time.Time, lookbackDays int) (map[string]any, error) {
	return nil, marketdata.ErrUnsupported
}

func uptrendBars(n int) []domain.Bar {
	out := make([]domain.Bar, n)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 10.0
	for i := 0; i < n; i++ {
		price += 0.08
		out[i] = domain.Bar{
			TradeDate: start.AddDate(0, 0, i),
			Symbol:    "600000.SH",
			Open:      price - 0.05, High: price + 0.05, Low: price - 0.1, Close: price,
			Volume: 1_000_000, Amount: price * 1_000_000,
		}
	}
	return out
}

func newTestRunner(t *testing.T, bars []domain.Bar) *Runner {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:pipeline_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileLedger,
		Name:    "pipeline_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	snapshots, err := snapshot.NewStore(db)
	require.NoError(t, err)

	provider, err := marketdata.NewCompositeProvider(&fakeProvider{bars: bars})
	require.NoError(t, err)

	registry := strategy.NewRegistry()
	registry.Register(strategy.NewTrendFollowing())

	riskEngine := risk.NewEngine(risk.DefaultEngineConfig(0.30, 0.20, 0.40, 0.0))

	return NewRunner(
		provider,
		factor.NewEngine(),
		registry,
		riskEngine,
		signal.NewService(),
		dataquality.NewService(),
		pit.NewValidator(),
		snapshots,
		DefaultFeeConfig(),
	)
}

func TestRunProducesTradePrepSheetsForUptrend(t *testing.T) {
	bars := uptrendBars(90)
	runner := newTestRunner(t, bars)

	result, err := runner.Run(context.Background(), "run-1", RunRequest{
		StrategyName: "trend_following",
		Symbols:      []string{"600000.SH"},
		StartDate:    bars[0].TradeDate,
		EndDate:      bars[len(bars)-1].TradeDate,
	})
	require.NoError(t, err)
	require.Equal(t, "run-1", result.RunID)
	require.Len(t, result.Results, 1)

	res := result.Results[0]
	require.True(t, res.QualityPassed)
	require.Equal(t, "fake", res.Provider)
	require.NotZero(t, res.SnapshotID)
	require.NotEmpty(t, res.Sheets)
	require.Equal(t, domain.ActionBuy, res.Sheets[0].Action)
}

func TestRunUnknownStrategyErrors(t *testing.T) {
	runner := newTestRunner(t, uptrendBars(10))
	_, err := runner.Run(context.Background(), "run-2", RunRequest{
		StrategyName: "does_not_exist",
		Symbols:      []string{"600000.SH"},
	})
	require.Error(t, err)
}

func TestRunSmallCapitalModeDowngradesUnaffordableBuy(t *testing.T) {
	bars := uptrendBars(90)
	runner := newTestRunner(t, bars)
	principal := 100.0

	result, err := runner.Run(context.Background(), "run-3", RunRequest{
		StrategyName:               "trend_following",
		Symbols:                    []string{"600000.SH"},
		StartDate:                  bars[0].TradeDate,
		EndDate:                    bars[len(bars)-1].TradeDate,
		EnableSmallCapitalMode:     true,
		SmallCapitalPrincipal:      &principal,
		SmallCapitalMinExpectedEdgeBps: 45,
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)

	res := result.Results[0]
	require.NotEmpty(t, res.Sheets)
	require.Equal(t, domain.ActionWatch, res.Sheets[0].Action)
}
