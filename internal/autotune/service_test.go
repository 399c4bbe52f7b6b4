package autotune

import (
	"fmt"
	"testing"

	"github.com/aristath/trading-assistant/internal/database"
	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:autotune_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileLedger,
		Name:    "autotune_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)
	return NewService(store)
}

func TestUpsertActiveProfileDeactivatesPeer(t *testing.T) {
	svc := newTestService(t)
	params := map[string]any{"entry_ma_fast": float64(15)}

	first, err := svc.UpsertActiveProfile(domain.AutotuneProfile{
		StrategyName: "trend_following", Scope: domain.ScopeSymbol, Symbol: "000001",
		StrategyParams: params, ObjectiveScore: 0.5, SourceRunID: "run1",
	})
	require.NoError(t, err)
	require.True(t, first.Active)

	second, err := svc.UpsertActiveProfile(domain.AutotuneProfile{
		StrategyName: "trend_following", Scope: domain.ScopeSymbol, Symbol: "000001",
		StrategyParams: map[string]any{"entry_ma_fast": float64(22)}, ObjectiveScore: 0.7, SourceRunID: "run2",
	})
	require.NoError(t, err)
	require.True(t, second.Active)
	require.Greater(t, second.ID, first.ID)

	reloaded, err := svc.GetProfile(first.ID)
	require.NoError(t, err)
	require.False(t, reloaded.Active)

	active, err := svc.GetActiveProfile("trend_following", "000001")
	require.NoError(t, err)
	require.Equal(t, second.ID, active.ID)
}

func TestRollbackActiveProfileRestoresPrevious(t *testing.T) {
	svc := newTestService(t)
	first, err := svc.UpsertActiveProfile(domain.AutotuneProfile{
		StrategyName: "trend_following", Scope: domain.ScopeSymbol, Symbol: "000001",
		StrategyParams: map[string]any{"entry_ma_fast": float64(15)}, ObjectiveScore: 0.5, SourceRunID: "run1",
	})
	require.NoError(t, err)

	_, err = svc.UpsertActiveProfile(domain.AutotuneProfile{
		StrategyName: "trend_following", Scope: domain.ScopeSymbol, Symbol: "000001",
		StrategyParams: map[string]any{"entry_ma_fast": float64(22)}, ObjectiveScore: 0.7, SourceRunID: "run2",
	})
	require.NoError(t, err)

	rolled, err := svc.RollbackActiveProfile("trend_following", domain.ScopeSymbol, "000001")
	require.NoError(t, err)
	require.NotNil(t, rolled)
	require.Equal(t, first.ID, rolled.ID)

	active, err := svc.GetActiveProfile("trend_following", "000001")
	require.NoError(t, err)
	require.Equal(t, first.ID, active.ID)
}

func TestResolveRuntimeParamsMergesExplicitOverProfile(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.UpsertActiveProfile(domain.AutotuneProfile{
		StrategyName: "trend_following", Scope: domain.ScopeSymbol, Symbol: "000001",
		StrategyParams: map[string]any{"entry_ma_fast": float64(15), "entry_ma_slow": float64(55), "atr_multiplier": float64(1.8)},
		ObjectiveScore: 0.7, SourceRunID: "run1",
	})
	require.NoError(t, err)

	merged, profile, err := svc.ResolveRuntimeParams("trend_following", "000001", map[string]any{"entry_ma_fast": float64(33)}, true)
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.Equal(t, float64(33), merged["entry_ma_fast"])
	require.Contains(t, merged, "entry_ma_slow")
	require.Contains(t, merged, "atr_multiplier")
}

func TestResolveRuntimeParamsDisabledRolloutRuleSkipsProfile(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.UpsertActiveProfile(domain.AutotuneProfile{
		StrategyName: "trend_following", Scope: domain.ScopeGlobal,
		StrategyParams: map[string]any{"entry_ma_fast": float64(15)}, ObjectiveScore: 0.7, SourceRunID: "run1",
	})
	require.NoError(t, err)

	_, err = svc.UpsertRolloutRule("trend_following", "", false, "gray off")
	require.NoError(t, err)

	merged, profile, err := svc.ResolveRuntimeParams("trend_following", "000001", map[string]any{"entry_ma_fast": float64(31)}, true)
	require.NoError(t, err)
	require.Nil(t, profile)
	require.Equal(t, map[string]any{"entry_ma_fast": float64(31)}, merged)
}

func TestResolveRuntimeParamsSymbolRolloutRuleOverridesGlobal(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.UpsertActiveProfile(domain.AutotuneProfile{
		StrategyName: "trend_following", Scope: domain.ScopeGlobal,
		StrategyParams: map[string]any{"entry_ma_fast": float64(15)}, ObjectiveScore: 0.7, SourceRunID: "run1",
	})
	require.NoError(t, err)

	_, err = svc.UpsertRolloutRule("trend_following", "", false, "gray off")
	require.NoError(t, err)
	_, err = svc.UpsertRolloutRule("trend_following", "000001", true, "gray on for this symbol")
	require.NoError(t, err)

	merged, profile, err := svc.ResolveRuntimeParams("trend_following", "000001", map[string]any{"entry_ma_fast": float64(33)}, true)
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.Equal(t, float64(33), merged["entry_ma_fast"])
}
