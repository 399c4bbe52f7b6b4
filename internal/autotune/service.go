package autotune

import "github.com/aristath/trading-assistant/internal/domain"

// Service resolves runtime strategy parameters against stored profiles
// and rollout rules (the grid-search optimization run itself is out of
// scope — see store.go's package doc).
type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

// ResolveRuntimeParams applies a three-step merge: rollout-rule gate,
// then active-profile lookup (symbol-scope preferred over global), then
// explicit params overwrite profile params.
func (s *Service) ResolveRuntimeParams(strategyName, symbol string, explicit map[string]any, useProfile bool) (map[string]any, *domain.AutotuneProfile, error) {
	if explicit == nil {
		explicit = map[string]any{}
	}
	if !useProfile {
		return cloneParams(explicit), nil, nil
	}

	rule, err := s.store.GetRolloutRule(strategyName, symbol)
	if err != nil {
		return nil, nil, err
	}
	if rule != nil && !rule.Enabled {
		return cloneParams(explicit), nil, nil
	}

	profile, err := s.store.GetActiveProfile(strategyName, symbol)
	if err != nil {
		return nil, nil, err
	}
	if profile == nil {
		return cloneParams(explicit), nil, nil
	}

	merged := cloneParams(profile.StrategyParams)
	for k, v := range explicit {
		merged[k] = v
	}
	return merged, profile, nil
}

func (s *Service) UpsertActiveProfile(p domain.AutotuneProfile) (domain.AutotuneProfile, error) {
	return s.store.UpsertActiveProfile(p)
}

func (s *Service) GetProfile(id int64) (*domain.AutotuneProfile, error) {
	return s.store.GetProfile(id)
}

func (s *Service) ListProfiles(strategyName, symbol string, activeOnly bool, limit int) ([]domain.AutotuneProfile, error) {
	return s.store.ListProfiles(strategyName, symbol, activeOnly, limit)
}

func (s *Service) GetActiveProfile(strategyName, symbol string) (*domain.AutotuneProfile, error) {
	return s.store.GetActiveProfile(strategyName, symbol)
}

func (s *Service) ActivateProfile(id int64) (*domain.AutotuneProfile, error) {
	return s.store.ActivateProfile(id)
}

func (s *Service) RollbackActiveProfile(strategyName string, scope domain.AutotuneScope, symbol string) (*domain.AutotuneProfile, error) {
	return s.store.RollbackActiveProfile(strategyName, scope, symbol)
}

func (s *Service) UpsertRolloutRule(strategyName, symbol string, enabled bool, note string) (domain.AutotuneRolloutRule, error) {
	return s.store.UpsertRolloutRule(strategyName, symbol, enabled, note)
}

func (s *Service) ListRolloutRules(strategyName, symbol string, hasSymbolFilter bool, limit int) ([]domain.AutotuneRolloutRule, error) {
	return s.store.ListRolloutRules(strategyName, symbol, hasSymbolFilter, limit)
}

func (s *Service) DeleteRolloutRule(id int64) (bool, error) {
	return s.store.DeleteRolloutRule(id)
}

func cloneParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
