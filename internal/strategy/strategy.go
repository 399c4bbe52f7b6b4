// Package strategy turns a symbol's factor vector into trade candidates.
// StrategyRegistry provides the name->Strategy lookup every caller in the
// pipeline and HTTP layers uses via registry.get(name).
package strategy

import (
	"fmt"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/factor"
)

// Candidate is one generated recommendation before risk evaluation.
// Mutable by design: trading.ApplySmallCapitalOverrides downgrades Action
// and rewrites Reason/SuggestedPosition/Metadata in place.
type Candidate struct {
	Symbol            string
	TradeDate         time.Time
	Action            domain.SignalAction
	Confidence        float64
	Reason            string
	StrategyName      string
	SuggestedPosition *float64
	Metadata          map[string]any
}

// Info describes a registered strategy for discovery/governance purposes.
type Info struct {
	Name         string
	Title        string
	Description  string
	Frequency    string
	ParamsSchema map[string]string
}

// Context bundles runtime parameters (post-autotune merge) and market-wide
// state (fee schedule, small-capital config) a strategy may need.
type Context struct {
	Params      map[string]any
	MarketState map[string]any
}

// Strategy generates candidates from a symbol's computed factor timeline.
type Strategy interface {
	Info() Info
	Generate(features []factor.Row, ctx Context) []Candidate
}

// Registry looks strategies up by name, matching StrategyRegistry.get.
type Registry struct {
	byName map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Strategy{}}
}

func (r *Registry) Register(s Strategy) {
	r.byName[s.Info().Name] = s
}

func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return s, nil
}

func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.byName))
	for _, s := range r.byName {
		out = append(out, s.Info())
	}
	return out
}

func floatParam(params map[string]any, key string, fallback float64) float64 {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return fallback
}

func intParam(params map[string]any, key string, fallback int) int {
	return int(floatParam(params, key, float64(fallback)))
}
