package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/trading-assistant/internal/job"
	"github.com/aristath/trading-assistant/internal/pipeline"
)

// buildJobHandlers registers every background job type this service
// knows how to run, keyed by JobDefinition.JobType, matching the handler-
// registry pattern internal/job's own tests exercise.
func buildJobHandlers(c *Container) map[string]job.Handler {
	return map[string]job.Handler{
		"pipeline_run": pipelineRunHandler(c.Pipeline),
	}
}

func pipelineRunHandler(runner *pipeline.Runner) job.Handler {
	return func(payload map[string]any) (map[string]any, error) {
		req, err := parseRunRequest(payload)
		if err != nil {
			return nil, err
		}
		result, err := runner.Run(context.Background(), fmt.Sprintf("job-%d", time.Now().UnixNano()), req)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"total_symbols":  result.TotalSymbols,
			"total_signals":  result.TotalSignals,
			"total_blocked":  result.TotalBlocked,
			"total_warnings": result.TotalWarnings,
		}, nil
	}
}

func parseRunRequest(payload map[string]any) (pipeline.RunRequest, error) {
	strategyName, _ := payload["strategy_name"].(string)
	if strategyName == "" {
		return pipeline.RunRequest{}, fmt.Errorf("pipeline_run payload missing strategy_name")
	}
	rawSymbols, _ := payload["symbols"].([]any)
	symbols := make([]string, 0, len(rawSymbols))
	for _, s := range rawSymbols {
		if str, ok := s.(string); ok {
			symbols = append(symbols, str)
		}
	}
	if len(symbols) == 0 {
		return pipeline.RunRequest{}, fmt.Errorf("pipeline_run payload missing symbols")
	}

	start, err := parsePayloadDate(payload, "start_date")
	if err != nil {
		return pipeline.RunRequest{}, err
	}
	end, err := parsePayloadDate(payload, "end_date")
	if err != nil {
		return pipeline.RunRequest{}, err
	}

	return pipeline.RunRequest{
		StrategyName: strategyName,
		Symbols:      symbols,
		StartDate:    start,
		EndDate:      end,
	}, nil
}

func parsePayloadDate(payload map[string]any, key string) (time.Time, error) {
	raw, _ := payload[key].(string)
	if raw == "" {
		return time.Time{}, fmt.Errorf("pipeline_run payload missing %s", key)
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("pipeline_run payload %s: %w", key, err)
	}
	return t, nil
}
