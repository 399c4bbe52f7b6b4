// Package dataquality implements the per-field data quality scoring pass:
// null/invalid/non-positive field scoring, OHLC sanity, and duplicate
// trade_date detection.
package dataquality

import (
	"fmt"

	"github.com/aristath/trading-assistant/internal/domain"
)

// Issue is one detected problem at a given severity.
type Issue struct {
	IssueType string
	Severity  domain.Severity
	Message   string
}

// Report is the full set of issues and scores for one symbol's dataset.
type Report struct {
	Symbol       string
	Provider     string
	RowCount     int
	Issues       []Issue
	Passed       bool
	FieldScores  map[string]float64
	OverallScore float64
}

// numericFields are the OHLCV-style columns scored for nulls, non-numeric
// values, and non-positive values, matching the original's field set.
var numericFields = map[string]bool{
	"open": true, "high": true, "low": true, "close": true, "volume": true, "amount": true,
}

// Request names which fields must be present and scored.
type Request struct {
	Symbol         string
	RequiredFields []string
}

type Service struct{}

func NewService() *Service { return &Service{} }

// Evaluate scores bars field-by-field. An empty dataset is an automatic
// CRITICAL failure with every required field scored zero.
func (s *Service) Evaluate(req Request, bars []domain.Bar, provider string) Report {
	if len(bars) == 0 {
		scores := make(map[string]float64, len(req.RequiredFields))
		for _, f := range req.RequiredFields {
			scores[f] = 0.0
		}
		return Report{
			Symbol: req.Symbol, Provider: provider, RowCount: 0,
			Issues: []Issue{{
				IssueType: "empty_dataset", Severity: domain.SeverityCritical,
				Message: "No rows returned for requested date range.",
			}},
			Passed: false, FieldScores: scores, OverallScore: 0.0,
		}
	}

	var issues []Issue
	fieldScores := make(map[string]float64, len(req.RequiredFields))
	rowCount := len(bars)

	for _, field := range req.RequiredFields {
		if !hasField(field) {
			fieldScores[field] = 0.0
			continue
		}
		score := 1.0
		nullCount := countNulls(bars, field)
		nullRatio := float64(nullCount) / float64(rowCount)
		score -= minF(1.0, nullRatio)

		if numericFields[field] {
			invalidCount := countInvalidNumeric(bars, field)
			invalidRatio := float64(invalidCount) / float64(rowCount)
			score -= 0.5 * minF(1.0, invalidRatio)

			nonPositiveCount := countNonPositive(bars, field)
			nonPositiveRatio := float64(nonPositiveCount) / float64(rowCount)
			score -= 0.3 * minF(1.0, nonPositiveRatio)
		}
		fieldScores[field] = roundTo(maxF(0.0, minF(1.0, score)), 6)
	}

	if dup := countDuplicateTradeDates(bars); dup > 0 {
		issues = append(issues, Issue{
			IssueType: "duplicate_trade_date", Severity: domain.SeverityWarning,
			Message: fmt.Sprintf("Found %d duplicated trade_date rows.", dup),
		})
	}

	for field := range numericFields {
		if n := countNulls(bars, field); n > 0 {
			issues = append(issues, Issue{
				IssueType: "null_" + field, Severity: domain.SeverityWarning,
				Message: fmt.Sprintf("Column %s has %d null values.", field, n),
			})
		}
	}

	if invalidHL := countHighLessThanLow(bars); invalidHL > 0 {
		issues = append(issues, Issue{
			IssueType: "invalid_high_low", Severity: domain.SeverityCritical,
			Message: fmt.Sprintf("Found %d rows with high < low.", invalidHL),
		})
	}

	passed := true
	for _, issue := range issues {
		if issue.Severity == domain.SeverityCritical {
			passed = false
			break
		}
	}

	var sum float64
	for _, v := range fieldScores {
		sum += v
	}
	overall := 0.0
	if len(fieldScores) > 0 {
		overall = sum / float64(len(fieldScores))
	}

	return Report{
		Symbol: req.Symbol, Provider: provider, RowCount: rowCount,
		Issues: issues, Passed: passed, FieldScores: fieldScores,
		OverallScore: roundTo(overall, 6),
	}
}

// hasField reports whether field is one of the bar columns this service
// knows how to score. Every domain.Bar always carries the same columns, so
// this only guards against callers asking for an unknown field name.
func hasField(field string) bool {
	switch field {
	case "open", "high", "low", "close", "volume", "amount", "trade_date", "symbol":
		return true
	default:
		return false
	}
}

// countNulls is always zero: domain.Bar stores OHLCV as plain float64
// (no nullable columns survive deserialization from a Provider), so the
// null-ratio term of the score is structurally always satisfied in Go.
// Kept as a named step so the scoring formula stays legible against the
// original's per-term breakdown.
func countNulls(bars []domain.Bar, field string) int { return 0 }

// countInvalidNumeric is always zero for the same reason as countNulls:
// there is no non-numeric representation for an already-typed float64.
func countInvalidNumeric(bars []domain.Bar, field string) int { return 0 }

func countNonPositive(bars []domain.Bar, field string) int {
	count := 0
	for _, b := range bars {
		v, ok := fieldValue(b, field)
		if !ok {
			continue
		}
		if v <= 0 {
			count++
		}
	}
	return count
}

func fieldValue(b domain.Bar, field string) (float64, bool) {
	switch field {
	case "open":
		return b.Open, true
	case "high":
		return b.High, true
	case "low":
		return b.Low, true
	case "close":
		return b.Close, true
	case "volume":
		return b.Volume, true
	case "amount":
		return b.Amount, true
	default:
		return 0, false
	}
}

func countDuplicateTradeDates(bars []domain.Bar) int {
	seen := map[string]int{}
	for _, b := range bars {
		seen[b.TradeDate.Format("2006-01-02")]++
	}
	dup := 0
	for _, n := range seen {
		if n > 1 {
			dup += n - 1
		}
	}
	return dup
}

func countHighLessThanLow(bars []domain.Bar) int {
	count := 0
	for _, b := range bars {
		if b.High < b.Low {
			count++
		}
	}
	return count
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func roundTo(v float64, decimals int) float64 {
	scale := 1.0
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	return float64(int64(v*scale+sign(v)*0.5)) / scale
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
