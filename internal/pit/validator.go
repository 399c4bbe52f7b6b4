// Package pit implements generic anti-lookahead guard rails for tabular
// market/event datasets: monotonic/duplicate trade_date checks,
// future-row detection against an as-of date, and event join ordering
// checks (effective_time/used_in_trade_time vs event_time).
package pit

import (
	"fmt"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
)

type Issue struct {
	IssueType string
	Severity  domain.Severity
	Message   string
}

type Result struct {
	Symbol   string
	Provider string
	Passed   bool
	Issues   []Issue
}

type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

// ValidateBars checks trade_date validity, monotonicity, duplicates, and
// (when asOf is non-nil) that no row lies in the future relative to asOf.
func (v *Validator) ValidateBars(symbol, provider string, bars []domain.Bar, asOf *time.Time) Result {
	if len(bars) == 0 {
		return Result{Symbol: symbol, Provider: provider, Passed: false, Issues: []Issue{
			{IssueType: "empty_dataset", Severity: domain.SeverityCritical, Message: "Dataset is empty."},
		}}
	}

	var issues []Issue

	dup := 0
	seen := map[string]int{}
	for _, b := range bars {
		seen[b.TradeDate.Format("2006-01-02")]++
	}
	for _, n := range seen {
		if n > 1 {
			dup += n - 1
		}
	}
	if dup > 0 {
		issues = append(issues, Issue{
			IssueType: "duplicate_trade_date", Severity: domain.SeverityWarning,
			Message: fmt.Sprintf("Found %d duplicated trade_date rows.", dup),
		})
	}

	if len(bars) >= 2 {
		monotonic := true
		for i := 1; i < len(bars); i++ {
			if bars[i].TradeDate.Before(bars[i-1].TradeDate) {
				monotonic = false
				break
			}
		}
		if !monotonic {
			issues = append(issues, Issue{
				IssueType: "non_monotonic_trade_date", Severity: domain.SeverityCritical,
				Message: "trade_date is not monotonic increasing.",
			})
		}
	}

	if asOf != nil {
		future := 0
		for _, b := range bars {
			if b.TradeDate.After(*asOf) {
				future++
			}
		}
		if future > 0 {
			issues = append(issues, Issue{
				IssueType: "future_row_detected", Severity: domain.SeverityCritical,
				Message: fmt.Sprintf("Found %d rows after as_of date %s.", future, asOf.Format("2006-01-02")),
			})
		}
	}

	invalidAnnounce := 0
	for _, b := range bars {
		if b.AnnounceDate != nil && b.AnnounceDate.After(b.TradeDate) {
			invalidAnnounce++
		}
	}
	if invalidAnnounce > 0 {
		issues = append(issues, Issue{
			IssueType: "announce_after_trade_date", Severity: domain.SeverityCritical,
			Message: fmt.Sprintf("Found %d rows where announce_date > trade_date.", invalidAnnounce),
		})
	}

	return Result{Symbol: symbol, Provider: provider, Passed: !anyCritical(issues), Issues: issues}
}

// EventRow is one event-join row to PIT-check.
type EventRow struct {
	EventID        string
	EventTime      time.Time
	EffectiveTime  *time.Time
	UsedInTradeTime *time.Time
}

// ValidateEventRows checks that effective_time and used_in_trade_time never
// precede event_time, and that used_in_trade_time never precedes
// effective_time (a softer WARNING-level check).
func (v *Validator) ValidateEventRows(symbol string, rows []EventRow) Result {
	var issues []Issue
	for _, row := range rows {
		if row.EffectiveTime != nil && row.EffectiveTime.Before(row.EventTime) {
			issues = append(issues, Issue{
				IssueType: "effective_before_event", Severity: domain.SeverityCritical,
				Message: fmt.Sprintf("event_id=%s: effective_time earlier than event_time.", row.EventID),
			})
		}
		if row.UsedInTradeTime != nil && row.UsedInTradeTime.Before(row.EventTime) {
			issues = append(issues, Issue{
				IssueType: "used_before_event", Severity: domain.SeverityCritical,
				Message: fmt.Sprintf("event_id=%s: used_in_trade_time earlier than event_time.", row.EventID),
			})
		}
		if row.EffectiveTime != nil && row.UsedInTradeTime != nil && row.UsedInTradeTime.Before(*row.EffectiveTime) {
			issues = append(issues, Issue{
				IssueType: "used_before_effective", Severity: domain.SeverityWarning,
				Message: fmt.Sprintf("event_id=%s: used_in_trade_time earlier than effective_time.", row.EventID),
			})
		}
	}
	return Result{Symbol: symbol, Provider: "event_rows", Passed: !anyCritical(issues), Issues: issues}
}

func anyCritical(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == domain.SeverityCritical {
			return true
		}
	}
	return false
}
