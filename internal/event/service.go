package event

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

func (s *Service) RegisterSource(source domain.EventSource) (int64, error) {
	return s.store.RegisterSource(source)
}

type IngestResult struct {
	SourceName string
	Inserted   int
	Updated    int
	Total      int
	Errors     []string
}

func (s *Service) Ingest(sourceName string, events []RecordCreate) (IngestResult, error) {
	if src, err := s.store.GetSource(sourceName); err != nil {
		return IngestResult{}, err
	} else if src == nil {
		return IngestResult{}, fmt.Errorf("event source %q not found", sourceName)
	}
	inserted, updated, errs := s.store.IngestBatch(sourceName, events)
	return IngestResult{SourceName: sourceName, Inserted: inserted, Updated: updated, Total: len(events), Errors: errs}, nil
}

func (s *Service) ListEvents(f ListFilter) ([]Record, error) {
	return s.store.ListEvents(f)
}

// JoinRow is one row to PIT-validate against the event store.
type JoinRow struct {
	Symbol          string
	SourceName      string
	EventID         string
	UsedInTradeTime time.Time
}

type JoinIssue struct {
	RowIndex  int
	EventID   string
	IssueType string
	Severity  domain.Severity
	Message   string
}

type JoinResult struct {
	Passed     bool
	CheckedRows int
	Issues     []JoinIssue
}

// ValidateJoin resolves each row to a stored event (by source+id, or by
// event_id alone when ambiguity can be broken by symbol) and checks that
// used_in_trade_time never precedes publish_time or effective_time.
func (s *Service) ValidateJoin(rows []JoinRow, strictSymbolMatch bool) (JoinResult, error) {
	var issues []JoinIssue

	for idx, row := range rows {
		var ev *Record
		var err error

		if row.SourceName != "" {
			ev, err = s.store.GetEvent(row.SourceName, row.EventID)
			if err != nil {
				return JoinResult{}, err
			}
			if ev == nil {
				issues = append(issues, JoinIssue{
					RowIndex: idx, EventID: row.EventID, IssueType: "event_not_found", Severity: domain.SeverityCritical,
					Message: fmt.Sprintf("source=%s, event_id=%s not found.", row.SourceName, row.EventID),
				})
				continue
			}
		} else {
			candidates, err := s.store.FindEventsByEventID(row.EventID, 20)
			if err != nil {
				return JoinResult{}, err
			}
			switch {
			case len(candidates) == 0:
				issues = append(issues, JoinIssue{
					RowIndex: idx, EventID: row.EventID, IssueType: "event_not_found", Severity: domain.SeverityCritical,
					Message: fmt.Sprintf("event_id=%s not found.", row.EventID),
				})
				continue
			case len(candidates) == 1:
				ev = &candidates[0]
			default:
				var symbolMatched []Record
				for _, c := range candidates {
					if c.Symbol == row.Symbol {
						symbolMatched = append(symbolMatched, c)
					}
				}
				if len(symbolMatched) == 1 {
					ev = &symbolMatched[0]
					issues = append(issues, JoinIssue{
						RowIndex: idx, EventID: row.EventID, IssueType: "event_id_ambiguous_resolved",
						Severity: domain.SeverityWarning, Message: "event_id resolved by symbol match across multiple sources.",
					})
				} else {
					issues = append(issues, JoinIssue{
						RowIndex: idx, EventID: row.EventID, IssueType: "event_id_ambiguous",
						Severity: domain.SeverityCritical, Message: "event_id matched multiple records; provide source_name.",
					})
					continue
				}
			}
		}

		if strictSymbolMatch && ev.Symbol != row.Symbol {
			issues = append(issues, JoinIssue{
				RowIndex: idx, EventID: row.EventID, IssueType: "symbol_mismatch", Severity: domain.SeverityCritical,
				Message: fmt.Sprintf("row symbol=%s, event symbol=%s.", row.Symbol, ev.Symbol),
			})
			continue
		}

		usedTime := row.UsedInTradeTime.UTC()
		publishTime := ev.PublishTime.UTC()
		if publishTime.After(usedTime) {
			issues = append(issues, JoinIssue{
				RowIndex: idx, EventID: row.EventID, IssueType: "used_before_publish", Severity: domain.SeverityCritical,
				Message: fmt.Sprintf("used_in_trade_time=%s before publish_time=%s.", usedTime.Format(time.RFC3339), publishTime.Format(time.RFC3339)),
			})
		}

		if ev.EffectiveTime != nil {
			effectiveTime := ev.EffectiveTime.UTC()
			if effectiveTime.After(usedTime) {
				issues = append(issues, JoinIssue{
					RowIndex: idx, EventID: row.EventID, IssueType: "used_before_effective", Severity: domain.SeverityCritical,
					Message: fmt.Sprintf("used_in_trade_time=%s before effective_time=%s.", usedTime.Format(time.RFC3339), effectiveTime.Format(time.RFC3339)),
				})
			}
			if effectiveTime.Before(publishTime) {
				issues = append(issues, JoinIssue{
					RowIndex: idx, EventID: row.EventID, IssueType: "effective_before_publish", Severity: domain.SeverityWarning,
					Message: fmt.Sprintf("effective_time=%s earlier than publish_time=%s.", effectiveTime.Format(time.RFC3339), publishTime.Format(time.RFC3339)),
				})
			}
		}
	}

	passed := true
	for _, i := range issues {
		if i.Severity == domain.SeverityCritical {
			passed = false
			break
		}
	}
	return JoinResult{Passed: passed, CheckedRows: len(rows), Issues: issues}, nil
}

// FeaturePoint is one day's decayed event-score aggregate.
type FeaturePoint struct {
	TradeDate           time.Time
	EventScore          float64
	NegativeEventScore  float64
	EventCount          int
	PositiveEventCount  int
	NegativeEventCount  int
}

// BuildFeaturePoints loads events in [min(tradeDates)-lookbackDays,
// max(tradeDates)] and aggregates an exponential time-decayed score per
// trade date, matching EventService.build_feature_points /
// _build_points_from_events. At most the 5000 most recent events in that
// window (the store's largest page) are loaded.
func (s *Service) BuildFeaturePoints(symbol string, tradeDates []time.Time, lookbackDays int, decayHalfLifeDays float64) ([]FeaturePoint, error) {
	if len(tradeDates) == 0 {
		return nil, nil
	}
	unique := uniqueSortedDates(tradeDates)
	minDate, maxDate := unique[0], unique[len(unique)-1]

	startTime := minDate.AddDate(0, 0, -lookbackDays)
	endTime := time.Date(maxDate.Year(), maxDate.Month(), maxDate.Day(), 23, 59, 59, 999999999, time.UTC)

	events, err := s.store.ListEvents(ListFilter{Symbol: symbol, StartTime: &startTime, EndTime: &endTime, Limit: 5000})
	if err != nil {
		return nil, err
	}
	return buildPointsFromEvents(unique, events, lookbackDays, decayHalfLifeDays), nil
}

func buildPointsFromEvents(tradeDates []time.Time, events []Record, lookbackDays int, decayHalfLifeDays float64) []FeaturePoint {
	if decayHalfLifeDays <= 0 {
		decayHalfLifeDays = 1.0
	}
	decayLambda := math.Log(2) / decayHalfLifeDays

	points := make([]FeaturePoint, 0, len(tradeDates))
	for _, tradeDay := range tradeDates {
		asOf := time.Date(tradeDay.Year(), tradeDay.Month(), tradeDay.Day(), 23, 59, 59, 999999999, time.UTC)
		windowStart := asOf.AddDate(0, 0, -lookbackDays)

		var positive, negative float64
		var eventCount, positiveCount, negativeCount int
		for _, ev := range events {
			publishTime := ev.PublishTime.UTC()
			if publishTime.Before(windowStart) || publishTime.After(asOf) {
				continue
			}
			eventCount++
			ageDays := math.Max(0, asOf.Sub(publishTime).Hours()/24.0)
			decay := math.Exp(-decayLambda * ageDays)
			base := clamp01(ev.Score) * clamp01(ev.Confidence) * decay
			switch ev.Polarity {
			case domain.PolarityPositive:
				positive += base
				positiveCount++
			case domain.PolarityNegative:
				negative += base
				negativeCount++
			}
		}
		points = append(points, FeaturePoint{
			TradeDate: tradeDay, EventScore: roundTo(math.Min(1.0, positive), 6),
			NegativeEventScore: roundTo(math.Min(1.0, negative), 6),
			EventCount: eventCount, PositiveEventCount: positiveCount, NegativeEventCount: negativeCount,
		})
	}
	return points
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}

func uniqueSortedDates(dates []time.Time) []time.Time {
	seen := map[string]time.Time{}
	for _, d := range dates {
		key := d.Format("2006-01-02")
		if _, ok := seen[key]; !ok {
			seen[key] = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
