// Package fundamental implements point-in-time fundamental enrichment:
// sampling fundamental snapshots at anchor dates along a bar timeline
// and backward-filling them onto each trading day so that no row uses
// information unavailable as of its own date, plus the legacy
// single-snapshot enrichment path.
package fundamental

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/marketdata"
)

// AnchorFrequency controls how often a fundamental snapshot is sampled
// along the bar timeline for PIT enrichment.
type AnchorFrequency string

const (
	FrequencyDaily   AnchorFrequency = "day"
	FrequencyWeekly  AnchorFrequency = "week"
	FrequencyMonthly AnchorFrequency = "month"
	FrequencyQuarter AnchorFrequency = "quarter"
)

// Metrics holds the fundamental fields the enrichment pipeline tracks.
type Metrics struct {
	ROE, RevenueYoY, NetProfitYoY, GrossMargin, DebtToAsset, OCFToProfit, EPS *float64
}

func (m Metrics) anyPresent() bool {
	return m.ROE != nil || m.RevenueYoY != nil || m.NetProfitYoY != nil ||
		m.GrossMargin != nil || m.DebtToAsset != nil || m.OCFToProfit != nil || m.EPS != nil
}

// EnrichedBar pairs a bar with its point-in-time fundamental snapshot.
type EnrichedBar struct {
	Bar         domain.Bar
	Metrics     Metrics
	Available   bool
	PITOk       bool
	StaleDays   int
	IsStale     bool
	Source      string
	ReportDate  *time.Time
	PublishDate *time.Time
}

// EnrichmentInfo carries diagnostics about an enrichment pass, returned
// alongside the enriched rows.
type EnrichmentInfo struct {
	Available           bool
	Reason              string
	Mode                string
	AnchorFrequency     string
	StartDate, EndDate   time.Time
	Anchors             int
	SuccessfulSnapshots int
	Sources             []string
	Errors              []string
}

type Service struct {
	provider *marketdata.CompositeProvider
}

func NewService(provider *marketdata.CompositeProvider) *Service {
	return &Service{provider: provider}
}

func injectDefaults(bars []domain.Bar) []EnrichedBar {
	out := make([]EnrichedBar, len(bars))
	for i, b := range bars {
		out[i] = EnrichedBar{Bar: b, Available: false, PITOk: true, StaleDays: -1, IsStale: false, Source: "N/A"}
	}
	return out
}

// EnrichBarsPointInTime samples fundamental snapshots at anchor dates and
// backward-fills (merge-asof) them onto each bar, preventing look-ahead.
func (s *Service) EnrichBarsPointInTime(ctx context.Context, symbol string, bars []domain.Bar, maxStalenessDays int, frequency AnchorFrequency) ([]EnrichedBar, EnrichmentInfo) {
	if len(bars) == 0 {
		return injectDefaults(bars), EnrichmentInfo{Available: false, Reason: "empty_bars"}
	}
	sorted := append([]domain.Bar(nil), bars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TradeDate.Before(sorted[j].TradeDate) })
	startDate := sorted[0].TradeDate
	endDate := sorted[len(sorted)-1].TradeDate

	anchors := buildAnchorDates(sorted, frequency)
	anchors = appendAnchor(anchors, startDate)

	type snapshot struct {
		asOf        time.Time
		source      string
		reportDate  *time.Time
		publishDate *time.Time
		metrics     Metrics
	}
	var snapshots []snapshot
	var errs []string
	sourceSet := map[string]bool{}

	for _, anchor := range anchors {
		source, raw, err := s.provider.GetFundamentalSnapshotWithSource(ctx, symbol, anchor)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %s", anchor.Format("2006-01-02"), err.Error()))
			continue
		}
		if len(raw) == 0 {
			errs = append(errs, fmt.Sprintf("%s: empty_snapshot (%s)", anchor.Format("2006-01-02"), source))
			continue
		}
		metrics := metricsFromSnapshot(raw)
		if !metrics.anyPresent() {
			errs = append(errs, fmt.Sprintf("%s: all_metrics_missing (%s)", anchor.Format("2006-01-02"), source))
			continue
		}
		snapshots = append(snapshots, snapshot{
			asOf: anchor, source: source,
			reportDate: toDate(raw["report_date"]), publishDate: toDate(raw["publish_date"]),
			metrics: metrics,
		})
		sourceSet[source] = true
	}

	if len(snapshots) == 0 {
		info := EnrichmentInfo{
			Available: false, Reason: "no_valid_snapshots", AnchorFrequency: string(frequency),
			StartDate: startDate, EndDate: endDate, Errors: capErrors(errs),
		}
		return injectDefaults(bars), info
	}

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].asOf.Before(snapshots[j].asOf) })

	out := make([]EnrichedBar, len(sorted))
	for i, bar := range sorted {
		// merge-asof backward: the latest snapshot at or before bar.TradeDate.
		idx := -1
		for j, snap := range snapshots {
			if !snap.asOf.After(bar.TradeDate) {
				idx = j
			} else {
				break
			}
		}
		if idx < 0 {
			out[i] = EnrichedBar{Bar: bar, Available: false, PITOk: true, StaleDays: -1, Source: "N/A"}
			continue
		}
		snap := snapshots[idx]
		staleAnchor := snap.reportDate
		if staleAnchor == nil {
			staleAnchor = snap.publishDate
		}
		staleDays := -1
		if staleAnchor != nil {
			staleDays = int(bar.TradeDate.Sub(*staleAnchor).Hours() / 24)
		}
		pitOK := snap.publishDate == nil || !snap.publishDate.After(bar.TradeDate)
		out[i] = EnrichedBar{
			Bar: bar, Metrics: snap.metrics, Available: true,
			PITOk: pitOK, StaleDays: staleDays, IsStale: staleDays > maxStalenessDays,
			Source: snap.source, ReportDate: snap.reportDate, PublishDate: snap.publishDate,
		}
	}

	sourceNames := make([]string, 0, len(sourceSet))
	for name := range sourceSet {
		sourceNames = append(sourceNames, name)
	}
	sort.Strings(sourceNames)

	return out, EnrichmentInfo{
		Available: true, Mode: "pit", AnchorFrequency: string(frequency),
		StartDate: startDate, EndDate: endDate, Anchors: len(anchors),
		SuccessfulSnapshots: len(snapshots), Sources: sourceNames, Errors: capErrors(errs),
	}
}

// EnrichBars is the legacy single-snapshot path: one fundamental snapshot
// as of asOf is injected into every row. Kept for callers that only need a
// current-view enrichment rather than a PIT research timeline.
func (s *Service) EnrichBars(ctx context.Context, symbol string, bars []domain.Bar, asOf time.Time, maxStalenessDays int) ([]EnrichedBar, EnrichmentInfo) {
	if len(bars) == 0 {
		return injectDefaults(bars), EnrichmentInfo{Available: false, Reason: "empty_bars"}
	}
	source, raw, err := s.provider.GetFundamentalSnapshotWithSource(ctx, symbol, asOf)
	if err != nil {
		return injectDefaults(bars), EnrichmentInfo{Available: false, Reason: err.Error()}
	}
	if len(raw) == 0 {
		return injectDefaults(bars), EnrichmentInfo{Available: false, Reason: "empty_snapshot"}
	}

	reportDate := toDate(raw["report_date"])
	publishDate := toDate(raw["publish_date"])
	pitOK := publishDate == nil || !publishDate.After(asOf)
	staleAnchor := reportDate
	if staleAnchor == nil {
		staleAnchor = publishDate
	}
	staleDays := -1
	if staleAnchor != nil {
		staleDays = int(asOf.Sub(*staleAnchor).Hours() / 24)
	}
	isStale := staleDays > 0 && staleDays > maxStalenessDays

	metrics := metricsFromSnapshot(raw)
	if !metrics.anyPresent() {
		return injectDefaults(bars), EnrichmentInfo{Available: false, Reason: "all_metrics_missing"}
	}

	out := make([]EnrichedBar, len(bars))
	for i, b := range bars {
		out[i] = EnrichedBar{
			Bar: b, Metrics: metrics, Available: true, PITOk: pitOK,
			StaleDays: staleDays, IsStale: isStale, Source: source,
			ReportDate: reportDate, PublishDate: publishDate,
		}
	}
	return out, EnrichmentInfo{Available: true}
}

func metricsFromSnapshot(raw map[string]any) Metrics {
	return Metrics{
		ROE:          toFloat(raw["roe"]),
		RevenueYoY:   toFloat(raw["revenue_yoy"]),
		NetProfitYoY: toFloat(raw["net_profit_yoy"]),
		GrossMargin:  toFloat(raw["gross_margin"]),
		DebtToAsset:  toFloat(raw["debt_to_asset"]),
		OCFToProfit:  toFloat(raw["ocf_to_profit"]),
		EPS:          toFloat(raw["eps"]),
	}
}

func toFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case float32:
		f := float64(t)
		return &f
	case int:
		f := float64(t)
		return &f
	case int64:
		f := float64(t)
		return &f
	default:
		return nil
	}
}

func toDate(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case string:
		if parsed, err := time.Parse("2006-01-02", t); err == nil {
			return &parsed
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return &parsed
		}
		return nil
	default:
		return nil
	}
}

func appendAnchor(anchors []time.Time, d time.Time) []time.Time {
	set := map[string]bool{}
	for _, a := range anchors {
		set[a.Format("2006-01-02")] = true
	}
	if !set[d.Format("2006-01-02")] {
		anchors = append(anchors, d)
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i].Before(anchors[j]) })
	return anchors
}

// buildAnchorDates groups sorted bar dates into daily/weekly/monthly/
// quarterly buckets and returns the last trade date in each bucket.
func buildAnchorDates(sortedBars []domain.Bar, frequency AnchorFrequency) []time.Time {
	switch frequency {
	case FrequencyDaily:
		seen := map[string]bool{}
		var out []time.Time
		for _, b := range sortedBars {
			key := b.TradeDate.Format("2006-01-02")
			if !seen[key] {
				seen[key] = true
				out = append(out, b.TradeDate)
			}
		}
		return out
	case FrequencyWeekly:
		return groupLastByKey(sortedBars, func(d time.Time) string {
			year, week := d.ISOWeek()
			return fmt.Sprintf("%d-%02d", year, week)
		})
	case FrequencyQuarter:
		return groupLastByKey(sortedBars, func(d time.Time) string {
			return fmt.Sprintf("%d-Q%d", d.Year(), (int(d.Month())-1)/3+1)
		})
	default: // monthly
		return groupLastByKey(sortedBars, func(d time.Time) string {
			return fmt.Sprintf("%d-%02d", d.Year(), int(d.Month()))
		})
	}
}

func groupLastByKey(bars []domain.Bar, keyFn func(time.Time) string) []time.Time {
	last := map[string]time.Time{}
	var order []string
	for _, b := range bars {
		key := keyFn(b.TradeDate)
		if _, ok := last[key]; !ok {
			order = append(order, key)
		}
		if existing, ok := last[key]; !ok || b.TradeDate.After(existing) {
			last[key] = b.TradeDate
		}
	}
	out := make([]time.Time, 0, len(order))
	for _, k := range order {
		out = append(out, last[k])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func capErrors(errs []string) []string {
	if len(errs) > 6 {
		return errs[:6]
	}
	return errs
}
