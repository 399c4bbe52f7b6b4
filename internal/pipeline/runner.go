// Package pipeline orchestrates one daily run across every governance and
// decision module: fetch bars, gate on license/quality/PIT, enrich with
// events and fundamentals, compute factors, resolve autotuned params,
// generate candidates, and risk-check each one into a trade prep sheet.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/trading-assistant/internal/autotune"
	"github.com/aristath/trading-assistant/internal/dataquality"
	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/event"
	"github.com/aristath/trading-assistant/internal/factor"
	"github.com/aristath/trading-assistant/internal/fundamental"
	"github.com/aristath/trading-assistant/internal/license"
	"github.com/aristath/trading-assistant/internal/marketdata"
	"github.com/aristath/trading-assistant/internal/pit"
	"github.com/aristath/trading-assistant/internal/risk"
	"github.com/aristath/trading-assistant/internal/signal"
	"github.com/aristath/trading-assistant/internal/snapshot"
	"github.com/aristath/trading-assistant/internal/strategy"
	"github.com/aristath/trading-assistant/internal/trading"
)

// FeeConfig is the commission/slippage/small-capital schedule every
// candidate's cost and affordability checks are evaluated against.
type FeeConfig struct {
	DefaultCommissionRate         float64
	DefaultSlippageRate           float64
	FeeMinCommissionCNY           float64
	FeeStampDutySellRate          float64
	FeeTransferRate               float64
	SmallCapitalModeEnabled       bool
	SmallCapitalPrincipalCNY      float64
	SmallCapitalCashBufferRatio   float64
	SmallCapitalMinExpectedEdgeBps float64
	SmallCapitalLotSize           int
}

func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		DefaultCommissionRate: 0.0003, DefaultSlippageRate: 0.0005,
		FeeMinCommissionCNY: 5.0, FeeStampDutySellRate: 0.0005, FeeTransferRate: 0.00001,
		SmallCapitalPrincipalCNY: 2000.0, SmallCapitalCashBufferRatio: 0.05,
		SmallCapitalMinExpectedEdgeBps: 45.0, SmallCapitalLotSize: 100,
	}
}

// Runner composes L1-L16 under a single daily request, matching
// DailyPipelineRunner's dependency surface.
type Runner struct {
	Provider        *marketdata.CompositeProvider
	FactorEngine    *factor.Engine
	Registry        *strategy.Registry
	RiskEngine      *risk.Engine
	SignalService   *signal.Service
	QualityService  *dataquality.Service
	PITValidator    *pit.Validator
	Snapshots       *snapshot.Store
	AutotuneService *autotune.Service
	EventService    *event.Service
	LicenseService  *license.Service
	Fundamentals    *fundamental.Service

	EnforceDataLicense bool
	Fees               FeeConfig
}

func NewRunner(
	provider *marketdata.CompositeProvider,
	factorEngine *factor.Engine,
	registry *strategy.Registry,
	riskEngine *risk.Engine,
	signalService *signal.Service,
	qualityService *dataquality.Service,
	pitValidator *pit.Validator,
	snapshots *snapshot.Store,
	fees FeeConfig,
) *Runner {
	return &Runner{
		Provider: provider, FactorEngine: factorEngine, Registry: registry, RiskEngine: riskEngine,
		SignalService: signalService, QualityService: qualityService, PITValidator: pitValidator,
		Snapshots: snapshots, Fees: fees,
	}
}

// RunRequest is one daily-pipeline invocation across a symbol universe.
type RunRequest struct {
	StrategyName              string
	Symbols                   []string
	StartDate                 time.Time
	EndDate                   time.Time
	StrategyParams            map[string]any
	UseAutotuneProfile        bool
	IndustryMap                map[string]string
	EnableEventEnrichment      bool
	EventLookbackDays          int
	EventDecayHalfLifeDays     float64
	EnableFundamentalEnrichment bool
	FundamentalMaxStalenessDays int
	EnableSmallCapitalMode     bool
	SmallCapitalPrincipal      *float64
	SmallCapitalMinExpectedEdgeBps float64
}

// SymbolResult summarizes one symbol's pass through the pipeline.
type SymbolResult struct {
	Symbol              string
	Provider            string
	SignalCount         int
	BlockedCount        int
	WarningCount        int
	QualityPassed       bool
	SnapshotID          int64
	EventRowsUsed       int
	FundamentalAvailable bool
	FundamentalScore     *float64
	FundamentalSource    string
	SmallCapitalBlocked  bool
	SmallCapitalNote     string
	Sheets               []signal.TradePrepSheet
}

// RunResult is the outcome of one Run call across the requested symbols.
type RunResult struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	StrategyName string
	Results      []SymbolResult
	TotalSymbols int
	TotalSignals int
	TotalBlocked int
	TotalWarnings int
}

// Run executes the daily pipeline for every requested symbol, matching
// DailyPipelineRunner.run's per-symbol control flow and early-exit points.
func (r *Runner) Run(ctx context.Context, runID string, req RunRequest) (RunResult, error) {
	startedAt := time.Now().UTC()
	strat, err := r.Registry.Get(req.StrategyName)
	if err != nil {
		return RunResult{}, err
	}
	useEventEnrichment := req.EnableEventEnrichment || req.StrategyName == "event_driven"

	results := make([]SymbolResult, 0, len(req.Symbols))
	for _, symbol := range req.Symbols {
		result := r.runSymbol(ctx, strat, symbol, req, useEventEnrichment)
		results = append(results, result)
	}

	finishedAt := time.Now().UTC()
	out := RunResult{RunID: runID, StartedAt: startedAt, FinishedAt: finishedAt, StrategyName: req.StrategyName, Results: results, TotalSymbols: len(results)}
	for _, res := range results {
		out.TotalSignals += res.SignalCount
		out.TotalBlocked += res.BlockedCount
		out.TotalWarnings += res.WarningCount
	}
	return out, nil
}

func (r *Runner) runSymbol(ctx context.Context, strat strategy.Strategy, symbol string, req RunRequest, useEventEnrichment bool) SymbolResult {
	usedProvider, bars, err := r.Provider.GetDailyBarsWithSource(ctx, symbol, req.StartDate, req.EndDate)
	if err != nil {
		return SymbolResult{Symbol: symbol, Provider: "N/A", QualityPassed: false}
	}

	if r.LicenseService != nil {
		check, _ := r.LicenseService.Check(license.CheckRequest{
			DatasetName: "daily_bars", Provider: usedProvider, RequestedUsage: "internal_research",
			ExportRequested: false, ExpectedRows: len(bars), AsOf: req.EndDate,
		})
		if r.EnforceDataLicense && !check.Allowed {
			return SymbolResult{Symbol: symbol, Provider: usedProvider, QualityPassed: false}
		}
	}

	quality := r.QualityService.Evaluate(dataquality.Request{Symbol: symbol}, bars, usedProvider)
	pitResult := r.PITValidator.ValidateBars(symbol, usedProvider, bars, &req.EndDate)

	snapshotID, _ := r.Snapshots.Register(snapshot.RegisterRequest{
		DatasetName: "daily_bars", Symbol: symbol, StartDate: req.StartDate, EndDate: req.EndDate,
		Provider: usedProvider, RowCount: len(bars), ContentHash: contentHash(bars),
	})

	if len(bars) == 0 || !quality.Passed || !pitResult.Passed {
		return SymbolResult{
			Symbol: symbol, Provider: usedProvider, QualityPassed: quality.Passed && pitResult.Passed,
			SnapshotID: snapshotID,
		}
	}

	isST, isSuspended := bars[len(bars)-1].IsST, bars[len(bars)-1].IsSuspended
	if status, err := r.Provider.GetSecurityStatus(ctx, symbol); err == nil {
		isST, isSuspended = status.IsST, status.IsSuspended
	}
	for i := range bars {
		bars[i].IsST = isST
		bars[i].IsSuspended = isSuspended
	}

	eventRowsUsed := 0
	eventScoreByDate := map[string]float64{}
	if useEventEnrichment && r.EventService != nil {
		tradeDates := make([]time.Time, len(bars))
		for i, b := range bars {
			tradeDates[i] = b.TradeDate
		}
		points, err := r.EventService.BuildFeaturePoints(symbol, tradeDates, req.EventLookbackDays, req.EventDecayHalfLifeDays)
		if err == nil {
			eventRowsUsed = len(points)
			for _, p := range points {
				eventScoreByDate[dateKey(p.TradeDate)] = p.EventScore
			}
		}
	}

	var enriched []fundamental.EnrichedBar
	fundamentalAvailable := false
	fundamentalSource := ""
	if req.EnableFundamentalEnrichment && r.Fundamentals != nil {
		var info fundamental.EnrichmentInfo
		enriched, info = r.Fundamentals.EnrichBars(ctx, symbol, bars, req.EndDate, req.FundamentalMaxStalenessDays)
		fundamentalAvailable = info.Available
		if len(info.Sources) > 0 {
			fundamentalSource = info.Sources[len(info.Sources)-1]
		}
	}

	features := r.FactorEngine.Compute(bars, enriched, nil)
	if len(features) == 0 {
		return SymbolResult{Symbol: symbol, Provider: usedProvider, QualityPassed: true, SnapshotID: snapshotID}
	}

	smallCapitalMode := r.Fees.SmallCapitalModeEnabled || req.EnableSmallCapitalMode
	smallCapitalPrincipal := r.Fees.SmallCapitalPrincipalCNY
	if req.SmallCapitalPrincipal != nil {
		smallCapitalPrincipal = *req.SmallCapitalPrincipal
	}
	smallLot := r.Fees.SmallCapitalLotSize
	if smallLot < 1 {
		smallLot = 1
	}

	strategyParams := req.StrategyParams
	if r.AutotuneService != nil {
		resolved, _, err := r.AutotuneService.ResolveRuntimeParams(req.StrategyName, symbol, req.StrategyParams, req.UseAutotuneProfile)
		if err == nil {
			strategyParams = resolved
		}
	}

	candidates := strat.Generate(features, strategy.Context{
		Params: strategyParams,
		MarketState: map[string]any{
			"enable_small_capital_mode":     smallCapitalMode,
			"small_capital_principal":       smallCapitalPrincipal,
			"small_capital_lot_size":        smallLot,
			"small_capital_cash_buffer_ratio": r.Fees.SmallCapitalCashBufferRatio,
			"commission_rate":               r.Fees.DefaultCommissionRate,
			"min_commission_cny":            r.Fees.FeeMinCommissionCNY,
			"transfer_fee_rate":             r.Fees.FeeTransferRate,
			"stamp_duty_sell_rate":          r.Fees.FeeStampDutySellRate,
			"slippage_rate":                 r.Fees.DefaultSlippageRate,
		},
	})

	latest := features[len(features)-1]
	requiredCash := trading.RequiredCashForMinLot(trading.RequiredCashParams{
		Price: latest.Close, LotSize: smallLot, CommissionRate: r.Fees.DefaultCommissionRate,
		MinCommission: r.Fees.FeeMinCommissionCNY, TransferFeeRate: r.Fees.FeeTransferRate,
	})
	roundtripCostBps := trading.EstimateRoundtripCostBps(trading.RoundtripCostParams{
		Price: latest.Close, LotSize: smallLot, CommissionRate: r.Fees.DefaultCommissionRate,
		MinCommission: r.Fees.FeeMinCommissionCNY, TransferFeeRate: r.Fees.FeeTransferRate,
		StampDutySellRate: r.Fees.FeeStampDutySellRate, SlippageRate: r.Fees.DefaultSlippageRate,
	})

	minExpectedEdgeBps := r.Fees.SmallCapitalMinExpectedEdgeBps
	if req.SmallCapitalMinExpectedEdgeBps > 0 {
		minExpectedEdgeBps = req.SmallCapitalMinExpectedEdgeBps
	}

	blockedCount, warningCount := 0, 0
	smallCapitalNote := ""
	smallCapitalBlocked := false
	sheets := make([]signal.TradePrepSheet, 0, len(candidates))

	var fundamentalScorePtr *float64
	if latest.FundamentalAvailable {
		v := latest.FundamentalScore
		fundamentalScorePtr = &v
	}
	var fundamentalPITOk *bool
	var fundamentalStaleDays *int
	if len(enriched) > 0 {
		last := enriched[len(enriched)-1]
		ok := last.PITOk
		fundamentalPITOk = &ok
		if last.StaleDays >= 0 {
			days := last.StaleDays
			fundamentalStaleDays = &days
		}
	}
	var industry string
	if req.IndustryMap != nil {
		industry = req.IndustryMap[symbol]
	}

	maxPositions := 3
	if v, ok := strategyParams["max_positions"]; ok {
		if f, ok := v.(float64); ok {
			maxPositions = int(f)
		}
	}

	for i := range candidates {
		candidate := candidates[i]
		trading.ApplySmallCapitalOverrides(&candidate, trading.SmallCapitalOverrideParams{
			EnableSmallCapitalMode: smallCapitalMode, Principal: smallCapitalPrincipal, LatestPrice: latest.Close,
			LotSize: smallLot, CommissionRate: r.Fees.DefaultCommissionRate, MinCommission: r.Fees.FeeMinCommissionCNY,
			TransferFeeRate: r.Fees.FeeTransferRate, CashBufferRatio: r.Fees.SmallCapitalCashBufferRatio,
			MaxSinglePosition: 0.50, MaxPositions: maxPositions,
		})

		var eventScorePtr *float64
		if es, ok := eventScoreByDate[dateKey(latest.TradeDate)]; ok {
			eventScorePtr = &es
		}
		expectedEdgeBps := trading.InferExpectedEdgeBps(trading.ExpectedEdgeParams{
			Confidence: candidate.Confidence, Momentum20: latest.Momentum20,
			EventScore: eventScorePtr, FundamentalScore: fundamentalScorePtr,
		})

		riskReq := risk.CheckRequest{
			Signal:         risk.SignalInput{Action: candidate.Action, SuggestedPosition: candidate.SuggestedPosition, Metadata: candidate.Metadata},
			IsST:           isST,
			IsSuspended:    isSuspended,
			AvgTurnover20D: floatPtr(latest.Turnover20),
			SymbolIndustry: industry,
			FundamentalScore:     fundamentalScorePtr,
			FundamentalPITOk:     fundamentalPITOk,
			FundamentalStaleDays: fundamentalStaleDays,
			TushareAdvancedAvailable:     latest.TushareAdvancedAvailable,
			TushareDisclosureRiskScore:   latest.TushareDisclosureRiskScore,
			TushareOverhangRiskScore:     latest.TushareOverhangRiskScore,
			TushareForecastPchgMid:       latest.TushareForecastPchgMid,
			TusharePledgeRatio:           latest.TusharePledgeRatio,
			TushareShareFloatUnlockRatio: latest.TushareShareFloatUnlockRatio,
			EnableSmallCapitalMode:       smallCapitalMode,
			SmallCapitalPrincipal:        &smallCapitalPrincipal,
			AvailableCash:                &smallCapitalPrincipal,
			SmallCapitalCashBufferRatio:  r.Fees.SmallCapitalCashBufferRatio,
			RequiredCashForMinLot:        &requiredCash,
			EstimatedRoundtripCostBps:    &roundtripCostBps,
			ExpectedEdgeBps:              &expectedEdgeBps,
			MinExpectedEdgeBps:           &minExpectedEdgeBps,
		}
		result := r.RiskEngine.Evaluate(riskReq)
		sheets = append(sheets, r.SignalService.ToTradePrepSheet(candidate, result))

		for _, hit := range result.Hits {
			if hit.RuleName != "small_capital_tradability" {
				continue
			}
			if smallCapitalNote == "" {
				smallCapitalNote = hit.Message
			}
			if !hit.Passed && hit.Level == domain.SeverityCritical {
				smallCapitalBlocked = true
			}
		}
		if result.Blocked {
			blockedCount++
		} else if result.Level == domain.SeverityWarning {
			warningCount++
		}
	}

	return SymbolResult{
		Symbol: symbol, Provider: usedProvider, SignalCount: len(candidates),
		BlockedCount: blockedCount, WarningCount: warningCount, QualityPassed: true,
		SnapshotID: snapshotID, EventRowsUsed: eventRowsUsed,
		FundamentalAvailable: fundamentalAvailable, FundamentalScore: fundamentalScorePtr,
		FundamentalSource: fundamentalSource, SmallCapitalBlocked: smallCapitalBlocked,
		SmallCapitalNote: smallCapitalNote, Sheets: sheets,
	}
}

func floatPtr(v float64) *float64 { return &v }

func dateKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// contentHash derives a stable digest of the pulled bar range.
func contentHash(bars []domain.Bar) string {
	var b strings.Builder
	for _, bar := range bars {
		fmt.Fprintf(&b, "%s|%.6f|%.6f|%.6f|%.6f|%.2f|%.2f\n",
			bar.TradeDate.UTC().Format(time.RFC3339), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.Amount)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
