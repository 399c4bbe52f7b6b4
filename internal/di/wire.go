// Package di wires every database, store, and service into one Container,
// one database per store.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/trading-assistant/internal/alert"
	"github.com/aristath/trading-assistant/internal/audit"
	"github.com/aristath/trading-assistant/internal/autotune"
	"github.com/aristath/trading-assistant/internal/config"
	"github.com/aristath/trading-assistant/internal/database"
	"github.com/aristath/trading-assistant/internal/dataquality"
	"github.com/aristath/trading-assistant/internal/event"
	"github.com/aristath/trading-assistant/internal/factor"
	"github.com/aristath/trading-assistant/internal/fundamental"
	"github.com/aristath/trading-assistant/internal/governance"
	"github.com/aristath/trading-assistant/internal/job"
	"github.com/aristath/trading-assistant/internal/license"
	"github.com/aristath/trading-assistant/internal/marketdata"
	"github.com/aristath/trading-assistant/internal/marketdata/tushare"
	"github.com/aristath/trading-assistant/internal/pipeline"
	"github.com/aristath/trading-assistant/internal/pit"
	"github.com/aristath/trading-assistant/internal/replay"
	"github.com/aristath/trading-assistant/internal/risk"
	"github.com/aristath/trading-assistant/internal/signal"
	"github.com/aristath/trading-assistant/internal/snapshot"
	"github.com/aristath/trading-assistant/internal/strategy"
)

// Container holds every database connection and service this binary
// depends on. Databases are exported so main can defer-close them.
type Container struct {
	AuditDB       *database.DB
	SnapshotDB    *database.DB
	LicenseDB     *database.DB
	EventDB       *database.DB
	ReplayDB      *database.DB
	AlertDB       *database.DB
	JobDB         *database.DB
	StrategyGovDB *database.DB
	AutotuneDB    *database.DB
	MarketCacheDB *database.DB

	License    *license.Service
	Snapshot   *snapshot.Store
	EventSvc   *event.Service
	Replay     *replay.Service
	Alert      *alert.Service
	Audit      *audit.Service
	Job        *job.Service
	Governance *governance.Service
	Autotune   *autotune.Service
	Risk       *risk.Engine
	Signal     *signal.Service
	Quality    *dataquality.Service
	PIT        *pit.Validator
	Factor     *factor.Engine
	Strategies *strategy.Registry

	Provider     *marketdata.CompositeProvider
	MarketCache  *marketdata.Cache
	MarketData   *marketdata.Service
	Fundamental  *fundamental.Service

	Pipeline *pipeline.Runner

	SchedulerWorker *job.SchedulerWorker

	AuditS3Backup audit.S3BackupConfig
}

func openDB(path, name string, profile database.Profile) (*database.DB, error) {
	db, err := database.New(database.Config{Path: path, Profile: profile, Name: name})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", name, err)
	}
	return db, nil
}

// Close closes every database this container opened, in no particular
// order; callers typically defer this once from main.
func (c *Container) Close() {
	for _, db := range []*database.DB{
		c.AuditDB, c.SnapshotDB, c.LicenseDB, c.EventDB, c.ReplayDB,
		c.AlertDB, c.JobDB, c.StrategyGovDB, c.AutotuneDB, c.MarketCacheDB,
	} {
		if db != nil {
			_ = db.Close()
		}
	}
}

// Wire opens every database and constructs every service, matching the
// teacher's own di.Wire: databases first, then stores, then the services
// layered on top of them, then the cross-cutting pipeline.Runner that
// composes all of it per daily run.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{}

	var err error
	if c.AuditDB, err = openDB(cfg.AuditDBPath, "audit", database.ProfileLedger); err != nil {
		return nil, err
	}
	if c.SnapshotDB, err = openDB(cfg.SnapshotDBPath, "snapshot", database.ProfileStandard); err != nil {
		return nil, err
	}
	if c.LicenseDB, err = openDB(cfg.LicenseDBPath, "license", database.ProfileStandard); err != nil {
		return nil, err
	}
	if c.EventDB, err = openDB(cfg.EventDBPath, "event", database.ProfileStandard); err != nil {
		return nil, err
	}
	if c.ReplayDB, err = openDB(cfg.ReplayDBPath, "replay", database.ProfileLedger); err != nil {
		return nil, err
	}
	if c.AlertDB, err = openDB(cfg.AlertDBPath, "alert", database.ProfileStandard); err != nil {
		return nil, err
	}
	if c.JobDB, err = openDB(cfg.JobDBPath, "job", database.ProfileStandard); err != nil {
		return nil, err
	}
	if c.StrategyGovDB, err = openDB(cfg.StrategyGovDBPath, "strategy_gov", database.ProfileLedger); err != nil {
		return nil, err
	}
	if c.AutotuneDB, err = openDB(cfg.AutotuneDBPath, "autotune", database.ProfileStandard); err != nil {
		return nil, err
	}
	if c.MarketCacheDB, err = openDB(cfg.MarketCacheDBPath, "market_cache", database.ProfileCache); err != nil {
		return nil, err
	}

	licenseStore, err := license.NewStore(c.LicenseDB)
	if err != nil {
		return nil, fmt.Errorf("license store: %w", err)
	}
	c.License = license.NewService(licenseStore)

	if c.Snapshot, err = snapshot.NewStore(c.SnapshotDB); err != nil {
		return nil, fmt.Errorf("snapshot store: %w", err)
	}

	eventStore, err := event.NewStore(c.EventDB)
	if err != nil {
		return nil, fmt.Errorf("event store: %w", err)
	}
	c.EventSvc = event.NewService(eventStore)

	replayStore, err := replay.NewStore(c.ReplayDB)
	if err != nil {
		return nil, fmt.Errorf("replay store: %w", err)
	}
	c.Replay = replay.NewService(replayStore)

	auditStore, err := audit.NewStore(c.AuditDB, log)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	c.Audit = audit.NewService(auditStore, c.License)
	c.AuditS3Backup = audit.S3BackupConfig{
		Bucket:          cfg.AuditS3BackupBucket,
		Region:          cfg.AuditS3BackupRegion,
		AccessKeyID:     cfg.AuditS3AccessKeyID,
		SecretAccessKey: cfg.AuditS3SecretAccessKey,
	}

	alertStore, err := alert.NewStore(c.AlertDB)
	if err != nil {
		return nil, fmt.Errorf("alert store: %w", err)
	}
	var dispatcher alert.Dispatcher
	if cfg.AlertSMTPHost != "" {
		dispatcher = alert.NewRealDispatcher(alert.SMTPConfig{
			Host: cfg.AlertSMTPHost, Port: cfg.AlertSMTPPort,
			Username: cfg.AlertSMTPUser, Password: cfg.AlertSMTPPassword, UseTLS: cfg.AlertSMTPUseSSL,
		})
	}
	c.Alert = alert.NewService(alertStore, c.Audit, dispatcher, "https://runbooks.internal/trading-assistant")

	govStore, err := governance.NewStore(c.StrategyGovDB)
	if err != nil {
		return nil, fmt.Errorf("governance store: %w", err)
	}
	c.Governance = governance.NewService(govStore, []string{"risk_owner"}, 1)

	autotuneStore, err := autotune.NewStore(c.AutotuneDB)
	if err != nil {
		return nil, fmt.Errorf("autotune store: %w", err)
	}
	c.Autotune = autotune.NewService(autotuneStore)

	c.Risk = risk.NewEngine(risk.EngineConfig{
		MaxSinglePosition:   cfg.Risk.MaxSinglePosition,
		MaxDrawdown:         cfg.Risk.MaxDrawdown,
		MaxIndustryExposure: cfg.Risk.MaxIndustryExposure,
		MinTurnover20D:      cfg.Risk.MinTurnover20D,

		FundamentalBuyWarningScore:   cfg.Risk.FundamentalWarningScore,
		FundamentalBuyCriticalScore:  cfg.Risk.FundamentalCriticalScore,
		FundamentalRequireDataForBuy: cfg.Risk.RequireFundamentalDataForBuy,

		TushareDisclosureWarningScore:  cfg.Risk.TushareDisclosureRiskWarning,
		TushareDisclosureCriticalScore: cfg.Risk.TushareDisclosureRiskCritical,
		TushareForecastWarningPct:      cfg.Risk.TushareForecastPctWarning * 100,
		TushareForecastCriticalPct:     cfg.Risk.TushareForecastPctCritical * 100,
		SmallCapPledgeCriticalRatio:    cfg.Risk.TusharePledgeRatioCritical * 100,
		SmallCapUnlockWarningRatio:     0.20,
		SmallCapUnlockCriticalRatio:    0.45,
		SmallCapOverhangWarningScore:   0.75,
	})

	c.Signal = signal.NewService()
	c.Quality = dataquality.NewService()
	c.PIT = pit.NewValidator()
	c.Factor = factor.NewEngine()

	c.Strategies = strategy.NewRegistry()
	c.Strategies.Register(strategy.NewTrendFollowing())

	tushareClient := tushare.NewClient(cfg.TushareToken, log)
	c.Provider, err = marketdata.NewCompositeProvider(tushareClient)
	if err != nil {
		return nil, fmt.Errorf("composite provider: %w", err)
	}
	if c.MarketCache, err = marketdata.NewCache(c.MarketCacheDB); err != nil {
		return nil, fmt.Errorf("market cache: %w", err)
	}
	c.MarketData = marketdata.NewService(c.Provider, c.MarketCache)
	c.Fundamental = fundamental.NewService(c.Provider)

	fees := pipeline.DefaultFeeConfig()
	fees.SmallCapitalModeEnabled = cfg.SmallCap.Enabled
	fees.SmallCapitalPrincipalCNY = cfg.SmallCap.Principal
	fees.SmallCapitalCashBufferRatio = cfg.SmallCap.CashBufferRatio
	fees.SmallCapitalMinExpectedEdgeBps = cfg.SmallCap.MinExpectedEdgeBps

	runner := pipeline.NewRunner(
		c.Provider, c.Factor, c.Strategies, c.Risk, c.Signal, c.Quality, c.PIT, c.Snapshot, fees,
	)
	runner.LicenseService = c.License
	runner.EventService = c.EventSvc
	runner.Fundamentals = c.Fundamental
	runner.AutotuneService = c.Autotune
	runner.EnforceDataLicense = cfg.EnforceDataLicense
	c.Pipeline = runner

	jobStore, err := job.NewStore(c.JobDB)
	if err != nil {
		return nil, fmt.Errorf("job store: %w", err)
	}
	handlers := buildJobHandlers(c)
	c.Job = job.NewService(jobStore, handlers, cfg.OpsSchedulerTimezone, 120)
	c.SchedulerWorker = job.NewSchedulerWorker(c.Job, c.Audit, c.Alert, cfg.OpsSchedulerTickSeconds, 15, 300, true)

	return c, nil
}
