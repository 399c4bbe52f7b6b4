// Package config loads application configuration from environment
// variables and an optional .env file. All string values are trimmed
// before binding.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every environment-bound setting this service reads.
type Config struct {
	LogLevel string
	Port     int

	DataProviderPriority []string
	TushareToken         string

	AuditDBPath       string
	SnapshotDBPath    string
	LicenseDBPath     string
	EventDBPath       string
	ReplayDBPath      string
	AlertDBPath       string
	JobDBPath         string
	StrategyGovDBPath string
	AutotuneDBPath    string
	HoldingsDBPath    string
	MarketCacheDBPath string

	EnforceDataLicense bool

	AuthEnabled    bool
	AuthHeaderName string
	AuthAPIKeys    map[string]string // key -> role

	OpsSchedulerEnabled     bool
	OpsSchedulerTickSeconds int
	OpsSchedulerTimezone    string

	AlertSMTPHost     string
	AlertSMTPPort     int
	AlertSMTPUser     string
	AlertSMTPPassword string
	AlertSMTPUseSSL   bool

	Risk      RiskConfig
	SmallCap  SmallCapitalConfig

	AuditS3BackupBucket    string
	AuditS3BackupRegion    string
	AuditS3AccessKeyID     string
	AuditS3SecretAccessKey string
}

// RiskConfig holds the rule thresholds wired into internal/risk.
type RiskConfig struct {
	MaxSinglePosition           float64
	MinTurnover20D              float64
	MaxDrawdown                 float64
	MaxIndustryExposure         float64
	FundamentalWarningScore     float64
	FundamentalCriticalScore    float64
	RequireFundamentalDataForBuy bool
	MaxDailyLoss                float64
	ConsecutiveLossThreshold    int
	VaRConfidence               float64
	MaxExpectedShortfall        float64
	TushareDisclosureRiskCritical float64
	TushareDisclosureRiskWarning  float64
	TushareForecastPctCritical    float64
	TushareForecastPctWarning     float64
	TusharePledgeRatioCritical    float64
	TusharePledgeRatioWarning     float64
}

// SmallCapitalConfig holds the small-account tradability overrides.
type SmallCapitalConfig struct {
	Enabled           bool
	Principal         float64
	CashBufferRatio   float64
	MinExpectedEdgeBps float64
}

// Load reads an optional .env file then binds every recognized variable.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional; ignore a missing file

	cfg := &Config{
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		Port:                 getEnvAsInt("PORT", 8080),
		DataProviderPriority: getEnvAsCSV("DATA_PROVIDER_PRIORITY", []string{"tushare"}),
		TushareToken:         getEnv("TUSHARE_TOKEN", ""),

		AuditDBPath:       getEnv("AUDIT_DB_PATH", "./data/audit.db"),
		SnapshotDBPath:    getEnv("SNAPSHOT_DB_PATH", "./data/snapshot.db"),
		LicenseDBPath:     getEnv("LICENSE_DB_PATH", "./data/license.db"),
		EventDBPath:       getEnv("EVENT_DB_PATH", "./data/event.db"),
		ReplayDBPath:      getEnv("REPLAY_DB_PATH", "./data/replay.db"),
		AlertDBPath:       getEnv("ALERT_DB_PATH", "./data/alert.db"),
		JobDBPath:         getEnv("JOB_DB_PATH", "./data/job.db"),
		StrategyGovDBPath: getEnv("STRATEGY_GOV_DB_PATH", "./data/strategy_gov.db"),
		AutotuneDBPath:    getEnv("AUTOTUNE_DB_PATH", "./data/autotune.db"),
		HoldingsDBPath:    getEnv("HOLDINGS_DB_PATH", "./data/holdings.db"),
		MarketCacheDBPath: getEnv("MARKET_CACHE_DB_PATH", "./data/market_cache.db"),

		EnforceDataLicense: getEnvAsBool("ENFORCE_DATA_LICENSE", false),

		AuthEnabled:    getEnvAsBool("AUTH_ENABLED", false),
		AuthHeaderName: getEnv("AUTH_HEADER_NAME", "X-API-Key"),
		AuthAPIKeys:    getEnvAsKeyRoleMap("AUTH_API_KEYS"),

		OpsSchedulerEnabled:     getEnvAsBool("OPS_SCHEDULER_ENABLED", true),
		OpsSchedulerTickSeconds: getEnvAsInt("OPS_SCHEDULER_TICK_SECONDS", 30),
		OpsSchedulerTimezone:    getEnv("OPS_SCHEDULER_TIMEZONE", "UTC"),

		AlertSMTPHost:     getEnv("ALERT_SMTP_HOST", ""),
		AlertSMTPPort:     getEnvAsInt("ALERT_SMTP_PORT", 465),
		AlertSMTPUser:     getEnv("ALERT_SMTP_USER", ""),
		AlertSMTPPassword: getEnv("ALERT_SMTP_PASSWORD", ""),
		AlertSMTPUseSSL:   getEnvAsBool("ALERT_SMTP_USE_SSL", true),

		Risk: RiskConfig{
			MaxSinglePosition:             getEnvAsFloat("RISK_MAX_SINGLE_POSITION", 0.20),
			MinTurnover20D:                getEnvAsFloat("RISK_MIN_TURNOVER_20D", 5_000_000),
			MaxDrawdown:                   getEnvAsFloat("RISK_MAX_DRAWDOWN", 0.25),
			MaxIndustryExposure:           getEnvAsFloat("RISK_MAX_INDUSTRY_EXPOSURE", 0.35),
			FundamentalWarningScore:       getEnvAsFloat("RISK_FUNDAMENTAL_WARNING_SCORE", 0.4),
			FundamentalCriticalScore:      getEnvAsFloat("RISK_FUNDAMENTAL_CRITICAL_SCORE", 0.2),
			RequireFundamentalDataForBuy:  getEnvAsBool("RISK_REQUIRE_FUNDAMENTAL_DATA_FOR_BUY", false),
			MaxDailyLoss:                  getEnvAsFloat("RISK_MAX_DAILY_LOSS", 0.05),
			ConsecutiveLossThreshold:      getEnvAsInt("RISK_CONSECUTIVE_LOSS_THRESHOLD", 3),
			VaRConfidence:                 getEnvAsFloat("RISK_VAR_CONFIDENCE", 0.95),
			MaxExpectedShortfall:          getEnvAsFloat("RISK_MAX_ES", 0.08),
			TushareDisclosureRiskCritical: getEnvAsFloat("RISK_TUSHARE_DISCLOSURE_RISK_CRITICAL", 0.8),
			TushareDisclosureRiskWarning:  getEnvAsFloat("RISK_TUSHARE_DISCLOSURE_RISK_WARNING", 0.5),
			TushareForecastPctCritical:    getEnvAsFloat("RISK_TUSHARE_FORECAST_PCT_CRITICAL", -0.5),
			TushareForecastPctWarning:     getEnvAsFloat("RISK_TUSHARE_FORECAST_PCT_WARNING", -0.2),
			TusharePledgeRatioCritical:    getEnvAsFloat("RISK_TUSHARE_PLEDGE_RATIO_CRITICAL", 0.7),
			TusharePledgeRatioWarning:     getEnvAsFloat("RISK_TUSHARE_PLEDGE_RATIO_WARNING", 0.5),
		},

		SmallCap: SmallCapitalConfig{
			Enabled:            getEnvAsBool("SMALL_CAPITAL_ENABLED", false),
			Principal:          getEnvAsFloat("SMALL_CAPITAL_PRINCIPAL", 0),
			CashBufferRatio:    getEnvAsFloat("SMALL_CAPITAL_CASH_BUFFER_RATIO", 0.05),
			MinExpectedEdgeBps: getEnvAsFloat("SMALL_CAPITAL_MIN_EXPECTED_EDGE_BPS", 30),
		},

		AuditS3BackupBucket:    getEnv("AUDIT_S3_BACKUP_BUCKET", ""),
		AuditS3BackupRegion:    getEnv("AUDIT_S3_BACKUP_REGION", "us-east-1"),
		AuditS3AccessKeyID:     getEnv("AUDIT_S3_ACCESS_KEY_ID", ""),
		AuditS3SecretAccessKey: getEnv("AUDIT_S3_SECRET_ACCESS_KEY", ""),
	}

	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid PORT: %d", cfg.Port)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvAsFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvAsBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvAsCSV(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAsKeyRoleMap parses "key1:role1,key2:role2" into a map.
func getEnvAsKeyRoleMap(key string) map[string]string {
	out := map[string]string{}
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return out
	}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		apiKey := strings.TrimSpace(parts[0])
		role := strings.TrimSpace(parts[1])
		if apiKey != "" {
			out[apiKey] = role
		}
	}
	return out
}
