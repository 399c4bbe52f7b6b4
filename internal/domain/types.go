// Package domain holds the entity catalogue shared across every store and
// service: bars, snapshots, licenses, audit events, corporate events,
// strategy governance records, autotune profiles, subscriptions,
// notifications, jobs, signals and executions.
package domain

import "time"

// Bar is one daily OHLCV row for a symbol, keyed by (provider, symbol, trade_date).
type Bar struct {
	TradeDate    time.Time
	Symbol       string
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	Amount       float64
	IsSuspended  bool
	IsST         bool
	AnnounceDate *time.Time // optional; PIT check is conditional on presence
}

// IntradayInterval enumerates the supported intraday bar granularities.
type IntradayInterval string

const (
	Interval5m  IntradayInterval = "5m"
	Interval15m IntradayInterval = "15m"
	Interval30m IntradayInterval = "30m"
	Interval60m IntradayInterval = "60m"
)

// IntradayBar is one sub-daily OHLCV row, keyed by (provider, symbol, interval, bar_time).
type IntradayBar struct {
	BarTime  time.Time
	Symbol   string
	Interval IntradayInterval
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Amount   float64
}

// TradeCalendarDay reports whether a calendar date is a trading day.
type TradeCalendarDay struct {
	TradeDate time.Time
	IsOpen    bool
}

// SecurityStatus carries the ST/suspension flags for one symbol.
type SecurityStatus struct {
	Symbol      string
	IsST        bool
	IsSuspended bool
}

// Snapshot is an idempotent record that a content-hashed data range was consumed.
type Snapshot struct {
	ID            int64
	DatasetName   string
	Symbol        string
	StartDate     time.Time
	EndDate       time.Time
	Provider      string
	RowCount      int
	SchemaVersion string
	ContentHash   string
	CreatedAt     time.Time
}

// License governs whether a (dataset, provider) pair may be used/exported as of a date.
type License struct {
	ID             int64
	DatasetName    string
	Provider       string
	UsageScopes    []string
	AllowExport    bool
	MaxExportRows  *int
	Watermark      string
	ValidFrom      time.Time
	ValidTo        *time.Time
}

// IsActive reports whether the license covers asOf.
func (l License) IsActive(asOf time.Time) bool {
	if asOf.Before(l.ValidFrom) {
		return false
	}
	if l.ValidTo != nil && asOf.After(*l.ValidTo) {
		return false
	}
	return true
}

// AuditStatus is the outcome recorded on an audit event.
type AuditStatus string

const (
	AuditStatusOK    AuditStatus = "OK"
	AuditStatusError AuditStatus = "ERROR"
)

// AuditEvent is one row of the hash-chained append-only log.
type AuditEvent struct {
	ID        int64
	EventTime time.Time
	EventType string
	Action    string
	Status    AuditStatus
	Payload   map[string]any
	PrevHash  string
	EventHash string
}

// Polarity classifies a corporate event's sentiment.
type Polarity string

const (
	PolarityPositive Polarity = "POSITIVE"
	PolarityNegative Polarity = "NEGATIVE"
	PolarityNeutral  Polarity = "NEUTRAL"
)

// CorporateEvent is a single ingested news/disclosure/event item.
type CorporateEvent struct {
	ID             int64
	SourceName     string
	EventID        string
	Symbol         string
	EventType      string
	PublishTime    time.Time
	EffectiveTime  *time.Time
	Polarity       Polarity
	Score          float64
	Confidence     float64
	Title          string
	Summary        string
	RawRef         string
	Tags           []string
	Metadata       map[string]any
}

// EventSource describes one upstream event feed.
type EventSource struct {
	SourceName          string
	Type                string
	Provider            string
	Timezone            string
	IngestionLagMinutes int
	ReliabilityScore    float64
}

// StrategyVersionStatus is the governance lifecycle state of a strategy version.
type StrategyVersionStatus string

const (
	StrategyDraft     StrategyVersionStatus = "DRAFT"
	StrategyInReview  StrategyVersionStatus = "IN_REVIEW"
	StrategyApproved  StrategyVersionStatus = "APPROVED"
	StrategyRejected  StrategyVersionStatus = "REJECTED"
	StrategyRetired   StrategyVersionStatus = "RETIRED"
)

// StrategyVersion is one registered, reviewable strategy artifact.
type StrategyVersion struct {
	ID          int64
	StrategyName string
	Version      string
	Status       StrategyVersionStatus
	Description  string
	ParamsHash   string
	CreatedBy    string
	ApprovedAt   *time.Time
	ApprovedBy   string
	Note         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StrategyDecisionType is a reviewer's vote on a strategy version.
type StrategyDecisionType string

const (
	DecisionApprove StrategyDecisionType = "APPROVE"
	DecisionReject  StrategyDecisionType = "REJECT"
)

// StrategyDecision is one reviewer's recorded vote.
type StrategyDecision struct {
	ID           int64
	StrategyName string
	Version      string
	Reviewer     string
	ReviewerRole string
	Decision     StrategyDecisionType
	Note         string
	CreatedAt    time.Time
}

// AutotuneScope selects whether a profile applies globally or to one symbol.
type AutotuneScope string

const (
	ScopeGlobal AutotuneScope = "GLOBAL"
	ScopeSymbol AutotuneScope = "SYMBOL"
)

// AutotuneProfile is one stored parameter set for a strategy.
type AutotuneProfile struct {
	ID                  int64
	StrategyName        string
	Scope               AutotuneScope
	Symbol              string
	StrategyParams      map[string]any
	ObjectiveScore       float64
	ValidationTotalReturn *float64
	SourceRunID          string
	Active               bool
	Note                 string
	CreatedAt            time.Time
}

// SymbolKey normalizes a profile's scoping symbol for uniqueness comparisons.
func (p AutotuneProfile) SymbolKey() string {
	if p.Scope == ScopeSymbol {
		return upperTrim(p.Symbol)
	}
	return ""
}

func upperTrim(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		if c >= 'a' && c <= 'z' {
			c = c - 'a' + 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// AutotuneRolloutRule toggles profile usage for a strategy, optionally per symbol.
type AutotuneRolloutRule struct {
	ID           int64
	StrategyName string
	SymbolKey    string
	Enabled      bool
	Note         string
}

// Severity ranks alert urgency.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// SeverityRank maps severity to an ordered integer (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	default:
		return 1
	}
}

// Channel is a notification delivery mechanism.
type Channel string

const (
	ChannelInbox     Channel = "inbox"
	ChannelEmail     Channel = "email"
	ChannelIM        Channel = "im"
	ChannelDingtalk  Channel = "dingtalk"
	ChannelWecom     Channel = "wecom"
	ChannelPagerDuty Channel = "pagerduty"
	ChannelOncall    Channel = "oncall"
)

// EscalationStage is one step of an on-call escalation chain.
type EscalationStage struct {
	LevelThreshold int
	Channel        Channel
	Targets        []string
	Note           string
}

// Subscription routes matching alerts to a channel (or an escalation chain).
type Subscription struct {
	ID               int64
	Name             string
	Owner            string
	EventTypes       []string
	MinSeverity      Severity
	DedupeWindowSec  int
	Enabled          bool
	Channel          Channel
	ChannelConfig    map[string]any
	EscalationChain  []EscalationStage
	RunbookURL       string
}

// DeliveryStatus is the outcome of dispatching one notification to one target.
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
	DeliverySkipped DeliveryStatus = "SKIPPED"
)

// Notification is one matched, deduplicated alert routed to a subscription.
type Notification struct {
	ID             int64
	SubscriptionID int64
	EventID        int64
	CreatedAt      time.Time
	Severity       Severity
	Source         string
	Message        string
	Payload        map[string]any
	Acked          bool
	AckedAt        *time.Time
	DedupeKey      string
}

// Delivery is one attempt to deliver a notification to one channel+target.
type Delivery struct {
	ID             int64
	NotificationID int64
	SubscriptionID int64
	Channel        Channel
	Target         string
	Status         DeliveryStatus
	ErrorMessage   string
	Payload        map[string]any
	CreatedAt      time.Time
}

// JobStatus toggles whether a job definition is eligible to be scheduled.
type JobStatus string

const (
	JobActive   JobStatus = "ACTIVE"
	JobDisabled JobStatus = "DISABLED"
)

// JobDefinition is one registered, optionally cron-scheduled job.
type JobDefinition struct {
	ID           int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Name         string
	JobType      string
	Payload      map[string]any
	Owner        string
	ScheduleCron string
	Status       JobStatus
	Description  string
}

// RunStatus is the lifecycle state of one job execution.
type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCESS"
	RunFailed  RunStatus = "FAILED"
)

// JobRun is one execution of a JobDefinition.
type JobRun struct {
	ID            int64
	RunID         string
	JobID         int64
	StartedAt     time.Time
	FinishedAt    *time.Time
	Status        RunStatus
	TriggeredBy   string
	ErrorMessage  string
	ResultSummary map[string]any
}

// SignalAction is the recommended action for a symbol.
type SignalAction string

const (
	ActionBuy   SignalAction = "BUY"
	ActionSell  SignalAction = "SELL"
	ActionWatch SignalAction = "WATCH"
)

// SignalRecord is one generated recommendation, persisted for replay analysis.
type SignalRecord struct {
	ID                int64
	SignalID          string
	Symbol            string
	StrategyName      string
	TradeDate         time.Time
	Action            SignalAction
	Confidence        float64
	Reason            string
	SuggestedPosition *float64
	CreatedAt         time.Time
}

// BreachType classifies a JobSLAReport entry.
type BreachType string

const (
	BreachMissedRun  BreachType = "MISSED_RUN"
	BreachRunTimeout BreachType = "RUN_TIMEOUT"
)

// SLABreach is one detected scheduling failure for a job.
type SLABreach struct {
	JobID           int64
	JobName         string
	ScheduleCron    string
	BreachType      BreachType
	Severity        Severity
	Message         string
	ExpectedRunAt   *time.Time
	LastRunAt       *time.Time
	DelayMinutes    float64
}

// JobSLAReport is the result of one evaluate_sla pass.
type JobSLAReport struct {
	AsOf     time.Time
	Breaches []SLABreach
}

// SchedulerTickResult is the result of one scheduler_tick pass.
type SchedulerTickResult struct {
	TickTime      time.Time
	Timezone      string
	MatchedJobs   []int64
	TriggeredRuns []JobRun
	SkippedJobs   []int64
	Errors        []string
}

// ExecutionRecord is one fill linked back to a SignalRecord.
type ExecutionRecord struct {
	ID            int64
	SignalID      string
	Symbol        string
	ExecutionDate time.Time
	Side          SignalAction
	Quantity      float64
	Price         float64
	Fee           float64
	Note          string
}
