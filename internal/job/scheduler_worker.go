package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/trading-assistant/internal/alert"
	"github.com/aristath/trading-assistant/internal/audit"
	"github.com/aristath/trading-assistant/internal/domain"
)

// SchedulerWorker drives JobService.SchedulerTick on a single cooperative
// loop, audits new SLA breaches (deduped with a cooldown), and optionally
// syncs alerts from the audit log afterward.
type SchedulerWorker struct {
	jobs                *Service
	audit               *audit.Service
	alerts              *alert.Service
	tickInterval        time.Duration
	slaGraceMinutes     int
	slaLogCooldown      time.Duration
	syncAlertsFromAudit bool

	mu               sync.Mutex
	lastSLALogByKey  map[string]time.Time
	running          bool
}

func NewSchedulerWorker(jobs *Service, auditSvc *audit.Service, alerts *alert.Service, tickSeconds, slaGraceMinutes, slaLogCooldownSeconds int, syncAlertsFromAudit bool) *SchedulerWorker {
	if tickSeconds < 5 {
		tickSeconds = 5
	}
	if slaGraceMinutes < 0 {
		slaGraceMinutes = 0
	}
	if slaLogCooldownSeconds < 60 {
		slaLogCooldownSeconds = 60
	}
	return &SchedulerWorker{
		jobs: jobs, audit: auditSvc, alerts: alerts,
		tickInterval: time.Duration(tickSeconds) * time.Second,
		slaGraceMinutes: slaGraceMinutes, slaLogCooldown: time.Duration(slaLogCooldownSeconds) * time.Second,
		syncAlertsFromAudit: syncAlertsFromAudit,
		lastSLALogByKey:     map[string]time.Time{},
	}
}

// RunForever ticks until ctx is cancelled.
func (w *SchedulerWorker) RunForever(ctx context.Context) error {
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	if err := w.RunOnce(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return nil
		case <-ticker.C:
			w.mu.Lock()
			stillRunning := w.running
			w.mu.Unlock()
			if !stillRunning {
				return nil
			}
			if err := w.RunOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *SchedulerWorker) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// RunOnce runs one scheduler tick: due-job dispatch, SLA-breach audit,
// and an optional alert sync.
func (w *SchedulerWorker) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()

	tick, err := w.jobs.SchedulerTick(now, "scheduler")
	if err != nil {
		return err
	}
	if len(tick.MatchedJobs) > 0 || len(tick.Errors) > 0 {
		status := domain.AuditStatusOK
		if len(tick.Errors) > 0 {
			status = domain.AuditStatusError
		}
		errs := tick.Errors
		if len(errs) > 5 {
			errs = errs[:5]
		}
		if _, err := w.audit.Write(audit.EventCreate{
			EventType: "ops_scheduler", Action: "tick", Status: status,
			Payload: map[string]any{
				"tick_time":      tick.TickTime.Format(time.RFC3339),
				"timezone":       tick.Timezone,
				"matched_jobs":   len(tick.MatchedJobs),
				"triggered_runs": len(tick.TriggeredRuns),
				"skipped_jobs":   len(tick.SkippedJobs),
				"errors":         joinStrings(errs, "; "),
			},
		}); err != nil {
			return err
		}
	}

	for _, run := range tick.TriggeredRuns {
		status := domain.AuditStatusOK
		if run.Status != domain.RunSuccess {
			status = domain.AuditStatusError
		}
		if _, err := w.audit.Write(audit.EventCreate{
			EventType: "ops_job", Action: "scheduled_run", Status: status,
			Payload: map[string]any{
				"job_id": run.JobID, "run_id": run.RunID,
				"status": string(run.Status), "triggered_by": run.TriggeredBy,
			},
		}); err != nil {
			return err
		}
	}

	sla, err := w.jobs.EvaluateSLA(now, w.slaGraceMinutes)
	if err != nil {
		return err
	}
	if err := w.auditSLABreaches(sla); err != nil {
		return err
	}

	if w.syncAlertsFromAudit && w.alerts != nil {
		if _, err := w.alerts.SyncFromAudit(ctx, 1000); err != nil {
			return err
		}
	}
	return nil
}

func (w *SchedulerWorker) auditSLABreaches(report domain.JobSLAReport) error {
	if len(report.Breaches) == 0 {
		return nil
	}
	now := time.Now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, breach := range report.Breaches {
		expected := ""
		if breach.ExpectedRunAt != nil {
			expected = breach.ExpectedRunAt.Format(time.RFC3339)
		}
		key := fmt.Sprintf("%d|%s|%s", breach.JobID, breach.BreachType, expected)
		if last, ok := w.lastSLALogByKey[key]; ok && now.Sub(last) < w.slaLogCooldown {
			continue
		}
		w.lastSLALogByKey[key] = now

		status := domain.AuditStatusOK
		if breach.Severity == domain.SeverityCritical {
			status = domain.AuditStatusError
		}
		var lastRunAt any
		if breach.LastRunAt != nil {
			lastRunAt = breach.LastRunAt.Format(time.RFC3339)
		}
		if _, err := w.audit.Write(audit.EventCreate{
			EventType: "ops_sla", Action: lowerBreachAction(breach.BreachType), Status: status,
			Payload: map[string]any{
				"job_id": breach.JobID, "job_name": breach.JobName, "schedule_cron": breach.ScheduleCron,
				"breach_type": string(breach.BreachType), "severity": string(breach.Severity),
				"message": breach.Message, "expected_run_at": expected,
				"last_run_at": lastRunAt, "delay_minutes": breach.DelayMinutes,
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

func lowerBreachAction(t domain.BreachType) string {
	switch t {
	case domain.BreachMissedRun:
		return "missed_run"
	case domain.BreachRunTimeout:
		return "run_timeout"
	default:
		return string(t)
	}
}

func joinStrings(items []string, sep string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += sep
		}
		out += item
	}
	return out
}
