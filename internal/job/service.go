package job

import (
	"fmt"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/schedule"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Handler executes one job type's payload and returns a result summary.
type Handler func(payload map[string]any) (map[string]any, error)

// Service registers jobs, triggers them on demand or via scheduler_tick,
// and detects SLA breaches. Job-type dispatch is handler-registry based
// rather than hardcoded to pipeline/research/reporting services, so any
// new job type can be wired in by its owner package without this package
// depending back on them.
type Service struct {
	store            *Store
	handlers         map[string]Handler
	timezone         *time.Location
	runningTimeout   time.Duration
}

// NewService builds a JobService. schedulerTimezone defaults to UTC if
// unparseable or empty; runningTimeoutMinutes defaults to 120.
func NewService(store *Store, handlers map[string]Handler, schedulerTimezone string, runningTimeoutMinutes int) *Service {
	loc, err := time.LoadLocation(schedulerTimezone)
	if err != nil || schedulerTimezone == "" {
		loc = time.UTC
	}
	if runningTimeoutMinutes <= 0 {
		runningTimeoutMinutes = 120
	}
	if handlers == nil {
		handlers = map[string]Handler{}
	}
	return &Service{store: store, handlers: handlers, timezone: loc, runningTimeout: time.Duration(runningTimeoutMinutes) * time.Minute}
}

// Register validates schedule_cron (if present) before persisting and
// rejects an invalid cron expression. robfig/cron/v3's standard parser
// sanity-checks the 5-field syntax first since it rejects malformed
// field counts and tokens with better error messages than the
// hand-rolled matcher; schedule.Parse then builds the Schedule actually
// used by SchedulerTick and EvaluateSLA, since cron.Schedule exposes no
// way to ask "did this field literal say *" for the dom/dow OR rule.
func (s *Service) Register(def domain.JobDefinition) (int64, error) {
	if def.ScheduleCron != "" {
		if _, err := cron.ParseStandard(def.ScheduleCron); err != nil {
			return 0, fmt.Errorf("invalid schedule_cron %q: %w", def.ScheduleCron, err)
		}
		if _, err := schedule.Parse(def.ScheduleCron); err != nil {
			return 0, fmt.Errorf("invalid schedule_cron %q: %w", def.ScheduleCron, err)
		}
	}
	return s.store.Register(def)
}

func (s *Service) ListJobs(activeOnly bool, limit int) ([]domain.JobDefinition, error) {
	return s.store.ListJobs(activeOnly, limit)
}

func (s *Service) ListRuns(jobID int64, limit int) ([]domain.JobRun, error) {
	return s.store.ListRuns(jobID, limit)
}

// ResultSummaryCompact returns a run's result summary decoded from its
// msgpack-encoded column instead of the JSON one.
func (s *Service) ResultSummaryCompact(runID string) (map[string]any, error) {
	return s.store.GetResultSummaryCompact(runID)
}

// Trigger runs jobID synchronously. A DISABLED job is rejected.
func (s *Service) Trigger(jobID int64, triggeredBy string) (domain.JobRun, error) {
	def, err := s.store.GetJob(jobID)
	if err != nil {
		return domain.JobRun{}, err
	}
	if def == nil {
		return domain.JobRun{}, fmt.Errorf("job %d not found", jobID)
	}
	if def.Status != domain.JobActive {
		return domain.JobRun{}, fmt.Errorf("job %d is not ACTIVE", jobID)
	}
	return s.runJob(*def, triggeredBy)
}

func (s *Service) runJob(def domain.JobDefinition, triggeredBy string) (domain.JobRun, error) {
	runID := uuid.New().String()
	if err := s.store.CreateRun(runID, def.ID, triggeredBy); err != nil {
		return domain.JobRun{}, err
	}

	handler, ok := s.handlers[def.JobType]
	var summary map[string]any
	var runErr error
	if !ok {
		runErr = fmt.Errorf("no handler registered for job_type %q", def.JobType)
	} else {
		summary, runErr = handler(def.Payload)
	}

	status := domain.RunSuccess
	errMsg := ""
	if runErr != nil {
		status = domain.RunFailed
		errMsg = runErr.Error()
		summary = map[string]any{}
	}
	if summary == nil {
		summary = map[string]any{}
	}
	if err := s.store.FinishRun(runID, status, summary, errMsg); err != nil {
		return domain.JobRun{}, err
	}

	run, err := s.store.GetLatestRun(def.ID)
	if err != nil {
		return domain.JobRun{}, err
	}
	return *run, nil
}

// SchedulerTick implements scheduler_tick: normalize as_of to the
// scheduler timezone truncated to whole minutes, match every ACTIVE
// scheduled job's cron against it, and trigger any that haven't already
// run at this exact minute.
func (s *Service) SchedulerTick(asOf time.Time, triggeredBy string) (domain.SchedulerTickResult, error) {
	tickTime := asOf.In(s.timezone).Truncate(time.Minute)
	result := domain.SchedulerTickResult{TickTime: tickTime, Timezone: s.timezone.String()}

	defs, err := s.store.ListJobs(true, 1000)
	if err != nil {
		return result, err
	}

	for _, def := range defs {
		if def.ScheduleCron == "" {
			continue
		}
		cron, err := schedule.Parse(def.ScheduleCron)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("job %d: invalid cron: %v", def.ID, err))
			continue
		}
		if !cron.Matches(tickTime) {
			continue
		}
		result.MatchedJobs = append(result.MatchedJobs, def.ID)

		latest, err := s.store.GetLatestRun(def.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("job %d: %v", def.ID, err))
			continue
		}
		if latest != nil && latest.StartedAt.In(s.timezone).Truncate(time.Minute).Equal(tickTime) {
			result.SkippedJobs = append(result.SkippedJobs, def.ID)
			continue
		}

		run, err := s.runJob(def, triggeredBy)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("job %d: %v", def.ID, err))
			continue
		}
		result.TriggeredRuns = append(result.TriggeredRuns, run)
	}

	return result, nil
}

// EvaluateSLA implements evaluate_sla: for each scheduled ACTIVE job,
// check whether a successful run landed since the last expected tick
// (respecting grace_minutes), and flag any RUNNING run stuck past the
// configured timeout.
func (s *Service) EvaluateSLA(asOf time.Time, graceMinutes int) (domain.JobSLAReport, error) {
	report := domain.JobSLAReport{AsOf: asOf}

	defs, err := s.store.ListJobs(true, 1000)
	if err != nil {
		return report, err
	}

	for _, def := range defs {
		if def.ScheduleCron == "" {
			continue
		}
		cron, err := schedule.Parse(def.ScheduleCron)
		if err != nil {
			continue
		}
		graceCutoff := asOf.Add(-time.Duration(graceMinutes) * time.Minute)
		expected, ok := cron.PreviousAtOrBefore(graceCutoff, 0)
		if !ok {
			continue
		}

		success, err := s.store.LatestSuccessSince(def.ID, expected)
		if err != nil {
			return report, err
		}
		if success != nil {
			continue
		}

		latest, err := s.store.GetLatestRun(def.ID)
		if err != nil {
			return report, err
		}
		var lastRunAt *time.Time
		if latest != nil {
			lastRunAt = &latest.StartedAt
		}

		delayMinutes := asOf.Sub(expected).Minutes()
		severity := domain.SeverityWarning
		if delayMinutes > 60 {
			severity = domain.SeverityCritical
		}

		expectedCopy := expected
		report.Breaches = append(report.Breaches, domain.SLABreach{
			JobID: def.ID, JobName: def.Name, ScheduleCron: def.ScheduleCron,
			BreachType: domain.BreachMissedRun, Severity: severity,
			Message:       fmt.Sprintf("job %q missed its expected run at %s", def.Name, expected.Format(time.RFC3339)),
			ExpectedRunAt: &expectedCopy, LastRunAt: lastRunAt, DelayMinutes: delayMinutes,
		})
	}

	cutoff := asOf.Add(-s.runningTimeout)
	stuck, err := s.store.ListRunningOlderThan(cutoff)
	if err != nil {
		return report, err
	}
	for _, run := range stuck {
		def, err := s.store.GetJob(run.JobID)
		if err != nil {
			return report, err
		}
		name, cronExpr := "", ""
		if def != nil {
			name, cronExpr = def.Name, def.ScheduleCron
		}
		delayMinutes := asOf.Sub(run.StartedAt).Minutes()
		startedAt := run.StartedAt
		report.Breaches = append(report.Breaches, domain.SLABreach{
			JobID: run.JobID, JobName: name, ScheduleCron: cronExpr,
			BreachType: domain.BreachRunTimeout, Severity: domain.SeverityCritical,
			Message:      fmt.Sprintf("run %q for job %d has been RUNNING past the timeout", run.RunID, run.JobID),
			LastRunAt:    &startedAt, DelayMinutes: delayMinutes,
		})
	}

	return report, nil
}
