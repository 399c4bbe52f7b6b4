package job

import (
	"fmt"
	"testing"
	"time"

	"github.com/aristath/trading-assistant/internal/database"
	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handlers map[string]Handler) *Service {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:job_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileLedger,
		Name:    "job_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)
	return NewService(store, handlers, "UTC", 60)
}

func TestTriggerRunsHandlerAndRecordsSuccess(t *testing.T) {
	svc := newTestService(t, map[string]Handler{
		"report_generate": func(payload map[string]any) (map[string]any, error) {
			return map[string]any{"title": "risk report"}, nil
		},
	})
	jobID, err := svc.Register(domain.JobDefinition{Name: "daily report", JobType: "report_generate", Owner: "qa", Status: domain.JobActive})
	require.NoError(t, err)

	run, err := svc.Trigger(jobID, "qa_user")
	require.NoError(t, err)
	require.Equal(t, domain.RunSuccess, run.Status)
	require.Equal(t, "risk report", run.ResultSummary["title"])
}

func TestResultSummaryCompactRoundTripsMsgpackEncoding(t *testing.T) {
	svc := newTestService(t, map[string]Handler{
		"report_generate": func(payload map[string]any) (map[string]any, error) {
			return map[string]any{"title": "risk report", "rows": 3.0}, nil
		},
	})
	jobID, err := svc.Register(domain.JobDefinition{Name: "daily report", JobType: "report_generate", Owner: "qa", Status: domain.JobActive})
	require.NoError(t, err)

	run, err := svc.Trigger(jobID, "qa_user")
	require.NoError(t, err)

	compact, err := svc.ResultSummaryCompact(run.RunID)
	require.NoError(t, err)
	require.Equal(t, "risk report", compact["title"])
	require.Equal(t, run.ResultSummary["title"], compact["title"])
}

func TestTriggerDisabledJobFails(t *testing.T) {
	svc := newTestService(t, map[string]Handler{})
	jobID, err := svc.Register(domain.JobDefinition{Name: "disabled", JobType: "report_generate", Owner: "qa", Status: domain.JobDisabled})
	require.NoError(t, err)

	_, err = svc.Trigger(jobID, "qa_user")
	require.Error(t, err)
}

func TestRegisterRejectsInvalidCron(t *testing.T) {
	svc := newTestService(t, map[string]Handler{})
	_, err := svc.Register(domain.JobDefinition{Name: "bad", JobType: "report_generate", Owner: "qa", Status: domain.JobActive, ScheduleCron: "invalid cron text"})
	require.Error(t, err)
}

func TestSchedulerTickTriggersOncePerMinute(t *testing.T) {
	svc := newTestService(t, map[string]Handler{
		"report_generate": func(payload map[string]any) (map[string]any, error) { return map[string]any{}, nil },
	})
	jobID, err := svc.Register(domain.JobDefinition{Name: "minute-report", JobType: "report_generate", Owner: "ops", Status: domain.JobActive, ScheduleCron: "* * * * *"})
	require.NoError(t, err)

	tick := time.Now().UTC().Truncate(time.Minute)

	first, err := svc.SchedulerTick(tick, "scheduler")
	require.NoError(t, err)
	require.Equal(t, []int64{jobID}, first.MatchedJobs)
	require.Len(t, first.TriggeredRuns, 1)

	second, err := svc.SchedulerTick(tick, "scheduler")
	require.NoError(t, err)
	require.Equal(t, []int64{jobID}, second.MatchedJobs)
	require.Len(t, second.TriggeredRuns, 0)
	require.Equal(t, []int64{jobID}, second.SkippedJobs)
}

func TestEvaluateSLADetectsMissedRun(t *testing.T) {
	svc := newTestService(t, map[string]Handler{})
	jobID, err := svc.Register(domain.JobDefinition{Name: "missed-minute-report", JobType: "report_generate", Owner: "ops", Status: domain.JobActive, ScheduleCron: "* * * * *"})
	require.NoError(t, err)

	asOf := time.Date(2026, 1, 5, 9, 31, 0, 0, time.UTC)
	report, err := svc.EvaluateSLA(asOf, 0)
	require.NoError(t, err)

	var found *domain.SLABreach
	for i := range report.Breaches {
		if report.Breaches[i].JobID == jobID {
			found = &report.Breaches[i]
		}
	}
	require.NotNil(t, found)
	require.Equal(t, domain.BreachMissedRun, found.BreachType)
}

func TestEvaluateSLADetectsRunTimeout(t *testing.T) {
	svc := newTestService(t, map[string]Handler{})
	jobID, err := svc.Register(domain.JobDefinition{Name: "stuck-job", Owner: "ops", JobType: "report_generate", Status: domain.JobActive})
	require.NoError(t, err)

	require.NoError(t, svc.store.CreateRun("stuck-run", jobID, "scheduler"))

	asOf := time.Now().UTC().Add(2 * time.Hour)
	report, err := svc.EvaluateSLA(asOf, 0)
	require.NoError(t, err)

	var found *domain.SLABreach
	for i := range report.Breaches {
		if report.Breaches[i].JobID == jobID {
			found = &report.Breaches[i]
		}
	}
	require.NotNil(t, found)
	require.Equal(t, domain.BreachRunTimeout, found.BreachType)
}
