// Package job registers schedulable job definitions, drives cron ticks
// against them, tracks each run, and evaluates SLA breaches.
package job

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/trading-assistant/internal/database"
	"github.com/aristath/trading-assistant/internal/domain"
)

type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate job store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS job_definitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			name TEXT NOT NULL,
			job_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			owner TEXT NOT NULL,
			schedule_cron TEXT,
			status TEXT NOT NULL,
			description TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS job_runs (
			run_id TEXT PRIMARY KEY,
			job_id INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL,
			triggered_by TEXT NOT NULL,
			error_message TEXT,
			result_summary TEXT NOT NULL,
			result_summary_compact BLOB,
			FOREIGN KEY(job_id) REFERENCES job_definitions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_def_status ON job_definitions(status, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_job_run_job_id ON job_runs(job_id, started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_job_run_started_at ON job_runs(started_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func (s *Store) Register(def domain.JobDefinition) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	payloadJSON, err := json.Marshal(def.Payload)
	if err != nil {
		return 0, err
	}
	status := def.Status
	if status == "" {
		status = domain.JobActive
	}
	res, err := s.db.Exec(
		`INSERT INTO job_definitions(created_at, updated_at, name, job_type, payload, owner, schedule_cron, status, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		now, now, def.Name, def.JobType, string(payloadJSON), def.Owner, nullableString(def.ScheduleCron), string(status), def.Description,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) ListJobs(activeOnly bool, limit int) ([]domain.JobDefinition, error) {
	limit = clampLimit(limit, 200, 1000)
	query := `SELECT id, created_at, updated_at, name, job_type, payload, owner, schedule_cron, status, description FROM job_definitions`
	args := []any{}
	if activeOnly {
		query += " WHERE status = ?"
		args = append(args, string(domain.JobActive))
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.JobDefinition
	for rows.Next() {
		def, err := scanJobDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (s *Store) GetJob(jobID int64) (*domain.JobDefinition, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, updated_at, name, job_type, payload, owner, schedule_cron, status, description
		 FROM job_definitions WHERE id = ? LIMIT 1`, jobID)
	def, err := scanJobDefinition(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &def, nil
}

func (s *Store) CreateRun(runID string, jobID int64, triggeredBy string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.Exec(
		`INSERT INTO job_runs(run_id, job_id, started_at, finished_at, status, triggered_by, error_message, result_summary)
		 VALUES (?, ?, ?, NULL, ?, ?, NULL, '{}')`,
		runID, jobID, now, string(domain.RunRunning), triggeredBy,
	)
	return err
}

func (s *Store) FinishRun(runID string, status domain.RunStatus, resultSummary map[string]any, errorMessage string) error {
	now := time.Now().UTC().Format(timeLayout)
	resultJSON, err := json.Marshal(resultSummary)
	if err != nil {
		return err
	}
	// result_summary_compact mirrors result_summary in msgpack, for callers
	// that want the run history without paying JSON's parsing overhead.
	resultCompact, err := msgpack.Marshal(resultSummary)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`UPDATE job_runs SET finished_at = ?, status = ?, error_message = ?, result_summary = ?, result_summary_compact = ? WHERE run_id = ?`,
		now, string(status), nullableString(errorMessage), string(resultJSON), resultCompact, runID,
	)
	return err
}

// GetResultSummaryCompact decodes a run's msgpack-encoded result summary
// directly, bypassing the JSON column.
func (s *Store) GetResultSummaryCompact(runID string) (map[string]any, error) {
	var blob []byte
	row := s.db.QueryRow(`SELECT result_summary_compact FROM job_runs WHERE run_id = ?`, runID)
	if err := row.Scan(&blob); err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return map[string]any{}, nil
	}
	var summary map[string]any
	if err := msgpack.Unmarshal(blob, &summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *Store) ListRuns(jobID int64, limit int) ([]domain.JobRun, error) {
	limit = clampLimit(limit, 200, 1000)
	rows, err := s.db.Query(
		`SELECT run_id, job_id, started_at, finished_at, status, triggered_by, error_message, result_summary
		 FROM job_runs WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.JobRun
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *Store) GetLatestRun(jobID int64) (*domain.JobRun, error) {
	row := s.db.QueryRow(
		`SELECT run_id, job_id, started_at, finished_at, status, triggered_by, error_message, result_summary
		 FROM job_runs WHERE job_id = ? ORDER BY started_at DESC LIMIT 1`, jobID)
	run, err := scanJobRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// LatestSuccessSince returns the most recent SUCCESS run for jobID with
// started_at >= since, or nil if none.
func (s *Store) LatestSuccessSince(jobID int64, since time.Time) (*domain.JobRun, error) {
	row := s.db.QueryRow(
		`SELECT run_id, job_id, started_at, finished_at, status, triggered_by, error_message, result_summary
		 FROM job_runs WHERE job_id = ? AND status = ? AND started_at >= ? ORDER BY started_at DESC LIMIT 1`,
		jobID, string(domain.RunSuccess), since.UTC().Format(timeLayout))
	run, err := scanJobRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (s *Store) ListRunningOlderThan(cutoff time.Time) ([]domain.JobRun, error) {
	rows, err := s.db.Query(
		`SELECT run_id, job_id, started_at, finished_at, status, triggered_by, error_message, result_summary
		 FROM job_runs WHERE status = ? AND started_at < ? ORDER BY started_at ASC`,
		string(domain.RunRunning), cutoff.UTC().Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.JobRun
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobDefinition(row rowScanner) (domain.JobDefinition, error) {
	var def domain.JobDefinition
	var createdAt, updatedAt, payloadJSON, status string
	var scheduleCron *string
	if err := row.Scan(&def.ID, &createdAt, &updatedAt, &def.Name, &def.JobType, &payloadJSON, &def.Owner, &scheduleCron, &status, &def.Description); err != nil {
		return domain.JobDefinition{}, err
	}
	def.Status = domain.JobStatus(status)
	if scheduleCron != nil {
		def.ScheduleCron = *scheduleCron
	}
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		def.CreatedAt = t
	}
	if t, err := time.Parse(timeLayout, updatedAt); err == nil {
		def.UpdatedAt = t
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err == nil {
		def.Payload = payload
	}
	return def, nil
}

func scanJobRun(row rowScanner) (domain.JobRun, error) {
	var run domain.JobRun
	var startedAt string
	var finishedAt, errorMessage *string
	var status, resultJSON string
	if err := row.Scan(&run.RunID, &run.JobID, &startedAt, &finishedAt, &status, &run.TriggeredBy, &errorMessage, &resultJSON); err != nil {
		return domain.JobRun{}, err
	}
	run.Status = domain.RunStatus(status)
	if t, err := time.Parse(timeLayout, startedAt); err == nil {
		run.StartedAt = t
	}
	if finishedAt != nil {
		if t, err := time.Parse(timeLayout, *finishedAt); err == nil {
			run.FinishedAt = &t
		}
	}
	if errorMessage != nil {
		run.ErrorMessage = *errorMessage
	}
	var summary map[string]any
	if err := json.Unmarshal([]byte(resultJSON), &summary); err == nil {
		run.ResultSummary = summary
	}
	return run, nil
}
