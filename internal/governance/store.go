// Package governance implements strategy-version lifecycle management:
// DRAFT → IN_REVIEW → {APPROVED, REJECTED}, gated by a multi-role
// reviewer quorum.
package governance

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/trading-assistant/internal/database"
	"github.com/aristath/trading-assistant/internal/domain"
)

type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate governance store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS strategy_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy_name TEXT NOT NULL,
			version TEXT NOT NULL,
			status TEXT NOT NULL,
			description TEXT NOT NULL,
			params_hash TEXT NOT NULL,
			created_at TEXT NOT NULL,
			created_by TEXT NOT NULL,
			approved_at TEXT,
			approved_by TEXT,
			note TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS strategy_decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy_name TEXT NOT NULL,
			version TEXT NOT NULL,
			reviewer TEXT NOT NULL,
			reviewer_role TEXT NOT NULL,
			decision TEXT NOT NULL,
			note TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_strategy_unique ON strategy_versions(strategy_name, version)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_latest ON strategy_versions(strategy_name, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_decisions_lookup ON strategy_decisions(strategy_name, version, reviewer_role, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const timeLayout = time.RFC3339Nano

// RegisterDraft inserts a new strategy version at DRAFT.
func (s *Store) RegisterDraft(strategyName, version, description, paramsHash, createdBy string) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.Exec(
		`INSERT INTO strategy_versions(strategy_name, version, status, description, params_hash, created_at, created_by, approved_at, approved_by, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, '')`,
		strategyName, version, string(domain.StrategyDraft), description, paramsHash, now, createdBy,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateStatus transitions a version's status, stamping approval metadata
// when the new status is APPROVED. Returns the row's id, or -1 if the
// (strategy_name, version) pair doesn't exist.
func (s *Store) UpdateStatus(strategyName, version string, status domain.StrategyVersionStatus, note, approvedBy string) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	if status == domain.StrategyApproved {
		if _, err := s.db.Exec(
			`UPDATE strategy_versions SET status = ?, approved_at = ?, approved_by = ?, note = ? WHERE strategy_name = ? AND version = ?`,
			string(status), now, approvedBy, note, strategyName, version,
		); err != nil {
			return 0, err
		}
	} else {
		if _, err := s.db.Exec(
			`UPDATE strategy_versions SET status = ?, note = ? WHERE strategy_name = ? AND version = ?`,
			string(status), note, strategyName, version,
		); err != nil {
			return 0, err
		}
	}
	var id int64
	row := s.db.QueryRow(`SELECT id FROM strategy_versions WHERE strategy_name = ? AND version = ? LIMIT 1`, strategyName, version)
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return -1, nil
		}
		return 0, err
	}
	return id, nil
}

// RecordDecision inserts one reviewer vote.
func (s *Store) RecordDecision(strategyName, version, reviewer, reviewerRole string, decision domain.StrategyDecisionType, note string) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.Exec(
		`INSERT INTO strategy_decisions(strategy_name, version, reviewer, reviewer_role, decision, note, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		strategyName, version, reviewer, reviewerRole, string(decision), note, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListDecisions returns up to limit (default 200, capped 1000) decisions
// for a version, newest first.
func (s *Store) ListDecisions(strategyName, version string, limit int) ([]domain.StrategyDecision, error) {
	limit = clampLimit(limit, 200, 1000)
	rows, err := s.db.Query(
		`SELECT id, strategy_name, version, reviewer, reviewer_role, decision, note, created_at
		 FROM strategy_decisions WHERE strategy_name = ? AND version = ? ORDER BY id DESC LIMIT ?`,
		strategyName, version, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.StrategyDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LatestDecisionByRole returns, for each reviewer_role, that role's most
// recent decision on (strategy_name, version).
func (s *Store) LatestDecisionByRole(strategyName, version string) (map[string]domain.StrategyDecision, error) {
	rows, err := s.db.Query(
		`SELECT d1.id, d1.strategy_name, d1.version, d1.reviewer, d1.reviewer_role, d1.decision, d1.note, d1.created_at
		 FROM strategy_decisions d1
		 JOIN (
			SELECT reviewer_role, MAX(id) AS max_id
			FROM strategy_decisions
			WHERE strategy_name = ? AND version = ?
			GROUP BY reviewer_role
		 ) d2 ON d1.id = d2.max_id`,
		strategyName, version,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := map[string]domain.StrategyDecision{}
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		result[d.ReviewerRole] = d
	}
	return result, rows.Err()
}

// GetVersion fetches one (strategy_name, version) row, or nil if absent.
func (s *Store) GetVersion(strategyName, version string) (*domain.StrategyVersion, error) {
	row := s.db.QueryRow(
		`SELECT id, strategy_name, version, status, description, params_hash, created_at, created_by, approved_at, approved_by, note
		 FROM strategy_versions WHERE strategy_name = ? AND version = ? LIMIT 1`,
		strategyName, version,
	)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVersions lists versions for a strategy (or all strategies, if
// strategyName is empty), newest first, capped at 1000.
func (s *Store) ListVersions(strategyName string, limit int) ([]domain.StrategyVersion, error) {
	limit = clampLimit(limit, 200, 1000)
	query := `SELECT id, strategy_name, version, status, description, params_hash, created_at, created_by, approved_at, approved_by, note
		FROM strategy_versions`
	args := []any{}
	if strategyName != "" {
		query += " WHERE strategy_name = ?"
		args = append(args, strategyName)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.StrategyVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// LatestApproved returns the most recently approved version for a
// strategy, or nil if none exists.
func (s *Store) LatestApproved(strategyName string) (*domain.StrategyVersion, error) {
	row := s.db.QueryRow(
		`SELECT id, strategy_name, version, status, description, params_hash, created_at, created_by, approved_at, approved_by, note
		 FROM strategy_versions WHERE strategy_name = ? AND status = ? ORDER BY id DESC LIMIT 1`,
		strategyName, string(domain.StrategyApproved),
	)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (domain.StrategyVersion, error) {
	var v domain.StrategyVersion
	var status string
	var createdAt string
	var approvedAt, approvedBy sql.NullString
	if err := row.Scan(&v.ID, &v.StrategyName, &v.Version, &status, &v.Description, &v.ParamsHash,
		&createdAt, &v.CreatedBy, &approvedAt, &approvedBy, &v.Note); err != nil {
		return domain.StrategyVersion{}, err
	}
	v.Status = domain.StrategyVersionStatus(status)
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		v.CreatedAt = t
	}
	if approvedAt.Valid && approvedAt.String != "" {
		if t, err := time.Parse(timeLayout, approvedAt.String); err == nil {
			v.ApprovedAt = &t
		}
	}
	if approvedBy.Valid {
		v.ApprovedBy = approvedBy.String
	}
	return v, nil
}

func scanDecision(row rowScanner) (domain.StrategyDecision, error) {
	var d domain.StrategyDecision
	var decision, createdAt string
	if err := row.Scan(&d.ID, &d.StrategyName, &d.Version, &d.Reviewer, &d.ReviewerRole, &decision, &d.Note, &createdAt); err != nil {
		return domain.StrategyDecision{}, err
	}
	d.Decision = domain.StrategyDecisionType(decision)
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		d.CreatedAt = t
	}
	return d, nil
}
