// Package autotune stores optimization-run output (AutotuneProfile) and
// gray-rollout toggles (AutotuneRolloutRule), and resolves the runtime
// parameter set a live strategy invocation should use. The grid-search
// optimization run itself is out of scope here; this package covers
// profile storage, activation, rollback, rollout rules, and
// resolve_runtime_params.
package autotune

import (
	"database/sql"
	"encoding/json"
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
		return nil, fmt.Errorf("migrate autotune store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS autotune_profiles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			strategy_name TEXT NOT NULL,
			scope TEXT NOT NULL,
			symbol TEXT NOT NULL,
			strategy_params TEXT NOT NULL,
			objective_score REAL NOT NULL,
			validation_total_return REAL,
			source_run_id TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			note TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_autotune_lookup ON autotune_profiles(strategy_name, scope, symbol, active, id DESC)`,
		`CREATE TABLE IF NOT EXISTS autotune_rollout_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			strategy_name TEXT NOT NULL,
			symbol TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			note TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_autotune_rollout_unique ON autotune_rollout_rules(strategy_name, symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_autotune_rollout_lookup ON autotune_rollout_rules(strategy_name, symbol, id DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const timeLayout = time.RFC3339Nano

// UpsertActiveProfile deactivates any currently-active profile for the
// same (strategy_name, scope, symbol_key) and inserts the new one active.
func (s *Store) UpsertActiveProfile(p domain.AutotuneProfile) (domain.AutotuneProfile, error) {
	now := time.Now().UTC().Format(timeLayout)
	symbolKey := p.SymbolKey()
	paramsJSON, err := json.Marshal(p.StrategyParams)
	if err != nil {
		return domain.AutotuneProfile{}, err
	}

	if _, err := s.db.Exec(
		`UPDATE autotune_profiles SET active = 0, updated_at = ? WHERE strategy_name = ? AND scope = ? AND symbol = ? AND active = 1`,
		now, p.StrategyName, string(p.Scope), symbolKey,
	); err != nil {
		return domain.AutotuneProfile{}, err
	}

	res, err := s.db.Exec(
		`INSERT INTO autotune_profiles(created_at, updated_at, strategy_name, scope, symbol, strategy_params, objective_score, validation_total_return, source_run_id, active, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		now, now, p.StrategyName, string(p.Scope), symbolKey, string(paramsJSON), p.ObjectiveScore,
		nullableFloat(p.ValidationTotalReturn), p.SourceRunID, p.Note,
	)
	if err != nil {
		return domain.AutotuneProfile{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.AutotuneProfile{}, err
	}
	saved, err := s.GetProfile(id)
	if err != nil {
		return domain.AutotuneProfile{}, err
	}
	if saved == nil {
		return domain.AutotuneProfile{}, fmt.Errorf("failed to load inserted autotune profile %d", id)
	}
	return *saved, nil
}

func (s *Store) GetProfile(id int64) (*domain.AutotuneProfile, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, updated_at, strategy_name, scope, symbol, strategy_params, objective_score, validation_total_return, source_run_id, active, note
		 FROM autotune_profiles WHERE id = ? LIMIT 1`, id,
	)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles filters by strategyName/symbol (either optional) and
// activeOnly, newest-first, capped at 5000.
func (s *Store) ListProfiles(strategyName, symbol string, activeOnly bool, limit int) ([]domain.AutotuneProfile, error) {
	limit = clampLimit(limit, 200, 5000)
	query := `SELECT id, created_at, updated_at, strategy_name, scope, symbol, strategy_params, objective_score, validation_total_return, source_run_id, active, note
		FROM autotune_profiles WHERE 1 = 1`
	args := []any{}
	if strategyName != "" {
		query += " AND strategy_name = ?"
		args = append(args, strategyName)
	}
	if symbol != "" {
		key := domain.AutotuneProfile{Scope: domain.ScopeSymbol, Symbol: symbol}.SymbolKey()
		query += " AND (symbol = ? OR (scope = ? AND symbol = ''))"
		args = append(args, key, string(domain.ScopeGlobal))
	}
	if activeOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.AutotuneProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetActiveProfile looks up symbol-scope first, falling back to
// global-scope.
func (s *Store) GetActiveProfile(strategyName, symbol string) (*domain.AutotuneProfile, error) {
	symbolKey := domain.AutotuneProfile{Scope: domain.ScopeSymbol, Symbol: symbol}.SymbolKey()
	if symbolKey != "" {
		row := s.db.QueryRow(
			`SELECT id, created_at, updated_at, strategy_name, scope, symbol, strategy_params, objective_score, validation_total_return, source_run_id, active, note
			 FROM autotune_profiles WHERE strategy_name = ? AND scope = ? AND symbol = ? AND active = 1 ORDER BY id DESC LIMIT 1`,
			strategyName, string(domain.ScopeSymbol), symbolKey,
		)
		if p, err := scanProfile(row); err == nil {
			return &p, nil
		} else if err != sql.ErrNoRows {
			return nil, err
		}
	}
	row := s.db.QueryRow(
		`SELECT id, created_at, updated_at, strategy_name, scope, symbol, strategy_params, objective_score, validation_total_return, source_run_id, active, note
		 FROM autotune_profiles WHERE strategy_name = ? AND scope = ? AND symbol = '' AND active = 1 ORDER BY id DESC LIMIT 1`,
		strategyName, string(domain.ScopeGlobal),
	)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ActivateProfile atomically deactivates peer profiles sharing
// (strategy_name, scope, symbol_key) and activates the target id.
func (s *Store) ActivateProfile(id int64) (*domain.AutotuneProfile, error) {
	target, err := s.GetProfile(id)
	if err != nil || target == nil {
		return nil, err
	}
	now := time.Now().UTC().Format(timeLayout)
	symbolKey := target.SymbolKey()
	if _, err := s.db.Exec(
		`UPDATE autotune_profiles SET active = 0, updated_at = ? WHERE strategy_name = ? AND scope = ? AND symbol = ?`,
		now, target.StrategyName, string(target.Scope), symbolKey,
	); err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(`UPDATE autotune_profiles SET active = 1, updated_at = ? WHERE id = ?`, now, id); err != nil {
		return nil, err
	}
	return s.GetProfile(id)
}

// RollbackActiveProfile finds the currently-active row for
// (strategy_name, scope, symbol_key) and activates the previous id, or
// returns nil if there is no active row or no predecessor.
func (s *Store) RollbackActiveProfile(strategyName string, scope domain.AutotuneScope, symbol string) (*domain.AutotuneProfile, error) {
	symbolKey := domain.AutotuneProfile{Scope: scope, Symbol: symbol}.SymbolKey()
	var activeID int64
	row := s.db.QueryRow(
		`SELECT id FROM autotune_profiles WHERE strategy_name = ? AND scope = ? AND symbol = ? AND active = 1 ORDER BY id DESC LIMIT 1`,
		strategyName, string(scope), symbolKey,
	)
	if err := row.Scan(&activeID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var previousID int64
	row = s.db.QueryRow(
		`SELECT id FROM autotune_profiles WHERE strategy_name = ? AND scope = ? AND symbol = ? AND id < ? ORDER BY id DESC LIMIT 1`,
		strategyName, string(scope), symbolKey, activeID,
	)
	if err := row.Scan(&previousID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s.ActivateProfile(previousID)
}

// UpsertRolloutRule inserts or updates the (strategy_name, symbol_key) rule.
func (s *Store) UpsertRolloutRule(strategyName, symbol string, enabled bool, note string) (domain.AutotuneRolloutRule, error) {
	now := time.Now().UTC().Format(timeLayout)
	symbolKey := domain.AutotuneProfile{Scope: domain.ScopeSymbol, Symbol: symbol}.SymbolKey()

	var id int64
	row := s.db.QueryRow(`SELECT id FROM autotune_rollout_rules WHERE strategy_name = ? AND symbol = ? LIMIT 1`, strategyName, symbolKey)
	err := row.Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, insErr := s.db.Exec(
			`INSERT INTO autotune_rollout_rules(created_at, updated_at, strategy_name, symbol, enabled, note) VALUES (?, ?, ?, ?, ?, ?)`,
			now, now, strategyName, symbolKey, boolToInt(enabled), note,
		)
		if insErr != nil {
			return domain.AutotuneRolloutRule{}, insErr
		}
		id, insErr = res.LastInsertId()
		if insErr != nil {
			return domain.AutotuneRolloutRule{}, insErr
		}
	case err != nil:
		return domain.AutotuneRolloutRule{}, err
	default:
		if _, updErr := s.db.Exec(
			`UPDATE autotune_rollout_rules SET updated_at = ?, enabled = ?, note = ? WHERE id = ?`,
			now, boolToInt(enabled), note, id,
		); updErr != nil {
			return domain.AutotuneRolloutRule{}, updErr
		}
	}

	saved := s.db.QueryRow(
		`SELECT id, strategy_name, symbol, enabled, note FROM autotune_rollout_rules WHERE id = ? LIMIT 1`, id,
	)
	return scanRolloutRule(saved)
}

func (s *Store) ListRolloutRules(strategyName, symbol string, hasSymbolFilter bool, limit int) ([]domain.AutotuneRolloutRule, error) {
	limit = clampLimit(limit, 500, 5000)
	query := `SELECT id, strategy_name, symbol, enabled, note FROM autotune_rollout_rules WHERE 1 = 1`
	args := []any{}
	if strategyName != "" {
		query += " AND strategy_name = ?"
		args = append(args, strategyName)
	}
	if hasSymbolFilter {
		key := domain.AutotuneProfile{Scope: domain.ScopeSymbol, Symbol: symbol}.SymbolKey()
		query += " AND symbol = ?"
		args = append(args, key)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.AutotuneRolloutRule
	for rows.Next() {
		r, err := scanRolloutRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRolloutRule looks up symbol-scope first, falling back to the
// global empty-symbol rule, matching the lookup order resolve_runtime_params uses.
func (s *Store) GetRolloutRule(strategyName, symbol string) (*domain.AutotuneRolloutRule, error) {
	symbolKey := domain.AutotuneProfile{Scope: domain.ScopeSymbol, Symbol: symbol}.SymbolKey()
	if symbolKey != "" {
		row := s.db.QueryRow(`SELECT id, strategy_name, symbol, enabled, note FROM autotune_rollout_rules WHERE strategy_name = ? AND symbol = ? ORDER BY id DESC LIMIT 1`, strategyName, symbolKey)
		if r, err := scanRolloutRule(row); err == nil {
			return &r, nil
		} else if err != sql.ErrNoRows {
			return nil, err
		}
	}
	row := s.db.QueryRow(`SELECT id, strategy_name, symbol, enabled, note FROM autotune_rollout_rules WHERE strategy_name = ? AND symbol = '' ORDER BY id DESC LIMIT 1`, strategyName)
	r, err := scanRolloutRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) DeleteRolloutRule(id int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM autotune_rollout_rules WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
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

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (domain.AutotuneProfile, error) {
	var p domain.AutotuneProfile
	var createdAt, updatedAt, scope, paramsJSON string
	var validationReturn sql.NullFloat64
	var activeInt int
	if err := row.Scan(&p.ID, &createdAt, &updatedAt, &p.StrategyName, &scope, &p.Symbol, &paramsJSON,
		&p.ObjectiveScore, &validationReturn, &p.SourceRunID, &activeInt, &p.Note); err != nil {
		return domain.AutotuneProfile{}, err
	}
	p.Scope = domain.AutotuneScope(scope)
	p.Active = activeInt != 0
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		p.CreatedAt = t
	}
	if validationReturn.Valid {
		v := validationReturn.Float64
		p.ValidationTotalReturn = &v
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(paramsJSON), &params); err == nil {
		p.StrategyParams = params
	}
	_ = updatedAt
	return p, nil
}

func scanRolloutRule(row rowScanner) (domain.AutotuneRolloutRule, error) {
	var r domain.AutotuneRolloutRule
	var enabledInt int
	if err := row.Scan(&r.ID, &r.StrategyName, &r.SymbolKey, &enabledInt, &r.Note); err != nil {
		return domain.AutotuneRolloutRule{}, err
	}
	r.Enabled = enabledInt != 0
	return r, nil
}
