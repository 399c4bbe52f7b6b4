// Package replay records signal decisions and the executions that
// followed them, and reports follow-rate/slippage/delay statistics over
// the paired history.
package replay

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
		return nil, fmt.Errorf("migrate replay store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signal_records (
			signal_id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			strategy_name TEXT NOT NULL,
			trade_date TEXT NOT NULL,
			action TEXT NOT NULL,
			confidence REAL NOT NULL,
			reason TEXT NOT NULL,
			suggested_position REAL
		)`,
		`CREATE TABLE IF NOT EXISTS execution_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			signal_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			execution_date TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			price REAL NOT NULL,
			fee REAL NOT NULL,
			note TEXT NOT NULL,
			FOREIGN KEY(signal_id) REFERENCES signal_records(signal_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exec_signal_id ON execution_records(signal_id)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_symbol_date ON signal_records(symbol, trade_date DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const dateLayout = "2006-01-02"

// RecordSignal upserts by signal_id, matching INSERT OR REPLACE semantics.
func (s *Store) RecordSignal(record domain.SignalRecord) (string, error) {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO signal_records(signal_id, symbol, strategy_name, trade_date, action, confidence, reason, suggested_position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SignalID, record.Symbol, record.StrategyName, record.TradeDate.Format(dateLayout),
		string(record.Action), record.Confidence, record.Reason, nullableFloat(record.SuggestedPosition),
	)
	if err != nil {
		return "", err
	}
	return record.SignalID, nil
}

func (s *Store) SignalExists(signalID string) (bool, error) {
	row := s.db.QueryRow(`SELECT 1 FROM signal_records WHERE signal_id = ? LIMIT 1`, signalID)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) RecordExecution(record domain.ExecutionRecord) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO execution_records(signal_id, symbol, execution_date, side, quantity, price, fee, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SignalID, record.Symbol, record.ExecutionDate.Format(dateLayout), string(record.Side),
		record.Quantity, record.Price, record.Fee, record.Note,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) ListSignals(symbol string, limit int) ([]domain.SignalRecord, error) {
	limit = clampLimit(limit, 200, 2000)
	query := `SELECT signal_id, symbol, strategy_name, trade_date, action, confidence, reason, suggested_position FROM signal_records`
	args := []any{}
	if symbol != "" {
		query += " WHERE symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY trade_date DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SignalRecord
	for rows.Next() {
		var r domain.SignalRecord
		var tradeDate, action string
		var suggested sql.NullFloat64
		if err := rows.Scan(&r.SignalID, &r.Symbol, &r.StrategyName, &tradeDate, &action, &r.Confidence, &r.Reason, &suggested); err != nil {
			return nil, err
		}
		r.Action = domain.SignalAction(action)
		if t, perr := time.Parse(dateLayout, tradeDate); perr == nil {
			r.TradeDate = t
		}
		if suggested.Valid {
			v := suggested.Float64
			r.SuggestedPosition = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PairedRow is one signal optionally left-joined with its execution.
type PairedRow struct {
	SignalID       string
	Symbol         string
	TradeDate      time.Time
	SignalAction   domain.SignalAction
	Confidence     float64
	ExecutedAction *domain.SignalAction
	ExecutionDate  *time.Time
	Quantity       float64
	Price          float64
}

// LoadPairs left-joins signals to executions, optionally filtered by
// symbol and trade-date range, newest-first, capped at 2000.
func (s *Store) LoadPairs(symbol string, startDate, endDate *time.Time, limit int) ([]PairedRow, error) {
	limit = clampLimit(limit, 500, 2000)
	query := `
		SELECT s.signal_id, s.symbol, s.trade_date, s.action AS signal_action, s.confidence,
		       e.side AS executed_action, e.execution_date, e.quantity, e.price
		FROM signal_records s
		LEFT JOIN execution_records e ON s.signal_id = e.signal_id`
	var conditions []string
	var args []any
	if symbol != "" {
		conditions = append(conditions, "s.symbol = ?")
		args = append(args, symbol)
	}
	if startDate != nil {
		conditions = append(conditions, "s.trade_date >= ?")
		args = append(args, startDate.Format(dateLayout))
	}
	if endDate != nil {
		conditions = append(conditions, "s.trade_date <= ?")
		args = append(args, endDate.Format(dateLayout))
	}
	for i, c := range conditions {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY s.trade_date DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PairedRow
	for rows.Next() {
		var r PairedRow
		var tradeDate, signalAction string
		var executedAction, executionDate sql.NullString
		var quantity, price sql.NullFloat64
		if err := rows.Scan(&r.SignalID, &r.Symbol, &tradeDate, &signalAction, &r.Confidence,
			&executedAction, &executionDate, &quantity, &price); err != nil {
			return nil, err
		}
		r.SignalAction = domain.SignalAction(signalAction)
		if t, perr := time.Parse(dateLayout, tradeDate); perr == nil {
			r.TradeDate = t
		}
		if executedAction.Valid && executedAction.String != "" {
			a := domain.SignalAction(executedAction.String)
			r.ExecutedAction = &a
		}
		if executionDate.Valid && executionDate.String != "" {
			if t, perr := time.Parse(dateLayout, executionDate.String); perr == nil {
				r.ExecutionDate = &t
			}
		}
		if quantity.Valid {
			r.Quantity = quantity.Float64
		}
		if price.Valid {
			r.Price = price.Float64
		}
		out = append(out, r)
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

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
