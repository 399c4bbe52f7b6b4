// Package snapshot implements the idempotent dataset-snapshot registry:
// content-hash keyed upserts that record exactly what was pulled from a
// provider, so later stages can cite a reproducible data lineage.
package snapshot

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
		return nil, fmt.Errorf("migrate snapshot store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS data_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			dataset_name TEXT NOT NULL,
			symbol TEXT NOT NULL,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			provider TEXT NOT NULL,
			row_count INTEGER NOT NULL,
			schema_version TEXT NOT NULL,
			content_hash TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshot_unique
			ON data_snapshots(dataset_name, symbol, start_date, end_date, provider, content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_lookup ON data_snapshots(dataset_name, symbol, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RegisterRequest describes one dataset pull to record.
type RegisterRequest struct {
	DatasetName   string
	Symbol        string
	StartDate     time.Time
	EndDate       time.Time
	Provider      string
	RowCount      int
	SchemaVersion string
	ContentHash   string
}

// Register is idempotent on (dataset_name, symbol, start_date, end_date,
// provider, content_hash): a repeat registration of the same pull returns
// the existing row's id rather than inserting a duplicate.
func (s *Store) Register(req RegisterRequest) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO data_snapshots(
			created_at, dataset_name, symbol, start_date, end_date, provider,
			row_count, schema_version, content_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		now, req.DatasetName, req.Symbol,
		req.StartDate.Format(dateLayout), req.EndDate.Format(dateLayout),
		req.Provider, req.RowCount, req.SchemaVersion, req.ContentHash,
	)
	if err != nil {
		return 0, err
	}
	if id, err := result.LastInsertId(); err == nil && id != 0 {
		if affected, err := result.RowsAffected(); err == nil && affected > 0 {
			return id, nil
		}
	}

	row := s.db.QueryRow(
		`SELECT id FROM data_snapshots
		 WHERE dataset_name = ? AND symbol = ? AND start_date = ? AND end_date = ?
		   AND provider = ? AND content_hash = ? LIMIT 1`,
		req.DatasetName, req.Symbol, req.StartDate.Format(dateLayout), req.EndDate.Format(dateLayout),
		req.Provider, req.ContentHash,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return -1, nil
		}
		return 0, err
	}
	return id, nil
}

const dateLayout = "2006-01-02"

func (s *Store) ListSnapshots(datasetName, symbol string, limit int) ([]domain.Snapshot, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query := `SELECT id, created_at, dataset_name, symbol, start_date, end_date, provider,
		row_count, schema_version, content_hash FROM data_snapshots`
	var conditions []string
	var args []any
	if datasetName != "" {
		conditions = append(conditions, "dataset_name = ?")
		args = append(args, datasetName)
	}
	if symbol != "" {
		conditions = append(conditions, "symbol = ?")
		args = append(args, symbol)
	}
	for i, c := range conditions {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) LatestSnapshot(datasetName, symbol string) (*domain.Snapshot, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, dataset_name, symbol, start_date, end_date, provider,
			row_count, schema_version, content_hash FROM data_snapshots
		 WHERE dataset_name = ? AND symbol = ? ORDER BY id DESC LIMIT 1`,
		datasetName, symbol,
	)
	snap, err := scanSnapshot(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (domain.Snapshot, error) {
	var (
		snap               domain.Snapshot
		createdAt          string
		startDate, endDate string
	)
	if err := row.Scan(&snap.ID, &createdAt, &snap.DatasetName, &snap.Symbol,
		&startDate, &endDate, &snap.Provider, &snap.RowCount,
		&snap.SchemaVersion, &snap.ContentHash); err != nil {
		return domain.Snapshot{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return domain.Snapshot{}, err
		}
	}
	snap.CreatedAt = parsed
	snap.StartDate, err = time.Parse(dateLayout, startDate)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.EndDate, err = time.Parse(dateLayout, endDate)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}
