// Package event implements the corporate/news event store and the
// exponential time-decay feature builder: source registration, idempotent
// batch ingest keyed on (source_name, event_id), symbol/time-range
// queries, and PIT join validation.
package event

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
		return nil, fmt.Errorf("migrate event store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS event_sources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			source_name TEXT NOT NULL UNIQUE,
			source_type TEXT NOT NULL,
			provider TEXT NOT NULL,
			timezone TEXT NOT NULL,
			ingestion_lag_minutes INTEGER NOT NULL,
			reliability_score REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS event_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			source_name TEXT NOT NULL,
			event_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			event_type TEXT NOT NULL,
			publish_time TEXT NOT NULL,
			effective_time TEXT,
			polarity TEXT NOT NULL,
			score REAL NOT NULL,
			confidence REAL NOT NULL,
			title TEXT NOT NULL,
			summary TEXT NOT NULL,
			raw_ref TEXT,
			tags TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			FOREIGN KEY(source_name) REFERENCES event_sources(source_name)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_event_unique_source_event ON event_records(source_name, event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_event_symbol_time ON event_records(symbol, publish_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_event_source_time ON event_records(source_name, publish_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_event_id_lookup ON event_records(event_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RegisterSource(source domain.EventSource) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(
		`INSERT INTO event_sources(created_at, updated_at, source_name, source_type, provider, timezone, ingestion_lag_minutes, reliability_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_name) DO UPDATE SET
			updated_at=excluded.updated_at, source_type=excluded.source_type, provider=excluded.provider,
			timezone=excluded.timezone, ingestion_lag_minutes=excluded.ingestion_lag_minutes,
			reliability_score=excluded.reliability_score`,
		now, now, source.SourceName, source.Type, source.Provider, source.Timezone,
		source.IngestionLagMinutes, source.ReliabilityScore,
	)
	if err != nil {
		return 0, err
	}
	row := s.db.QueryRow(`SELECT id FROM event_sources WHERE source_name = ? LIMIT 1`, source.SourceName)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) GetSource(sourceName string) (*domain.EventSource, error) {
	row := s.db.QueryRow(
		`SELECT source_name, source_type, provider, timezone, ingestion_lag_minutes, reliability_score
		 FROM event_sources WHERE source_name = ? LIMIT 1`, sourceName,
	)
	var src domain.EventSource
	if err := row.Scan(&src.SourceName, &src.Type, &src.Provider, &src.Timezone, &src.IngestionLagMinutes, &src.ReliabilityScore); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &src, nil
}

// Record is one stored event row.
type Record struct {
	ID            int64
	SourceName    string
	EventID       string
	Symbol        string
	EventType     string
	PublishTime   time.Time
	EffectiveTime *time.Time
	Polarity      domain.Polarity
	Score         float64
	Confidence    float64
	Title         string
	Summary       string
	RawRef        string
	Tags          []string
	Metadata      map[string]any
}

// RecordCreate is one event row to ingest.
type RecordCreate struct {
	EventID       string
	Symbol        string
	EventType     string
	PublishTime   time.Time
	EffectiveTime *time.Time
	Polarity      domain.Polarity
	Score         float64
	Confidence    float64
	Title         string
	Summary       string
	RawRef        string
	Tags          []string
	Metadata      map[string]any
}

// IngestBatch upserts events keyed on (source_name, event_id), matching
// EventStore.ingest_batch's insert-or-update-with-per-row-error semantics.
func (s *Store) IngestBatch(sourceName string, events []RecordCreate) (inserted, updated int, errs []string) {
	for idx, ev := range events {
		exists := false
		row := s.db.QueryRow(`SELECT 1 FROM event_records WHERE source_name = ? AND event_id = ? LIMIT 1`, sourceName, ev.EventID)
		var dummy int
		if err := row.Scan(&dummy); err == nil {
			exists = true
		} else if err != sql.ErrNoRows {
			errs = append(errs, fmt.Sprintf("idx=%d, event_id=%s: %s", idx, ev.EventID, err.Error()))
			continue
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		tagsJSON, _ := json.Marshal(ev.Tags)
		metaJSON, _ := json.Marshal(ev.Metadata)
		var effective any
		if ev.EffectiveTime != nil {
			effective = ev.EffectiveTime.UTC().Format(time.RFC3339Nano)
		}

		if !exists {
			_, err := s.db.Exec(
				`INSERT INTO event_records(created_at, updated_at, source_name, event_id, symbol, event_type,
					publish_time, effective_time, polarity, score, confidence, title, summary, raw_ref, tags, metadata)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				now, now, sourceName, ev.EventID, ev.Symbol, ev.EventType,
				ev.PublishTime.UTC().Format(time.RFC3339Nano), effective, ev.Polarity, ev.Score, ev.Confidence,
				ev.Title, ev.Summary, ev.RawRef, string(tagsJSON), string(metaJSON),
			)
			if err != nil {
				errs = append(errs, fmt.Sprintf("idx=%d, event_id=%s: %s", idx, ev.EventID, err.Error()))
				continue
			}
			inserted++
		} else {
			_, err := s.db.Exec(
				`UPDATE event_records SET updated_at=?, symbol=?, event_type=?, publish_time=?, effective_time=?,
					polarity=?, score=?, confidence=?, title=?, summary=?, raw_ref=?, tags=?, metadata=?
				 WHERE source_name = ? AND event_id = ?`,
				now, ev.Symbol, ev.EventType, ev.PublishTime.UTC().Format(time.RFC3339Nano), effective,
				ev.Polarity, ev.Score, ev.Confidence, ev.Title, ev.Summary, ev.RawRef, string(tagsJSON), string(metaJSON),
				sourceName, ev.EventID,
			)
			if err != nil {
				errs = append(errs, fmt.Sprintf("idx=%d, event_id=%s: %s", idx, ev.EventID, err.Error()))
				continue
			}
			updated++
		}
	}
	return inserted, updated, errs
}

// ListFilter narrows ListEvents.
type ListFilter struct {
	Symbol     string
	SourceName string
	EventType  string
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
}

func (s *Store) ListEvents(f ListFilter) ([]Record, error) {
	query := `SELECT id, created_at, updated_at, source_name, event_id, symbol, event_type, publish_time,
		effective_time, polarity, score, confidence, title, summary, raw_ref, tags, metadata FROM event_records`
	var conditions []string
	var args []any
	if f.Symbol != "" {
		conditions = append(conditions, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.SourceName != "" {
		conditions = append(conditions, "source_name = ?")
		args = append(args, f.SourceName)
	}
	if f.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, f.EventType)
	}
	if f.StartTime != nil {
		conditions = append(conditions, "publish_time >= ?")
		args = append(args, f.StartTime.UTC().Format(time.RFC3339Nano))
	}
	if f.EndTime != nil {
		conditions = append(conditions, "publish_time <= ?")
		args = append(args, f.EndTime.UTC().Format(time.RFC3339Nano))
	}
	for i, c := range conditions {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	limit := f.Limit
	if limit <= 0 || limit > 5000 {
		limit = 500
	}
	query += " ORDER BY publish_time DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) GetEvent(sourceName, eventID string) (*Record, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, updated_at, source_name, event_id, symbol, event_type, publish_time,
			effective_time, polarity, score, confidence, title, summary, raw_ref, tags, metadata
		 FROM event_records WHERE source_name = ? AND event_id = ? LIMIT 1`, sourceName, eventID,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) FindEventsByEventID(eventID string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, created_at, updated_at, source_name, event_id, symbol, event_type, publish_time,
			effective_time, polarity, score, confidence, title, summary, raw_ref, tags, metadata
		 FROM event_records WHERE event_id = ? ORDER BY publish_time DESC, id DESC LIMIT ?`, eventID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec                                   Record
		createdAt, updatedAt                  string
		publishTime                           string
		effectiveTime, rawRef                 sql.NullString
		tagsJSON, metaJSON                    string
	)
	if err := row.Scan(&rec.ID, &createdAt, &updatedAt, &rec.SourceName, &rec.EventID, &rec.Symbol, &rec.EventType,
		&publishTime, &effectiveTime, &rec.Polarity, &rec.Score, &rec.Confidence, &rec.Title, &rec.Summary,
		&rawRef, &tagsJSON, &metaJSON); err != nil {
		return Record{}, err
	}
	var err error
	rec.PublishTime, err = time.Parse(time.RFC3339Nano, publishTime)
	if err != nil {
		return Record{}, err
	}
	if effectiveTime.Valid {
		t, err := time.Parse(time.RFC3339Nano, effectiveTime.String)
		if err != nil {
			return Record{}, err
		}
		rec.EffectiveTime = &t
	}
	rec.RawRef = rawRef.String
	_ = json.Unmarshal([]byte(tagsJSON), &rec.Tags)
	_ = json.Unmarshal([]byte(metaJSON), &rec.Metadata)
	return rec, nil
}
