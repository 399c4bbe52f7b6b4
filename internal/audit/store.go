// Package audit implements the append-only, hash-chained event log.
// Every mutating operation in the system writes exactly one AuditEvent
// here.
package audit

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/trading-assistant/internal/database"
	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/rs/zerolog"
)

// Store is the hash-chained audit log backed by one SQLite file.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore opens (and migrates) the audit store.
func NewStore(db *database.DB, log zerolog.Logger) (*Store, error) {
	s := &Store{db: db, log: log.With().Str("component", "audit.store").Logger()}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate audit store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_time TEXT NOT NULL,
			event_type TEXT NOT NULL,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			payload TEXT NOT NULL,
			prev_hash TEXT,
			event_hash TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_event_time ON audit_events(event_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_event_type ON audit_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_event_hash ON audit_events(event_hash)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// EventCreate is the caller-supplied content for a new audit event.
type EventCreate struct {
	EventType string
	Action    string
	Status    domain.AuditStatus
	Payload   map[string]any
}

// Write appends one event under a transaction: it reads the latest row's
// event_hash, computes the new hash chained off it, and inserts.
func (s *Store) Write(event EventCreate) (int64, error) {
	payloadJSON, err := canonicalJSON(event.Payload)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}
	payloadJSON = strings.TrimRight(payloadJSON, " \t\r\n")

	now := time.Now().UTC().Format(time.RFC3339Nano)

	var newID int64
	err = database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		var prevHash sql.NullString
		row := tx.QueryRow(`SELECT event_hash FROM audit_events ORDER BY id DESC LIMIT 1`)
		if scanErr := row.Scan(&prevHash); scanErr != nil && scanErr != sql.ErrNoRows {
			return scanErr
		}
		prev := ""
		if prevHash.Valid {
			prev = prevHash.String
		}

		eventHash := computeHash(prev, now, event.EventType, event.Action, string(event.Status), payloadJSON)

		res, execErr := tx.Exec(
			`INSERT INTO audit_events(event_time, event_type, action, status, payload, prev_hash, event_hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			now, event.EventType, event.Action, string(event.Status), payloadJSON, prev, eventHash,
		)
		if execErr != nil {
			return execErr
		}
		newID, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		// The caller's own error must not be masked by an audit failure;
		// log and return so the caller can decide whether to proceed.
		s.log.Error().Err(err).Str("event_type", event.EventType).Msg("audit write failed")
		return 0, err
	}
	return newID, nil
}

func computeHash(prevHash, eventTime, eventType, action, status, payloadJSON string) string {
	raw := strings.Join([]string{prevHash, eventTime, eventType, action, status, payloadJSON}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ListEvents returns the most recent events, optionally filtered by type.
func (s *Store) ListEvents(eventType string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `SELECT id, event_time, event_type, action, status, payload, prev_hash, event_hash FROM audit_events`
	args := []any{}
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(rows rowScanner) (domain.AuditEvent, error) {
	var (
		ev          domain.AuditEvent
		eventTimeS  string
		statusS     string
		payloadS    string
		prevHash    sql.NullString
		eventHash   sql.NullString
	)
	if err := rows.Scan(&ev.ID, &eventTimeS, &ev.EventType, &ev.Action, &statusS, &payloadS, &prevHash, &eventHash); err != nil {
		return ev, err
	}
	t, err := time.Parse(time.RFC3339Nano, eventTimeS)
	if err != nil {
		t, err = time.Parse(time.RFC3339, eventTimeS)
		if err != nil {
			return ev, fmt.Errorf("parse event_time %q: %w", eventTimeS, err)
		}
	}
	ev.EventTime = t
	ev.Status = domain.AuditStatus(statusS)
	ev.PrevHash = prevHash.String
	ev.EventHash = eventHash.String

	var payload map[string]any
	if err := json.Unmarshal([]byte(payloadS), &payload); err != nil {
		return ev, fmt.Errorf("decode payload: %w", err)
	}
	ev.Payload = payload
	return ev, nil
}

// VerifyResult is the outcome of a chain walk.
type VerifyResult struct {
	Valid        bool
	BrokenID     *int64
	CheckedCount int
}

// VerifyHashChain walks up to limit rows ascending by id, recomputing each
// event_hash from the accumulated previous hash. Rows with an empty
// event_hash (pre-migration legacy) are skipped but still counted.
func (s *Store) VerifyHashChain(limit int) (VerifyResult, error) {
	if limit <= 0 {
		limit = 5000
	}
	if limit > 50000 {
		limit = 50000
	}

	rows, err := s.db.Query(
		`SELECT id, event_time, event_type, action, status, payload, prev_hash, event_hash
		 FROM audit_events ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return VerifyResult{}, err
	}
	defer rows.Close()

	previousHash := ""
	checked := 0
	for rows.Next() {
		var (
			id                                                    int64
			eventTime, eventType, action, status, payload         string
			prevHash, eventHash                                   sql.NullString
		)
		if err := rows.Scan(&id, &eventTime, &eventType, &action, &status, &payload, &prevHash, &eventHash); err != nil {
			return VerifyResult{}, err
		}
		checked++

		hash := eventHash.String
		if hash == "" {
			continue // legacy row, predates hash-chain migration
		}

		expected := computeHash(previousHash, eventTime, eventType, action, status, payload)
		if prevHash.String != previousHash || hash != expected {
			brokenID := id
			return VerifyResult{Valid: false, BrokenID: &brokenID, CheckedCount: checked}, nil
		}
		previousHash = hash
	}
	if err := rows.Err(); err != nil {
		return VerifyResult{}, err
	}

	return VerifyResult{Valid: true, CheckedCount: checked}, nil
}
