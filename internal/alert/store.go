// Package alert turns audit-log events into deduplicated, routed
// notifications and dispatches them to subscriber channels, with
// multi-stage on-call escalation.
package alert

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
		return nil, fmt.Errorf("migrate alert store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alert_subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			name TEXT NOT NULL,
			owner TEXT NOT NULL,
			event_types TEXT NOT NULL,
			min_severity TEXT NOT NULL,
			dedupe_window_sec INTEGER NOT NULL,
			enabled INTEGER NOT NULL,
			channel TEXT NOT NULL,
			channel_config TEXT NOT NULL DEFAULT '{}',
			escalation_chain TEXT NOT NULL DEFAULT '[]',
			runbook_url TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS alert_notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subscription_id INTEGER NOT NULL,
			event_id INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			severity TEXT NOT NULL,
			source TEXT NOT NULL,
			message TEXT NOT NULL,
			payload TEXT NOT NULL,
			payload_compact BLOB,
			acked INTEGER NOT NULL DEFAULT 0,
			acked_at TEXT,
			dedupe_key TEXT NOT NULL,
			FOREIGN KEY(subscription_id) REFERENCES alert_subscriptions(id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_alert_unique_event ON alert_notifications(subscription_id, event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_lookup ON alert_notifications(subscription_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_unacked ON alert_notifications(acked, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS alert_deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			notification_id INTEGER NOT NULL,
			subscription_id INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			channel TEXT NOT NULL,
			target TEXT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL,
			payload TEXT NOT NULL,
			FOREIGN KEY(notification_id) REFERENCES alert_notifications(id),
			FOREIGN KEY(subscription_id) REFERENCES alert_subscriptions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_delivery_notification ON alert_deliveries(notification_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_delivery_subscription ON alert_deliveries(subscription_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func (s *Store) CreateSubscription(sub domain.Subscription) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	eventTypesJSON, err := json.Marshal(sub.EventTypes)
	if err != nil {
		return 0, err
	}
	channelConfigJSON, err := json.Marshal(sub.ChannelConfig)
	if err != nil {
		return 0, err
	}
	escalationJSON, err := json.Marshal(sub.EscalationChain)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO alert_subscriptions(created_at, updated_at, name, owner, event_types, min_severity, dedupe_window_sec, enabled, channel, channel_config, escalation_chain, runbook_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		now, now, sub.Name, sub.Owner, string(eventTypesJSON), string(sub.MinSeverity), sub.DedupeWindowSec,
		boolToInt(sub.Enabled), string(sub.Channel), string(channelConfigJSON), string(escalationJSON), nullableString(sub.RunbookURL),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) ListSubscriptions(owner string, enabledOnly bool, limit int) ([]domain.Subscription, error) {
	limit = clampLimit(limit, 200, 1000)
	query := `SELECT id, name, owner, event_types, min_severity, dedupe_window_sec, enabled, channel, channel_config, escalation_chain, runbook_url FROM alert_subscriptions WHERE 1 = 1`
	args := []any{}
	if owner != "" {
		query += " AND owner = ?"
		args = append(args, owner)
	}
	if enabledOnly {
		query += " AND enabled = 1"
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) ExistsRecentNotification(subscriptionID int64, dedupeKey string, windowSec int) (bool, error) {
	if windowSec <= 0 {
		return false, nil
	}
	threshold := time.Now().UTC().Add(-time.Duration(windowSec) * time.Second).Format(timeLayout)
	row := s.db.QueryRow(
		`SELECT 1 FROM alert_notifications WHERE subscription_id = ? AND dedupe_key = ? AND created_at >= ? LIMIT 1`,
		subscriptionID, dedupeKey, threshold,
	)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateNotification returns (id, true) on success, or (0, false) if the
// unique (subscription_id, event_id) index rejected a duplicate insert.
func (s *Store) CreateNotification(subscriptionID, eventID int64, severity domain.Severity, source, message string, payload map[string]any, dedupeKey string) (int64, bool, error) {
	now := time.Now().UTC().Format(timeLayout)
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, false, err
	}
	// payload_compact mirrors payload in msgpack, for on-call tooling that
	// polls notifications frequently and wants to skip JSON parsing.
	payloadCompact, err := msgpack.Marshal(payload)
	if err != nil {
		return 0, false, err
	}
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO alert_notifications(subscription_id, event_id, created_at, severity, source, message, payload, payload_compact, acked, acked_at, dedupe_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)`,
		subscriptionID, eventID, now, string(severity), source, message, string(payloadJSON), payloadCompact, dedupeKey,
	)
	if err != nil {
		return 0, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	return id, true, nil
}

// GetNotificationPayloadCompact decodes a notification's msgpack-encoded
// payload directly, bypassing the JSON column.
func (s *Store) GetNotificationPayloadCompact(notificationID int64) (map[string]any, error) {
	var blob []byte
	row := s.db.QueryRow(`SELECT payload_compact FROM alert_notifications WHERE id = ?`, notificationID)
	if err := row.Scan(&blob); err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := msgpack.Unmarshal(blob, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Store) ListNotifications(subscriptionID int64, hasSubscriptionFilter, onlyUnacked bool, limit int) ([]domain.Notification, error) {
	limit = clampLimit(limit, 200, 2000)
	query := `SELECT id, subscription_id, event_id, created_at, severity, source, message, payload, acked, acked_at FROM alert_notifications WHERE 1 = 1`
	args := []any{}
	if hasSubscriptionFilter {
		query += " AND subscription_id = ?"
		args = append(args, subscriptionID)
	}
	if onlyUnacked {
		query += " AND acked = 0"
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountNotifications(onlyUnacked bool, severity domain.Severity, hasSeverityFilter bool) (int, error) {
	query := `SELECT COUNT(1) AS c FROM alert_notifications WHERE 1 = 1`
	args := []any{}
	if onlyUnacked {
		query += " AND acked = 0"
	}
	if hasSeverityFilter {
		query += " AND severity = ?"
		args = append(args, string(severity))
	}
	row := s.db.QueryRow(query, args...)
	var c int
	if err := row.Scan(&c); err != nil {
		return 0, err
	}
	return c, nil
}

func (s *Store) AckNotification(notificationID int64) (bool, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.Exec(`UPDATE alert_notifications SET acked = 1, acked_at = ? WHERE id = ? AND acked = 0`, now, notificationID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) CreateDelivery(notificationID, subscriptionID int64, channel domain.Channel, target string, status domain.DeliveryStatus, errorMessage string, payload map[string]any) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO alert_deliveries(notification_id, subscription_id, created_at, channel, target, status, error_message, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		notificationID, subscriptionID, now, string(channel), target, string(status), errorMessage, string(payloadJSON),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) ListDeliveries(notificationID, subscriptionID int64, hasNotificationFilter, hasSubscriptionFilter bool, status domain.DeliveryStatus, hasStatusFilter bool, limit int) ([]domain.Delivery, error) {
	limit = clampLimit(limit, 200, 5000)
	query := `SELECT id, notification_id, subscription_id, created_at, channel, target, status, error_message, payload FROM alert_deliveries WHERE 1 = 1`
	args := []any{}
	if hasNotificationFilter {
		query += " AND notification_id = ?"
		args = append(args, notificationID)
	}
	if hasSubscriptionFilter {
		query += " AND subscription_id = ?"
		args = append(args, subscriptionID)
	}
	if hasStatusFilter {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
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

func scanSubscription(row rowScanner) (domain.Subscription, error) {
	var sub domain.Subscription
	var minSeverity, channel, eventTypesJSON, channelConfigJSON, escalationJSON string
	var enabledInt int
	var runbookURL sql.NullString
	if err := row.Scan(&sub.ID, &sub.Name, &sub.Owner, &eventTypesJSON, &minSeverity, &sub.DedupeWindowSec,
		&enabledInt, &channel, &channelConfigJSON, &escalationJSON, &runbookURL); err != nil {
		return domain.Subscription{}, err
	}
	sub.MinSeverity = domain.Severity(minSeverity)
	sub.Enabled = enabledInt != 0
	sub.Channel = domain.Channel(channel)
	if runbookURL.Valid {
		sub.RunbookURL = runbookURL.String
	}
	_ = json.Unmarshal([]byte(eventTypesJSON), &sub.EventTypes)
	var channelConfig map[string]any
	if err := json.Unmarshal([]byte(channelConfigJSON), &channelConfig); err == nil {
		sub.ChannelConfig = channelConfig
	}
	var chain []domain.EscalationStage
	_ = json.Unmarshal([]byte(escalationJSON), &chain)
	sub.EscalationChain = chain
	return sub, nil
}

func scanNotification(row rowScanner) (domain.Notification, error) {
	var n domain.Notification
	var createdAt, severity, payloadJSON string
	var ackedInt int
	var ackedAt sql.NullString
	if err := row.Scan(&n.ID, &n.SubscriptionID, &n.EventID, &createdAt, &severity, &n.Source, &n.Message, &payloadJSON, &ackedInt, &ackedAt); err != nil {
		return domain.Notification{}, err
	}
	n.Severity = domain.Severity(severity)
	n.Acked = ackedInt != 0
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		n.CreatedAt = t
	}
	if ackedAt.Valid && ackedAt.String != "" {
		if t, err := time.Parse(timeLayout, ackedAt.String); err == nil {
			n.AckedAt = &t
		}
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err == nil {
		n.Payload = payload
	}
	return n, nil
}

func scanDelivery(row rowScanner) (domain.Delivery, error) {
	var d domain.Delivery
	var createdAt, channel, status, payloadJSON string
	if err := row.Scan(&d.ID, &d.NotificationID, &d.SubscriptionID, &createdAt, &channel, &d.Target, &status, &d.ErrorMessage, &payloadJSON); err != nil {
		return domain.Delivery{}, err
	}
	d.Channel = domain.Channel(channel)
	d.Status = domain.DeliveryStatus(status)
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		d.CreatedAt = t
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err == nil {
		d.Payload = payload
	}
	return d, nil
}
