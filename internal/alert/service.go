package alert

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
)

// auditReader is the subset of audit.Service sync_from_audit needs.
type auditReader interface {
	ListEvents(eventType string, limit int) ([]domain.AuditEvent, error)
}

// Service classifies audit events into alerts, matches them against
// subscriptions, deduplicates, and dispatches notifications to configured
// channels (including multi-stage on-call escalation).
type Service struct {
	store                *Store
	audit                auditReader
	dispatcher           Dispatcher
	defaultRunbookBaseURL string
}

func NewService(store *Store, audit auditReader, dispatcher Dispatcher, defaultRunbookBaseURL string) *Service {
	if dispatcher == nil {
		dispatcher = NoopDispatcher{}
	}
	return &Service{store: store, audit: audit, dispatcher: dispatcher, defaultRunbookBaseURL: defaultRunbookBaseURL}
}

func (s *Service) CreateSubscription(sub domain.Subscription) (int64, error) {
	return s.store.CreateSubscription(sub)
}

func (s *Service) ListSubscriptions(owner string, enabledOnly bool, limit int) ([]domain.Subscription, error) {
	return s.store.ListSubscriptions(owner, enabledOnly, limit)
}

func (s *Service) ListNotifications(subscriptionID int64, hasSubscriptionFilter, onlyUnacked bool, limit int) ([]domain.Notification, error) {
	return s.store.ListNotifications(subscriptionID, hasSubscriptionFilter, onlyUnacked, limit)
}

func (s *Service) AckNotification(notificationID int64) (bool, error) {
	return s.store.AckNotification(notificationID)
}

// NotificationPayloadCompact returns a notification's payload decoded from
// its msgpack-encoded column instead of the JSON one.
func (s *Service) NotificationPayloadCompact(notificationID int64) (map[string]any, error) {
	return s.store.GetNotificationPayloadCompact(notificationID)
}

func (s *Service) ListDeliveries(notificationID int64, limit int) ([]domain.Delivery, error) {
	return s.store.ListDeliveries(notificationID, 0, true, false, "", false, limit)
}

type classifiedAlert struct {
	severity domain.Severity
	source   string
	message  string
	payload  map[string]any
}

// SyncFromAudit pulls the most recent audit events (newest-first, like
// audit.query), replays them oldest-to-newest, classifies each one,
// matches it against enabled subscriptions, deduplicates within each
// subscription's window, and dispatches any fresh notification. Returns
// the count of notifications actually created.
func (s *Service) SyncFromAudit(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	events, err := s.audit.ListEvents("", limit)
	if err != nil {
		return 0, err
	}

	subs, err := s.store.ListSubscriptions("", true, 1000)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		alert := s.eventToAlert(event)
		if alert == nil {
			continue
		}
		for _, sub := range subs {
			if !subscriptionMatch(sub, event.EventType, alert.severity) {
				continue
			}
			dedupeKey := fmt.Sprintf("%s|%s", alert.source, alert.message)
			recent, err := s.store.ExistsRecentNotification(sub.ID, dedupeKey, sub.DedupeWindowSec)
			if err != nil {
				return created, err
			}
			if recent {
				continue
			}
			notificationID, ok, err := s.store.CreateNotification(sub.ID, event.ID, alert.severity, alert.source, alert.message, alert.payload, dedupeKey)
			if err != nil {
				return created, err
			}
			if !ok {
				continue
			}
			created++
			if err := s.dispatchNotification(ctx, sub, notificationID, event, alert); err != nil {
				return created, err
			}
		}
	}
	return created, nil
}

// eventToAlert classifies an audit event into an alert, honoring a fixed
// priority order across event types.
func (s *Service) eventToAlert(event domain.AuditEvent) *classifiedAlert {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	switch event.EventType {
	case "ops_sla", "event_connector_sla", "event_connector_sla_escalation":
		severity := domain.SeverityWarning
		if str, _ := payload["severity"].(string); str == "CRITICAL" {
			severity = domain.SeverityCritical
		}
		message := fmt.Sprintf("%s event.", event.EventType)
		if str, ok := payload["message"].(string); ok && str != "" {
			message = str
		} else if event.EventType == "event_connector_sla_escalation" {
			connector, _ := payload["connector"].(string)
			if connector == "" {
				connector = "connector"
			}
			reason, _ := payload["reason"].(string)
			message = fmt.Sprintf("%s escalation: %s", connector, reason)
		}
		return &classifiedAlert{severity: severity, source: event.EventType, message: message, payload: payload}
	}

	if strings.EqualFold(string(event.Status), string(domain.AuditStatusError)) {
		message := "Operation failed."
		if str, ok := payload["error"].(string); ok && str != "" {
			message = str
		}
		return &classifiedAlert{severity: domain.SeverityCritical, source: event.EventType, message: message, payload: payload}
	}

	if blocked, ok := payload["blocked"].(bool); ok && blocked {
		return &classifiedAlert{severity: domain.SeverityWarning, source: event.EventType, message: "Blocked signal or risk event.", payload: payload}
	}

	if event.EventType == "portfolio_risk" || event.EventType == "risk_check" {
		return &classifiedAlert{severity: domain.SeverityWarning, source: event.EventType, message: "Risk event generated.", payload: payload}
	}

	if event.EventType == "compliance" {
		if passed, ok := payload["passed"].(bool); ok && !passed {
			return &classifiedAlert{severity: domain.SeverityWarning, source: event.EventType, message: "Compliance preflight failed.", payload: payload}
		}
	}

	return nil
}

// subscriptionMatch reports whether a subscription should fire for the
// given event type and severity; an empty event_types list matches any
// event type.
func subscriptionMatch(sub domain.Subscription, eventType string, severity domain.Severity) bool {
	if len(sub.EventTypes) > 0 {
		matched := false
		for _, t := range sub.EventTypes {
			if t == eventType {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return domain.SeverityRank(severity) >= domain.SeverityRank(sub.MinSeverity)
}

func (s *Service) dispatchNotification(ctx context.Context, sub domain.Subscription, notificationID int64, event domain.AuditEvent, alert *classifiedAlert) error {
	if sub.Channel == domain.ChannelInbox {
		_, err := s.store.CreateDelivery(notificationID, sub.ID, sub.Channel, "inbox", domain.DeliverySkipped, "", map[string]any{"reason": "inbox_only"})
		return err
	}

	runbook := s.resolveRunbookURL(sub, alert.payload)
	escalationLevel := resolveEscalationLevel(alert.payload, alert.severity)
	subject := fmt.Sprintf("[%s] %s", alert.severity, alert.source)
	message := renderMessage(alert, event, escalationLevel, runbook)
	basePayload := map[string]any{
		"event_id":         event.ID,
		"source":           alert.source,
		"severity":         string(alert.severity),
		"escalation_level": escalationLevel,
		"runbook_url":      runbook,
	}

	if sub.Channel == domain.ChannelOncall {
		return s.dispatchOncall(ctx, sub, notificationID, subject, message, basePayload, escalationLevel)
	}

	targets := resolveTargets(sub.Channel, sub.ChannelConfig)
	if len(targets) == 0 {
		_, err := s.store.CreateDelivery(notificationID, sub.ID, sub.Channel, "", domain.DeliveryFailed, "channel target is empty", basePayload)
		return err
	}
	for _, target := range targets {
		result := s.dispatcher.Send(ctx, string(sub.Channel), target, subject, message, basePayload)
		status := domain.DeliveryFailed
		if result.Success {
			status = domain.DeliverySent
		}
		payload := clonePayload(basePayload)
		payload["provider_status"] = result.ProviderStatus
		if _, err := s.store.CreateDelivery(notificationID, sub.ID, sub.Channel, target, status, result.ErrorMessage, payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) dispatchOncall(ctx context.Context, sub domain.Subscription, notificationID int64, subject, message string, basePayload map[string]any, escalationLevel int) error {
	chain := resolveEscalationChain(sub)
	triggered := false

	for _, stage := range chain {
		if escalationLevel < stage.LevelThreshold {
			continue
		}
		channel := stage.Channel
		if channel == "" {
			channel = domain.ChannelIM
		}
		targets := stage.Targets
		if len(targets) == 0 {
			targets = resolveTargets(channel, sub.ChannelConfig)
		}
		if len(targets) == 0 {
			_, err := s.store.CreateDelivery(notificationID, sub.ID, channel, "", domain.DeliveryFailed,
				fmt.Sprintf("no targets for escalation stage >= L%d", stage.LevelThreshold), basePayload)
			if err != nil {
				return err
			}
			continue
		}
		triggered = true
		for _, target := range targets {
			result := s.dispatcher.Send(ctx, string(channel), target, subject, message, basePayload)
			status := domain.DeliveryFailed
			if result.Success {
				status = domain.DeliverySent
			}
			payload := clonePayload(basePayload)
			payload["provider_status"] = result.ProviderStatus
			payload["stage_note"] = stage.Note
			payload["stage_level_threshold"] = stage.LevelThreshold
			if _, err := s.store.CreateDelivery(notificationID, sub.ID, channel, target, status, result.ErrorMessage, payload); err != nil {
				return err
			}
		}
	}

	if !triggered {
		_, err := s.store.CreateDelivery(notificationID, sub.ID, domain.ChannelOncall, "", domain.DeliverySkipped,
			fmt.Sprintf("escalation level=%d did not match any escalation stage", escalationLevel), basePayload)
		return err
	}
	return nil
}

// resolveEscalationChain drops stages with no targets and no channel; an
// empty chain falls back to a single default IM stage at threshold 1.
func resolveEscalationChain(sub domain.Subscription) []domain.EscalationStage {
	var stages []domain.EscalationStage
	for _, stage := range sub.EscalationChain {
		if len(stage.Targets) == 0 && stage.Channel == "" {
			continue
		}
		stages = append(stages, stage)
	}
	if len(stages) == 0 {
		stages = []domain.EscalationStage{{LevelThreshold: 1, Channel: domain.ChannelIM, Targets: nil}}
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].LevelThreshold < stages[j].LevelThreshold })
	return stages
}

// resolveTargets looks up a channel-specific config key first, falling
// back to a generic one.
func resolveTargets(channel domain.Channel, config map[string]any) []string {
	if config == nil {
		return nil
	}
	switch channel {
	case domain.ChannelEmail:
		for _, key := range []string{"email_to", "to", "targets"} {
			if targets := toTargets(config[key]); len(targets) > 0 {
				return targets
			}
		}
	case domain.ChannelIM:
		for _, key := range []string{"im_to", "webhooks", "targets"} {
			if targets := toTargets(config[key]); len(targets) > 0 {
				return targets
			}
		}
	default:
		return toTargets(config["targets"])
	}
	return nil
}

// toTargets normalizes a raw JSON value (string, comma-separated string,
// or list) into a deduplicated, order-preserving slice of targets.
func toTargets(raw any) []string {
	var items []string
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				items = append(items, part)
			}
		}
	case []any:
		for _, e := range v {
			if str := strings.TrimSpace(fmt.Sprintf("%v", e)); str != "" {
				items = append(items, str)
			}
		}
	case []string:
		for _, e := range v {
			if str := strings.TrimSpace(e); str != "" {
				items = append(items, str)
			}
		}
	}

	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

// resolveEscalationLevel prefers an explicit integer in the payload
// (clamped 0..10), otherwise falls back to a severity-derived default.
func resolveEscalationLevel(payload map[string]any, severity domain.Severity) int {
	if raw, ok := payload["escalation_level"]; ok {
		var level int
		var parsed bool
		switch v := raw.(type) {
		case int:
			level, parsed = v, true
		case int64:
			level, parsed = int(v), true
		case float64:
			level, parsed = int(v), true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				level, parsed = n, true
			}
		}
		if parsed {
			if level < 0 {
				level = 0
			}
			if level > 10 {
				level = 10
			}
			return level
		}
	}
	switch severity {
	case domain.SeverityCritical:
		return 2
	case domain.SeverityWarning:
		return 1
	default:
		return 0
	}
}

// resolveRunbookURL checks the subscription override, then the
// payload-provided runbook, then the configured default base joined with
// a connector name, else empty.
func (s *Service) resolveRunbookURL(sub domain.Subscription, payload map[string]any) string {
	if sub.RunbookURL != "" {
		return sub.RunbookURL
	}
	if url, ok := payload["runbook_url"].(string); ok && url != "" {
		return url
	}
	connector, _ := payload["connector"].(string)
	if s.defaultRunbookBaseURL != "" && connector != "" {
		return fmt.Sprintf("%s/%s", s.defaultRunbookBaseURL, connector)
	}
	return ""
}

// renderMessage builds the multi-line notification body.
func renderMessage(alert *classifiedAlert, event domain.AuditEvent, escalationLevel int, runbook string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert Source: %s\n", alert.source)
	fmt.Fprintf(&b, "Severity: %s\n", alert.severity)
	fmt.Fprintf(&b, "Message: %s\n", alert.message)
	fmt.Fprintf(&b, "Event Time: %s\n", event.EventTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Audit Event ID: %d\n", event.ID)
	fmt.Fprintf(&b, "Escalation Level: %d\n", escalationLevel)
	if runbook != "" {
		fmt.Fprintf(&b, "Runbook: %s\n", runbook)
	}
	return b.String()
}

func clonePayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
