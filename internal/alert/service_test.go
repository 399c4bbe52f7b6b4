package alert

import (
	"context"
	"fmt"
	"testing"

	"github.com/aristath/trading-assistant/internal/audit"
	"github.com/aristath/trading-assistant/internal/database"
	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	calls []string
}

func (f *fakeDispatcher) Send(ctx context.Context, channel, target, subject, message string, payload map[string]any) SendResult {
	f.calls = append(f.calls, fmt.Sprintf("%s:%s", channel, target))
	return SendResult{Success: true, ProviderStatus: "200"}
}

func newTestService(t *testing.T, dispatcher Dispatcher) (*Service, *audit.Service) {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:alert_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileLedger,
		Name:    "alert_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)

	auditStore, err := audit.NewStore(db, zerolog.Nop())
	require.NoError(t, err)
	auditSvc := audit.NewService(auditStore, nil)

	return NewService(store, auditSvc, dispatcher, "https://runbooks.example.com"), auditSvc
}

func TestSyncFromAuditCreatesNotificationOnErrorEvent(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, auditSvc := newTestService(t, dispatcher)

	_, err := svc.CreateSubscription(domain.Subscription{
		Name: "ops", Owner: "ops-team", MinSeverity: domain.SeverityWarning,
		Enabled: true, Channel: domain.ChannelIM, DedupeWindowSec: 3600,
		ChannelConfig: map[string]any{"im_to": "https://hooks.example.com/ops"},
	})
	require.NoError(t, err)

	_, err = auditSvc.Write(audit.EventCreate{EventType: "data_ingest", Action: "fetch", Status: domain.AuditStatusError, Payload: map[string]any{"error": "provider timeout"}})
	require.NoError(t, err)

	created, err := svc.SyncFromAudit(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.Len(t, dispatcher.calls, 1)

	notifications, err := svc.ListNotifications(0, false, false, 10)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	require.Equal(t, domain.SeverityCritical, notifications[0].Severity)
}

func TestNotificationPayloadCompactRoundTripsMsgpackEncoding(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, auditSvc := newTestService(t, dispatcher)

	_, err := svc.CreateSubscription(domain.Subscription{
		Name: "ops", Owner: "ops-team", MinSeverity: domain.SeverityWarning,
		Enabled: true, Channel: domain.ChannelIM, DedupeWindowSec: 3600,
		ChannelConfig: map[string]any{"im_to": "https://hooks.example.com/ops"},
	})
	require.NoError(t, err)

	_, err = auditSvc.Write(audit.EventCreate{EventType: "data_ingest", Action: "fetch", Status: domain.AuditStatusError, Payload: map[string]any{"error": "provider timeout"}})
	require.NoError(t, err)

	created, err := svc.SyncFromAudit(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	notifications, err := svc.ListNotifications(0, false, false, 10)
	require.NoError(t, err)
	require.Len(t, notifications, 1)

	compact, err := svc.NotificationPayloadCompact(notifications[0].ID)
	require.NoError(t, err)
	require.Equal(t, notifications[0].Payload["error"], compact["error"])
}

func TestSyncFromAuditDeduplicatesWithinWindow(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, auditSvc := newTestService(t, dispatcher)

	_, err := svc.CreateSubscription(domain.Subscription{
		Name: "ops", Owner: "ops-team", MinSeverity: domain.SeverityWarning,
		Enabled: true, Channel: domain.ChannelIM, DedupeWindowSec: 3600,
		ChannelConfig: map[string]any{"im_to": "https://hooks.example.com/ops"},
	})
	require.NoError(t, err)

	_, err = auditSvc.Write(audit.EventCreate{EventType: "risk_check", Action: "evaluate", Status: domain.AuditStatusOK, Payload: map[string]any{}})
	require.NoError(t, err)
	_, err = auditSvc.Write(audit.EventCreate{EventType: "risk_check", Action: "evaluate", Status: domain.AuditStatusOK, Payload: map[string]any{}})
	require.NoError(t, err)

	created, err := svc.SyncFromAudit(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 1, created)
}

func TestEventToAlertSkipsInfoEvents(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, _ := newTestService(t, dispatcher)

	alert := svc.eventToAlert(domain.AuditEvent{EventType: "data_ingest", Status: domain.AuditStatusOK, Payload: map[string]any{}})
	require.Nil(t, alert)
}

func TestDispatchOncallEscalatesToHigherStage(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, auditSvc := newTestService(t, dispatcher)

	_, err := svc.CreateSubscription(domain.Subscription{
		Name: "oncall", Owner: "ops-team", MinSeverity: domain.SeverityWarning,
		Enabled: true, Channel: domain.ChannelOncall, DedupeWindowSec: 3600,
		EscalationChain: []domain.EscalationStage{
			{LevelThreshold: 1, Channel: domain.ChannelIM, Targets: []string{"https://hooks.example.com/im"}},
			{LevelThreshold: 2, Channel: domain.ChannelPagerDuty, Targets: []string{"https://events.pagerduty.com/v2/enqueue"}},
		},
	})
	require.NoError(t, err)

	_, err = auditSvc.Write(audit.EventCreate{EventType: "data_ingest", Action: "fetch", Status: domain.AuditStatusError, Payload: map[string]any{"error": "provider down", "escalation_level": 2}})
	require.NoError(t, err)

	created, err := svc.SyncFromAudit(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.Len(t, dispatcher.calls, 2)
}

func TestAckNotificationIsIdempotent(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	svc, auditSvc := newTestService(t, dispatcher)

	_, err := svc.CreateSubscription(domain.Subscription{
		Name: "ops", Owner: "ops-team", MinSeverity: domain.SeverityWarning,
		Enabled: true, Channel: domain.ChannelInbox, DedupeWindowSec: 3600,
	})
	require.NoError(t, err)
	_, err = auditSvc.Write(audit.EventCreate{EventType: "risk_check", Status: domain.AuditStatusOK, Payload: map[string]any{}})
	require.NoError(t, err)
	_, err = svc.SyncFromAudit(context.Background(), 100)
	require.NoError(t, err)

	notifications, err := svc.ListNotifications(0, false, false, 10)
	require.NoError(t, err)
	require.Len(t, notifications, 1)

	acked, err := svc.AckNotification(notifications[0].ID)
	require.NoError(t, err)
	require.True(t, acked)

	ackedAgain, err := svc.AckNotification(notifications[0].ID)
	require.NoError(t, err)
	require.False(t, ackedAgain)
}
