package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/license"
)

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	FormatCSV   ExportFormat = "csv"
	FormatJSONL ExportFormat = "jsonl"
)

// auditDatasetName is the license dataset key used when gating exports of
// the audit log itself.
const auditDatasetName = "audit_events"

// Service layers license-gated export and chain verification on top of Store.
type Service struct {
	store    *Store
	licenses *license.Service
}

func NewService(store *Store, licenses *license.Service) *Service {
	return &Service{store: store, licenses: licenses}
}

func (svc *Service) Write(event EventCreate) (int64, error) { return svc.store.Write(event) }

func (svc *Service) ListEvents(eventType string, limit int) ([]domain.AuditEvent, error) {
	return svc.store.ListEvents(eventType, limit)
}

func (svc *Service) VerifyChain(limit int) (VerifyResult, error) {
	return svc.store.VerifyHashChain(limit)
}

// Export renders up to limit events in the requested format, prefixed by a
// one-line watermark derived from the audit_events license check.
func (svc *Service) Export(format ExportFormat, eventType string, limit int, provider string) (string, error) {
	events, err := svc.store.ListEvents(eventType, limit)
	if err != nil {
		return "", err
	}

	watermark := "For Research Only"
	if svc.licenses != nil {
		result, err := svc.licenses.Check(license.CheckRequest{
			DatasetName:     auditDatasetName,
			Provider:        provider,
			RequestedUsage:  "export",
			ExportRequested: true,
			ExpectedRows:    len(events),
			AsOf:            time.Now().UTC(),
		})
		if err == nil {
			watermark = result.Watermark
		}
	}

	switch format {
	case FormatJSONL:
		return svc.exportJSONL(events, watermark)
	default:
		return svc.exportCSV(events, watermark)
	}
}

func (svc *Service) exportCSV(events []domain.AuditEvent, watermark string) (string, error) {
	var sb strings.Builder
	sb.WriteString("# watermark: " + watermark + "\n")

	w := csv.NewWriter(&sb)
	if err := w.Write([]string{"id", "event_time", "event_type", "action", "status", "payload_json"}); err != nil {
		return "", err
	}
	for _, ev := range events {
		payloadJSON, err := json.Marshal(ev.Payload)
		if err != nil {
			return "", err
		}
		record := []string{
			fmt.Sprintf("%d", ev.ID),
			ev.EventTime.Format(time.RFC3339Nano),
			ev.EventType,
			ev.Action,
			string(ev.Status),
			string(payloadJSON),
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (svc *Service) exportJSONL(events []domain.AuditEvent, watermark string) (string, error) {
	var sb strings.Builder
	sb.WriteString("# watermark: " + watermark + "\n")
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			return "", err
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
