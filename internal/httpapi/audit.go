package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/trading-assistant/internal/audit"
)

type auditHandlers struct {
	svc      *audit.Service
	s3Backup audit.S3BackupConfig
	log      zerolog.Logger
}

func registerAuditRoutes(r chi.Router, svc *audit.Service, s3Backup audit.S3BackupConfig, log zerolog.Logger) {
	h := &auditHandlers{svc: svc, s3Backup: s3Backup, log: log.With().Str("handler", "audit").Logger()}
	r.Route("/audit", func(r chi.Router) {
		r.Get("/export", h.handleExport)
		r.Get("/verify-chain", h.handleVerifyChain)
		r.Post("/backup-s3", h.handleBackupS3)
	})
}

func (h *auditHandlers) handleExport(w http.ResponseWriter, r *http.Request) {
	format := audit.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = audit.FormatJSONL
	}
	eventType := r.URL.Query().Get("event_type")
	provider := r.URL.Query().Get("provider")
	limit := 1000
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	body, err := h.svc.Export(format, eventType, limit, provider)
	if err != nil {
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	contentType := "text/csv"
	if format == audit.FormatJSONL {
		contentType = "application/x-ndjson"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (h *auditHandlers) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	limit := 1000
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	result, err := h.svc.VerifyChain(limit)
	if err != nil {
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, result)
}

// handleBackupS3 pushes the recent audit log to the configured off-box
// bucket on demand; returns 503 when no bucket is configured.
func (h *auditHandlers) handleBackupS3(w http.ResponseWriter, r *http.Request) {
	key, err := h.svc.BackupToS3(r.Context(), h.s3Backup)
	if err != nil {
		writeError(h.log, w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, map[string]any{"bucket": h.s3Backup.Bucket, "key": key})
}
