package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/trading-assistant/internal/alert"
)

type alertHandlers struct {
	svc *alert.Service
	log zerolog.Logger
}

func registerAlertRoutes(r chi.Router, svc *alert.Service, log zerolog.Logger) {
	h := &alertHandlers{svc: svc, log: log.With().Str("handler", "alerts").Logger()}
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/notifications", h.handleListNotifications)
		r.Post("/notifications/{id}/ack", h.handleAck)
		r.Get("/notifications/{id}/payload-compact", h.handlePayloadCompact)
		r.Post("/sync", h.handleSync)
	})
}

func (h *alertHandlers) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	onlyUnacked := r.URL.Query().Get("unacked") == "true"
	notifications, err := h.svc.ListNotifications(0, false, onlyUnacked, 100)
	if err != nil {
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, notifications)
}

func (h *alertHandlers) handleAck(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid notification id")
		return
	}
	acked, err := h.svc.AckNotification(id)
	if err != nil {
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, map[string]any{"acked": acked})
}

func (h *alertHandlers) handlePayloadCompact(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid notification id")
		return
	}
	payload, err := h.svc.NotificationPayloadCompact(id)
	if err != nil {
		writeError(h.log, w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, payload)
}

func (h *alertHandlers) handleSync(w http.ResponseWriter, r *http.Request) {
	created, err := h.svc.SyncFromAudit(r.Context(), 500)
	if err != nil {
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, map[string]any{"created": created})
}
