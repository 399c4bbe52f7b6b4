package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/trading-assistant/internal/event"
)

type eventHandlers struct {
	svc *event.Service
	log zerolog.Logger
}

func registerEventRoutes(r chi.Router, svc *event.Service, log zerolog.Logger) {
	h := &eventHandlers{svc: svc, log: log.With().Str("handler", "events").Logger()}
	r.Route("/events", func(r chi.Router) {
		r.Post("/ingest", h.handleIngest)
		r.Get("/", h.handleList)
	})
}

type ingestRequest struct {
	SourceName string               `json:"source_name"`
	Events     []event.RecordCreate `json:"events"`
}

func (h *eventHandlers) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.svc.Ingest(req.SourceName, req.Events)
	if err != nil {
		writeError(h.log, w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, result)
}

func (h *eventHandlers) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	records, err := h.svc.ListEvents(event.ListFilter{
		Symbol:     r.URL.Query().Get("symbol"),
		SourceName: r.URL.Query().Get("source_name"),
		EventType:  r.URL.Query().Get("event_type"),
		Limit:      limit,
	})
	if err != nil {
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, records)
}
