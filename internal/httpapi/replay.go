package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/replay"
)

type replayHandlers struct {
	svc *replay.Service
	log zerolog.Logger
}

func registerReplayRoutes(r chi.Router, svc *replay.Service, log zerolog.Logger) {
	h := &replayHandlers{svc: svc, log: log.With().Str("handler", "replay").Logger()}
	r.Route("/replay", func(r chi.Router) {
		r.Post("/signals", h.handleRecordSignal)
		r.Post("/executions", h.handleRecordExecution)
		r.Get("/report", h.handleReport)
	})
}

func (h *replayHandlers) handleRecordSignal(w http.ResponseWriter, r *http.Request) {
	var record domain.SignalRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := h.svc.RecordSignal(record)
	if err != nil {
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusCreated, map[string]any{"signal_id": id})
}

func (h *replayHandlers) handleRecordExecution(w http.ResponseWriter, r *http.Request) {
	var record domain.ExecutionRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := h.svc.RecordExecution(record)
	if err != nil {
		writeError(h.log, w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusCreated, map[string]any{"id": id})
}

func (h *replayHandlers) handleReport(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	limit := 500
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	var start, end *time.Time
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			start = &t
		}
	}
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			end = &t
		}
	}

	report, err := h.svc.Report(symbol, start, end, limit)
	if err != nil {
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, report)
}
