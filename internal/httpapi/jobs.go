package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/job"
)

type jobHandlers struct {
	svc *job.Service
	log zerolog.Logger
}

func registerJobRoutes(r chi.Router, svc *job.Service, log zerolog.Logger) {
	h := &jobHandlers{svc: svc, log: log.With().Str("handler", "jobs").Logger()}
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.handleRegister)
		r.Get("/", h.handleList)
		r.Post("/{jobID}/trigger", h.handleTrigger)
		r.Get("/{jobID}/runs", h.handleListRuns)
		r.Get("/runs/{runID}/compact", h.handleRunCompact)
	})
}

type registerJobRequest struct {
	Name         string         `json:"name"`
	JobType      string         `json:"job_type"`
	Payload      map[string]any `json:"payload"`
	Owner        string         `json:"owner"`
	ScheduleCron string         `json:"schedule_cron"`
	Status       string         `json:"status"`
	Description  string         `json:"description"`
}

func (h *jobHandlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := domain.JobStatus(req.Status)
	if status == "" {
		status = domain.JobActive
	}
	id, err := h.svc.Register(domain.JobDefinition{
		Name: req.Name, JobType: req.JobType, Payload: req.Payload, Owner: req.Owner,
		ScheduleCron: req.ScheduleCron, Status: status, Description: req.Description,
	})
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusCreated, map[string]any{"id": id})
}

func (h *jobHandlers) handleList(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"
	defs, err := h.svc.ListJobs(activeOnly, 200)
	if err != nil {
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, defs)
}

func (h *jobHandlers) handleTrigger(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid job id")
		return
	}
	triggeredBy := r.URL.Query().Get("triggered_by")
	if triggeredBy == "" {
		triggeredBy = roleOrDefault(r, "api")
	}
	run, err := h.svc.Trigger(jobID, triggeredBy)
	if err != nil {
		writeError(h.log, w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, run)
}

func (h *jobHandlers) handleListRuns(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid job id")
		return
	}
	runs, err := h.svc.ListRuns(jobID, 100)
	if err != nil {
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, runs)
}

// handleRunCompact serves a run's result summary from the msgpack column,
// useful for clients that already speak msgpack and want to skip the JSON
// round-trip this endpoint would otherwise pay on the response body.
func (h *jobHandlers) handleRunCompact(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	summary, err := h.svc.ResultSummaryCompact(runID)
	if err != nil {
		writeError(h.log, w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, summary)
}

func roleOrDefault(r *http.Request, def string) string {
	if role := roleFromContext(r.Context()); role != "" {
		return role
	}
	return def
}
