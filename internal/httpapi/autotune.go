package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/trading-assistant/internal/autotune"
)

type autotuneHandlers struct {
	svc *autotune.Service
	log zerolog.Logger
}

func registerAutotuneRoutes(r chi.Router, svc *autotune.Service, log zerolog.Logger) {
	h := &autotuneHandlers{svc: svc, log: log.With().Str("handler", "autotune").Logger()}
	r.Route("/autotune", func(r chi.Router) {
		r.Post("/resolve", h.handleResolve)
		r.Post("/profiles/{id}/activate", h.handleActivate)
		r.Get("/profiles", h.handleListProfiles)
	})
}

type resolveRequest struct {
	StrategyName string         `json:"strategy_name"`
	Symbol       string         `json:"symbol"`
	Explicit     map[string]any `json:"explicit"`
	UseProfile   bool           `json:"use_profile"`
}

func (h *autotuneHandlers) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body")
		return
	}
	params, profile, err := h.svc.ResolveRuntimeParams(req.StrategyName, req.Symbol, req.Explicit, req.UseProfile)
	if err != nil {
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, map[string]any{"params": params, "profile": profile})
}

func (h *autotuneHandlers) handleActivate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid profile id")
		return
	}
	profile, err := h.svc.ActivateProfile(id)
	if err != nil {
		writeError(h.log, w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, profile)
}

func (h *autotuneHandlers) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	strategyName := r.URL.Query().Get("strategy_name")
	symbol := r.URL.Query().Get("symbol")
	activeOnly := r.URL.Query().Get("active_only") == "true"
	profiles, err := h.svc.ListProfiles(strategyName, symbol, activeOnly, 200)
	if err != nil {
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, profiles)
}
