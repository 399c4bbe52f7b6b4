package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/trading-assistant/internal/domain"
	"github.com/aristath/trading-assistant/internal/governance"
)

type governanceHandlers struct {
	svc *governance.Service
	log zerolog.Logger
}

func registerGovernanceRoutes(r chi.Router, svc *governance.Service, log zerolog.Logger) {
	h := &governanceHandlers{svc: svc, log: log.With().Str("handler", "governance").Logger()}
	r.Route("/governance", func(r chi.Router) {
		r.Post("/drafts", h.handleRegisterDraft)
		r.Post("/decisions", h.handleDecide)
		r.Get("/versions", h.handleListVersions)
	})
}

type registerDraftRequest struct {
	StrategyName string `json:"strategy_name"`
	Version      string `json:"version"`
	Description  string `json:"description"`
	ParamsHash   string `json:"params_hash"`
	CreatedBy    string `json:"created_by"`
}

func (h *governanceHandlers) handleRegisterDraft(w http.ResponseWriter, r *http.Request) {
	var req registerDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := h.svc.RegisterDraft(req.StrategyName, req.Version, req.Description, req.ParamsHash, req.CreatedBy)
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusCreated, map[string]any{"id": id})
}

type decideRequest struct {
	StrategyName string                      `json:"strategy_name"`
	Version      string                      `json:"version"`
	Reviewer     string                      `json:"reviewer"`
	ReviewerRole string                      `json:"reviewer_role"`
	Decision     domain.StrategyDecisionType `json:"decision"`
	Note         string                      `json:"note"`
}

func (h *governanceHandlers) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body")
		return
	}
	version, err := h.svc.Decide(req.StrategyName, req.Version, req.Reviewer, req.ReviewerRole, req.Decision, req.Note)
	if err != nil {
		writeError(h.log, w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, version)
}

func (h *governanceHandlers) handleListVersions(w http.ResponseWriter, r *http.Request) {
	strategyName := r.URL.Query().Get("strategy_name")
	versions, err := h.svc.ListVersions(strategyName, 200)
	if err != nil {
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, versions)
}
