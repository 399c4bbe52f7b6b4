package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/trading-assistant/internal/pipeline"
)

type pipelineHandlers struct {
	runner *pipeline.Runner
	log    zerolog.Logger
}

func registerPipelineRoutes(r chi.Router, runner *pipeline.Runner, log zerolog.Logger) {
	h := &pipelineHandlers{runner: runner, log: log.With().Str("handler", "pipeline").Logger()}
	r.Route("/signals", func(r chi.Router) {
		r.Post("/generate", h.handleGenerate)
	})
}

type generateRequest struct {
	StrategyName           string   `json:"strategy_name"`
	Symbols                []string `json:"symbols"`
	StartDate              string   `json:"start_date"`
	EndDate                string   `json:"end_date"`
	EnableSmallCapitalMode bool     `json:"enable_small_capital_mode"`
	SmallCapitalPrincipal  *float64 `json:"small_capital_principal"`
}

// handleGenerate runs the daily pipeline synchronously for the requested
// symbols and date range.
func (h *pipelineHandlers) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StrategyName == "" || len(req.Symbols) == 0 {
		writeError(h.log, w, http.StatusBadRequest, "strategy_name and symbols are required")
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid start_date")
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid end_date")
		return
	}

	runID := chi.URLParam(r, "run_id")
	if runID == "" {
		runID = time.Now().UTC().Format("20060102T150405.000000000")
	}

	result, err := h.runner.Run(r.Context(), runID, pipeline.RunRequest{
		StrategyName:           req.StrategyName,
		Symbols:                req.Symbols,
		StartDate:              start,
		EndDate:                end,
		EnableSmallCapitalMode: req.EnableSmallCapitalMode,
		SmallCapitalPrincipal:  req.SmallCapitalPrincipal,
	})
	if err != nil {
		writeError(h.log, w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, result)
}
