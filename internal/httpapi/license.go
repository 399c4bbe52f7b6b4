package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/trading-assistant/internal/license"
)

type licenseHandlers struct {
	svc *license.Service
	log zerolog.Logger
}

func registerLicenseRoutes(r chi.Router, svc *license.Service, log zerolog.Logger) {
	h := &licenseHandlers{svc: svc, log: log.With().Str("handler", "license").Logger()}
	r.Route("/licenses", func(r chi.Router) {
		r.Post("/check", h.handleCheck)
	})
}

type checkLicenseRequest struct {
	DatasetName     string `json:"dataset_name"`
	Provider        string `json:"provider"`
	RequestedUsage  string `json:"requested_usage"`
	ExportRequested bool   `json:"export_requested"`
	ExpectedRows    int    `json:"expected_rows"`
}

func (h *licenseHandlers) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.svc.Check(license.CheckRequest{
		DatasetName:     req.DatasetName,
		Provider:        req.Provider,
		RequestedUsage:  req.RequestedUsage,
		ExportRequested: req.ExportRequested,
		ExpectedRows:    req.ExpectedRows,
		AsOf:            time.Now().UTC(),
	})
	if err != nil {
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, result)
}
