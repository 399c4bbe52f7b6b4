package license

import (
	"strings"
	"time"
)

// CheckRequest is one license gating request.
type CheckRequest struct {
	DatasetName     string
	Provider        string
	RequestedUsage  string
	ExportRequested bool
	ExpectedRows    int
	AsOf            time.Time
}

// CheckResult is always populated with a watermark, even on denial, so
// callers can stamp exports regardless of outcome.
type CheckResult struct {
	Allowed           bool
	Reason            string
	Watermark         string
	AllowExport       bool
	MaxExportRows     *int
	MatchedLicenseID  *int64
	ExpiresOn         *time.Time
}

// Service wraps Store with the license-decision-order algorithm.
type Service struct {
	store *Store
}

func NewService(store *Store) *Service { return &Service{store: store} }

// Check applies the fixed decision order: no-match, usage scope, export
// allowed, export row cap, else allowed.
func (svc *Service) Check(req CheckRequest) (CheckResult, error) {
	lic, err := svc.store.LatestActive(req.DatasetName, req.Provider, req.AsOf)
	if err != nil {
		return CheckResult{}, err
	}
	if lic == nil {
		return CheckResult{
			Allowed:     false,
			Reason:      "no_active_license",
			Watermark:   defaultWatermark,
			AllowExport: false,
		}, nil
	}

	scopes := map[string]bool{}
	for _, scope := range lic.UsageScopes {
		scope = strings.ToLower(strings.TrimSpace(scope))
		if scope != "" {
			scopes[scope] = true
		}
	}
	requested := strings.ToLower(strings.TrimSpace(req.RequestedUsage))

	base := CheckResult{
		Watermark:        watermarkOrDefault(lic.Watermark),
		AllowExport:      lic.AllowExport,
		MaxExportRows:    lic.MaxExportRows,
		MatchedLicenseID: &lic.ID,
		ExpiresOn:        lic.ValidTo,
	}

	if len(scopes) > 0 && !scopes[requested] {
		base.Allowed = false
		base.Reason = "usage_scope_not_allowed:" + requested
		return base, nil
	}

	if req.ExportRequested && !lic.AllowExport {
		base.Allowed = false
		base.Reason = "export_not_allowed"
		return base, nil
	}

	if req.ExportRequested && lic.MaxExportRows != nil && req.ExpectedRows > *lic.MaxExportRows {
		base.Allowed = false
		base.Reason = "export_rows_exceeded"
		return base, nil
	}

	base.Allowed = true
	base.Reason = "ok"
	return base, nil
}

func watermarkOrDefault(w string) string {
	if w == "" {
		return defaultWatermark
	}
	return w
}
