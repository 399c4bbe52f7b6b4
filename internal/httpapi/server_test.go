package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/trading-assistant/internal/config"
	"github.com/aristath/trading-assistant/internal/di"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	memPath := func(name string) string {
		return fmt.Sprintf("file:httpapi_%s_%s?mode=memory&cache=shared", t.Name(), name)
	}
	cfg := &config.Config{
		LogLevel:            "info",
		Port:                0,
		AuditDBPath:         memPath("audit"),
		SnapshotDBPath:      memPath("snapshot"),
		LicenseDBPath:       memPath("license"),
		EventDBPath:         memPath("event"),
		ReplayDBPath:        memPath("replay"),
		AlertDBPath:         memPath("alert"),
		JobDBPath:           memPath("job"),
		StrategyGovDBPath:   memPath("strategy_gov"),
		AutotuneDBPath:      memPath("autotune"),
		MarketCacheDBPath:   memPath("market_cache"),
		OpsSchedulerTimezone: "UTC",
	}

	container, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	return New(Config{Log: zerolog.Nop(), Port: 0}, container)
}

func TestHealthEndpointReportsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestRegisterAndTriggerJobOverHTTP(t *testing.T) {
	s := newTestServer(t)

	registerBody := `{"name":"daily pipeline","job_type":"pipeline_run","owner":"ops","status":"ACTIVE"}`
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/", strings.NewReader(registerBody))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created["id"])

	listReq := httptest.NewRequest(http.MethodGet, "/api/jobs/", nil)
	listRec := httptest.NewRecorder()
	s.router.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)
}
