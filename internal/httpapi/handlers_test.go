package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mhollis/netatmo-publisher/internal/models"
)

type fakeReports struct {
	report *models.RunReport
}

func (f *fakeReports) LastReport() *models.RunReport { return f.report }

func getHealth(t *testing.T, h *Handler) (int, healthResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, req)

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("health response not JSON: %v", err)
	}
	return rec.Code, resp
}

func TestGetHealth_StartingBeforeFirstRun(t *testing.T) {
	h := NewHandler(&fakeReports{}, zap.NewNop(), nil)

	code, resp := getHealth(t, h)
	if code != http.StatusOK {
		t.Errorf("status code = %d, want 200", code)
	}
	if resp.Status != "starting" {
		t.Errorf("status = %q, want starting", resp.Status)
	}
	if resp.LastRun != nil {
		t.Error("lastRun present before first run")
	}
}

func TestGetHealth_ReflectsLastRun(t *testing.T) {
	report := &models.RunReport{
		RunID:      "run-1",
		FinishedAt: time.Now(),
		Connected:  true,
		Outcomes:   []models.RunOutcome{{StationID: "aa:01", Succeeded: true}},
		Writes:     3,
	}
	h := NewHandler(&fakeReports{report: report}, zap.NewNop(), nil)

	code, resp := getHealth(t, h)
	if code != http.StatusOK {
		t.Errorf("status code = %d, want 200", code)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.LastRun == nil || resp.LastRun.RunID != "run-1" || resp.LastRun.Writes != 3 {
		t.Errorf("lastRun = %+v, want run-1 with 3 writes", resp.LastRun)
	}
}

func TestGetHealth_DisconnectedRun(t *testing.T) {
	report := &models.RunReport{
		RunID:     "run-2",
		Connected: false,
		Diagnostics: []models.Diagnostic{
			{Kind: models.ErrorKindAuthentication, Message: "token exchange HTTP 503"},
		},
	}
	h := NewHandler(&fakeReports{report: report}, zap.NewNop(), nil)

	code, resp := getHealth(t, h)
	if code != http.StatusOK {
		t.Errorf("status code = %d, want 200", code)
	}
	if resp.Status != "disconnected" {
		t.Errorf("status = %q, want disconnected", resp.Status)
	}
	if resp.LastRun == nil || resp.LastRun.Diagnostics != 1 {
		t.Errorf("lastRun = %+v, want 1 diagnostic", resp.LastRun)
	}
}

func TestGetHealth_StateStoreUnreachable(t *testing.T) {
	h := NewHandler(&fakeReports{}, zap.NewNop(), func() error {
		return errors.New("connection refused")
	})

	code, resp := getHealth(t, h)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", code)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
}

func TestMetricsEndpointWired(t *testing.T) {
	h := NewHandler(&fakeReports{}, zap.NewNop(), nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("metrics status code = %d, want 200", rec.Code)
	}
}
