package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mhollis/netatmo-publisher/internal/models"
	"github.com/mhollis/netatmo-publisher/internal/observability"
)

// ReportSource exposes the most recent run report.
type ReportSource interface {
	LastReport() *models.RunReport
}

// Handler serves the operational surface: health and metrics. There is no
// data API; published values live in the state store.
type Handler struct {
	reports ReportSource
	logger  *zap.Logger
	// StatePing, when set, is called to check state-store reachability.
	// Used when the backend is memcached.
	statePing func() error
}

// NewHandler returns a new Handler.
func NewHandler(reports ReportSource, logger *zap.Logger, statePing func() error) *Handler {
	return &Handler{
		reports:   reports,
		logger:    logger,
		statePing: statePing,
	}
}

// NewRouter wires the handler into a mux router.
func NewRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	return router
}

type healthRun struct {
	RunID       string    `json:"runId"`
	FinishedAt  time.Time `json:"finishedAt"`
	Connected   bool      `json:"connected"`
	Stations    int       `json:"stations"`
	Writes      int       `json:"writes"`
	Diagnostics int       `json:"diagnostics"`
}

type healthResponse struct {
	Status  string     `json:"status"`
	LastRun *healthRun `json:"lastRun,omitempty"`
}

// GetHealth handles GET /health. Status is "starting" before the first run,
// then mirrors the last run's connectivity; an unreachable state store
// degrades the response to 503.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "starting"}
	code := http.StatusOK

	if report := h.reports.LastReport(); report != nil {
		resp.LastRun = &healthRun{
			RunID:       report.RunID,
			FinishedAt:  report.FinishedAt,
			Connected:   report.Connected,
			Stations:    len(report.Outcomes),
			Writes:      report.Writes,
			Diagnostics: len(report.Diagnostics),
		}
		if report.Connected {
			resp.Status = "ok"
		} else {
			resp.Status = "disconnected"
		}
	}

	if h.statePing != nil {
		if err := h.statePing(); err != nil {
			h.logger.Warn("state store unreachable", zap.Error(err))
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("health response encode", zap.Error(err))
	}
}
