package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/desertthunder/tautsync/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunLister reads the sync audit trail, newest first.
type RunLister interface {
	List(ctx context.Context, limit int) ([]*models.SyncRun, error)
}

// HealthReport is the /healthz response body.
type HealthReport struct {
	Status  string          `json:"status"`
	LastRun *models.SyncRun `json:"last_run,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// StatusHandler serves Prometheus metrics at /metrics and the last sync outcome at /healthz.
type StatusHandler struct {
	metrics http.Handler
	runs    RunLister
}

// NewStatusHandler exposes gatherer and reads run state from runs.
func NewStatusHandler(gatherer prometheus.Gatherer, runs RunLister) *StatusHandler {
	return &StatusHandler{
		metrics: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		runs:    runs,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *StatusHandler) Routes() []string {
	return []string{"/metrics", "/healthz"}
}

// ServeHTTP dispatches to metrics or health by path.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/metrics":
		h.metrics.ServeHTTP(w, r)
	case "/healthz":
		h.health(w, r)
	default:
		http.NotFound(w, r)
	}
}

// health answers 503 when the most recent finished run failed or the store is unreadable.
// Running and partial runs count as healthy.
func (h *StatusHandler) health(w http.ResponseWriter, r *http.Request) {
	report := HealthReport{Status: "ok"}
	code := http.StatusOK

	runs, err := h.runs.List(r.Context(), 1)
	switch {
	case err != nil:
		report.Status, report.Error = "error", err.Error()
		code = http.StatusServiceUnavailable
	case len(runs) > 0:
		report.LastRun = runs[0]
		if runs[0].Status == models.RunFailed {
			report.Status = "failing"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
