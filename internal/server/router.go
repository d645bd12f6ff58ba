package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/horiens/restock/internal/forecast"
	"github.com/horiens/restock/internal/health"
)

// HealthView is the slice of the health monitor the ops surface needs.
type HealthView interface {
	Classify(endpoint string) health.Status
	Overview() []health.Status
}

// ReportView exposes the latest forecast report, false before the first
// cycle completes.
type ReportView interface {
	Latest() (forecast.Report, bool)
}

// NewRouter wires the ops surface: upstream health, the latest forecast
// report, and the Prometheus scrape endpoint.
func NewRouter(healthView HealthView, reports ReportView, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		serveHealth(w, r, healthView, "")
	})
	mux.HandleFunc("/healthz/", func(w http.ResponseWriter, r *http.Request) {
		endpoint := strings.Trim(strings.TrimPrefix(r.URL.Path, "/healthz/"), "/")
		serveHealth(w, r, healthView, endpoint)
	})
	mux.HandleFunc("/forecasts", func(w http.ResponseWriter, r *http.Request) {
		serveForecasts(w, r, reports, "")
	})
	mux.HandleFunc("/forecasts/", func(w http.ResponseWriter, r *http.Request) {
		sku := strings.Trim(strings.TrimPrefix(r.URL.Path, "/forecasts/"), "/")
		serveForecasts(w, r, reports, sku)
	})
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	return mux
}

type healthResponse struct {
	Status    string          `json:"status"`
	Endpoints []health.Status `json:"endpoints"`
	CheckedAt time.Time       `json:"checked_at"`
}

// serveHealth reports either the aggregate view or a single endpoint. The
// aggregate status is the worst classification across endpoints so probes can
// alert on one field.
func serveHealth(w http.ResponseWriter, r *http.Request, view HealthView, endpoint string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if view == nil {
		writeError(w, http.StatusServiceUnavailable, "health monitor unavailable")
		return
	}
	var statuses []health.Status
	if endpoint != "" {
		statuses = []health.Status{view.Classify(endpoint)}
	} else {
		statuses = view.Overview()
	}
	aggregate := health.Healthy
	for _, status := range statuses {
		switch status.Classification {
		case health.Unhealthy:
			aggregate = health.Unhealthy
		case health.Degraded:
			if aggregate == health.Healthy {
				aggregate = health.Degraded
			}
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    string(aggregate),
		Endpoints: statuses,
		CheckedAt: time.Now().UTC(),
	})
}

func serveForecasts(w http.ResponseWriter, r *http.Request, reports ReportView, sku string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if reports == nil {
		writeError(w, http.StatusServiceUnavailable, "forecasts unavailable")
		return
	}
	report, ok := reports.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no forecast cycle has completed yet")
		return
	}
	if sku == "" {
		writeJSON(w, http.StatusOK, report)
		return
	}
	for _, result := range report.Results {
		if result.SKU == sku {
			writeJSON(w, http.StatusOK, result)
			return
		}
	}
	writeError(w, http.StatusNotFound, "sku not found in latest report")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
