package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sentinelstack/sentinelops/internal/models"
)

const maxEventsInResponse = 30

// IncidentReader is the slice of the store the dashboard needs.
type IncidentReader interface {
	List(limit, offset int) []*models.Incident
	Get(id string) (*models.Incident, bool)
	Count() int
	ServiceSummary() []models.ServiceHealth
}

// Handler serves the dashboard routes from the incident store.
type Handler struct {
	store  IncidentReader
	logger *slog.Logger
}

func NewHandler(store IncidentReader, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// ListIncidents returns a summary page of recent incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	incidents := h.store.List(limit, offset)
	summaries := make([]map[string]any, 0, len(incidents))
	for _, incident := range incidents {
		summaries = append(summaries, serializeIncident(incident, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     h.store.Count(),
		"incidents": summaries,
	})
}

// GetIncident returns one incident with full detail.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	incident, ok := h.store.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Incident not found"})
		return
	}
	writeJSON(w, http.StatusOK, serializeIncident(incident, true))
}

// ListServices returns the aggregated per-service health summary.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	summary := h.store.ServiceSummary()
	if summary == nil {
		summary = []models.ServiceHealth{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": summary})
}

// Health reports liveness and the retained incident count.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"incidents_tracked": h.store.Count(),
	})
}

// serializeIncident renders the summary shape, plus anomalies, events
// (capped) and runbooks when full detail is requested.
func serializeIncident(incident *models.Incident, full bool) map[string]any {
	data := map[string]any{
		"id":            incident.ID,
		"title":         incident.Title,
		"severity":      incident.Severity,
		"created_at":    incident.CreatedAt.Format(time.RFC3339),
		"dedup_key":     incident.DedupKey,
		"services":      serviceNames(incident),
		"anomaly_count": len(incident.Anomalies),
		"has_analysis":  incident.Analysis != nil,
	}
	if incident.Analysis != nil {
		data["root_cause"] = incident.Analysis.RootCause
		data["confidence"] = incident.Analysis.Confidence
	}
	if !full {
		return data
	}

	data["anomalies"] = incident.Anomalies

	events := incident.CorrelatedEvents
	if len(events) > maxEventsInResponse {
		events = events[:maxEventsInResponse]
	}
	if events == nil {
		events = []models.CorrelatedEvent{}
	}
	data["correlated_events"] = events

	runbooks := incident.MatchedRunbooks
	if runbooks == nil {
		runbooks = []models.Runbook{}
	}
	data["matched_runbooks"] = runbooks

	if incident.Analysis != nil {
		data["analysis"] = incident.Analysis
	}
	return data
}

func serviceNames(incident *models.Incident) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0, len(incident.Anomalies))
	for _, a := range incident.Anomalies {
		if _, ok := seen[a.Service]; ok {
			continue
		}
		seen[a.Service] = struct{}{}
		names = append(names, a.Service)
	}
	sort.Strings(names)
	return names
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
