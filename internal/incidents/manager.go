package incidents

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sentinelstack/sentinelops/internal/models"
)

// Manager turns correlated anomaly batches into incidents and suppresses
// duplicates while a matching incident is inside the cooldown window.
type Manager struct {
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	// dedup key -> creation time of the incident that claimed it.
	recent map[string]time.Time
}

// Config carries the dedup tuning for the Manager.
type Config struct {
	Cooldown time.Duration
}

func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Minute
	}
	return &Manager{
		cooldown: cfg.Cooldown,
		logger:   logger,
		now:      time.Now,
		recent:   make(map[string]time.Time),
	}
}

// CreateIncident builds an incident from a detection cycle's output, or
// returns nil when the batch is empty or suppressed by the cooldown.
// Suppression does not refresh the stored timestamp, so a persistent
// anomaly fires again once the original incident ages out.
func (m *Manager) CreateIncident(anomalies []models.Anomaly, events []models.CorrelatedEvent, runbooks []models.Runbook, analysis *models.AnalysisResult) *models.Incident {
	if len(anomalies) == 0 {
		return nil
	}

	dedupKey := combinedDedupKey(anomalies)
	now := m.now().UTC()

	if created, ok := m.recent[dedupKey]; ok && now.Sub(created) < m.cooldown {
		m.logger.Info("incident suppressed by cooldown",
			"dedup_key", dedupKey,
			"age", now.Sub(created).Round(time.Second).String(),
		)
		return nil
	}
	m.recent[dedupKey] = now

	return &models.Incident{
		ID:               models.IncidentID(now, dedupKey),
		Title:            incidentTitle(anomalies, analysis),
		Severity:         worstSeverity(anomalies),
		Anomalies:        anomalies,
		CorrelatedEvents: events,
		MatchedRunbooks:  runbooks,
		Analysis:         analysis,
		CreatedAt:        now,
		DedupKey:         dedupKey,
	}
}

// Cleanup drops dedup records old enough that they can no longer
// suppress anything. Called once per cycle to keep the map bounded.
func (m *Manager) Cleanup() {
	cutoff := m.now().UTC().Add(-2 * m.cooldown)
	for key, created := range m.recent {
		if created.Before(cutoff) {
			delete(m.recent, key)
		}
	}
}

// combinedDedupKey joins the sorted unique per-anomaly keys so that the
// same set of anomalies always maps to the same incident regardless of
// detection order.
func combinedDedupKey(anomalies []models.Anomaly) string {
	seen := make(map[string]struct{}, len(anomalies))
	keys := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		k := a.DedupKey()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ":")
}

func worstSeverity(anomalies []models.Anomaly) models.Severity {
	worst := anomalies[0].Severity
	for _, a := range anomalies[1:] {
		if a.Severity.MoreSevereThan(worst) {
			worst = a.Severity
		}
	}
	return worst
}

func uniqueServices(anomalies []models.Anomaly) []string {
	seen := make(map[string]struct{}, len(anomalies))
	services := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		if _, ok := seen[a.Service]; ok {
			continue
		}
		seen[a.Service] = struct{}{}
		services = append(services, a.Service)
	}
	sort.Strings(services)
	return services
}

func uniqueMetrics(anomalies []models.Anomaly) []string {
	seen := make(map[string]struct{}, len(anomalies))
	metrics := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		name := string(a.Metric)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		metrics = append(metrics, name)
	}
	sort.Strings(metrics)
	return metrics
}

// incidentTitle prefers the analyzer's summary and falls back to a
// synthesized "<metrics> anomaly on <services>" line.
func incidentTitle(anomalies []models.Anomaly, analysis *models.AnalysisResult) string {
	if analysis != nil && analysis.Summary != "" {
		return analysis.Summary
	}
	metrics := strings.Join(uniqueMetrics(anomalies), ", ")
	services := strings.Join(uniqueServices(anomalies), ", ")
	return metrics + " anomaly on " + services
}
