// Package runbooks matches historical incident runbooks to current anomalies.
package runbooks

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/sentinelstack/sentinelops/internal/models"
	"github.com/sentinelstack/sentinelops/internal/telemetry"
)

// RunbookSearcher is the telemetry lookup the matcher performs.
type RunbookSearcher interface {
	SearchRunbooks(ctx context.Context, services, keywords []string, limit int) ([]telemetry.RawRunbook, error)
}

// Search finds historical runbooks relevant to an anomaly batch.
type Search struct {
	client     RunbookSearcher
	logger     *slog.Logger
	maxResults int
}

// New constructs a runbook Search.
func New(client RunbookSearcher, maxResults int, logger *slog.Logger) *Search {
	if logger == nil {
		logger = slog.Default()
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Search{client: client, logger: logger, maxResults: maxResults}
}

// FindMatching queries the runbook index with the affected services and
// metric keywords. Backend failure degrades to an empty result.
func (s *Search) FindMatching(ctx context.Context, anomalies []models.Anomaly) []models.Runbook {
	if len(anomalies) == 0 {
		return nil
	}

	serviceSet := make(map[string]struct{})
	keywordSet := make(map[string]struct{})
	for _, a := range anomalies {
		serviceSet[a.Service] = struct{}{}
		keywordSet[string(a.Metric)] = struct{}{}
	}
	services := sortedKeys(serviceSet)
	keywords := sortedKeys(keywordSet)

	s.logger.Info("runbook search",
		slog.Any("services", services),
		slog.Any("keywords", keywords))

	hits, err := s.client.SearchRunbooks(ctx, services, keywords, s.maxResults)
	if err != nil {
		s.logger.Warn("runbook search failed", slog.Any("error", err))
		return nil
	}

	runbooks := make([]models.Runbook, 0, len(hits))
	for _, hit := range hits {
		runbooks = append(runbooks, parseRunbook(hit))
	}

	s.logger.Info("runbooks matched", slog.Int("count", len(runbooks)))
	return runbooks
}

func parseRunbook(hit telemetry.RawRunbook) models.Runbook {
	rb := models.Runbook{
		Title:            stringOr(hit, "title", "Untitled"),
		RootCause:        stringOr(hit, "root_cause", ""),
		ServicesAffected: stringSlice(hit, "services_affected"),
		ResolutionSteps:  stringSlice(hit, "resolution_steps"),
		Tags:             stringSlice(hit, "tags"),
	}
	if score, ok := hit["score"].(float64); ok {
		rb.Score = score
	}
	if raw, ok := hit["incident_date"].(string); ok && raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			rb.IncidentDate = &parsed
		}
	}
	return rb
}

func stringOr(hit telemetry.RawRunbook, key, fallback string) string {
	if v, ok := hit[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func stringSlice(hit telemetry.RawRunbook, key string) []string {
	raw, ok := hit[key].([]any)
	if !ok {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			values = append(values, s)
		}
	}
	return values
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
