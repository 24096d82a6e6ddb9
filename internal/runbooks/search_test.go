package runbooks

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/sentinelstack/sentinelops/internal/models"
	"github.com/sentinelstack/sentinelops/internal/telemetry"
)

type fakeRunbookSearcher struct {
	services []string
	keywords []string
	hits     []telemetry.RawRunbook
	err      error
	calls    int
}

func (f *fakeRunbookSearcher) SearchRunbooks(_ context.Context, services, keywords []string, _ int) ([]telemetry.RawRunbook, error) {
	f.calls++
	f.services = services
	f.keywords = keywords
	return f.hits, f.err
}

func TestFindMatchingBuildsSortedQuery(t *testing.T) {
	fake := &fakeRunbookSearcher{
		hits: []telemetry.RawRunbook{
			{
				"title":             "Payments DB failover",
				"root_cause":        "primary loss",
				"services_affected": []any{"payments"},
				"resolution_steps":  []any{"promote replica", "verify writes"},
				"tags":              []any{"database"},
				"score":             7.5,
				"incident_date":     "2026-01-15T08:00:00Z",
			},
		},
	}
	s := New(fake, 5, slog.Default())

	now := time.Now().UTC()
	runbooks := s.FindMatching(context.Background(), []models.Anomaly{
		{Service: "payments", Metric: models.MetricLatencyP99, Severity: models.SeverityP2, Timestamp: now},
		{Service: "checkout", Metric: models.MetricErrorRate, Severity: models.SeverityP1, Timestamp: now},
		{Service: "checkout", Metric: models.MetricErrorRate, Severity: models.SeverityP1, Timestamp: now},
	})

	if len(fake.services) != 2 || fake.services[0] != "checkout" || fake.services[1] != "payments" {
		t.Fatalf("expected sorted unique services, got %v", fake.services)
	}
	if len(fake.keywords) != 2 || fake.keywords[0] != "error_rate" {
		t.Fatalf("expected sorted unique metric keywords, got %v", fake.keywords)
	}

	if len(runbooks) != 1 {
		t.Fatalf("expected one runbook, got %d", len(runbooks))
	}
	rb := runbooks[0]
	if rb.Title != "Payments DB failover" || rb.Score != 7.5 {
		t.Fatalf("unexpected runbook: %+v", rb)
	}
	if len(rb.ResolutionSteps) != 2 || rb.ResolutionSteps[0] != "promote replica" {
		t.Fatalf("unexpected steps: %v", rb.ResolutionSteps)
	}
	if rb.IncidentDate == nil || rb.IncidentDate.Year() != 2026 {
		t.Fatalf("unexpected incident date: %v", rb.IncidentDate)
	}
}

func TestFindMatchingEmptyInput(t *testing.T) {
	fake := &fakeRunbookSearcher{}
	s := New(fake, 5, slog.Default())

	if rbs := s.FindMatching(context.Background(), nil); rbs != nil {
		t.Fatalf("expected nil for empty input, got %v", rbs)
	}
	if fake.calls != 0 {
		t.Fatalf("expected no backend call, got %d", fake.calls)
	}
}

func TestFindMatchingDegradesOnError(t *testing.T) {
	fake := &fakeRunbookSearcher{err: errors.New("index unavailable")}
	s := New(fake, 5, slog.Default())

	rbs := s.FindMatching(context.Background(), []models.Anomaly{
		{Service: "payments", Metric: models.MetricErrorRate, Severity: models.SeverityP3, Timestamp: time.Now()},
	})
	if rbs != nil {
		t.Fatalf("expected graceful empty result, got %v", rbs)
	}
}

func TestParseRunbookDefaults(t *testing.T) {
	rb := parseRunbook(telemetry.RawRunbook{"incident_date": "not-a-date"})
	if rb.Title != "Untitled" {
		t.Fatalf("expected Untitled fallback, got %q", rb.Title)
	}
	if rb.IncidentDate != nil {
		t.Fatalf("unparseable date must stay nil, got %v", rb.IncidentDate)
	}
}
