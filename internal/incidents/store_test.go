package incidents

import (
	"fmt"
	"testing"
	"time"

	"github.com/sentinelstack/sentinelops/internal/models"
)

func storedIncident(n int, severity models.Severity, services ...string) *models.Incident {
	createdAt := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute)
	anomalies := make([]models.Anomaly, 0, len(services))
	for _, svc := range services {
		a := anomaly(svc, models.MetricErrorRate, severity)
		a.Timestamp = createdAt
		anomalies = append(anomalies, a)
	}
	return &models.Incident{
		ID:        fmt.Sprintf("INC-%04d", n),
		Title:     "error_rate anomaly",
		Severity:  severity,
		Anomalies: anomalies,
		CreatedAt: createdAt,
		DedupKey:  fmt.Sprintf("key-%04d", n),
	}
}

func TestStoreEvictsOldestAtCapacity(t *testing.T) {
	s := NewStore(200)
	for i := 0; i < 201; i++ {
		s.Add(storedIncident(i, models.SeverityP3, "checkout"))
	}
	if s.Count() != 200 {
		t.Fatalf("count = %d, want 200", s.Count())
	}
	if _, ok := s.Get("INC-0000"); ok {
		t.Fatalf("oldest incident should have been evicted")
	}
	if _, ok := s.Get("INC-0001"); !ok {
		t.Fatalf("second-oldest incident should still be retained")
	}
	newest := s.List(1, 0)
	if len(newest) != 1 || newest[0].ID != "INC-0200" {
		t.Fatalf("expected newest incident first, got %+v", newest)
	}
}

func TestStoreListPaging(t *testing.T) {
	s := NewStore(10)
	for i := 0; i < 5; i++ {
		s.Add(storedIncident(i, models.SeverityP3, "checkout"))
	}

	page := s.List(2, 1)
	if len(page) != 2 || page[0].ID != "INC-0003" || page[1].ID != "INC-0002" {
		t.Fatalf("unexpected page: %v, %v", page[0].ID, page[1].ID)
	}

	if tail := s.List(10, 3); len(tail) != 2 {
		t.Fatalf("short final page should clamp, got %d items", len(tail))
	}

	if empty := s.List(5, 99); len(empty) != 0 {
		t.Fatalf("out-of-range offset should yield empty slice, got %d items", len(empty))
	}
	if empty := s.List(5, -1); len(empty) != 0 {
		t.Fatalf("negative offset should yield empty slice")
	}
}

func TestStoreGetMiss(t *testing.T) {
	s := NewStore(10)
	if _, ok := s.Get("INC-nope"); ok {
		t.Fatalf("expected miss for unknown id")
	}
}

func TestServiceSummaryStatusAndOrder(t *testing.T) {
	s := NewStore(10)
	s.Add(storedIncident(1, models.SeverityP4, "search"))
	s.Add(storedIncident(2, models.SeverityP3, "payments"))
	s.Add(storedIncident(3, models.SeverityP1, "checkout"))

	summary := s.ServiceSummary()
	if len(summary) != 3 {
		t.Fatalf("expected 3 services, got %d", len(summary))
	}
	if summary[0].Service != "checkout" || summary[0].Status != "critical" {
		t.Fatalf("worst service first, got %+v", summary[0])
	}
	if summary[1].Service != "payments" || summary[1].Status != "warning" {
		t.Fatalf("expected payments/warning second, got %+v", summary[1])
	}
	if summary[2].Service != "search" || summary[2].Status != "degraded" {
		t.Fatalf("expected search/degraded last, got %+v", summary[2])
	}
}

func TestServiceSummaryAggregatesAcrossIncidents(t *testing.T) {
	s := NewStore(10)
	s.Add(storedIncident(1, models.SeverityP3, "checkout"))
	s.Add(storedIncident(2, models.SeverityP1, "checkout", "payments"))

	summary := s.ServiceSummary()
	var checkout *models.ServiceHealth
	for i := range summary {
		if summary[i].Service == "checkout" {
			checkout = &summary[i]
		}
	}
	if checkout == nil {
		t.Fatalf("checkout missing from summary")
	}
	if checkout.IncidentCount != 2 {
		t.Fatalf("incident count = %d, want 2", checkout.IncidentCount)
	}
	if checkout.WorstSeverity != models.SeverityP1 {
		t.Fatalf("worst severity = %s, want P1", checkout.WorstSeverity)
	}
	if checkout.LastIncidentID != "INC-0002" {
		t.Fatalf("last incident = %s, want INC-0002", checkout.LastIncidentID)
	}
	if len(checkout.Anomalies) != 2 {
		t.Fatalf("every retained incident contributes snapshots, got %d", len(checkout.Anomalies))
	}
	if !checkout.Anomalies[0].Timestamp.After(checkout.Anomalies[1].Timestamp) {
		t.Fatalf("snapshots should be ordered newest incident first: %v then %v",
			checkout.Anomalies[0].Timestamp, checkout.Anomalies[1].Timestamp)
	}
}

func TestServiceSummarySnapshotsSpanRetainedHistory(t *testing.T) {
	s := NewStore(10)
	s.Add(storedIncident(1, models.SeverityP2, "checkout"))
	s.Add(storedIncident(2, models.SeverityP2, "checkout"))

	summary := s.ServiceSummary()
	if len(summary) != 1 {
		t.Fatalf("expected one service, got %d", len(summary))
	}
	if got := len(summary[0].Anomalies); got != 2 {
		t.Fatalf("snapshot count = %d, want 2 (one per retained incident)", got)
	}
}

func TestServiceSummaryEmptyStore(t *testing.T) {
	s := NewStore(10)
	if summary := s.ServiceSummary(); len(summary) != 0 {
		t.Fatalf("expected empty summary, got %d entries", len(summary))
	}
}
