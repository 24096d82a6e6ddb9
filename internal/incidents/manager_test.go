package incidents

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sentinelstack/sentinelops/internal/models"
)

func anomaly(service string, metric models.MetricType, severity models.Severity) models.Anomaly {
	return models.Anomaly{
		Service:        service,
		Metric:         metric,
		CurrentValue:   42,
		BaselineMean:   10,
		BaselineStddev: 2,
		ZScore:         16,
		Severity:       severity,
		Timestamp:      time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC),
	}
}

func newTestManager(cooldown time.Duration) (*Manager, *time.Time) {
	m := NewManager(Config{Cooldown: cooldown}, slog.Default())
	current := time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC)
	m.now = func() time.Time { return current }
	return m, &current
}

func TestDedupKeyOrderIndependent(t *testing.T) {
	a := anomaly("checkout", models.MetricErrorRate, models.SeverityP1)
	b := anomaly("payments", models.MetricLatencyP99, models.SeverityP3)

	forward := combinedDedupKey([]models.Anomaly{a, b})
	reversed := combinedDedupKey([]models.Anomaly{b, a})
	if forward != reversed {
		t.Fatalf("dedup key depends on order: %s vs %s", forward, reversed)
	}
	if !strings.Contains(forward, ":") {
		t.Fatalf("expected joined key, got %s", forward)
	}
}

func TestDedupKeyCollapsesDuplicates(t *testing.T) {
	a := anomaly("checkout", models.MetricErrorRate, models.SeverityP1)
	single := combinedDedupKey([]models.Anomaly{a})
	doubled := combinedDedupKey([]models.Anomaly{a, a})
	if single != doubled {
		t.Fatalf("duplicate anomalies changed the key: %s vs %s", single, doubled)
	}
}

func TestCreateIncidentWorstSeverity(t *testing.T) {
	m, _ := newTestManager(30 * time.Minute)
	incident := m.CreateIncident([]models.Anomaly{
		anomaly("checkout", models.MetricErrorRate, models.SeverityP4),
		anomaly("payments", models.MetricLatencyP99, models.SeverityP1),
		anomaly("search", models.MetricCPUUsage, models.SeverityP3),
	}, nil, nil, nil)
	if incident == nil {
		t.Fatalf("expected incident")
	}
	if incident.Severity != models.SeverityP1 {
		t.Fatalf("expected P1, got %s", incident.Severity)
	}
}

func TestCreateIncidentEmptyBatch(t *testing.T) {
	m, _ := newTestManager(30 * time.Minute)
	if incident := m.CreateIncident(nil, nil, nil, nil); incident != nil {
		t.Fatalf("expected nil for empty batch, got %+v", incident)
	}
}

func TestCooldownSuppression(t *testing.T) {
	m, clock := newTestManager(30 * time.Minute)
	batch := []models.Anomaly{anomaly("checkout", models.MetricErrorRate, models.SeverityP1)}

	if first := m.CreateIncident(batch, nil, nil, nil); first == nil {
		t.Fatalf("first detection should create an incident")
	}

	*clock = clock.Add(10 * time.Minute)
	if second := m.CreateIncident(batch, nil, nil, nil); second != nil {
		t.Fatalf("detection inside cooldown should be suppressed")
	}

	// Suppression must not refresh the record: 31 minutes after the
	// ORIGINAL incident the condition fires again.
	*clock = clock.Add(21 * time.Minute)
	if third := m.CreateIncident(batch, nil, nil, nil); third == nil {
		t.Fatalf("detection after cooldown should create a new incident")
	}
}

func TestIncidentIDFormat(t *testing.T) {
	m, _ := newTestManager(30 * time.Minute)
	incident := m.CreateIncident([]models.Anomaly{
		anomaly("checkout", models.MetricErrorRate, models.SeverityP1),
	}, nil, nil, nil)

	if !strings.HasPrefix(incident.ID, "INC-20260826143000-") {
		t.Fatalf("unexpected incident id: %s", incident.ID)
	}
	suffix := strings.TrimPrefix(incident.ID, "INC-20260826143000-")
	if len(suffix) != 8 {
		t.Fatalf("expected 8 char dedup prefix, got %q", suffix)
	}
	if !strings.HasPrefix(incident.DedupKey, suffix) {
		t.Fatalf("id suffix %q not a prefix of dedup key %q", suffix, incident.DedupKey)
	}
}

func TestTitlePrefersAnalysisSummary(t *testing.T) {
	m, _ := newTestManager(30 * time.Minute)
	incident := m.CreateIncident(
		[]models.Anomaly{anomaly("checkout", models.MetricErrorRate, models.SeverityP1)},
		nil, nil,
		&models.AnalysisResult{RootCause: "db overload", Summary: "Checkout failing on database overload"},
	)
	if incident.Title != "Checkout failing on database overload" {
		t.Fatalf("unexpected title: %s", incident.Title)
	}
}

func TestTitleSynthesizedWithoutAnalysis(t *testing.T) {
	m, _ := newTestManager(30 * time.Minute)
	incident := m.CreateIncident([]models.Anomaly{
		anomaly("payments", models.MetricLatencyP99, models.SeverityP2),
		anomaly("checkout", models.MetricErrorRate, models.SeverityP2),
	}, nil, nil, nil)
	want := "error_rate, latency_p99 anomaly on checkout, payments"
	if incident.Title != want {
		t.Fatalf("title = %q, want %q", incident.Title, want)
	}
}

func TestCleanupDropsStaleRecords(t *testing.T) {
	m, clock := newTestManager(30 * time.Minute)
	batch := []models.Anomaly{anomaly("checkout", models.MetricErrorRate, models.SeverityP1)}
	m.CreateIncident(batch, nil, nil, nil)

	*clock = clock.Add(45 * time.Minute)
	m.Cleanup()
	if len(m.recent) != 1 {
		t.Fatalf("record younger than twice the cooldown must survive cleanup")
	}

	*clock = clock.Add(20 * time.Minute)
	m.Cleanup()
	if len(m.recent) != 0 {
		t.Fatalf("record older than twice the cooldown must be dropped")
	}
}
