package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Anomaly is a single statistical deviation detected on one service and
// metric. Values are immutable once the detector has produced them.
type Anomaly struct {
	Service        string         `json:"service"`
	Metric         MetricType     `json:"metric"`
	CurrentValue   float64        `json:"current_value"`
	BaselineMean   float64        `json:"baseline_mean"`
	BaselineStddev float64        `json:"baseline_stddev"`
	ZScore         float64        `json:"z_score"`
	Severity       Severity       `json:"severity"`
	Timestamp      time.Time      `json:"timestamp"`
	Details        map[string]any `json:"details,omitempty"`
}

// DedupKey derives a stable identity for the logical condition this
// anomaly represents. It deliberately covers only service, metric and
// severity: repeated detections of the same condition hash identically
// regardless of when or how badly it recurs.
func (a Anomaly) DedupKey() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", a.Service, a.Metric, a.Severity)))
	return hex.EncodeToString(sum[:])[:16]
}

// CorrelatedEvent is a log or event record found near an anomaly in time.
// A record arriving without a timestamp carries the time it was parsed,
// not the event's true time; time-ordered displays must tolerate that.
type CorrelatedEvent struct {
	Service   string         `json:"service"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	TraceID   string         `json:"trace_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Runbook is a historical incident record attached for operator context.
type Runbook struct {
	Title            string     `json:"title"`
	IncidentDate     *time.Time `json:"incident_date,omitempty"`
	ServicesAffected []string   `json:"services_affected"`
	RootCause        string     `json:"root_cause"`
	ResolutionSteps  []string   `json:"resolution_steps"`
	Tags             []string   `json:"tags"`
	Score            float64    `json:"score"`
}

// AnalysisResult is the summarizer's verdict. It may be absent entirely;
// incident creation proceeds without it.
type AnalysisResult struct {
	RootCause        string   `json:"root_cause"`
	Confidence       string   `json:"confidence"`
	RemediationSteps []string `json:"remediation_steps"`
	AffectedServices []string `json:"affected_services"`
	Summary          string   `json:"summary"`
}

// Incident is the unit of storage and notification. It always has at
// least one anomaly and is never mutated after construction.
type Incident struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Severity         Severity          `json:"severity"`
	Anomalies        []Anomaly         `json:"anomalies"`
	CorrelatedEvents []CorrelatedEvent `json:"correlated_events"`
	MatchedRunbooks  []Runbook         `json:"matched_runbooks"`
	Analysis         *AnalysisResult   `json:"analysis,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	DedupKey         string            `json:"dedup_key"`
}

// IncidentID builds the human-readable identifier from the creation time
// and a short dedup key prefix, e.g. INC-20260826143000-9f2a41bc.
func IncidentID(createdAt time.Time, dedupKey string) string {
	prefix := dedupKey
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("INC-%s-%s", createdAt.UTC().Format("20060102150405"), prefix)
}

// AnomalySnapshot is the per-anomaly slice of a service health row.
type AnomalySnapshot struct {
	Metric       MetricType `json:"metric"`
	ZScore       float64    `json:"z_score"`
	CurrentValue float64    `json:"current_value"`
	BaselineMean float64    `json:"baseline_mean"`
	Severity     Severity   `json:"severity"`
	Timestamp    time.Time  `json:"timestamp"`
}

// ServiceHealth aggregates retained incident history for one service.
// Services with no retained anomalies are never reported.
type ServiceHealth struct {
	Service        string            `json:"service"`
	Status         string            `json:"status"`
	LastIncidentID string            `json:"last_incident_id"`
	LastIncidentAt time.Time         `json:"last_incident_at"`
	IncidentCount  int               `json:"incident_count"`
	WorstSeverity  Severity          `json:"worst_severity"`
	Anomalies      []AnomalySnapshot `json:"anomalies"`
}
