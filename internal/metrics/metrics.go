package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels cycles and notifications that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels cycles and notifications that failed.
	OutcomeError = "error"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinelops",
			Name:      "cycles_total",
			Help:      "Total number of detection cycles run, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sentinelops",
			Name:      "cycle_seconds",
			Help:      "Detection cycle latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 30},
		},
	)

	anomaliesDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentinelops",
			Name:      "anomalies_detected_total",
			Help:      "Total number of anomalies flagged by the detector.",
		},
	)

	incidentsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentinelops",
			Name:      "incidents_created_total",
			Help:      "Total number of incidents created.",
		},
	)

	incidentsSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentinelops",
			Name:      "incidents_suppressed_total",
			Help:      "Total number of detections suppressed by the dedup cooldown.",
		},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinelops",
			Name:      "notifications_total",
			Help:      "Total notification deliveries, partitioned by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)
)

// Register attaches sentinelops collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		cyclesTotal,
		cycleDurationSeconds,
		anomaliesDetectedTotal,
		incidentsCreatedTotal,
		incidentsSuppressedTotal,
		notificationsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCycle records a detection cycle duration and outcome label.
func ObserveCycle(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	cyclesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	cycleDurationSeconds.Observe(duration.Seconds())
}

// AddAnomalies counts anomalies flagged in one cycle.
func AddAnomalies(n int) {
	if n > 0 {
		anomaliesDetectedTotal.Add(float64(n))
	}
}

// IncIncidentCreated counts a newly created incident.
func IncIncidentCreated() {
	incidentsCreatedTotal.Inc()
}

// IncIncidentSuppressed counts a detection swallowed by the cooldown.
func IncIncidentSuppressed() {
	incidentsSuppressedTotal.Inc()
}

// ObserveNotification records one channel delivery attempt.
func ObserveNotification(channel string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	notificationsTotal.WithLabelValues(channel, outcome).Inc()
}
