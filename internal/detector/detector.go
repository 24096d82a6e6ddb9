// Package detector compares current metric windows against historical
// baselines and emits scored anomalies.
package detector

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/sentinelstack/sentinelops/internal/models"
	"github.com/sentinelstack/sentinelops/internal/stats"
)

// TelemetryClient defines the telemetry reads the detector performs.
type TelemetryClient interface {
	ActiveServices(ctx context.Context, since time.Time) ([]string, error)
	ErrorCount(ctx context.Context, service string, start, end time.Time) (float64, error)
	ErrorCountSeries(ctx context.Context, service string, start, end time.Time, bucket time.Duration) ([]float64, error)
	LatencyPercentile(ctx context.Context, service string, percentile int, start, end time.Time) (float64, error)
	LatencyPercentileSeries(ctx context.Context, service string, percentile int, start, end time.Time, bucket time.Duration) ([]float64, error)
}

// Config carries the detection parameters.
type Config struct {
	Lookback          time.Duration
	BaselineWindow    time.Duration
	MinDataPoints     int
	Thresholds        stats.Thresholds
	LatencyPercentile int
}

// metricDefinition describes one monitored metric. The detector only
// distinguishes how the value is extracted; comparison logic is shared.
type metricDefinition struct {
	metric     models.MetricType
	percentile int
}

// Detector runs z-score anomaly detection per active service and metric.
type Detector struct {
	cfg     Config
	client  TelemetryClient
	logger  *slog.Logger
	metrics []metricDefinition
	now     func() time.Time
}

// New constructs a Detector monitoring error rate and latency percentile.
func New(cfg Config, client TelemetryClient, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LatencyPercentile <= 0 {
		cfg.LatencyPercentile = 99
	}
	latencyMetric := models.MetricLatencyP99
	if cfg.LatencyPercentile == 95 {
		latencyMetric = models.MetricLatencyP95
	}
	return &Detector{
		cfg:    cfg,
		client: client,
		logger: logger,
		metrics: []metricDefinition{
			{metric: models.MetricErrorRate},
			{metric: latencyMetric, percentile: cfg.LatencyPercentile},
		},
		now: time.Now,
	}
}

// Detect runs one detection pass across all active services and metric
// definitions. A query failure for one (service, metric) pair is logged
// and skipped; it never aborts the pass.
func (d *Detector) Detect(ctx context.Context) []models.Anomaly {
	now := d.now().UTC()
	currentStart := now.Add(-d.cfg.Lookback)
	baselineStart := now.Add(-d.cfg.BaselineWindow)

	services, err := d.client.ActiveServices(ctx, currentStart)
	if err != nil {
		d.logger.Warn("active services lookup failed", slog.Any("error", err))
		return nil
	}

	d.logger.Info("detection cycle start", slog.Int("services", len(services)))

	anomalies := make([]models.Anomaly, 0)
	for _, service := range services {
		for _, def := range d.metrics {
			anomaly, err := d.checkMetric(ctx, service, def, currentStart, now, baselineStart)
			if err != nil {
				d.logger.Warn("metric check failed",
					slog.String("service", service),
					slog.String("metric", string(def.metric)),
					slog.Any("error", err))
				continue
			}
			if anomaly != nil {
				anomalies = append(anomalies, *anomaly)
			}
		}
	}

	d.logger.Info("detection cycle complete", slog.Int("anomalies", len(anomalies)))
	return anomalies
}

// checkMetric compares the current window value of one (service, metric)
// pair against its bucketed baseline. Insufficient history and flat
// baselines are skips, not errors.
func (d *Detector) checkMetric(ctx context.Context, service string, def metricDefinition, currentStart, now, baselineStart time.Time) (*models.Anomaly, error) {
	var (
		current  float64
		baseline []float64
		err      error
	)

	switch def.metric {
	case models.MetricErrorRate:
		current, err = d.client.ErrorCount(ctx, service, currentStart, now)
		if err != nil {
			return nil, err
		}
		baseline, err = d.client.ErrorCountSeries(ctx, service, baselineStart, currentStart, d.cfg.Lookback)
	case models.MetricLatencyP99, models.MetricLatencyP95:
		current, err = d.client.LatencyPercentile(ctx, service, def.percentile, currentStart, now)
		if err != nil {
			return nil, err
		}
		baseline, err = d.client.LatencyPercentileSeries(ctx, service, def.percentile, baselineStart, currentStart, d.cfg.Lookback)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(baseline) < d.cfg.MinDataPoints {
		d.logger.Debug("insufficient baseline history",
			slog.String("service", service),
			slog.String("metric", string(def.metric)),
			slog.Int("data_points", len(baseline)))
		return nil, nil
	}

	mean, stddev := stats.ComputeStats(baseline)
	if stddev == 0 {
		// A flat baseline is "no signal", not infinite deviation.
		return nil, nil
	}

	z := (current - mean) / stddev
	if z < d.cfg.Thresholds.P4 {
		return nil, nil
	}

	severity := stats.ClassifySeverity(z, d.cfg.Thresholds)
	anomaly := models.Anomaly{
		Service:        service,
		Metric:         def.metric,
		CurrentValue:   current,
		BaselineMean:   round2(mean),
		BaselineStddev: round2(stddev),
		ZScore:         round2(z),
		Severity:       severity,
		Timestamp:      now,
		Details: map[string]any{
			"baseline_points":  len(baseline),
			"lookback_minutes": int(d.cfg.Lookback.Minutes()),
		},
	}

	d.logger.Warn("anomaly detected",
		slog.String("service", service),
		slog.String("metric", string(def.metric)),
		slog.Float64("z_score", anomaly.ZScore),
		slog.String("severity", string(severity)))
	return &anomaly, nil
}

// round2 rounds to two decimals for reported values; threshold
// comparisons above use full precision.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
