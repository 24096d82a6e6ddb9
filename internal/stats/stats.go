// Package stats provides the population statistics and severity
// classification underpinning anomaly detection.
package stats

import (
	"math"

	"github.com/sentinelstack/sentinelops/internal/models"
)

// Thresholds holds the z-score boundaries for each severity. Boundaries
// are inclusive: a z-score exactly equal to a threshold takes that
// severity.
type Thresholds struct {
	P1 float64 `yaml:"p1"`
	P2 float64 `yaml:"p2"`
	P3 float64 `yaml:"p3"`
	P4 float64 `yaml:"p4"`
}

// DefaultThresholds returns the standard z-score boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{P1: 5.0, P2: 3.5, P3: 2.5, P4: 2.0}
}

// ComputeStats returns the population mean and standard deviation of
// values. Variance divides by N, not N-1, so a single value yields a
// stddev of exactly zero. The caller must guarantee a non-empty input.
func ComputeStats(values []float64) (mean, stddev float64) {
	n := float64(len(values))
	for _, v := range values {
		mean += v
	}
	mean /= n

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= n
	return mean, math.Sqrt(variance)
}

// ClassifySeverity maps a z-score onto a severity, scanning from most to
// least severe. Callers gate on t.P4 before invoking; a z-score below
// every threshold still classifies as P4 here.
func ClassifySeverity(z float64, t Thresholds) models.Severity {
	switch {
	case z >= t.P1:
		return models.SeverityP1
	case z >= t.P2:
		return models.SeverityP2
	case z >= t.P3:
		return models.SeverityP3
	default:
		return models.SeverityP4
	}
}
