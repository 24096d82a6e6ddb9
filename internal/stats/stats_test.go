package stats

import (
	"math"
	"testing"

	"github.com/sentinelstack/sentinelops/internal/models"
)

func TestComputeStatsPopulation(t *testing.T) {
	mean, stddev := ComputeStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 {
		t.Fatalf("expected mean 5, got %v", mean)
	}
	// Population stddev of this classic series is exactly 2.
	if stddev != 2 {
		t.Fatalf("expected stddev 2, got %v", stddev)
	}
}

func TestComputeStatsConstantSeries(t *testing.T) {
	_, stddev := ComputeStats([]float64{3.5, 3.5, 3.5, 3.5})
	if stddev != 0 {
		t.Fatalf("expected zero stddev for constant series, got %v", stddev)
	}
}

func TestComputeStatsSingleValue(t *testing.T) {
	mean, stddev := ComputeStats([]float64{42})
	if mean != 42 || stddev != 0 {
		t.Fatalf("expected (42, 0), got (%v, %v)", mean, stddev)
	}
}

func TestComputeStatsDistinctValuesPositiveStddev(t *testing.T) {
	_, stddev := ComputeStats([]float64{1, 2})
	if stddev <= 0 {
		t.Fatalf("expected positive stddev, got %v", stddev)
	}
	if math.Abs(stddev-0.5) > 1e-12 {
		t.Fatalf("expected stddev 0.5, got %v", stddev)
	}
}

func TestClassifySeverityBoundaries(t *testing.T) {
	thresholds := DefaultThresholds()

	cases := []struct {
		z    float64
		want models.Severity
	}{
		{6.0, models.SeverityP1},
		{5.0, models.SeverityP1},
		{4.0, models.SeverityP2},
		{3.5, models.SeverityP2},
		{3.0, models.SeverityP3},
		{2.5, models.SeverityP3},
		{2.0, models.SeverityP4},
	}
	for _, tc := range cases {
		if got := ClassifySeverity(tc.z, thresholds); got != tc.want {
			t.Fatalf("z=%v: expected %s, got %s", tc.z, tc.want, got)
		}
	}
}

func TestClassifySeverityMonotonic(t *testing.T) {
	thresholds := DefaultThresholds()

	prev := ClassifySeverity(0, thresholds)
	for z := 0.1; z <= 8.0; z += 0.1 {
		current := ClassifySeverity(z, thresholds)
		if current.Rank() > prev.Rank() {
			t.Fatalf("severity regressed at z=%v: %s after %s", z, current, prev)
		}
		prev = current
	}
}

func TestSeverityRankOrdering(t *testing.T) {
	if !models.SeverityP1.MoreSevereThan(models.SeverityP2) {
		t.Fatalf("P1 must outrank P2")
	}
	if models.SeverityP4.MoreSevereThan(models.SeverityP3) {
		t.Fatalf("P4 must not outrank P3")
	}
	if models.Severity("bogus").MoreSevereThan(models.SeverityP4) {
		t.Fatalf("unknown severity must never win a comparison")
	}
}
