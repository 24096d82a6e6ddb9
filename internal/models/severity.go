package models

// Severity captures incident priority levels, P1 being the most severe.
type Severity string

const (
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
	SeverityP4 Severity = "P4"
)

// severityRanks assigns an explicit numeric rank to each severity so that
// ordering never depends on declaration order or string comparison.
// Lower rank means more severe.
var severityRanks = map[Severity]int{
	SeverityP1: 1,
	SeverityP2: 2,
	SeverityP3: 3,
	SeverityP4: 4,
}

// Rank returns the numeric rank of the severity; unknown values rank
// below P4 so they never win a worst-severity comparison.
func (s Severity) Rank() int {
	if rank, ok := severityRanks[s]; ok {
		return rank
	}
	return len(severityRanks) + 1
}

// MoreSevereThan reports whether s outranks other.
func (s Severity) MoreSevereThan(other Severity) bool {
	return s.Rank() < other.Rank()
}

// MetricType identifies what a monitored metric measures.
type MetricType string

const (
	MetricErrorRate   MetricType = "error_rate"
	MetricLatencyP99  MetricType = "latency_p99"
	MetricLatencyP95  MetricType = "latency_p95"
	MetricCPUUsage    MetricType = "cpu_usage"
	MetricMemoryUsage MetricType = "memory_usage"
)
