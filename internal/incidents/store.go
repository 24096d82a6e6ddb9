package incidents

import (
	"sort"
	"sync"

	"github.com/sentinelstack/sentinelops/internal/models"
)

// DefaultCapacity bounds the retained incident history when the caller
// does not choose one.
const DefaultCapacity = 200

// Store keeps the most recent incidents in memory, newest first. Once
// the capacity is reached the oldest incident is evicted silently.
type Store struct {
	mu        sync.Mutex
	capacity  int
	incidents []*models.Incident
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity:  capacity,
		incidents: make([]*models.Incident, 0, capacity),
	}
}

// Add inserts an incident at the front of the history.
func (s *Store) Add(incident *models.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = append([]*models.Incident{incident}, s.incidents...)
	if len(s.incidents) > s.capacity {
		s.incidents = s.incidents[:s.capacity]
	}
}

// List returns a page of incidents, most recent first. An offset past
// the end yields an empty slice, never an error.
func (s *Store) List(limit, offset int) []*models.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset < 0 || offset >= len(s.incidents) {
		return nil
	}
	end := len(s.incidents)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	page := make([]*models.Incident, end-offset)
	copy(page, s.incidents[offset:end])
	return page
}

// Get looks an incident up by ID. The history is small and scanned
// front to back, so the most recent match wins.
func (s *Store) Get(id string) (*models.Incident, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, incident := range s.incidents {
		if incident.ID == id {
			return incident, true
		}
	}
	return nil, false
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.incidents)
}

// ServiceSummary aggregates the retained history per service. Services
// with no retained anomalies are omitted; the result is ordered worst
// severity first, then by service name for a stable display.
func (s *Store) ServiceSummary() []models.ServiceHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	byService := make(map[string]*models.ServiceHealth)
	for _, incident := range s.incidents {
		for _, a := range incident.Anomalies {
			health, ok := byService[a.Service]
			if !ok {
				health = &models.ServiceHealth{
					Service:        a.Service,
					LastIncidentID: incident.ID,
					LastIncidentAt: incident.CreatedAt,
					WorstSeverity:  a.Severity,
				}
				byService[a.Service] = health
			}
			if a.Severity.MoreSevereThan(health.WorstSeverity) {
				health.WorstSeverity = a.Severity
			}
			// every retained anomaly contributes a snapshot, newest
			// incident first.
			health.Anomalies = append(health.Anomalies, models.AnomalySnapshot{
				Metric:       a.Metric,
				ZScore:       a.ZScore,
				CurrentValue: a.CurrentValue,
				BaselineMean: a.BaselineMean,
				Severity:     a.Severity,
				Timestamp:    a.Timestamp,
			})
		}
	}

	// incident counts are per service, not per anomaly.
	for _, incident := range s.incidents {
		counted := make(map[string]struct{})
		for _, a := range incident.Anomalies {
			if _, ok := counted[a.Service]; ok {
				continue
			}
			counted[a.Service] = struct{}{}
			if health, ok := byService[a.Service]; ok {
				health.IncidentCount++
			}
		}
	}

	summary := make([]models.ServiceHealth, 0, len(byService))
	for _, health := range byService {
		health.Status = statusFor(health.WorstSeverity)
		summary = append(summary, *health)
	}
	sort.Slice(summary, func(i, j int) bool {
		if summary[i].WorstSeverity != summary[j].WorstSeverity {
			return summary[i].WorstSeverity.MoreSevereThan(summary[j].WorstSeverity)
		}
		return summary[i].Service < summary[j].Service
	})
	return summary
}

func statusFor(severity models.Severity) string {
	switch severity {
	case models.SeverityP1, models.SeverityP2:
		return "critical"
	case models.SeverityP3:
		return "warning"
	default:
		return "degraded"
	}
}
