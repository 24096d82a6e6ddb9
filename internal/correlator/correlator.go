// Package correlator finds cross-service events near detected anomalies.
package correlator

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentinelstack/sentinelops/internal/models"
	"github.com/sentinelstack/sentinelops/internal/telemetry"
)

// EventSearcher is the telemetry search the correlator performs.
type EventSearcher interface {
	SearchEvents(ctx context.Context, q telemetry.EventQuery) ([]telemetry.RawEvent, error)
}

// Config carries the correlation parameters.
type Config struct {
	Window    time.Duration
	MaxEvents int
}

// Correlator retrieves error/warning events around an anomaly batch.
type Correlator struct {
	cfg    Config
	client EventSearcher
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Correlator.
func New(cfg Config, client EventSearcher, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{cfg: cfg, client: client, logger: logger, now: time.Now}
}

// Correlate searches for related events across ALL services, not only
// the anomalous ones, inside a window anchored at the earliest anomaly
// timestamp. Late anomalies in the same batch do not widen the window.
// Empty input returns an empty result without querying.
func (c *Correlator) Correlate(ctx context.Context, anomalies []models.Anomaly) ([]models.CorrelatedEvent, error) {
	if len(anomalies) == 0 {
		return nil, nil
	}

	earliest := anomalies[0].Timestamp
	for _, a := range anomalies[1:] {
		if a.Timestamp.Before(earliest) {
			earliest = a.Timestamp
		}
	}
	start := earliest.Add(-c.cfg.Window)
	end := earliest.Add(c.cfg.Window)

	c.logger.Info("correlation start",
		slog.Time("window_start", start),
		slog.Time("window_end", end))

	raw, err := c.client.SearchEvents(ctx, telemetry.EventQuery{
		Levels: []string{"error", "warning"},
		Start:  start,
		End:    end,
		Limit:  c.cfg.MaxEvents,
	})
	if err != nil {
		return nil, err
	}

	events := c.parseEvents(raw)

	// The backend caps the query too; cap again after parsing in case it
	// returned more than asked for.
	if len(events) > c.cfg.MaxEvents {
		events = events[:c.cfg.MaxEvents]
	}

	c.logger.Info("correlation complete", slog.Int("events", len(events)))
	return events, nil
}

// knownEventFields are lifted into CorrelatedEvent; everything else is
// preserved as metadata.
var knownEventFields = map[string]struct{}{
	"service":   {},
	"level":     {},
	"message":   {},
	"timestamp": {},
	"trace_id":  {},
}

func (c *Correlator) parseEvents(raw []telemetry.RawEvent) []models.CorrelatedEvent {
	events := make([]models.CorrelatedEvent, 0, len(raw))
	for _, row := range raw {
		event := models.CorrelatedEvent{
			Service: stringField(row, "service", "unknown"),
			Level:   stringField(row, "level", "unknown"),
			Message: stringField(row, "message", ""),
			TraceID: stringField(row, "trace_id", ""),
		}

		// A record without a parseable timestamp carries parse-time now.
		event.Timestamp = c.now().UTC()
		if ts, ok := row["timestamp"].(string); ok {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				event.Timestamp = parsed
			}
		}

		for k, v := range row {
			if _, known := knownEventFields[k]; known {
				continue
			}
			if event.Metadata == nil {
				event.Metadata = make(map[string]any)
			}
			event.Metadata[k] = v
		}
		events = append(events, event)
	}
	return events
}

func stringField(row telemetry.RawEvent, key, fallback string) string {
	if v, ok := row[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
