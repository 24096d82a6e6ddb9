package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sentinelstack/sentinelops/internal/models"
)

// Notifier delivers an incident to one outbound channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, incident *models.Incident) error
}

// Result is the outcome of one channel's delivery attempt.
type Result struct {
	Channel string
	Err     error
}

// Dispatcher fans an incident out to every configured channel in
// parallel. One channel failing never blocks or aborts the others.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
}

func NewDispatcher(logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, logger: logger}
}

func (d *Dispatcher) Channels() int {
	return len(d.notifiers)
}

// Dispatch sends the incident to every channel and waits for all of
// them, returning one result per channel.
func (d *Dispatcher) Dispatch(ctx context.Context, incident *models.Incident) []Result {
	results := make([]Result, len(d.notifiers))
	var wg sync.WaitGroup
	for i, n := range d.notifiers {
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()
			err := n.Notify(ctx, incident)
			results[i] = Result{Channel: n.Name(), Err: err}
			if err != nil {
				d.logger.Error("notification failed",
					"channel", n.Name(),
					"incident_id", incident.ID,
					"error", err,
				)
				return
			}
			d.logger.Info("notification sent",
				"channel", n.Name(),
				"incident_id", incident.ID,
			)
		}(i, n)
	}
	wg.Wait()
	return results
}
