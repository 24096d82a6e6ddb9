package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelstack/sentinelops/internal/metrics"
	"github.com/sentinelstack/sentinelops/internal/models"
	"github.com/sentinelstack/sentinelops/internal/notify"
	"github.com/sentinelstack/sentinelops/internal/utils"
)

// Detector flags statistical anomalies across monitored services.
type Detector interface {
	Detect(ctx context.Context) []models.Anomaly
}

// Correlator gathers log events surrounding a batch of anomalies.
type Correlator interface {
	Correlate(ctx context.Context, anomalies []models.Anomaly) ([]models.CorrelatedEvent, error)
}

// RunbookFinder attaches historical runbooks matching the anomalies.
type RunbookFinder interface {
	FindMatching(ctx context.Context, anomalies []models.Anomaly) []models.Runbook
}

// Analyzer produces an optional root-cause verdict.
type Analyzer interface {
	Analyze(ctx context.Context, anomalies []models.Anomaly, events []models.CorrelatedEvent, runbooks []models.Runbook) *models.AnalysisResult
}

// IncidentManager dedups anomaly batches into incidents.
type IncidentManager interface {
	CreateIncident(anomalies []models.Anomaly, events []models.CorrelatedEvent, runbooks []models.Runbook, analysis *models.AnalysisResult) *models.Incident
	Cleanup()
}

// IncidentStore retains created incidents for the dashboard API.
type IncidentStore interface {
	Add(incident *models.Incident)
}

// Dispatcher fans incidents out to notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, incident *models.Incident) []notify.Result
	Channels() int
}

// Config controls the polling cadence.
type Config struct {
	Interval time.Duration
}

// Orchestrator drives the fixed-interval detection loop. Each tick runs
// the full pipeline; a panic or failure in one tick never stops the next.
type Orchestrator struct {
	cfg        Config
	detector   Detector
	correlator Correlator
	runbooks   RunbookFinder
	analyzer   Analyzer
	manager    IncidentManager
	store      IncidentStore
	dispatcher Dispatcher
	logger     *slog.Logger
	latency    *utils.LatencyTracker

	cycles int
	sleep  func(ctx context.Context, d time.Duration) bool
}

func New(
	cfg Config,
	detector Detector,
	correlator Correlator,
	runbooks RunbookFinder,
	analyzer Analyzer,
	manager IncidentManager,
	store IncidentStore,
	dispatcher Dispatcher,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Orchestrator{
		cfg:        cfg,
		detector:   detector,
		correlator: correlator,
		runbooks:   runbooks,
		analyzer:   analyzer,
		manager:    manager,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		latency:    utils.NewLatencyTracker(512),
		sleep:      sleepCtx,
	}
}

// Run loops until the context is cancelled. The interval is a fixed
// sleep between cycle completions, not a fixed-rate ticker: a slow
// cycle delays the next one rather than stacking work.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("monitoring loop started", "interval", o.cfg.Interval.String())
	for {
		o.runCycle(ctx)
		if !o.sleep(ctx, o.cfg.Interval) {
			o.logger.Info("monitoring loop stopped")
			return
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context) {
	cycleID := uuid.NewString()
	started := time.Now()
	outcome := metrics.OutcomeSuccess

	defer func() {
		if r := recover(); r != nil {
			outcome = metrics.OutcomeError
			o.logger.Error("cycle panicked", "cycle_id", cycleID, "panic", r)
		}
		elapsed := time.Since(started)
		metrics.ObserveCycle(elapsed, outcome)
		o.latency.Observe(elapsed)
		o.cycles++
		if o.cycles%20 == 0 {
			o.logger.Info("cycle latency",
				"cycles", o.cycles,
				"p95", o.latency.Percentile(95).String(),
			)
		}
	}()

	o.manager.Cleanup()

	anomalies := o.detector.Detect(ctx)
	metrics.AddAnomalies(len(anomalies))
	if len(anomalies) == 0 {
		o.logger.Debug("cycle clean", "cycle_id", cycleID)
		return
	}
	o.logger.Info("anomalies detected", "cycle_id", cycleID, "count", len(anomalies))

	events, err := o.correlator.Correlate(ctx, anomalies)
	if err != nil {
		// Correlation is context, not a gate: the incident still fires.
		o.logger.Warn("event correlation failed", "cycle_id", cycleID, "error", err)
		events = nil
	}

	runbooks := o.runbooks.FindMatching(ctx, anomalies)
	analysis := o.analyzer.Analyze(ctx, anomalies, events, runbooks)

	incident := o.manager.CreateIncident(anomalies, events, runbooks, analysis)
	if incident == nil {
		metrics.IncIncidentSuppressed()
		return
	}
	metrics.IncIncidentCreated()
	o.store.Add(incident)
	o.logger.Info("incident created",
		"cycle_id", cycleID,
		"incident_id", incident.ID,
		"severity", incident.Severity,
		"anomalies", len(incident.Anomalies),
	)

	if o.dispatcher.Channels() == 0 {
		return
	}
	for _, result := range o.dispatcher.Dispatch(ctx, incident) {
		metrics.ObserveNotification(result.Channel, result.Err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
