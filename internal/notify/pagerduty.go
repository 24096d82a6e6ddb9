package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sentinelstack/sentinelops/internal/models"
)

const defaultPagerDutyAPIURL = "https://api.pagerduty.com"

var pagerDutyUrgency = map[models.Severity]string{
	models.SeverityP1: "high",
	models.SeverityP2: "high",
	models.SeverityP3: "low",
	models.SeverityP4: "low",
}

// PagerDutyConfig carries the REST API credentials and the severity
// gate: only incidents whose severity appears in Severities page.
type PagerDutyConfig struct {
	APIKey     string
	ServiceID  string
	Severities []string
	BaseURL    string
	Timeout    time.Duration
}

// PagerDutyNotifier creates PagerDuty incidents for severities that
// warrant a page. Everything below the gate is acknowledged silently.
type PagerDutyNotifier struct {
	cfg        PagerDutyConfig
	gate       map[models.Severity]struct{}
	httpClient *http.Client
	logger     *slog.Logger
}

func NewPagerDuty(cfg PagerDutyConfig, logger *slog.Logger) *PagerDutyNotifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultPagerDutyAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if len(cfg.Severities) == 0 {
		cfg.Severities = []string{"P1", "P2"}
	}
	gate := make(map[models.Severity]struct{}, len(cfg.Severities))
	for _, s := range cfg.Severities {
		gate[models.Severity(strings.ToUpper(s))] = struct{}{}
	}
	return &PagerDutyNotifier{
		cfg:        cfg,
		gate:       gate,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (p *PagerDutyNotifier) Name() string { return "pagerduty" }

func (p *PagerDutyNotifier) Notify(ctx context.Context, incident *models.Incident) error {
	if _, ok := p.gate[incident.Severity]; !ok {
		p.logger.Debug("pagerduty skipped below severity gate",
			"incident_id", incident.ID,
			"severity", incident.Severity,
		)
		return nil
	}

	urgency, ok := pagerDutyUrgency[incident.Severity]
	if !ok {
		urgency = "low"
	}
	payload := map[string]any{
		"incident": map[string]any{
			"type":  "incident",
			"title": fmt.Sprintf("[%s] %s", incident.Severity, incident.Title),
			"service": map[string]any{
				"id":   p.cfg.ServiceID,
				"type": "service_reference",
			},
			"urgency": urgency,
			"body": map[string]any{
				"type":    "incident_body",
				"details": incidentDetails(incident),
			},
			"incident_key": incident.DedupKey,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal pagerduty payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/incidents", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token token="+p.cfg.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pagerduty API returned status %d", resp.StatusCode)
	}
	return nil
}

func incidentDetails(incident *models.Incident) string {
	lines := []string{
		"Severity: " + string(incident.Severity),
		"Services: " + strings.Join(incidentServices(incident), ", "),
	}
	if incident.Analysis != nil {
		lines = append(lines, "Root cause: "+incident.Analysis.RootCause)
		for i, step := range incident.Analysis.RemediationSteps {
			lines = append(lines, fmt.Sprintf("  %d. %s", i+1, step))
		}
	}
	return strings.Join(lines, "\n")
}
