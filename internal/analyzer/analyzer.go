// Package analyzer asks a generative summarizer for a structured verdict
// on an incident's findings. The verdict is strictly optional: any
// transport or parse failure degrades to no analysis.
package analyzer

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

const systemPrompt = `You are an expert SRE incident analyst. You will be given:
1. Detected anomalies (service, metric, z-score, severity)
2. Correlated events across services from the same time window
3. Matching historical runbooks (if any)

Your job:
- Identify the most likely root cause
- Assess your confidence (high/medium/low)
- List the affected services
- Provide concrete, prioritized remediation steps
- Write a one-sentence summary suitable for an incident title

Respond ONLY with valid JSON matching this schema:
{
  "root_cause": "string",
  "confidence": "high|medium|low",
  "affected_services": ["string"],
  "remediation_steps": ["string"],
  "summary": "string"
}`

// Config carries the summarizer connection parameters.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Analyzer is the summarizer client.
type Analyzer struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New constructs an Analyzer. A zero BaseURL disables it: Analyze then
// always returns nil, which the pipeline treats as "no verdict".
func New(cfg Config, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Analyzer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Analyze submits the findings and returns the parsed verdict, or nil on
// empty input, missing configuration, or any failure.
func (a *Analyzer) Analyze(ctx context.Context, anomalies []models.Anomaly, events []models.CorrelatedEvent, runbooks []models.Runbook) *models.AnalysisResult {
	if len(anomalies) == 0 || a.cfg.BaseURL == "" {
		return nil
	}

	a.logger.Info("analysis request",
		slog.Int("anomalies", len(anomalies)),
		slog.Int("events", len(events)))

	text, err := a.complete(ctx, buildContext(anomalies, events, runbooks))
	if err != nil {
		a.logger.Warn("analysis request failed", slog.Any("error", err))
		return nil
	}

	result, err := parseVerdict(text)
	if err != nil {
		a.logger.Warn("analysis verdict unparseable", slog.Any("error", err))
		return nil
	}

	a.logger.Info("analysis complete", slog.String("confidence", result.Confidence))
	return result
}

func (a *Analyzer) complete(ctx context.Context, userMessage string) (string, error) {
	payload := map[string]any{
		"model":      a.cfg.Model,
		"max_tokens": a.cfg.MaxTokens,
		"system":     systemPrompt,
		"messages": []map[string]any{
			{"role": "user", "content": userMessage},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(a.cfg.BaseURL, "/")+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("x-api-key", a.cfg.APIKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summarizer returned %s", resp.Status)
	}

	var response struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(response.Content) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return response.Content[0].Text, nil
}

// parseVerdict decodes the model output, tolerating markdown code fences.
func parseVerdict(text string) (*models.AnalysisResult, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if _, rest, ok := strings.Cut(text, "\n"); ok {
			text = rest
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, err
	}
	if result.RootCause == "" || result.Summary == "" {
		return nil, fmt.Errorf("verdict missing required fields")
	}
	return &result, nil
}

// buildContext renders the findings into the prompt body.
func buildContext(anomalies []models.Anomaly, events []models.CorrelatedEvent, runbooks []models.Runbook) string {
	var sb strings.Builder

	sb.WriteString("## Detected Anomalies\n")
	for _, a := range anomalies {
		fmt.Fprintf(&sb, "- Service: %s | Metric: %s | Value: %.1f | Baseline: %.1f +/- %.1f | Z-score: %.1f | Severity: %s\n",
			a.Service, a.Metric, a.CurrentValue, a.BaselineMean, a.BaselineStddev, a.ZScore, a.Severity)
	}

	if len(events) > 0 {
		sb.WriteString("\n## Correlated Events Across Services\n")
		for i, e := range events {
			if i == 20 {
				break
			}
			trace := ""
			if e.TraceID != "" {
				trace = fmt.Sprintf(" [trace: %s]", e.TraceID)
			}
			fmt.Fprintf(&sb, "- [%s] %s (%s): %s%s\n",
				e.Timestamp.Format(time.RFC3339), e.Service, e.Level, e.Message, trace)
		}
	}

	if len(runbooks) > 0 {
		sb.WriteString("\n## Similar Past Incidents (Runbooks)\n")
		for _, rb := range runbooks {
			fmt.Fprintf(&sb, "### %s\n", rb.Title)
			if rb.RootCause != "" {
				fmt.Fprintf(&sb, "Root cause: %s\n", rb.RootCause)
			}
			for i, step := range rb.ResolutionSteps {
				fmt.Fprintf(&sb, "  %d. %s\n", i+1, step)
			}
		}
	}

	return sb.String()
}
