package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sentinelstack/sentinelops/internal/models"
)

const defaultSlackAPIURL = "https://slack.com/api"

var severityEmoji = map[models.Severity]string{
	models.SeverityP1: ":red_circle:",
	models.SeverityP2: ":large_orange_circle:",
	models.SeverityP3: ":large_yellow_circle:",
	models.SeverityP4: ":white_circle:",
}

// SlackConfig carries the bot credentials for the Slack channel.
type SlackConfig struct {
	BotToken  string
	ChannelID string
	BaseURL   string
	Timeout   time.Duration
}

// SlackNotifier posts Block Kit incident messages via chat.postMessage.
type SlackNotifier struct {
	cfg        SlackConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func NewSlack(cfg SlackConfig, logger *slog.Logger) *SlackNotifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSlackAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SlackNotifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Notify(ctx context.Context, incident *models.Incident) error {
	payload := map[string]any{
		"channel": s.cfg.ChannelID,
		"text":    fmt.Sprintf("[%s] %s", incident.Severity, incident.Title),
		"blocks":  buildBlocks(incident),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.BotToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}

	// Slack reports API-level failures in the body with HTTP 200.
	var apiResp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&apiResp); err != nil {
		return fmt.Errorf("decode slack response: %w", err)
	}
	if !apiResp.OK {
		s.logger.Warn("slack rejected message",
			"incident_id", incident.ID,
			"channel_id", s.cfg.ChannelID,
			"api_error", apiResp.Error,
		)
		return fmt.Errorf("slack API error: %s", apiResp.Error)
	}
	return nil
}

func buildBlocks(incident *models.Incident) []map[string]any {
	emoji, ok := severityEmoji[incident.Severity]
	if !ok {
		emoji = ":grey_question:"
	}
	services := strings.Join(incidentServices(incident), ", ")

	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": fmt.Sprintf("%s %s Incident: %s", emoji, incident.Severity, incident.Title),
			},
		},
		{
			"type": "section",
			"fields": []map[string]any{
				mrkdwn(fmt.Sprintf("*Incident ID:*\n`%s`", incident.ID)),
				mrkdwn(fmt.Sprintf("*Severity:*\n%s", incident.Severity)),
				mrkdwn(fmt.Sprintf("*Services:*\n%s", services)),
				mrkdwn(fmt.Sprintf("*Detected at:*\n%s", incident.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))),
			},
		},
		divider(),
	}

	limit := len(incident.Anomalies)
	if limit > 5 {
		limit = 5
	}
	for _, a := range incident.Anomalies[:limit] {
		blocks = append(blocks, section(fmt.Sprintf(
			"*%s* — `%s`\nCurrent: `%.1f` | Baseline: `%.1f` | Z-score: `%.1f`",
			a.Service, a.Metric, a.CurrentValue, a.BaselineMean, a.ZScore,
		)))
	}

	if incident.Analysis != nil {
		blocks = append(blocks, divider(), section(fmt.Sprintf(
			"*AI Analysis* (confidence: %s)\n>%s",
			incident.Analysis.Confidence, incident.Analysis.RootCause,
		)))
		if len(incident.Analysis.RemediationSteps) > 0 {
			var steps strings.Builder
			for i, step := range incident.Analysis.RemediationSteps {
				fmt.Fprintf(&steps, "%d. %s\n", i+1, step)
			}
			blocks = append(blocks, section("*Suggested Remediation:*\n"+strings.TrimRight(steps.String(), "\n")))
		}
	}

	if len(incident.MatchedRunbooks) > 0 {
		limit := len(incident.MatchedRunbooks)
		if limit > 3 {
			limit = 3
		}
		titles := make([]string, 0, limit)
		for _, rb := range incident.MatchedRunbooks[:limit] {
			titles = append(titles, "- "+rb.Title)
		}
		blocks = append(blocks, divider(), section("*Related Runbooks:*\n"+strings.Join(titles, "\n")))
	}

	return blocks
}

func incidentServices(incident *models.Incident) []string {
	seen := make(map[string]struct{})
	services := make([]string, 0, len(incident.Anomalies))
	for _, a := range incident.Anomalies {
		if _, ok := seen[a.Service]; ok {
			continue
		}
		seen[a.Service] = struct{}{}
		services = append(services, a.Service)
	}
	sort.Strings(services)
	return services
}

func mrkdwn(text string) map[string]any {
	return map[string]any{"type": "mrkdwn", "text": text}
}

func section(text string) map[string]any {
	return map[string]any{"type": "section", "text": mrkdwn(text)}
}

func divider() map[string]any {
	return map[string]any{"type": "divider"}
}
