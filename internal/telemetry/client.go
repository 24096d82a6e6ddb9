// Package telemetry wraps the telemetry query backend: service
// discovery, metric aggregates, event search and runbook search. All
// calls are read-only with respect to the pipeline's own state.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/sentinelstack/sentinelops/internal/cache"
)

// EventQuery filters the cross-service event search.
type EventQuery struct {
	Levels []string
	Start  time.Time
	End    time.Time
	Limit  int
}

// RawEvent is one untyped event record; the correlator owns the mapping
// into domain types.
type RawEvent map[string]any

// RawRunbook is one untyped runbook hit from the historical index.
type RawRunbook map[string]any

// Client queries the telemetry backend over HTTP/JSON.
type Client struct {
	baseURL      string
	apiKey       string
	servicesPath string
	metricsPath  string
	eventsPath   string
	runbooksPath string
	httpClient   *http.Client
	cache        cache.Provider
	runbooksTTL  time.Duration
}

// Config carries the client construction parameters.
type Config struct {
	BaseURL      string
	APIKey       string
	ServicesPath string
	MetricsPath  string
	EventsPath   string
	RunbooksPath string
	Timeout      time.Duration
	Cache        cache.Provider
	RunbooksTTL  time.Duration
}

// NewClient constructs a client targeting the configured backend.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NoopProvider{}
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		servicesPath: cfg.ServicesPath,
		metricsPath:  cfg.MetricsPath,
		eventsPath:   cfg.EventsPath,
		runbooksPath: cfg.RunbooksPath,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		cache:        cfg.Cache,
		runbooksTTL:  cfg.RunbooksTTL,
	}
}

// ActiveServices returns the distinct service names with any activity
// since the given time.
func (c *Client) ActiveServices(ctx context.Context, since time.Time) ([]string, error) {
	payload := map[string]any{
		"since": since.UTC().Format(time.RFC3339),
	}
	var response struct {
		Services []string `json:"services"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.servicesPath), payload, &response); err != nil {
		return nil, fmt.Errorf("telemetry services request failed: %w", err)
	}
	return response.Services, nil
}

// ErrorCount returns the error-level log count for one service over a window.
func (c *Client) ErrorCount(ctx context.Context, service string, start, end time.Time) (float64, error) {
	return c.scalarMetric(ctx, service, "error_count", 0, start, end)
}

// ErrorCountSeries returns per-bucket error counts over a window.
func (c *Client) ErrorCountSeries(ctx context.Context, service string, start, end time.Time, bucket time.Duration) ([]float64, error) {
	return c.bucketedSeries(ctx, service, "error_count", 0, start, end, bucket)
}

// LatencyPercentile returns the given latency percentile for one service.
func (c *Client) LatencyPercentile(ctx context.Context, service string, percentile int, start, end time.Time) (float64, error) {
	return c.scalarMetric(ctx, service, "latency_percentile", percentile, start, end)
}

// LatencyPercentileSeries returns per-bucket latency percentiles.
func (c *Client) LatencyPercentileSeries(ctx context.Context, service string, percentile int, start, end time.Time, bucket time.Duration) ([]float64, error) {
	return c.bucketedSeries(ctx, service, "latency_percentile", percentile, start, end, bucket)
}

func (c *Client) scalarMetric(ctx context.Context, service, kind string, percentile int, start, end time.Time) (float64, error) {
	payload := metricPayload(service, kind, percentile, start, end, 0)
	var response struct {
		Value float64 `json:"value"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.metricsPath), payload, &response); err != nil {
		return 0, fmt.Errorf("telemetry %s request failed: %w", kind, err)
	}
	return response.Value, nil
}

func (c *Client) bucketedSeries(ctx context.Context, service, kind string, percentile int, start, end time.Time, bucket time.Duration) ([]float64, error) {
	payload := metricPayload(service, kind, percentile, start, end, bucket)
	var response struct {
		Values []float64 `json:"values"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.metricsPath), payload, &response); err != nil {
		return nil, fmt.Errorf("telemetry %s series request failed: %w", kind, err)
	}
	return response.Values, nil
}

func metricPayload(service, kind string, percentile int, start, end time.Time, bucket time.Duration) map[string]any {
	payload := map[string]any{
		"service": service,
		"kind":    kind,
		"start":   start.UTC().Format(time.RFC3339),
		"end":     end.UTC().Format(time.RFC3339),
	}
	if percentile > 0 {
		payload["percentile"] = percentile
	}
	if bucket > 0 {
		payload["bucket_minutes"] = int(bucket.Minutes())
	}
	return payload
}

// SearchEvents returns raw event records matching the query, newest first.
func (c *Client) SearchEvents(ctx context.Context, q EventQuery) ([]RawEvent, error) {
	payload := map[string]any{
		"levels": q.Levels,
		"start":  q.Start.UTC().Format(time.RFC3339),
		"end":    q.End.UTC().Format(time.RFC3339),
		"limit":  q.Limit,
		"sort":   "timestamp_desc",
	}
	var response struct {
		Events []RawEvent `json:"events"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.eventsPath), payload, &response); err != nil {
		return nil, fmt.Errorf("telemetry events request failed: %w", err)
	}
	return response.Events, nil
}

// SearchRunbooks queries the historical runbook index for entries
// matching the affected services or metric keywords. Results are cached
// per query when a cache provider and TTL are configured; searches for
// the same recurring condition repeat every tick during an incident.
func (c *Client) SearchRunbooks(ctx context.Context, services, keywords []string, limit int) ([]RawRunbook, error) {
	if len(services) == 0 && len(keywords) == 0 {
		return nil, nil
	}

	cacheKey := runbookCacheKey(services, keywords, limit)
	if c.runbooksTTL > 0 {
		if data, err := c.cache.Get(ctx, cacheKey); err == nil {
			var cached []RawRunbook
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	payload := map[string]any{
		"services": services,
		"keywords": keywords,
		"limit":    limit,
	}
	var response struct {
		Runbooks []RawRunbook `json:"runbooks"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.runbooksPath), payload, &response); err != nil {
		return nil, fmt.Errorf("telemetry runbooks request failed: %w", err)
	}

	if c.runbooksTTL > 0 && len(response.Runbooks) > 0 {
		if data, err := json.Marshal(response.Runbooks); err == nil {
			_ = c.cache.Set(ctx, cacheKey, data, c.runbooksTTL)
		}
	}
	return response.Runbooks, nil
}

func runbookCacheKey(services, keywords []string, limit int) string {
	s := append([]string(nil), services...)
	k := append([]string(nil), keywords...)
	sort.Strings(s)
	sort.Strings(k)
	return fmt.Sprintf("runbooks:%s:%s:%d", strings.Join(s, ","), strings.Join(k, ","), limit)
}

func (c *Client) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("telemetry base URL not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telemetry backend returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
