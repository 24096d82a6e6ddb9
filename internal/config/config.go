package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sentinelstack/sentinelops/internal/stats"
)

// Config captures the settings required to run the monitoring pipeline.
// Interval-style knobs use integer second/minute fields so they read
// naturally in YAML; client timeouts are durations set by defaults or
// environment overrides.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Polling     PollingConfig     `yaml:"polling"`
	Detection   DetectionConfig   `yaml:"detection"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Incidents   IncidentsConfig   `yaml:"incidents"`
	Analyzer    AnalyzerConfig    `yaml:"analyzer"`
	Notifiers   NotifiersConfig   `yaml:"notifiers"`
	Cache       CacheConfig       `yaml:"cache"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig controls the dashboard API and metrics listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"-"`
}

// TelemetryConfig configures access to the telemetry query backend.
type TelemetryConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	APIKey       string        `yaml:"apiKey"`
	ServicesPath string        `yaml:"servicesPath"`
	MetricsPath  string        `yaml:"metricsPath"`
	EventsPath   string        `yaml:"eventsPath"`
	RunbooksPath string        `yaml:"runbooksPath"`
	Timeout      time.Duration `yaml:"-"`
}

// PollingConfig controls tick-loop pacing.
type PollingConfig struct {
	IntervalSeconds int `yaml:"intervalSeconds"`
	LookbackMinutes int `yaml:"lookbackMinutes"`
}

// Interval returns the tick interval as a duration.
func (p PollingConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// Lookback returns the current-window size as a duration.
func (p PollingConfig) Lookback() time.Duration {
	return time.Duration(p.LookbackMinutes) * time.Minute
}

// DetectionConfig controls the anomaly detector.
type DetectionConfig struct {
	Thresholds            stats.Thresholds `yaml:"thresholds"`
	BaselineWindowMinutes int              `yaml:"baselineWindowMinutes"`
	MinDataPoints         int              `yaml:"minDataPoints"`
	LatencyPercentile     int              `yaml:"latencyPercentile"`
}

// BaselineWindow returns the historical window as a duration.
func (d DetectionConfig) BaselineWindow() time.Duration {
	return time.Duration(d.BaselineWindowMinutes) * time.Minute
}

// CorrelationConfig controls the cross-service event search.
type CorrelationConfig struct {
	WindowMinutes int `yaml:"windowMinutes"`
	MaxEvents     int `yaml:"maxEvents"`
}

// Window returns the correlation radius as a duration.
func (c CorrelationConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// IncidentsConfig controls dedup suppression and store capacity.
type IncidentsConfig struct {
	DedupCooldownMinutes int      `yaml:"dedupCooldownMinutes"`
	MaxStored            int      `yaml:"maxStored"`
	MaxRunbooks          int      `yaml:"maxRunbooks"`
	PagerDutySeverities  []string `yaml:"pagerdutySeverities"`
}

// DedupCooldown returns the suppression window as a duration.
func (i IncidentsConfig) DedupCooldown() time.Duration {
	return time.Duration(i.DedupCooldownMinutes) * time.Minute
}

// AnalyzerConfig configures the generative summarizer client.
type AnalyzerConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	APIKey    string        `yaml:"apiKey"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"maxTokens"`
	Timeout   time.Duration `yaml:"-"`
}

// NotifiersConfig groups the outbound notification channels.
type NotifiersConfig struct {
	Slack     SlackConfig     `yaml:"slack"`
	PagerDuty PagerDutyConfig `yaml:"pagerduty"`
}

// SlackConfig configures the Slack channel notifier.
type SlackConfig struct {
	BotToken  string        `yaml:"botToken"`
	ChannelID string        `yaml:"channelID"`
	Timeout   time.Duration `yaml:"-"`
}

// PagerDutyConfig configures the PagerDuty incident notifier.
type PagerDutyConfig struct {
	APIKey    string        `yaml:"apiKey"`
	ServiceID string        `yaml:"serviceID"`
	Timeout   time.Duration `yaml:"-"`
}

// CacheConfig controls Valkey-backed caching of runbook lookups.
type CacheConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Addr               string        `yaml:"addr"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	TLS                bool          `yaml:"tls"`
	RunbooksTTLMinutes int           `yaml:"runbooksTTLMinutes"`
	DialTimeout        time.Duration `yaml:"-"`
	ReadTimeout        time.Duration `yaml:"-"`
	WriteTimeout       time.Duration `yaml:"-"`
}

// RunbooksTTL returns the runbook-search cache TTL as a duration.
func (c CacheConfig) RunbooksTTL() time.Duration {
	return time.Duration(c.RunbooksTTLMinutes) * time.Minute
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SENTINELOPS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8000",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServicesPath: "/api/v1/telemetry/services",
			MetricsPath:  "/api/v1/telemetry/metrics",
			EventsPath:   "/api/v1/telemetry/events",
			RunbooksPath: "/api/v1/telemetry/runbooks",
			Timeout:      5 * time.Second,
		},
		Polling: PollingConfig{
			IntervalSeconds: 30,
			LookbackMinutes: 5,
		},
		Detection: DetectionConfig{
			Thresholds:            stats.DefaultThresholds(),
			BaselineWindowMinutes: 60,
			MinDataPoints:         10,
			LatencyPercentile:     99,
		},
		Correlation: CorrelationConfig{
			WindowMinutes: 10,
			MaxEvents:     50,
		},
		Incidents: IncidentsConfig{
			DedupCooldownMinutes: 30,
			MaxStored:            200,
			MaxRunbooks:          5,
			PagerDutySeverities:  []string{"P1", "P2"},
		},
		Analyzer: AnalyzerConfig{
			Model:     "claude-sonnet-4-6",
			MaxTokens: 1024,
			Timeout:   30 * time.Second,
		},
		Notifiers: NotifiersConfig{
			Slack:     SlackConfig{Timeout: 10 * time.Second},
			PagerDuty: PagerDutyConfig{Timeout: 10 * time.Second},
		},
		Cache: CacheConfig{
			Enabled:            false,
			RunbooksTTLMinutes: 5,
			DialTimeout:        2 * time.Second,
			ReadTimeout:        500 * time.Millisecond,
			WriteTimeout:       500 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func validate(cfg *Config) error {
	if cfg.Polling.IntervalSeconds <= 0 {
		return fmt.Errorf("polling.intervalSeconds must be positive")
	}
	if cfg.Polling.LookbackMinutes <= 0 {
		return fmt.Errorf("polling.lookbackMinutes must be positive")
	}
	if cfg.Detection.BaselineWindowMinutes <= cfg.Polling.LookbackMinutes {
		return fmt.Errorf("detection.baselineWindowMinutes must exceed polling.lookbackMinutes")
	}
	if cfg.Incidents.MaxStored <= 0 {
		return fmt.Errorf("incidents.maxStored must be positive")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINELOPS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SENTINELOPS_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SENTINELOPS_TELEMETRY_URL"); v != "" {
		cfg.Telemetry.BaseURL = v
	}
	if v := os.Getenv("SENTINELOPS_TELEMETRY_API_KEY"); v != "" {
		cfg.Telemetry.APIKey = v
	}
	if v := os.Getenv("SENTINELOPS_TELEMETRY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Telemetry.Timeout = d
		}
	}
	if v := os.Getenv("SENTINELOPS_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Polling.IntervalSeconds = n
		}
	}
	if v := os.Getenv("SENTINELOPS_ANALYZER_URL"); v != "" {
		cfg.Analyzer.BaseURL = v
	}
	if v := os.Getenv("SENTINELOPS_ANALYZER_API_KEY"); v != "" {
		cfg.Analyzer.APIKey = v
	}
	if v := os.Getenv("SENTINELOPS_SLACK_BOT_TOKEN"); v != "" {
		cfg.Notifiers.Slack.BotToken = v
	}
	if v := os.Getenv("SENTINELOPS_SLACK_CHANNEL_ID"); v != "" {
		cfg.Notifiers.Slack.ChannelID = v
	}
	if v := os.Getenv("SENTINELOPS_PAGERDUTY_API_KEY"); v != "" {
		cfg.Notifiers.PagerDuty.APIKey = v
	}
	if v := os.Getenv("SENTINELOPS_PAGERDUTY_SERVICE_ID"); v != "" {
		cfg.Notifiers.PagerDuty.ServiceID = v
	}
	if v := os.Getenv("SENTINELOPS_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SENTINELOPS_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("SENTINELOPS_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("SENTINELOPS_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("SENTINELOPS_CACHE_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("SENTINELOPS_STORE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Incidents.MaxStored = n
		}
	}
	if v := os.Getenv("SENTINELOPS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENTINELOPS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
