package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelstack/sentinelops/internal/analyzer"
	"github.com/sentinelstack/sentinelops/internal/api"
	"github.com/sentinelstack/sentinelops/internal/cache"
	"github.com/sentinelstack/sentinelops/internal/config"
	"github.com/sentinelstack/sentinelops/internal/correlator"
	"github.com/sentinelstack/sentinelops/internal/detector"
	"github.com/sentinelstack/sentinelops/internal/incidents"
	"github.com/sentinelstack/sentinelops/internal/metrics"
	"github.com/sentinelstack/sentinelops/internal/notify"
	"github.com/sentinelstack/sentinelops/internal/orchestrator"
	"github.com/sentinelstack/sentinelops/internal/runbooks"
	"github.com/sentinelstack/sentinelops/internal/telemetry"
	"github.com/sentinelstack/sentinelops/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting sentinelops", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	var valkeyCloser cache.Provider
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			TLS:          cfg.Cache.TLS,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			valkeyCloser = provider
		}
	}
	if valkeyCloser != nil {
		defer valkeyCloser.Close()
	}

	telemetryClient := telemetry.NewClient(telemetry.Config{
		BaseURL:      cfg.Telemetry.BaseURL,
		APIKey:       cfg.Telemetry.APIKey,
		ServicesPath: cfg.Telemetry.ServicesPath,
		MetricsPath:  cfg.Telemetry.MetricsPath,
		EventsPath:   cfg.Telemetry.EventsPath,
		RunbooksPath: cfg.Telemetry.RunbooksPath,
		Timeout:      cfg.Telemetry.Timeout,
		Cache:        cacheProvider,
		RunbooksTTL:  cfg.Cache.RunbooksTTL(),
	})

	det := detector.New(detector.Config{
		Lookback:          cfg.Polling.Lookback(),
		BaselineWindow:    cfg.Detection.BaselineWindow(),
		MinDataPoints:     cfg.Detection.MinDataPoints,
		Thresholds:        cfg.Detection.Thresholds,
		LatencyPercentile: cfg.Detection.LatencyPercentile,
	}, telemetryClient, logger)

	corr := correlator.New(correlator.Config{
		Window:    cfg.Correlation.Window(),
		MaxEvents: cfg.Correlation.MaxEvents,
	}, telemetryClient, logger)

	runbookSearch := runbooks.New(telemetryClient, cfg.Incidents.MaxRunbooks, logger)

	rootCauseAnalyzer := analyzer.New(analyzer.Config{
		BaseURL:   cfg.Analyzer.BaseURL,
		APIKey:    cfg.Analyzer.APIKey,
		Model:     cfg.Analyzer.Model,
		MaxTokens: cfg.Analyzer.MaxTokens,
		Timeout:   cfg.Analyzer.Timeout,
	}, logger)

	manager := incidents.NewManager(incidents.Config{
		Cooldown: cfg.Incidents.DedupCooldown(),
	}, logger)
	store := incidents.NewStore(cfg.Incidents.MaxStored)

	var notifiers []notify.Notifier
	if cfg.Notifiers.Slack.BotToken != "" && cfg.Notifiers.Slack.ChannelID != "" {
		notifiers = append(notifiers, notify.NewSlack(notify.SlackConfig{
			BotToken:  cfg.Notifiers.Slack.BotToken,
			ChannelID: cfg.Notifiers.Slack.ChannelID,
			Timeout:   cfg.Notifiers.Slack.Timeout,
		}, logger))
	}
	if cfg.Notifiers.PagerDuty.APIKey != "" && cfg.Notifiers.PagerDuty.ServiceID != "" {
		notifiers = append(notifiers, notify.NewPagerDuty(notify.PagerDutyConfig{
			APIKey:     cfg.Notifiers.PagerDuty.APIKey,
			ServiceID:  cfg.Notifiers.PagerDuty.ServiceID,
			Severities: cfg.Incidents.PagerDutySeverities,
			Timeout:    cfg.Notifiers.PagerDuty.Timeout,
		}, logger))
	}
	dispatcher := notify.NewDispatcher(logger, notifiers...)
	logger.Info("notification channels configured", slog.Int("count", dispatcher.Channels()))

	loop := orchestrator.New(
		orchestrator.Config{Interval: cfg.Polling.Interval()},
		det, corr, runbookSearch, rootCauseAnalyzer, manager, store, dispatcher,
		logger,
	)

	server := api.NewServer(api.Config{
		Address:         cfg.Server.Address,
		GracefulTimeout: cfg.Server.GracefulTimeout,
	}, api.NewHandler(store, logger), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("dashboard server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	loopDone := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(loopDone)
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("dashboard server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	<-loopDone
	logger.Info("sentinelops stopped")
}
