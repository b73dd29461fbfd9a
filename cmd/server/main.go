package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/storm-threat-service/internal/adapter/geodata"
	httpadapter "github.com/couchcryptid/storm-threat-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-threat-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-threat-service/internal/adapter/nhc"
	"github.com/couchcryptid/storm-threat-service/internal/config"
	"github.com/couchcryptid/storm-threat-service/internal/engine"
	"github.com/couchcryptid/storm-threat-service/internal/observability"
	"github.com/couchcryptid/storm-threat-service/internal/stormcache"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	counties, err := geodata.Load(cfg.CountyDataPath, logger)
	if err != nil {
		logger.Error("failed to load county dataset", "error", err, "path", cfg.CountyDataPath)
		os.Exit(1)
	}

	feed := nhc.NewClient(cfg.NHCFeedURL, cfg.FetchTimeout, logger)
	cache := stormcache.New(feed, cfg.FeedTTL, cfg.FetchTimeout, logger)

	// Alert publishing is feature-flagged via KAFKA_ENABLED.
	var publisher engine.AlertPublisher
	var closePublisher func() error
	if cfg.KafkaEnabled {
		p := kafkaadapter.NewPublisher(cfg, logger)
		publisher = p
		closePublisher = p.Close
		logger.Info("kafka alert publishing enabled",
			"brokers", cfg.KafkaBrokers,
			"topic", cfg.KafkaAlertsTopic,
		)
	} else {
		logger.Info("kafka alert publishing disabled")
	}

	eng, err := engine.New(counties, cfg.Weights, cache, publisher, logger, metrics)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, eng, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Refresh the storm feed on startup and then on an interval. Failures
	// are logged and retried on the next tick; the cached snapshot keeps
	// serving meanwhile.
	go refreshLoop(ctx, eng, cfg.RefreshInterval, logger)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if closePublisher != nil {
		if err := closePublisher(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func refreshLoop(ctx context.Context, eng *engine.Engine, interval time.Duration, logger *slog.Logger) {
	refresh := func() {
		result, err := eng.RefreshStormFeed(ctx)
		if err != nil {
			logger.Warn("scheduled feed refresh failed", "error", err)
			return
		}
		logger.Debug("scheduled feed refresh complete",
			"active_storms", result.ActiveStorms,
			"critical_alerts", result.CriticalAlerts,
		)
	}

	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
