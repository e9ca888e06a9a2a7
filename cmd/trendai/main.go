package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"trendai/internal/cache"
	"trendai/internal/cli"
	apphttp "trendai/internal/http"
	"trendai/internal/services"
	"trendai/internal/trend"
	"trendai/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	ctx := context.Background()
	res := cli.InitBackend(ctx, logger, cfg)
	m := cli.InitMetrics()
	reportCache := cli.InitReportCache(ctx, logger, cfg)
	amqpClient := cli.InitAMQP(logger, cfg, false)

	trends := services.NewTrendService(res.Source, services.TrendConfig{
		Trend:        trend.Options{TopN: cfg.TrendTopN, StableBand: cfg.TrendStableBand},
		OtherLabel:   cfg.OtherLabel,
		ImageBaseURL: cfg.ImageBaseURL,
		ImageLimit:   cfg.ImageLimit,
		CacheSize:    cfg.CacheSize,
		CacheTTL:     cfg.CacheTTL,
		ReportCache:  reportCache,
		Metrics:      m,
		Snapshots:    res.Snapshots,
	})

	// Without a broker, refreshes run in this process.
	var snapshots *worker.SnapshotWorker
	var local services.RefreshFunc
	if res.Snapshots != nil {
		snapshots = worker.NewSnapshotWorker(trends, res.Snapshots, m)
		local = snapshots.HandleRefresh
	}
	var publisher services.RefreshPublisher
	if amqpClient != nil {
		publisher = amqpClient
	}
	imports := services.NewImportService(res.Records, res.Keywords, publisher, local, trends, m)

	cacheManager := cache.NewManager(logger.Slog())
	for _, c := range trends.Cleaners() {
		cacheManager.Register(c)
	}
	cacheManager.StartCleanup(time.Minute)

	checks := map[string]apphttp.ReadyCheck{}
	if reportCache != nil {
		checks["redis"] = reportCache.Ping
	}
	if amqpClient != nil {
		checks["amqp"] = amqpClient.Ping
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Trends:         trends,
		Imports:        imports,
		Metrics:        m,
		Logger:         logger,
		PublicDB:       cfg.PublicDB(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Checks:         checks,
	})

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cacheManager.Stop()
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
		if reportCache != nil {
			_ = reportCache.Close()
		}
		if err := res.Close(); err != nil {
			logger.Error("Backend close error", "error", err)
		}
	})

	if snapshots != nil && amqpClient == nil {
		go snapshots.Run(runCtx, cfg.RefreshInterval)
	}

	logger.Info("Starting trendai server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(runCtx, done)
	logger.Info("Server stopped gracefully")
}
