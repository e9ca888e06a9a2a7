package main

import (
	"context"
	"errors"
	"os"
	"time"

	"trendai/internal/cli"
	"trendai/internal/services"
	"trendai/internal/trend"
	"trendai/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()
	logger.Info("Starting trendai-worker", "backend", cfg.DataBackend)

	res := cli.InitBackend(context.Background(), logger, cfg)
	if res.Snapshots == nil {
		logger.Error("Backend cannot store snapshots", "backend", cfg.DataBackend)
		os.Exit(1)
	}
	amqpClient := cli.InitAMQP(logger, cfg, true)
	m := cli.InitMetrics()

	trends := services.NewTrendService(res.Source, services.TrendConfig{
		Trend:      trend.Options{TopN: cfg.TrendTopN, StableBand: cfg.TrendStableBand},
		OtherLabel: cfg.OtherLabel,
		Metrics:    m,
		Snapshots:  res.Snapshots,
	})
	snapshots := worker.NewSnapshotWorker(trends, res.Snapshots, m)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		_ = amqpClient.Close()
		if err := res.Close(); err != nil {
			logger.Error("Backend close error", "error", err)
		}
	})

	go func() {
		if err := amqpClient.ConsumeRefresh(ctx, snapshots.HandleRefresh); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
	}()
	go snapshots.Run(ctx, cfg.RefreshInterval)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
