// Command trendai-import loads record and mood keyword CSV exports into the
// configured backend and requests a snapshot refresh for every imported month.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"trendai/internal/cli"
	"trendai/internal/core"
	"trendai/internal/services"
	"trendai/internal/sources"
	"trendai/internal/trend"
	"trendai/internal/worker"
)

func main() {
	recordsPath := flag.String("records", "", "path to a records CSV export")
	keywordsPath := flag.String("keywords", "", "path to a mood keywords CSV export")
	flag.Parse()

	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()
	if *recordsPath == "" && *keywordsPath == "" {
		logger.Error("Nothing to import, pass -records and/or -keywords")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	res := cli.InitBackend(ctx, logger, cfg)
	defer res.Close()
	if res.Records == nil {
		logger.Error("Backend is read-only", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	var publisher services.RefreshPublisher
	if client := cli.InitAMQP(logger, cfg, false); client != nil {
		defer client.Close()
		publisher = client
	}
	m := cli.InitMetrics()

	// Invalidating through the shared report cache makes running API
	// instances drop reports computed before the import.
	reportCache := cli.InitReportCache(ctx, logger, cfg)
	defer reportCache.Close()
	trends := services.NewTrendService(res.Source, services.TrendConfig{
		Trend:       trend.Options{TopN: cfg.TrendTopN, StableBand: cfg.TrendStableBand},
		OtherLabel:  cfg.OtherLabel,
		ReportCache: reportCache,
		Metrics:     m,
		Snapshots:   res.Snapshots,
	})

	// Without a broker the imported months are recomputed here.
	var local services.RefreshFunc
	if publisher == nil && res.Snapshots != nil {
		local = worker.NewSnapshotWorker(trends, res.Snapshots, m).HandleRefresh
	}
	imports := services.NewImportService(res.Records, res.Keywords, publisher, local, trends, m)

	if *keywordsPath != "" {
		keywords, err := readKeywords(*keywordsPath)
		if err != nil {
			logger.Error("Failed to read keywords", "error", err, "path", *keywordsPath)
			os.Exit(1)
		}
		n, err := imports.ImportKeywords(ctx, keywords)
		if err != nil {
			logger.Error("Keyword import failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Keywords imported", "count", n)
	}

	if *recordsPath != "" {
		records, skipped, err := readRecords(*recordsPath)
		if err != nil {
			logger.Error("Failed to read records", "error", err, "path", *recordsPath)
			os.Exit(1)
		}
		result, err := imports.Import(ctx, records)
		if err != nil {
			logger.Error("Record import failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Records imported",
			"stored", result.Stored,
			"skipped", skipped,
			"periods", len(result.Periods),
			"refreshes_published", result.Published)
	}
}

func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return sources.ReadCSV(f)
}

func readRecords(path string) ([]core.Record, int, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, 0, err
	}
	return sources.DecodeRecords(rows)
}

func readKeywords(path string) ([]core.MoodKeyword, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	keywords, err := sources.DecodeKeywords(rows)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return keywords, nil
}
