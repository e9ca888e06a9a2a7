package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trendai/internal/amqp"
	"trendai/internal/core"
	"trendai/internal/log"
	"trendai/internal/metrics"
	"trendai/internal/sources"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Reporter computes a report from the source of truth, bypassing caches.
type Reporter interface {
	Recompute(ctx context.Context, dim core.Dimension, c core.Criteria) (core.TrendReport, error)
}

// SnapshotWorker recomputes trend reports and persists them as snapshots.
type SnapshotWorker struct {
	reporter Reporter
	store    sources.SnapshotStore
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewSnapshotWorker(reporter Reporter, store sources.SnapshotStore, m *metrics.Metrics) *SnapshotWorker {
	return &SnapshotWorker{
		reporter: reporter,
		store:    store,
		metrics:  m,
		now:      time.Now,
	}
}

// HandleRefresh processes a single refresh message from AMQP.
func (w *SnapshotWorker) HandleRefresh(ctx context.Context, msg *amqp.RefreshMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	ctx = log.NewContext(ctx, log.FromContext(ctx).WithComponent(log.ComponentWorker).With(log.FieldMessageID, msg.ID))
	return w.refreshDimensions(ctx, msg.Dimensions(), msg.Period())
}

// RefreshAll recomputes every trend dimension for the current month.
func (w *SnapshotWorker) RefreshAll(ctx context.Context) error {
	now := w.now()
	p := core.Period{Year: now.Year(), Month: int(now.Month())}
	return w.refreshDimensions(ctx, core.TrendDimensions, p)
}

func (w *SnapshotWorker) refreshDimensions(ctx context.Context, dims []core.Dimension, p core.Period) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, dim := range dims {
		g.Go(func() error {
			_, err := w.Refresh(gctx, dim, p)
			return err
		})
	}
	return g.Wait()
}

// Refresh computes one report and stores it under a new snapshot ID.
func (w *SnapshotWorker) Refresh(ctx context.Context, dim core.Dimension, p core.Period) (core.Snapshot, error) {
	start := time.Now()
	snap, err := w.refresh(ctx, dim, p)
	w.metrics.ObserveRefresh(string(dim), time.Since(start), err)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Snapshot refresh failed",
			log.FieldOperation, log.OpRefresh,
			log.FieldDimension, string(dim),
			"period", p.String(),
			log.FieldError, err)
		return core.Snapshot{}, err
	}

	log.FromContext(ctx).InfoContext(ctx, "Snapshot stored",
		log.FieldOperation, log.OpRefresh,
		log.FieldSnapshotID, snap.ID,
		log.FieldDimension, string(dim),
		"period", p.String(),
		log.FieldTotal, snap.Report.TotalFilteredCount,
		log.FieldDuration, time.Since(start).Milliseconds())
	return snap, nil
}

func (w *SnapshotWorker) refresh(ctx context.Context, dim core.Dimension, p core.Period) (core.Snapshot, error) {
	report, err := w.reporter.Recompute(ctx, dim, core.Criteria{Year: p.Year, Month: p.Month})
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("compute %s report: %w", dim, err)
	}

	snap := core.Snapshot{
		ID:        uuid.NewString(),
		Dimension: dim,
		Period:    p,
		Report:    report,
		CreatedAt: w.now().UTC(),
	}
	if err := w.store.SaveSnapshot(ctx, snap); err != nil {
		return core.Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	return snap, nil
}

// Run refreshes immediately and then on every tick until ctx is done.
func (w *SnapshotWorker) Run(ctx context.Context, interval time.Duration) {
	if err := w.RefreshAll(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial snapshot refresh failed", log.FieldError, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Periodic snapshot refresh stopped")
			return
		case <-ticker.C:
			if err := w.RefreshAll(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic snapshot refresh failed", log.FieldError, err)
			}
		}
	}
}
