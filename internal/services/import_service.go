package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"trendai/internal/amqp"
	"trendai/internal/core"
	"trendai/internal/log"
	"trendai/internal/metrics"
	"trendai/internal/sources"
)

// RefreshPublisher enqueues snapshot refreshes. *amqp.Client implements it.
type RefreshPublisher interface {
	PublishRefresh(ctx context.Context, msg *amqp.RefreshMessage) error
}

// Invalidator drops cached reads once new data is stored. *TrendService
// implements it.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// RefreshFunc handles a refresh in-process when no broker is configured.
type RefreshFunc func(ctx context.Context, msg *amqp.RefreshMessage) error

var ErrRefreshUnavailable = errors.New("no refresh publisher or local handler configured")

// ImportResult summarizes one import.
type ImportResult struct {
	Stored    int           `json:"stored"`
	Periods   []core.Period `json:"periods"`
	Published int           `json:"published"`
}

// ImportService stores new records and asks for their periods to be refreshed.
type ImportService struct {
	records   sources.RecordWriter
	keywords  sources.KeywordWriter
	publisher RefreshPublisher
	local     RefreshFunc
	caches    Invalidator
	metrics   *metrics.Metrics
}

// NewImportService accepts nil for publisher, local, caches and m.
func NewImportService(records sources.RecordWriter, keywords sources.KeywordWriter, publisher RefreshPublisher, local RefreshFunc, caches Invalidator, m *metrics.Metrics) *ImportService {
	return &ImportService{
		records:   records,
		keywords:  keywords,
		publisher: publisher,
		local:     local,
		caches:    caches,
		metrics:   m,
	}
}

// Import saves records and publishes one refresh per distinct period.
// Refresh failures are logged; the records are already stored.
func (s *ImportService) Import(ctx context.Context, records []core.Record) (ImportResult, error) {
	if s.records == nil {
		return ImportResult{}, errors.New("backend does not accept records")
	}
	stored, err := s.records.AppendRecords(ctx, records)
	if err != nil {
		return ImportResult{}, fmt.Errorf("save records: %w", err)
	}
	s.invalidate(ctx)

	result := ImportResult{Stored: stored, Periods: distinctPeriods(records)}
	for _, p := range result.Periods {
		if _, err := s.RequestRefresh(ctx, "", p); err != nil {
			slog.ErrorContext(ctx, "Failed to request snapshot refresh",
				log.FieldOperation, log.OpImport,
				"period", p.String(),
				log.FieldError, err)
			continue
		}
		result.Published++
	}

	slog.InfoContext(ctx, "Records imported",
		log.FieldOperation, log.OpImport,
		log.FieldRecordCount, stored,
		"periods", len(result.Periods),
		"refreshes", result.Published)
	return result, nil
}

func (s *ImportService) ImportKeywords(ctx context.Context, keywords []core.MoodKeyword) (int, error) {
	if s.keywords == nil {
		return 0, errors.New("backend does not accept mood keywords")
	}
	n, err := s.keywords.AppendKeywords(ctx, keywords)
	if err != nil {
		return 0, fmt.Errorf("save mood keywords: %w", err)
	}
	s.invalidate(ctx)
	slog.InfoContext(ctx, "Mood keywords imported", "count", n)
	return n, nil
}

// RequestRefresh publishes a refresh for dim (all trend dimensions when empty)
// and p, or runs it in-process when there is no publisher.
func (s *ImportService) RequestRefresh(ctx context.Context, dim core.Dimension, p core.Period) (*amqp.RefreshMessage, error) {
	msg := amqp.NewRefreshMessage(dim, p)
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	switch {
	case s.publisher != nil:
		err := s.publisher.PublishRefresh(ctx, msg)
		s.metrics.ObservePublish(err)
		if err != nil {
			return nil, fmt.Errorf("publish refresh: %w", err)
		}
	case s.local != nil:
		slog.WarnContext(ctx, "AMQP client not available, refreshing in-process", log.FieldMessageID, msg.ID)
		if err := s.local(ctx, msg); err != nil {
			return nil, fmt.Errorf("local refresh: %w", err)
		}
	default:
		return nil, ErrRefreshUnavailable
	}
	return msg, nil
}

// invalidate runs after a successful write. Failures are logged; the data is
// already stored.
func (s *ImportService) invalidate(ctx context.Context) {
	if s.caches == nil {
		return
	}
	if err := s.caches.Invalidate(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate trend caches",
			log.FieldOperation, log.OpImport,
			log.FieldError, err)
	}
}

func distinctPeriods(records []core.Record) []core.Period {
	set := map[core.Period]struct{}{}
	for _, r := range records {
		set[core.Period{Year: r.Year, Month: r.Month}] = struct{}{}
	}
	out := make([]core.Period, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}
