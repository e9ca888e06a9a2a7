package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"trendai/internal/cache"
	"trendai/internal/core"
	"trendai/internal/log"
	"trendai/internal/metrics"
	"trendai/internal/sources"
	"trendai/internal/trend"

	"golang.org/x/sync/errgroup"
)

// ErrNoSnapshotStore is returned when the backend cannot persist snapshots.
var ErrNoSnapshotStore = errors.New("snapshot store not configured")

// TrendConfig wires a TrendService. Zero values fall back to defaults;
// ReportCache, Metrics and Snapshots are optional.
type TrendConfig struct {
	Trend        trend.Options
	OtherLabel   string
	ImageBaseURL string
	ImageLimit   int
	CacheSize    int
	CacheTTL     time.Duration

	ReportCache *cache.ReportCache
	Metrics     *metrics.Metrics
	Snapshots   sources.SnapshotStore
}

// TrendService answers every read query of the dashboard.
type TrendService struct {
	source    sources.Source
	snapshots sources.SnapshotStore
	records   *cache.LRUCache[[]core.Record]
	meta      *cache.LRUCache[core.Meta]
	reports   *cache.ReportCache
	metrics   *metrics.Metrics

	opts         trend.Options
	otherLabel   string
	imageBaseURL string
	imageLimit   int
}

func NewTrendService(source sources.Source, cfg TrendConfig) *TrendService {
	if cfg.Trend.TopN <= 0 {
		cfg.Trend.TopN = trend.DefaultTopN
	}
	if cfg.Trend.StableBand < 0 {
		cfg.Trend.StableBand = trend.DefaultStableBand
	}
	if cfg.OtherLabel == "" {
		cfg.OtherLabel = trend.DefaultOtherLabel
	}
	if cfg.ImageLimit <= 0 {
		cfg.ImageLimit = 30
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	return &TrendService{
		source:       source,
		snapshots:    cfg.Snapshots,
		records:      cache.NewLRUCache[[]core.Record](cfg.CacheSize, cfg.CacheTTL),
		meta:         cache.NewLRUCache[core.Meta](4, cfg.CacheTTL),
		reports:      cfg.ReportCache,
		metrics:      cfg.Metrics,
		opts:         cfg.Trend,
		otherLabel:   cfg.OtherLabel,
		imageBaseURL: strings.TrimRight(cfg.ImageBaseURL, "/"),
		imageLimit:   cfg.ImageLimit,
	}
}

// Cleaners exposes the in-process caches for periodic expiry.
func (s *TrendService) Cleaners() []cache.Cleaner {
	return []cache.Cleaner{s.records, s.meta}
}

// Report computes the rising/stable/falling report for one dimension.
func (s *TrendService) Report(ctx context.Context, dim core.Dimension, c core.Criteria) (core.TrendReport, error) {
	if err := c.Validate(); err != nil {
		return core.TrendReport{}, err
	}

	key := cache.Key("report", dim, c, strconv.Itoa(s.opts.TopN), strconv.FormatFloat(s.opts.StableBand, 'f', -1, 64))
	if s.reports != nil {
		report, ok, err := s.reports.GetReport(ctx, key)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "Report cache unavailable", log.FieldError, err)
		case ok:
			s.metrics.CacheHit("redis")
			return report, nil
		default:
			s.metrics.CacheMiss("redis")
		}
	}

	records, err := s.loadRecords(ctx, c.Query())
	if err != nil {
		return core.TrendReport{}, err
	}
	report := s.aggregate(ctx, dim, c, records)

	if s.reports != nil {
		if err := s.reports.SetReport(ctx, key, report); err != nil {
			slog.WarnContext(ctx, "Failed to cache report", log.FieldDimension, string(dim), log.FieldError, err)
		}
	}
	return report, nil
}

// Recompute bypasses every cache. Used by the snapshot worker.
func (s *TrendService) Recompute(ctx context.Context, dim core.Dimension, c core.Criteria) (core.TrendReport, error) {
	if err := c.Validate(); err != nil {
		return core.TrendReport{}, err
	}
	q := c.Query()
	records, err := s.source.ListRecords(ctx, q)
	if err != nil {
		return core.TrendReport{}, fmt.Errorf("list records: %w", err)
	}
	return s.aggregate(ctx, dim, c, sources.Filter(records, q)), nil
}

func (s *TrendService) aggregate(ctx context.Context, dim core.Dimension, c core.Criteria, records []core.Record) core.TrendReport {
	start := time.Now()
	report := trend.Aggregate(records, c, dim.Accessor(), s.opts)
	s.metrics.ObserveReport(string(dim), len(records), time.Since(start))

	slog.DebugContext(ctx, "Trend report computed",
		log.NewFields().
			WithOperation(log.OpReport).
			WithCriteria(c).
			WithReport(dim, report).
			ToSlice()...)
	return report
}

// loadRecords returns the records covered by q, served from the LRU when possible.
func (s *TrendService) loadRecords(ctx context.Context, q core.RecordQuery) ([]core.Record, error) {
	key := cache.QueryKey(q)
	if s.reports != nil {
		gen, err := s.reports.Generation(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Report cache unavailable", log.FieldError, err)
		}
		key = gen + "|" + key
	}
	if records, ok := s.records.Get(key); ok {
		s.metrics.CacheHit("records")
		return records, nil
	}
	s.metrics.CacheMiss("records")

	records, err := s.source.ListRecords(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	records = sources.Filter(records, q)
	s.records.Set(key, records)
	return records, nil
}

// Breakdown counts one dimension and folds the tail into the other bucket.
func (s *TrendService) Breakdown(ctx context.Context, dim core.Dimension, c core.Criteria, maxItems, threshold int) (core.Breakdown, error) {
	if err := c.Validate(); err != nil {
		return core.Breakdown{}, err
	}
	records, err := s.loadRecords(ctx, c.Query())
	if err != nil {
		return core.Breakdown{}, err
	}
	return trend.Breakdown(records, c, dim, maxItems, threshold, s.otherLabel), nil
}

// MoodBreakdown builds the mood charts. The category chart ignores the mood
// selection, the look chart follows the selected category, and the pattern,
// color and detail charts follow both. Folding only applies to the last three
// and only while a mood is selected.
func (s *TrendService) MoodBreakdown(ctx context.Context, c core.Criteria, maxItems, threshold int) (core.MoodBreakdown, error) {
	if err := c.Validate(); err != nil {
		return core.MoodBreakdown{}, err
	}
	records, err := s.loadRecords(ctx, c.Query())
	if err != nil {
		return core.MoodBreakdown{}, err
	}

	base := c
	base.MoodCategory, base.MoodLook = "", ""
	looks := base
	looks.MoodCategory = c.MoodCategory

	if c.MoodCategory == "" && c.MoodLook == "" {
		maxItems, threshold = 0, 0
	}

	return core.MoodBreakdown{
		Categories: trend.Breakdown(records, base, core.DimMoodCategory, 0, 0, s.otherLabel),
		Looks:      trend.Breakdown(records, looks, core.DimMoodLook, 0, 0, s.otherLabel),
		Patterns:   trend.Breakdown(records, c, core.DimPattern, maxItems, threshold, s.otherLabel),
		Colors:     trend.Breakdown(records, c, core.DimColor, maxItems, threshold, s.otherLabel),
		Details:    trend.Breakdown(records, c, core.DimDetail, maxItems, threshold, s.otherLabel),
	}, nil
}

// Images lists the thumbnails tagged with value, most followed first.
// Each s3 key appears once.
func (s *TrendService) Images(ctx context.Context, dim core.Dimension, value string, c core.Criteria, limit int) ([]core.ImageRef, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	value, ok := core.NormalizeValue(value)
	if !ok {
		return []core.ImageRef{}, nil
	}
	if limit <= 0 || limit > s.imageLimit {
		limit = s.imageLimit
	}

	records, err := s.loadRecords(ctx, c.Query())
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	images := make([]core.ImageRef, 0)
	for _, r := range records {
		if r.S3Key == "" || !c.Matches(r) {
			continue
		}
		if v, ok := core.NormalizeValue(dim.Value(r)); !ok || v != value {
			continue
		}
		if _, dup := seen[r.S3Key]; dup {
			continue
		}
		seen[r.S3Key] = struct{}{}
		images = append(images, core.ImageRef{
			S3Key:         r.S3Key,
			URL:           s.imageURL(r.S3Key),
			Value:         value,
			FollowerCount: r.FollowerCount,
			Year:          r.Year,
			Month:         r.Month,
		})
	}

	sort.SliceStable(images, func(i, j int) bool {
		fi, fj := followersOf(images[i]), followersOf(images[j])
		if fi != fj {
			return fi > fj
		}
		return images[i].S3Key < images[j].S3Key
	})
	if len(images) > limit {
		images = images[:limit]
	}

	slog.DebugContext(ctx, "Images listed",
		log.FieldOperation, log.OpImages,
		log.FieldDimension, string(dim),
		"value", value,
		"count", len(images))
	return images, nil
}

func followersOf(img core.ImageRef) int64 {
	if img.FollowerCount == nil {
		return -1
	}
	return *img.FollowerCount
}

func (s *TrendService) imageURL(key string) string {
	if s.imageBaseURL == "" || strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	return s.imageBaseURL + "/" + strings.TrimLeft(key, "/")
}

// Meta lists the periods and top-level categories present.
func (s *TrendService) Meta(ctx context.Context) (core.Meta, error) {
	if meta, ok := s.meta.Get("meta"); ok {
		s.metrics.CacheHit("meta")
		return meta, nil
	}
	s.metrics.CacheMiss("meta")

	meta, err := s.source.Meta(ctx)
	if err != nil {
		return core.Meta{}, fmt.Errorf("read meta: %w", err)
	}
	s.meta.Set("meta", meta)
	return meta, nil
}

func (s *TrendService) Categories(ctx context.Context) ([]string, error) {
	meta, err := s.Meta(ctx)
	if err != nil {
		return nil, err
	}
	if meta.Categories == nil {
		return []string{}, nil
	}
	return meta.Categories, nil
}

// MetaWithKeywords loads meta and the grouped mood keywords concurrently.
func (s *TrendService) MetaWithKeywords(ctx context.Context) (core.Meta, []core.MoodCategoryGroup, error) {
	var (
		meta   core.Meta
		groups []core.MoodCategoryGroup
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		meta, err = s.Meta(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		groups, err = s.MoodKeywords(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Meta{}, nil, err
	}
	return meta, groups, nil
}

// MoodKeywords groups keywords by category then look, in first-seen order.
func (s *TrendService) MoodKeywords(ctx context.Context) ([]core.MoodCategoryGroup, error) {
	keywords, err := s.source.MoodKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("read mood keywords: %w", err)
	}
	return GroupKeywords(keywords), nil
}

func GroupKeywords(keywords []core.MoodKeyword) []core.MoodCategoryGroup {
	groups := make([]core.MoodCategoryGroup, 0)
	catIdx := map[string]int{}
	lookIdx := map[string]int{}
	seen := map[string]struct{}{}

	for _, k := range keywords {
		ci, ok := catIdx[k.Category]
		if !ok {
			ci = len(groups)
			catIdx[k.Category] = ci
			groups = append(groups, core.MoodCategoryGroup{Name: k.Category, Looks: []core.MoodLookGroup{}})
		}
		lk := k.Category + "\x00" + k.Look
		li, ok := lookIdx[lk]
		if !ok {
			li = len(groups[ci].Looks)
			lookIdx[lk] = li
			groups[ci].Looks = append(groups[ci].Looks, core.MoodLookGroup{Name: k.Look, Keywords: []string{}})
		}
		kk := lk + "\x00" + k.Keyword
		if _, dup := seen[kk]; dup {
			continue
		}
		seen[kk] = struct{}{}
		groups[ci].Looks[li].Keywords = append(groups[ci].Looks[li].Keywords, k.Keyword)
	}
	return groups
}

// Snapshot returns the latest persisted report for dim and p.
func (s *TrendService) Snapshot(ctx context.Context, dim core.Dimension, p core.Period) (core.Snapshot, error) {
	if s.snapshots == nil {
		return core.Snapshot{}, ErrNoSnapshotStore
	}
	return s.snapshots.LatestSnapshot(ctx, dim, p)
}

func (s *TrendService) Ping(ctx context.Context) error {
	return s.source.Ping(ctx)
}

// Invalidate drops every cached record set and report.
func (s *TrendService) Invalidate(ctx context.Context) error {
	s.records.Clear()
	s.meta.Clear()
	if err := s.reports.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate report cache: %w", err)
	}
	slog.InfoContext(ctx, "Trend caches invalidated")
	return nil
}
