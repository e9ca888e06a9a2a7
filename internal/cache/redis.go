package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"trendai/internal/core"
)

const (
	keyNamespace  = "trendai"
	reportPrefix  = "report"
	generationKey = "generation"
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Incr(context.Context, string) *redis.IntCmd
}

// ReportCache shares computed trend reports between API replicas. Keys carry
// a generation number so Invalidate can drop everything with one INCR.
type ReportCache struct {
	store cmdable
	raw   *redis.Client
	ttl   time.Duration
}

// NewReportCache connects to the Redis instance at url and verifies it responds.
func NewReportCache(ctx context.Context, url string, ttl time.Duration) (*ReportCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &ReportCache{store: raw, raw: raw, ttl: ttl}, nil
}

// GetReport returns the cached report for key. A miss is not an error.
func (c *ReportCache) GetReport(ctx context.Context, key string) (core.TrendReport, bool, error) {
	var report core.TrendReport
	if c == nil || c.store == nil {
		return report, false, nil
	}
	full, err := c.reportKey(ctx, key)
	if err != nil {
		return report, false, err
	}
	raw, err := c.store.Get(ctx, full).Result()
	if errors.Is(err, redis.Nil) {
		return report, false, nil
	}
	if err != nil {
		return report, false, fmt.Errorf("get report: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return report, false, fmt.Errorf("decode report: %w", err)
	}
	return report, true, nil
}

func (c *ReportCache) SetReport(ctx context.Context, key string, report core.TrendReport) error {
	if c == nil || c.store == nil {
		return nil
	}
	full, err := c.reportKey(ctx, key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return c.store.Set(ctx, full, data, c.ttl).Err()
}

// Invalidate makes every previously cached report unreachable.
func (c *ReportCache) Invalidate(ctx context.Context) error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Incr(ctx, buildKey(generationKey)).Err()
}

func (c *ReportCache) Ping(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Ping(ctx).Err()
}

func (c *ReportCache) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// Generation returns the shared invalidation counter, "0" before the first
// Invalidate. Processes mix it into their local cache keys so an import in
// another process also retires their in-memory entries.
func (c *ReportCache) Generation(ctx context.Context) (string, error) {
	if c == nil || c.store == nil {
		return "", nil
	}
	gen, err := c.store.Get(ctx, buildKey(generationKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("get cache generation: %w", err)
	}
	return gen, nil
}

func (c *ReportCache) reportKey(ctx context.Context, key string) (string, error) {
	gen, err := c.Generation(ctx)
	if err != nil {
		return "", err
	}
	return buildKey(reportPrefix, gen, key), nil
}

func buildKey(parts ...string) string {
	clean := []string{keyNamespace}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			clean = append(clean, part)
		}
	}
	return strings.Join(clean, ":")
}
