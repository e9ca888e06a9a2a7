// Package cache holds the in-process and shared caches used by the trend service.
package cache

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"trendai/internal/core"
)

// Cache is the in-process cache contract.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Clear()
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically cleans registered caches.
type Manager struct {
	mu       sync.Mutex
	caches   []Cleaner
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	m.caches = append(m.caches, c)
	m.mu.Unlock()
}

// StartCleanup runs CleanExpired on every registered cache each interval until Stop.
func (m *Manager) StartCleanup(interval time.Duration) {
	go m.loop(interval)
}

func (m *Manager) loop(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanOnce(); n > 0 {
				m.logger.Debug("Expired cache entries removed", "count", n)
			}
		case <-m.stop:
			return
		}
	}
}

// CleanOnce cleans all caches immediately and returns the number of removed entries.
func (m *Manager) CleanOnce() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop ends the cleanup loop. It must only be called after StartCleanup.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		<-m.done
	})
}

// Key builds a stable cache key for a dimension and filter set.
func Key(prefix string, dim core.Dimension, c core.Criteria, extra ...string) string {
	maxFollowers := "-"
	if c.FollowerMax != nil {
		maxFollowers = strconv.FormatInt(*c.FollowerMax, 10)
	}
	parts := []string{
		prefix,
		string(dim),
		strconv.Itoa(c.Year),
		strconv.Itoa(c.Month),
		strconv.FormatInt(c.FollowerMin, 10),
		maxFollowers,
		c.CategoryL1,
		c.CategoryL3,
		c.MoodCategory,
		c.MoodLook,
	}
	parts = append(parts, extra...)
	return strings.Join(parts, "|")
}

// QueryKey builds a cache key for a record query.
func QueryKey(q core.RecordQuery) string {
	var b strings.Builder
	b.WriteString("records|")
	b.WriteString(q.CategoryL1)
	b.WriteByte('|')
	b.WriteString(q.CategoryL3)
	for _, p := range q.Periods {
		b.WriteByte('|')
		b.WriteString(p.String())
	}
	return b.String()
}
