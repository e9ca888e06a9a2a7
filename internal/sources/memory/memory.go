// Package memory keeps records, keywords and snapshots in process memory.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"trendai/internal/core"
	"trendai/internal/sources"
)

const (
	RecordsFile  = "records.csv"
	KeywordsFile = "mood_keywords.csv"
)

type Store struct {
	mu        sync.RWMutex
	records   []core.Record
	keywords  []core.MoodKeyword
	snapshots map[string]core.Snapshot
	nextID    int64
}

var (
	_ sources.Source        = (*Store)(nil)
	_ sources.RecordWriter  = (*Store)(nil)
	_ sources.KeywordWriter = (*Store)(nil)
	_ sources.SnapshotStore = (*Store)(nil)
)

func New(records []core.Record, keywords []core.MoodKeyword) *Store {
	s := &Store{snapshots: map[string]core.Snapshot{}}
	_, _ = s.AppendRecords(context.Background(), records)
	_, _ = s.AppendKeywords(context.Background(), keywords)
	return s
}

// NewFromDir seeds the store from records.csv and mood_keywords.csv under dir.
// Missing files leave the store empty; unreadable ones are errors.
func NewFromDir(dir string) (*Store, error) {
	var records []core.Record
	var keywords []core.MoodKeyword

	rows, err := readCSVFile(filepath.Join(dir, RecordsFile))
	if err != nil {
		return nil, err
	}
	if rows != nil {
		var skipped int
		records, skipped, err = sources.DecodeRecords(rows)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", RecordsFile, err)
		}
		if skipped > 0 {
			slog.Warn("Skipped records without a period", "file", RecordsFile, "skipped", skipped)
		}
	}

	rows, err = readCSVFile(filepath.Join(dir, KeywordsFile))
	if err != nil {
		return nil, err
	}
	if rows != nil {
		keywords, err = sources.DecodeKeywords(rows)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", KeywordsFile, err)
		}
	}

	slog.Info("Memory store seeded", "dir", dir, "records", len(records), "keywords", len(keywords))
	return New(records, keywords), nil
}

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return sources.ReadCSV(f)
}

func (s *Store) ListRecords(_ context.Context, q core.RecordQuery) ([]core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sources.Filter(s.records, q), nil
}

func (s *Store) Meta(_ context.Context) (core.Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sources.BuildMeta(s.records), nil
}

func (s *Store) MoodKeywords(_ context.Context) ([]core.MoodKeyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.MoodKeyword(nil), s.keywords...), nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

// AppendRecords stores copies of records, assigning IDs to those without one.
func (s *Store) AppendRecords(_ context.Context, records []core.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.ID == 0 {
			s.nextID++
			r.ID = s.nextID
		} else if r.ID > s.nextID {
			s.nextID = r.ID
		}
		s.records = append(s.records, r)
	}
	return len(records), nil
}

func (s *Store) AppendKeywords(_ context.Context, keywords []core.MoodKeyword) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = append(s.keywords, keywords...)
	return len(keywords), nil
}

// SaveSnapshot keeps only the latest snapshot per dimension and period.
func (s *Store) SaveSnapshot(_ context.Context, snap core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snapshotKey(snap.Dimension, snap.Period)
	if prev, ok := s.snapshots[key]; ok && prev.CreatedAt.After(snap.CreatedAt) {
		return nil
	}
	s.snapshots[key] = snap
	return nil
}

func (s *Store) LatestSnapshot(_ context.Context, dim core.Dimension, p core.Period) (core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[snapshotKey(dim, p)]
	if !ok {
		return core.Snapshot{}, core.ErrNotFound
	}
	return snap, nil
}

func snapshotKey(dim core.Dimension, p core.Period) string {
	return string(dim) + "@" + p.String()
}
