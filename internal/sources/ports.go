// Package sources defines where tagged records come from and how rows are decoded.
package sources

import (
	"context"

	"trendai/internal/core"
)

// Ports for outbound adapters.
type (
	// RecordReader loads tagged records. Implementations may return records
	// outside the query; callers filter again.
	RecordReader interface {
		ListRecords(ctx context.Context, q core.RecordQuery) ([]core.Record, error)
	}

	// TaxonomyReader lists the periods and top-level categories present.
	TaxonomyReader interface {
		Meta(ctx context.Context) (core.Meta, error)
	}

	KeywordReader interface {
		MoodKeywords(ctx context.Context) ([]core.MoodKeyword, error)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}

	// RecordWriter appends records and returns how many were stored.
	RecordWriter interface {
		AppendRecords(ctx context.Context, records []core.Record) (int, error)
	}

	KeywordWriter interface {
		AppendKeywords(ctx context.Context, keywords []core.MoodKeyword) (int, error)
	}

	// SnapshotStore persists computed reports. LatestSnapshot returns
	// core.ErrNotFound when nothing was saved for the dimension and period.
	SnapshotStore interface {
		SaveSnapshot(ctx context.Context, s core.Snapshot) error
		LatestSnapshot(ctx context.Context, dim core.Dimension, p core.Period) (core.Snapshot, error)
	}

	// Source is everything the read side of the API needs.
	Source interface {
		RecordReader
		TaxonomyReader
		KeywordReader
		Pinger
	}
)
