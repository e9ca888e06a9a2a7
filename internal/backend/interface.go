package backend

import (
	"context"

	"trendai/internal/sources"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the ports a backend implements. Writers and the
// snapshot store are nil when the backend is read-only.
type BackendResult struct {
	Source    sources.Source
	Records   sources.RecordWriter
	Keywords  sources.KeywordWriter
	Snapshots sources.SnapshotStore
	Cleanup   CleanupFunc
}

// Close runs Cleanup if there is one.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
