// Package history persists batch export outcomes so past runs can be
// inspected and repeated.
package history

import (
	"context"

	"github.com/shuakami/napcat-qce-go/pkg/batch"
)

// Store defines the interface for export history storage operations.
// Every Store is also a batch.Recorder.
type Store interface {
	// Record persists one finished batch item
	Record(ctx context.Context, rec batch.Record) error

	// ListRuns returns the ids of known runs, newest first
	ListRuns(ctx context.Context) ([]string, error)

	// ListByRun returns all records of one run in insertion order
	ListByRun(ctx context.Context, runID string) ([]batch.Record, error)

	// Recent returns the newest records across all runs, up to limit
	Recent(ctx context.Context, limit int) ([]batch.Record, error)

	// Close closes the store (for database connections)
	Close() error
}
