package store

import (
	"context"
	"time"
)

// Store persists the history of flow runs.
// All implementations must be safe for concurrent use.
type Store interface {
	RecordRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	// PruneRuns deletes runs completed before the cutoff and returns how
	// many were removed.
	PruneRuns(ctx context.Context, before time.Time) (int64, error)

	Migrate(ctx context.Context) error
	Close() error
}
