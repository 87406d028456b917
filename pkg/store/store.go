// Package store defines the persistence contract for tracked records and
// run history. Implementations live in pkg/store/memory (in-memory) and
// internal/store/sqldb (SQLite / PostgreSQL).
package store

import (
	"context"
	"time"

	"github.com/dirbridge/dirbridge/pkg/record"
)

// Store is the record store consumed by the engine. Each record write is
// independently committed; there are no cross-record transactions. Lookups
// that match nothing return an error satisfying errors.IsNotFound.
type Store interface {
	// GetByInternalID returns the record with the given internal id.
	GetByInternalID(ctx context.Context, internalID string) (record.Record, error)

	// GetBySourceID returns the record with the given source immutable id.
	GetBySourceID(ctx context.Context, sourceImmutableID string) (record.Record, error)

	// GetByTargetID returns the record bound to the given target
	// immutable id.
	GetByTargetID(ctx context.Context, targetImmutableID string) (record.Record, error)

	// ListPending returns every record in the given reconcile state whose
	// outcome is still pending.
	ListPending(ctx context.Context, state record.ReconcileState) ([]record.Record, error)

	// List returns every tracked record. Used by the deletion-detection
	// pass of the import stage.
	List(ctx context.Context) ([]record.Record, error)

	// Upsert writes the record, inserting or replacing by internal id.
	Upsert(ctx context.Context, rec record.Record) error

	// Delete permanently removes the record by internal id.
	Delete(ctx context.Context, internalID string) error

	// AppendRun persists a completed run summary. Runs are immutable once
	// appended.
	AppendRun(ctx context.Context, run record.Run) error

	// ListRuns returns up to limit runs, most recent first. A limit of 0
	// returns all runs.
	ListRuns(ctx context.Context, limit int) ([]record.Run, error)

	// PruneRuns removes runs that ended before the horizon and returns
	// how many were removed.
	PruneRuns(ctx context.Context, horizon time.Time) (int, error)

	// Close releases the underlying storage.
	Close() error
}
