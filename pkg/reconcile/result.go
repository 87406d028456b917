package reconcile

import (
	"fmt"
	"time"

	"github.com/dirbridge/dirbridge/pkg/record"
)

// ImportResult reports how the import stage classified the snapshot.
type ImportResult struct {
	New       int // records discovered for the first time
	Changed   int // records whose fingerprint differs from the stored one
	Deleted   int // stored records absent from the snapshot
	Unchanged int // records identical to their stored state
	Skipped   int // entries skipped because a pattern attribute was missing
}

// HasChanges reports whether the import left any work pending for the
// apply stage.
func (ir *ImportResult) HasChanges() bool {
	return ir.New > 0 || ir.Changed > 0 || ir.Deleted > 0
}

// Summary returns a human-readable summary of the import result.
func (ir *ImportResult) Summary() string {
	s := fmt.Sprintf("%d new, %d changed, %d deleted, %d unchanged", ir.New, ir.Changed, ir.Deleted, ir.Unchanged)
	if ir.Skipped > 0 {
		s += fmt.Sprintf(" (%d skipped)", ir.Skipped)
	}
	return s
}

// Result is the outcome of one apply pass, persisted as a record.Run.
type Result struct {
	RunID   string
	BeganAt time.Time
	EndedAt time.Time

	Created int64
	Changed int64
	Deleted int64
	Failed  int64

	// Import carries the preceding import stage's counts when the run
	// was a full sync; nil for a standalone apply.
	Import *ImportResult
}

// HasChanges reports whether the apply pass touched the target directory.
func (r *Result) HasChanges() bool {
	return r.Created > 0 || r.Changed > 0 || r.Deleted > 0
}

// HasFailures reports whether any record failed to apply.
func (r *Result) HasFailures() bool {
	return r.Failed > 0
}

// Summary returns a human-readable summary of the run.
func (r *Result) Summary() string {
	return fmt.Sprintf("run %s: %d created, %d changed, %d deleted, %d failed",
		r.RunID, r.Created, r.Changed, r.Deleted, r.Failed)
}

// Run converts the result to its immutable audit record.
func (r *Result) Run() record.Run {
	return record.Run{
		ID:      r.RunID,
		BeganAt: r.BeganAt,
		EndedAt: r.EndedAt,
		Created: r.Created,
		Changed: r.Changed,
		Deleted: r.Deleted,
		Failed:  r.Failed,
	}
}
