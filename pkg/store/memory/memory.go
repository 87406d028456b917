// Package memory provides an in-memory record store. It backs tests and
// ad-hoc runs where persistence across restarts is not needed.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/record"
	"github.com/dirbridge/dirbridge/pkg/store"
)

// Store is a thread-safe in-memory implementation of store.Store.
type Store struct {
	mu      sync.RWMutex
	records map[string]record.Record // keyed by internal id
	runs    []record.Run

	// writes counts Upsert and Delete calls, exposed for idempotence
	// assertions in tests.
	writes int
}

// compile-time interface check
var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]record.Record)}
}

// GetByInternalID returns the record with the given internal id.
func (s *Store) GetByInternalID(_ context.Context, internalID string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[internalID]
	if !ok {
		return record.Record{}, &errors.RecordNotFoundError{ID: internalID}
	}
	return rec, nil
}

// GetBySourceID returns the record with the given source immutable id.
func (s *Store) GetBySourceID(_ context.Context, sourceImmutableID string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.SourceImmutableID == sourceImmutableID {
			return rec, nil
		}
	}
	return record.Record{}, &errors.RecordNotFoundError{ID: sourceImmutableID}
}

// GetByTargetID returns the record bound to the given target immutable id.
func (s *Store) GetByTargetID(_ context.Context, targetImmutableID string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.TargetImmutableID != "" && rec.TargetImmutableID == targetImmutableID {
			return rec, nil
		}
	}
	return record.Record{}, &errors.RecordNotFoundError{ID: targetImmutableID}
}

// ListPending returns records in the given reconcile state with a pending outcome.
func (s *Store) ListPending(_ context.Context, state record.ReconcileState) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []record.Record
	for _, rec := range s.records {
		if rec.ReconcileState == state && rec.OutcomeState == record.OutcomePending {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// List returns every tracked record.
func (s *Store) List(_ context.Context) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]record.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

// Upsert writes the record, inserting or replacing by internal id.
func (s *Store) Upsert(_ context.Context, rec record.Record) error {
	if rec.InternalID == "" {
		return &errors.ValidationError{Field: "internalId", Message: "cannot be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.InternalID] = rec
	s.writes++
	return nil
}

// Delete permanently removes the record by internal id.
func (s *Store) Delete(_ context.Context, internalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[internalID]; !ok {
		return &errors.RecordNotFoundError{ID: internalID}
	}
	delete(s.records, internalID)
	s.writes++
	return nil
}

// AppendRun persists a completed run summary.
func (s *Store) AppendRun(_ context.Context, run record.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, run)
	return nil
}

// ListRuns returns up to limit runs, most recent first.
func (s *Store) ListRuns(_ context.Context, limit int) ([]record.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]record.Run, len(s.runs))
	copy(out, s.runs)
	sort.Slice(out, func(i, j int) bool { return out[i].BeganAt.After(out[j].BeganAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PruneRuns removes runs that ended before the horizon.
func (s *Store) PruneRuns(_ context.Context, horizon time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.runs[:0]
	pruned := 0
	for _, run := range s.runs {
		if run.EndedAt.Before(horizon) {
			pruned++
			continue
		}
		kept = append(kept, run)
	}
	s.runs = kept
	return pruned, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Writes returns the number of record writes performed so far.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// sortRecords orders records by internal id for deterministic scans.
func sortRecords(recs []record.Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].InternalID < recs[j].InternalID })
}
