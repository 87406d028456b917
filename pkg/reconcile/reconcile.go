// Package reconcile implements the reconciliation engine: it captures a
// snapshot of the source directory, diffs it against previously known
// state, drives the resulting create/update/delete operations against the
// target directory, and recovers records stuck on create conflicts.
package reconcile

import (
	"context"

	"github.com/google/uuid"

	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/logging"
	"github.com/dirbridge/dirbridge/pkg/record"
	"github.com/dirbridge/dirbridge/pkg/source"
	"github.com/dirbridge/dirbridge/pkg/store"
	"github.com/dirbridge/dirbridge/pkg/target"
)

// ReaderFactory opens a fresh source directory connection. Each run
// acquires its own reader and closes it before returning.
type ReaderFactory func(ctx context.Context) (source.Reader, error)

// Engine is the reconciliation engine consumed by the scheduler and the
// operator-facing commands. Runs must not overlap; callers guarantee
// at-most-one concurrent run.
type Engine interface {
	// Import pulls the current source snapshot and classifies every
	// record as new, changed, deleted or unchanged.
	Import(ctx context.Context) (*ImportResult, error)

	// Apply executes all pending operations against the target directory
	// and persists the run summary.
	Apply(ctx context.Context) (*Result, error)

	// Sync runs Import followed by Apply as one reconciliation run.
	Sync(ctx context.Context) (*Result, error)

	// ListConflicts returns target principals colliding with a record
	// stuck at a failed create.
	ListConflicts(ctx context.Context, internalID string) ([]target.Principal, error)

	// Resolve merges or recreates a failed record against the candidate
	// target principal.
	Resolve(ctx context.Context, internalID, candidateTargetID string, strategy record.Strategy) (record.Record, error)

	// RetryFailedCreate re-attempts the create of a failed record.
	RetryFailedCreate(ctx context.Context, internalID string) (record.Record, error)
}

// engine is the default implementation of Engine.
type engine struct {
	store    store.Store
	client   target.Client
	readers  ReaderFactory
	opts     *options
	importer *importer
	applier  *applier
	resolver *resolver
}

// New creates an Engine over the given record store, target client and
// source reader factory. All collaborators are injected; nothing is
// global.
func New(st store.Store, client target.Client, readers ReaderFactory, opts ...Option) (Engine, error) {
	if st == nil {
		return nil, &errors.ValidationError{Field: "store", Message: "cannot be nil"}
	}
	if client == nil {
		return nil, &errors.ValidationError{Field: "client", Message: "cannot be nil"}
	}
	if readers == nil {
		return nil, &errors.ValidationError{Field: "readers", Message: "cannot be nil"}
	}

	options, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}

	e := &engine{
		store:   st,
		client:  client,
		readers: readers,
		opts:    options,
	}
	e.importer = &importer{store: st, patterns: options.patterns, fold: options.foldASCII}
	e.applier = &applier{store: st, client: client, opts: options}
	e.resolver = &resolver{store: st, client: client, applier: e.applier}
	return e, nil
}

// Import acquires a source reader, pulls the snapshot and runs the import
// stage. A connection failure aborts the stage; record writes already
// committed stand.
func (e *engine) Import(ctx context.Context) (*ImportResult, error) {
	ctx = logging.WithStage(ctx, "import")

	reader, err := e.readers(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			logging.FromContext(ctx).Warn().Err(closeErr).Msg("Source reader close failed")
		}
	}()

	entries, err := reader.Search(ctx, e.opts.searchBase, e.opts.searchFilter, e.opts.attributes)
	if err != nil {
		return nil, err
	}

	return e.importer.run(ctx, entries)
}

// Apply runs the apply stage under a fresh run id and appends the run
// summary to the run log.
func (e *engine) Apply(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	ctx = logging.WithStage(logging.WithRun(ctx, runID), "apply")

	result, err := e.applier.run(ctx, runID)
	if err != nil {
		return nil, err
	}

	if err := e.store.AppendRun(ctx, result.Run()); err != nil {
		return nil, errors.WrapStore("append", "run", runID, err)
	}
	return result, nil
}

// Sync performs one full reconciliation run: import, then apply.
func (e *engine) Sync(ctx context.Context) (*Result, error) {
	importResult, err := e.Import(ctx)
	if err != nil {
		return nil, err
	}

	result, err := e.Apply(ctx)
	if err != nil {
		return nil, err
	}
	result.Import = importResult
	return result, nil
}

// ListConflicts returns target principals colliding with the failed record.
func (e *engine) ListConflicts(ctx context.Context, internalID string) ([]target.Principal, error) {
	return e.resolver.listConflicts(logging.WithRecord(ctx, internalID), internalID)
}

// Resolve merges or recreates a failed record against the candidate.
func (e *engine) Resolve(ctx context.Context, internalID, candidateTargetID string, strategy record.Strategy) (record.Record, error) {
	return e.resolver.resolve(logging.WithRecord(ctx, internalID), internalID, candidateTargetID, strategy)
}

// RetryFailedCreate re-attempts the create of a failed record.
func (e *engine) RetryFailedCreate(ctx context.Context, internalID string) (record.Record, error) {
	return e.resolver.retryFailedCreate(logging.WithRecord(ctx, internalID), internalID)
}
