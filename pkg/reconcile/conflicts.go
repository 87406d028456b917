package reconcile

import (
	"context"
	"time"

	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/logging"
	"github.com/dirbridge/dirbridge/pkg/record"
	"github.com/dirbridge/dirbridge/pkg/store"
	"github.com/dirbridge/dirbridge/pkg/target"
)

// resolver recovers records stuck at a failed create by inspecting the
// target directory for colliding principals and merging or recreating.
// It is an operator-triggered entry point, independent of scheduled runs.
type resolver struct {
	store   store.Store
	client  target.Client
	applier *applier
}

// listConflicts returns target principals, active or soft-deleted, whose
// natural key collides with the failed record.
func (r *resolver) listConflicts(ctx context.Context, internalID string) ([]target.Principal, error) {
	rec, err := r.failedRecord(ctx, internalID)
	if err != nil {
		return nil, err
	}

	filter := target.Filter{
		SourceImmutableID: rec.SourceImmutableID,
		PrincipalName:     rec.PrincipalName,
	}

	// Trash first: a soft-deleted collision is the common cause of a
	// rejected create.
	deleted, err := r.client.QueryDeletedPrincipals(ctx, filter)
	if err != nil {
		return nil, err
	}
	active, err := r.client.QueryPrincipals(ctx, filter)
	if err != nil {
		return nil, err
	}
	return append(deleted, active...), nil
}

// resolve merges the failed record with the candidate target principal or
// recreates it, depending on the strategy.
func (r *resolver) resolve(ctx context.Context, internalID, candidateTargetID string, strategy record.Strategy) (record.Record, error) {
	rec, err := r.failedRecord(ctx, internalID)
	if err != nil {
		return record.Record{}, err
	}

	// Two local records must never point at the same target principal.
	if bound, err := r.store.GetByTargetID(ctx, candidateTargetID); err == nil {
		return record.Record{}, errors.NewConflictAlreadyAssignedError(candidateTargetID, bound.InternalID)
	} else if !errors.IsNotFound(err) {
		return record.Record{}, errors.WrapStore("get", "record", candidateTargetID, err)
	}

	switch strategy {
	case record.StrategyMerge:
		return r.merge(ctx, rec, candidateTargetID)
	case record.StrategyRecreate:
		return r.recreate(ctx, rec, candidateTargetID)
	}
	return record.Record{}, &errors.InvalidStrategyError{Strategy: string(strategy)}
}

// retryFailedCreate re-runs the create path for a record stuck at a
// failed create, without touching any colliding principal.
func (r *resolver) retryFailedCreate(ctx context.Context, internalID string) (record.Record, error) {
	rec, err := r.failedRecord(ctx, internalID)
	if err != nil {
		return record.Record{}, err
	}
	if rec.ReconcileState != record.ReconcileNew {
		return record.Record{}, &errors.RecordNotNewError{ID: internalID}
	}

	if err := r.applier.create(ctx, "", rec); err != nil {
		return record.Record{}, err
	}
	return r.store.GetByInternalID(ctx, internalID)
}

// merge adopts the candidate as the record's target identity: restore it
// from the trash if needed, then patch it with the record's attributes.
func (r *resolver) merge(ctx context.Context, rec record.Record, candidateTargetID string) (record.Record, error) {
	logger := logging.FromContext(ctx)

	rec.TargetImmutableID = candidateTargetID

	// A restore failure is expected when the candidate is active; the
	// subsequent patch is the real correctness check.
	if err := r.client.RestoreDeleted(ctx, candidateTargetID); err != nil {
		logger.Debug().Err(err).Str("target_id", candidateTargetID).Msg("Restore skipped, candidate not in trash")
	}

	if err := r.client.PatchPrincipal(ctx, candidateTargetID, attributesOf(rec)); err != nil {
		return record.Record{}, err
	}

	rec.ReconcileState = record.ReconcileUnchanged
	rec.OutcomeState = record.OutcomeOk
	rec.LastChangedAt = time.Now()
	if err := r.store.Upsert(ctx, rec); err != nil {
		return record.Record{}, errors.WrapStore("upsert", "record", rec.InternalID, err)
	}
	return rec, nil
}

// recreate removes the colliding principal from the target directory,
// trash included, then re-runs the create path for the record.
func (r *resolver) recreate(ctx context.Context, rec record.Record, candidateTargetID string) (record.Record, error) {
	logger := logging.FromContext(ctx)

	// Expected to fail when the candidate is already soft-deleted.
	if err := r.client.DeletePrincipal(ctx, candidateTargetID); err != nil {
		logger.Debug().Err(err).Str("target_id", candidateTargetID).Msg("Delete skipped, candidate already in trash")
	}
	// Best effort: the trash entry may not be indexed yet.
	if err := r.client.PurgeDeleted(ctx, candidateTargetID); err != nil {
		logger.Warn().Err(err).Str("target_id", candidateTargetID).Msg("Purge of colliding principal failed")
	}

	if err := r.applier.create(ctx, "", rec); err != nil {
		return record.Record{}, err
	}
	return r.store.GetByInternalID(ctx, rec.InternalID)
}

// failedRecord loads a record and checks the preconditions shared by all
// operator-triggered recovery operations.
func (r *resolver) failedRecord(ctx context.Context, internalID string) (record.Record, error) {
	rec, err := r.store.GetByInternalID(ctx, internalID)
	if err != nil {
		if errors.IsNotFound(err) {
			return record.Record{}, &errors.RecordNotFoundError{ID: internalID}
		}
		return record.Record{}, errors.WrapStore("get", "record", internalID, err)
	}
	if rec.OutcomeState != record.OutcomeFailed {
		return record.Record{}, &errors.RecordNotFailedError{ID: internalID}
	}
	return rec, nil
}
