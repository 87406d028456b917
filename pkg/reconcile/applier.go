package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/logging"
	"github.com/dirbridge/dirbridge/pkg/record"
	"github.com/dirbridge/dirbridge/pkg/store"
	"github.com/dirbridge/dirbridge/pkg/target"
)

// passwordPolicyNoExpiry disables password expiration on created
// principals; accounts sign in through federated SSO and the generated
// credential is never used interactively.
const passwordPolicyNoExpiry = "DisablePasswordExpiration"

// applier executes pending create, update and delete operations against
// the target directory.
type applier struct {
	store  store.Store
	client target.Client
	opts   *options
}

// counters tallies per-record outcomes across the worker pool.
type counters struct {
	created atomic.Int64
	changed atomic.Int64
	deleted atomic.Int64
	failed  atomic.Int64
}

// run processes the three pending record sets in order: creates, then
// updates, then deletes. Records within a phase are independent; one
// record's failure never blocks another's.
func (a *applier) run(ctx context.Context, runID string) (*Result, error) {
	logger := logging.FromContext(ctx)
	logger.Info().Msg("Beginning apply pass against target directory")

	began := time.Now()
	var tally counters

	if err := a.phase(ctx, record.ReconcileNew, func(ctx context.Context, rec record.Record) {
		if err := a.create(ctx, runID, rec); err != nil {
			logging.FromContext(ctx).Warn().Err(err).
				Str("record_id", rec.InternalID).
				Str("source_id", rec.SourceImmutableID).
				Msg("Create failed, record held for conflict resolution")
			tally.failed.Add(1)
			return
		}
		tally.created.Add(1)
	}); err != nil {
		return nil, err
	}

	if err := a.phase(ctx, record.ReconcileChanged, func(ctx context.Context, rec record.Record) {
		if err := a.update(ctx, runID, rec); err != nil {
			logging.FromContext(ctx).Warn().Err(err).
				Str("record_id", rec.InternalID).
				Msg("Update failed")
			tally.failed.Add(1)
			return
		}
		tally.changed.Add(1)
	}); err != nil {
		return nil, err
	}

	if err := a.phase(ctx, record.ReconcileDeleted, func(ctx context.Context, rec record.Record) {
		if err := a.delete(ctx, rec); err != nil {
			logging.FromContext(ctx).Warn().Err(err).
				Str("record_id", rec.InternalID).
				Msg("Delete failed")
			tally.failed.Add(1)
			return
		}
		tally.deleted.Add(1)
	}); err != nil {
		return nil, err
	}

	result := &Result{
		RunID:   runID,
		BeganAt: began,
		EndedAt: time.Now(),
		Created: tally.created.Load(),
		Changed: tally.changed.Load(),
		Deleted: tally.deleted.Load(),
		Failed:  tally.failed.Load(),
	}

	logger.Info().
		Int64("created", result.Created).
		Int64("changed", result.Changed).
		Int64("deleted", result.Deleted).
		Int64("failed", result.Failed).
		Msg("Apply pass finished")

	return result, nil
}

// phase feeds the pending records of one reconcile state through a
// bounded worker pool. The store returns each record at most once, so no
// two in-flight operations ever touch the same internal id.
func (a *applier) phase(ctx context.Context, state record.ReconcileState, fn func(context.Context, record.Record)) error {
	pending, err := a.store.ListPending(ctx, state)
	if err != nil {
		return errors.WrapStore("scan", "record", string(state), err)
	}
	if len(pending) == 0 {
		return nil
	}

	workers := a.opts.workers
	if workers > len(pending) {
		workers = len(pending)
	}

	jobs := make(chan record.Record)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for rec := range jobs {
				fn(ctx, rec)
			}
		}()
	}
	for _, rec := range pending {
		jobs <- rec
	}
	close(jobs)
	wg.Wait()
	return nil
}

// create builds and submits a target create request for a new record.
// On rejection the record keeps its new state and is marked failed so it
// surfaces for conflict resolution; no retry happens within the run.
func (a *applier) create(ctx context.Context, runID string, rec record.Record) error {
	logger := logging.FromContext(ctx)
	logger.Debug().Str("principal", rec.PrincipalName).Msg("Creating principal in target directory")

	if runID != "" {
		rec.LastRunID = runID
	}

	req := target.CreateRequest{
		Attributes:          attributesOf(rec),
		AccountEnabled:      true,
		Password:            newPassword(a.opts.passwordLength),
		ForcePasswordChange: false,
		UsageLocation:       a.opts.usageLocation,
		PasswordPolicies:    passwordPolicyNoExpiry,
	}

	targetID, err := a.client.CreatePrincipal(ctx, req)
	if err != nil {
		rec.OutcomeState = record.OutcomeFailed
		rec.LastChangedAt = time.Now()
		if storeErr := a.store.Upsert(ctx, rec); storeErr != nil {
			logger.Error().Err(storeErr).Str("record_id", rec.InternalID).Msg("Failed to mark record failed")
		}
		return err
	}

	if len(a.opts.licenseSKUs) > 0 {
		if err := a.client.AssignLicense(ctx, targetID, a.opts.licenseSKUs); err != nil {
			// The principal exists; a missing license is recoverable by
			// the operator and must not fail the record.
			logger.Warn().Err(err).Str("target_id", targetID).Msg("License assignment failed")
		}
	}

	rec.TargetImmutableID = targetID
	rec.ReconcileState = record.ReconcileUnchanged
	rec.OutcomeState = record.OutcomeOk
	rec.LastChangedAt = time.Now()
	return a.store.Upsert(ctx, rec)
}

// update patches the full attribute set of a changed record.
func (a *applier) update(ctx context.Context, runID string, rec record.Record) error {
	rec.LastRunID = runID

	if err := a.client.PatchPrincipal(ctx, rec.TargetImmutableID, attributesOf(rec)); err != nil {
		rec.OutcomeState = record.OutcomeFailed
		rec.LastChangedAt = time.Now()
		if storeErr := a.store.Upsert(ctx, rec); storeErr != nil {
			logging.FromContext(ctx).Error().Err(storeErr).Str("record_id", rec.InternalID).Msg("Failed to mark record failed")
		}
		return err
	}

	rec.ReconcileState = record.ReconcileUnchanged
	rec.OutcomeState = record.OutcomeOk
	rec.LastChangedAt = time.Now()
	return a.store.Upsert(ctx, rec)
}

// delete removes the principal from the target directory and erases the
// local record. Deletion is the one lifecycle event ending in erasure
// rather than a terminal state.
func (a *applier) delete(ctx context.Context, rec record.Record) error {
	logger := logging.FromContext(ctx)

	// A record that never reached the target has nothing to delete
	// remotely; erase it locally.
	if rec.TargetImmutableID != "" {
		if err := a.client.DeletePrincipal(ctx, rec.TargetImmutableID); err != nil {
			rec.OutcomeState = record.OutcomeFailed
			rec.LastChangedAt = time.Now()
			if storeErr := a.store.Upsert(ctx, rec); storeErr != nil {
				logger.Error().Err(storeErr).Str("record_id", rec.InternalID).Msg("Failed to mark record failed")
			}
			return err
		}

		if a.opts.deleteBehavior == record.DeleteHard {
			// Best effort: the trash entry may not be indexed yet.
			if err := a.client.PurgeDeleted(ctx, rec.TargetImmutableID); err != nil {
				logger.Warn().Err(err).Str("target_id", rec.TargetImmutableID).Msg("Purge of soft-deleted principal failed")
			}
		}
	}

	return a.store.Delete(ctx, rec.InternalID)
}

// attributesOf converts a record's mutable attribute set to the target
// wire shape.
func attributesOf(rec record.Record) target.Attributes {
	return target.Attributes{
		SourceImmutableID: rec.SourceImmutableID,
		GivenName:         rec.GivenName,
		Surname:           rec.Surname,
		DisplayName:       rec.DisplayName,
		MailNickname:      rec.MailNickname,
		PrincipalName:     rec.PrincipalName,
	}
}
