package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/logging"
	"github.com/dirbridge/dirbridge/pkg/pattern"
	"github.com/dirbridge/dirbridge/pkg/record"
	"github.com/dirbridge/dirbridge/pkg/source"
	"github.com/dirbridge/dirbridge/pkg/store"
)

// importer classifies a source snapshot against the record store.
type importer struct {
	store    store.Store
	patterns Patterns
	fold     bool
}

// run performs the import stage: render every entry, diff against the
// stored records, persist the classification. Each record write is
// independently committed; an entry with a missing pattern attribute is
// skipped and logged, a store failure on one record does not roll back
// the others.
func (i *importer) run(ctx context.Context, entries []source.Entry) (*ImportResult, error) {
	logger := logging.FromContext(ctx)
	result := &ImportResult{}

	candidates := make(map[string]record.Record, len(entries))
	order := make([]string, 0, len(entries))

	for _, entry := range entries {
		cand, err := i.render(entry)
		if err != nil {
			// One bad entry never fails the run.
			logger.Warn().Err(err).Str("dn", entry.DN).Msg("Skipping source entry")
			result.Skipped++
			continue
		}
		if _, dup := candidates[cand.SourceImmutableID]; dup {
			// Last entry wins. Source filters that duplicate a principal
			// are a configuration problem worth surfacing.
			logger.Warn().
				Str("source_id", cand.SourceImmutableID).
				Str("dn", entry.DN).
				Msg("Duplicate source immutable id in snapshot, keeping the last entry")
		} else {
			order = append(order, cand.SourceImmutableID)
		}
		candidates[cand.SourceImmutableID] = cand
	}

	logger.Info().Int("entries", len(candidates)).Msg("Running import for source snapshot")

	for _, sourceID := range order {
		cand := candidates[sourceID]
		stored, err := i.store.GetBySourceID(ctx, sourceID)
		switch {
		case errors.IsNotFound(err):
			if err := i.persistNew(ctx, cand); err != nil {
				logger.Error().Err(err).Str("source_id", sourceID).Msg("Failed to persist new record")
				continue
			}
			result.New++
		case err != nil:
			return nil, errors.WrapStore("get", "record", sourceID, err)
		case stored.FingerprintEqual(cand):
			if stored.ReconcileState == record.ReconcileChanged && stored.OutcomeState == record.OutcomeFailed {
				// A patch the target rejected is re-attempted on the next
				// apply; the equal fingerprint alone must not strand it.
				stored.OutcomeState = record.OutcomePending
				stored.LastChangedAt = time.Now()
				if err := i.store.Upsert(ctx, stored); err != nil {
					logger.Error().Err(err).Str("source_id", sourceID).Msg("Failed to re-mark failed update")
					continue
				}
				result.Changed++
				continue
			}
			result.Unchanged++
		default:
			if err := i.persistChanged(ctx, cand, stored); err != nil {
				logger.Error().Err(err).Str("source_id", sourceID).Msg("Failed to persist changed record")
				continue
			}
			result.Changed++
		}
	}

	deleted, err := i.markDeleted(ctx, candidates)
	if err != nil {
		return nil, err
	}
	result.Deleted = deleted

	logger.Info().
		Int("new", result.New).
		Int("changed", result.Changed).
		Int("deleted", result.Deleted).
		Int("unchanged", result.Unchanged).
		Msg("Import finished")

	return result, nil
}

// render builds a candidate record from one source entry using the
// configured patterns.
func (i *importer) render(entry source.Entry) (record.Record, error) {
	var rec record.Record
	var err error

	if rec.SourceImmutableID, err = pattern.Render(i.patterns.SourceImmutableID, entry); err != nil {
		return record.Record{}, err
	}
	if rec.GivenName, err = pattern.Render(i.patterns.GivenName, entry); err != nil {
		return record.Record{}, err
	}
	if rec.Surname, err = pattern.Render(i.patterns.Surname, entry); err != nil {
		return record.Record{}, err
	}
	if rec.DisplayName, err = pattern.Render(i.patterns.DisplayName, entry); err != nil {
		return record.Record{}, err
	}
	if rec.MailNickname, err = pattern.Render(i.patterns.MailNickname, entry); err != nil {
		return record.Record{}, err
	}
	if rec.PrincipalName, err = pattern.Render(i.patterns.PrincipalName, entry); err != nil {
		return record.Record{}, err
	}

	if i.fold {
		rec.MailNickname = pattern.Fold(rec.MailNickname)
		rec.PrincipalName = pattern.Fold(rec.PrincipalName)
	}

	rec.Fingerprint = rec.ComputeFingerprint()
	return rec, nil
}

// persistNew stores a first-time discovery.
func (i *importer) persistNew(ctx context.Context, cand record.Record) error {
	cand.InternalID = uuid.NewString()
	cand.ReconcileState = record.ReconcileNew
	cand.OutcomeState = record.OutcomePending
	cand.LastChangedAt = time.Now()
	return i.store.Upsert(ctx, cand)
}

// persistChanged carries the stored identity forward onto the re-rendered
// candidate and marks it pending.
func (i *importer) persistChanged(ctx context.Context, cand, stored record.Record) error {
	cand.InternalID = stored.InternalID
	cand.TargetImmutableID = stored.TargetImmutableID
	cand.LastRunID = stored.LastRunID
	cand.OutcomeState = record.OutcomePending
	cand.LastChangedAt = time.Now()

	// A record that never made it into the target has nothing to patch;
	// it stays a pending create with its refreshed attributes.
	if stored.TargetImmutableID == "" {
		cand.ReconcileState = record.ReconcileNew
	} else {
		cand.ReconcileState = record.ReconcileChanged
	}
	return i.store.Upsert(ctx, cand)
}

// markDeleted flags every stored record absent from the snapshot. The
// source is the single source of truth for membership.
func (i *importer) markDeleted(ctx context.Context, candidates map[string]record.Record) (int, error) {
	stored, err := i.store.List(ctx)
	if err != nil {
		return 0, errors.WrapStore("scan", "record", "", err)
	}

	logger := logging.FromContext(ctx)
	deleted := 0
	for _, rec := range stored {
		if _, present := candidates[rec.SourceImmutableID]; present {
			continue
		}
		if rec.ReconcileState == record.ReconcileDeleted && rec.OutcomeState == record.OutcomePending {
			// Already flagged by an earlier import; re-writing it would
			// break import idempotence.
			continue
		}
		rec.ReconcileState = record.ReconcileDeleted
		rec.OutcomeState = record.OutcomePending
		rec.LastChangedAt = time.Now()
		if err := i.store.Upsert(ctx, rec); err != nil {
			logger.Error().Err(err).Str("record_id", rec.InternalID).Msg("Failed to mark record deleted")
			continue
		}
		deleted++
	}
	return deleted, nil
}
