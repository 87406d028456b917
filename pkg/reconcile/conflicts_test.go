package reconcile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/reconcile"
	"github.com/dirbridge/dirbridge/pkg/record"
	"github.com/dirbridge/dirbridge/pkg/source"
	"github.com/dirbridge/dirbridge/pkg/store/memory"
	"github.com/dirbridge/dirbridge/pkg/target"
)

// failedCreate drives a record into the failed-create state and returns it.
func failedCreate(t *testing.T, ctx context.Context, engine reconcile.Engine, st *memory.Store, client *fakeClient) record.Record {
	t.Helper()

	client.createErr = rejected("create", "already exists")
	_, err := engine.Sync(ctx)
	require.NoError(t, err)
	client.createErr = nil

	rec, err := st.GetBySourceID(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, record.OutcomeFailed, rec.OutcomeState)
	return rec
}

func TestListConflicts(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	client := newFakeClient()
	reader := &fakeReader{entries: []source.Entry{entry("42", "Alice", "Smith")}}
	engine := newTestEngine(t, st, client, reader)

	rec := failedCreate(t, ctx, engine, st, client)

	client.trash = []target.Principal{{
		ID:            "trash-1",
		PrincipalName: "42@example.com",
		SoftDeleted:   true,
	}}
	client.active = []target.Principal{
		{ID: "active-1", SourceImmutableID: "42"},
		{ID: "active-2", SourceImmutableID: "other"},
	}

	conflicts, err := engine.ListConflicts(ctx, rec.InternalID)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	// Trash candidates come first.
	assert.Equal(t, "trash-1", conflicts[0].ID)
	assert.Equal(t, "active-1", conflicts[1].ID)
}

func TestListConflictsRequiresFailedRecord(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	client := newFakeClient()
	reader := &fakeReader{entries: []source.Entry{entry("42", "Alice", "Smith")}}
	engine := newTestEngine(t, st, client, reader)

	_, err := engine.Sync(ctx)
	require.NoError(t, err)
	rec, err := st.GetBySourceID(ctx, "42")
	require.NoError(t, err)

	_, err = engine.ListConflicts(ctx, rec.InternalID)
	var notFailed *errors.RecordNotFailedError
	assert.ErrorAs(t, err, &notFailed)

	_, err = engine.ListConflicts(ctx, "missing")
	var notFound *errors.RecordNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestResolveMerge(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	client := newFakeClient()
	reader := &fakeReader{entries: []source.Entry{entry("42", "Alice", "Smith")}}
	engine := newTestEngine(t, st, client, reader)

	rec := failedCreate(t, ctx, engine, st, client)

	resolved, err := engine.Resolve(ctx, rec.InternalID, "trash-1", record.StrategyMerge)
	require.NoError(t, err)
	assert.Equal(t, "trash-1", resolved.TargetImmutableID)
	assert.Equal(t, record.ReconcileUnchanged, resolved.ReconcileState)
	assert.Equal(t, record.OutcomeOk, resolved.OutcomeState)

	// The candidate was restored and then patched to the record's
	// attributes.
	assert.Equal(t, []string{"trash-1"}, client.restored)
	attrs, ok := client.patched["trash-1"]
	require.True(t, ok)
	assert.Equal(t, "Alice Smith", attrs.DisplayName)

	stored, err := st.GetByInternalID(ctx, rec.InternalID)
	require.NoError(t, err)
	assert.Equal(t, resolved, stored)
}

func TestResolveMergeSurvivesRestoreOfActiveCandidate(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	client := newFakeClient()
	reader := &fakeReader{entries: []source.Entry{entry("42", "Alice", "Smith")}}
	engine := newTestEngine(t, st, client, reader)

	rec := failedCreate(t, ctx, engine, st, client)

	// An active candidate rejects the restore; the merge still succeeds.
	client.restoreErr = rejected("restore", "not soft-deleted")
	resolved, err := engine.Resolve(ctx, rec.InternalID, "active-1", record.StrategyMerge)
	require.NoError(t, err)
	assert.Equal(t, "active-1", resolved.TargetImmutableID)
	assert.Equal(t, record.OutcomeOk, resolved.OutcomeState)
}

func TestResolveMergePatchFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	client := newFakeClient()
	reader := &fakeReader{entries: []source.Entry{entry("42", "Alice", "Smith")}}
	engine := newTestEngine(t, st, client, reader)

	rec := failedCreate(t, ctx, engine, st, client)

	client.patchErr = rejected("patch", "service unavailable")
	_, err := engine.Resolve(ctx, rec.InternalID, "trash-1", record.StrategyMerge)
	require.Error(t, err)

	// The record is untouched and stays resolvable.
	stored, err := st.GetByInternalID(ctx, rec.InternalID)
	require.NoError(t, err)
	assert.Equal(t, record.OutcomeFailed, stored.OutcomeState)
	assert.Empty(t, stored.TargetImmutableID)
}

func TestResolveRecreate(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	client := newFakeClient()
	reader := &fakeReader{entries: []source.Entry{entry("42", "Alice", "Smith")}}
	engine := newTestEngine(t, st, client, reader)

	rec := failedCreate(t, ctx, engine, st, client)

	resolved, err := engine.Resolve(ctx, rec.InternalID, "stale-1", record.StrategyRecreate)
	require.NoError(t, err)

	// The colliding principal was deleted and purged, then a fresh
	// principal created.
	assert.Equal(t, []string{"stale-1"}, client.deleted)
	assert.Equal(t, []string{"stale-1"}, client.purged)
	assert.Equal(t, "target-1", resolved.TargetImmutableID)
	assert.Equal(t, record.ReconcileUnchanged, resolved.ReconcileState)
	assert.Equal(t, record.OutcomeOk, resolved.OutcomeState)
}

func TestResolveRejectsAssignedCandidate(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	client := newFakeClient()
	reader := &fakeReader{entries: []source.Entry{
		entry("42", "Alice", "Smith"),
		entry("43", "Bob", "Jones"),
	}}
	engine := newTestEngine(t, st, client, reader)

	// Bob's create succeeds; Alice's is rejected by name collision.
	_, err := engine.Import(ctx)
	require.NoError(t, err)
	bob, err := st.GetBySourceID(ctx, "43")
	require.NoError(t, err)
	bob.TargetImmutableID = "target-bob"
	bob.ReconcileState = record.ReconcileUnchanged
	bob.OutcomeState = record.OutcomeOk
	require.NoError(t, st.Upsert(ctx, bob))

	alice, err := st.GetBySourceID(ctx, "42")
	require.NoError(t, err)
	alice.OutcomeState = record.OutcomeFailed
	require.NoError(t, st.Upsert(ctx, alice))

	_, err = engine.Resolve(ctx, alice.InternalID, "target-bob", record.StrategyMerge)
	var assigned *errors.ConflictAlreadyAssignedError
	require.ErrorAs(t, err, &assigned)
	assert.Equal(t, "target-bob", assigned.TargetID)
	assert.Equal(t, bob.InternalID, assigned.BoundTo)
}

func TestResolveRejectsUnknownStrategy(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	client := newFakeClient()
	reader := &fakeReader{entries: []source.Entry{entry("42", "Alice", "Smith")}}
	engine := newTestEngine(t, st, client, reader)

	rec := failedCreate(t, ctx, engine, st, client)

	_, err := engine.Resolve(ctx, rec.InternalID, "trash-1", record.Strategy("overwrite"))
	var invalid *errors.InvalidStrategyError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "overwrite", invalid.Strategy)
}

func TestRetryFailedCreate(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	client := newFakeClient()
	reader := &fakeReader{entries: []source.Entry{entry("42", "Alice", "Smith")}}
	engine := newTestEngine(t, st, client, reader)

	rec := failedCreate(t, ctx, engine, st, client)

	retried, err := engine.RetryFailedCreate(ctx, rec.InternalID)
	require.NoError(t, err)
	assert.Equal(t, "target-1", retried.TargetImmutableID)
	assert.Equal(t, record.ReconcileUnchanged, retried.ReconcileState)
	assert.Equal(t, record.OutcomeOk, retried.OutcomeState)
}

func TestRetryFailedCreateRequiresNewRecord(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	client := newFakeClient()
	reader := &fakeReader{entries: []source.Entry{entry("42", "Alice", "Smith")}}
	engine := newTestEngine(t, st, client, reader)

	_, err := engine.Sync(ctx)
	require.NoError(t, err)

	// A failed update is not retryable through this path.
	client.patchErr = rejected("patch", "service unavailable")
	reader.entries = []source.Entry{entry("42", "Alice B.", "Smith")}
	_, err = engine.Sync(ctx)
	require.NoError(t, err)

	rec, err := st.GetBySourceID(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, record.OutcomeFailed, rec.OutcomeState)

	_, err = engine.RetryFailedCreate(ctx, rec.InternalID)
	var notNew *errors.RecordNotNewError
	assert.ErrorAs(t, err, &notNew)
}
