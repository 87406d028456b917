package reconcile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirbridge/dirbridge/pkg/reconcile"
	"github.com/dirbridge/dirbridge/pkg/record"
	"github.com/dirbridge/dirbridge/pkg/source"
	"github.com/dirbridge/dirbridge/pkg/store/memory"
)

func TestNewValidatesDependencies(t *testing.T) {
	st := memory.New()
	client := newFakeClient()
	readers := readerFor(&fakeReader{})

	_, err := reconcile.New(nil, client, readers, reconcile.WithPatterns(testPatterns()))
	assert.Error(t, err)

	_, err = reconcile.New(st, nil, readers, reconcile.WithPatterns(testPatterns()))
	assert.Error(t, err)

	_, err = reconcile.New(st, client, nil, reconcile.WithPatterns(testPatterns()))
	assert.Error(t, err)

	// Patterns are mandatory; there is no usable default mapping.
	_, err = reconcile.New(st, client, readers)
	assert.Error(t, err)
}

func TestSyncFullLifecycle(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	client := newFakeClient()
	reader := &fakeReader{entries: []source.Entry{
		entry("42", "Alice", "Smith"),
		entry("43", "Bob", "Jones"),
	}}
	engine := newTestEngine(t, st, client, reader)

	// First run: both principals created.
	result, err := engine.Sync(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Import)
	assert.Equal(t, 2, result.Import.New)
	assert.EqualValues(t, 2, result.Created)
	assert.True(t, result.HasChanges())
	assert.False(t, result.HasFailures())

	// Second run: nothing to do.
	result, err = engine.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, result.HasChanges())
	assert.EqualValues(t, 0, result.Created+result.Changed+result.Deleted+result.Failed)

	// Third run: one renamed, one gone.
	reader.entries = []source.Entry{entry("42", "Alicia", "Smith")}
	result, err = engine.Sync(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.Changed)
	assert.EqualValues(t, 1, result.Deleted)

	records, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Alicia", records[0].GivenName)
	assert.Equal(t, record.ReconcileUnchanged, records[0].ReconcileState)
	assert.Equal(t, record.OutcomeOk, records[0].OutcomeState)

	runs, err := st.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestSyncAbortsOnImportFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	client := newFakeClient()
	reader := &fakeReader{entries: []source.Entry{entry("42", "Alice", "Smith")}}
	engine := newTestEngine(t, st, client, reader)

	_, err := engine.Sync(ctx)
	require.NoError(t, err)

	// A failed import leaves the stored state untouched, so a flaky
	// source connection never cascades into spurious deletes.
	reader.searchErr = assert.AnError
	_, err = engine.Sync(ctx)
	require.Error(t, err)
	assert.Empty(t, client.deleted)

	rec, err := st.GetBySourceID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, record.ReconcileUnchanged, rec.ReconcileState)
}

func TestSyncPendingWorkSurvivesRuns(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	client := newFakeClient()
	reader := &fakeReader{entries: []source.Entry{entry("42", "Alice", "Smith")}}
	engine := newTestEngine(t, st, client, reader)

	// The create fails on the first run and the record is held.
	client.createErr = rejected("create", "already exists")
	result, err := engine.Sync(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.Failed)

	// A later run with an unchanged snapshot does not re-attempt the
	// create; the record waits for operator resolution.
	result, err = engine.Sync(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, result.Created)
	assert.EqualValues(t, 0, result.Failed)

	rec, err := st.GetBySourceID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, record.ReconcileNew, rec.ReconcileState)
	assert.Equal(t, record.OutcomeFailed, rec.OutcomeState)

	// Once the source entry changes, the record is re-flagged pending
	// and the create runs again.
	client.createErr = nil
	reader.entries = []source.Entry{entry("42", "Alicia", "Smith")}
	result, err = engine.Sync(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.Created)

	rec, err = st.GetBySourceID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, record.OutcomeOk, rec.OutcomeState)
	assert.Equal(t, "target-1", rec.TargetImmutableID)
}

func TestResultSummary(t *testing.T) {
	result := &reconcile.Result{
		RunID:   "run-1",
		Created: 2,
		Failed:  1,
		Import: &reconcile.ImportResult{
			New:       2,
			Unchanged: 5,
		},
	}

	summary := result.Summary()
	assert.Contains(t, summary, "2 created")
	assert.Contains(t, summary, "1 failed")
	assert.True(t, result.HasChanges())
	assert.True(t, result.HasFailures())
}
