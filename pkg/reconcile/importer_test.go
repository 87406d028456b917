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
)

func newTestEngine(t *testing.T, st *memory.Store, client *fakeClient, reader *fakeReader, opts ...reconcile.Option) reconcile.Engine {
	t.Helper()

	opts = append([]reconcile.Option{
		reconcile.WithPatterns(testPatterns()),
		reconcile.WithSearch("ou=people,dc=example,dc=com", "", nil),
	}, opts...)

	engine, err := reconcile.New(st, client, readerFor(reader), opts...)
	require.NoError(t, err)
	return engine
}

func TestImportNewRecords(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	reader := &fakeReader{entries: []source.Entry{
		entry("42", "Alice", "Smith"),
		entry("43", "Bob", "Jones"),
	}}
	engine := newTestEngine(t, st, newFakeClient(), reader)

	result, err := engine.Import(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.New)
	assert.Equal(t, 0, result.Changed)
	assert.Equal(t, 0, result.Deleted)
	assert.True(t, reader.closed)

	rec, err := st.GetBySourceID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, record.ReconcileNew, rec.ReconcileState)
	assert.Equal(t, record.OutcomePending, rec.OutcomeState)
	assert.Empty(t, rec.TargetImmutableID)
	assert.NotEmpty(t, rec.InternalID)
	assert.Equal(t, "Alice Smith", rec.DisplayName)
	assert.Equal(t, "42@example.com", rec.PrincipalName)
	assert.NotEmpty(t, rec.Fingerprint)
}

func TestImportChangedRecord(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	reader := &fakeReader{entries: []source.Entry{entry("42", "Alice", "Smith")}}
	client := newFakeClient()
	engine := newTestEngine(t, st, client, reader)

	_, err := engine.Import(ctx)
	require.NoError(t, err)
	_, err = engine.Apply(ctx)
	require.NoError(t, err)

	before, err := st.GetBySourceID(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, record.OutcomeOk, before.OutcomeState)

	reader.entries = []source.Entry{entry("42", "Alice B.", "Smith")}
	result, err := engine.Import(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Changed)

	after, err := st.GetBySourceID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, record.ReconcileChanged, after.ReconcileState)
	assert.Equal(t, record.OutcomePending, after.OutcomeState)
	// Identity carries forward; only the attributes change.
	assert.Equal(t, before.InternalID, after.InternalID)
	assert.Equal(t, before.TargetImmutableID, after.TargetImmutableID)
	assert.Equal(t, "Alice B.", after.GivenName)
	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
}

func TestImportRemarksFailedUpdate(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	reader := &fakeReader{entries: []source.Entry{entry("42", "Alice", "Smith")}}
	client := newFakeClient()
	engine := newTestEngine(t, st, client, reader)

	_, err := engine.Sync(ctx)
	require.NoError(t, err)

	reader.entries = []source.Entry{entry("42", "Alicia", "Smith")}
	client.patchErr = rejected("patch", "throttled")
	_, err = engine.Sync(ctx)
	require.NoError(t, err)

	failed, err := st.GetBySourceID(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, record.ReconcileChanged, failed.ReconcileState)
	require.Equal(t, record.OutcomeFailed, failed.OutcomeState)

	// The unchanged snapshot puts the failed update back in play instead
	// of counting it unchanged.
	result, err := engine.Import(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Changed)
	assert.Equal(t, 0, result.Unchanged)

	rec, err := st.GetBySourceID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, record.ReconcileChanged, rec.ReconcileState)
	assert.Equal(t, record.OutcomePending, rec.OutcomeState)
	assert.Equal(t, "Alicia", rec.GivenName)
}

func TestImportIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	reader := &fakeReader{entries: []source.Entry{
		entry("42", "Alice", "Smith"),
		entry("43", "Bob", "Jones"),
	}}
	engine := newTestEngine(t, st, newFakeClient(), reader)

	_, err := engine.Import(ctx)
	require.NoError(t, err)

	writes := st.Writes()
	result, err := engine.Import(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.New)
	assert.Equal(t, 0, result.Changed)
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, 2, result.Unchanged)
	assert.Equal(t, writes, st.Writes(), "identical snapshot must produce zero store writes")
}

func TestImportDeletionDetection(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	reader := &fakeReader{entries: []source.Entry{
		entry("42", "Alice", "Smith"),
		entry("43", "Bob", "Jones"),
	}}
	engine := newTestEngine(t, st, newFakeClient(), reader)

	_, err := engine.Import(ctx)
	require.NoError(t, err)

	reader.entries = []source.Entry{entry("42", "Alice", "Smith")}
	result, err := engine.Import(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	rec, err := st.GetBySourceID(ctx, "43")
	require.NoError(t, err)
	assert.Equal(t, record.ReconcileDeleted, rec.ReconcileState)
	assert.Equal(t, record.OutcomePending, rec.OutcomeState)

	// Flagging is idempotent across imports too.
	writes := st.Writes()
	result, err = engine.Import(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, writes, st.Writes())
}

func TestImportSkipsEntryWithMissingAttribute(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	broken := source.NewEntry("uid=44,ou=people,dc=example,dc=com", map[string]source.Attribute{
		"uid": {Value: "44"},
		// givenName and sn missing
	})
	reader := &fakeReader{entries: []source.Entry{entry("42", "Alice", "Smith"), broken}}
	engine := newTestEngine(t, st, newFakeClient(), reader)

	result, err := engine.Import(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.New)
	assert.Equal(t, 1, result.Skipped)

	_, err = st.GetBySourceID(ctx, "44")
	assert.True(t, errors.IsNotFound(err))
}

func TestImportDuplicateSourceIDLastWins(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	reader := &fakeReader{entries: []source.Entry{
		entry("42", "Alice", "Smith"),
		entry("42", "Alicia", "Smith"),
	}}
	engine := newTestEngine(t, st, newFakeClient(), reader)

	result, err := engine.Import(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.New)

	rec, err := st.GetBySourceID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", rec.GivenName)
}

func TestImportConnectionFailureAborts(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	reader := &fakeReader{searchErr: errors.NewDirectoryConnectionError("source", "ldap://example", errors.New("refused"))}
	engine := newTestEngine(t, st, newFakeClient(), reader)

	_, err := engine.Import(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsConnection(err))
}

func TestImportFoldsASCII(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	reader := &fakeReader{entries: []source.Entry{entry("müller", "Jürgen", "Müller")}}
	engine := newTestEngine(t, st, newFakeClient(), reader, reconcile.WithASCIIFold(true))

	_, err := engine.Import(ctx)
	require.NoError(t, err)

	rec, err := st.GetBySourceID(ctx, "müller")
	require.NoError(t, err)
	assert.Equal(t, "muller", rec.MailNickname)
	assert.Equal(t, "muller@example.com", rec.PrincipalName)
	// Display name keeps its natural form.
	assert.Equal(t, "Jürgen Müller", rec.DisplayName)
}
