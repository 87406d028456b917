package sqldb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/record"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "dirbridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(internalID, sourceID string) record.Record {
	return record.Record{
		InternalID:        internalID,
		SourceImmutableID: sourceID,
		GivenName:         "Alice",
		Surname:           "Smith",
		DisplayName:       "Alice Smith",
		MailNickname:      "asmith",
		PrincipalName:     "asmith@example.com",
		Fingerprint:       "fp-1",
		ReconcileState:    record.ReconcileNew,
		OutcomeState:      record.OutcomePending,
		LastChangedAt:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "dsn")
	var cfgErr *errors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rec := testRecord("id-1", "42")
	require.NoError(t, s.Upsert(ctx, rec))

	got, err := s.GetByInternalID(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	got, err = s.GetBySourceID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// Replace by internal id.
	rec.GivenName = "Alicia"
	rec.TargetImmutableID = "target-1"
	require.NoError(t, s.Upsert(ctx, rec))

	got, err = s.GetByTargetID(ctx, "target-1")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", got.GivenName)
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.GetByInternalID(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	_, err = s.GetBySourceID(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	// An empty target id must never match the records that have not
	// reached the target yet.
	require.NoError(t, s.Upsert(ctx, testRecord("id-1", "42")))
	_, err = s.GetByTargetID(ctx, "")
	assert.True(t, errors.IsNotFound(err))
}

func TestListPending(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	pending := testRecord("id-1", "42")
	require.NoError(t, s.Upsert(ctx, pending))

	failed := testRecord("id-2", "43")
	failed.OutcomeState = record.OutcomeFailed
	require.NoError(t, s.Upsert(ctx, failed))

	applied := testRecord("id-3", "44")
	applied.ReconcileState = record.ReconcileUnchanged
	applied.OutcomeState = record.OutcomeOk
	require.NoError(t, s.Upsert(ctx, applied))

	got, err := s.ListPending(ctx, record.ReconcileNew)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "id-1", got[0].InternalID)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Upsert(ctx, testRecord("id-1", "42")))
	require.NoError(t, s.Delete(ctx, "id-1"))

	_, err := s.GetByInternalID(ctx, "id-1")
	assert.True(t, errors.IsNotFound(err))

	err = s.Delete(ctx, "id-1")
	assert.True(t, errors.IsNotFound(err))
}

func TestRunLog(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := record.Run{
			ID:      string(rune('a' + i)),
			BeganAt: base.Add(time.Duration(i) * time.Hour),
			EndedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Created: int64(i),
		}
		require.NoError(t, s.AppendRun(ctx, run))
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	// Most recent first.
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, base.Add(2*time.Hour), runs[0].BeganAt)

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	pruned, err := s.PruneRuns(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	runs, err = s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRebind(t *testing.T) {
	s := &Store{postgres: true}
	assert.Equal(t, "SELECT * FROM records WHERE internal_id = $1 AND fingerprint = $2",
		s.rebind("SELECT * FROM records WHERE internal_id = ? AND fingerprint = ?"))

	s.postgres = false
	assert.Equal(t, "a = ?", s.rebind("a = ?"))
}
