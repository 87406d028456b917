// Package sqldb provides the SQL-backed record store. It runs on SQLite
// for single-node deployments and on PostgreSQL where the state must be
// shared; both drivers serve the same schema and queries.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/dirbridge/dirbridge/pkg/errors"
	"github.com/dirbridge/dirbridge/pkg/record"
	"github.com/dirbridge/dirbridge/pkg/store"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	internal_id         TEXT PRIMARY KEY,
	source_immutable_id TEXT NOT NULL UNIQUE,
	target_immutable_id TEXT NOT NULL DEFAULT '',
	given_name          TEXT NOT NULL DEFAULT '',
	surname             TEXT NOT NULL DEFAULT '',
	display_name        TEXT NOT NULL DEFAULT '',
	mail_nickname       TEXT NOT NULL DEFAULT '',
	principal_name      TEXT NOT NULL DEFAULT '',
	fingerprint         TEXT NOT NULL DEFAULT '',
	reconcile_state     TEXT NOT NULL,
	outcome_state       TEXT NOT NULL,
	last_changed_at     TEXT NOT NULL,
	last_run_id         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_records_pending ON records (reconcile_state, outcome_state);
CREATE TABLE IF NOT EXISTS runs (
	id       TEXT PRIMARY KEY,
	began_at TEXT NOT NULL,
	ended_at TEXT NOT NULL,
	created  INTEGER NOT NULL,
	changed  INTEGER NOT NULL,
	deleted  INTEGER NOT NULL,
	failed   INTEGER NOT NULL
);
`

const recordColumns = `internal_id, source_immutable_id, target_immutable_id,
	given_name, surname, display_name, mail_nickname, principal_name,
	fingerprint, reconcile_state, outcome_state, last_changed_at, last_run_id`

// Store is a database/sql implementation of store.Store.
type Store struct {
	db       *sql.DB
	postgres bool
}

var _ store.Store = (*Store)(nil)

// Open connects to the database named by driver and dsn, applies the
// schema and returns the store. Driver is "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var db *sql.DB
	var err error
	postgres := false

	switch driver {
	case DriverSQLite, "":
		db, err = sql.Open("sqlite", dsn)
	case DriverPostgres, "pgx":
		db, err = sql.Open("pgx", dsn)
		postgres = true
	default:
		return nil, &errors.ConfigError{Component: "store", Message: fmt.Sprintf("unknown driver %q", driver)}
	}
	if err != nil {
		return nil, errors.WrapStore("open", "database", dsn, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.WrapStore("ping", "database", dsn, err)
	}

	s := &Store{db: db, postgres: postgres}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.WrapStore("migrate", "database", dsn, err)
	}
	return s, nil
}

// rebind rewrites ? placeholders to the $n form PostgreSQL expects.
// Queries are written once with ? and rewritten here; neither dialect
// sees the other's placeholders.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// GetByInternalID returns the record with the given internal id.
func (s *Store) GetByInternalID(ctx context.Context, internalID string) (record.Record, error) {
	return s.getRecord(ctx, "internal_id", internalID)
}

// GetBySourceID returns the record with the given source immutable id.
func (s *Store) GetBySourceID(ctx context.Context, sourceImmutableID string) (record.Record, error) {
	return s.getRecord(ctx, "source_immutable_id", sourceImmutableID)
}

// GetByTargetID returns the record bound to the given target immutable id.
func (s *Store) GetByTargetID(ctx context.Context, targetImmutableID string) (record.Record, error) {
	if targetImmutableID == "" {
		return record.Record{}, &errors.RecordNotFoundError{ID: targetImmutableID}
	}
	return s.getRecord(ctx, "target_immutable_id", targetImmutableID)
}

func (s *Store) getRecord(ctx context.Context, column, value string) (record.Record, error) {
	query := s.rebind(`SELECT ` + recordColumns + ` FROM records WHERE ` + column + ` = ?`)
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, value))
	if err == sql.ErrNoRows {
		return record.Record{}, &errors.RecordNotFoundError{ID: value}
	}
	if err != nil {
		return record.Record{}, errors.WrapStore("get", "record", value, err)
	}
	return rec, nil
}

// ListPending returns records in the given reconcile state with a
// pending outcome, ordered by internal id.
func (s *Store) ListPending(ctx context.Context, state record.ReconcileState) ([]record.Record, error) {
	query := s.rebind(`SELECT ` + recordColumns + ` FROM records
		WHERE reconcile_state = ? AND outcome_state = ? ORDER BY internal_id`)
	return s.listRecords(ctx, query, string(state), string(record.OutcomePending))
}

// List returns every tracked record, ordered by internal id.
func (s *Store) List(ctx context.Context) ([]record.Record, error) {
	return s.listRecords(ctx, `SELECT `+recordColumns+` FROM records ORDER BY internal_id`)
}

func (s *Store) listRecords(ctx context.Context, query string, args ...any) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapStore("scan", "record", "", err)
	}
	defer func() { _ = rows.Close() }()

	var out []record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.WrapStore("scan", "record", "", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStore("scan", "record", "", err)
	}
	return out, nil
}

// Upsert writes the record, inserting or replacing by internal id.
func (s *Store) Upsert(ctx context.Context, rec record.Record) error {
	if rec.InternalID == "" {
		return &errors.ValidationError{Field: "internalId", Message: "cannot be empty"}
	}

	query := s.rebind(`INSERT INTO records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (internal_id) DO UPDATE SET
			source_immutable_id = excluded.source_immutable_id,
			target_immutable_id = excluded.target_immutable_id,
			given_name          = excluded.given_name,
			surname             = excluded.surname,
			display_name        = excluded.display_name,
			mail_nickname       = excluded.mail_nickname,
			principal_name      = excluded.principal_name,
			fingerprint         = excluded.fingerprint,
			reconcile_state     = excluded.reconcile_state,
			outcome_state       = excluded.outcome_state,
			last_changed_at     = excluded.last_changed_at,
			last_run_id         = excluded.last_run_id`)

	_, err := s.db.ExecContext(ctx, query,
		rec.InternalID, rec.SourceImmutableID, rec.TargetImmutableID,
		rec.GivenName, rec.Surname, rec.DisplayName, rec.MailNickname, rec.PrincipalName,
		rec.Fingerprint, string(rec.ReconcileState), string(rec.OutcomeState),
		formatTime(rec.LastChangedAt), rec.LastRunID)
	if err != nil {
		return errors.WrapStore("upsert", "record", rec.InternalID, err)
	}
	return nil
}

// Delete permanently removes the record by internal id.
func (s *Store) Delete(ctx context.Context, internalID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM records WHERE internal_id = ?`), internalID)
	if err != nil {
		return errors.WrapStore("delete", "record", internalID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &errors.RecordNotFoundError{ID: internalID}
	}
	return nil
}

// AppendRun persists a completed run summary.
func (s *Store) AppendRun(ctx context.Context, run record.Run) error {
	query := s.rebind(`INSERT INTO runs (id, began_at, ended_at, created, changed, deleted, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		run.ID, formatTime(run.BeganAt), formatTime(run.EndedAt),
		run.Created, run.Changed, run.Deleted, run.Failed)
	if err != nil {
		return errors.WrapStore("append", "run", run.ID, err)
	}
	return nil
}

// ListRuns returns up to limit runs, most recent first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]record.Run, error) {
	query := `SELECT id, began_at, ended_at, created, changed, deleted, failed
		FROM runs ORDER BY began_at DESC`
	args := []any{}
	if limit > 0 {
		query = s.rebind(query + ` LIMIT ?`)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapStore("scan", "run", "", err)
	}
	defer func() { _ = rows.Close() }()

	var out []record.Run
	for rows.Next() {
		var run record.Run
		var began, ended string
		if err := rows.Scan(&run.ID, &began, &ended, &run.Created, &run.Changed, &run.Deleted, &run.Failed); err != nil {
			return nil, errors.WrapStore("scan", "run", "", err)
		}
		if run.BeganAt, err = parseTime(began); err != nil {
			return nil, errors.WrapStore("scan", "run", run.ID, err)
		}
		if run.EndedAt, err = parseTime(ended); err != nil {
			return nil, errors.WrapStore("scan", "run", run.ID, err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStore("scan", "run", "", err)
	}
	return out, nil
}

// PruneRuns removes runs that ended before the horizon and returns how
// many were removed.
func (s *Store) PruneRuns(ctx context.Context, horizon time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM runs WHERE ended_at < ?`), formatTime(horizon))
	if err != nil {
		return 0, errors.WrapStore("prune", "run", "", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapStore("prune", "run", "", err)
	}
	return int(n), nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (record.Record, error) {
	var rec record.Record
	var reconcileState, outcomeState, lastChanged string
	if err := row.Scan(
		&rec.InternalID, &rec.SourceImmutableID, &rec.TargetImmutableID,
		&rec.GivenName, &rec.Surname, &rec.DisplayName, &rec.MailNickname, &rec.PrincipalName,
		&rec.Fingerprint, &reconcileState, &outcomeState, &lastChanged, &rec.LastRunID,
	); err != nil {
		return record.Record{}, err
	}

	rec.ReconcileState = record.ReconcileState(reconcileState)
	rec.OutcomeState = record.OutcomeState(outcomeState)
	var err error
	if rec.LastChangedAt, err = parseTime(lastChanged); err != nil {
		return record.Record{}, err
	}
	return rec, nil
}

// Timestamps are stored as UTC RFC 3339 text so the same schema works on
// both dialects. The fixed-width fraction keeps lexicographic order equal
// to chronological order, which ORDER BY and the prune predicate rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
