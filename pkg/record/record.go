// Package record defines the domain types tracked by the reconciliation
// engine: the Record joining a source principal to its target identity,
// and the Run summarizing one reconciliation pass.
package record

import (
	"time"

	"github.com/dirbridge/dirbridge/pkg/fingerprint"
)

// Record is the engine's tracked representation of one directory principal.
// Records are treated as immutable values: a phase produces a new value and
// an explicit store write rather than mutating a shared object in place.
type Record struct {
	// InternalID is the stable identifier assigned on first discovery.
	// Never reused.
	InternalID string

	// SourceImmutableID is the identifier stable in the source directory.
	// Unique across all live records; the natural join key between source
	// and stored records.
	SourceImmutableID string

	// TargetImmutableID is the identifier assigned by the target directory
	// once the record is created there. Empty until creation succeeds.
	TargetImmutableID string

	// Mutable attribute set, rendered by the pattern builder.
	GivenName     string
	Surname       string
	DisplayName   string
	MailNickname  string
	PrincipalName string

	// Fingerprint is the hash over the mutable attribute set, used to
	// detect whether re-import produced a materially different record.
	Fingerprint string

	// ReconcileState is what the record still needs applied to the target.
	ReconcileState ReconcileState

	// OutcomeState is the last known result of attempting to satisfy the
	// reconcile state.
	OutcomeState OutcomeState

	// LastChangedAt and LastRunID record the provenance of the most
	// recent mutation.
	LastChangedAt time.Time
	LastRunID     string
}

// ComputeFingerprint returns the change fingerprint over the record's
// mutable attribute set.
func (r Record) ComputeFingerprint() string {
	return fingerprint.Sum(r.GivenName, r.Surname, r.DisplayName, r.MailNickname, r.PrincipalName)
}

// FingerprintEqual reports whether two records carry the same mutable
// attribute set, judged by their fingerprints.
func (r Record) FingerprintEqual(other Record) bool {
	return r.Fingerprint != "" && r.Fingerprint == other.Fingerprint
}

// Run is the immutable audit record of one reconciliation pass.
type Run struct {
	ID      string
	BeganAt time.Time
	EndedAt time.Time

	// Counters of records touched by the pass.
	Created int64
	Changed int64
	Deleted int64
	Failed  int64
}

// Duration returns the wall-clock duration of the run.
func (r Run) Duration() time.Duration {
	return r.EndedAt.Sub(r.BeganAt)
}
