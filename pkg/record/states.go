package record

import "github.com/dirbridge/dirbridge/pkg/errors"

// ReconcileState describes what change (if any) a record still needs
// applied to the target directory.
type ReconcileState string

// Reconcile states set by the import stage and cleared by the apply stage.
const (
	ReconcileNew       ReconcileState = "new"
	ReconcileChanged   ReconcileState = "changed"
	ReconcileDeleted   ReconcileState = "deleted"
	ReconcileUnchanged ReconcileState = "unchanged"
)

// Valid reports whether the state is one of the known reconcile states.
func (s ReconcileState) Valid() bool {
	switch s {
	case ReconcileNew, ReconcileChanged, ReconcileDeleted, ReconcileUnchanged:
		return true
	}
	return false
}

// OutcomeState describes the last observed result of attempting to apply
// a record's reconcile state.
type OutcomeState string

// Outcome states tracked per record.
const (
	OutcomePending OutcomeState = "pending"
	OutcomeOk      OutcomeState = "ok"
	OutcomeFailed  OutcomeState = "failed"
)

// Valid reports whether the state is one of the known outcome states.
func (s OutcomeState) Valid() bool {
	switch s {
	case OutcomePending, OutcomeOk, OutcomeFailed:
		return true
	}
	return false
}

// DeleteBehavior selects how principals are removed from the target
// directory.
type DeleteBehavior string

// Deletion policies. Soft leaves the principal recoverable in the
// target's trash; hard additionally purges it immediately.
const (
	DeleteSoft DeleteBehavior = "soft"
	DeleteHard DeleteBehavior = "hard"
)

// ParseDeleteBehavior converts a configuration string to a DeleteBehavior.
func ParseDeleteBehavior(s string) (DeleteBehavior, error) {
	switch DeleteBehavior(s) {
	case DeleteSoft:
		return DeleteSoft, nil
	case DeleteHard:
		return DeleteHard, nil
	}
	return "", &errors.ValidationError{Field: "deleteBehavior", Value: s, Message: "must be soft or hard"}
}

// Strategy selects how an operator resolves a create conflict.
type Strategy string

// Conflict resolution strategies.
const (
	StrategyMerge    Strategy = "merge"
	StrategyRecreate Strategy = "recreate"
)

// ParseStrategy converts a request string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyMerge:
		return StrategyMerge, nil
	case StrategyRecreate:
		return StrategyRecreate, nil
	}
	return "", &errors.InvalidStrategyError{Strategy: s}
}
