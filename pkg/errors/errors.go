// Package errors provides custom error types for the dirbridge system.
// These errors enable programmatic error checking at component boundaries,
// keeping expected negative outcomes (not found, already failed) out of
// control-flow panics and exceptions.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// As is an alias for the standard library errors.As.
var As = errors.As

// Common sentinel errors for the dirbridge system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrConnection indicates that a directory connection could not be obtained
	ErrConnection = errors.New("connection failed")

	// ErrRemoteRejected indicates that the target directory rejected an operation
	ErrRemoteRejected = errors.New("remote rejected")

	// ErrPrecondition indicates that an operator request violated a record precondition
	ErrPrecondition = errors.New("precondition failed")
)

// MissingAttributeError indicates that a pattern placeholder referenced an
// attribute the source entry does not carry. Import of the affected entry
// is skipped; the run continues.
type MissingAttributeError struct {
	Attribute string
	Pattern   string
}

// Error implements the error interface
func (e *MissingAttributeError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("attribute %s referenced by pattern %q is missing from the source entry", e.Attribute, e.Pattern)
	}
	return fmt.Sprintf("attribute %s is missing from the source entry", e.Attribute)
}

// Is implements errors.Is support
func (e *MissingAttributeError) Is(target error) bool {
	return target == ErrNotFound
}

// NewMissingAttributeError creates a new MissingAttributeError
func NewMissingAttributeError(attribute, pattern string) *MissingAttributeError {
	return &MissingAttributeError{Attribute: attribute, Pattern: pattern}
}

// DirectoryConnectionError indicates that a source or target directory
// connection could not be established. The current stage aborts; writes
// committed so far stand.
type DirectoryConnectionError struct {
	Directory string // "source" or "target"
	Endpoint  string
	Err       error
}

// Error implements the error interface
func (e *DirectoryConnectionError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s directory connection to %s failed: %v", e.Directory, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s directory connection failed: %v", e.Directory, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *DirectoryConnectionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *DirectoryConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// NewDirectoryConnectionError creates a new DirectoryConnectionError
func NewDirectoryConnectionError(directory, endpoint string, err error) *DirectoryConnectionError {
	return &DirectoryConnectionError{Directory: directory, Endpoint: endpoint, Err: err}
}

// RemoteRejectedError indicates that the target directory rejected a single
// record's create, patch or delete. The record is marked failed; the run
// continues with the remaining records.
type RemoteRejectedError struct {
	Operation  string // "create", "patch", "delete", "purge", "restore", "license"
	TargetID   string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *RemoteRejectedError) Error() string {
	if e.TargetID != "" {
		return fmt.Sprintf("target directory rejected %s of %s: %s", e.Operation, e.TargetID, e.Message)
	}
	return fmt.Sprintf("target directory rejected %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *RemoteRejectedError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *RemoteRejectedError) Is(target error) bool {
	return target == ErrRemoteRejected
}

// NewRemoteRejectedError creates a new RemoteRejectedError
func NewRemoteRejectedError(operation, targetID string, statusCode int, message string) *RemoteRejectedError {
	return &RemoteRejectedError{
		Operation:  operation,
		TargetID:   targetID,
		StatusCode: statusCode,
		Message:    message,
	}
}

// ConflictAlreadyAssignedError indicates a resolve request named a target
// principal that is already bound to a different local record. Nothing is
// mutated.
type ConflictAlreadyAssignedError struct {
	TargetID string
	BoundTo  string // internal id of the record already holding the target id
}

// Error implements the error interface
func (e *ConflictAlreadyAssignedError) Error() string {
	return fmt.Sprintf("target principal %s is already assigned to record %s", e.TargetID, e.BoundTo)
}

// Is implements errors.Is support
func (e *ConflictAlreadyAssignedError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// NewConflictAlreadyAssignedError creates a new ConflictAlreadyAssignedError
func NewConflictAlreadyAssignedError(targetID, boundTo string) *ConflictAlreadyAssignedError {
	return &ConflictAlreadyAssignedError{TargetID: targetID, BoundTo: boundTo}
}

// InvalidStrategyError indicates an unknown conflict resolution strategy.
type InvalidStrategyError struct {
	Strategy string
}

// Error implements the error interface
func (e *InvalidStrategyError) Error() string {
	return fmt.Sprintf("conflict resolution strategy %q is not valid", e.Strategy)
}

// Is implements errors.Is support
func (e *InvalidStrategyError) Is(target error) bool {
	return target == ErrInvalidInput
}

// RecordNotFoundError indicates an operator request named a record that
// does not exist in the store.
type RecordNotFoundError struct {
	ID string
}

// Error implements the error interface
func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("record with ID %s not found", e.ID)
}

// Is implements errors.Is support
func (e *RecordNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// RecordNotFailedError indicates an operator request targeted a record
// that is not in the failed outcome state.
type RecordNotFailedError struct {
	ID string
}

// Error implements the error interface
func (e *RecordNotFailedError) Error() string {
	return fmt.Sprintf("record %s is not in the failed state", e.ID)
}

// Is implements errors.Is support
func (e *RecordNotFailedError) Is(target error) bool {
	return target == ErrPrecondition
}

// RecordNotNewError indicates a create retry targeted a record whose
// reconcile state is not new.
type RecordNotNewError struct {
	ID string
}

// Error implements the error interface
func (e *RecordNotNewError) Error() string {
	return fmt.Sprintf("record %s is not pending creation", e.ID)
}

// Is implements errors.Is support
func (e *RecordNotNewError) Is(target error) bool {
	return target == ErrPrecondition
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{Component: component, Message: message, Err: err}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// StoreError represents an error from the record store
type StoreError struct {
	Operation string // "get", "upsert", "delete", "scan", "append"
	Resource  string // "record", "run"
	ID        string
	Err       error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store failed to %s %s %s: %v", e.Operation, e.Resource, e.ID, e.Err)
	}
	return fmt.Sprintf("store failed to %s %s: %v", e.Operation, e.Resource, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapStore wraps an error as a StoreError
func WrapStore(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Operation: operation, Resource: resource, ID: id, Err: err}
}

// Helper functions for error checking

// Is is an alias for the standard library errors.Is.
var Is = errors.Is

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsConnection checks if an error is a directory connection error
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsRemoteRejected checks if an error is a remote rejection
func IsRemoteRejected(err error) bool {
	return errors.Is(err, ErrRemoteRejected)
}

// IsPrecondition checks if an error is a record precondition violation
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
