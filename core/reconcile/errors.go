package reconcile

import (
	"errors"
	"fmt"
)

// Error taxonomy of a run. Store adapters wrap their failures in a StoreError
// whose Kind is one of these sentinels.
var (
	ErrStoreUnavailable           = errors.New("store unavailable")
	ErrStoreRead                  = errors.New("store read failed")
	ErrBatchWriteFailed           = errors.New("batch write failed")
	ErrIdentityConflictUnresolved = errors.New("identity conflict unresolved")
	ErrBackupFailed               = errors.New("backup failed")
	ErrInvalidRecord              = errors.New("invalid record")
	ErrRunInProgress              = errors.New("run already in progress")
	ErrCanceled                   = errors.New("canceled")
)

// StoreError describes a failed store operation.
type StoreError struct {
	Store string
	Op    string
	Kind  error
	Err   error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Store, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Store, e.Op, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is matches the error kind so errors.Is(err, ErrStoreUnavailable) works.
func (e *StoreError) Is(target error) bool {
	return e.Kind == target
}

// NewStoreError creates a StoreError.
func NewStoreError(store, op string, kind, err error) *StoreError {
	return &StoreError{Store: store, Op: op, Kind: kind, Err: err}
}

// RecordError describes a record that fails validation.
type RecordError struct {
	Identity string
	Reason   string
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	if e.Identity == "" {
		return fmt.Sprintf("invalid record: %s", e.Reason)
	}
	return fmt.Sprintf("invalid record %s: %s", e.Identity, e.Reason)
}

// Is matches ErrInvalidRecord.
func (e *RecordError) Is(target error) bool {
	return target == ErrInvalidRecord
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCanceled) || errors.Is(err, ErrInvalidRecord) || errors.Is(err, ErrIdentityConflictUnresolved) {
		return false
	}
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrBatchWriteFailed) || errors.Is(err, ErrStoreRead)
}
