package util

import "errors"

// Sentinel errors for the outcomes callers are expected to branch on.
// Typed errors in other packages unwrap to these so errors.Is works
// across package boundaries.
var (
	// ErrSignalMissing indicates a record lacks the signal required for
	// a given comparison; the record is excluded, never fatal
	ErrSignalMissing = errors.New("signal missing")

	// ErrStateViolation indicates an illegal lifecycle transition was
	// requested; the store is left untouched
	ErrStateViolation = errors.New("state violation")

	// ErrLockHeld indicates the run lock is already held by another
	// process; the run aborts without side effects
	ErrLockHeld = errors.New("lock held")

	// ErrConsistencyFault indicates the filesystem and the store diverged
	// during apply; requires operator intervention
	ErrConsistencyFault = errors.New("consistency fault")

	// ErrSchemaTooNew indicates the database schema version is above what
	// this build supports
	ErrSchemaTooNew = errors.New("database schema newer than supported")

	// ErrConflict indicates a destination path conflict
	ErrConflict = errors.New("destination conflict")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
