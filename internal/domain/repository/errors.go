package repository

import "errors"

// Sentinel errors shared by all repository implementations.
//
// Lookups that may legitimately miss (email, username, tokens, existence
// checks) do not return an error on absence; they return a nil aggregate or
// false instead. Only operations where absence breaks the contract (GetByID,
// Delete) return ErrNotFound.
var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate means a unique constraint (email or username) was violated.
	ErrDuplicate = errors.New("duplicate value")

	// ErrReadBack means a write committed but the mandatory re-read afterwards
	// could not locate the row. It signals a storage fault and is surfaced,
	// never retried.
	ErrReadBack = errors.New("row written but not readable")
)
