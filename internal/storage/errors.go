package storage

import "errors"

// Storage errors shared by all event store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting an event whose signature
	// already exists. The event log is append-only; callers treat this as
	// already-processed, not as a failure.
	ErrDuplicateKey = errors.New("duplicate key: event already stored")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
