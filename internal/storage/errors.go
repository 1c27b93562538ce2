package storage

import "errors"

// Storage errors shared by all implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Result rows are write-once.
	ErrDuplicateKey = errors.New("duplicate key: write-once store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is returned when a status update is not
	// allowed from the record's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)
