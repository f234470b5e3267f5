package store

import "errors"

var (
	// ErrNotFound is returned when an operation requires an existing record
	// and the key is unknown.
	ErrNotFound = errors.New("transaction not found")

	// ErrGeneration is returned when a fresh unique order id could not be
	// generated within the bounded number of attempts.
	ErrGeneration = errors.New("could not generate a unique order id")

	// ErrSerialization is returned when a record cannot be encoded to JSON.
	ErrSerialization = errors.New("could not encode transaction record")
)
