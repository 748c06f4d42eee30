package vos

import "errors"

var (
	// ErrInvalidULID is returned when a ULID is invalid (zero value).
	ErrInvalidULID = errors.New("invalid ULID")

	// ErrInvalidUUID is returned when a UUID is invalid (zero value).
	ErrInvalidUUID = errors.New("invalid UUID")
)
