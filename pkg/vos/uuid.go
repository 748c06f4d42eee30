package vos

import (
	"github.com/google/uuid"
)

// UUID is a thin wrapper around a random (v4) UUID used as a distributed
// tracing identifier.
type UUID struct {
	Value uuid.UUID
}

// NewUUID creates a new random UUID.
func NewUUID() (UUID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return UUID{}, err
	}
	return UUID{Value: id}, nil
}

// NewUUIDFromString parses a UUID from its canonical string form.
func NewUUIDFromString(value string) (UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return UUID{}, err
	}
	return UUID{Value: id}, nil
}

// Validate reports whether the UUID is non-zero.
func (u UUID) Validate() error {
	if u.Value == uuid.Nil {
		return ErrInvalidUUID
	}
	return nil
}

// String returns the canonical string representation.
func (u UUID) String() string {
	return u.Value.String()
}
