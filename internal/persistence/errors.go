package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConstraintViolation is returned when a record breaks a schema constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a record references a missing parent.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrStateConflict is returned when a conditional state transition finds a
	// different stored state.
	ErrStateConflict = errors.New("persistence: state conflict")
)
