// Package store provides the repository contracts, unit of work, and the SQL
// and in-memory backends behind the generic CRUD layer.
package store

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateID is returned when creating an entity with an existing ID.
	ErrDuplicateID = errors.New("entity with this ID already exists")

	// ErrInvalidData is returned when an entity cannot be written.
	ErrInvalidData = errors.New("invalid entity data")

	// ErrNotRegistered is returned when a unit of work has no repository for
	// the requested capability.
	ErrNotRegistered = errors.New("no repository registered for capability")

	// ErrClosed is returned when a closed unit of work is used.
	ErrClosed = errors.New("unit of work is closed")

	// ErrConnectionFailed is returned when database connection fails.
	ErrConnectionFailed = errors.New("database connection failed")

	// ErrMigrationFailed is returned when database migration fails.
	ErrMigrationFailed = errors.New("database migration failed")

	// ErrUnsupportedDriver is returned for an unknown database driver name.
	ErrUnsupportedDriver = errors.New("unsupported database driver")

	// ErrTxFailed is returned when a transaction operation fails.
	ErrTxFailed = errors.New("transaction failed")
)

// StoreError wraps errors with additional context.
type StoreError struct {
	Op      string // Operation that failed (e.g., "Create")
	Entity  string // Table name (e.g., "widgets")
	ID      string // Entity ID if applicable
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, entity, id, message string, err error) *StoreError {
	return &StoreError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}
