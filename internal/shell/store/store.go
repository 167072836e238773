package store

import (
	"context"
	"time"

	"github.com/artpar/crudkit/internal/core/domain"
)

// =============================================================================
// Repository Capabilities
// =============================================================================

// Repository is the plain CRUD capability over one entity type.
type Repository[K comparable, T domain.Entity[K]] interface {
	// Create inserts the entity. Keys assigned by the backend are written
	// back through domain.IDSetter.
	Create(ctx context.Context, entity T) error

	// Update replaces the stored entity with the same key.
	// Returns ErrNotFound if no entity has that key.
	Update(ctx context.Context, entity T) error

	// GetAll returns every entity ordered by key (SQL) or insertion (memory).
	GetAll(ctx context.Context) ([]T, error)

	// Get returns the entity with the given key.
	// Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, id K) (T, error)

	// Delete removes the entity with the given key. Deleting a missing key
	// is not an error.
	Delete(ctx context.Context, id K) error
}

// SpecificationRepository is the query capability over one entity type.
type SpecificationRepository[K comparable, T domain.Entity[K]] interface {
	GetBySpecification(ctx context.Context, spec domain.Specification[T]) ([]T, error)
}

// =============================================================================
// Table Definition
// =============================================================================

// TableDef describes how an entity type is laid out in a backend table.
type TableDef[K comparable] struct {
	// Name is the table name (e.g., "widgets").
	Name string

	// Key is the primary key column. Defaults to "id".
	Key string

	// Columns are the non-key columns written on insert and update.
	Columns []string

	// Immutable columns are written on insert only.
	Immutable []string

	// NewKey generates keys for entities created without one.
	// When nil the backend assigns the key.
	NewKey func() K
}

func (d TableDef[K]) key() string {
	if d.Key == "" {
		return "id"
	}
	return d.Key
}

// touch stamps timestamped entities before they are written.
func touch(entity any, now time.Time) {
	if t, ok := entity.(domain.Timestamped); ok {
		t.Touch(now)
	}
}

// assignID writes a key back into entities that accept one.
func assignID[K comparable](entity any, id K) {
	if s, ok := entity.(domain.IDSetter[K]); ok {
		s.SetID(id)
	}
}
