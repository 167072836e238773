package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// =============================================================================
// Unit of Work
// =============================================================================

// Session is the backend state behind a unit of work: an open transaction
// (SQL) or a journal of staged writes (memory).
type Session interface {
	// Commit persists everything written since the last commit as one unit.
	Commit(ctx context.Context) error

	// Rollback discards uncommitted writes. Safe to call after Commit.
	Rollback() error
}

// UnitOfWork resolves repositories by capability type and commits their
// pending changes atomically. It is request-scoped: begin one per request
// and Close it when the request ends.
type UnitOfWork interface {
	// Resolve returns the repository registered for the capability type.
	// Returns ErrNotRegistered when nothing provides it.
	Resolve(capability reflect.Type) (any, error)

	// Commit persists pending changes across all resolved repositories.
	Commit(ctx context.Context) error

	// Close discards anything left uncommitted.
	Close() error
}

// Provider begins request-scoped units of work.
type Provider interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// Capability returns the registry key for capability interface R.
func Capability[R any]() reflect.Type {
	return reflect.TypeFor[R]()
}

// Resolve looks up capability R in the unit of work.
//
// Example:
//
//	repo, err := store.Resolve[store.Repository[int64, *domain.Widget]](uow)
func Resolve[R any](uow UnitOfWork) (R, error) {
	var zero R
	capability := Capability[R]()
	inst, err := uow.Resolve(capability)
	if err != nil {
		return zero, err
	}
	repo, ok := inst.(R)
	if !ok {
		return zero, fmt.Errorf("%w: %s resolved to %T", ErrNotRegistered, capability, inst)
	}
	return repo, nil
}

// =============================================================================
// Registry
// =============================================================================

// Registry is the startup-time table mapping capability types to repository
// factories for one backend session type.
type Registry[S Session] struct {
	mu        sync.RWMutex
	factories map[reflect.Type]func(S) any
}

// NewRegistry creates an empty registry.
func NewRegistry[S Session]() *Registry[S] {
	return &Registry[S]{factories: make(map[reflect.Type]func(S) any)}
}

// Provide registers factory as the source of capability R. A later
// registration for the same capability replaces the earlier one.
func Provide[R any, S Session](reg *Registry[S], factory func(S) R) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.factories[Capability[R]()] = func(s S) any { return factory(s) }
}

// Has reports whether the capability is registered.
func (r *Registry[S]) Has(capability reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[capability]
	return ok
}

// Verify fails when any of the capabilities is missing, so wiring mistakes
// surface at startup rather than on the first request.
func (r *Registry[S]) Verify(capabilities ...reflect.Type) error {
	var missing []string
	for _, c := range capabilities {
		if !r.Has(c) {
			missing = append(missing, c.String())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrNotRegistered, strings.Join(missing, ", "))
	}
	return nil
}

// Begin starts a unit of work over session.
func (r *Registry[S]) Begin(session S) UnitOfWork {
	return &unitOfWork[S]{
		registry: r,
		session:  session,
		resolved: make(map[reflect.Type]any),
	}
}

func (r *Registry[S]) factory(capability reflect.Type) (func(S) any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[capability]
	return f, ok
}

// unitOfWork caches one repository instance per capability for its lifetime.
type unitOfWork[S Session] struct {
	registry *Registry[S]
	session  S
	resolved map[reflect.Type]any
	closed   bool
}

func (u *unitOfWork[S]) Resolve(capability reflect.Type) (any, error) {
	if u.closed {
		return nil, ErrClosed
	}
	if inst, ok := u.resolved[capability]; ok {
		return inst, nil
	}
	factory, ok := u.registry.factory(capability)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, capability)
	}
	inst := factory(u.session)
	u.resolved[capability] = inst
	return inst, nil
}

func (u *unitOfWork[S]) Commit(ctx context.Context) error {
	if u.closed {
		return ErrClosed
	}
	return u.session.Commit(ctx)
}

func (u *unitOfWork[S]) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	return u.session.Rollback()
}

// =============================================================================
// Provider
// =============================================================================

type provider[S Session] struct {
	registry *Registry[S]
	open     func(ctx context.Context) (S, error)
}

// NewProvider creates a Provider that opens a fresh session per unit of work.
func NewProvider[S Session](reg *Registry[S], open func(ctx context.Context) (S, error)) Provider {
	return &provider[S]{registry: reg, open: open}
}

func (p *provider[S]) Begin(ctx context.Context) (UnitOfWork, error) {
	session, err := p.open(ctx)
	if err != nil {
		return nil, err
	}
	return p.registry.Begin(session), nil
}
