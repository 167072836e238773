// Package crud provides the generic server-side operation handler: validate,
// dispatch to a repository resolved from the unit of work, commit, and wrap
// the outcome in a response envelope.
package crud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/crudkit/internal/core/domain"
	"github.com/artpar/crudkit/internal/core/response"
	"github.com/artpar/crudkit/internal/core/validation"
	"github.com/artpar/crudkit/internal/shell/store"
)

// Operation names used in logs and metrics.
const (
	OpCreate    = "create"
	OpUpdate    = "update"
	OpFetchMany = "fetch_many"
	OpFetchOne  = "fetch_one"
	OpDelete    = "delete"
)

// =============================================================================
// Controller
// =============================================================================

// Config configures a Controller.
type Config struct {
	// Resource names the entity in logs and metrics (e.g., "widgets").
	Resource string

	// Logger receives persistence faults. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *Metrics
}

// Controller runs the five CRUD operations for entities of type T keyed by K.
// It never returns errors: every outcome, including persistence faults, is
// reported through the envelope.
type Controller[K comparable, T domain.Entity[K]] struct {
	resource string
	logger   *slog.Logger
	metrics  *Metrics
}

// NewController creates a controller.
func NewController[K comparable, T domain.Entity[K]](cfg Config) *Controller[K, T] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller[K, T]{
		resource: cfg.Resource,
		logger:   cfg.Logger.With("resource", cfg.Resource),
		metrics:  cfg.Metrics,
	}
}

// Resource returns the configured resource name.
func (c *Controller[K, T]) Resource() string {
	return c.resource
}

// Create validates entity, stores it and commits.
func (c *Controller[K, T]) Create(ctx context.Context, uow store.UnitOfWork, entity T, validate validation.Validator[T]) (env response.Envelope[T]) {
	started := time.Now()

	if domain.IsAbsent(entity) {
		return c.reject(OpCreate, started, response.BadRequest[T](response.MessageNullEntity))
	}
	if r := validate.Validate(ctx, entity); !r.Passed() {
		return c.reject(OpCreate, started, rejected[T](r))
	}

	defer recoverFault(c, OpCreate, started, &env)

	repo, err := store.Resolve[store.Repository[K, T]](uow)
	if err == nil {
		err = repo.Create(ctx, entity)
	}
	if err == nil {
		err = uow.Commit(ctx)
	}
	if err != nil {
		return fault[T](c, OpCreate, started, err)
	}

	c.metrics.observe(c.resource, OpCreate, OutcomeOK, started)
	return response.OK(entity)
}

// Update checks that id names entity, validates it, stores it and commits.
func (c *Controller[K, T]) Update(ctx context.Context, uow store.UnitOfWork, id K, entity T, validate validation.Validator[T]) (env response.Envelope[T]) {
	started := time.Now()

	if domain.IsAbsent(entity) {
		return c.reject(OpUpdate, started, response.BadRequest[T](response.MessageNullEntity))
	}
	if entity.GetID() != id {
		return c.reject(OpUpdate, started, response.BadRequest[T](response.MessageIDMismatch))
	}
	if r := validate.Validate(ctx, entity); !r.Passed() {
		return c.reject(OpUpdate, started, rejected[T](r))
	}

	defer recoverFault(c, OpUpdate, started, &env)

	repo, err := store.Resolve[store.Repository[K, T]](uow)
	if err == nil {
		err = repo.Update(ctx, entity)
	}
	if err == nil {
		err = uow.Commit(ctx)
	}
	if err != nil {
		return fault[T](c, OpUpdate, started, err)
	}

	c.metrics.observe(c.resource, OpUpdate, OutcomeOK, started)
	return response.OK(entity)
}

// FetchMany returns every entity, or those matching spec when it is non-nil.
func (c *Controller[K, T]) FetchMany(ctx context.Context, uow store.UnitOfWork, spec domain.Specification[T], check validation.Check) (env response.Envelope[[]T]) {
	started := time.Now()

	if r := check.Validate(ctx); !r.Passed() {
		return c.rejectMany(started, rejected[[]T](r))
	}

	defer recoverFault(c, OpFetchMany, started, &env)

	var (
		entities []T
		err      error
	)
	if spec == nil {
		var repo store.Repository[K, T]
		if repo, err = store.Resolve[store.Repository[K, T]](uow); err == nil {
			entities, err = repo.GetAll(ctx)
		}
	} else {
		var repo store.SpecificationRepository[K, T]
		if repo, err = store.Resolve[store.SpecificationRepository[K, T]](uow); err == nil {
			entities, err = repo.GetBySpecification(ctx, spec)
		}
	}
	if err != nil {
		return fault[[]T](c, OpFetchMany, started, err)
	}

	c.metrics.observe(c.resource, OpFetchMany, OutcomeOK, started)
	return response.OK(entities)
}

// FetchOne returns the entity with key id. A missing entity is reported as
// BadRequest "Not Found".
func (c *Controller[K, T]) FetchOne(ctx context.Context, uow store.UnitOfWork, id K, validate validation.Validator[K]) (env response.Envelope[T]) {
	started := time.Now()

	if r := validate.Validate(ctx, id); !r.Passed() {
		return c.reject(OpFetchOne, started, rejected[T](r))
	}

	defer recoverFault(c, OpFetchOne, started, &env)

	repo, err := store.Resolve[store.Repository[K, T]](uow)
	if err != nil {
		return fault[T](c, OpFetchOne, started, err)
	}
	entity, err := repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && domain.IsAbsent(entity)) {
		return c.reject(OpFetchOne, started, response.BadRequest[T](response.MessageNotFound))
	}
	if err != nil {
		return fault[T](c, OpFetchOne, started, err)
	}

	c.metrics.observe(c.resource, OpFetchOne, OutcomeOK, started)
	return response.OK(entity)
}

// Delete removes the entity with key id and commits. Deleting a missing key
// succeeds.
func (c *Controller[K, T]) Delete(ctx context.Context, uow store.UnitOfWork, id K, validate validation.Validator[K]) (env response.Envelope[bool]) {
	started := time.Now()

	if r := validate.Validate(ctx, id); !r.Passed() {
		c.metrics.observe(c.resource, OpDelete, OutcomeRejected, started)
		return rejected[bool](r)
	}

	defer recoverFault(c, OpDelete, started, &env)

	repo, err := store.Resolve[store.Repository[K, T]](uow)
	if err == nil {
		err = repo.Delete(ctx, id)
	}
	if err == nil {
		err = uow.Commit(ctx)
	}
	if err != nil {
		return fault[bool](c, OpDelete, started, err, "id", fmt.Sprint(id))
	}

	c.metrics.observe(c.resource, OpDelete, OutcomeOK, started)
	return response.OK(true)
}

// =============================================================================
// Helpers
// =============================================================================

func (c *Controller[K, T]) reject(op string, started time.Time, e response.Envelope[T]) response.Envelope[T] {
	c.metrics.observe(c.resource, op, OutcomeRejected, started)
	return e
}

func (c *Controller[K, T]) rejectMany(started time.Time, e response.Envelope[[]T]) response.Envelope[[]T] {
	c.metrics.observe(c.resource, OpFetchMany, OutcomeRejected, started)
	return e
}

// fault logs a persistence error and hides it behind the fixed message.
func fault[V any, K comparable, T domain.Entity[K]](c *Controller[K, T], op string, started time.Time, err error, attrs ...any) response.Envelope[V] {
	c.metrics.observe(c.resource, op, OutcomeFault, started)
	c.logger.Error("persistence fault", append([]any{"operation", op, "error", err}, attrs...)...)
	return response.BadRequest[V](response.MessageDatabaseError)
}

// recoverFault reports a panic in a repository or commit call as a fault.
func recoverFault[V any, K comparable, T domain.Entity[K]](c *Controller[K, T], op string, started time.Time, env *response.Envelope[V]) {
	if r := recover(); r != nil {
		*env = fault[V](c, op, started, fmt.Errorf("panic: %v", r))
	}
}

// rejected converts a failed validation into an envelope. A rejection that
// claims StatusOK is reported as BadRequest so that OK always carries a value.
func rejected[V any](r validation.Result) response.Envelope[V] {
	status := r.Status
	if status == response.StatusOK || status == 0 {
		status = response.StatusBadRequest
	}
	return response.Fail[V](status, r.Message)
}
