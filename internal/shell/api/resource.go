package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	"github.com/artpar/crudkit/internal/core/domain"
	"github.com/artpar/crudkit/internal/core/response"
	"github.com/artpar/crudkit/internal/core/validation"
	"github.com/artpar/crudkit/internal/shell/api/openapi"
	"github.com/artpar/crudkit/internal/shell/crud"
	"github.com/artpar/crudkit/internal/shell/store"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/mux"
)

// maxBodyBytes bounds request bodies for create and update.
const maxBodyBytes = 1 << 20

// =============================================================================
// Resource
// =============================================================================

// Mounter is a resource that can be attached to the server router.
type Mounter interface {
	Name() string
	Mount(r chi.Router)
	RegisterMux(r *mux.Router)
	Describe() openapi.ResourceInfo
}

// Validators holds the optional per-operation validators of a resource.
type Validators[K comparable, T domain.Entity[K]] struct {
	Create    validation.Validator[T]
	Update    validation.Validator[T]
	FetchMany validation.Check
	FetchOne  validation.Validator[K]
	Delete    validation.Validator[K]
}

// ResourceConfig configures a Resource.
type ResourceConfig[K comparable, T domain.Entity[K]] struct {
	// Controller runs the operations. Its Resource name is the route segment.
	Controller *crud.Controller[K, T]

	// Provider begins one unit of work per request.
	Provider store.Provider

	// ParseID converts the {id} path segment into a key.
	ParseID func(string) (K, error)

	Validators Validators[K, T]

	// Query builds the list specification from the request. A nil Query, or
	// a nil specification, lists everything.
	Query func(r *http.Request) (domain.Specification[T], error)

	// QueryParams documents the parameters Query reads.
	QueryParams []string

	Logger *slog.Logger
}

// Resource binds a controller to HTTP routes:
//
//	PUT    /{name}       create
//	GET    /{name}       list
//	GET    /{name}/{id}  fetch one
//	POST   /{name}/{id}  update
//	PUT    /{name}/{id}  update
//	DELETE /{name}/{id}  delete
type Resource[K comparable, T domain.Entity[K]] struct {
	cfg    ResourceConfig[K, T]
	logger *slog.Logger
}

// NewResource creates a resource binding.
func NewResource[K comparable, T domain.Entity[K]](cfg ResourceConfig[K, T]) *Resource[K, T] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resource[K, T]{
		cfg:    cfg,
		logger: cfg.Logger.With("resource", cfg.Controller.Resource()),
	}
}

// Name returns the route segment.
func (res *Resource[K, T]) Name() string {
	return res.cfg.Controller.Resource()
}

// Mount registers the routes on a chi router.
func (res *Resource[K, T]) Mount(r chi.Router) {
	idFrom := func(r *http.Request) string { return chi.URLParam(r, "id") }

	r.Route("/"+res.Name(), func(r chi.Router) {
		r.Put("/", res.handleCreate)
		r.Get("/", res.handleFetchMany)
		r.Get("/{id}", res.handleFetchOne(idFrom))
		r.Post("/{id}", res.handleUpdate(idFrom))
		r.Put("/{id}", res.handleUpdate(idFrom))
		r.Delete("/{id}", res.handleDelete(idFrom))
	})
}

// RegisterMux registers the routes on a gorilla/mux router.
func (res *Resource[K, T]) RegisterMux(r *mux.Router) {
	idFrom := func(r *http.Request) string { return mux.Vars(r)["id"] }
	base := "/" + res.Name()

	r.HandleFunc(base, res.handleCreate).Methods(http.MethodPut)
	r.HandleFunc(base, res.handleFetchMany).Methods(http.MethodGet)
	r.HandleFunc(base+"/{id}", res.handleFetchOne(idFrom)).Methods(http.MethodGet)
	r.HandleFunc(base+"/{id}", res.handleUpdate(idFrom)).Methods(http.MethodPost, http.MethodPut)
	r.HandleFunc(base+"/{id}", res.handleDelete(idFrom)).Methods(http.MethodDelete)
}

// Describe returns the OpenAPI description of the resource.
func (res *Resource[K, T]) Describe() openapi.ResourceInfo {
	var model T
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		model = reflect.New(t.Elem()).Interface().(T)
	}
	return openapi.ResourceInfo{
		Name:        res.Name(),
		Model:       model,
		KeyType:     reflect.TypeFor[K](),
		QueryParams: res.cfg.QueryParams,
	}
}

// =============================================================================
// Handlers
// =============================================================================

func (res *Resource[K, T]) handleCreate(w http.ResponseWriter, r *http.Request) {
	entity, ok := res.decode(w, r)
	if !ok {
		return
	}
	res.serve(w, r, func(uow store.UnitOfWork) response.Result {
		return response.ToResult(res.cfg.Controller.Create(r.Context(), uow, entity, res.cfg.Validators.Create))
	})
}

func (res *Resource[K, T]) handleFetchMany(w http.ResponseWriter, r *http.Request) {
	var spec domain.Specification[T]
	if res.cfg.Query != nil {
		var err error
		if spec, err = res.cfg.Query(r); err != nil {
			writeResult(w, response.Result{Code: http.StatusBadRequest, Message: err.Error()}, res.logger)
			return
		}
	}
	res.serve(w, r, func(uow store.UnitOfWork) response.Result {
		return response.ToResult(res.cfg.Controller.FetchMany(r.Context(), uow, spec, res.cfg.Validators.FetchMany))
	})
}

func (res *Resource[K, T]) handleFetchOne(idFrom func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := res.parseID(w, idFrom(r))
		if !ok {
			return
		}
		res.serve(w, r, func(uow store.UnitOfWork) response.Result {
			return response.ToResult(res.cfg.Controller.FetchOne(r.Context(), uow, id, res.cfg.Validators.FetchOne))
		})
	}
}

func (res *Resource[K, T]) handleUpdate(idFrom func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := res.parseID(w, idFrom(r))
		if !ok {
			return
		}
		entity, ok := res.decode(w, r)
		if !ok {
			return
		}
		res.serve(w, r, func(uow store.UnitOfWork) response.Result {
			return response.ToResult(res.cfg.Controller.Update(r.Context(), uow, id, entity, res.cfg.Validators.Update))
		})
	}
}

func (res *Resource[K, T]) handleDelete(idFrom func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := res.parseID(w, idFrom(r))
		if !ok {
			return
		}
		res.serve(w, r, func(uow store.UnitOfWork) response.Result {
			return response.ToResult(res.cfg.Controller.Delete(r.Context(), uow, id, res.cfg.Validators.Delete))
		})
	}
}

// =============================================================================
// Helpers
// =============================================================================

// serve runs op inside a fresh unit of work and writes its result.
func (res *Resource[K, T]) serve(w http.ResponseWriter, r *http.Request, op func(store.UnitOfWork) response.Result) {
	uow, err := res.cfg.Provider.Begin(r.Context())
	if err != nil {
		res.logger.Error("failed to begin unit of work", "path", r.URL.Path, "error", err)
		writeResult(w, response.Result{Code: http.StatusBadRequest, Message: response.MessageDatabaseError}, res.logger)
		return
	}
	defer func() {
		if err := uow.Close(); err != nil {
			res.logger.Warn("failed to close unit of work", "error", err)
		}
	}()

	writeResult(w, op(uow), res.logger)
}

// decode reads the JSON entity from the body. An empty body or a JSON null
// yields the absent entity so the controller can reject it.
func (res *Resource[K, T]) decode(w http.ResponseWriter, r *http.Request) (T, bool) {
	var entity T

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeResult(w, response.Result{Code: http.StatusBadRequest, Message: response.MessageInvalidRequest}, res.logger)
		return entity, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return entity, true
	}
	if err := json.Unmarshal(body, &entity); err != nil {
		writeResult(w, response.Result{Code: http.StatusBadRequest, Message: response.MessageInvalidRequest}, res.logger)
		return entity, false
	}
	return entity, true
}

func (res *Resource[K, T]) parseID(w http.ResponseWriter, raw string) (K, bool) {
	id, err := res.cfg.ParseID(raw)
	if err != nil {
		writeResult(w, response.Result{Code: http.StatusBadRequest, Message: fmt.Sprintf("invalid id %q", raw)}, res.logger)
		return id, false
	}
	return id, true
}

// writeResult renders a transport result: JSON for success, plain text for
// everything else.
func writeResult(w http.ResponseWriter, result response.Result, logger *slog.Logger) {
	if result.IsSuccess() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(result.Code)
		if err := json.NewEncoder(w).Encode(result.Value); err != nil {
			logger.Error("failed to encode JSON", "error", err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(result.Code)
	io.WriteString(w, result.Message)
}

// =============================================================================
// Key Parsers
// =============================================================================

// ErrEmptyID is returned by the key parsers for an empty path segment.
var ErrEmptyID = errors.New("empty id")

// ParseInt64 parses a decimal int64 key.
func ParseInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, ErrEmptyID
	}
	return strconv.ParseInt(raw, 10, 64)
}

// ParseString accepts any non-empty key.
func ParseString(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyID
	}
	return raw, nil
}
