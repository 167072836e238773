// Package engine wires the crudkit resources onto a storage backend and an
// HTTP handler. Resources are declared once here; the store registrations,
// routes, validators and OpenAPI description are all derived from them.
package engine

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/artpar/crudkit/internal/core/domain"
	"github.com/artpar/crudkit/internal/core/validation"
	"github.com/artpar/crudkit/internal/shell/store"
)

// Resource names, used as route segments and table names.
const (
	ResourceWidgets = "widgets"
	ResourceNotes   = "notes"
)

// ErrInvalidQuery is returned for unparseable list filters.
var ErrInvalidQuery = errors.New("invalid query")

// =============================================================================
// Tables
// =============================================================================

// WidgetTable lays out widgets; the key is assigned by the backend.
var WidgetTable = store.TableDef[int64]{
	Name:      ResourceWidgets,
	Columns:   []string{"name", "description", "price_cents", "created_at", "updated_at"},
	Immutable: []string{"created_at"},
}

// NoteTable lays out notes; missing keys are generated UUIDs.
var NoteTable = store.TableDef[string]{
	Name:    ResourceNotes,
	Columns: []string{"title", "body"},
	NewKey:  domain.NewNoteID,
}

// Capabilities lists every repository capability the resources resolve.
// Backends are verified against it at startup.
func Capabilities() []reflect.Type {
	return []reflect.Type{
		store.Capability[store.Repository[int64, *domain.Widget]](),
		store.Capability[store.SpecificationRepository[int64, *domain.Widget]](),
		store.Capability[store.Repository[string, *domain.Note]](),
		store.Capability[store.SpecificationRepository[string, *domain.Note]](),
	}
}

// =============================================================================
// Validators
// =============================================================================

// WidgetValidator checks widgets on create and update.
var WidgetValidator = validation.Entity(func(w *domain.Widget) error { return w.Validate() })

// NoteValidator checks notes on create and update.
var NoteValidator = validation.Entity(func(n *domain.Note) error { return n.Validate() })

// =============================================================================
// Queries
// =============================================================================

// WidgetQuery builds the widget list filter from ?name= and ?max_price=.
func WidgetQuery(r *http.Request) (domain.Specification[*domain.Widget], error) {
	q := r.URL.Query()

	var specs []domain.Specification[*domain.Widget]
	if name := strings.TrimSpace(q.Get("name")); name != "" {
		specs = append(specs, domain.WidgetNameContains(name))
	}
	if raw := q.Get("max_price"); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: max_price must be an integer", ErrInvalidQuery)
		}
		specs = append(specs, domain.WidgetPriceAtMost(price))
	}
	return domain.And(specs...), nil
}

// NoteQuery builds the note list filter from ?title=.
func NoteQuery(r *http.Request) (domain.Specification[*domain.Note], error) {
	title := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("title")))
	if title == "" {
		return nil, nil
	}
	return domain.Match(func(n *domain.Note) bool {
		return strings.Contains(strings.ToLower(n.Title), title)
	}), nil
}
