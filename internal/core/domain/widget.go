package domain

import (
	"errors"
	"strings"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrNameRequired  = errors.New("name is required")
	ErrNameTooLong   = errors.New("name must be at most 100 characters")
	ErrPriceNegative = errors.New("price cannot be negative")
	ErrTitleRequired = errors.New("title is required")
)

// MaxNameLength bounds widget names.
const MaxNameLength = 100

// =============================================================================
// Widget
// =============================================================================

// Widget is the integer-keyed sample entity. Its key is assigned by the
// database on insert.
type Widget struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	PriceCents  int64     `json:"price_cents" db:"price_cents"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// GetID returns the widget key.
func (w *Widget) GetID() int64 { return w.ID }

// SetID assigns the widget key.
func (w *Widget) SetID(id int64) { w.ID = id }

// Touch stamps the modification time, and the creation time when unset.
func (w *Widget) Touch(now time.Time) {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
}

// NewWidget creates a validated widget.
func NewWidget(name, description string, priceCents int64) (*Widget, error) {
	w := &Widget{
		Name:        strings.TrimSpace(name),
		Description: description,
		PriceCents:  priceCents,
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Validate checks the widget's fields.
func (w *Widget) Validate() error {
	name := strings.TrimSpace(w.Name)
	if name == "" {
		return ErrNameRequired
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if w.PriceCents < 0 {
		return ErrPriceNegative
	}
	return nil
}

// =============================================================================
// Widget Specifications
// =============================================================================

// WidgetNameContains matches widgets whose name contains the given fragment,
// ignoring ASCII case. Other letters compare exactly, which is what sqlite's
// LOWER does. Postgres folds them too, so non-ASCII fragments can match
// differently there.
type WidgetNameContains string

// IsSatisfiedBy implements Specification.
func (s WidgetNameContains) IsSatisfiedBy(w *Widget) bool {
	return strings.Contains(asciiLower(w.Name), asciiLower(string(s)))
}

// Where implements SQLSpecification. LIKE wildcards in the fragment match
// themselves.
func (s WidgetNameContains) Where() (string, []any) {
	return `LOWER(name) LIKE ? ESCAPE '\'`, []any{"%" + likeEscaper.Replace(asciiLower(string(s))) + "%"}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// WidgetPriceAtMost matches widgets priced at or below the given amount.
type WidgetPriceAtMost int64

// IsSatisfiedBy implements Specification.
func (s WidgetPriceAtMost) IsSatisfiedBy(w *Widget) bool {
	return w.PriceCents <= int64(s)
}

// Where implements SQLSpecification.
func (s WidgetPriceAtMost) Where() (string, []any) {
	return "price_cents <= ?", []any{int64(s)}
}
