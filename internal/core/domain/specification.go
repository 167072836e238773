package domain

import "strings"

// =============================================================================
// Specification
// =============================================================================

// Specification is an opaque query over entities of type T. It is owned by
// the caller and only read by repositories.
type Specification[T any] interface {
	IsSatisfiedBy(entity T) bool
}

// SQLSpecification is a Specification that can also be pushed down to a SQL
// backend as a WHERE clause with "?" placeholders.
type SQLSpecification[T any] interface {
	Specification[T]
	Where() (clause string, args []any)
}

// Match builds a predicate-only specification.
//
// Example:
//
//	cheap := Match(func(w *Widget) bool { return w.PriceCents < 500 })
func Match[T any](fn func(T) bool) Specification[T] {
	return predicate[T](fn)
}

type predicate[T any] func(T) bool

func (p predicate[T]) IsSatisfiedBy(entity T) bool {
	return p(entity)
}

// Filter returns the entities satisfied by spec, preserving order.
// A nil spec matches everything.
func Filter[T any](entities []T, spec Specification[T]) []T {
	if spec == nil {
		return entities
	}
	out := make([]T, 0, len(entities))
	for _, e := range entities {
		if spec.IsSatisfiedBy(e) {
			out = append(out, e)
		}
	}
	return out
}

// And combines specifications; nil parts are dropped. The result can be
// pushed down to SQL when every part can.
func And[T any](specs ...Specification[T]) Specification[T] {
	parts := make([]Specification[T], 0, len(specs))
	for _, s := range specs {
		if s != nil {
			parts = append(parts, s)
		}
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}

	clauses := make([]SQLSpecification[T], 0, len(parts))
	for _, p := range parts {
		sp, ok := p.(SQLSpecification[T])
		if !ok {
			return conjunction[T](parts)
		}
		clauses = append(clauses, sp)
	}
	return sqlConjunction[T](clauses)
}

type conjunction[T any] []Specification[T]

func (c conjunction[T]) IsSatisfiedBy(entity T) bool {
	for _, s := range c {
		if !s.IsSatisfiedBy(entity) {
			return false
		}
	}
	return true
}

type sqlConjunction[T any] []SQLSpecification[T]

func (c sqlConjunction[T]) IsSatisfiedBy(entity T) bool {
	for _, s := range c {
		if !s.IsSatisfiedBy(entity) {
			return false
		}
	}
	return true
}

func (c sqlConjunction[T]) Where() (string, []any) {
	clauses := make([]string, 0, len(c))
	var args []any
	for _, s := range c {
		clause, a := s.Where()
		clauses = append(clauses, "("+clause+")")
		args = append(args, a...)
	}
	return strings.Join(clauses, " AND "), args
}
