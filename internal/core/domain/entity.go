// Package domain contains the entity and specification contracts shared by the
// generic CRUD layer, plus the sample entities served by crudkit.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"reflect"
	"time"
)

// =============================================================================
// Entity
// =============================================================================

// Entity is any record identified by a primary key of type K.
// Identity is the key; no other invariants are imposed by the CRUD layer.
type Entity[K comparable] interface {
	GetID() K
}

// IDSetter is implemented by entities whose key is assigned on create,
// either by the database or by a key generator.
type IDSetter[K comparable] interface {
	SetID(id K)
}

// Timestamped is implemented by entities that record modification times.
// Backends call Touch before every write.
type Timestamped interface {
	Touch(now time.Time)
}

// IsAbsent reports whether an entity value is missing: a nil interface, or a
// nil pointer, map, slice or func stored in one.
//
// Example:
//
//	var w *Widget
//	IsAbsent(w) // true
func IsAbsent[T any](entity T) bool {
	v := reflect.ValueOf(&entity).Elem()
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return true
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}

// IsZeroKey reports whether a key is the zero value of its type.
func IsZeroKey[K comparable](id K) bool {
	var zero K
	return id == zero
}
