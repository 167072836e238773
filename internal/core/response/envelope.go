// Package response defines the result envelope returned by every generic CRUD
// operation and its translation to a transport-level result.
// This is part of the Functional Core - all functions are pure with no I/O.
package response

import "net/http"

// =============================================================================
// Status
// =============================================================================

// Status classifies an operation outcome. Values mirror HTTP status codes so
// validators can hand back any code they like.
type Status int

const (
	StatusOK         Status = http.StatusOK
	StatusBadRequest Status = http.StatusBadRequest
	StatusNotFound   Status = http.StatusNotFound
)

// String returns the HTTP reason phrase for the status.
func (s Status) String() string {
	if text := http.StatusText(int(s)); text != "" {
		return text
	}
	return "Unknown"
}

// Fixed envelope messages.
const (
	MessageSuccess        = "Success"
	MessageNullEntity     = "Null Entity was given"
	MessageIDMismatch     = "Entity's Id did not match"
	MessageNotFound       = "Not Found"
	MessageDatabaseError  = "DataBase Error"
	MessageInvalidRequest = "Invalid request body"
)

// =============================================================================
// Envelope
// =============================================================================

// Envelope is the immutable result of one operation. It carries a value only
// when the status is StatusOK.
type Envelope[T any] struct {
	status   Status
	message  string
	value    T
	hasValue bool
}

// OK builds a success envelope carrying value.
func OK[T any](value T) Envelope[T] {
	return Envelope[T]{status: StatusOK, message: MessageSuccess, value: value, hasValue: true}
}

// Fail builds an envelope with no value. A StatusOK passed here still carries
// no value, so Fail is only meant for rejections.
func Fail[T any](status Status, message string) Envelope[T] {
	return Envelope[T]{status: status, message: message}
}

// BadRequest builds a client-error envelope.
func BadRequest[T any](message string) Envelope[T] {
	return Fail[T](StatusBadRequest, message)
}

// NotFound builds a not-found envelope.
func NotFound[T any](message string) Envelope[T] {
	return Fail[T](StatusNotFound, message)
}

// Status returns the status classification.
func (e Envelope[T]) Status() Status { return e.status }

// Message returns the human-readable message.
func (e Envelope[T]) Message() string { return e.message }

// Value returns the payload and whether one is present.
func (e Envelope[T]) Value() (T, bool) { return e.value, e.hasValue }

// IsOK reports whether the envelope is a success.
func (e Envelope[T]) IsOK() bool { return e.status == StatusOK && e.hasValue }
