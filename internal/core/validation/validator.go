package validation

import (
	"context"

	"github.com/artpar/crudkit/internal/core/response"
)

// =============================================================================
// Result
// =============================================================================

// Result is the tri-state outcome of a validator. A result passes only when
// HasValue and Value are both true; anything else is a rejection reported
// with the validator's own Status and Message.
type Result struct {
	HasValue bool
	Value    bool
	Status   response.Status
	Message  string
}

// Passed reports whether the result lets the operation proceed.
func (r Result) Passed() bool {
	return r.HasValue && r.Value
}

// Pass is the accepting result.
func Pass() Result {
	return Result{HasValue: true, Value: true, Status: response.StatusOK}
}

// Reject builds a rejection with the given status and message.
func Reject(status response.Status, message string) Result {
	return Result{HasValue: true, Value: false, Status: status, Message: message}
}

// RejectBadRequest builds a BadRequest rejection.
func RejectBadRequest(message string) Result {
	return Reject(response.StatusBadRequest, message)
}

// FromError passes on a nil error and rejects with BadRequest otherwise.
func FromError(err error) Result {
	if err == nil {
		return Pass()
	}
	return RejectBadRequest(err.Error())
}

// =============================================================================
// Validators
// =============================================================================

// Validator checks a single argument: an entity for create/update, or a key
// for fetch-one/delete. The nil Validator always passes.
type Validator[A any] func(ctx context.Context, arg A) Result

// Validate runs the validator, treating nil as Pass.
func (v Validator[A]) Validate(ctx context.Context, arg A) Result {
	if v == nil {
		return Pass()
	}
	return v(ctx, arg)
}

// Check is a validator that takes no argument, used by fetch-many.
// The nil Check always passes.
type Check func(ctx context.Context) Result

// Validate runs the check, treating nil as Pass.
func (c Check) Validate(ctx context.Context) Result {
	if c == nil {
		return Pass()
	}
	return c(ctx)
}

// Entity adapts an error-returning rule into a Validator that rejects with
// BadRequest and the error text.
//
// Example:
//
//	v := validation.Entity(func(w *domain.Widget) error { return w.Validate() })
func Entity[A any](rule func(A) error) Validator[A] {
	return func(_ context.Context, arg A) Result {
		return FromError(rule(arg))
	}
}

// All combines validators; the first rejection wins.
func All[A any](validators ...Validator[A]) Validator[A] {
	return func(ctx context.Context, arg A) Result {
		for _, v := range validators {
			if r := v.Validate(ctx, arg); !r.Passed() {
				return r
			}
		}
		return Pass()
	}
}
