// Package validation provides the optional validators that gate generic CRUD
// operations.
//
// A validator returns a tri-state Result {HasValue, Value, Status, Message}.
// Operations proceed only when both flags are true; otherwise the operation
// short-circuits with the validator's own status and message, so a validator
// can say why independently of the generic messaging.
//
// # Types
//
//   - Validator[A]: takes the entity (create/update) or the key (fetch-one/delete)
//   - Check: takes no argument (fetch-many)
//
// Both are function types whose nil value passes, so callers never need a
// separate nil check.
//
// # Usage
//
//	create := validation.Entity(func(w *domain.Widget) error { return w.Validate() })
//	if r := create.Validate(ctx, widget); !r.Passed() {
//	    // reply with r.Status / r.Message
//	}
package validation
