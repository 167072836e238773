package response

import "net/http"

// Result is the transport-level rendering of an envelope: an HTTP status code
// plus either a JSON value (success) or a plain-text message (failure).
type Result struct {
	Code    int
	Value   any
	Message string
}

// IsSuccess reports whether the result carries a value.
func (r Result) IsSuccess() bool {
	return r.Code == http.StatusOK
}

// ToResult maps an envelope onto a transport result.
// OK carries the value, BadRequest and NotFound carry the message, and any
// other classification falls back to BadRequest.
func ToResult[T any](e Envelope[T]) Result {
	switch e.Status() {
	case StatusOK:
		v, _ := e.Value()
		return Result{Code: http.StatusOK, Value: v}
	case StatusNotFound:
		return Result{Code: http.StatusNotFound, Message: e.Message()}
	default:
		return Result{Code: http.StatusBadRequest, Message: e.Message()}
	}
}
