// Package auth provides the request authentication context and bearer token
// parsing shared by the server middleware and the client.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// =============================================================================
// Context Key
// =============================================================================

type contextKey string

const authContextKey contextKey = "auth"

// =============================================================================
// Types
// =============================================================================

// Context is the authentication state of a request.
type Context struct {
	// Subject is the token's "sub" claim.
	Subject string

	// Issuer is the token's "iss" claim, if any.
	Issuer string

	// Authenticated indicates whether a valid bearer token was presented.
	Authenticated bool
}

// =============================================================================
// Header Constants
// =============================================================================

const (
	// HeaderAuthorization carries the bearer token.
	HeaderAuthorization = "Authorization"

	// BearerPrefix precedes the token in the Authorization header.
	BearerPrefix = "Bearer "
)

// =============================================================================
// Bearer Tokens
// =============================================================================

// BearerToken extracts the token from an Authorization header value.
// Returns false if the header is not a non-empty bearer credential.
func BearerToken(header string) (string, bool) {
	if len(header) < len(BearerPrefix) || !strings.EqualFold(header[:len(BearerPrefix)], BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(BearerPrefix):])
	return token, token != ""
}

// FromRequest extracts the bearer token from r.
func FromRequest(r *http.Request) (string, bool) {
	return BearerToken(r.Header.Get(HeaderAuthorization))
}

// SetBearer sets the Authorization header on h.
func SetBearer(h http.Header, token string) {
	h.Set(HeaderAuthorization, BearerPrefix+token)
}

// =============================================================================
// Context Storage
// =============================================================================

// WithContext stores the auth context in the request context.
func WithContext(ctx context.Context, authCtx Context) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

// FromContext retrieves the auth context from the request context.
// If no auth context is found, returns an unauthenticated context.
func FromContext(ctx context.Context) Context {
	if authCtx, ok := ctx.Value(authContextKey).(Context); ok {
		return authCtx
	}
	return Context{Authenticated: false}
}

// RequireAuthentication checks if the context is authenticated.
// Returns (true, "") if authenticated, or (false, "authentication required") if not.
func RequireAuthentication(ctx Context) (bool, string) {
	if !ctx.Authenticated {
		return false, "authentication required"
	}
	return true, ""
}
