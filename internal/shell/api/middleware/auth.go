// Package middleware provides HTTP middleware for the crudkit API.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/artpar/crudkit/internal/core/auth"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("invalid bearer token")

// =============================================================================
// Auth Configuration
// =============================================================================

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Secret is the HS256 key bearer tokens are signed with.
	// If empty, tokens are not inspected and every request is unauthenticated.
	Secret []byte

	// Issuer, if set, must match the token's "iss" claim.
	Issuer string

	// Logger for auth middleware logging.
	Logger *slog.Logger
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware verifies bearer tokens and stores the resulting auth context
// in the request context.
type AuthMiddleware struct {
	config AuthConfig
}

// NewAuthMiddleware creates a new auth middleware with the given config.
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthMiddleware{config: cfg}
}

// Handler returns the middleware handler function.
// Requests without a token pass through unauthenticated; requests with a
// token that fails verification are rejected with 401.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.config.Secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := auth.FromRequest(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		authCtx, err := VerifyToken(m.config.Secret, m.config.Issuer, raw)
		if err != nil {
			m.config.Logger.Warn("rejected bearer token",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
				"error", err,
			)
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithContext(r.Context(), authCtx)))
	})
}

// VerifyToken checks an HS256 token's signature, expiry and issuer and
// returns the authenticated context it describes.
func VerifyToken(secret []byte, issuer, raw string) (auth.Context, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return secret, nil }, opts...)
	if err != nil {
		return auth.Context{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.Subject == "" {
		return auth.Context{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return auth.Context{
		Subject:       claims.Subject,
		Issuer:        claims.Issuer,
		Authenticated: true,
	}, nil
}

// =============================================================================
// Require Auth Middleware
// =============================================================================

// RequireAuth is a middleware that requires authentication.
// Must be used AFTER AuthMiddleware.
func RequireAuth(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ok, reason := auth.RequireAuthentication(auth.FromContext(r.Context())); !ok {
				logger.Warn("unauthenticated request to protected endpoint",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
					"reason", reason,
				)
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthWith verifies bearer tokens and rejects requests without a
// valid one.
func RequireAuthWith(cfg AuthConfig) func(http.Handler) http.Handler {
	verify := NewAuthMiddleware(cfg)
	require := RequireAuth(cfg.Logger)
	return func(next http.Handler) http.Handler {
		return verify.Handler(require(next))
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="crudkit"`)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}
