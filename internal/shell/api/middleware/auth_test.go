package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/artpar/crudkit/internal/core/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

var testSecret = []byte("test-secret")

// testHandler is a simple handler that returns the auth context from request.
func testHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"authenticated": ctx.Authenticated,
			"subject":       ctx.Subject,
		})
	})
}

func signToken(t *testing.T, secret []byte, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "crudkit",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func serve(t *testing.T, h http.Handler, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
	if token != "" {
		auth.SetBearer(req.Header, token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	}
	return rec, body
}

// =============================================================================
// AuthMiddleware Tests
// =============================================================================

func TestAuthMiddleware_NoSecret_PassesThrough(t *testing.T) {
	h := NewAuthMiddleware(AuthConfig{}).Handler(testHandler())

	rec, body := serve(t, h, "garbage")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["authenticated"])
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	h := NewAuthMiddleware(AuthConfig{Secret: testSecret, Issuer: "crudkit"}).Handler(testHandler())

	rec, body := serve(t, h, signToken(t, testSecret, validClaims()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "user-1", body["subject"])
}

func TestAuthMiddleware_MissingToken_Unauthenticated(t *testing.T) {
	h := NewAuthMiddleware(AuthConfig{Secret: testSecret}).Handler(testHandler())

	rec, body := serve(t, h, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["authenticated"])
}

func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"

	noSubject := validClaims()
	noSubject.Subject = ""

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, []byte("other"), validClaims())},
		{"expired", signToken(t, testSecret, expired)},
		{"wrong issuer", signToken(t, testSecret, wrongIssuer)},
		{"no subject", signToken(t, testSecret, noSubject)},
		{"malformed", "not.a.jwt"},
	}

	h := NewAuthMiddleware(AuthConfig{Secret: testSecret, Issuer: "crudkit"}).Handler(testHandler())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := serve(t, h, tt.token)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Unauthorized", strings.TrimSpace(rec.Body.String()))
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
		})
	}
}

func TestVerifyToken_RejectsNoneAlgorithm(t *testing.T) {
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = VerifyToken(testSecret, "", unsigned)

	assert.ErrorIs(t, err, ErrInvalidToken)
}

// =============================================================================
// RequireAuth Tests
// =============================================================================

func TestRequireAuth(t *testing.T) {
	h := NewAuthMiddleware(AuthConfig{Secret: testSecret}).Handler(RequireAuth(nil)(testHandler()))

	rec, _ := serve(t, h, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := serve(t, h, signToken(t, testSecret, validClaims()))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", body["subject"])
}

func TestRequireAuthWith(t *testing.T) {
	h := RequireAuthWith(AuthConfig{Secret: testSecret})(testHandler())

	rec, _ := serve(t, h, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = serve(t, h, signToken(t, []byte("other"), validClaims()))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := serve(t, h, signToken(t, testSecret, validClaims()))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["authenticated"])
}
