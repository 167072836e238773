package client

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies bearer tokens. An empty token means none is available.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// TokenFunc adapts a function into a TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// SignedTokenSource mints short-lived HS256 tokens from a shared secret.
type SignedTokenSource struct {
	secret  []byte
	subject string
	issuer  string
	ttl     time.Duration
	now     func() time.Time
}

// NewSignedTokenSource creates a token source. A zero ttl means five minutes.
func NewSignedTokenSource(secret []byte, subject, issuer string, ttl time.Duration) *SignedTokenSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SignedTokenSource{
		secret:  secret,
		subject: subject,
		issuer:  issuer,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Token implements TokenSource.
func (s *SignedTokenSource) Token(context.Context) (string, error) {
	if len(s.secret) == 0 {
		return "", nil
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   s.subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
