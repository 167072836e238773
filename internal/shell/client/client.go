// Package client provides the generic HTTP client for crudkit resources: one
// client per controller route, mirroring the five server operations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/crudkit/internal/core/auth"
	"github.com/artpar/crudkit/internal/core/route"
)

// ErrUnauthorized is returned before any request is sent when no bearer
// token is available.
var ErrUnauthorized = errors.New("unauthorized: no bearer token")

// StatusError reports a non-success response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
}

// Doer sends HTTP requests. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// sharedHTTPClient is used by every client built without its own Doer.
var sharedHTTPClient = &http.Client{Timeout: 30 * time.Second}

// maxErrorBody bounds how much of a failure body is kept as the message.
const maxErrorBody = 4 << 10

// =============================================================================
// Client
// =============================================================================

// Config holds client configuration.
type Config struct {
	Server     route.ServerAddress
	APIRoot    string // e.g., "api"
	Controller string // e.g., "widgets"

	// HTTPClient defaults to a process-wide *http.Client.
	HTTPClient Doer

	// Tokens supplies the bearer token for every request.
	Tokens TokenSource

	Logger *slog.Logger
}

// Client talks to one controller. TGet is the type the server returns and
// TPut the type sent on create and update.
type Client[TGet, TPut any] struct {
	doer   Doer
	routes route.Builder
	tokens TokenSource
	logger *slog.Logger
}

// New creates a client.
func New[TGet, TPut any](cfg Config) *Client[TGet, TPut] {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = sharedHTTPClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client[TGet, TPut]{
		doer:   cfg.HTTPClient,
		routes: route.NewBuilder(cfg.Server, cfg.APIRoot, cfg.Controller),
		tokens: cfg.Tokens,
		logger: cfg.Logger.With("controller", cfg.Controller),
	}
}

// NewSymmetric creates a client that sends and receives the same type.
func NewSymmetric[T any](cfg Config) *Client[T, T] {
	return New[T, T](cfg)
}

// Route returns the URL of the collection, or of one item when id is given.
func (c *Client[TGet, TPut]) Route(id ...string) string {
	return c.routes.Route(id...)
}

// =============================================================================
// Operations
// =============================================================================

// GetAll lists the collection. A non-success response yields a nil slice and
// a *StatusError.
func (c *Client[TGet, TPut]) GetAll(ctx context.Context) ([]TGet, error) {
	var out []TGet
	if err := c.call(ctx, http.MethodGet, c.routes.Route(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOne fetches one item. ok is false on a non-success response.
func (c *Client[TGet, TPut]) GetOne(ctx context.Context, id string) (entity TGet, ok bool, err error) {
	if err := c.call(ctx, http.MethodGet, c.routes.Route(id), nil, &entity); err != nil {
		var zero TGet
		return zero, false, err
	}
	return entity, true, nil
}

// Put creates an item.
func (c *Client[TGet, TPut]) Put(ctx context.Context, entity TPut) (TGet, error) {
	var out TGet
	if err := c.call(ctx, http.MethodPut, c.routes.Route(), entity, &out); err != nil {
		var zero TGet
		return zero, err
	}
	return out, nil
}

// Push updates the item with the given id.
func (c *Client[TGet, TPut]) Push(ctx context.Context, id string, entity TPut) (TGet, error) {
	var out TGet
	if err := c.call(ctx, http.MethodPut, c.routes.Route(id), entity, &out); err != nil {
		var zero TGet
		return zero, err
	}
	return out, nil
}

// Delete removes the item with the given id and reports whether the server
// answered with a 2xx status. The response body is not read.
func (c *Client[TGet, TPut]) Delete(ctx context.Context, id string) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, c.routes.Route(id), nil)
	if err != nil {
		return false, err
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return false, fmt.Errorf("send request: %w", err)
	}
	resp.Body.Close()

	return isSuccess(resp.StatusCode), nil
}

// =============================================================================
// Helpers
// =============================================================================

// call sends one request and decodes a successful JSON response into out.
func (c *Client[TGet, TPut]) call(ctx context.Context, method, url string, body, out any) error {
	req, err := c.newRequest(ctx, method, url, body)
	if err != nil {
		return err
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("request failed", "method", method, "url", url, "status", resp.StatusCode)
		return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// newRequest builds an authenticated request. It fails with ErrUnauthorized
// when no token is available.
func (c *Client[TGet, TPut]) newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	if c.tokens == nil {
		return nil, ErrUnauthorized
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if token == "" {
		return nil, ErrUnauthorized
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	auth.SetBearer(req.Header, token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
