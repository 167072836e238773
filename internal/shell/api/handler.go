// Package api exposes CRUD resources over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/artpar/crudkit/internal/shell/api/openapi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// Handler
// =============================================================================

// Config configures the server router.
type Config struct {
	// Root is the path every resource is mounted under (e.g., "api").
	Root string

	Resources []Mounter

	// Auth wraps the API routes. Optional.
	Auth func(http.Handler) http.Handler

	// Ping reports backend health for /ready. Optional.
	Ping func(ctx context.Context) error

	// Gatherer is served on /metrics when set.
	Gatherer prometheus.Gatherer

	// OpenAPI is served on /openapi.json when set. Every resource is
	// registered with it.
	OpenAPI *openapi.Generator

	Logger *slog.Logger
}

// Handler serves the CRUD resources plus health, metrics and OpenAPI routes.
type Handler struct {
	cfg    Config
	logger *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OpenAPI != nil {
		for _, res := range cfg.Resources {
			cfg.OpenAPI.RegisterResource(res.Describe())
		}
	}
	return &Handler{cfg: cfg, logger: cfg.Logger}
}

// APIRoot returns the mount path of the resources, with a leading slash.
func (h *Handler) APIRoot() string {
	return "/" + strings.Trim(h.cfg.Root, "/")
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	if h.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if h.cfg.OpenAPI != nil {
		r.Get("/openapi.json", h.cfg.OpenAPI.Handler())
	}

	r.Route(h.APIRoot(), func(r chi.Router) {
		if h.cfg.Auth != nil {
			r.Use(h.cfg.Auth)
		}
		for _, res := range h.cfg.Resources {
			res.Mount(r)
			h.logger.Debug("mounted resource", "resource", res.Name(), "path", h.APIRoot()+"/"+res.Name())
		}
	})

	return r
}

// MuxRoutes returns the same routes on a gorilla/mux router.
func (h *Handler) MuxRoutes() http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, h.requestIDHeader)

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.handleReady).Methods(http.MethodGet)

	if h.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if h.cfg.OpenAPI != nil {
		r.HandleFunc("/openapi.json", h.cfg.OpenAPI.Handler()).Methods(http.MethodGet)
	}

	sub := r.PathPrefix(h.APIRoot()).Subrouter()
	if h.cfg.Auth != nil {
		sub.Use(h.cfg.Auth)
	}
	for _, res := range h.cfg.Resources {
		res.RegisterMux(sub)
	}

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}

	if h.cfg.Ping != nil {
		if err := h.cfg.Ping(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			checks["database"] = "failed"
			h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
				Status: "not_ready",
				Checks: checks,
			})
			return
		}
	}

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}
