package engine

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/artpar/crudkit/internal/core/domain"
	"github.com/artpar/crudkit/internal/shell/api"
	"github.com/artpar/crudkit/internal/shell/api/middleware"
	"github.com/artpar/crudkit/internal/shell/api/openapi"
	"github.com/artpar/crudkit/internal/shell/crud"
	"github.com/prometheus/client_golang/prometheus"
)

// Router kinds accepted by SetupConfig.Router.
const (
	RouterChi = "chi"
	RouterMux = "mux"
)

// SetupConfig holds configuration for the HTTP handler.
type SetupConfig struct {
	Backend *Backend

	// Root is the API mount path. Defaults to "api".
	Root string

	// Router selects the routing library. Defaults to RouterChi.
	Router string

	// AuthSecret enables bearer authentication on the API when set.
	AuthSecret []byte
	AuthIssuer string

	// Registry receives the CRUD metrics and is served on /metrics.
	// Metrics are disabled when nil.
	Registry *prometheus.Registry

	// ServerURL is advertised in the OpenAPI document when set.
	ServerURL string
	Version   string

	Logger *slog.Logger
}

// Setup creates the complete HTTP handler.
func Setup(cfg SetupConfig) (http.Handler, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Root == "" {
		cfg.Root = "api"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	var (
		metrics  *crud.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.Registry != nil {
		var err error
		if metrics, err = crud.NewMetrics(cfg.Registry); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		gatherer = cfg.Registry
	}

	provider := cfg.Backend.Provider()

	widgets := api.NewResource(api.ResourceConfig[int64, *domain.Widget]{
		Controller: crud.NewController[int64, *domain.Widget](crud.Config{
			Resource: ResourceWidgets,
			Logger:   cfg.Logger,
			Metrics:  metrics,
		}),
		Provider: provider,
		ParseID:  api.ParseInt64,
		Validators: api.Validators[int64, *domain.Widget]{
			Create: WidgetValidator,
			Update: WidgetValidator,
		},
		Query:       WidgetQuery,
		QueryParams: []string{"name", "max_price"},
		Logger:      cfg.Logger,
	})

	notes := api.NewResource(api.ResourceConfig[string, *domain.Note]{
		Controller: crud.NewController[string, *domain.Note](crud.Config{
			Resource: ResourceNotes,
			Logger:   cfg.Logger,
			Metrics:  metrics,
		}),
		Provider: provider,
		ParseID:  api.ParseString,
		Validators: api.Validators[string, *domain.Note]{
			Create: NoteValidator,
			Update: NoteValidator,
		},
		Query:       NoteQuery,
		QueryParams: []string{"title"},
		Logger:      cfg.Logger,
	})

	opts := []openapi.Option{
		openapi.WithTitle("crudkit API"),
		openapi.WithVersion(cfg.Version),
		openapi.WithBasePath(cfg.Root),
	}
	if cfg.ServerURL != "" {
		opts = append(opts, openapi.WithServer(cfg.ServerURL))
	}

	var auth func(http.Handler) http.Handler
	if len(cfg.AuthSecret) > 0 {
		auth = middleware.RequireAuthWith(middleware.AuthConfig{
			Secret: cfg.AuthSecret,
			Issuer: cfg.AuthIssuer,
			Logger: cfg.Logger,
		})
	}

	h := api.NewHandler(api.Config{
		Root:      cfg.Root,
		Resources: []api.Mounter{widgets, notes},
		Auth:      auth,
		Ping:      cfg.Backend.Ping,
		Gatherer:  gatherer,
		OpenAPI:   openapi.NewGenerator(opts...),
		Logger:    cfg.Logger,
	})

	switch cfg.Router {
	case "", RouterChi:
		return h.Routes(), nil
	case RouterMux:
		return h.MuxRoutes(), nil
	default:
		return nil, fmt.Errorf("unknown router %q", cfg.Router)
	}
}
