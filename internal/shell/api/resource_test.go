package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/artpar/crudkit/internal/core/domain"
	"github.com/artpar/crudkit/internal/core/response"
	"github.com/artpar/crudkit/internal/core/validation"
	"github.com/artpar/crudkit/internal/shell/api/openapi"
	"github.com/artpar/crudkit/internal/shell/crud"
	"github.com/artpar/crudkit/internal/shell/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

var (
	widgetTable = store.TableDef[int64]{
		Name:      "widgets",
		Columns:   []string{"name", "description", "price_cents", "created_at", "updated_at"},
		Immutable: []string{"created_at"},
	}
	noteTable = store.TableDef[string]{
		Name:    "notes",
		Columns: []string{"title", "body"},
		NewKey:  domain.NewNoteID,
	}
)

func memoryProvider() store.Provider {
	db := store.NewMemoryDB()
	reg := store.NewRegistry[*store.MemorySession]()
	store.RegisterMemoryTable[int64, *domain.Widget](reg, widgetTable)
	store.RegisterMemoryTable[string, *domain.Note](reg, noteTable)
	return store.NewProvider(reg, db.Session)
}

// failingProvider cannot begin units of work.
type failingProvider struct{}

func (failingProvider) Begin(context.Context) (store.UnitOfWork, error) {
	return nil, errors.New("connection refused")
}

func widgetQuery(r *http.Request) (domain.Specification[*domain.Widget], error) {
	var specs []domain.Specification[*domain.Widget]
	if name := r.URL.Query().Get("name"); name != "" {
		specs = append(specs, domain.WidgetNameContains(name))
	}
	if raw := r.URL.Query().Get("max_price"); raw != "" {
		max, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.New("max_price must be an integer")
		}
		specs = append(specs, domain.WidgetPriceAtMost(max))
	}
	return domain.And(specs...), nil
}

func widgetResource(p store.Provider) *Resource[int64, *domain.Widget] {
	return NewResource(ResourceConfig[int64, *domain.Widget]{
		Controller: crud.NewController[int64, *domain.Widget](crud.Config{Resource: "widgets"}),
		Provider:   p,
		ParseID:    ParseInt64,
		Validators: Validators[int64, *domain.Widget]{
			Create: validation.Entity(func(w *domain.Widget) error { return w.Validate() }),
			Update: validation.Entity(func(w *domain.Widget) error { return w.Validate() }),
		},
		Query:       widgetQuery,
		QueryParams: []string{"name", "max_price"},
	})
}

func noteResource(p store.Provider) *Resource[string, *domain.Note] {
	return NewResource(ResourceConfig[string, *domain.Note]{
		Controller: crud.NewController[string, *domain.Note](crud.Config{Resource: "notes"}),
		Provider:   p,
		ParseID:    ParseString,
	})
}

func newTestServer(t *testing.T, p store.Provider, useMux bool) *httptest.Server {
	t.Helper()
	h := NewHandler(Config{
		Root:      "api",
		Resources: []Mounter{widgetResource(p), noteResource(p)},
		OpenAPI:   openapi.NewGenerator(),
	})
	routes := h.Routes()
	if useMux {
		routes = h.MuxRoutes()
	}
	srv := httptest.NewServer(routes)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(raw)
}

func decodeWidget(t *testing.T, body string) domain.Widget {
	t.Helper()
	var w domain.Widget
	require.NoError(t, json.Unmarshal([]byte(body), &w))
	return w
}

// forEachRouter runs the test against the chi and the mux routes.
func forEachRouter(t *testing.T, fn func(t *testing.T, srv *httptest.Server)) {
	for _, useMux := range []bool{false, true} {
		name := "chi"
		if useMux {
			name = "mux"
		}
		t.Run(name, func(t *testing.T) {
			fn(t, newTestServer(t, memoryProvider(), useMux))
		})
	}
}

// =============================================================================
// CRUD Round Trip
// =============================================================================

func TestResource_CreateThenFetch(t *testing.T) {
	forEachRouter(t, func(t *testing.T, srv *httptest.Server) {
		resp, body := do(t, srv, http.MethodPut, "/api/widgets", `{"name":"Sprocket","price_cents":250}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		created := decodeWidget(t, body)
		assert.Equal(t, int64(1), created.ID)
		assert.False(t, created.CreatedAt.IsZero())

		resp, body = do(t, srv, http.MethodGet, "/api/widgets/1", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Sprocket", decodeWidget(t, body).Name)

		resp, body = do(t, srv, http.MethodGet, "/api/widgets", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var list []domain.Widget
		require.NoError(t, json.Unmarshal([]byte(body), &list))
		assert.Len(t, list, 1)
	})
}

func TestResource_EmptyListIsArray(t *testing.T) {
	forEachRouter(t, func(t *testing.T, srv *httptest.Server) {
		resp, body := do(t, srv, http.MethodGet, "/api/widgets", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `[]`, body)
	})
}

func TestResource_UpdateViaPostAndPut(t *testing.T) {
	forEachRouter(t, func(t *testing.T, srv *httptest.Server) {
		do(t, srv, http.MethodPut, "/api/widgets", `{"name":"Sprocket","price_cents":250}`)

		resp, body := do(t, srv, http.MethodPost, "/api/widgets/1", `{"id":1,"name":"Gear","price_cents":300}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.Equal(t, "Gear", decodeWidget(t, body).Name)

		resp, body = do(t, srv, http.MethodPut, "/api/widgets/1", `{"id":1,"name":"Cog","price_cents":300}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)

		_, body = do(t, srv, http.MethodGet, "/api/widgets/1", "")
		assert.Equal(t, "Cog", decodeWidget(t, body).Name)
	})
}

func TestResource_Delete(t *testing.T) {
	forEachRouter(t, func(t *testing.T, srv *httptest.Server) {
		do(t, srv, http.MethodPut, "/api/widgets", `{"name":"Sprocket"}`)

		resp, body := do(t, srv, http.MethodDelete, "/api/widgets/1", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "true", strings.TrimSpace(body))

		resp, body = do(t, srv, http.MethodGet, "/api/widgets/1", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, response.MessageNotFound, body)

		// Deleting again is still a success.
		resp, _ = do(t, srv, http.MethodDelete, "/api/widgets/1", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestResource_StringKeys(t *testing.T) {
	forEachRouter(t, func(t *testing.T, srv *httptest.Server) {
		resp, body := do(t, srv, http.MethodPut, "/api/notes", `{"title":"hello","body":"world"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)

		var note domain.Note
		require.NoError(t, json.Unmarshal([]byte(body), &note))
		require.NotEmpty(t, note.ID)

		resp, body = do(t, srv, http.MethodGet, "/api/notes/"+note.ID, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `"title":"hello"`)
	})
}

// =============================================================================
// Rejections
// =============================================================================

func TestResource_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		message string
	}{
		{"null body", http.MethodPut, "/api/widgets", `null`, response.MessageNullEntity},
		{"empty body", http.MethodPut, "/api/widgets", ``, response.MessageNullEntity},
		{"malformed body", http.MethodPut, "/api/widgets", `{"name":`, response.MessageInvalidRequest},
		{"validator veto", http.MethodPut, "/api/widgets", `{"name":"  "}`, domain.ErrNameRequired.Error()},
		{"id mismatch", http.MethodPost, "/api/widgets/2", `{"id":1,"name":"x"}`, response.MessageIDMismatch},
		{"invalid id", http.MethodGet, "/api/widgets/abc", ``, `invalid id "abc"`},
		{"missing entity", http.MethodGet, "/api/widgets/42", ``, response.MessageNotFound},
		{"update missing entity", http.MethodPost, "/api/widgets/42", `{"id":42,"name":"x"}`, response.MessageDatabaseError},
		{"bad query", http.MethodGet, "/api/widgets?max_price=cheap", ``, "max_price must be an integer"},
	}

	forEachRouter(t, func(t *testing.T, srv *httptest.Server) {
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp, body := do(t, srv, tt.method, tt.path, tt.body)

				assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
				assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
				assert.Equal(t, tt.message, body)
			})
		}
	})
}

func TestResource_BeginFailure(t *testing.T) {
	srv := newTestServer(t, failingProvider{}, false)

	resp, body := do(t, srv, http.MethodGet, "/api/widgets", "")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, response.MessageDatabaseError, body)
}

// =============================================================================
// Query Specifications
// =============================================================================

func TestResource_ListWithQuery(t *testing.T) {
	forEachRouter(t, func(t *testing.T, srv *httptest.Server) {
		do(t, srv, http.MethodPut, "/api/widgets", `{"name":"Blue Sprocket","price_cents":100}`)
		do(t, srv, http.MethodPut, "/api/widgets", `{"name":"Red Gear","price_cents":900}`)
		do(t, srv, http.MethodPut, "/api/widgets", `{"name":"sprocket mini","price_cents":50}`)

		tests := []struct {
			query string
			want  []string
		}{
			{"?name=sprocket", []string{"Blue Sprocket", "sprocket mini"}},
			{"?max_price=100", []string{"Blue Sprocket", "sprocket mini"}},
			{"?name=sprocket&max_price=60", []string{"sprocket mini"}},
			{"?name=nothing", []string{}},
		}
		for _, tt := range tests {
			resp, body := do(t, srv, http.MethodGet, "/api/widgets"+tt.query, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var list []domain.Widget
			require.NoError(t, json.Unmarshal([]byte(body), &list))
			names := make([]string, 0, len(list))
			for _, w := range list {
				names = append(names, w.Name)
			}
			assert.Equal(t, tt.want, names, tt.query)
		}
	})
}

// =============================================================================
// Server Routes
// =============================================================================

func TestHandler_Health(t *testing.T) {
	forEachRouter(t, func(t *testing.T, srv *httptest.Server) {
		resp, body := do(t, srv, http.MethodGet, "/health", "")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"status":"healthy"}`, body)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})
}

func TestHandler_ReadyReportsPingFailure(t *testing.T) {
	h := NewHandler(Config{
		Ping: func(context.Context) error { return errors.New("database is locked") },
	})
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var ready ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "not_ready", ready.Status)
	assert.Equal(t, "failed", ready.Checks["database"])
}

func TestHandler_OpenAPIDescribesResources(t *testing.T) {
	forEachRouter(t, func(t *testing.T, srv *httptest.Server) {
		resp, body := do(t, srv, http.MethodGet, "/openapi.json", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var doc struct {
			Paths map[string]any `json:"paths"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &doc))
		assert.Contains(t, doc.Paths, "/api/widgets")
		assert.Contains(t, doc.Paths, "/api/widgets/{id}")
		assert.Contains(t, doc.Paths, "/api/notes/{id}")
	})
}

func TestHandler_AuthWrapsOnlyTheAPI(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
	h := NewHandler(Config{
		Root:      "/v1/",
		Resources: []Mounter{widgetResource(memoryProvider())},
		Auth:      deny,
	})

	for _, routes := range []http.Handler{h.Routes(), h.MuxRoutes()} {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/widgets", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = httptest.NewRecorder()
		routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

// =============================================================================
// Key Parsers
// =============================================================================

func TestParseInt64(t *testing.T) {
	id, err := ParseInt64("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = ParseInt64("")
	assert.ErrorIs(t, err, ErrEmptyID)

	_, err = ParseInt64("4x")
	assert.Error(t, err)
}

func TestParseString(t *testing.T) {
	id, err := ParseString("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	_, err = ParseString("")
	assert.ErrorIs(t, err, ErrEmptyID)
}
