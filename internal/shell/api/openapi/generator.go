// Package openapi generates an OpenAPI 3.0 description of the mounted CRUD
// resources by reflecting on their entity types.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces OpenAPI 3.0 specifications from registered resources.
type Generator struct {
	title       string
	version     string
	description string
	basePath    string
	servers     []string
	resources   []ResourceInfo
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// ResourceInfo describes one mounted resource.
type ResourceInfo struct {
	Name        string       // Controller route segment (e.g., "widgets")
	Model       any          // Entity value for schema extraction
	KeyType     reflect.Type // Primary key type, for the {id} parameter
	QueryParams []string     // Filters accepted by the list endpoint
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) {
		g.description = description
	}
}

// WithBasePath sets the API root every resource is mounted under.
func WithBasePath(path string) Option {
	return func(g *Generator) {
		g.basePath = "/" + strings.Trim(path, "/")
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:       "crudkit API",
		version:     "1.0.0",
		description: "Generic CRUD resources",
		basePath:    "/api",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// RegisterResource adds a resource to the generator for spec generation.
func (g *Generator) RegisterResource(info ResourceInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resources = append(g.resources, info)
	g.cachedSpec = nil
}

// Generate produces the complete OpenAPI 3.0 specification.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring write lock
	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
			SecuritySchemes: openapi3.SecuritySchemes{
				"bearer": &openapi3.SecuritySchemeRef{
					Value: openapi3.NewJWTSecurityScheme(),
				},
			},
		},
		Security: openapi3.SecurityRequirements{
			openapi3.NewSecurityRequirement().Authenticate("bearer"),
		},
	}

	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	for _, res := range g.resources {
		g.addResourceToSpec(spec, res)
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the OpenAPI specification.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Paths
// =============================================================================

// addResourceToSpec adds the collection and item paths for a resource.
func (g *Generator) addResourceToSpec(spec *openapi3.T, res ResourceInfo) {
	basePath := strings.TrimSuffix(g.basePath, "/") + "/" + res.Name
	schemaName := capitalize(singularize(res.Name))

	schema := g.extractSchema(res.Model)
	spec.Components.Schemas[schemaName] = schema
	entityRef := &openapi3.SchemaRef{Ref: "#/components/schemas/" + schemaName, Value: schema.Value}
	listSchema := openapi3.NewArraySchema()
	listSchema.Items = entityRef

	collection := &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "list" + capitalize(res.Name),
			Summary:     "List " + res.Name,
			Tags:        []string{capitalize(res.Name)},
			Parameters:  queryParameters(res.QueryParams),
			Responses:   responses("The matching "+res.Name, &openapi3.SchemaRef{Value: listSchema}),
		},
		Put: &openapi3.Operation{
			OperationID: "create" + schemaName,
			Summary:     "Create a " + singularize(res.Name),
			Tags:        []string{capitalize(res.Name)},
			RequestBody: requestBody(entityRef),
			Responses:   responses("The created "+singularize(res.Name), entityRef),
		},
	}
	spec.Paths.Set(basePath, collection)

	update := &openapi3.Operation{
		OperationID: "update" + schemaName,
		Summary:     "Update a " + singularize(res.Name) + "; the body id must match the path id",
		Tags:        []string{capitalize(res.Name)},
		RequestBody: requestBody(entityRef),
		Responses:   responses("The updated "+singularize(res.Name), entityRef),
	}
	push := *update
	push.OperationID = "replace" + schemaName

	item := &openapi3.PathItem{
		Parameters: openapi3.Parameters{
			&openapi3.ParameterRef{
				Value: openapi3.NewPathParameter("id").WithSchema(keySchema(res.KeyType)),
			},
		},
		Get: &openapi3.Operation{
			OperationID: "get" + schemaName,
			Summary:     "Get a " + singularize(res.Name),
			Tags:        []string{capitalize(res.Name)},
			Responses:   responses("The "+singularize(res.Name), entityRef),
		},
		Post: update,
		Put:  &push,
		Delete: &openapi3.Operation{
			OperationID: "delete" + schemaName,
			Summary:     "Delete a " + singularize(res.Name),
			Tags:        []string{capitalize(res.Name)},
			Responses:   responses("Always true", &openapi3.SchemaRef{Value: openapi3.NewBoolSchema()}),
		},
	}
	spec.Paths.Set(basePath+"/{id}", item)
}

func queryParameters(names []string) openapi3.Parameters {
	params := make(openapi3.Parameters, 0, len(names))
	for _, name := range names {
		params = append(params, &openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(name).WithSchema(openapi3.NewStringSchema()),
		})
	}
	return params
}

func requestBody(schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(schema),
	}
}

// responses documents the three outcomes every operation can have: a JSON
// value on 200 and a plain-text message on 400 or 404.
func responses(okDescription string, ok *openapi3.SchemaRef) *openapi3.Responses {
	text := openapi3.NewContentWithSchema(openapi3.NewStringSchema(), []string{"text/plain"})
	return openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().WithDescription(okDescription).WithJSONSchemaRef(ok),
		}),
		openapi3.WithStatus(http.StatusBadRequest, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().WithDescription("Validation or persistence failure").WithContent(text),
		}),
		openapi3.WithStatus(http.StatusNotFound, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().WithDescription("Not found").WithContent(text),
		}),
	)
}

func keySchema(t reflect.Type) *openapi3.Schema {
	if t == nil {
		return openapi3.NewStringSchema()
	}
	if s := goTypeToSchema(t); s != nil && s.Value != nil {
		return s.Value
	}
	return openapi3.NewStringSchema()
}

// =============================================================================
// Schema Generation
// =============================================================================

// extractSchema extracts an OpenAPI schema from a Go struct.
func (g *Generator) extractSchema(model any) *openapi3.SchemaRef {
	t := reflect.TypeOf(model)
	if t == nil {
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return structSchema(t)
}

func structSchema(t reflect.Type) *openapi3.SchemaRef {
	schema := openapi3.NewObjectSchema()
	schema.Properties = make(openapi3.Schemas)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		if tagName, _, _ := strings.Cut(jsonTag, ","); tagName != "" {
			name = tagName
		}

		if propSchema := goTypeToSchema(field.Type); propSchema != nil {
			schema.Properties[name] = propSchema
		}
	}

	return &openapi3.SchemaRef{Value: schema}
}

// goTypeToSchema converts a Go type to an OpenAPI schema.
func goTypeToSchema(t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: openapi3.NewStringSchema()}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: openapi3.NewInt32Schema()}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: openapi3.NewInt64Schema()}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: openapi3.NewIntegerSchema()}

	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: openapi3.NewFloat64Schema()}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: openapi3.NewBoolSchema()}

	case reflect.Slice, reflect.Array:
		items := goTypeToSchema(t.Elem())
		schema := openapi3.NewArraySchema()
		schema.Items = items
		return &openapi3.SchemaRef{Value: schema}

	case reflect.Map:
		schema := openapi3.NewObjectSchema()
		schema.AdditionalProperties = openapi3.AdditionalProperties{Schema: goTypeToSchema(t.Elem())}
		return &openapi3.SchemaRef{Value: schema}

	case reflect.Ptr:
		schema := goTypeToSchema(t.Elem())
		if schema != nil && schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return &openapi3.SchemaRef{Value: openapi3.NewDateTimeSchema()}
		}
		return structSchema(t)

	default:
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}
	}
}

// =============================================================================
// Helpers
// =============================================================================

// capitalize returns the string with the first letter capitalized.
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// singularize performs basic singularization (removes trailing 's').
func singularize(s string) string {
	if strings.HasSuffix(s, "ies") {
		return s[:len(s)-3] + "y"
	}
	if strings.HasSuffix(s, "sses") || strings.HasSuffix(s, "xes") {
		return s[:len(s)-2]
	}
	if strings.HasSuffix(s, "s") {
		return s[:len(s)-1]
	}
	return s
}
