// Package route builds the URLs used by generic CRUD clients.
// This is part of the Functional Core - all functions are pure with no I/O.
package route

import "strings"

// ServerAddress identifies the server a client talks to.
type ServerAddress struct {
	Protocol string `mapstructure:"protocol"`
	Address  string `mapstructure:"address"`
	Port     string `mapstructure:"port"`
}

// String renders "{protocol}://{address}:{port}".
func (a ServerAddress) String() string {
	return a.Protocol + "://" + a.Address + ":" + a.Port
}

// Builder composes routes for one controller.
// Output is plain string composition; identical inputs give identical URLs.
type Builder struct {
	server          ServerAddress
	apiRoute        string
	controllerRoute string
}

// NewBuilder creates a route builder for a controller.
func NewBuilder(server ServerAddress, apiRoute, controllerRoute string) Builder {
	return Builder{
		server:          server,
		apiRoute:        apiRoute,
		controllerRoute: controllerRoute,
	}
}

// Route returns the collection route, or the item route when an id is given.
//
// Example:
//
//	b := NewBuilder(ServerAddress{"https", "api.example.com", "443"}, "v1", "widgets")
//	b.Route()    // https://api.example.com:443/v1/widgets
//	b.Route("7") // https://api.example.com:443/v1/widgets/7
func (b Builder) Route(id ...string) string {
	var sb strings.Builder
	sb.WriteString(b.server.String())
	sb.WriteString("/")
	sb.WriteString(b.apiRoute)
	sb.WriteString("/")
	sb.WriteString(b.controllerRoute)
	for _, segment := range id {
		sb.WriteString("/")
		sb.WriteString(segment)
	}
	return sb.String()
}

// Build is the functional form of NewBuilder(...).Route(id...).
func Build(protocol, address, port, apiRoute, controllerRoute string, id ...string) string {
	return NewBuilder(ServerAddress{Protocol: protocol, Address: address, Port: port}, apiRoute, controllerRoute).Route(id...)
}
