package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerAddress_String(t *testing.T) {
	addr := ServerAddress{Protocol: "http", Address: "localhost", Port: "8080"}
	assert.Equal(t, "http://localhost:8080", addr.String())
}

func TestBuild_IsPure(t *testing.T) {
	first := Build("https", "api.example.com", "443", "v1", "widgets")
	second := Build("https", "api.example.com", "443", "v1", "widgets")

	assert.Equal(t, first, second)
	assert.Equal(t, "https://api.example.com:443/v1/widgets", first)
}

func TestBuild_WithID(t *testing.T) {
	got := Build("https", "api.example.com", "443", "v1", "widgets", "7")
	assert.Equal(t, "https://api.example.com:443/v1/widgets/7", got)
}

func TestBuilder_Route(t *testing.T) {
	b := NewBuilder(ServerAddress{Protocol: "http", Address: "10.0.0.1", Port: "9090"}, "api", "notes")

	assert.Equal(t, "http://10.0.0.1:9090/api/notes", b.Route())
	assert.Equal(t, "http://10.0.0.1:9090/api/notes/abc", b.Route("abc"))
	assert.Equal(t, b.Route("abc"), b.Route("abc"))
}

func TestBuilder_NoValidation(t *testing.T) {
	b := NewBuilder(ServerAddress{}, "", "")
	assert.Equal(t, "://://", b.Route())
}
