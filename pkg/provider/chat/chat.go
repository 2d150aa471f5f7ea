package chat

import (
	"net/http"

	"github.com/rhuss/dolmetsch/pkg/provider"
)

// Adapter implements provider.Adapter for Chat Completions.
type Adapter struct{}

// Ensure Adapter implements provider.Adapter at compile time.
var _ provider.Adapter = Adapter{}

// New returns the Chat Completions adapter.
func New() Adapter { return Adapter{} }

// Kind returns provider.KindChat.
func (Adapter) Kind() provider.Kind { return provider.KindChat }

// Endpoint returns <base>/chat/completions.
func (Adapter) Endpoint(baseURL string) string {
	return provider.JoinURL(baseURL, "/chat/completions")
}

// Authorize sets a bearer token.
func (Adapter) Authorize(h http.Header, apiKey string) {
	h.Set("Authorization", "Bearer "+apiKey)
}
