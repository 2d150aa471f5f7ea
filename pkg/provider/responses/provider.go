package responses

import (
	"net/http"

	"github.com/rhuss/dolmetsch/pkg/provider"
)

// Adapter implements provider.Adapter for the Responses API.
type Adapter struct{}

// Ensure Adapter implements provider.Adapter at compile time.
var _ provider.Adapter = Adapter{}

// New returns the Responses adapter.
func New() Adapter { return Adapter{} }

// Kind returns provider.KindResponses.
func (Adapter) Kind() provider.Kind { return provider.KindResponses }

// Endpoint returns <base>/responses.
func (Adapter) Endpoint(baseURL string) string {
	return provider.JoinURL(baseURL, "/responses")
}

// Authorize sets a bearer token.
func (Adapter) Authorize(h http.Header, apiKey string) {
	h.Set("Authorization", "Bearer "+apiKey)
}
