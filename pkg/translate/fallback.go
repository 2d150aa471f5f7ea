package translate

import (
	"net/http"
	"regexp"

	"github.com/rhuss/dolmetsch/pkg/api"
)

// unsupportedEndpoint matches the error texts providers return when they do
// not implement the Responses API.
var unsupportedEndpoint = regexp.MustCompile(`(?i)(Invalid value: 'text'|404|not found|Unknown endpoint)`)

// IsFallbackSignal reports whether a failed Responses call should be
// repeated with Chat Completions. Authentication failures never qualify.
func IsFallbackSignal(status int, body []byte) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return false
	}
	switch api.ExtractErrorCode(body) {
	case "unknown_url", "not_found":
		return true
	}
	if status == http.StatusNotFound {
		return true
	}
	return unsupportedEndpoint.Match(body)
}
