package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rhuss/dolmetsch/pkg/api"
)

// ErrorResponse is the JSON envelope of an error reply.
type ErrorResponse struct {
	Error *api.Error `json:"error"`
}

// AsAPIError returns err as *api.Error. Unclassified errors become API
// errors with status 500.
func AsAPIError(err error) *api.Error {
	var e *api.Error
	if errors.As(err, &e) {
		return e
	}
	return &api.Error{Kind: api.KindAPI, Status: http.StatusInternalServerError, Message: err.Error(), Err: err}
}

// HTTPStatusFromError maps an error to the HTTP status of the reply.
// Failures of the upstream provider are reported as gateway errors.
func HTTPStatusFromError(err error) int {
	e := AsAPIError(err)
	switch e.Kind {
	case api.KindConfiguration:
		if e.Code == api.CodeDuplicateRequestID {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case api.KindAuthentication:
		if e.Code == api.CodeWrongPassword {
			return http.StatusInternalServerError
		}
		return http.StatusBadGateway
	case api.KindUnsupportedFormat:
		return http.StatusInternalServerError
	case api.KindTimeout:
		return http.StatusGatewayTimeout
	case api.KindNetwork, api.KindStream:
		return http.StatusBadGateway
	case api.KindAbort:
		return http.StatusServiceUnavailable
	case api.KindNotImplemented:
		return http.StatusNotImplemented
	case api.KindAPI:
		if e.Status == http.StatusInternalServerError && e.Err != nil {
			return http.StatusInternalServerError
		}
		if e.Status == http.StatusTooManyRequests {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse writes a JSON error response with the given status.
func WriteErrorResponse(w http.ResponseWriter, err *api.Error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err})
}

// WriteError writes err, deriving the HTTP status from its kind.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorResponse(w, AsAPIError(err), HTTPStatusFromError(err))
}
