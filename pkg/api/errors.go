package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind represents the category of a dolmetsch error.
type Kind string

const (
	KindConfiguration     Kind = "configuration_error"
	KindAuthentication    Kind = "authentication_error"
	KindUnsupportedFormat Kind = "unsupported_format_error"
	KindNetwork           Kind = "network_error"
	KindTimeout           Kind = "timeout_error"
	KindAPI               Kind = "api_error"
	KindStream            Kind = "stream_error"
	KindAbort             Kind = "abort_error"
	KindNotImplemented    Kind = "not_implemented_error"
)

// Well-known error codes.
const (
	CodeWrongPassword      = "wrong_password"
	CodeMissingKeyMaterial = "missing_key_material"
	CodeMissingAPIKey      = "missing_api_key"
	CodeMissingSetting     = "missing_setting"
	CodeHTTPUnauthorized   = "http_unauthorized"
	CodeNoBody             = "no_body"
	CodeCorruptedRecord    = "corrupted_record"
	CodeProviderError      = "provider_error"
	CodeDuplicateRequestID = "duplicate_request_id"
)

// Error is a classified failure with kind, code, HTTP status and message.
type Error struct {
	Kind    Kind   `json:"type"`
	Code    string `json:"code,omitempty"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`

	// Err is the underlying cause, if any. It is not serialized.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. A target with a
// code only matches errors with that code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NewConfigurationError creates an error for a missing or invalid setting.
func NewConfigurationError(code, message string) *Error {
	return &Error{Kind: KindConfiguration, Code: code, Message: message}
}

// NewAuthenticationError creates an error for a wrong password or a
// rejected credential.
func NewAuthenticationError(code, message string) *Error {
	return &Error{Kind: KindAuthentication, Code: code, Message: message}
}

// NewUnsupportedFormatError creates an error for a malformed ciphertext
// envelope. The secret has to be entered again.
func NewUnsupportedFormatError(code, message string) *Error {
	return &Error{Kind: KindUnsupportedFormat, Code: code, Message: message}
}

// NewNetworkError creates an error for a transport failure.
func NewNetworkError(message string, cause error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Err: cause}
}

// NewTimeoutError creates an error for an exceeded deadline.
func NewTimeoutError(message string, cause error) *Error {
	return &Error{Kind: KindTimeout, Message: message, Err: cause}
}

// NewAPIError creates an error for a non-authentication HTTP failure.
func NewAPIError(status int, message string) *Error {
	return &Error{Kind: KindAPI, Status: status, Message: message}
}

// NewStreamError creates an error for a response without a readable body.
func NewStreamError(code, message string) *Error {
	return &Error{Kind: KindStream, Code: code, Message: message}
}

// NewAbortError creates an error for a caller-initiated cancellation.
func NewAbortError(message string, cause error) *Error {
	return &Error{Kind: KindAbort, Message: message, Err: cause}
}

// NewNotImplementedError creates an error for an unknown provider kind.
func NewNotImplementedError(message string) *Error {
	return &Error{Kind: KindNotImplemented, Message: message}
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Fatal reports whether err must be surfaced without retry or fallback.
func Fatal(err error) bool {
	switch KindOf(err) {
	case KindConfiguration, KindAuthentication, KindUnsupportedFormat, KindAbort, KindNotImplemented:
		return true
	}
	return false
}

// Retryable reports whether a failed attempt may be issued again.
// Unclassified errors are treated as transient.
func Retryable(err error) bool {
	if err == nil || Fatal(err) {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return true
	}
	if e.Kind != KindAPI {
		return true
	}
	switch {
	case e.Status == 0:
		return true
	case e.Status == http.StatusRequestTimeout, e.Status == http.StatusTooManyRequests:
		return true
	case e.Status >= 400 && e.Status < 500:
		return false
	}
	return true
}

// MapHTTPError converts a non-2xx response into an *Error. 401 and 403 map
// to authentication failures; everything else is an API error whose message
// keeps the start of the response body.
func MapHTTPError(status int, body []byte) *Error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		msg := ExtractErrorMessage(body)
		if msg == "" {
			msg = "provider rejected the credentials"
		}
		return &Error{Kind: KindAuthentication, Code: CodeHTTPUnauthorized, Status: status, Message: msg}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		text = http.StatusText(status)
	}
	return NewAPIError(status, fmt.Sprintf("API error: %d %s", status, Truncate(text, 200)))
}

// MapNetworkError classifies an error returned by an HTTP round trip or a
// body read. ctx is the context of the failed attempt: caller cancellation
// becomes an abort, an expired deadline becomes a timeout.
func MapNetworkError(ctx context.Context, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return NewAbortError("request cancelled", err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError("request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError("request timed out", err)
	}
	return NewNetworkError(fmt.Sprintf("network error: %s", err.Error()), err)
}

// ExtractErrorMessage tries to read a provider error message from a JSON
// body. Both {"error":{"message":...}} and {"message":...} are understood.
func ExtractErrorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &nested); err != nil {
		return ""
	}
	if nested.Error.Message != "" {
		return nested.Error.Message
	}
	return nested.Message
}

// ExtractErrorCode returns the structured error code of a provider error
// body ({"error":{"code":...}}), if any.
func ExtractErrorCode(body []byte) string {
	var nested struct {
		Error struct {
			Code any    `json:"code"`
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &nested); err != nil {
		return ""
	}
	if s, ok := nested.Error.Code.(string); ok && s != "" {
		return s
	}
	return nested.Error.Type
}

// Truncate limits a string to maxLen bytes, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
