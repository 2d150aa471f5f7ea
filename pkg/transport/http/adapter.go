package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/transport"
)

// Adapter serves the translation API over HTTP:
//
//	POST   /v1/translate       translate (JSON, or SSE with "stream": true)
//	DELETE /v1/translate/{id}  cancel a running translation
type Adapter struct {
	translator transport.Translator
	inflight   *transport.InFlightRegistry
	mux        *http.ServeMux
	config     Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 1 << 20, // 1 MB
	}
}

// NewAdapter creates an HTTP adapter around translator. RequestID and
// in-flight registration are always applied; further middleware wraps
// inside them in the given order.
func NewAdapter(translator transport.Translator, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	a := &Adapter{
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}
	chain := append([]transport.Middleware{transport.RequestID(), transport.InFlight(a.inflight)}, middlewares...)
	a.translator = transport.Chain(chain...)(translator)

	a.mux.HandleFunc("POST /v1/translate", a.handleTranslate)
	a.mux.HandleFunc("DELETE /v1/translate/{id}", a.handleCancel)
	return a
}

// InFlight returns the registry of running translations.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// Handler returns the http.Handler for this adapter.
func (a *Adapter) Handler() http.Handler {
	return a.mux
}

// handleTranslate handles POST /v1/translate. The request ID is taken from
// X-Request-ID or generated, and echoed in the response headers so a
// client can cancel a stream it started.
func (a *Adapter) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if !acceptsJSON(r.Header.Get("Content-Type")) {
		transport.WriteErrorResponse(w,
			api.NewConfigurationError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req transport.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewConfigurationError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewConfigurationError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = transport.NewRequestID()
	}
	w.Header().Set("X-Request-ID", id)
	ctx := transport.ContextWithRequestID(r.Context(), id)

	rw := newSSEResponseWriter(w, req.Streaming())
	if err := a.translator.Translate(ctx, &req, rw); err != nil {
		if rw.hasStartedStreaming() {
			rw.writeErrorEvent(transport.AsAPIError(err))
			return
		}
		transport.WriteError(w, err)
	}
}

// acceptsJSON reports whether a request Content-Type is empty or
// application/json, parameters such as charset allowed.
func acceptsJSON(ct string) bool {
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "application/json"
}

// handleCancel handles DELETE /v1/translate/{id}.
func (a *Adapter) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if a.inflight.Cancel(id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	transport.WriteErrorResponse(w,
		api.NewConfigurationError("not_found", "no running translation "+id),
		http.StatusNotFound,
	)
}
