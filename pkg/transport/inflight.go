package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/rhuss/dolmetsch/pkg/api"
)

// InFlightRegistry tracks in-flight translations for explicit
// cancellation. It maps request IDs to their cancel functions, allowing
// a DELETE request or a server shutdown to abort a running stream.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		entries: make(map[string]context.CancelFunc),
	}
}

// Register adds an in-flight request to the registry. It returns false and
// leaves the registry unchanged when id is already running.
func (r *InFlightRegistry) Register(id string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return false
	}
	r.entries[id] = cancel
	return true
}

// Cancel cancels an in-flight request by calling its cancel function.
// Returns false if the ID is not registered (already completed or never
// existed).
func (r *InFlightRegistry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.entries[id]
	if !ok {
		return false
	}
	cancel()
	delete(r.entries, id)
	return true
}

// CancelAll cancels every registered request and returns how many there
// were.
func (r *InFlightRegistry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	for id, cancel := range r.entries {
		cancel()
		delete(r.entries, id)
	}
	return n
}

// Len returns the number of registered requests.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Remove removes a request from the registry without cancelling it.
func (r *InFlightRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// InFlight returns middleware that registers each request under its
// request ID for the duration of the call. Place it after RequestID.
// A request whose ID is already running is rejected with a 409 conflict.
func InFlight(reg *InFlightRegistry) Middleware {
	return func(next Translator) Translator {
		return TranslatorFunc(func(ctx context.Context, req *Request, w ResponseWriter) error {
			id := RequestIDFromContext(ctx)
			if id == "" {
				return next.Translate(ctx, req, w)
			}
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			if !reg.Register(id, cancel) {
				return &api.Error{
					Kind:    api.KindConfiguration,
					Code:    api.CodeDuplicateRequestID,
					Status:  http.StatusConflict,
					Message: "a translation with request ID " + id + " is already running",
				}
			}
			defer reg.Remove(id)
			return next.Translate(ctx, req, w)
		})
	}
}
