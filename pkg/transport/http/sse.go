package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/transport"
)

// SSE event names of a streamed translation.
const (
	EventDelta     = "translation.delta"
	EventCompleted = "translation.completed"
	EventError     = "error"
)

// writerState tracks the state of an SSE ResponseWriter.
type writerState int

const (
	writerIdle      writerState = iota // no writes yet
	writerStreaming                    // at least one event written
	writerCompleted                    // result or terminal event sent
)

// deltaEvent is the payload of a translation.delta event.
type deltaEvent struct {
	Delta string `json:"delta"`
}

// sseResponseWriter implements transport.ResponseWriter for HTTP. In
// streaming mode deltas and the result are SSE events; otherwise only the
// result is written, as a JSON document.
type sseResponseWriter struct {
	w         http.ResponseWriter
	rc        *http.ResponseController
	streaming bool

	mu    sync.Mutex
	state writerState
}

var _ transport.ResponseWriter = (*sseResponseWriter)(nil)

func newSSEResponseWriter(w http.ResponseWriter, streaming bool) *sseResponseWriter {
	return &sseResponseWriter{
		w:         w,
		rc:        http.NewResponseController(w),
		streaming: streaming,
	}
}

// WriteDelta sends a translation.delta event. In JSON mode deltas are
// dropped; the full text arrives with the result.
func (s *sseResponseWriter) WriteDelta(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.streaming {
		return nil
	}
	return s.writeEventLocked(EventDelta, deltaEvent{Delta: text})
}

// WriteResult sends the final result: a translation.completed event
// followed by [DONE] when streaming, a JSON body otherwise.
func (s *sseResponseWriter) WriteResult(ctx context.Context, res *transport.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot write result: writer is completed")
	}

	if s.streaming {
		if err := s.writeEventLocked(EventCompleted, res); err != nil {
			return err
		}
		return s.finishLocked()
	}

	s.w.Header().Set("Content-Type", "application/json")
	s.state = writerCompleted
	if err := json.NewEncoder(s.w).Encode(res); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

// Flush ensures buffered data is sent to the client.
func (s *sseResponseWriter) Flush() error {
	return s.rc.Flush()
}

// writeErrorEvent ends a started stream with an error event.
func (s *sseResponseWriter) writeErrorEvent(apiErr *api.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == writerCompleted {
		return
	}
	if err := s.writeEventLocked(EventError, transport.ErrorResponse{Error: apiErr}); err != nil {
		return
	}
	_ = s.finishLocked()
}

// hasStartedStreaming returns true if at least one SSE event has been written.
func (s *sseResponseWriter) hasStartedStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming && s.state != writerIdle
}

// writeEventLocked writes one event:
//
//	event: {name}\n
//	data: {json}\n
//	\n
func (s *sseResponseWriter) writeEventLocked(name string, payload any) error {
	if s.state == writerCompleted {
		return errors.New("cannot write event: writer is completed")
	}
	if s.state == writerIdle {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.state = writerStreaming
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

func (s *sseResponseWriter) finishLocked() error {
	s.state = writerCompleted
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("failed to write [DONE]: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush [DONE]: %w", err)
	}
	return nil
}
