// Package mockprovider implements a deterministic fake of the three
// provider protocols dolmetsch speaks: OpenAI Responses, Chat Completions
// and Claude Messages, each as JSON and as SSE stream.
//
// The translation of a request is "translated: " followed by the text
// inside <translate_input>; streamed replies send it word by word.
package mockprovider

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Prefix starts every mock translation.
const Prefix = "translated: "

// Options control failure injection.
type Options struct {
	// DisableResponses answers /v1/responses with 404 unknown_url, so
	// clients fall back to Chat Completions.
	DisableResponses bool

	// FailFirst answers the first n requests with 503.
	FailFirst int

	// FailStreams answers every streaming request with 503; non-streaming
	// requests succeed.
	FailStreams bool

	// CutStreamAfter closes streams after n text chunks without a
	// terminal event. Zero streams the complete reply.
	CutStreamAfter int

	// ChunkDelay is slept between streamed chunks.
	ChunkDelay time.Duration

	// APIKey, when set, is required as bearer token or x-api-key.
	APIKey string
}

// Request is one request the mock received.
type Request struct {
	Path               string
	Stream             bool
	Input              string
	PreviousResponseID string
	Store              bool
}

// Server is the mock provider.
type Server struct {
	opts Options

	seq      atomic.Int64
	failures atomic.Int64

	mu       sync.Mutex
	requests []Request
}

// New returns a mock provider.
func New(opts Options) *Server {
	return &Server{opts: opts}
}

// Handler returns the HTTP handler serving all endpoints below /v1.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/responses", s.handleResponses)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChat)
	mux.HandleFunc("POST /v1/messages", s.handleMessages)
	mux.HandleFunc("GET /v1/models", handleModels)
	return mux
}

// Requests returns a copy of the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Translate is the reply the mock gives for input.
func Translate(input string) string {
	return Prefix + input
}

var inputPattern = regexp.MustCompile(`(?s)<translate_input>\n?(.*?)\n?</translate_input>`)

// extractInput finds the wrapped input text anywhere in a JSON body.
func extractInput(v any) string {
	switch t := v.(type) {
	case string:
		if m := inputPattern.FindStringSubmatch(t); m != nil {
			return m[1]
		}
	case []any:
		for _, e := range t {
			if s := extractInput(e); s != "" {
				return s
			}
		}
	case map[string]any:
		for _, e := range t {
			if s := extractInput(e); s != "" {
				return s
			}
		}
	}
	return ""
}

// begin decodes and records a request. It writes an error response and
// returns false when the request must not be served.
func (s *Server) begin(w http.ResponseWriter, r *http.Request) (Request, bool) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body")
		return Request{}, false
	}

	req := Request{Path: r.URL.Path, Input: extractInput(body)}
	req.Stream, _ = body["stream"].(bool)
	req.PreviousResponseID, _ = body["previous_response_id"].(string)
	if md, ok := body["metadata"].(map[string]any); ok {
		req.Store, _ = md["store"].(bool)
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.opts.APIKey != "" {
		auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if auth != s.opts.APIKey && r.Header.Get("x-api-key") != s.opts.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid_api_key", "invalid api key")
			return req, false
		}
	}
	if s.opts.FailStreams && req.Stream {
		writeError(w, http.StatusServiceUnavailable, "overloaded", "streaming unavailable")
		return req, false
	}
	if s.failures.Add(1) <= int64(s.opts.FailFirst) {
		writeError(w, http.StatusServiceUnavailable, "overloaded", "mock backend overloaded")
		return req, false
	}
	slog.Debug("mock request", "path", req.Path, "stream", req.Stream, "input_len", len(req.Input))
	return req, true
}

func (s *Server) nextID(prefix string) string {
	return fmt.Sprintf("%s_mock_%d", prefix, s.seq.Add(1))
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": "invalid_request_error", "code": code},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// words splits text into chunks that concatenate back to text.
func words(text string) []string {
	var out []string
	for len(text) > 0 {
		i := strings.IndexByte(text[1:], ' ')
		if i < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:i+1])
		text = text[i+1:]
	}
	return out
}

// sseWriter writes SSE events and flushes after each.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func startSSE(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, flusher: flusher}, true
}

func (sw *sseWriter) event(name string, v any) {
	if name != "" {
		fmt.Fprintf(sw.w, "event: %s\n", name)
	}
	switch d := v.(type) {
	case string:
		fmt.Fprintf(sw.w, "data: %s\n\n", d)
	default:
		data, _ := json.Marshal(v)
		fmt.Fprintf(sw.w, "data: %s\n\n", data)
	}
	sw.flusher.Flush()
}

// chunks streams the reply word by word through emit. It reports false
// when the stream was cut short.
func (s *Server) chunks(text string, emit func(string)) bool {
	for i, c := range words(text) {
		if s.opts.CutStreamAfter > 0 && i >= s.opts.CutStreamAfter {
			return false
		}
		if s.opts.ChunkDelay > 0 {
			time.Sleep(s.opts.ChunkDelay)
		}
		emit(c)
	}
	return true
}

func usage(input, output string) (int, int) {
	return len(strings.Fields(input)) + 10, len(strings.Fields(output))
}

// --- Responses ---

func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	if s.opts.DisableResponses {
		writeError(w, http.StatusNotFound, "unknown_url", "Unknown request URL: POST /v1/responses")
		return
	}
	req, ok := s.begin(w, r)
	if !ok {
		return
	}
	text := Translate(req.Input)
	id := s.nextID("resp")
	in, out := usage(req.Input, text)
	completed := map[string]any{
		"id":     id,
		"status": "completed",
		"output": []any{map[string]any{
			"type":    "message",
			"content": []any{map[string]any{"type": "output_text", "text": text}},
		}},
		"usage": map[string]any{"input_tokens": in, "output_tokens": out},
	}

	if !req.Stream {
		writeJSON(w, completed)
		return
	}
	sw, ok := startSSE(w)
	if !ok {
		return
	}
	sw.event("response.created", map[string]any{"type": "response.created", "response": map[string]any{"id": id}})
	if !s.chunks(text, func(c string) {
		sw.event("response.output_text.delta", map[string]any{"type": "response.output_text.delta", "delta": c})
	}) {
		return
	}
	sw.event("response.completed", map[string]any{"type": "response.completed", "response": completed})
}

// --- Chat Completions ---

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.begin(w, r)
	if !ok {
		return
	}
	text := Translate(req.Input)
	id := s.nextID("chatcmpl")
	in, out := usage(req.Input, text)
	u := map[string]any{"prompt_tokens": in, "completion_tokens": out, "total_tokens": in + out}

	if !req.Stream {
		writeJSON(w, map[string]any{
			"id":     id,
			"object": "chat.completion",
			"choices": []any{map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": text},
				"finish_reason": "stop",
			}},
			"usage": u,
		})
		return
	}
	sw, ok := startSSE(w)
	if !ok {
		return
	}
	chunk := func(delta map[string]any, finish any) map[string]any {
		return map[string]any{
			"id":      id,
			"object":  "chat.completion.chunk",
			"choices": []any{map[string]any{"index": 0, "delta": delta, "finish_reason": finish}},
		}
	}
	sw.event("", chunk(map[string]any{"role": "assistant"}, nil))
	if !s.chunks(text, func(c string) {
		sw.event("", chunk(map[string]any{"content": c}, nil))
	}) {
		return
	}
	last := chunk(map[string]any{}, "stop")
	last["usage"] = u
	sw.event("", last)
	sw.event("", "[DONE]")
}

// --- Claude Messages ---

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	req, ok := s.begin(w, r)
	if !ok {
		return
	}
	text := Translate(req.Input)
	id := s.nextID("msg")
	in, out := usage(req.Input, text)

	if !req.Stream {
		writeJSON(w, map[string]any{
			"id":      id,
			"type":    "message",
			"role":    "assistant",
			"content": []any{map[string]any{"type": "text", "text": text}},
			"usage":   map[string]any{"input_tokens": in, "output_tokens": out},
		})
		return
	}
	sw, ok := startSSE(w)
	if !ok {
		return
	}
	sw.event("message_start", map[string]any{
		"type":    "message_start",
		"message": map[string]any{"id": id, "content": []any{}, "usage": map[string]any{"input_tokens": in}},
	})
	sw.event("content_block_start", map[string]any{
		"type": "content_block_start", "index": 0,
		"content_block": map[string]any{"type": "text", "text": ""},
	})
	if !s.chunks(text, func(c string) {
		sw.event("content_block_delta", map[string]any{
			"type": "content_block_delta", "index": 0,
			"delta": map[string]any{"type": "text_delta", "text": c},
		})
	}) {
		return
	}
	sw.event("content_block_stop", map[string]any{"type": "content_block_stop", "index": 0})
	sw.event("message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": "end_turn"},
		"usage": map[string]any{"input_tokens": in, "output_tokens": out},
	})
	sw.event("message_stop", map[string]any{"type": "message_stop"})
}

// --- Models ---

func handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "dolmetsch-mock"},
		},
	})
}
