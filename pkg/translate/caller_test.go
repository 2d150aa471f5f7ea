package translate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/provider"
)

func testInput() provider.Input {
	return provider.Input{
		Text:           "Hello world",
		TargetLanguage: "de",
		Instructions:   "Translate into de.",
		Profile:        provider.Profile{Model: "test-model", Temperature: 0.2},
	}
}

func TestStreamProtocolFallbackMatchesChat(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(t, r)
		switch r.URL.Path {
		case "/v1/responses":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"message":"Unknown endpoint","code":"unknown_url"}}`)
		case "/v1/chat/completions":
			writeChatStream(w, "Hallo", " ", "Welt")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	caller := NewCaller()
	ctx := context.Background()

	var viaFallback []string
	reply, err := caller.Stream(ctx, Request{
		Target: Target{Kind: provider.KindResponses, BaseURL: srv.URL + "/v1", APIKey: "sk"},
		Input:  testInput(),
	}, collect(&viaFallback))
	if err != nil {
		t.Fatalf("Stream via fallback: %v", err)
	}
	if reply.Protocol != provider.KindChat {
		t.Errorf("Protocol = %q, want %q", reply.Protocol, provider.KindChat)
	}

	var direct []string
	if _, err := caller.Stream(ctx, Request{
		Target: Target{Kind: provider.KindChat, BaseURL: srv.URL + "/v1", APIKey: "sk"},
		Input:  testInput(),
	}, collect(&direct)); err != nil {
		t.Fatalf("Stream direct: %v", err)
	}

	if !reflect.DeepEqual(viaFallback, direct) {
		t.Errorf("fallback deltas %q, direct deltas %q", viaFallback, direct)
	}
	if strings.Join(direct, "") != "Hallo Welt" {
		t.Errorf("text = %q", strings.Join(direct, ""))
	}

	wantPaths := []string{"/v1/responses", "/v1/chat/completions", "/v1/chat/completions"}
	if !reflect.DeepEqual(rec.paths, wantPaths) {
		t.Fatalf("paths = %v, want %v", rec.paths, wantPaths)
	}
	if string(rec.body(1)) != string(rec.body(2)) {
		t.Errorf("fallback request differs from direct request:\n%s\n%s", rec.body(1), rec.body(2))
	}
}

func TestNoProtocolFallback(t *testing.T) {
	tests := []struct {
		name     string
		kind     provider.Kind
		status   int
		body     string
		wantKind api.Kind
	}{
		{"auth failure", provider.KindResponses, http.StatusUnauthorized, `{"error":{"message":"not found"}}`, api.KindAuthentication},
		{"server error", provider.KindResponses, http.StatusInternalServerError, `{"error":{"message":"boom"}}`, api.KindAPI},
		{"chat has no fallback", provider.KindChat, http.StatusNotFound, `Unknown endpoint`, api.KindAPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				rec.record(t, r)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewCaller().Complete(context.Background(), Request{
				Target: Target{Kind: tt.kind, BaseURL: srv.URL, APIKey: "sk"},
				Input:  testInput(),
			})
			if !api.IsKind(err, tt.wantKind) {
				t.Errorf("err = %v, want kind %s", err, tt.wantKind)
			}
			if rec.hits() != 1 {
				t.Errorf("hits = %d, want 1", rec.hits())
			}
		})
	}
}

func TestStreamAcceptsJSONAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeChatJSON(w, "Hallo Welt")
	}))
	defer srv.Close()

	var got []string
	reply, err := NewCaller().Stream(context.Background(), Request{
		Target: Target{Kind: provider.KindChat, BaseURL: srv.URL},
		Input:  testInput(),
	}, collect(&got))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"Hallo Welt"}) || reply.Text != "Hallo Welt" {
		t.Errorf("emitted %q, reply %q", got, reply.Text)
	}
}

func TestCallerTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewCaller(WithTimeout(50*time.Millisecond)).Complete(context.Background(), Request{
		Target: Target{Kind: provider.KindChat, BaseURL: srv.URL},
		Input:  testInput(),
	})
	if !api.IsKind(err, api.KindTimeout) {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestCallerUnknownKind(t *testing.T) {
	_, err := NewCaller().Complete(context.Background(), Request{Target: Target{Kind: "gemini"}})
	if !api.IsKind(err, api.KindNotImplemented) {
		t.Errorf("err = %v, want not implemented", err)
	}
}

type countingObserver struct {
	nopObserver
	attempts  int
	fallbacks []string
	usage     []provider.Usage
}

func (o *countingObserver) AttemptDone(provider.Kind, bool, time.Duration, error) { o.attempts++ }
func (o *countingObserver) ProtocolFallback(from, to provider.Kind) {
	o.fallbacks = append(o.fallbacks, string(from)+">"+string(to))
}
func (o *countingObserver) Usage(_ provider.Kind, u provider.Usage) { o.usage = append(o.usage, u) }

func TestCallerReportsToObserver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/responses") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`)
	}))
	defer srv.Close()

	obs := &countingObserver{}
	_, err := NewCaller(WithObserver(obs)).Complete(context.Background(), Request{
		Target: Target{Kind: provider.KindResponses, BaseURL: srv.URL},
		Input:  testInput(),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if obs.attempts != 1 {
		t.Errorf("attempts = %d, want 1", obs.attempts)
	}
	if !reflect.DeepEqual(obs.fallbacks, []string{"openai-responses>openai-chat"}) {
		t.Errorf("fallbacks = %v", obs.fallbacks)
	}
	if len(obs.usage) != 1 || obs.usage[0] != (provider.Usage{InputTokens: 3, OutputTokens: 1}) {
		t.Errorf("usage = %+v", obs.usage)
	}
}
