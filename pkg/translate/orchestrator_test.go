package translate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/provider"
)

func chatRequest(url string) Request {
	return Request{
		Target: Target{Kind: provider.KindChat, BaseURL: url, APIKey: "sk"},
		Input:  testInput(),
	}
}

func TestTranslateRetryBound(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		retries  int
		wantHits int
		wantKind api.Kind
	}{
		{"server error retried", http.StatusInternalServerError, 2, 3, api.KindAPI},
		{"rate limit retried", http.StatusTooManyRequests, 1, 2, api.KindAPI},
		{"bad request not retried", http.StatusBadRequest, 2, 1, api.KindAPI},
		{"auth not retried", http.StatusUnauthorized, 2, 1, api.KindAuthentication},
		{"no retries", http.StatusBadGateway, 0, 1, api.KindAPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				rec.record(t, r)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			out, err := NewOrchestrator(NewCaller(), tt.retries).Translate(context.Background(), chatRequest(srv.URL))
			if !api.IsKind(err, tt.wantKind) {
				t.Errorf("err = %v, want kind %s", err, tt.wantKind)
			}
			if rec.hits() != tt.wantHits || out.Attempts != tt.wantHits {
				t.Errorf("hits = %d, attempts = %d, want %d", rec.hits(), out.Attempts, tt.wantHits)
			}
		})
	}
}

func TestTranslateRecovers(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(t, r)
		if rec.hits() < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeChatJSON(w, "Hallo")
	}))
	defer srv.Close()

	out, err := NewOrchestrator(NewCaller(), 2).Translate(context.Background(), chatRequest(srv.URL))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out.Text != "Hallo" || out.Attempts != 3 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestStreamFallsBackToSingleRequest(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isStreamRequest(rec.record(t, r)) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeChatJSON(w, "Hallo Welt")
	}))
	defer srv.Close()

	var got []string
	out, err := NewOrchestrator(NewCaller(), 2).Stream(context.Background(), chatRequest(srv.URL), collect(&got))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if !out.FellBack || out.Attempts != 4 || rec.hits() != 4 {
		t.Errorf("outcome = %+v, hits = %d", out, rec.hits())
	}
	if !reflect.DeepEqual(got, []string{"Hallo Welt"}) {
		t.Errorf("emitted %q", got)
	}
	if isStreamRequest(rec.body(3)) {
		t.Error("last request should not stream")
	}
}

func TestStreamNoRetryAfterOutput(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(t, r)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hal\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"overloaded\"}}\n\n")
	}))
	defer srv.Close()

	var got []string
	out, err := NewOrchestrator(NewCaller(), 2).Stream(context.Background(), chatRequest(srv.URL), collect(&got))
	if !api.IsKind(err, api.KindStream) {
		t.Errorf("err = %v, want stream error", err)
	}
	if rec.hits() != 1 || out.Attempts != 1 || out.FellBack {
		t.Errorf("hits = %d, outcome = %+v", rec.hits(), out)
	}
	if !reflect.DeepEqual(got, []string{"Hal"}) {
		t.Errorf("emitted %q", got)
	}
}

func TestStreamRetriesBeforeOutput(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(t, r)
		if rec.hits() == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeChatStream(w, "Hallo")
	}))
	defer srv.Close()

	var got []string
	out, err := NewOrchestrator(NewCaller(), 2).Stream(context.Background(), chatRequest(srv.URL), collect(&got))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if out.Attempts != 2 || out.FellBack {
		t.Errorf("outcome = %+v", out)
	}
	if !reflect.DeepEqual(got, []string{"Hallo"}) {
		t.Errorf("emitted %q", got)
	}
}

func TestStreamAbort(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(t, r)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hal\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	out, err := NewOrchestrator(NewCaller(), 2).Stream(ctx, chatRequest(srv.URL), func(s string) error {
		got = append(got, s)
		cancel()
		return nil
	})
	if !api.IsKind(err, api.KindAbort) {
		t.Errorf("err = %v, want abort", err)
	}
	if rec.hits() != 1 || out.Attempts != 1 || out.FellBack {
		t.Errorf("hits = %d, outcome = %+v", rec.hits(), out)
	}
	if !reflect.DeepEqual(got, []string{"Hal"}) {
		t.Errorf("emitted %q", got)
	}
}

func TestStreamFatalErrorDoesNotFallBack(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(t, r)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	out, err := NewOrchestrator(NewCaller(), 2).Stream(context.Background(), chatRequest(srv.URL), func(string) error { return nil })
	if !api.IsKind(err, api.KindAuthentication) {
		t.Errorf("err = %v", err)
	}
	if rec.hits() != 1 || out.FellBack {
		t.Errorf("hits = %d, outcome = %+v", rec.hits(), out)
	}
}
