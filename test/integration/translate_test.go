package integration

import (
	"context"
	"testing"

	"github.com/rhuss/dolmetsch/pkg/mockprovider"
	"github.com/rhuss/dolmetsch/pkg/provider"
)

func TestTranslateAllProtocols(t *testing.T) {
	const input = "Good morning, how are you today?"
	want := mockprovider.Translate(input)

	for _, kind := range provider.Kinds() {
		for _, stream := range []bool{false, true} {
			name := string(kind) + "/json"
			if stream {
				name = string(kind) + "/stream"
			}
			t.Run(name, func(t *testing.T) {
				env := newEnv(t, withKind(kind))
				var c collector
				out, err := env.app.Client.Stream(context.Background(), input, streamOpt(stream), c.emit)
				if err != nil {
					t.Fatalf("Stream: %v", err)
				}
				if out.Text != want || c.text() != want {
					t.Errorf("text = %q, emitted %q, want %q", out.Text, c.text(), want)
				}
				if out.Protocol != kind {
					t.Errorf("protocol = %q, want %q", out.Protocol, kind)
				}
				if out.Attempts != 1 || out.FellBack {
					t.Errorf("attempts = %d, fell back = %v", out.Attempts, out.FellBack)
				}
				if stream && c.count() < 2 {
					t.Errorf("streamed reply arrived in %d piece(s)", c.count())
				}
				if !stream && c.count() != 1 {
					t.Errorf("non-streamed reply arrived in %d pieces", c.count())
				}
				if out.Usage == nil || out.Usage.OutputTokens == 0 {
					t.Errorf("usage = %+v", out.Usage)
				}

				reqs := env.mock.Requests()
				if len(reqs) != 1 || reqs[0].Input != input || reqs[0].Stream != stream {
					t.Errorf("requests = %+v", reqs)
				}
			})
		}
	}
}

func TestProtocolFallbackToChat(t *testing.T) {
	env := newEnv(t, withMock(mockprovider.Options{DisableResponses: true}))

	for _, stream := range []bool{false, true} {
		var c collector
		out, err := env.app.Client.Stream(context.Background(), "Hello", streamOpt(stream), c.emit)
		if err != nil {
			t.Fatalf("stream=%v: %v", stream, err)
		}
		if out.Protocol != provider.KindChat {
			t.Errorf("stream=%v: protocol = %q, want chat", stream, out.Protocol)
		}
		if c.text() != mockprovider.Translate("Hello") {
			t.Errorf("stream=%v: text = %q", stream, c.text())
		}
	}

	for _, r := range env.mock.Requests() {
		if r.Path != "/v1/chat/completions" {
			t.Errorf("unexpected request to %s", r.Path)
		}
	}
}

func TestConversationState(t *testing.T) {
	env := newEnv(t, withStoreResponses())
	ctx := context.Background()

	first, err := env.app.Client.Translate(ctx, "one", streamOpt(false))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := env.app.Client.Stream(ctx, "two", streamOpt(true), func(string) error { return nil }); err != nil {
		t.Fatalf("second: %v", err)
	}

	reqs := env.mock.Requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests", len(reqs))
	}
	if reqs[0].PreviousResponseID != "" || !reqs[0].Store {
		t.Errorf("first request = %+v", reqs[0])
	}
	if reqs[1].PreviousResponseID != first.ResponseID {
		t.Errorf("second previous_response_id = %q, want %q", reqs[1].PreviousResponseID, first.ResponseID)
	}

	state, err := env.app.Sessions.Current(ctx)
	if err != nil || state == nil {
		t.Fatalf("Current() = %v, %v", state, err)
	}
	if len(state.StoredResponseIDs) != 2 {
		t.Errorf("stored ids = %v", state.StoredResponseIDs)
	}

	if _, err := env.app.Sessions.New(ctx); err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := env.app.Client.Translate(ctx, "three", streamOpt(false)); err != nil {
		t.Fatalf("third: %v", err)
	}
	if got := env.mock.Requests()[2].PreviousResponseID; got != "" {
		t.Errorf("request after reset carries previous_response_id %q", got)
	}
}

func TestServiceSelection(t *testing.T) {
	env := newEnv(t, withKind(provider.KindChat))
	ctx := context.Background()

	doc, err := env.app.Settings.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	claude := doc.Services[0]
	claude.ID = ""
	claude.Name = "Claude"
	claude.Kind = provider.KindClaude
	claude.APIKeyEnc = ""
	id := doc.UpsertService(claude)
	if err := env.app.Settings.Save(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := env.app.Settings.SetAPIKey(ctx, id, testAPIKey); err != nil {
		t.Fatal(err)
	}

	opts := streamOpt(false)
	opts.ServiceID = id
	out, err := env.app.Client.Translate(ctx, "Hallo", opts)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out.Protocol != provider.KindClaude {
		t.Errorf("protocol = %q, want claude", out.Protocol)
	}

	// The active service is untouched.
	out, err = env.app.Client.Translate(ctx, "Hallo", streamOpt(false))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out.Protocol != provider.KindChat {
		t.Errorf("protocol = %q, want chat", out.Protocol)
	}
}
