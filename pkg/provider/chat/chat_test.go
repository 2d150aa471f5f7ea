package chat

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/provider"
	"github.com/rhuss/dolmetsch/pkg/sse"
)

func TestBuildRequest(t *testing.T) {
	tests := []struct {
		name         string
		instructions string
		wantSystem   string
	}{
		{"with instructions", "  Translate into French.\n", "Translate into French."},
		{"empty instructions", "", "You are a translation expert."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := provider.Input{
				Text:         "Hello",
				Instructions: tt.instructions,
				Profile:      provider.Profile{Model: "m", Temperature: 0},
				Stream:       true,
			}
			body, err := New().BuildRequest(in)
			if err != nil {
				t.Fatalf("BuildRequest: %v", err)
			}

			var req chatCompletionRequest
			if err := json.Unmarshal(body, &req); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if len(req.Messages) != 2 {
				t.Fatalf("got %d messages, want 2", len(req.Messages))
			}
			if req.Messages[0].Role != "system" || req.Messages[0].Content != tt.wantSystem {
				t.Errorf("system = %+v", req.Messages[0])
			}
			if req.Messages[1].Role != "user" || req.Messages[1].Content != "<translate_input>Hello</translate_input>" {
				t.Errorf("user = %+v", req.Messages[1])
			}
			if !req.Stream || req.Model != "m" {
				t.Errorf("req = %+v", req)
			}
		})
	}
}

func TestBuildRequest_IgnoresMaxTokens(t *testing.T) {
	body, err := New().BuildRequest(provider.Input{
		Text:    "Hello",
		Profile: provider.Profile{Model: "m", MaxTokens: 512},
	})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := m["max_tokens"]; ok {
		t.Error("max_tokens should not be sent")
	}
}

func TestEndpointAndAuth(t *testing.T) {
	a := New()
	if got := a.Endpoint("http://localhost:8000/v1"); got != "http://localhost:8000/v1/chat/completions" {
		t.Errorf("Endpoint = %q", got)
	}
	h := http.Header{}
	a.Authorize(h, "k")
	if h.Get("Authorization") != "Bearer k" {
		t.Errorf("Authorization = %q", h.Get("Authorization"))
	}
}

func TestExtractFullText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string content", `{"id":"c1","choices":[{"message":{"role":"assistant","content":"Bonjour"}}]}`, "Bonjour"},
		{"parts content", `{"id":"c1","choices":[{"message":{"content":[{"type":"text","text":"Bon"},{"type":"text","text":"jour"}]}}]}`, "Bonjour"},
		{"no choices", `{"id":"c1","choices":[]}`, ""},
		{"null content", `{"id":"c1","choices":[{"message":{"content":null}}]}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New().ExtractFullText([]byte(tt.body))
			if err != nil {
				t.Fatalf("ExtractFullText: %v", err)
			}
			if res.Text != tt.want {
				t.Errorf("Text = %q, want %q", res.Text, tt.want)
			}
		})
	}
}

func TestExtractFullText_Usage(t *testing.T) {
	res, _ := New().ExtractFullText([]byte(`{"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":4}}`))
	if res.Usage == nil || res.Usage.InputTokens != 3 || res.Usage.OutputTokens != 4 {
		t.Errorf("Usage = %+v", res.Usage)
	}
}

func TestExtractDelta(t *testing.T) {
	stream := "data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		"data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":\"Bon\"}}]}\n\n" +
		"data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":[{\"text\":\"jo\"},\"ur\"]}}]}\n\n" +
		"data: {\"id\":\"c1\",\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n" +
		"data: [DONE]\n\n"

	var p sse.Parser
	frames := p.Feed([]byte(stream))
	if len(frames) != 5 {
		t.Fatalf("got %d frames, want 5", len(frames))
	}

	var text string
	for i, f := range frames {
		d, err := New().ExtractDelta(f)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		text += d.Text
		if d.Done != (i == 4) {
			t.Errorf("frame %d: Done = %v", i, d.Done)
		}
	}
	if text != "Bonjour" {
		t.Errorf("text = %q", text)
	}
}

func TestExtractDelta_Malformed(t *testing.T) {
	d, err := New().ExtractDelta(sse.Frame{Data: []string{"{oops"}})
	if err != nil || d.Text != "" || d.Done {
		t.Errorf("got %+v, %v; want zero delta", d, err)
	}
}

func TestExtractDelta_Error(t *testing.T) {
	_, err := New().ExtractDelta(sse.Frame{Data: []string{`{"error":{"message":"rate limited"}}`}})
	if !api.IsKind(err, api.KindStream) {
		t.Errorf("err = %v, want stream error", err)
	}
}
