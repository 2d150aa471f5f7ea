package responses

import (
	"testing"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/sse"
)

func TestExtractDelta_Stream(t *testing.T) {
	stream := "event: response.created\n" +
		"data: {\"type\":\"response.created\",\"response\":{\"id\":\"resp_1\"}}\n\n" +
		"event: response.output_text.delta\n" +
		"data: {\"type\":\"response.output_text.delta\",\"delta\":\"Good\"}\n\n" +
		"event: response.output_text.delta\n" +
		"data: {\"type\":\"response.output_text.delta\",\"delta\":\" morning\"}\n\n" +
		"event: response.completed\n" +
		"data: {\"type\":\"response.completed\",\"response\":{\"id\":\"resp_1\",\"usage\":{\"input_tokens\":10,\"output_tokens\":5}}}\n\n"

	var p sse.Parser
	frames := p.Feed([]byte(stream))
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4", len(frames))
	}

	a := New()
	var text string
	for i, f := range frames {
		d, err := a.ExtractDelta(f)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		text += d.Text
		if i < 3 && d.Done {
			t.Errorf("frame %d should not be terminal", i)
		}
		if i == 3 {
			if !d.Done {
				t.Error("response.completed should be terminal")
			}
			if d.ResponseID != "resp_1" {
				t.Errorf("ResponseID = %q", d.ResponseID)
			}
			if d.Usage == nil || d.Usage.OutputTokens != 5 {
				t.Errorf("Usage = %+v", d.Usage)
			}
		}
	}
	if text != "Good morning" {
		t.Errorf("text = %q", text)
	}
}

func TestExtractDelta(t *testing.T) {
	tests := []struct {
		name     string
		frame    sse.Frame
		wantText string
		wantDone bool
		wantID   string
	}{
		{
			"type from event name",
			sse.Frame{Event: "response.output_text.delta", Data: []string{`{"delta":"Hi"}`}},
			"Hi", false, "",
		},
		{
			"completed with top-level id",
			sse.Frame{Data: []string{`{"type":"response.completed","id":"resp_top"}`}},
			"", true, "resp_top",
		},
		{
			"done sentinel",
			sse.Frame{Data: []string{"[DONE]"}},
			"", true, "",
		},
		{
			"legacy choices",
			sse.Frame{Data: []string{`{"choices":[{"delta":{"content":"Hi"}}]}`}},
			"Hi", false, "",
		},
		{
			"legacy choices with parts",
			sse.Frame{Data: []string{`{"choices":[{"delta":{"content":[{"text":"H"},"i"]}}]}`}},
			"Hi", false, "",
		},
		{
			"malformed json skipped",
			sse.Frame{Data: []string{`{not json`, `{"type":"response.output_text.delta","delta":"ok"}`}},
			"ok", false, "",
		},
		{
			"unrelated event",
			sse.Frame{Event: "response.in_progress", Data: []string{`{"type":"response.in_progress"}`}},
			"", false, "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New().ExtractDelta(tt.frame)
			if err != nil {
				t.Fatalf("ExtractDelta: %v", err)
			}
			if d.Text != tt.wantText || d.Done != tt.wantDone || d.ResponseID != tt.wantID {
				t.Errorf("got %+v, want text=%q done=%v id=%q", d, tt.wantText, tt.wantDone, tt.wantID)
			}
		})
	}
}

func TestExtractDelta_Failed(t *testing.T) {
	f := sse.Frame{Data: []string{`{"type":"response.failed","response":{"id":"r"},"error":{"message":"overloaded"}}`}}
	_, err := New().ExtractDelta(f)
	if !api.IsKind(err, api.KindStream) {
		t.Fatalf("err = %v, want stream error", err)
	}
}
