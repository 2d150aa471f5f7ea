package claude

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/provider"
	"github.com/rhuss/dolmetsch/pkg/sse"
)

// Adapter implements provider.Adapter for the Messages API.
type Adapter struct{}

// Ensure Adapter implements provider.Adapter at compile time.
var _ provider.Adapter = Adapter{}

// New returns the Claude adapter.
func New() Adapter { return Adapter{} }

// Kind returns provider.KindClaude.
func (Adapter) Kind() provider.Kind { return provider.KindClaude }

// Endpoint returns <base>/messages.
func (Adapter) Endpoint(baseURL string) string {
	return provider.JoinURL(baseURL, "/messages")
}

// Authorize sets x-api-key and the pinned API version.
func (Adapter) Authorize(h http.Header, apiKey string) {
	h.Set("x-api-key", apiKey)
	h.Set("anthropic-version", anthropicVersion)
}

// BuildRequest encodes in as a Messages request. The target language is
// repeated after the wrapped text since Claude gets the prompt as system.
func (Adapter) BuildRequest(in provider.Input) ([]byte, error) {
	return json.Marshal(translateRequest(in))
}

func translateRequest(in provider.Input) *messagesRequest {
	maxTokens := in.Profile.MaxTokens
	if maxTokens <= 0 {
		maxTokens = provider.DefaultMaxTokens
	}
	return &messagesRequest{
		Model:       in.Profile.Model,
		MaxTokens:   maxTokens,
		Temperature: in.Profile.Temperature,
		System:      provider.SystemPrompt(in.Instructions),
		Stream:      in.Stream,
		Messages: []message{{
			Role: "user",
			Content: []contentBlock{{
				Type: "text",
				Text: provider.WrapInput(in.Text) + "\nTarget: " + in.TargetLanguage,
			}},
		}},
	}
}

// ExtractFullText concatenates the text blocks of content[].
func (Adapter) ExtractFullText(body []byte) (provider.Result, error) {
	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.Result{}, fmt.Errorf("decoding messages body: %w", err)
	}
	var text string
	for _, blk := range resp.Content {
		if blk.Type == "text" {
			text += blk.Text
		}
	}
	return provider.Result{Text: text, ResponseID: resp.ID, Usage: translateUsage(resp.Usage)}, nil
}

// ExtractDelta keys on the SSE event name, never on the payload type: text
// is read only from content_block_delta events and message_stop ends the
// stream.
func (Adapter) ExtractDelta(f sse.Frame) (provider.Delta, error) {
	var out provider.Delta
	for _, data := range f.Data {
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			slog.Debug("failed to parse claude event", "event", f.Event, "error", err)
			continue
		}
		switch f.Event {
		case eventMessageStart:
			if ev.Message != nil {
				out.ResponseID = ev.Message.ID
				out.Usage = translateUsage(ev.Message.Usage)
			}
		case eventContentBlockDelta:
			if ev.Delta == nil {
				continue
			}
			if ev.Delta.Text != "" {
				out.Text += ev.Delta.Text
			} else {
				out.Text += ev.Delta.Partial
			}
		case eventMessageDelta:
			out.Usage = translateUsage(ev.Usage)
		case eventMessageStop:
			out.Done = true
			return out, nil
		case eventError:
			msg := "provider reported an error"
			if ev.Error != nil && ev.Error.Message != "" {
				msg = ev.Error.Message
			}
			return out, api.NewStreamError(api.CodeProviderError, msg)
		}
	}
	if f.Event == eventMessageStop {
		out.Done = true
	}
	return out, nil
}

func translateUsage(u *usage) *provider.Usage {
	if u == nil {
		return nil
	}
	return &provider.Usage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
}
