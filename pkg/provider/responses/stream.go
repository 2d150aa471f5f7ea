package responses

import (
	"encoding/json"
	"log/slog"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/provider"
	"github.com/rhuss/dolmetsch/pkg/sse"
)

// ExtractDelta maps one SSE frame to a Delta. The event type is taken from
// the JSON payload and, if absent there, from the SSE event field.
func (Adapter) ExtractDelta(f sse.Frame) (provider.Delta, error) {
	var out provider.Delta
	for _, data := range f.Data {
		if data == provider.DoneSentinel {
			out.Done = true
			return out, nil
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			slog.Debug("failed to parse responses event", "event", f.Event, "error", err)
			continue
		}
		if ev.Type == "" {
			ev.Type = f.Event
		}

		switch ev.Type {
		case eventTextDelta:
			out.Text += ev.Delta

		case eventResponseCompleted:
			out.Done = true
			if ev.Response != nil {
				out.ResponseID = ev.Response.ID
				out.Usage = translateUsage(ev.Response.Usage)
			}
			if out.ResponseID == "" {
				out.ResponseID = ev.ID
			}
			return out, nil

		case eventResponseFailed, eventError:
			return out, api.NewStreamError(api.CodeProviderError, failureMessage(&ev))

		default:
			if len(ev.Choices) > 0 && ev.Choices[0].Delta != nil {
				out.Text += provider.ContentText(ev.Choices[0].Delta.Content)
			}
		}
	}
	return out, nil
}

func failureMessage(ev *streamEvent) string {
	switch {
	case ev.Response != nil && ev.Response.Error != nil && ev.Response.Error.Message != "":
		return ev.Response.Error.Message
	case ev.Error != nil && ev.Error.Message != "":
		return ev.Error.Message
	case ev.Message != "":
		return ev.Message
	}
	return "provider reported a failed response"
}
