package chat

import (
	"encoding/json"
	"log/slog"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/provider"
	"github.com/rhuss/dolmetsch/pkg/sse"
)

// ExtractDelta returns the text of choices[0].delta.content. The stream ends
// with the [DONE] sentinel.
func (Adapter) ExtractDelta(f sse.Frame) (provider.Delta, error) {
	var out provider.Delta
	for _, data := range f.Data {
		if data == provider.DoneSentinel {
			out.Done = true
			return out, nil
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			slog.Debug("failed to parse chat chunk", "error", err)
			continue
		}
		if chunk.Error != nil {
			msg := chunk.Error.Message
			if msg == "" {
				msg = "provider reported a failed completion"
			}
			return out, api.NewStreamError(api.CodeProviderError, msg)
		}
		if out.ResponseID == "" {
			out.ResponseID = chunk.ID
		}
		if chunk.Usage != nil {
			out.Usage = translateUsage(chunk.Usage)
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
			out.Text += provider.ContentText(chunk.Choices[0].Delta.Content)
		}
	}
	return out, nil
}
