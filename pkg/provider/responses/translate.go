package responses

import (
	"encoding/json"
	"fmt"

	"github.com/rhuss/dolmetsch/pkg/provider"
)

// BuildRequest encodes in as a Responses API request. The rendered prompt
// travels as instructions, the wrapped source text as the only input item.
func (Adapter) BuildRequest(in provider.Input) ([]byte, error) {
	return json.Marshal(translateRequest(in))
}

func translateRequest(in provider.Input) *responsesRequest {
	rr := &responsesRequest{
		Model:        in.Profile.Model,
		Stream:       in.Stream,
		Temperature:  in.Profile.Temperature,
		Instructions: in.Instructions,
		Input: []inputMessage{{
			Role:    "user",
			Content: []inputPart{{Type: "input_text", Text: provider.WrapInput(in.Text)}},
		}},
	}
	if in.Store {
		rr.Metadata = &requestMetadata{Store: true}
		rr.PreviousResponseID = in.PreviousResponseID
	}
	return rr
}

// ExtractFullText collects every output_text segment of output[]. Bodies in
// the Chat Completions shape are read from choices[0].message.content.
func (Adapter) ExtractFullText(body []byte) (provider.Result, error) {
	var resp responsesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.Result{}, fmt.Errorf("decoding responses body: %w", err)
	}
	return translateResponse(&resp), nil
}

func translateResponse(resp *responsesResponse) provider.Result {
	res := provider.Result{
		Text:       outputText(resp.Output),
		ResponseID: resp.ID,
		Usage:      translateUsage(resp.Usage),
	}
	if res.Text == "" && len(resp.Choices) > 0 && resp.Choices[0].Message != nil {
		res.Text = provider.ContentText(resp.Choices[0].Message.Content)
	}
	return res
}

func outputText(items []outputItem) string {
	var text string
	for _, item := range items {
		for _, part := range item.Content {
			if part.Type == "output_text" {
				text += part.Text
			}
		}
	}
	return text
}

func translateUsage(u *responsesUsage) *provider.Usage {
	if u == nil {
		return nil
	}
	return &provider.Usage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
}
