package chat

import (
	"encoding/json"
	"fmt"

	"github.com/rhuss/dolmetsch/pkg/provider"
)

// BuildRequest encodes in as a two-message conversation: the rendered prompt
// as system message and the wrapped source text as user message. The same
// Input therefore produces the payload a Responses request falls back to.
func (Adapter) BuildRequest(in provider.Input) ([]byte, error) {
	return json.Marshal(translateRequest(in))
}

func translateRequest(in provider.Input) *chatCompletionRequest {
	req := &chatCompletionRequest{
		Model:       in.Profile.Model,
		Stream:      in.Stream,
		Temperature: in.Profile.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: provider.SystemPrompt(in.Instructions)},
			{Role: "user", Content: provider.WrapInput(in.Text)},
		},
	}
	return req
}

// ExtractFullText returns choices[0].message.content.
func (Adapter) ExtractFullText(body []byte) (provider.Result, error) {
	var resp chatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.Result{}, fmt.Errorf("decoding chat completion: %w", err)
	}
	res := provider.Result{ResponseID: resp.ID, Usage: translateUsage(resp.Usage)}
	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil {
		res.Text = provider.ContentText(resp.Choices[0].Message.Content)
	}
	return res, nil
}

func translateUsage(u *chatUsage) *provider.Usage {
	if u == nil {
		return nil
	}
	return &provider.Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
}
