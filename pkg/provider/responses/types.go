// Package responses implements the provider adapter for backends that speak
// the OpenAI Responses API (POST /responses). Streaming uses the native
// response.* SSE events.
package responses

import "encoding/json"

// --- Request types ---

// responsesRequest is the wire format for POST /responses.
type responsesRequest struct {
	Model              string           `json:"model"`
	Stream             bool             `json:"stream,omitempty"`
	Temperature        float64          `json:"temperature"`
	Instructions       string           `json:"instructions"`
	Input              []inputMessage   `json:"input"`
	Metadata           *requestMetadata `json:"metadata,omitempty"`
	PreviousResponseID string           `json:"previous_response_id,omitempty"`
}

// requestMetadata asks the provider to keep the response.
type requestMetadata struct {
	Store bool `json:"store"`
}

type inputMessage struct {
	Role    string      `json:"role"`
	Content []inputPart `json:"content"`
}

type inputPart struct {
	Type string `json:"type"` // "input_text"
	Text string `json:"text"`
}

// --- Response types ---

// responsesResponse is the body returned by POST /responses (non-streaming).
// Choices covers gateways that answer in the Chat Completions shape.
type responsesResponse struct {
	ID      string          `json:"id"`
	Status  string          `json:"status,omitempty"`
	Output  []outputItem    `json:"output"`
	Usage   *responsesUsage `json:"usage,omitempty"`
	Error   *streamError    `json:"error,omitempty"`
	Choices []legacyChoice  `json:"choices,omitempty"`
}

// outputItem is one element of output[]. Only message items carry text.
type outputItem struct {
	Type    string        `json:"type"`
	Content []contentPart `json:"content,omitempty"`
}

type contentPart struct {
	Type string `json:"type"` // "output_text"
	Text string `json:"text,omitempty"`
}

type responsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type legacyChoice struct {
	Message *legacyMessage `json:"message,omitempty"`
	Delta   *legacyMessage `json:"delta,omitempty"`
}

type legacyMessage struct {
	Content json.RawMessage `json:"content"`
}

// --- SSE event types ---

const (
	eventTextDelta         = "response.output_text.delta"
	eventResponseCompleted = "response.completed"
	eventResponseFailed    = "response.failed"
	eventError             = "error"
)

// streamEvent is the union of the data payloads the adapter looks at.
type streamEvent struct {
	Type     string             `json:"type"`
	ID       string             `json:"id,omitempty"`
	Delta    string             `json:"delta,omitempty"`
	Response *responsesResponse `json:"response,omitempty"`
	Choices  []legacyChoice     `json:"choices,omitempty"`
	Error    *streamError       `json:"error,omitempty"`
	Message  string             `json:"message,omitempty"`
}

type streamError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
