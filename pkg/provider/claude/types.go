package claude

// anthropicVersion is sent with every request.
const anthropicVersion = "2023-06-01"

// messagesRequest is the request body for /messages.
type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system"`
	Stream      bool      `json:"stream,omitempty"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// messagesResponse is the non-streaming response body.
type messagesResponse struct {
	ID      string         `json:"id"`
	Content []contentBlock `json:"content"`
	Usage   *usage         `json:"usage,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Stream event names.
const (
	eventMessageStart      = "message_start"
	eventContentBlockDelta = "content_block_delta"
	eventMessageDelta      = "message_delta"
	eventMessageStop       = "message_stop"
	eventError             = "error"
)

// streamEvent is the union of the data payloads the adapter looks at.
type streamEvent struct {
	Type    string            `json:"type"`
	Message *messagesResponse `json:"message,omitempty"`
	Delta   *blockDelta       `json:"delta,omitempty"`
	Usage   *usage            `json:"usage,omitempty"`
	Error   *streamError      `json:"error,omitempty"`
}

type blockDelta struct {
	Type    string `json:"type,omitempty"`
	Text    string `json:"text,omitempty"`
	Partial string `json:"partial,omitempty"`
}

type streamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
