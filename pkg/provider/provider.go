package provider

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/sse"
)

// Kind identifies a provider protocol. The set is closed.
type Kind string

const (
	KindResponses Kind = "openai-responses"
	KindChat      Kind = "openai-chat"
	KindClaude    Kind = "claude"
)

// kindLegacyOpenAI is the name older settings documents used for the
// Responses protocol.
const kindLegacyOpenAI = "openai"

// Kinds lists every supported protocol.
func Kinds() []Kind {
	return []Kind{KindResponses, KindChat, KindClaude}
}

// ParseKind maps a wire name to a Kind. The empty string and the legacy
// name "openai" map to KindResponses. Unknown names yield a NotImplemented
// error.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", kindLegacyOpenAI, string(KindResponses):
		return KindResponses, nil
	case string(KindChat):
		return KindChat, nil
	case string(KindClaude):
		return KindClaude, nil
	}
	return "", api.NewNotImplementedError("unknown provider kind " + s)
}

// UnmarshalJSON implements json.Unmarshaler using ParseKind.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML and flags.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Fallback returns the protocol to retry with when a provider signals that
// it does not speak k. Only Responses has one.
func Fallback(k Kind) (Kind, bool) {
	switch k {
	case KindResponses:
		return KindChat, true
	case KindChat, KindClaude:
		return "", false
	}
	return "", false
}

// Profile is the part of a service profile an adapter needs.
type Profile struct {
	Model       string
	Temperature float64
	MaxTokens   int // Claude only; 0 means DefaultMaxTokens
}

// Input is everything needed to build one request.
type Input struct {
	Text           string
	TargetLanguage string

	// Instructions is the rendered prompt template.
	Instructions string

	Profile Profile
	Stream  bool

	// Store asks a Responses provider to keep the response, chained to
	// PreviousResponseID when set.
	Store              bool
	PreviousResponseID string
}

// Usage is the token accounting reported by a provider, if any.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result is the outcome of a non-streaming call.
type Result struct {
	Text       string
	ResponseID string
	Usage      *Usage
}

// Delta is what one SSE frame contributes. Done marks the terminal frame.
type Delta struct {
	Text       string
	ResponseID string
	Done       bool
	Usage      *Usage
}

// Adapter encodes requests for and decodes responses from one protocol.
// Implementations are stateless and safe for concurrent use.
type Adapter interface {
	Kind() Kind

	// Endpoint returns the full request URL for baseURL.
	Endpoint(baseURL string) string

	// Authorize sets the authentication headers.
	Authorize(h http.Header, apiKey string)

	BuildRequest(in Input) ([]byte, error)
	ExtractFullText(body []byte) (Result, error)

	// ExtractDelta decodes one frame. Frames without text yield a zero
	// Delta; malformed frames are skipped, not fatal.
	ExtractDelta(f sse.Frame) (Delta, error)
}

// DoneSentinel ends OpenAI-style streams.
const DoneSentinel = "[DONE]"

// DefaultMaxTokens is used by protocols that require max_tokens.
const DefaultMaxTokens = 2048

// defaultSystem replaces an empty system prompt.
const defaultSystem = "You are a translation expert."

// WrapInput encloses text in the delimiter the prompt templates refer to.
func WrapInput(text string) string {
	return "<translate_input>" + text + "</translate_input>"
}

// SystemPrompt returns the trimmed instructions, or a generic translator
// prompt when they are empty.
func SystemPrompt(instructions string) string {
	s := strings.TrimSpace(instructions)
	if s == "" {
		return defaultSystem
	}
	return s
}

// JoinURL appends path to baseURL, dropping one trailing slash of the base.
func JoinURL(baseURL, path string) string {
	return strings.TrimSuffix(baseURL, "/") + path
}

// IsDone reports whether a frame carries the [DONE] sentinel.
func IsDone(f sse.Frame) bool {
	for _, d := range f.Data {
		if d == DoneSentinel {
			return true
		}
	}
	return false
}
