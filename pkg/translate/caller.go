package translate

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/debug"
	"github.com/rhuss/dolmetsch/pkg/provider"
	"github.com/rhuss/dolmetsch/pkg/sse"
)

// DefaultTimeout bounds a single attempt, including the streamed body.
const DefaultTimeout = 30 * time.Second

// maxErrorBody limits how much of an error response is read.
const maxErrorBody = 64 << 10

// Target identifies the provider a request goes to.
type Target struct {
	Kind    provider.Kind
	BaseURL string
	APIKey  string
}

// Request is one translation request.
type Request struct {
	Target Target
	Input  provider.Input
}

// Reply is what one successful attempt produced.
type Reply struct {
	Text       string
	ResponseID string
	Usage      *provider.Usage

	// Protocol is the protocol that answered. It differs from the target's
	// kind after a protocol fallback.
	Protocol provider.Kind
}

// Caller performs single HTTP attempts against a provider.
type Caller struct {
	httpClient *http.Client
	timeout    time.Duration
	queueSize  int
	observer   Observer
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithHTTPClient sets the HTTP client. Its Timeout should be zero: the
// attempt timeout is applied through the request context.
func WithHTTPClient(c *http.Client) CallerOption {
	return func(cl *Caller) { cl.httpClient = c }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) CallerOption {
	return func(cl *Caller) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithQueueSize sets the frame queue size of streaming attempts.
func WithQueueSize(n int) CallerOption {
	return func(cl *Caller) { cl.queueSize = n }
}

// WithObserver reports attempts, fallbacks and token usage.
func WithObserver(o Observer) CallerOption {
	return func(cl *Caller) {
		if o != nil {
			cl.observer = o
		}
	}
}

// NewCaller creates a Caller.
func NewCaller(opts ...CallerOption) *Caller {
	c := &Caller{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		queueSize:  sse.DefaultQueueSize,
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete performs one non-streaming attempt.
func (c *Caller) Complete(ctx context.Context, req Request) (Reply, error) {
	req.Input.Stream = false
	return c.attempt(ctx, req, nil)
}

// Stream performs one streaming attempt, calling emit for every non-empty
// text delta in order. An error returned by emit ends the attempt and is
// returned unchanged.
func (c *Caller) Stream(ctx context.Context, req Request, emit func(string) error) (Reply, error) {
	req.Input.Stream = true
	return c.attempt(ctx, req, emit)
}

func (c *Caller) attempt(ctx context.Context, req Request, emit func(string) error) (Reply, error) {
	a, err := AdapterFor(req.Target.Kind)
	if err != nil {
		return Reply{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	streaming := emit != nil
	start := time.Now()
	resp, errBody, err := c.post(ctx, a, req)
	if err != nil {
		if fb, ok := fallbackFor(a, err, errBody); ok {
			debug.Log("providers", "protocol fallback", "from", a.Kind(), "to", fb.Kind())
			c.observer.ProtocolFallback(a.Kind(), fb.Kind())
			a = fb
			resp, _, err = c.post(ctx, a, req)
		}
	}
	if err != nil {
		c.observer.AttemptDone(a.Kind(), streaming, time.Since(start), err)
		return Reply{}, err
	}
	defer resp.Body.Close()

	var reply Reply
	if streaming && !isJSON(resp) {
		reply, err = c.consume(ctx, a, resp, emit)
	} else {
		reply, err = c.readFull(ctx, a, resp)
		if err == nil && streaming && reply.Text != "" {
			err = emit(reply.Text)
		}
	}
	reply.Protocol = a.Kind()
	c.observer.AttemptDone(a.Kind(), streaming, time.Since(start), err)
	if err == nil && reply.Usage != nil {
		c.observer.Usage(a.Kind(), *reply.Usage)
	}
	return reply, err
}

// post sends the request. A non-2xx status yields the mapped error and the
// response body.
func (c *Caller) post(ctx context.Context, a provider.Adapter, req Request) (*http.Response, []byte, error) {
	payload, err := a.BuildRequest(req.Input)
	if err != nil {
		return nil, nil, api.NewConfigurationError(api.CodeMissingSetting, "cannot encode request: "+err.Error())
	}

	url := a.Endpoint(req.Target.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, api.NewConfigurationError(api.CodeMissingSetting, "invalid base URL: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Input.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	a.Authorize(httpReq.Header, req.Target.APIKey)

	debug.Log("providers", "request", "url", url, "kind", a.Kind(), "stream", req.Input.Stream, "key", debug.MaskKey(req.Target.APIKey))
	debug.Trace("providers", "request body", "body", debug.Truncate(string(payload), 2000))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, api.MapNetworkError(ctx, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	debug.Log("providers", "error response", "status", resp.StatusCode, "body", debug.Truncate(string(body), 500))
	return nil, body, api.MapHTTPError(resp.StatusCode, body)
}

func fallbackFor(a provider.Adapter, err error, body []byte) (provider.Adapter, bool) {
	var e *api.Error
	if !errors.As(err, &e) || e.Status == 0 {
		return nil, false
	}
	kind, ok := provider.Fallback(a.Kind())
	if !ok || !IsFallbackSignal(e.Status, body) {
		return nil, false
	}
	fb, ferr := AdapterFor(kind)
	if ferr != nil {
		return nil, false
	}
	return fb, true
}

func (c *Caller) readFull(ctx context.Context, a provider.Adapter, resp *http.Response) (Reply, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, api.MapNetworkError(ctx, err)
	}
	res, err := a.ExtractFullText(body)
	if err != nil {
		return Reply{}, api.NewAPIError(resp.StatusCode, "unreadable provider response: "+err.Error())
	}
	return Reply{Text: res.Text, ResponseID: res.ResponseID, Usage: res.Usage}, nil
}

func (c *Caller) consume(ctx context.Context, a provider.Adapter, resp *http.Response, emit func(string) error) (Reply, error) {
	var reply Reply
	if resp.Body == nil || resp.Body == http.NoBody {
		return reply, api.NewStreamError(api.CodeNoBody, "response has no body")
	}

	seq := sse.NewSequencer(ctx, resp.Body, sse.Options{QueueSize: c.queueSize})
	defer seq.Close()

	for {
		f, err := seq.Next()
		if errors.Is(err, io.EOF) {
			return reply, nil
		}
		if err != nil {
			return reply, err
		}

		d, err := a.ExtractDelta(f)
		if err != nil {
			return reply, err
		}
		if d.ResponseID != "" {
			reply.ResponseID = d.ResponseID
		}
		if d.Usage != nil {
			reply.Usage = mergeUsage(reply.Usage, d.Usage)
		}
		if d.Text != "" {
			reply.Text += d.Text
			if err := emit(d.Text); err != nil {
				return reply, err
			}
		}
		if d.Done {
			return reply, nil
		}
	}
}

// mergeUsage keeps the non-zero counters of both reports. Claude sends input
// and output tokens in separate events.
func mergeUsage(cur, next *provider.Usage) *provider.Usage {
	if cur == nil {
		u := *next
		return &u
	}
	if next.InputTokens != 0 {
		cur.InputTokens = next.InputTokens
	}
	if next.OutputTokens != 0 {
		cur.OutputTokens = next.OutputTokens
	}
	return cur
}

// isJSON reports whether a provider ignored stream=true and answered with a
// complete JSON body.
func isJSON(resp *http.Response) bool {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}
