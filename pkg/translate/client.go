package translate

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/dolmetsch/pkg/debug"
	"github.com/rhuss/dolmetsch/pkg/prompt"
	"github.com/rhuss/dolmetsch/pkg/provider"
	"github.com/rhuss/dolmetsch/pkg/session"
	"github.com/rhuss/dolmetsch/pkg/settings"
)

// Options select what a single translation uses instead of the stored
// settings. Zero values keep the settings.
type Options struct {
	TargetLanguage string
	ServiceID      string

	// Stream overrides the document's stream flag when set.
	Stream *bool
}

// Overrides replace settings document values for every request of a
// Client. Zero values keep the document's values.
type Overrides struct {
	TargetLanguage string
	Timeout        time.Duration
	Retries        *int
	Stream         *bool
	StoreResponses *bool
}

// Client translates text with the active service of a settings document.
type Client struct {
	settings  *settings.Manager
	sessions  *session.Tracker
	opts      []CallerOption
	overrides Overrides
}

// NewClient creates a Client. sessions may be nil, in which case no
// conversation state is kept. opts are applied to every Caller the client
// creates; the per-attempt timeout comes from the settings document.
func NewClient(m *settings.Manager, sessions *session.Tracker, opts ...CallerOption) *Client {
	return &Client{settings: m, sessions: sessions, opts: opts}
}

// WithOverrides sets o on c and returns c.
func (c *Client) WithOverrides(o Overrides) *Client {
	c.overrides = o
	return c
}

// Translate returns the translation of text.
func (c *Client) Translate(ctx context.Context, text string, opts Options) (Outcome, error) {
	orch, req, err := c.prepare(ctx, text, opts)
	if err != nil {
		return Outcome{}, err
	}
	out, err := orch.Translate(ctx, req)
	if err != nil {
		return out, err
	}
	c.record(ctx, req, out.Reply)
	return out, nil
}

// Stream translates text, calling emit with the translation as it arrives.
// When streaming is disabled the whole text is emitted once.
func (c *Client) Stream(ctx context.Context, text string, opts Options, emit func(string) error) (Outcome, error) {
	orch, req, err := c.prepare(ctx, text, opts)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	if req.Input.Stream {
		out, err = orch.Stream(ctx, req, emit)
	} else {
		out, err = orch.Translate(ctx, req)
		if err == nil && out.Text != "" {
			err = emit(out.Text)
		}
	}
	if err != nil {
		return out, err
	}
	c.record(ctx, req, out.Reply)
	return out, nil
}

func (c *Client) prepare(ctx context.Context, text string, opts Options) (*Orchestrator, Request, error) {
	active, err := c.settings.Resolve(ctx, opts.ServiceID)
	if err != nil {
		return nil, Request{}, err
	}
	doc := active.Document
	ov := c.overrides

	lang := firstNonEmpty(opts.TargetLanguage, ov.TargetLanguage, doc.TargetLanguage)
	tpl := active.Prompt.Template
	if tpl == "" {
		tpl = prompt.DefaultTemplate
	}

	profile := active.Service.ProviderProfile()
	if profile.MaxTokens == 0 && doc.MaxTokens != nil {
		profile.MaxTokens = *doc.MaxTokens
	}
	in := provider.Input{
		Text:           text,
		TargetLanguage: lang,
		Instructions:   prompt.Render(tpl, prompt.Vars(text, lang)),
		Profile:        profile,
		Stream:         pick(doc.Stream, ov.Stream, opts.Stream),
	}
	store := pick(doc.StoreResponses, ov.StoreResponses)
	if active.Service.Kind == provider.KindResponses && store {
		in.Store = true
		if c.sessions != nil {
			prev, err := c.sessions.PreviousResponseID(ctx)
			if err != nil {
				return nil, Request{}, err
			}
			in.PreviousResponseID = prev
		}
	}

	timeout := time.Duration(doc.TimeoutMs) * time.Millisecond
	if ov.Timeout > 0 {
		timeout = ov.Timeout
	}
	retries := doc.Retries
	if ov.Retries != nil {
		retries = *ov.Retries
	}

	callerOpts := append([]CallerOption{}, c.opts...)
	callerOpts = append(callerOpts, WithTimeout(timeout))

	debug.Log("providers", "translation prepared", "service", active.Service.ID, "kind", active.Service.Kind,
		"lang", lang, "stream", in.Stream, "retries", retries, "chars", len(text))

	req := Request{
		Target: Target{Kind: active.Service.Kind, BaseURL: active.Service.BaseURL, APIKey: active.APIKey},
		Input:  in,
	}
	return NewOrchestrator(NewCaller(callerOpts...), retries), req, nil
}

// record keeps the response id for the next request. A failure to persist
// it does not fail the translation.
func (c *Client) record(ctx context.Context, req Request, reply Reply) {
	if c.sessions == nil || reply.ResponseID == "" || reply.Protocol != provider.KindResponses {
		return
	}
	if err := c.sessions.RecordResponse(ctx, reply.ResponseID, req.Input.Store); err != nil {
		slog.Warn("could not record response id", "response_id", reply.ResponseID, "error", err)
	}
}

// pick returns the last non-nil override, or def.
func pick(def bool, overrides ...*bool) bool {
	for _, o := range overrides {
		if o != nil {
			def = *o
		}
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
