package transport

import (
	"context"
	"strings"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/provider"
	"github.com/rhuss/dolmetsch/pkg/translate"
)

// Request is one translation request.
type Request struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language,omitempty"`
	ServiceID      string `json:"service_id,omitempty"`
	Stream         *bool  `json:"stream,omitempty"`
}

// Streaming reports whether the caller asked for a streamed reply.
func (r *Request) Streaming() bool {
	return r.Stream != nil && *r.Stream
}

// Validate checks the request fields that do not depend on settings.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return api.NewConfigurationError(api.CodeMissingSetting, "text must not be empty")
	}
	return nil
}

// Result is the final answer to a Request.
type Result struct {
	ID         string          `json:"id"`
	Text       string          `json:"text"`
	ResponseID string          `json:"response_id,omitempty"`
	Protocol   provider.Kind   `json:"protocol"`
	Attempts   int             `json:"attempts"`
	FellBack   bool            `json:"fell_back,omitempty"`
	Usage      *provider.Usage `json:"usage,omitempty"`
}

// Translator handles a translation request. Streamed text goes to
// w.WriteDelta before the final w.WriteResult.
type Translator interface {
	Translate(ctx context.Context, req *Request, w ResponseWriter) error
}

// TranslatorFunc is an adapter that allows using an ordinary function
// as a Translator.
type TranslatorFunc func(ctx context.Context, req *Request, w ResponseWriter) error

// Translate calls f(ctx, req, w).
func (f TranslatorFunc) Translate(ctx context.Context, req *Request, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ResponseWriter abstracts streaming and non-streaming output.
//
// WriteDelta may be called any number of times before WriteResult.
// WriteResult ends the response; later writes return an error.
type ResponseWriter interface {
	// WriteDelta sends a piece of streamed text.
	WriteDelta(ctx context.Context, text string) error

	// WriteResult sends the final result.
	WriteResult(ctx context.Context, res *Result) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}

// ClientTranslator serves requests with c.
func ClientTranslator(c *translate.Client) Translator {
	return TranslatorFunc(func(ctx context.Context, req *Request, w ResponseWriter) error {
		if err := req.Validate(); err != nil {
			return err
		}
		opts := translate.Options{
			TargetLanguage: req.TargetLanguage,
			ServiceID:      req.ServiceID,
			Stream:         req.Stream,
		}

		var (
			out translate.Outcome
			err error
		)
		if req.Streaming() {
			out, err = c.Stream(ctx, req.Text, opts, func(s string) error {
				return w.WriteDelta(ctx, s)
			})
		} else {
			out, err = c.Translate(ctx, req.Text, opts)
		}
		if err != nil {
			return err
		}
		return w.WriteResult(ctx, &Result{
			ID:         RequestIDFromContext(ctx),
			Text:       out.Text,
			ResponseID: out.ResponseID,
			Protocol:   out.Protocol,
			Attempts:   out.Attempts,
			FellBack:   out.FellBack,
			Usage:      out.Usage,
		})
	})
}
