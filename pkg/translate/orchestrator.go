package translate

import (
	"context"
	"log/slog"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/debug"
)

// DefaultRetries is the number of extra attempts after the first one.
const DefaultRetries = 2

// Outcome describes how a request was served.
type Outcome struct {
	Reply

	// Attempts counts every HTTP attempt made, including a final
	// non-streaming call.
	Attempts int

	// FellBack is set when streaming produced no output and the text came
	// from a single non-streaming call.
	FellBack bool
}

// Orchestrator repeats failed attempts up to a bound.
type Orchestrator struct {
	caller     *Caller
	maxRetries int
	observer   Observer
}

// NewOrchestrator creates an Orchestrator that makes at most maxRetries+1
// attempts per request. A negative maxRetries is treated as zero.
func NewOrchestrator(caller *Caller, maxRetries int) *Orchestrator {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Orchestrator{caller: caller, maxRetries: maxRetries, observer: caller.observer}
}

// Translate performs a non-streaming request. Fatal errors (see api.Fatal)
// and non-retryable API errors end the loop at once; otherwise the last
// error is returned after maxRetries+1 attempts.
func (o *Orchestrator) Translate(ctx context.Context, req Request) (Outcome, error) {
	var out Outcome
	for attempt := 0; ; attempt++ {
		out.Attempts++
		reply, err := o.caller.Complete(ctx, req)
		if err == nil {
			out.Reply = reply
			return out, nil
		}
		if !api.Retryable(err) || attempt >= o.maxRetries {
			return out, err
		}
		debug.Log("providers", "retrying request", "attempt", attempt+1, "max", o.maxRetries, "error", err)
	}
}

// Stream performs a streaming request, calling emit with each text delta.
//
// A failed attempt is repeated only while nothing has been emitted; once
// text has reached emit, a failure is returned as is. If every streaming
// attempt failed without output, one non-streaming call is made and its
// text emitted in a single piece. Aborts and other fatal errors are never
// retried and never fall back.
func (o *Orchestrator) Stream(ctx context.Context, req Request, emit func(string) error) (Outcome, error) {
	var out Outcome
	for attempt := 0; ; attempt++ {
		out.Attempts++
		produced := false
		reply, err := o.caller.Stream(ctx, req, func(s string) error {
			produced = true
			return emit(s)
		})
		if err == nil {
			out.Reply = reply
			return out, nil
		}
		if produced || api.Fatal(err) {
			out.Reply = reply
			return out, err
		}
		if attempt >= o.maxRetries || !api.Retryable(err) {
			slog.Warn("streaming failed without output, falling back to a single request", "attempts", out.Attempts, "error", err)
			break
		}
		debug.Log("streaming", "retrying stream", "attempt", attempt+1, "max", o.maxRetries, "error", err)
	}

	o.observer.StreamFallback(req.Target.Kind)
	out.Attempts++
	reply, err := o.caller.Complete(ctx, req)
	if err != nil {
		return out, err
	}
	out.Reply = reply
	out.FellBack = true
	if reply.Text != "" {
		if err := emit(reply.Text); err != nil {
			return out, err
		}
	}
	return out, nil
}
