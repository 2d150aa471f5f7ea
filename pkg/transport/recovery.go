package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recovery returns middleware that turns a panic in the handler into an
// error. The server keeps accepting requests after a recovered panic.
func Recovery() Middleware {
	return func(next Translator) Translator {
		return TranslatorFunc(func(ctx context.Context, req *Request, w ResponseWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in translation handler",
						"request_id", RequestIDFromContext(ctx),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					retErr = fmt.Errorf("internal server error: %v", r)
				}
			}()
			return next.Translate(ctx, req, w)
		})
	}
}
