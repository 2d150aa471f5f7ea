package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/dolmetsch/pkg/api"
)

// Logging returns middleware that emits one structured log entry per
// request. The text itself is never logged, only its length.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Translator) Translator {
		return TranslatorFunc(func(ctx context.Context, req *Request, w ResponseWriter) error {
			start := time.Now()
			err := next.Translate(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("service", req.ServiceID),
				slog.String("lang", req.TargetLanguage),
				slog.Bool("stream", req.Streaming()),
				slog.Int("chars", len(req.Text)),
				slog.Duration("duration", time.Since(start)),
			}
			switch {
			case err == nil:
				logger.LogAttrs(ctx, slog.LevelInfo, "translation completed", attrs...)
			case api.IsKind(err, api.KindAbort):
				logger.LogAttrs(ctx, slog.LevelInfo, "translation cancelled", attrs...)
			default:
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "translation failed", attrs...)
			}
			return err
		})
	}
}
