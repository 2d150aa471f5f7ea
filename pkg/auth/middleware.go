package auth

import (
	"log/slog"
	"net/http"

	"github.com/rhuss/dolmetsch/pkg/api"
	"github.com/rhuss/dolmetsch/pkg/observability"
	"github.com/rhuss/dolmetsch/pkg/transport"
)

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/metrics"}

// Middleware creates HTTP middleware from an AuthChain and an optional
// RateLimiter. Paths in bypassEndpoints are served without checks.
// Rejections are JSON error replies.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)
			if result.Decision != Yes || result.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				observability.AuthRejectionsTotal.WithLabelValues("unauthenticated").Inc()
				w.Header().Set("WWW-Authenticate", "Bearer")
				transport.WriteErrorResponse(w,
					api.NewAuthenticationError("unauthenticated", "authentication required"),
					http.StatusUnauthorized,
				)
				return
			}

			if result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				transport.WriteErrorResponse(w,
					api.NewAPIError(http.StatusInternalServerError, "internal authentication error"),
					http.StatusInternalServerError,
				)
				return
			}

			slog.Debug("authentication succeeded",
				"subject", result.Identity.Subject,
				"path", r.URL.Path,
			)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), result.Identity); err != nil {
					slog.Warn("rate limit exceeded",
						"subject", result.Identity.Subject,
						"tier", result.Identity.Tier,
					)
					observability.AuthRejectionsTotal.WithLabelValues("rate_limited").Inc()
					transport.WriteErrorResponse(w,
						api.NewAPIError(http.StatusTooManyRequests, "rate limit exceeded"),
						http.StatusTooManyRequests,
					)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), result.Identity)))
		})
	}
}
