package main

import (
	"net/http"

	"github.com/rhuss/dolmetsch/pkg/auth"
	"github.com/rhuss/dolmetsch/pkg/auth/apikey"
	"github.com/rhuss/dolmetsch/pkg/auth/jwt"
	"github.com/rhuss/dolmetsch/pkg/config"
)

// newAuthMiddleware builds the auth middleware for cfg. With type "none"
// every caller is anonymous, but the rate limit still applies.
func newAuthMiddleware(cfg config.AuthConfig, bypass []string) func(http.Handler) http.Handler {
	chain := &auth.AuthChain{DefaultDecision: auth.No}

	switch cfg.Type {
	case "apikey":
		entries := make([]apikey.Entry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			entries = append(entries, apikey.Entry{
				Key:      k.Key,
				Identity: auth.Identity{Subject: k.Subject, Tier: k.Tier},
			})
		}
		chain.Authenticators = append(chain.Authenticators, apikey.New(entries))
	case "jwt":
		chain.Authenticators = append(chain.Authenticators, jwt.New(jwt.Config{
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			JWKSURL:     cfg.JWT.JWKSURL,
			UserClaim:   cfg.JWT.UserClaim,
			TierClaim:   cfg.JWT.TierClaim,
			ScopesClaim: cfg.JWT.ScopesClaim,
			CacheTTL:    cfg.JWT.CacheTTL,
		}))
	default:
		chain.DefaultDecision = auth.Yes
	}

	var limiter auth.RateLimiter
	if cfg.RateLimit.RequestsPerMinute > 0 || len(cfg.RateLimit.Tiers) > 0 {
		limiter = auth.NewTokenBucketLimiter(cfg.RateLimit.Tiers, cfg.RateLimit.RequestsPerMinute)
	}
	return auth.Middleware(chain, limiter, bypass)
}
