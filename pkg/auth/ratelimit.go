package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter checks whether a request of identity may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// idleTTL is how long an unused bucket is kept.
const idleTTL = 10 * time.Minute

// TokenBucketLimiter keeps one token bucket per subject and tier. The
// bucket refills at the tier's requests per minute and holds a minute of
// burst.
type TokenBucketLimiter struct {
	tiers      map[string]int
	defaultRPM int

	mu      sync.Mutex
	buckets map[string]*bucket
	swept   time.Time
	now     func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucketLimiter creates a limiter. tiers maps a tier name to its
// requests per minute; other tiers get defaultRPM. A limit of zero or less
// means unlimited.
func NewTokenBucketLimiter(tiers map[string]int, defaultRPM int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		buckets:    make(map[string]*bucket),
		now:        time.Now,
	}
}

// Allow takes a token from the caller's bucket.
func (l *TokenBucketLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.Tier
	if tier == "" {
		tier = "default"
	}
	rpm := l.defaultRPM
	if n, ok := l.tiers[tier]; ok {
		rpm = n
	}
	if rpm <= 0 {
		return nil
	}

	key := identity.Subject + ":" + tier
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(float64(rpm)/60), rpm)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.sweep(now)

	if !b.lim.AllowN(now, 1) {
		return ErrTooManyRequests
	}
	return nil
}

// Len returns the number of live buckets.
func (l *TokenBucketLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// sweep drops idle buckets at most once per idleTTL. l.mu must be held.
func (l *TokenBucketLimiter) sweep(now time.Time) {
	if now.Sub(l.swept) < idleTTL {
		return
	}
	l.swept = now
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > idleTTL {
			delete(l.buckets, k)
		}
	}
}
