package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/inkpress/emagazine/internal/kv"
)

// Spec is a fixed-window limit: at most Max requests per Window.
type Spec struct {
	Max    int64
	Window time.Duration
}

// Named limits. The caller picks the identifier granularity (client IP for
// anonymous actions, subject id for authenticated ones).
var (
	Login      = Spec{Max: 20, Window: time.Hour}
	Signup     = Spec{Max: 60, Window: time.Hour}
	PostCreate = Spec{Max: 50, Window: time.Hour}
	API        = Spec{Max: 100, Window: time.Minute}
)

// Limiter counts requests in fixed windows backed by the shared KV store.
// Fixed-window means a burst is possible across a window boundary; that is
// the accepted cost of two O(1) store operations per check.
type Limiter struct {
	KV  *kv.Store
	Log *slog.Logger
}

func New(store *kv.Store, log *slog.Logger) *Limiter {
	return &Limiter{KV: store, Log: log}
}

// Allow increments the counter for action+identifier and reports whether
// the request fits the spec. The window TTL is set only when the increment
// creates the counter, so the window resets only on key creation.
//
// Failure policy: fail-open. If the store is unreachable the request is
// allowed and a warning is logged; throttling degrades rather than taking
// every endpoint down with it. Authentication stays fail-closed elsewhere.
func (l *Limiter) Allow(ctx context.Context, action, identifier string, spec Spec) bool {
	key := kv.RateLimitPrefix + action + ":" + identifier
	n, err := l.KV.Incr(ctx, key)
	if err != nil {
		l.logger().WarnContext(ctx, "rate limiter store unavailable, allowing request",
			"action", action, "error", err)
		return true
	}
	if n == 1 {
		if err := l.KV.Expire(ctx, key, spec.Window); err != nil {
			l.logger().WarnContext(ctx, "rate limiter failed to set window expiry",
				"action", action, "error", err)
		}
	}
	return n <= spec.Max
}

// RetryAfter returns the remaining window for action+identifier, for the
// Retry-After header. Zero when unknown.
func (l *Limiter) RetryAfter(ctx context.Context, action, identifier string) time.Duration {
	ttl, err := l.KV.TTL(ctx, kv.RateLimitPrefix+action+":"+identifier)
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

func (l *Limiter) logger() *slog.Logger {
	if l.Log != nil {
		return l.Log
	}
	return slog.Default()
}
