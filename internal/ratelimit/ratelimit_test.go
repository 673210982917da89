package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/inkpress/emagazine/internal/kv"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(kv.NewFromClient(client), nil), mr
}

func TestWindowLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	spec := Spec{Max: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(ctx, "test", "IP1", spec), "request %d should pass", i+1)
	}
	require.False(t, l.Allow(ctx, "test", "IP1", spec))
}

func TestWindowResetsOnExpiry(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	spec := Spec{Max: 2, Window: time.Minute}

	require.True(t, l.Allow(ctx, "test", "IP1", spec))
	require.True(t, l.Allow(ctx, "test", "IP1", spec))
	require.False(t, l.Allow(ctx, "test", "IP1", spec))

	mr.FastForward(61 * time.Second)

	// First call of the new window passes and the effective count is 1.
	require.True(t, l.Allow(ctx, "test", "IP1", spec))
	val, err := mr.Get(kv.RateLimitPrefix + "test:IP1")
	require.NoError(t, err)
	require.Equal(t, "1", val)
}

// Increments never extend the window; only key creation sets the TTL.
func TestIncrementDoesNotResetWindow(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	spec := Spec{Max: 100, Window: time.Minute}

	require.True(t, l.Allow(ctx, "test", "IP1", spec))
	mr.FastForward(30 * time.Second)
	require.True(t, l.Allow(ctx, "test", "IP1", spec))

	ttl := mr.TTL(kv.RateLimitPrefix + "test:IP1")
	require.LessOrEqual(t, ttl, 30*time.Second)
}

func TestSeparateIdentifiers(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	spec := Spec{Max: 1, Window: time.Minute}

	require.True(t, l.Allow(ctx, "test", "IP1", spec))
	require.False(t, l.Allow(ctx, "test", "IP1", spec))
	require.True(t, l.Allow(ctx, "test", "IP2", spec))
	require.True(t, l.Allow(ctx, "other", "IP1", spec))
}

// Twenty login attempts inside the hour pass, the twenty-first does not.
func TestLoginSpec(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.True(t, l.Allow(ctx, "login", "IP1", Login), "attempt %d should pass", i+1)
	}
	require.False(t, l.Allow(ctx, "login", "IP1", Login))
}

// The limiter fails open: an unreachable store admits the request.
func TestFailOpen(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()

	require.True(t, l.Allow(context.Background(), "test", "IP1", Spec{Max: 1, Window: time.Minute}))
}

func TestRetryAfter(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	spec := Spec{Max: 1, Window: time.Minute}

	require.True(t, l.Allow(ctx, "test", "IP1", spec))
	retry := l.RetryAfter(ctx, "test", "IP1")
	require.Greater(t, retry, time.Duration(0))
	require.LessOrEqual(t, retry, time.Minute)
}
