package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key namespaces shared with every other process talking to the same store.
// The exact strings matter for interop, do not change them.
const (
	BlacklistPrefix = "token:blacklist:"
	SessionPrefix   = "session:jti:"
	RateLimitPrefix = "rate-limit:"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

const defaultOpTimeout = 2 * time.Second

type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store is a thin adapter over a shared Redis instance. All cross-request
// coordination (revocation visibility, rate-limit counters) relies on the
// store's own atomicity for INCR and SET-with-expiry.
type Store struct {
	client  *redis.Client
	timeout time.Duration
}

// Connect opens a client and verifies the connection with a ping.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	s := &Store{client: client, timeout: defaultOpTimeout}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("kv: connect %s: %w", cfg.Addr, err)
	}
	return s, nil
}

// NewFromClient wraps an existing client. Used by tests with miniredis.
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client, timeout: defaultOpTimeout}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

// Set writes key=value with the given TTL. A zero ttl stores the key
// without expiry.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Incr atomically increments the integer at key, creating it at 1.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.client.Incr(ctx, key).Result()
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.client.TTL(ctx, key).Result()
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.client.Del(ctx, keys...).Err()
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

// Scan walks all keys matching pattern. Meant for rare admin operations
// (session enumeration), not hot paths.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}
