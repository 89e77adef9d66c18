// Package lock provides an optional cross-replica lock over identifier
// values. A single process serializes overlapping resolutions through the
// store transaction; the Redis lock extends that guarantee across replicas
// and reduces serialization aborts on the database.
package lock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"identity-link/pkg/platform/sentinel"
)

// Locker acquires an exclusive lock over a set of identifier keys. The
// returned release function is safe to call exactly once.
type Locker interface {
	Acquire(ctx context.Context, keys []string) (func(), error)
}

const (
	defaultTTL        = 10 * time.Second
	defaultRetryDelay = 25 * time.Millisecond
)

// releaseScript deletes a lock key only when it still holds our token, so an
// expired-and-reacquired lock is never released by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Client is the subset of go-redis used by the locker. *redis.Client
// satisfies it.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker implements Locker over go-redis.
type RedisLocker struct {
	client     Client
	ttl        time.Duration
	retryDelay time.Duration
}

// Option configures a RedisLocker.
type Option func(*RedisLocker)

// WithTTL overrides the lock expiry. Keep it above the transaction timeout.
func WithTTL(ttl time.Duration) Option {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func NewRedisLocker(client Client, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		client:     client,
		ttl:        defaultTTL,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire takes the keys in sorted order so two requests sharing a subset of
// identifiers cannot deadlock. Blocks until all keys are held or ctx ends.
func (l *RedisLocker) Acquire(ctx context.Context, keys []string) (func(), error) {
	ordered := sortedUnique(keys)
	token := uuid.NewString()

	held := make([]string, 0, len(ordered))
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = releaseScript.Run(releaseCtx, l.client, []string{held[i]}, token).Err()
		}
	}

	for _, key := range ordered {
		if err := l.acquireOne(ctx, key, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (l *RedisLocker) acquireOne(ctx context.Context, key, token string) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %q: %w: %w", key, sentinel.ErrUnavailable, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire lock %q: %w", key, ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}
}

func sortedUnique(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
