package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still holds our token, so an
// expired lock reacquired by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// DefaultLockTTL bounds how long a crashed holder can block an account.
// It must exceed the longest expected publish call.
const DefaultLockTTL = 2 * time.Minute

// RedisLocker is a Locker backed by SET NX with a TTL, for deployments
// running more than one dispatcher process.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithTTL overrides the lock TTL.
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// NewRedisLocker creates a RedisLocker over an existing client.
func NewRedisLocker(client *redis.Client, opts ...RedisOption) (*RedisLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	l := &RedisLocker{
		client: client,
		prefix: "postflow:publock:",
		ttl:    DefaultLockTTL,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// TryLock implements Locker.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !acquired {
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Release must not inherit a cancelled publish context.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
		})
	}
	return release, true, nil
}
