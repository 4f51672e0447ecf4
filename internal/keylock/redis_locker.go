package keylock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

const (
	defaultLockTTL      = 10 * time.Second
	defaultPollInterval = 25 * time.Millisecond
	defaultLockWait     = 5 * time.Second
)

// RedisConfig configures a RedisLocker.
type RedisConfig struct {
	Addr     string
	Password string
	Prefix   string
	// TTL bounds how long a crashed holder can keep a key locked.
	TTL          time.Duration
	Wait         time.Duration
	PollInterval time.Duration
}

// RedisLocker implements Locker with SET NX PX and a compare-and-delete release.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewRedisLocker creates a Redis-backed distributed locker.
func NewRedisLocker(cfg RedisConfig) (*RedisLocker, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("keylock redis addr is required")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "library:lock"
	}
	l := &RedisLocker{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
		}),
		prefix: prefix,
		ttl:    cfg.TTL,
		wait:   cfg.Wait,
		poll:   cfg.PollInterval,
	}
	if l.ttl <= 0 {
		l.ttl = defaultLockTTL
	}
	if l.wait <= 0 {
		l.wait = defaultLockWait
	}
	if l.poll <= 0 {
		l.poll = defaultPollInterval
	}
	return l, nil
}

// Lock polls until the key is acquired, the wait budget runs out, or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + ":" + key
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire %s: %w", redisKey, err)
		}
		if ok {
			return l.unlocker(redisKey, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlocker(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
				slog.Warn("release lock failed", "key", redisKey, "err", err)
			}
		})
	}
}

// Close releases the Redis client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
