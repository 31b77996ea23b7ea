package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL       = 2 * time.Minute
	DefaultPollDelay = 100 * time.Millisecond
)

// Only delete if we own the lock
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Only extend the expiry if we still own the lock
var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisLocker takes locks with SET NX so every API process shares them.
// The TTL bounds how long a crashed holder blocks a session. A live holder
// renews its lock every third of the TTL until it releases.
type RedisLocker struct {
	client    *redis.Client
	ttl       time.Duration
	pollDelay time.Duration
	logger    *slog.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{
		client:    client,
		ttl:       ttl,
		pollDelay: DefaultPollDelay,
		logger:    logger,
	}
}

func lockKey(username string) string {
	return "session-lock:" + username
}

func (l *RedisLocker) Acquire(ctx context.Context, username string) (func(), error) {
	key := lockKey(username)
	owner := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("failed to acquire session lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
		case <-time.After(l.pollDelay):
		}
	}

	l.logger.Debug("Session lock acquired", "username", username)

	done := make(chan struct{})
	stopped := make(chan struct{})
	go l.renew(key, owner, username, done, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-stopped

			// The caller's context may already be cancelled; release regardless.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{key}, owner).Err(); err != nil {
				l.logger.Error("Failed to release session lock", "error", err, "username", username)
			}
		})
	}, nil
}

func (l *RedisLocker) renew(key, owner, username string, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		n, err := renewScript.Run(ctx, l.client, []string{key}, owner, l.ttl.Milliseconds()).Int()
		cancel()
		if err != nil {
			l.logger.Error("Failed to renew session lock", "error", err, "username", username)
			continue
		}
		if n == 0 {
			l.logger.Warn("Session lock lost before release", "username", username)
			return
		}
	}
}
