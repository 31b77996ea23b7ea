package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishan-khatavkar/echoes-game/internal/logger"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client, time.Minute, logger.Discard())
	l.pollDelay = 5 * time.Millisecond
	return l, mr
}

func lockers(t *testing.T) map[string]Locker {
	rl, _ := newRedisLocker(t)
	return map[string]Locker{
		"redis": rl,
		"local": NewLocalLocker(),
	}
}

func TestLocker_Exclusive(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			var (
				inside  atomic.Int32
				maxSeen atomic.Int32
				wg      sync.WaitGroup
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					release, err := l.Acquire(context.Background(), "Spectre-41")
					if !assert.NoError(t, err) {
						return
					}
					n := inside.Add(1)
					if n > maxSeen.Load() {
						maxSeen.Store(n)
					}
					time.Sleep(2 * time.Millisecond)
					inside.Add(-1)
					release()
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), maxSeen.Load())
		})
	}
}

func TestLocker_IndependentUsers(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			releaseA, err := l.Acquire(context.Background(), "alice")
			require.NoError(t, err)
			defer releaseA()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			releaseB, err := l.Acquire(ctx, "bob")
			require.NoError(t, err)
			releaseB()
		})
	}
}

func TestLocker_ContextEnds(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			release, err := l.Acquire(context.Background(), "alice")
			require.NoError(t, err)
			defer release()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			_, err = l.Acquire(ctx, "alice")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotAcquired))
		})
	}
}

func TestRedisLocker_ReleaseOnlyOwnLock(t *testing.T) {
	l, mr := newRedisLocker(t)

	release, err := l.Acquire(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockKey("alice")))

	// Simulate expiry and takeover by another holder.
	mr.Set(lockKey("alice"), "someone-else")
	release()

	got, err := mr.Get(lockKey("alice"))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_TTL(t *testing.T) {
	l, mr := newRedisLocker(t)

	_, err := l.Acquire(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(lockKey("alice")))

	mr.FastForward(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release, err := l.Acquire(ctx, "alice")
	require.NoError(t, err)
	release()
	assert.False(t, mr.Exists(lockKey("alice")))
}

func TestLocalLocker_ReleaseTwice(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Acquire(context.Background(), "alice")
	require.NoError(t, err)
	release()
	release()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.slots)
}

func TestRedisLocker_DefaultTTLExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client, 0, logger.Discard())
	release, err := l.Acquire(context.Background(), "alice")
	require.NoError(t, err)
	defer release()
	assert.Equal(t, DefaultTTL, mr.TTL(lockKey("alice")))

	mr.FastForward(DefaultTTL + time.Second)
	assert.False(t, mr.Exists(lockKey("alice")))
}

func TestRedisLocker_RenewsWhileHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client, 300*time.Millisecond, logger.Discard())
	l.pollDelay = 5 * time.Millisecond

	release, err := l.Acquire(context.Background(), "alice")
	require.NoError(t, err)

	// Past the original expiry in server time, with renewals in between.
	mr.FastForward(200 * time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	mr.FastForward(200 * time.Millisecond)
	require.True(t, mr.Exists(lockKey("alice")))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "alice")
	assert.True(t, errors.Is(err, ErrNotAcquired))

	release()
	assert.False(t, mr.Exists(lockKey("alice")))

	// No renewal after release.
	mr.Set(lockKey("alice"), "someone-else")
	mr.SetTTL(lockKey("alice"), 100*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, mr.TTL(lockKey("alice")))
}

func TestRedisLocker_StopsRenewingLostLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client, 90*time.Millisecond, logger.Discard())
	release, err := l.Acquire(context.Background(), "alice")
	require.NoError(t, err)

	mr.Set(lockKey("alice"), "someone-else")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, time.Duration(0), mr.TTL(lockKey("alice")))

	release()
	got, err := mr.Get(lockKey("alice"))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
