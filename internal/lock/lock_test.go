package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryLocker(opts Options) (*MemoryLocker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLocker(opts)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestMemory_ReacquireOnlyAfterTTL(t *testing.T) {
	ctx := context.Background()
	l, now := memoryLocker(Options{TTL: 5 * time.Minute})

	ok, err := l.TryAcquire(ctx, "G1")
	require.NoError(t, err)
	assert.True(t, ok)

	*now = now.Add(4*time.Minute + 59*time.Second)
	ok, _ = l.TryAcquire(ctx, "G1")
	assert.False(t, ok, "held key acquired before TTL")

	*now = now.Add(time.Second)
	ok, _ = l.TryAcquire(ctx, "G1")
	assert.True(t, ok, "key not reacquirable after TTL")
}

func TestMemory_ExtendOnContention(t *testing.T) {
	ctx := context.Background()
	l, now := memoryLocker(Options{TTL: 5 * time.Minute, ExtendOnContention: true})

	ok, _ := l.TryAcquire(ctx, "G1")
	require.True(t, ok)

	*now = now.Add(4 * time.Minute)
	ok, _ = l.TryAcquire(ctx, "G1") // extends to t+9m
	require.False(t, ok)

	*now = now.Add(2 * time.Minute) // t+6m, past the original expiry
	ok, _ = l.TryAcquire(ctx, "G1")
	assert.False(t, ok, "contention should have extended the marker")

	*now = now.Add(5 * time.Minute)
	ok, _ = l.TryAcquire(ctx, "G1")
	assert.True(t, ok)
}

func TestMemory_KeysIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := memoryLocker(DefaultOptions())
	a, _ := l.TryAcquire(ctx, "A")
	b, _ := l.TryAcquire(ctx, "B")
	assert.True(t, a)
	assert.True(t, b)
}

func TestMemory_Release(t *testing.T) {
	ctx := context.Background()
	l, _ := memoryLocker(DefaultOptions())
	ok, _ := l.TryAcquire(ctx, "G1")
	require.True(t, ok)
	require.NoError(t, l.Release(ctx, "G1"))
	ok, _ = l.TryAcquire(ctx, "G1")
	assert.True(t, ok)
	assert.NoError(t, l.Release(ctx, "never-held"))
}

func TestMemory_ExactlyOneWinner(t *testing.T) {
	l := NewMemoryLocker(DefaultOptions())
	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.TryAcquire(context.Background(), "G1"); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, winners)
}

func TestMemory_DefaultTTL(t *testing.T) {
	l := NewMemoryLocker(Options{})
	assert.Equal(t, DefaultTTL, l.opts.TTL)
}

func redisLocker(t *testing.T, opts Options) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisLocker(rdb, opts), mr
}

func TestRedis_ReacquireOnlyAfterTTL(t *testing.T) {
	ctx := context.Background()
	l, mr := redisLocker(t, Options{TTL: 5 * time.Minute})

	ok, err := l.TryAcquire(ctx, "G1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists(redisKeyPrefix+"G1"))

	mr.FastForward(4 * time.Minute)
	ok, err = l.TryAcquire(ctx, "G1")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, err = l.TryAcquire(ctx, "G1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_ExtendOnContention(t *testing.T) {
	ctx := context.Background()
	l, mr := redisLocker(t, Options{TTL: 5 * time.Minute, ExtendOnContention: true})

	ok, _ := l.TryAcquire(ctx, "G1")
	require.True(t, ok)
	mr.FastForward(4 * time.Minute)
	ok, _ = l.TryAcquire(ctx, "G1")
	require.False(t, ok)
	assert.Equal(t, 5*time.Minute, mr.TTL(redisKeyPrefix+"G1"))
}

func TestRedis_Release(t *testing.T) {
	ctx := context.Background()
	l, mr := redisLocker(t, DefaultOptions())
	ok, _ := l.TryAcquire(ctx, "G1")
	require.True(t, ok)
	require.NoError(t, l.Release(ctx, "G1"))
	assert.False(t, mr.Exists(redisKeyPrefix+"G1"))
}
