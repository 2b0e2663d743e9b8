package lock

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/JustinTDCT/EpisodeVault/internal/metrics"
)

const redisKeyPrefix = "episodevault:scrapelock:"

// RedisLocker shares markers between worker processes.
type RedisLocker struct {
	rdb  redis.UniversalClient
	opts Options
}

func NewRedisLocker(rdb redis.UniversalClient, opts Options) *RedisLocker {
	return &RedisLocker{rdb: rdb, opts: opts.withDefaults()}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (bool, error) {
	k := redisKeyPrefix + key
	ok, err := l.rdb.SetNX(ctx, k, "1", l.opts.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire scrape lock %s: %w", key, err)
	}
	if ok {
		return true, nil
	}
	metrics.LockContention.Inc()
	if l.opts.ExtendOnContention {
		if err := l.rdb.PExpire(ctx, k, l.opts.TTL).Err(); err != nil {
			return false, fmt.Errorf("extend scrape lock %s: %w", key, err)
		}
	}
	return false, nil
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release scrape lock %s: %w", key, err)
	}
	return nil
}
