// Package lock keeps a single scrape in flight per external identifier.
//
// Markers expire on their own, so a crashed scrape never wedges a key. A
// caller that loses the race pushes the holder's expiry out again when
// ExtendOnContention is set, which keeps a busy key closed while requests for
// it keep arriving.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/JustinTDCT/EpisodeVault/internal/metrics"
)

const DefaultTTL = 5 * time.Minute

type Locker interface {
	// TryAcquire reports whether the caller now holds key.
	TryAcquire(ctx context.Context, key string) (bool, error)
	// Release drops key early. Releasing an unheld key is a no-op.
	Release(ctx context.Context, key string) error
}

type Options struct {
	TTL                time.Duration
	ExtendOnContention bool
}

func DefaultOptions() Options {
	return Options{TTL: DefaultTTL, ExtendOnContention: true}
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	return o
}

// sweepThreshold is the table size above which expired markers are purged.
const sweepThreshold = 1024

// MemoryLocker is an in-process keyed table of expiries.
type MemoryLocker struct {
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryLocker(opts Options) *MemoryLocker {
	return &MemoryLocker{
		opts:    opts.withDefaults(),
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
}

func (l *MemoryLocker) TryAcquire(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.entries[key]; ok && now.Before(exp) {
		if l.opts.ExtendOnContention {
			l.entries[key] = now.Add(l.opts.TTL)
		}
		metrics.LockContention.Inc()
		return false, nil
	}
	if len(l.entries) >= sweepThreshold {
		for k, exp := range l.entries {
			if !now.Before(exp) {
				delete(l.entries, k)
			}
		}
	}
	l.entries[key] = now.Add(l.opts.TTL)
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
	return nil
}
