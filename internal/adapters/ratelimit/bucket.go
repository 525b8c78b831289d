package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxIdleKeys = 10000

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Bucket is the in-process fallback when redis is not configured:
// a token bucket per key refilling limit tokens every window.
type Bucket struct {
	mu     sync.Mutex
	keys   map[string]*bucket
	limit  int
	every  rate.Limit
	window time.Duration
	now    func() time.Time
}

func NewBucket(limit int, window time.Duration) *Bucket {
	b := &Bucket{keys: map[string]*bucket{}, limit: limit, window: window, now: time.Now}
	if limit > 0 {
		b.every = rate.Every(window / time.Duration(limit))
	}
	return b
}

func (b *Bucket) Allow(ctx context.Context, key string) (time.Duration, bool, error) {
	if b.limit <= 0 {
		return 0, true, nil
	}
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()
	bk, ok := b.keys[key]
	if !ok {
		if len(b.keys) >= maxIdleKeys {
			b.prune(now)
		}
		bk = &bucket{lim: rate.NewLimiter(b.every, b.limit)}
		b.keys[key] = bk
	}
	bk.seen = now

	r := bk.lim.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return ceilSecond(d), false, nil
	}
	return 0, true, nil
}

// prune drops keys idle for a full window; their buckets are full again anyway.
func (b *Bucket) prune(now time.Time) {
	for k, bk := range b.keys {
		if now.Sub(bk.seen) > b.window {
			delete(b.keys, k)
		}
	}
}
