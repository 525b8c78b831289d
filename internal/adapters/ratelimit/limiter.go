package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// WindowStore is satisfied by redisad.RateStore.
type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	WindowState(ctx context.Context, key string) (int64, time.Duration, error)
}

// Window allows limit hits per key in each fixed window, counted in a shared store.
type Window struct {
	store  WindowStore
	scope  string
	limit  int
	window time.Duration
}

func NewWindow(store WindowStore, scope string, limit int, window time.Duration) *Window {
	if limit < 0 {
		limit = 0
	}
	return &Window{store: store, scope: scope, limit: limit, window: window}
}

func (w *Window) Allow(ctx context.Context, key string) (time.Duration, bool, error) {
	if w.limit == 0 {
		return 0, true, nil
	}
	if w.store == nil {
		return 0, false, fmt.Errorf("rate limiter store is nil")
	}
	count, ttl, err := w.store.IncrementWindow(ctx, w.key(key), w.window)
	if err != nil {
		return 0, false, err
	}
	if count > int64(w.limit) {
		return ceilSecond(ttl), false, nil
	}
	return 0, true, nil
}

// RetryAfter reports the remaining block without counting a hit.
func (w *Window) RetryAfter(ctx context.Context, key string) (time.Duration, error) {
	if w.limit == 0 || w.store == nil {
		return 0, nil
	}
	count, ttl, err := w.store.WindowState(ctx, w.key(key))
	if err != nil {
		return 0, err
	}
	if count >= int64(w.limit) {
		return ceilSecond(ttl), nil
	}
	return 0, nil
}

func (w *Window) key(k string) string { return "rate:" + w.scope + ":" + k }

// ceilSecond rounds up to whole seconds, at least one, for the Retry-After header.
func ceilSecond(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	s := d / time.Second
	if d%time.Second != 0 {
		s++
	}
	return s * time.Second
}
