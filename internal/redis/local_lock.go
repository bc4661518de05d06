package redisclient

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// localLocker is an in-process Locker for single-replica deployments and
// tests. Semaphores are kept per key and never evicted.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
	wait  time.Duration
}

func NewLocalLocker(wait time.Duration) Locker {
	return &localLocker{
		locks: make(map[string]chan struct{}),
		wait:  wait,
	}
}

func (l *localLocker) semaphore(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[key] = sem
	}
	return sem
}

func (l *localLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	sem := l.semaphore(key)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
	case <-timer.C:
		return ErrLockNotAcquired
	case <-ctx.Done():
		return fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
	}
	defer func() { <-sem }()

	return fn(ctx)
}
