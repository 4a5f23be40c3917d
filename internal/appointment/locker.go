package appointment

import (
	"context"
	"sync"
)

// Locker guards the critical section of a slot claim per bucket key.
// redisclient.Locker satisfies it across processes.
type Locker interface {
	WithBucketLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// LocalLocker serializes claims inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) WithBucketLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
