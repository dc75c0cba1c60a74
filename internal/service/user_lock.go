package service

import (
	"context"
	"sync"
)

// UserLock serializes schedule-mutating operations per user. It protects
// a single running instance only: the registry lives in process memory,
// so multi-instance deployments additionally need an external lease
// (a distributed lock service or a conditional database update).
//
// Acquire blocks on a per-key channel instead of polling, so a waiter
// wakes as soon as the holder releases.
type UserLock struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewUserLock creates an empty lock registry.
func NewUserLock() *UserLock {
	return &UserLock{
		held: make(map[string]chan struct{}),
	}
}

// Acquire claims the key for the caller, waiting for any current holder
// to release first. It returns the context error if ctx is done before
// the claim succeeds.
func (l *UserLock) Acquire(ctx context.Context, key string) error {
	for {
		l.mu.Lock()
		ch, taken := l.held[key]
		if !taken {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
			// Holder released; loop and try to claim.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release gives up the key and wakes all waiters. Releasing a key that is
// not held is a no-op.
func (l *UserLock) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, taken := l.held[key]; taken {
		delete(l.held, key)
		close(ch)
	}
}
