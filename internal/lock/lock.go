// Package lock serializes cookie scans, within one process or across
// replicas sharing a Redis instance.
package lock

import (
	"context"
	"sync"
)

// Locker grants exclusive access. Acquire blocks until the lock is held or
// ctx is done. The returned release function is idempotent.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Local is an in-process lock.
type Local struct {
	ch chan struct{}
}

// NewLocal creates an unlocked Local.
func NewLocal() *Local {
	return &Local{ch: make(chan struct{}, 1)}
}

// Acquire implements Locker.
func (l *Local) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-l.ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
