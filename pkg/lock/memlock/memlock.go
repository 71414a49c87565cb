// Package memlock is the in-process lock.Locker used in single-node mode
// and in tests. Leases are plain mutexes keyed by name; TTL and renewal
// are irrelevant because a crashed process releases everything.
package memlock

import (
	"context"
	"sync"
	"time"

	"github.com/mezzofs/mezzofs/pkg/lock"
)

type entry struct {
	ch   chan struct{} // capacity 1; holding the token = holding the lease
	refs int
}

// Locker is a process-local lock.Locker.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New creates an empty in-process locker.
func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

func (l *Locker) get(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *Locker) put(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// WithLock acquires the named lease, runs fn, and releases on exit.
func (l *Locker) WithLock(ctx context.Context, key string, opts lock.Options, fn func(ctx context.Context) error) error {
	opts = opts.Normalize()

	e := l.get(key)
	defer l.put(key, e)

	wait := time.NewTimer(opts.WaitTimeout)
	defer wait.Stop()

	select {
	case e.ch <- struct{}{}:
	case <-wait.C:
		return lock.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.ch }()

	return fn(ctx)
}
