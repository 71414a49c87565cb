// Package redlock implements lock.Locker on a single Redis instance.
//
// A lease is a key holding a random ownership token, written with SET NX
// and a TTL. Release and renew verify the token first so a lease that
// expired and was re-acquired elsewhere is never deleted or extended by
// the old holder. Loss of the lease mid-critical-section is tolerated:
// fn runs to completion and the next run reconciles.
package redlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/lock"
)

const (
	// keyPrefix namespaces lease keys within the shared Redis.
	keyPrefix = "mezzofs:lock:"

	// retryInterval is the poll period while waiting for a held lease.
	retryInterval = 250 * time.Millisecond
)

// releaseScript deletes the lease only when the token matches.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only when the token matches.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker is a Redis-backed lock.Locker.
type Locker struct {
	rdb redis.UniversalClient
}

// New creates a locker on the given Redis client.
func New(rdb redis.UniversalClient) *Locker {
	return &Locker{rdb: rdb}
}

// WithLock acquires the named exclusive lease, runs fn, and releases on
// exit. On wait-timeout it returns lock.ErrLockTimeout without running fn.
func (l *Locker) WithLock(ctx context.Context, key string, opts lock.Options, fn func(ctx context.Context) error) error {
	opts = opts.Normalize()

	leaseKey := keyPrefix + key
	token := uuid.New().String()

	if err := l.acquire(ctx, leaseKey, token, opts); err != nil {
		return err
	}

	renewCtx, stopRenew := context.WithCancel(ctx)
	defer stopRenew()
	if !opts.DisableAutoRenew {
		go l.renewLoop(renewCtx, key, leaseKey, token, opts)
	}

	fnErr := fn(ctx)

	stopRenew()
	// Release with a fresh context so cancellation of ctx cannot leak the
	// lease until TTL expiry.
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(releaseCtx, l.rdb, []string{leaseKey}, token).Err(); err != nil && err != redis.Nil {
		logger.Warn("lock release failed, lease will expire by TTL",
			logger.KeyLockKey, key,
			logger.KeyError, err.Error(),
		)
	}

	return fnErr
}

func (l *Locker) acquire(ctx context.Context, leaseKey, token string, opts lock.Options) error {
	deadline := time.Now().Add(opts.WaitTimeout)
	for {
		ok, err := l.rdb.SetNX(ctx, leaseKey, token, opts.TTL).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", leaseKey, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return lock.ErrLockTimeout
		}
		select {
		case <-time.After(retryInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Locker) renewLoop(ctx context.Context, key, leaseKey, token string, opts lock.Options) {
	ticker := time.NewTicker(opts.RenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := renewScript.Run(ctx, l.rdb, []string{leaseKey}, token, opts.TTL.Milliseconds()).Int()
			if err != nil && ctx.Err() == nil {
				logger.Warn("lock renew failed",
					logger.KeyLockKey, key,
					logger.KeyError, err.Error(),
				)
				continue
			}
			if res == 0 && ctx.Err() == nil {
				// Lease lost; let the critical section finish. Further
				// mutations are advisory and the next run reconciles.
				logger.Warn("lock lease lost during critical section",
					logger.KeyLockKey, key,
				)
				return
			}
		}
	}
}
