// Package lock defines the distributed-lock port used to serialize sync
// jobs per entity.
//
// Lock keys are entity-scoped ("folder-sync:{id}", "file-sync:{id}") so
// jobs for the same folder or file never overlap anywhere in the cluster,
// while distinct entities proceed in parallel.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLockTimeout is returned when the lease cannot be acquired within the
// wait timeout. Callers reschedule rather than fail permanently.
var ErrLockTimeout = errors.New("lock wait timeout")

// Default lease parameters.
const (
	DefaultTTL           = 60 * time.Second
	DefaultWaitTimeout   = 30 * time.Second
	DefaultRenewInterval = 25 * time.Second
)

// Options tunes a single WithLock call. Zero values take the defaults;
// AutoRenew defaults to on (set DisableAutoRenew to opt out).
type Options struct {
	// TTL is the lease lifetime. Renewed while fn runs unless auto-renew
	// is disabled.
	TTL time.Duration

	// WaitTimeout bounds the time spent waiting for a held lease.
	WaitTimeout time.Duration

	// RenewInterval is the auto-renew period. Must be below TTL.
	RenewInterval time.Duration

	// DisableAutoRenew turns off background lease renewal.
	DisableAutoRenew bool
}

// Normalize fills zero fields with defaults.
func (o Options) Normalize() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = DefaultWaitTimeout
	}
	if o.RenewInterval <= 0 {
		o.RenewInterval = DefaultRenewInterval
	}
	return o
}

// Locker is the distributed-lock port.
type Locker interface {
	// WithLock acquires the named exclusive lease, runs fn, and releases
	// on exit regardless of fn's outcome. If the lease is lost while fn
	// runs, fn completes; the next run reconciles any divergence.
	WithLock(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error
}

// FolderKey returns the lock key serializing sync jobs for a folder.
func FolderKey(folderID string) string {
	return fmt.Sprintf("folder-sync:%s", folderID)
}

// FileKey returns the lock key serializing sync jobs for a file.
func FileKey(fileID string) string {
	return fmt.Sprintf("file-sync:%s", fileID)
}
