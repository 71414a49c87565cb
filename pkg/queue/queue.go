// Package queue defines the durable job-queue port.
//
// The broker delivers each job to exactly one consumer at a time and
// survives process restarts. Delivery is at-least-once: handlers must be
// idempotent. Failed jobs are re-delivered after a fixed backoff until
// MaxAttempts is reached.
package queue

import (
	"context"
	"time"
)

// Default broker parameters.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 3 * time.Second
	DefaultConcurrency = 5
)

// Job is a single unit of work delivered to a handler.
type Job struct {
	// ID is the broker-assigned job id.
	ID string

	// Payload is the opaque job body, typically JSON.
	Payload []byte

	// AttemptsMade counts completed delivery attempts before this one.
	// Zero on first delivery.
	AttemptsMade int
}

// Handler processes one job. Returning an error re-queues the job until
// the attempt budget is exhausted.
type Handler func(ctx context.Context, job *Job) error

// Options tunes a worker pool registration.
type Options struct {
	// Concurrency is the number of parallel workers. Default 5.
	Concurrency int

	// MaxAttempts is the total delivery budget per job. Default 3.
	MaxAttempts int

	// Backoff is the fixed delay before a failed job is re-delivered.
	// Default 3s.
	Backoff time.Duration
}

// Normalize fills zero fields with defaults.
func (o Options) Normalize() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	return o
}

// Queue is the broker port.
type Queue interface {
	// Enqueue submits a job to the named stream and returns its id.
	Enqueue(ctx context.Context, stream string, payload []byte) (string, error)

	// Process registers a worker pool on the named stream. It returns
	// once the workers are running; they stop when ctx is cancelled or
	// the queue is closed.
	Process(ctx context.Context, stream string, handler Handler, opts Options) error

	// Close stops all workers and releases broker resources.
	Close() error
}
