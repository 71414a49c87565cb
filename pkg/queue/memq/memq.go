// Package memq is the in-process queue.Queue used in single-node mode and
// in tests. Jobs live in memory only; durability comes from the outbox
// sweeper re-enqueueing PENDING sync events after a restart.
package memq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/queue"
)

const streamBuffer = 1024

type delivery struct {
	job queue.Job
}

type stream struct {
	ch   chan delivery
	once sync.Once
}

// Queue is a channel-backed broker.
type Queue struct {
	mu      sync.Mutex
	streams map[string]*stream
	closed  bool

	wg     sync.WaitGroup
	cancel []context.CancelFunc

	// pending counts jobs enqueued or awaiting retry, for Drain.
	pending sync.WaitGroup
}

// New creates an empty in-process queue.
func New() *Queue {
	return &Queue{streams: make(map[string]*stream)}
}

func (q *Queue) getStream(name string) *stream {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.streams[name]
	if !ok {
		s = &stream{ch: make(chan delivery, streamBuffer)}
		q.streams[name] = s
	}
	return s
}

// Enqueue submits a job to the named stream.
func (q *Queue) Enqueue(ctx context.Context, name string, payload []byte) (string, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", fmt.Errorf("queue closed")
	}
	q.mu.Unlock()

	job := queue.Job{ID: uuid.New().String(), Payload: payload}
	s := q.getStream(name)
	q.pending.Add(1)
	select {
	case s.ch <- delivery{job: job}:
		return job.ID, nil
	case <-ctx.Done():
		q.pending.Done()
		return "", ctx.Err()
	}
}

// Process registers a worker pool on the named stream.
func (q *Queue) Process(ctx context.Context, name string, handler queue.Handler, opts Options) error {
	return q.process(ctx, name, handler, queue.Options(opts))
}

// Options aliases queue.Options so callers can use either package's type.
type Options = queue.Options

func (q *Queue) process(ctx context.Context, name string, handler queue.Handler, opts queue.Options) error {
	opts = opts.Normalize()
	s := q.getStream(name)

	ctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		cancel()
		return fmt.Errorf("queue closed")
	}
	q.cancel = append(q.cancel, cancel)
	q.mu.Unlock()

	for i := 0; i < opts.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker(ctx, name, s, handler, opts)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, name string, s *stream, handler queue.Handler, opts queue.Options) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.ch:
			q.handle(ctx, name, s, d, handler, opts)
		}
	}
}

func (q *Queue) handle(ctx context.Context, name string, s *stream, d delivery, handler queue.Handler, opts queue.Options) {
	job := d.job
	err := handler(ctx, &job)
	if err == nil {
		q.pending.Done()
		return
	}

	job.AttemptsMade++
	if job.AttemptsMade >= opts.MaxAttempts {
		logger.Error("job exhausted attempts",
			logger.KeyStream, name,
			"job_id", job.ID,
			logger.KeyAttempt, job.AttemptsMade,
			logger.KeyError, err.Error(),
		)
		q.pending.Done()
		return
	}

	logger.Debug("job failed, scheduling retry",
		logger.KeyStream, name,
		"job_id", job.ID,
		logger.KeyAttempt, job.AttemptsMade,
		logger.KeyError, err.Error(),
	)
	timer := time.AfterFunc(opts.Backoff, func() {
		select {
		case s.ch <- delivery{job: job}:
		case <-ctx.Done():
			q.pending.Done()
		}
	})
	_ = timer
}

// Drain blocks until every enqueued job has reached a terminal outcome
// (handled successfully or exhausted its attempts). Test helper.
func (q *Queue) Drain() {
	q.pending.Wait()
}

// Close stops all workers.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	cancels := q.cancel
	q.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	q.wg.Wait()
	return nil
}
