// Package redisq implements queue.Queue on Redis streams with consumer
// groups.
//
// Each named stream maps to a Redis stream key; one consumer group per
// stream gives exactly-one-consumer-at-a-time delivery, and unacked
// entries survive process restarts. Failed jobs are re-added with an
// incremented attempts field after the fixed backoff; jobs that exhaust
// their attempt budget are acked and logged.
package redisq

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/queue"
)

const (
	groupName    = "mezzofs-workers"
	keyPrefix    = "mezzofs:stream:"
	readBlock    = 2 * time.Second
	claimMinIdle = 60 * time.Second
)

// Queue is a Redis-streams broker.
type Queue struct {
	rdb      redis.UniversalClient
	consumer string

	mu     sync.Mutex
	closed bool
	cancel []context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a broker on the given Redis client. consumer names this
// process within the consumer group (typically hostname+pid).
func New(rdb redis.UniversalClient, consumer string) *Queue {
	return &Queue{rdb: rdb, consumer: consumer}
}

func streamKey(name string) string {
	return keyPrefix + name
}

// Enqueue submits a job to the named stream.
func (q *Queue) Enqueue(ctx context.Context, name string, payload []byte) (string, error) {
	id, err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(name),
		Values: map[string]any{"payload": payload, "attempts": 0},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue to %s: %w", name, err)
	}
	return id, nil
}

// Process registers a worker pool on the named stream.
func (q *Queue) Process(ctx context.Context, name string, handler queue.Handler, opts queue.Options) error {
	opts = opts.Normalize()

	key := streamKey(name)
	// Idempotent group creation; BUSYGROUP means it already exists.
	if err := q.rdb.XGroupCreateMkStream(ctx, key, groupName, "0").Err(); err != nil &&
		!isBusyGroup(err) {
		return fmt.Errorf("create consumer group for %s: %w", name, err)
	}

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
		go q.worker(ctx, name, key, fmt.Sprintf("%s-%d", q.consumer, i), handler, opts)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func (q *Queue) worker(ctx context.Context, name, key, consumer string, handler queue.Handler, opts queue.Options) {
	defer q.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}

		// Reclaim entries stuck with dead consumers before reading new ones.
		q.reclaim(ctx, name, key, consumer, handler, opts)

		res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    groupName,
			Consumer: consumer,
			Streams:  []string{key, ">"},
			Count:    1,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			logger.Warn("stream read failed",
				logger.KeyStream, name,
				logger.KeyError, err.Error(),
			)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				q.handle(ctx, name, key, msg, handler, opts)
			}
		}
	}
}

// reclaim takes over pending entries whose consumer has been idle past
// the claim threshold (crashed worker).
func (q *Queue) reclaim(ctx context.Context, name, key, consumer string, handler queue.Handler, opts queue.Options) {
	msgs, _, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   key,
		Group:    groupName,
		Consumer: consumer,
		MinIdle:  claimMinIdle,
		Start:    "0-0",
		Count:    8,
	}).Result()
	if err != nil || len(msgs) == 0 {
		return
	}
	for _, msg := range msgs {
		q.handle(ctx, name, key, msg, handler, opts)
	}
}

func (q *Queue) handle(ctx context.Context, name, key string, msg redis.XMessage, handler queue.Handler, opts queue.Options) {
	job := &queue.Job{ID: msg.ID}
	if p, ok := msg.Values["payload"].(string); ok {
		job.Payload = []byte(p)
	}
	if a, ok := msg.Values["attempts"].(string); ok {
		job.AttemptsMade, _ = strconv.Atoi(a)
	}

	err := handler(ctx, job)

	// Always ack the delivered entry; retries are modelled as fresh
	// entries carrying the incremented attempts counter.
	if ackErr := q.rdb.XAck(ctx, key, groupName, msg.ID).Err(); ackErr != nil {
		logger.Warn("stream ack failed",
			logger.KeyStream, name,
			"job_id", msg.ID,
			logger.KeyError, ackErr.Error(),
		)
	}
	q.rdb.XDel(ctx, key, msg.ID)

	if err == nil {
		return
	}

	attempts := job.AttemptsMade + 1
	if attempts >= opts.MaxAttempts {
		logger.Error("job exhausted attempts",
			logger.KeyStream, name,
			"job_id", msg.ID,
			logger.KeyAttempt, attempts,
			logger.KeyError, err.Error(),
		)
		return
	}

	logger.Debug("job failed, scheduling retry",
		logger.KeyStream, name,
		"job_id", msg.ID,
		logger.KeyAttempt, attempts,
		logger.KeyError, err.Error(),
	)
	payload := job.Payload
	timer := time.AfterFunc(opts.Backoff, func() {
		if err := q.rdb.XAdd(context.Background(), &redis.XAddArgs{
			Stream: key,
			Values: map[string]any{"payload": payload, "attempts": attempts},
		}).Err(); err != nil {
			logger.Error("retry enqueue failed",
				logger.KeyStream, name,
				logger.KeyError, err.Error(),
			)
		}
	})
	_ = timer
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
