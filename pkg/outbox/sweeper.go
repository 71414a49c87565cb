package outbox

import (
	"context"
	"time"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/metastore"
	"github.com/mezzofs/mezzofs/pkg/metastore/models"
)

// EnqueueFunc re-submits one sync event to the broker. Supplied by the
// sync dispatcher, which knows how to rebuild the job payload.
type EnqueueFunc func(ctx context.Context, event *models.SyncEvent) error

// Sweeper periodically re-enqueues stuck sync events: PENDING rows whose
// producing process crashed between commit and enqueue, and RETRYING rows
// whose broker re-delivery was lost.
type Sweeper struct {
	store    *metastore.Store
	enqueue  EnqueueFunc
	interval time.Duration
	minAge   time.Duration
	batch    int
}

// NewSweeper creates a sweeper scanning every interval for stuck rows
// untouched for at least minAge.
func NewSweeper(store *metastore.Store, enqueue EnqueueFunc, interval, minAge time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if minAge <= 0 {
		minAge = 15 * time.Second
	}
	return &Sweeper{
		store:    store,
		enqueue:  enqueue,
		interval: interval,
		minAge:   minAge,
		batch:    100,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep re-enqueues one batch of stale events.
func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.minAge)
	events, err := s.store.ListStaleSyncEvents(ctx, cutoff, s.batch)
	if err != nil {
		logger.Warn("outbox sweep scan failed", logger.KeyError, err.Error())
		return
	}
	for _, event := range events {
		if err := s.enqueue(ctx, event); err != nil {
			logger.Warn("outbox sweep re-enqueue failed",
				logger.KeySyncEventID, event.ID,
				logger.KeyError, err.Error(),
			)
			continue
		}
		logger.Info("outbox sweep re-enqueued stale event",
			logger.KeySyncEventID, event.ID,
			logger.KeyAction, string(event.EventType),
		)
	}
}
