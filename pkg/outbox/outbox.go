// Package outbox manages the sync-event lifecycle over the metastore.
//
// An outbox row is inserted in the same transaction as the metadata
// mutation that produced it (the command layer does this), then driven
// through QUEUED, PROCESSING and a terminal DONE or FAILED by the sync
// handlers. Terminal rows never transition again; the metastore enforces
// that in the UPDATE itself.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/fault"
	"github.com/mezzofs/mezzofs/pkg/metastore"
	"github.com/mezzofs/mezzofs/pkg/metastore/models"
)

// Tracker drives sync-event status transitions.
type Tracker struct {
	store *metastore.Store
}

// NewTracker creates a Tracker on the given store.
func NewTracker(store *metastore.Store) *Tracker {
	return &Tracker{store: store}
}

// MarkQueued records broker acknowledgement of the enqueue. Called after
// the producing transaction committed; failure is logged, not surfaced,
// because the sweeper re-drives PENDING rows.
func (t *Tracker) MarkQueued(ctx context.Context, eventID string) {
	event, err := t.store.GetSyncEvent(ctx, eventID)
	if err != nil {
		logger.WarnCtx(ctx, "mark queued: event load failed",
			logger.KeySyncEventID, eventID,
			logger.KeyError, err.Error(),
		)
		return
	}
	event.Status = models.SyncQueued
	if err := t.store.UpdateSyncEvent(ctx, event); err != nil &&
		!errors.Is(err, models.ErrSyncEventTerminal) {
		logger.WarnCtx(ctx, "mark queued failed",
			logger.KeySyncEventID, eventID,
			logger.KeyError, err.Error(),
		)
	}
}

// MarkProcessing records handler pickup.
func (t *Tracker) MarkProcessing(ctx context.Context, event *models.SyncEvent) error {
	event.Status = models.SyncProcessing
	return t.store.UpdateSyncEvent(ctx, event)
}

// MarkDone records terminal success and stamps ProcessedAt.
func (t *Tracker) MarkDone(ctx context.Context, event *models.SyncEvent) error {
	now := time.Now()
	event.Status = models.SyncDone
	event.ProcessedAt = &now
	return t.store.UpdateSyncEvent(ctx, event)
}

// RetryOrFail handles a handler failure: below the retry budget the event
// goes to RETRYING and waits for the broker's backoff re-delivery; at
// budget it becomes FAILED with an alert-grade log carrying the full error
// chain. The returned error is always non-nil so the caller rethrows and
// the broker observes the failure.
func (t *Tracker) RetryOrFail(ctx context.Context, event *models.SyncEvent, action string, cause error) error {
	event.RetryCount++
	event.ErrorMessage = fault.Chain(cause)

	if event.RetryCount < event.MaxRetries {
		event.Status = models.SyncRetrying
		if err := t.store.UpdateSyncEvent(ctx, event); err != nil &&
			!errors.Is(err, models.ErrSyncEventTerminal) {
			logger.WarnCtx(ctx, "retry bookkeeping failed",
				logger.KeySyncEventID, event.ID,
				logger.KeyError, err.Error(),
			)
		}
		logger.WarnCtx(ctx, "sync action failed, will retry",
			logger.KeyAction, action,
			logger.KeySyncEventID, event.ID,
			logger.KeyRetryCount, event.RetryCount,
			logger.KeyMaxRetries, event.MaxRetries,
			logger.KeyError, cause.Error(),
		)
		return cause
	}

	now := time.Now()
	event.Status = models.SyncFailed
	event.ProcessedAt = &now
	if err := t.store.UpdateSyncEvent(ctx, event); err != nil &&
		!errors.Is(err, models.ErrSyncEventTerminal) {
		logger.WarnCtx(ctx, "failure bookkeeping failed",
			logger.KeySyncEventID, event.ID,
			logger.KeyError, err.Error(),
		)
	}
	logger.ErrorCtx(ctx, "sync action failed permanently",
		logger.KeyAction, action,
		logger.EntityAttr(string(event.TargetType), event.EntityID()),
		logger.KeySyncEventID, event.ID,
		logger.KeyRetryCount, event.RetryCount,
		logger.KeyError, fault.Chain(cause),
	)
	return cause
}
