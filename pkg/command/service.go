package command

import (
	"context"
	"time"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/metastore"
	"github.com/mezzofs/mezzofs/pkg/nashealth"
	"github.com/mezzofs/mezzofs/pkg/outbox"
	"github.com/mezzofs/mezzofs/pkg/queue"
	"github.com/mezzofs/mezzofs/pkg/syncer"
)

// DefaultTrashRetention is how long trashed entities keep their restore
// window before a retention sweep may purge them.
const DefaultTrashRetention = 30 * 24 * time.Hour

// deps bundles what both command services need.
type deps struct {
	store          *metastore.Store
	queue          queue.Queue
	tracker        *outbox.Tracker
	health         *nashealth.Cache
	trashRetention time.Duration
}

// Options configures the command services.
type Options struct {
	// TrashRetention sets the trash expiry window. Default 30 days.
	TrashRetention time.Duration
}

func newDeps(store *metastore.Store, q queue.Queue, tracker *outbox.Tracker, health *nashealth.Cache, opts Options) deps {
	if opts.TrashRetention <= 0 {
		opts.TrashRetention = DefaultTrashRetention
	}
	return deps{
		store:          store,
		queue:          q,
		tracker:        tracker,
		health:         health,
		trashRetention: opts.TrashRetention,
	}
}

// enqueueSync submits the NAS job for a committed sync event and records
// broker acknowledgement. Enqueue failure is logged, not surfaced: the
// metadata is committed and the outbox sweeper re-drives PENDING rows.
func (d *deps) enqueueSync(ctx context.Context, stream string, payload *syncer.Payload) {
	body, err := payload.Encode()
	if err != nil {
		logger.ErrorCtx(ctx, "sync payload encode failed",
			logger.KeySyncEventID, payload.SyncEventID,
			logger.KeyError, err.Error(),
		)
		return
	}
	if _, err := d.queue.Enqueue(ctx, stream, body); err != nil {
		logger.WarnCtx(ctx, "sync enqueue failed, sweeper will recover",
			logger.KeyStream, stream,
			logger.KeySyncEventID, payload.SyncEventID,
			logger.KeyError, err.Error(),
		)
		return
	}
	if payload.SyncEventID != "" {
		d.tracker.MarkQueued(ctx, payload.SyncEventID)
	}
}
