package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/lock"
	"github.com/mezzofs/mezzofs/pkg/metastore"
	"github.com/mezzofs/mezzofs/pkg/metastore/models"
	"github.com/mezzofs/mezzofs/pkg/nashealth"
	"github.com/mezzofs/mezzofs/pkg/outbox"
	"github.com/mezzofs/mezzofs/pkg/queue"
	"github.com/mezzofs/mezzofs/pkg/storage"
)

// Metrics is implemented by the Prometheus collectors; nil disables
// instrumentation.
type Metrics interface {
	JobStarted(stream string)
	JobFinished(stream, action, outcome string, duration time.Duration)
}

// Options tunes the syncer.
type Options struct {
	// Concurrency is the worker count per stream. Default 5.
	Concurrency int

	// MaxAttempts and Backoff configure broker re-delivery.
	MaxAttempts int
	Backoff     time.Duration

	// Lock tunes the per-entity lease.
	Lock lock.Options
}

// Syncer consumes the two sync streams and drives the NAS tier to
// convergence. Handlers are idempotent and serialized per entity by the
// distributed lock; jobs on distinct entities run in parallel up to the
// concurrency cap.
type Syncer struct {
	store   *metastore.Store
	tracker *outbox.Tracker
	nas     storage.Store
	cache   storage.Store
	locker  lock.Locker
	health  *nashealth.Cache
	metrics Metrics
	opts    Options
}

// New creates a Syncer.
func New(store *metastore.Store, tracker *outbox.Tracker, nas, cache storage.Store, locker lock.Locker, health *nashealth.Cache, metrics Metrics, opts Options) *Syncer {
	return &Syncer{
		store:   store,
		tracker: tracker,
		nas:     nas,
		cache:   cache,
		locker:  locker,
		health:  health,
		metrics: metrics,
		opts:    opts,
	}
}

// Start registers the worker pools on both streams.
func (s *Syncer) Start(ctx context.Context, q queue.Queue) error {
	qopts := queue.Options{
		Concurrency: s.opts.Concurrency,
		MaxAttempts: s.opts.MaxAttempts,
		Backoff:     s.opts.Backoff,
	}
	if err := q.Process(ctx, StreamFolderSync, s.handleFolderJob, qopts); err != nil {
		return fmt.Errorf("register folder sync workers: %w", err)
	}
	if err := q.Process(ctx, StreamFileSync, s.handleFileJob, qopts); err != nil {
		return fmt.Errorf("register file sync workers: %w", err)
	}
	return nil
}

// ReEnqueue rebuilds the job payload for an outbox row and submits it.
// Used by the sweeper for events stuck in PENDING.
func (s *Syncer) ReEnqueue(ctx context.Context, q queue.Queue) outbox.EnqueueFunc {
	return func(ctx context.Context, event *models.SyncEvent) error {
		p, stream, err := s.payloadForEvent(ctx, event)
		if err != nil {
			return err
		}
		body, err := p.Encode()
		if err != nil {
			return err
		}
		if _, err := q.Enqueue(ctx, stream, body); err != nil {
			return err
		}
		s.tracker.MarkQueued(ctx, event.ID)
		return nil
	}
}

// payloadForEvent reconstructs the handler payload from the durable row.
func (s *Syncer) payloadForEvent(ctx context.Context, event *models.SyncEvent) (*Payload, string, error) {
	p := &Payload{
		Action:      ActionForEvent(event),
		SyncEventID: event.ID,
		OldPath:     event.SourcePath,
		NewPath:     event.TargetPath,
	}
	stream := StreamFileSync
	if event.TargetType == models.TargetFolder {
		stream = StreamFolderSync
		if event.FolderID != nil {
			p.FolderID = *event.FolderID
		}
	} else if event.FileID != nil {
		p.FileID = *event.FileID
		if p.Action == ActionCreate {
			p.CacheKey = CacheContentKey(p.FileID)
		}
	}

	meta, err := event.GetMetadata()
	if err != nil {
		return nil, "", err
	}
	if v := meta["originalParentId"]; v != "" {
		p.OriginalParentID = v
	}
	if v := meta["originalFolderId"]; v != "" {
		p.OriginalParentID = v
	}
	if v := meta["targetParentId"]; v != "" {
		p.TargetFolderID = v
	}
	if v := meta["targetFolderId"]; v != "" {
		p.TargetFolderID = v
	}

	switch p.Action {
	case ActionTrash, ActionRestore, ActionPurge:
		tm, err := s.trashRowForEvent(ctx, event)
		if err != nil {
			return nil, "", err
		}
		p.TrashMetadataID = tm.ID
	}
	return p, stream, nil
}

func (s *Syncer) trashRowForEvent(ctx context.Context, event *models.SyncEvent) (*models.TrashMetadata, error) {
	if event.TargetType == models.TargetFolder && event.FolderID != nil {
		return s.store.GetTrashMetadataForFolder(ctx, *event.FolderID)
	}
	if event.FileID != nil {
		return s.store.GetTrashMetadataForFile(ctx, *event.FileID)
	}
	return nil, models.ErrTrashMetadataNotFound
}

// handleFolderJob routes one folder job to its handler under the
// folder's entity lock.
func (s *Syncer) handleFolderJob(ctx context.Context, job *queue.Job) error {
	p, err := DecodePayload(job.Payload)
	if err != nil {
		// Malformed payloads never become valid; drop with an alert.
		logger.Error("undecodable folder sync job dropped",
			logger.KeyStream, StreamFolderSync,
			logger.KeyError, err.Error(),
		)
		return nil
	}
	return s.dispatch(ctx, StreamFolderSync, lock.FolderKey(p.FolderID), p, s.runFolderAction)
}

// handleFileJob routes one file job to its handler under the file's
// entity lock.
func (s *Syncer) handleFileJob(ctx context.Context, job *queue.Job) error {
	p, err := DecodePayload(job.Payload)
	if err != nil {
		logger.Error("undecodable file sync job dropped",
			logger.KeyStream, StreamFileSync,
			logger.KeyError, err.Error(),
		)
		return nil
	}
	return s.dispatch(ctx, StreamFileSync, lock.FileKey(p.FileID), p, s.runFileAction)
}

// dispatch runs the action under the entity lock with outbox bookkeeping
// around it. Lock wait timeouts bubble up so the broker reschedules the
// job.
func (s *Syncer) dispatch(ctx context.Context, stream, lockKey string, p *Payload, run func(ctx context.Context, p *Payload, event *models.SyncEvent) error) error {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.JobStarted(stream)
	}
	outcome := "done"
	defer func() {
		if s.metrics != nil {
			s.metrics.JobFinished(stream, string(p.Action), outcome, time.Since(start))
		}
	}()

	err := s.locker.WithLock(ctx, lockKey, s.opts.Lock, func(ctx context.Context) error {
		event, terminal, err := s.loadEvent(ctx, p)
		if err != nil {
			return err
		}
		if terminal {
			// Replay of a finished job; observable state is unchanged.
			return nil
		}

		actionErr := run(ctx, p, event)
		if actionErr == nil {
			return nil
		}

		if storage.CodeOf(actionErr) == storage.CodeConn {
			s.health.ReportFailure(actionErr)
		}
		if event != nil {
			return s.tracker.RetryOrFail(ctx, event, string(p.Action), actionErr)
		}
		return actionErr
	})
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			outcome = "lock_timeout"
			logger.WarnCtx(ctx, "entity lock wait timed out, job rescheduled",
				logger.KeyStream, stream,
				logger.KeyLockKey, lockKey,
			)
			return err
		}
		outcome = "error"
		return err
	}
	return nil
}

// loadEvent fetches and advances the outbox row for a payload. A missing
// SyncEventID means an untracked job (backwards compatibility): the
// handler proceeds without bookkeeping. terminal reports the row already
// reached DONE or FAILED.
func (s *Syncer) loadEvent(ctx context.Context, p *Payload) (event *models.SyncEvent, terminal bool, err error) {
	if p.SyncEventID == "" {
		return nil, false, nil
	}
	event, err = s.store.GetSyncEvent(ctx, p.SyncEventID)
	if err != nil {
		if errors.Is(err, models.ErrSyncEventNotFound) {
			logger.WarnCtx(ctx, "sync event missing, proceeding untracked",
				logger.KeySyncEventID, p.SyncEventID,
			)
			return nil, false, nil
		}
		return nil, false, err
	}
	if event.Status.IsTerminal() {
		return event, true, nil
	}
	if err := s.tracker.MarkProcessing(ctx, event); err != nil &&
		!errors.Is(err, models.ErrSyncEventTerminal) {
		return nil, false, err
	}
	return event, false, nil
}

// markDone finishes the event when the job is tracked.
func (s *Syncer) markDone(ctx context.Context, event *models.SyncEvent) error {
	if event == nil {
		return nil
	}
	if err := s.tracker.MarkDone(ctx, event); err != nil &&
		!errors.Is(err, models.ErrSyncEventTerminal) {
		return err
	}
	return nil
}
