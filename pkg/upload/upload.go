// Package upload implements the multipart ingestion engine for large
// files. Parts stream to the cache tier; completion assembles them into
// a single cache object and hands the file to the regular NAS sync
// pipeline.
package upload

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/command"
	"github.com/mezzofs/mezzofs/pkg/fault"
	"github.com/mezzofs/mezzofs/pkg/metastore"
	"github.com/mezzofs/mezzofs/pkg/metastore/models"
	"github.com/mezzofs/mezzofs/pkg/nashealth"
	"github.com/mezzofs/mezzofs/pkg/outbox"
	"github.com/mezzofs/mezzofs/pkg/queue"
	"github.com/mezzofs/mezzofs/pkg/storage"
	"github.com/mezzofs/mezzofs/pkg/syncer"
)

// Defaults for the engine options.
const (
	DefaultThreshold  = 100 << 20 // 100 MiB, below this use the direct upload
	DefaultPartSize   = 10 << 20  // 10 MiB
	DefaultSessionTTL = 24 * time.Hour
)

// Notifier receives terminal session transitions. The admission
// controller uses this to release capacity and promote waiting tickets.
type Notifier interface {
	SessionClosed(ctx context.Context, session *models.UploadSession)
}

// Options tunes the engine.
type Options struct {
	// Threshold is the minimum total size accepted for multipart.
	Threshold int64

	// PartSize is the fixed size of every non-final part.
	PartSize int64

	// SessionTTL bounds how long a session may stay open.
	SessionTTL time.Duration
}

// Normalize fills zero fields with defaults.
func (o Options) Normalize() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.PartSize <= 0 {
		o.PartSize = DefaultPartSize
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = DefaultSessionTTL
	}
	return o
}

// Engine drives multipart upload sessions.
type Engine struct {
	store    *metastore.Store
	cache    storage.Store
	queue    queue.Queue
	tracker  *outbox.Tracker
	health   *nashealth.Cache
	opts     Options
	notifier Notifier
}

// New creates the engine.
func New(store *metastore.Store, cache storage.Store, q queue.Queue, tracker *outbox.Tracker, health *nashealth.Cache, opts Options) *Engine {
	return &Engine{
		store:   store,
		cache:   cache,
		queue:   q,
		tracker: tracker,
		health:  health,
		opts:    opts.Normalize(),
	}
}

// SetNotifier installs the terminal-transition listener. Set once at
// wiring time, before traffic.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Threshold returns the configured multipart minimum.
func (e *Engine) Threshold() int64 {
	return e.opts.Threshold
}

// PartKey returns the cache-tier key for one staged part.
func PartKey(sessionID string, partNumber int) string {
	return fmt.Sprintf("sessions/%s/parts/%d", sessionID, partNumber)
}

// InitiateInput carries the session creation arguments.
type InitiateInput struct {
	FileName  string
	FolderID  string // empty means root
	TotalSize int64
	MimeType  string
	CreatedBy string
}

// Initiate opens a new multipart session. Sizes below the threshold are
// rejected; callers should use the direct upload instead.
func (e *Engine) Initiate(ctx context.Context, in InitiateInput) (*models.UploadSession, error) {
	if err := e.health.Guard(); err != nil {
		return nil, err
	}
	if err := command.ValidateName(in.FileName); err != nil {
		return nil, err
	}
	if in.TotalSize < e.opts.Threshold {
		return nil, fault.Newf(fault.KindValidation, "BELOW_MULTIPART_THRESHOLD",
			"total size %d is below the multipart threshold %d; use the direct upload",
			in.TotalSize, e.opts.Threshold)
	}

	folder, err := e.resolveFolder(ctx, in.FolderID)
	if err != nil {
		return nil, err
	}

	totalParts := int((in.TotalSize + e.opts.PartSize - 1) / e.opts.PartSize)
	session := &models.UploadSession{
		ID:         uuid.New().String(),
		FileName:   in.FileName,
		FolderID:   folder.ID,
		TotalSize:  in.TotalSize,
		PartSize:   e.opts.PartSize,
		TotalParts: totalParts,
		MimeType:   in.MimeType,
		Status:     models.UploadInit,
		ExpiresAt:  time.Now().Add(e.opts.SessionTTL),
		CreatedBy:  in.CreatedBy,
	}
	if err := e.store.CreateUploadSession(ctx, session); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "multipart session opened",
		logger.KeySessionID, session.ID,
		logger.KeyFolderID, folder.ID,
		logger.KeySize, in.TotalSize,
	)
	return session, nil
}

func (e *Engine) resolveFolder(ctx context.Context, id string) (*models.Folder, error) {
	var folder *models.Folder
	var err error
	if id == "" {
		folder, err = e.store.GetRootFolder(ctx)
	} else {
		folder, err = e.store.GetFolder(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if folder.State != models.StateActive {
		return nil, models.ErrFolderNotActive
	}
	return folder, nil
}

// PartResult is the outcome of one part upload.
type PartResult struct {
	PartNumber      int     `json:"part_number"`
	ETag            string  `json:"etag"`
	SizeBytes       int64   `json:"size_bytes"`
	UploadedBytes   int64   `json:"uploaded_bytes"`
	ProgressPercent float64 `json:"progress_percent"`
}

// UploadPart streams one part to the cache tier and records it. A
// re-upload of the same part number overwrites the staged bytes and
// replaces the etag.
func (e *Engine) UploadPart(ctx context.Context, sessionID string, partNumber int, content io.Reader) (*PartResult, error) {
	if err := e.health.Guard(); err != nil {
		return nil, err
	}

	session, err := e.loadOpen(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if partNumber < 1 || partNumber > session.TotalParts {
		return nil, fault.Newf(fault.KindValidation, "INVALID_PART_NUMBER",
			"part number %d outside [1, %d]", partNumber, session.TotalParts)
	}

	hash := md5.New()
	key := PartKey(session.ID, partNumber)
	written, err := e.cache.WriteFile(ctx, key, io.TeeReader(content, hash))
	if err != nil {
		return nil, fault.Wrap(err, fault.KindInternal, "PART_WRITE_FAILED", "stage part to cache")
	}

	if err := e.checkPartSize(session, partNumber, written); err != nil {
		if delErr := e.cache.DeleteFile(ctx, key); delErr != nil &&
			storage.CodeOf(delErr) != storage.CodeNotFound {
			logger.WarnCtx(ctx, "oversized part cleanup failed",
				logger.KeySessionID, session.ID,
				logger.KeyPartNumber, partNumber,
				logger.KeyError, delErr.Error(),
			)
		}
		return nil, err
	}

	etag := hex.EncodeToString(hash.Sum(nil))
	if err := e.store.UpsertUploadPart(ctx, &models.UploadSessionPart{
		SessionID:  session.ID,
		PartNumber: partNumber,
		ETag:       etag,
		SizeBytes:  written,
	}); err != nil {
		return nil, err
	}

	uploaded, err := e.refreshProgress(ctx, session)
	if err != nil {
		return nil, err
	}
	return &PartResult{
		PartNumber:      partNumber,
		ETag:            etag,
		SizeBytes:       written,
		UploadedBytes:   uploaded,
		ProgressPercent: float64(uploaded) / float64(session.TotalSize) * 100,
	}, nil
}

// checkPartSize enforces the fixed part geometry: every non-final part
// is exactly PartSize, the final part carries the remainder.
func (e *Engine) checkPartSize(session *models.UploadSession, partNumber int, written int64) error {
	expected := session.PartSize
	if partNumber == session.TotalParts {
		expected = session.TotalSize - int64(session.TotalParts-1)*session.PartSize
	}
	if written != expected {
		return fault.Newf(fault.KindValidation, "PART_SIZE_MISMATCH",
			"part %d is %d bytes, expected %d", partNumber, written, expected)
	}
	return nil
}

// refreshProgress recomputes uploaded bytes from the part rows (re-uploads
// overwrite, so a running sum would drift) and advances INIT to UPLOADING.
func (e *Engine) refreshProgress(ctx context.Context, session *models.UploadSession) (int64, error) {
	parts, err := e.store.ListUploadParts(ctx, session.ID)
	if err != nil {
		return 0, err
	}
	var uploaded int64
	for _, p := range parts {
		uploaded += p.SizeBytes
	}

	session.UploadedBytes = uploaded
	if session.Status == models.UploadInit {
		session.Status = models.UploadUploading
	}
	if err := e.store.UpdateUploadSession(ctx, session); err != nil {
		return 0, err
	}
	return uploaded, nil
}

// Complete assembles the staged parts into one cache object, creates the
// file metadata transactionally and enqueues the NAS copy.
func (e *Engine) Complete(ctx context.Context, sessionID string) (*models.UploadSession, error) {
	if err := e.health.Guard(); err != nil {
		return nil, err
	}

	session, err := e.loadOpen(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	parts, err := e.store.ListUploadParts(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if missing := nextMissingPart(session, parts); missing != 0 {
		return nil, fault.Newf(fault.KindPrecondition, "UPLOAD_INCOMPLETE",
			"part %d has not been uploaded", missing)
	}

	fileID := uuid.New().String()
	cacheKey := syncer.CacheContentKey(fileID)
	if err := e.assemble(ctx, session, parts, cacheKey); err != nil {
		return nil, err
	}

	var payload *syncer.Payload
	err = e.store.WithTx(ctx, func(tx *metastore.Store) error {
		folder, err := tx.GetFolder(ctx, session.FolderID)
		if err != nil {
			return err
		}
		if folder.State != models.StateActive {
			return models.ErrFolderNotActive
		}
		if _, err := tx.FindFileByName(ctx, folder.ID, session.FileName); err == nil {
			return models.ErrDuplicateFile
		} else if !errors.Is(err, models.ErrFileNotFound) {
			return err
		}

		path := folder.Path + "/" + session.FileName
		if folder.Path == "/" {
			path = "/" + session.FileName
		}

		file := &models.File{
			ID:        fileID,
			Name:      session.FileName,
			FolderID:  folder.ID,
			Path:      path,
			SizeBytes: session.TotalSize,
			MimeType:  session.MimeType,
			State:     models.StateActive,
			CreatedBy: session.CreatedBy,
		}
		if err := tx.CreateFile(ctx, file); err != nil {
			return err
		}
		if err := tx.CreateFileStorageObject(ctx, &models.FileStorageObject{
			FileID:             file.ID,
			Tier:               models.TierCache,
			ObjectKey:          cacheKey,
			AvailabilityStatus: models.AvailabilityAvailable,
		}); err != nil {
			return err
		}
		if err := tx.CreateFileStorageObject(ctx, &models.FileStorageObject{
			FileID:             file.ID,
			Tier:               models.TierNAS,
			ObjectKey:          file.Path,
			AvailabilityStatus: models.AvailabilitySyncing,
		}); err != nil {
			return err
		}

		event := &models.SyncEvent{
			EventType:  models.EventCreate,
			TargetType: models.TargetFile,
			FileID:     &file.ID,
			TargetPath: file.Path,
		}
		if err := tx.CreateSyncEvent(ctx, event); err != nil {
			return err
		}

		session.Status = models.UploadCompleted
		session.FileID = &file.ID
		if err := tx.UpdateUploadSession(ctx, session); err != nil {
			return err
		}

		payload = &syncer.Payload{
			Action:      syncer.ActionCreate,
			FileID:      file.ID,
			SyncEventID: event.ID,
			NewPath:     file.Path,
			CacheKey:    cacheKey,
		}
		return nil
	})
	if err != nil {
		// The assembled object is orphaned on failure; remove it.
		if delErr := e.cache.DeleteFile(ctx, cacheKey); delErr != nil &&
			storage.CodeOf(delErr) != storage.CodeNotFound {
			logger.WarnCtx(ctx, "assembled object cleanup failed",
				logger.KeyObjectKey, cacheKey,
				logger.KeyError, delErr.Error(),
			)
		}
		return nil, err
	}

	e.cleanupParts(ctx, session, parts)
	e.enqueueSync(ctx, payload)
	e.notifyClosed(ctx, session)

	logger.InfoCtx(ctx, "multipart session completed",
		logger.KeySessionID, session.ID,
		logger.KeyFileID, fileID,
	)
	return session, nil
}

// assemble streams the parts, in order, into a single cache object.
func (e *Engine) assemble(ctx context.Context, session *models.UploadSession, parts []*models.UploadSessionPart, cacheKey string) error {
	r := &partsReader{ctx: ctx, cache: e.cache, session: session}
	defer r.Close()
	written, err := e.cache.WriteFile(ctx, cacheKey, r)
	if err != nil {
		return fault.Wrap(err, fault.KindInternal, "ASSEMBLE_FAILED", "concatenate parts")
	}
	if written != session.TotalSize {
		return fault.Newf(fault.KindInternal, "ASSEMBLE_SIZE_MISMATCH",
			"assembled %d bytes, expected %d", written, session.TotalSize)
	}
	return nil
}

// partsReader concatenates the staged parts, opening each lazily.
type partsReader struct {
	ctx     context.Context
	cache   storage.Store
	session *models.UploadSession
	next    int
	current io.ReadCloser
}

func (r *partsReader) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			if r.next >= r.session.TotalParts {
				return 0, io.EOF
			}
			r.next++
			rc, err := r.cache.ReadFile(r.ctx, PartKey(r.session.ID, r.next))
			if err != nil {
				return 0, fmt.Errorf("open part %d: %w", r.next, err)
			}
			r.current = rc
		}
		n, err := r.current.Read(p)
		if err == io.EOF {
			closeErr := r.current.Close()
			r.current = nil
			if closeErr != nil {
				return n, closeErr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *partsReader) Close() error {
	if r.current != nil {
		err := r.current.Close()
		r.current = nil
		return err
	}
	return nil
}

// Abort cancels a session and discards its staged parts.
func (e *Engine) Abort(ctx context.Context, sessionID string) (*models.UploadSession, error) {
	session, err := e.loadOpen(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session.Status = models.UploadAborted
	if err := e.store.UpdateUploadSession(ctx, session); err != nil {
		return nil, err
	}

	parts, err := e.store.ListUploadParts(ctx, session.ID)
	if err == nil {
		e.cleanupParts(ctx, session, parts)
	}
	e.notifyClosed(ctx, session)

	logger.InfoCtx(ctx, "multipart session aborted", logger.KeySessionID, session.ID)
	return session, nil
}

// Status describes a session's progress.
type Status struct {
	Session         *models.UploadSession `json:"session"`
	NextMissingPart int                   `json:"next_missing_part,omitempty"`
	RemainingBytes  int64                 `json:"remaining_bytes"`
}

// GetStatus returns the session plus the next part still to upload and
// the bytes outstanding. Expiry is applied lazily here too.
func (e *Engine) GetStatus(ctx context.Context, sessionID string) (*Status, error) {
	session, err := e.store.GetUploadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session, err = e.expireIfDue(ctx, session); err != nil {
		return nil, err
	}

	parts, err := e.store.ListUploadParts(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	var uploaded int64
	for _, p := range parts {
		uploaded += p.SizeBytes
	}
	return &Status{
		Session:         session,
		NextMissingPart: nextMissingPart(session, parts),
		RemainingBytes:  session.TotalSize - uploaded,
	}, nil
}

// nextMissingPart returns the lowest part number not yet uploaded, or 0
// when all parts are present.
func nextMissingPart(session *models.UploadSession, parts []*models.UploadSessionPart) int {
	have := make(map[int]bool, len(parts))
	for _, p := range parts {
		have[p.PartNumber] = true
	}
	for n := 1; n <= session.TotalParts; n++ {
		if !have[n] {
			return n
		}
	}
	return 0
}

// loadOpen fetches a session and requires it usable: not terminal, not
// past its deadline. Expiry is observed lazily on access.
func (e *Engine) loadOpen(ctx context.Context, sessionID string) (*models.UploadSession, error) {
	session, err := e.store.GetUploadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session, err = e.expireIfDue(ctx, session)
	if err != nil {
		return nil, err
	}
	if session.Status == models.UploadExpired {
		return nil, models.ErrUploadSessionExpired
	}
	if session.Status.IsTerminal() {
		return nil, models.ErrUploadSessionTerminal
	}
	return session, nil
}

// expireIfDue flips an overdue non-terminal session to EXPIRED and
// discards its parts.
func (e *Engine) expireIfDue(ctx context.Context, session *models.UploadSession) (*models.UploadSession, error) {
	if session.Status.IsTerminal() || time.Now().Before(session.ExpiresAt) {
		return session, nil
	}

	session.Status = models.UploadExpired
	if err := e.store.UpdateUploadSession(ctx, session); err != nil {
		if errors.Is(err, models.ErrUploadSessionTerminal) {
			// Lost the race to another expirer; re-read the winner.
			return e.store.GetUploadSession(ctx, session.ID)
		}
		return nil, err
	}

	parts, err := e.store.ListUploadParts(ctx, session.ID)
	if err == nil {
		e.cleanupParts(ctx, session, parts)
	}
	e.notifyClosed(ctx, session)

	logger.InfoCtx(ctx, "multipart session expired", logger.KeySessionID, session.ID)
	return session, nil
}

// SweepExpired applies lazy expiry to every overdue open session. Run
// periodically so abandoned sessions release admission capacity without
// waiting for the next client access.
func (e *Engine) SweepExpired(ctx context.Context) error {
	sessions, err := e.store.ListOverdueUploadSessions(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if _, err := e.expireIfDue(ctx, session); err != nil {
			logger.WarnCtx(ctx, "session expiry failed",
				logger.KeySessionID, session.ID,
				logger.KeyError, err.Error(),
			)
		}
	}
	return nil
}

// cleanupParts deletes the staged part objects and their rows. Best
// effort: leftovers are only wasted cache space.
func (e *Engine) cleanupParts(ctx context.Context, session *models.UploadSession, parts []*models.UploadSessionPart) {
	for _, p := range parts {
		key := PartKey(session.ID, p.PartNumber)
		if err := e.cache.DeleteFile(ctx, key); err != nil &&
			storage.CodeOf(err) != storage.CodeNotFound {
			logger.WarnCtx(ctx, "part object cleanup failed",
				logger.KeySessionID, session.ID,
				logger.KeyPartNumber, p.PartNumber,
				logger.KeyError, err.Error(),
			)
		}
	}
	if err := e.store.DeleteUploadParts(ctx, session.ID); err != nil {
		logger.WarnCtx(ctx, "part row cleanup failed",
			logger.KeySessionID, session.ID,
			logger.KeyError, err.Error(),
		)
	}
}

// enqueueSync submits the NAS copy job. Enqueue failure is tolerated;
// the outbox sweeper re-drives the PENDING event.
func (e *Engine) enqueueSync(ctx context.Context, p *syncer.Payload) {
	body, err := p.Encode()
	if err != nil {
		logger.ErrorCtx(ctx, "sync payload encode failed",
			logger.KeySyncEventID, p.SyncEventID,
			logger.KeyError, err.Error(),
		)
		return
	}
	if _, err := e.queue.Enqueue(ctx, syncer.StreamFileSync, body); err != nil {
		logger.WarnCtx(ctx, "sync enqueue failed, sweeper will retry",
			logger.KeySyncEventID, p.SyncEventID,
			logger.KeyError, err.Error(),
		)
		return
	}
	e.tracker.MarkQueued(ctx, p.SyncEventID)
}

func (e *Engine) notifyClosed(ctx context.Context, session *models.UploadSession) {
	if e.notifier != nil {
		e.notifier.SessionClosed(ctx, session)
	}
}
