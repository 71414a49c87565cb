package command

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/fault"
	"github.com/mezzofs/mezzofs/pkg/lock"
	"github.com/mezzofs/mezzofs/pkg/metastore"
	"github.com/mezzofs/mezzofs/pkg/metastore/models"
	"github.com/mezzofs/mezzofs/pkg/nashealth"
	"github.com/mezzofs/mezzofs/pkg/outbox"
	"github.com/mezzofs/mezzofs/pkg/queue"
	"github.com/mezzofs/mezzofs/pkg/storage"
	"github.com/mezzofs/mezzofs/pkg/syncer"
)

// FileService implements the file commands.
type FileService struct {
	deps
	cache  storage.Store
	nas    storage.Store
	locker lock.Locker
}

// NewFileService creates the file command service. The cache store is the
// ingest/staging tier; the NAS store is the read fallback once content
// has converged.
func NewFileService(store *metastore.Store, q queue.Queue, tracker *outbox.Tracker, health *nashealth.Cache, cache, nas storage.Store, locker lock.Locker, opts Options) *FileService {
	return &FileService{
		deps:   newDeps(store, q, tracker, health, opts),
		cache:  cache,
		nas:    nas,
		locker: locker,
	}
}

// FileResult is the outcome of a file command.
type FileResult struct {
	File        *models.File `json:"file"`
	SyncEventID string       `json:"sync_event_id,omitempty"`
}

// Get returns a file by id.
func (s *FileService) Get(ctx context.Context, id string) (*models.File, error) {
	return s.store.GetFile(ctx, id)
}

// SyncStatus returns the outbox rows for a file, newest first.
func (s *FileService) SyncStatus(ctx context.Context, id string) ([]*models.SyncEvent, error) {
	if _, err := s.store.GetFile(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListSyncEventsForEntity(ctx, models.TargetFile, id)
}

// CreateFileInput carries the direct (small) upload arguments.
type CreateFileInput struct {
	Name      string
	FolderID  string // empty means root
	MimeType  string
	SizeBytes int64
	Content   io.Reader
	CreatedBy string
	Strategy  ConflictStrategy
}

// Create ingests a file: content goes to the cache tier synchronously,
// metadata commits with a cache-AVAILABLE and NAS-SYNCING storage object
// pair, and the NAS copy runs asynchronously.
func (s *FileService) Create(ctx context.Context, in CreateFileInput) (*FileResult, error) {
	if err := s.health.Guard(); err != nil {
		return nil, err
	}
	if err := ValidateName(in.Name); err != nil {
		return nil, err
	}
	if in.SizeBytes < 0 {
		return nil, fault.New(fault.KindValidation, "INVALID_SIZE", "size must be non-negative")
	}

	fileID := uuid.New().String()
	cacheKey := syncer.CacheContentKey(fileID)
	written, err := s.cache.WriteFile(ctx, cacheKey, in.Content)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindInternal, "CACHE_WRITE_FAILED", "stage content to cache")
	}

	var (
		file    *models.File
		payload *syncer.Payload
		skipped *models.File
	)
	err = s.store.WithTx(ctx, func(tx *metastore.Store) error {
		parent, err := s.resolveFolder(ctx, tx, in.FolderID)
		if err != nil {
			return err
		}

		name, skip, err := resolveConflict(ctx, in.Name, in.Strategy,
			func(ctx context.Context, candidate string) (bool, error) {
				_, err := tx.FindFileByName(ctx, parent.ID, candidate)
				if err == nil {
					return true, nil
				}
				if errors.Is(err, models.ErrFileNotFound) {
					return false, nil
				}
				return false, err
			}, models.ErrDuplicateFile)
		if err != nil {
			return err
		}
		if skip {
			skipped, err = tx.FindFileByName(ctx, parent.ID, name)
			return err
		}

		if in.Strategy == ConflictOverwrite {
			if existing, err := tx.FindFileByName(ctx, parent.ID, name); err == nil {
				return s.overwrite(ctx, tx, existing, cacheKey, written, in.MimeType, &file, &payload)
			} else if !errors.Is(err, models.ErrFileNotFound) {
				return err
			}
		}

		file = &models.File{
			ID:        fileID,
			Name:      name,
			FolderID:  parent.ID,
			Path:      joinPath(parent.Path, name),
			SizeBytes: written,
			MimeType:  in.MimeType,
			State:     models.StateActive,
			CreatedBy: in.CreatedBy,
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
		// Best-effort cleanup of the staged bytes.
		if delErr := s.cache.DeleteFile(ctx, cacheKey); delErr != nil &&
			storage.CodeOf(delErr) != storage.CodeNotFound {
			logger.WarnCtx(ctx, "staged cache object cleanup failed",
				logger.KeyObjectKey, cacheKey,
				logger.KeyError, delErr.Error(),
			)
		}
		return nil, err
	}
	if skipped != nil {
		return &FileResult{File: skipped}, nil
	}

	s.enqueueSync(ctx, syncer.StreamFileSync, payload)
	return &FileResult{File: file, SyncEventID: payload.SyncEventID}, nil
}

// overwrite replaces an existing file's content in place: the row keeps
// its id and path, the cache object repoints at the fresh bytes and the
// NAS object goes back to SYNCING for the re-copy.
func (s *FileService) overwrite(ctx context.Context, tx *metastore.Store, existing *models.File, cacheKey string, size int64, mimeType string, outFile **models.File, outPayload **syncer.Payload) error {
	locked, err := tx.GetFileForUpdate(ctx, existing.ID)
	if err != nil {
		return err
	}
	nasObj, err := tx.GetFileStorageObjectForUpdate(ctx, locked.ID, models.TierNAS)
	if err != nil {
		return err
	}
	if nasObj.AvailabilityStatus == models.AvailabilitySyncing {
		return models.ErrFileSyncing
	}

	locked.SizeBytes = size
	if mimeType != "" {
		locked.MimeType = mimeType
	}
	if err := tx.UpdateFile(ctx, locked); err != nil {
		return err
	}

	cacheObj, err := tx.GetFileStorageObjectForUpdate(ctx, locked.ID, models.TierCache)
	switch {
	case err == nil:
		cacheObj.ObjectKey = cacheKey
		cacheObj.AvailabilityStatus = models.AvailabilityAvailable
		if err := tx.UpdateFileStorageObject(ctx, cacheObj); err != nil {
			return err
		}
	case errors.Is(err, models.ErrStorageObjectNotFound):
		if err := tx.CreateFileStorageObject(ctx, &models.FileStorageObject{
			FileID:             locked.ID,
			Tier:               models.TierCache,
			ObjectKey:          cacheKey,
			AvailabilityStatus: models.AvailabilityAvailable,
		}); err != nil {
			return err
		}
	default:
		return err
	}

	nasObj.AvailabilityStatus = models.AvailabilitySyncing
	if err := tx.UpdateFileStorageObject(ctx, nasObj); err != nil {
		return err
	}

	event := &models.SyncEvent{
		EventType:  models.EventCreate,
		TargetType: models.TargetFile,
		FileID:     &locked.ID,
		TargetPath: locked.Path,
	}
	if err := tx.CreateSyncEvent(ctx, event); err != nil {
		return err
	}

	*outFile = locked
	*outPayload = &syncer.Payload{
		Action:      syncer.ActionCreate,
		FileID:      locked.ID,
		SyncEventID: event.ID,
		NewPath:     locked.Path,
		CacheKey:    cacheKey,
	}
	return nil
}

// resolveFolder loads a folder (root when id is empty) and requires it
// ACTIVE.
func (s *FileService) resolveFolder(ctx context.Context, tx *metastore.Store, id string) (*models.Folder, error) {
	var folder *models.Folder
	var err error
	if id == "" {
		folder, err = tx.GetRootFolder(ctx)
	} else {
		folder, err = tx.GetFolder(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if folder.State != models.StateActive {
		return nil, models.ErrFolderNotActive
	}
	return folder, nil
}

// RenameFileInput carries the rename command arguments.
type RenameFileInput struct {
	FileID   string
	NewName  string
	Strategy ConflictStrategy
}

// Rename changes a file's name and enqueues the NAS rename.
func (s *FileService) Rename(ctx context.Context, in RenameFileInput) (*FileResult, error) {
	if err := s.health.Guard(); err != nil {
		return nil, err
	}
	if err := ValidateName(in.NewName); err != nil {
		return nil, err
	}

	var (
		file    *models.File
		payload *syncer.Payload
	)
	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		var err error
		file, err = tx.GetFileForUpdate(ctx, in.FileID)
		if err != nil {
			return err
		}
		if file.State != models.StateActive {
			return models.ErrFileNotActive
		}
		obj, err := tx.GetFileStorageObjectForUpdate(ctx, file.ID, models.TierNAS)
		if err != nil {
			return err
		}
		if obj.AvailabilityStatus == models.AvailabilitySyncing {
			return models.ErrFileSyncing
		}

		if in.NewName == file.Name {
			payload = nil
			return nil
		}

		name, skip, err := resolveConflict(ctx, in.NewName, in.Strategy,
			s.siblingFileExists(tx, file.FolderID, file.ID), models.ErrDuplicateFile)
		if err != nil {
			return err
		}
		if skip {
			payload = nil
			return nil
		}

		parent, err := tx.GetFolder(ctx, file.FolderID)
		if err != nil {
			return err
		}

		oldPath := file.Path
		newPath := joinPath(parent.Path, name)

		file.Name = name
		file.Path = newPath
		if err := tx.UpdateFile(ctx, file); err != nil {
			return err
		}

		obj.ObjectKey = newPath
		obj.AvailabilityStatus = models.AvailabilitySyncing
		if err := tx.UpdateFileStorageObject(ctx, obj); err != nil {
			return err
		}

		event := &models.SyncEvent{
			EventType:  models.EventRename,
			TargetType: models.TargetFile,
			FileID:     &file.ID,
			SourcePath: oldPath,
			TargetPath: newPath,
		}
		if err := tx.CreateSyncEvent(ctx, event); err != nil {
			return err
		}
		payload = &syncer.Payload{
			Action:      syncer.ActionRename,
			FileID:      file.ID,
			SyncEventID: event.ID,
			OldPath:     oldPath,
			NewPath:     newPath,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if payload == nil {
		return &FileResult{File: file}, nil
	}
	s.enqueueSync(ctx, syncer.StreamFileSync, payload)
	return &FileResult{File: file, SyncEventID: payload.SyncEventID}, nil
}

func (s *FileService) siblingFileExists(tx *metastore.Store, folderID, selfID string) func(ctx context.Context, name string) (bool, error) {
	return func(ctx context.Context, name string) (bool, error) {
		existing, err := tx.FindFileByName(ctx, folderID, name)
		if err == nil {
			return existing.ID != selfID, nil
		}
		if errors.Is(err, models.ErrFileNotFound) {
			return false, nil
		}
		return false, err
	}
}

// MoveFileInput carries the move command arguments.
type MoveFileInput struct {
	FileID         string
	TargetFolderID string
	Strategy       ConflictStrategy
}

// Move relocates a file to another folder. The handler repeats the
// target's ACTIVE check under the entity lock and compensates if the
// target was trashed meanwhile.
func (s *FileService) Move(ctx context.Context, in MoveFileInput) (*FileResult, error) {
	if err := s.health.Guard(); err != nil {
		return nil, err
	}

	var (
		file    *models.File
		payload *syncer.Payload
	)
	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		var err error
		file, err = tx.GetFileForUpdate(ctx, in.FileID)
		if err != nil {
			return err
		}
		if file.State != models.StateActive {
			return models.ErrFileNotActive
		}

		target, err := s.resolveFolder(ctx, tx, in.TargetFolderID)
		if err != nil {
			return err
		}
		if target.ID == file.FolderID {
			payload = nil
			return nil
		}

		obj, err := tx.GetFileStorageObjectForUpdate(ctx, file.ID, models.TierNAS)
		if err != nil {
			return err
		}
		if obj.AvailabilityStatus == models.AvailabilitySyncing {
			return models.ErrFileSyncing
		}

		name, skip, err := resolveConflict(ctx, file.Name, in.Strategy,
			s.siblingFileExists(tx, target.ID, file.ID), models.ErrDuplicateFile)
		if err != nil {
			return err
		}
		if skip {
			payload = nil
			return nil
		}

		oldPath := file.Path
		originalFolderID := file.FolderID
		newPath := joinPath(target.Path, name)

		file.Name = name
		file.FolderID = target.ID
		file.Path = newPath
		if err := tx.UpdateFile(ctx, file); err != nil {
			return err
		}

		obj.ObjectKey = newPath
		obj.AvailabilityStatus = models.AvailabilitySyncing
		if err := tx.UpdateFileStorageObject(ctx, obj); err != nil {
			return err
		}

		event := &models.SyncEvent{
			EventType:  models.EventMove,
			TargetType: models.TargetFile,
			FileID:     &file.ID,
			SourcePath: oldPath,
			TargetPath: newPath,
		}
		if err := event.SetMetadata(map[string]string{
			"originalFolderId": originalFolderID,
			"targetFolderId":   target.ID,
		}); err != nil {
			return err
		}
		if err := tx.CreateSyncEvent(ctx, event); err != nil {
			return err
		}
		payload = &syncer.Payload{
			Action:           syncer.ActionMove,
			FileID:           file.ID,
			SyncEventID:      event.ID,
			OldPath:          oldPath,
			NewPath:          newPath,
			TargetFolderID:   target.ID,
			OriginalParentID: originalFolderID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if payload == nil {
		return &FileResult{File: file}, nil
	}
	s.enqueueSync(ctx, syncer.StreamFileSync, payload)
	return &FileResult{File: file, SyncEventID: payload.SyncEventID}, nil
}

// Trash moves a file to the trash. Unlike folders there is no emptiness
// restriction. A file with active content leases commits its metadata
// normally; the handler retries the NAS relocation until the leases
// drain.
func (s *FileService) Trash(ctx context.Context, fileID, deletedBy string) (*FileResult, error) {
	if err := s.health.Guard(); err != nil {
		return nil, err
	}

	var (
		file    *models.File
		payload *syncer.Payload
	)
	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		var err error
		file, err = tx.GetFileForUpdate(ctx, fileID)
		if err != nil {
			return err
		}
		if file.State == models.StateTrashed {
			return models.ErrAlreadyTrashed
		}
		if file.State != models.StateActive {
			return models.ErrFileNotActive
		}

		obj, err := tx.GetFileStorageObjectForUpdate(ctx, file.ID, models.TierNAS)
		if err != nil {
			return err
		}
		if obj.AvailabilityStatus == models.AvailabilitySyncing {
			return models.ErrFileSyncing
		}

		tm := &models.TrashMetadata{
			FileID:           &file.ID,
			OriginalPath:     file.Path,
			OriginalParentID: &file.FolderID,
			DeletedBy:        deletedBy,
			ExpiresAt:        time.Now().Add(s.trashRetention),
		}
		if err := tx.CreateTrashMetadata(ctx, tm); err != nil {
			return err
		}

		oldPath := file.Path
		trashKey := tm.TrashKey(file.Name)

		file.State = models.StateTrashed
		if err := tx.UpdateFile(ctx, file); err != nil {
			return err
		}

		obj.ObjectKey = trashKey
		obj.AvailabilityStatus = models.AvailabilitySyncing
		if err := tx.UpdateFileStorageObject(ctx, obj); err != nil {
			return err
		}

		event := &models.SyncEvent{
			EventType:  models.EventTrash,
			TargetType: models.TargetFile,
			FileID:     &file.ID,
			SourcePath: oldPath,
			TargetPath: trashKey,
		}
		if err := tx.CreateSyncEvent(ctx, event); err != nil {
			return err
		}
		payload = &syncer.Payload{
			Action:          syncer.ActionTrash,
			FileID:          file.ID,
			SyncEventID:     event.ID,
			OldPath:         oldPath,
			NewPath:         trashKey,
			TrashMetadataID: tm.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, syncer.StreamFileSync, payload)
	return &FileResult{File: file, SyncEventID: payload.SyncEventID}, nil
}

// Restore brings a trashed file back. The state flip to ACTIVE happens in
// the handler once the NAS move succeeded.
func (s *FileService) Restore(ctx context.Context, fileID string) (*FileResult, error) {
	if err := s.health.Guard(); err != nil {
		return nil, err
	}

	var (
		file    *models.File
		payload *syncer.Payload
	)
	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		var err error
		file, err = tx.GetFileForUpdate(ctx, fileID)
		if err != nil {
			return err
		}
		if file.State != models.StateTrashed {
			return fault.New(fault.KindPrecondition, "NOT_TRASHED", "file is not in the trash")
		}

		tm, err := tx.GetTrashMetadataForFile(ctx, file.ID)
		if err != nil {
			return err
		}
		if tm.OriginalParentID != nil {
			parent, err := tx.GetFolder(ctx, *tm.OriginalParentID)
			if err != nil {
				return err
			}
			if parent.State != models.StateActive {
				return fault.New(fault.KindConflict, "RESTORE_TARGET_GONE",
					"the original folder is no longer active")
			}
		}

		obj, err := tx.GetFileStorageObjectForUpdate(ctx, file.ID, models.TierNAS)
		if err != nil {
			return err
		}
		if obj.AvailabilityStatus == models.AvailabilitySyncing {
			return models.ErrFileSyncing
		}

		trashKey := obj.ObjectKey
		obj.ObjectKey = tm.OriginalPath
		obj.AvailabilityStatus = models.AvailabilitySyncing
		if err := tx.UpdateFileStorageObject(ctx, obj); err != nil {
			return err
		}

		event := &models.SyncEvent{
			EventType:  models.EventRestore,
			TargetType: models.TargetFile,
			FileID:     &file.ID,
			SourcePath: trashKey,
			TargetPath: tm.OriginalPath,
		}
		if err := tx.CreateSyncEvent(ctx, event); err != nil {
			return err
		}
		payload = &syncer.Payload{
			Action:          syncer.ActionRestore,
			FileID:          file.ID,
			SyncEventID:     event.ID,
			OldPath:         trashKey,
			NewPath:         tm.OriginalPath,
			TrashMetadataID: tm.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, syncer.StreamFileSync, payload)
	return &FileResult{File: file, SyncEventID: payload.SyncEventID}, nil
}

// Purge permanently deletes a trashed file from both tiers.
func (s *FileService) Purge(ctx context.Context, fileID string) (*FileResult, error) {
	if err := s.health.Guard(); err != nil {
		return nil, err
	}

	var (
		file    *models.File
		payload *syncer.Payload
	)
	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		var err error
		file, err = tx.GetFileForUpdate(ctx, fileID)
		if err != nil {
			return err
		}
		if file.State != models.StateTrashed {
			return fault.New(fault.KindPrecondition, "NOT_TRASHED", "file is not in the trash")
		}

		tm, err := tx.GetTrashMetadataForFile(ctx, file.ID)
		if err != nil {
			return err
		}

		obj, err := tx.GetFileStorageObjectForUpdate(ctx, file.ID, models.TierNAS)
		if err != nil {
			return err
		}
		if obj.AvailabilityStatus == models.AvailabilitySyncing {
			return models.ErrFileSyncing
		}

		obj.AvailabilityStatus = models.AvailabilitySyncing
		if err := tx.UpdateFileStorageObject(ctx, obj); err != nil {
			return err
		}

		event := &models.SyncEvent{
			EventType:  models.EventPurge,
			TargetType: models.TargetFile,
			FileID:     &file.ID,
			SourcePath: obj.ObjectKey,
		}
		if err := tx.CreateSyncEvent(ctx, event); err != nil {
			return err
		}
		payload = &syncer.Payload{
			Action:          syncer.ActionPurge,
			FileID:          file.ID,
			SyncEventID:     event.ID,
			OldPath:         obj.ObjectKey,
			TrashMetadataID: tm.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, syncer.StreamFileSync, payload)
	return &FileResult{File: file, SyncEventID: payload.SyncEventID}, nil
}

// leasedReader decrements the content lease exactly once when the stream
// ends, is closed, or errors (including the client dropping the
// connection, which surfaces as a copy error followed by Close).
type leasedReader struct {
	io.ReadCloser
	release func()
	once    sync.Once
}

func (r *leasedReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err != nil {
		r.once.Do(r.release)
	}
	return n, err
}

func (r *leasedReader) Close() error {
	err := r.ReadCloser.Close()
	r.once.Do(r.release)
	return err
}

// OpenContent opens a file's content for streaming and takes a content
// lease on its NAS storage object. The lease increment runs under the
// file's entity lock so it cannot race a destructive handler's
// lease check. The caller must Close the returned stream.
func (s *FileService) OpenContent(ctx context.Context, fileID string) (io.ReadCloser, *models.File, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if file.State != models.StateActive {
		return nil, nil, models.ErrFileNotActive
	}

	err = s.locker.WithLock(ctx, lock.FileKey(fileID), lock.Options{}, func(ctx context.Context) error {
		_, err := s.store.AdjustFileLease(ctx, fileID, +1)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	release := func() {
		// Decrement with a fresh context; the request context is
		// typically already cancelled when the client disconnects.
		bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.store.AdjustFileLease(bg, fileID, -1); err != nil {
			logger.Warn("lease release failed",
				logger.KeyFileID, fileID,
				logger.KeyError, err.Error(),
			)
		}
	}

	rc, err := s.openStream(ctx, fileID)
	if err != nil {
		release()
		return nil, nil, err
	}
	return &leasedReader{ReadCloser: rc, release: release}, file, nil
}

// openStream prefers the cache tier while it is AVAILABLE, then falls
// back to the NAS tier.
func (s *FileService) openStream(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if cacheObj, err := s.store.GetFileStorageObject(ctx, fileID, models.TierCache); err == nil &&
		cacheObj.AvailabilityStatus == models.AvailabilityAvailable {
		if rc, err := s.cache.ReadFile(ctx, cacheObj.ObjectKey); err == nil {
			return rc, nil
		}
		// Cache miss despite metadata; fall through to NAS.
	}

	nasObj, err := s.store.GetFileStorageObject(ctx, fileID, models.TierNAS)
	if err != nil {
		return nil, err
	}
	if nasObj.AvailabilityStatus != models.AvailabilityAvailable {
		return nil, fault.New(fault.KindConflict, "CONTENT_NOT_READY",
			"file content has not converged yet")
	}
	rc, err := s.nas.ReadFile(ctx, nasObj.ObjectKey)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindInternal, "NAS_READ_FAILED", "read content from NAS")
	}
	return rc, nil
}
