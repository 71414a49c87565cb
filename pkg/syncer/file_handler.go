package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/fault"
	"github.com/mezzofs/mezzofs/pkg/metastore"
	"github.com/mezzofs/mezzofs/pkg/metastore/models"
	"github.com/mezzofs/mezzofs/pkg/storage"
)

// runFileAction executes one file job with the same idempotent shape as
// the folder handlers.
func (s *Syncer) runFileAction(ctx context.Context, p *Payload, event *models.SyncEvent) error {
	obj, err := s.store.GetFileStorageObject(ctx, p.FileID, models.TierNAS)
	if err != nil {
		if errors.Is(err, models.ErrStorageObjectNotFound) {
			return s.markDone(ctx, event)
		}
		return err
	}

	switch p.Action {
	case ActionCreate:
		return s.fileCreate(ctx, p, event, obj)
	case ActionRename:
		return s.fileRelocate(ctx, p, event, obj, false)
	case ActionMove:
		return s.fileMove(ctx, p, event, obj)
	case ActionTrash:
		return s.fileTrash(ctx, p, event, obj)
	case ActionRestore:
		return s.fileRestore(ctx, p, event, obj)
	case ActionPurge:
		return s.filePurge(ctx, p, event, obj)
	default:
		return fmt.Errorf("unknown file action %q", p.Action)
	}
}

// fileCreate copies freshly ingested bytes from the cache tier to the
// NAS tier.
func (s *Syncer) fileCreate(ctx context.Context, p *Payload, event *models.SyncEvent, obj *models.FileStorageObject) error {
	if converged(obj.AvailabilityStatus, obj.ObjectKey, p.NewPath) {
		return s.markDone(ctx, event)
	}

	src, err := s.cache.ReadFile(ctx, p.CacheKey)
	if err != nil {
		if storage.CodeOf(err) == storage.CodeNotFound {
			// Staged bytes are gone (purged or re-ingested); a newer
			// event owns convergence now.
			logger.WarnCtx(ctx, "cache source missing for NAS copy",
				logger.KeyFileID, p.FileID,
				logger.KeyObjectKey, p.CacheKey,
			)
			return s.markDone(ctx, event)
		}
		return err
	}
	defer src.Close()

	if _, err := s.nas.WriteFile(ctx, p.NewPath, src); err != nil {
		return err
	}

	obj.ObjectKey = p.NewPath
	obj.AvailabilityStatus = models.AvailabilityAvailable
	if err := s.store.UpdateFileStorageObject(ctx, obj); err != nil {
		return err
	}
	return s.markDone(ctx, event)
}

// fileRelocate serves rename, trash and restore: a NAS file move with no
// extra preconditions beyond the shared shape. destructive guards the
// lease check for trash-like relocations.
func (s *Syncer) fileRelocate(ctx context.Context, p *Payload, event *models.SyncEvent, obj *models.FileStorageObject, destructive bool) error {
	if converged(obj.AvailabilityStatus, obj.ObjectKey, p.NewPath) {
		return s.markDone(ctx, event)
	}
	if destructive && obj.LeaseCount > 0 {
		// An in-progress content read holds a lease; the broker's
		// backoff is the waiting mechanism.
		return fault.Wrap(models.ErrFileInUse, fault.KindConflict, "FILE_IN_USE",
			fmt.Sprintf("%d active leases", obj.LeaseCount))
	}

	if err := s.nas.MoveFile(ctx, p.OldPath, p.NewPath); err != nil && !storage.IsIdempotent(err) {
		return err
	}

	obj.ObjectKey = p.NewPath
	obj.AvailabilityStatus = models.AvailabilityAvailable
	if err := s.store.UpdateFileStorageObject(ctx, obj); err != nil {
		return err
	}
	return s.markDone(ctx, event)
}

func (s *Syncer) fileMove(ctx context.Context, p *Payload, event *models.SyncEvent, obj *models.FileStorageObject) error {
	if converged(obj.AvailabilityStatus, obj.ObjectKey, p.NewPath) {
		return s.markDone(ctx, event)
	}
	if obj.LeaseCount > 0 {
		return fault.Wrap(models.ErrFileInUse, fault.KindConflict, "FILE_IN_USE",
			fmt.Sprintf("%d active leases", obj.LeaseCount))
	}

	// Second-line check: the target folder may have been trashed between
	// command commit and this handler run.
	target, err := s.store.GetFolder(ctx, p.TargetFolderID)
	if err != nil && !errors.Is(err, models.ErrFolderNotFound) {
		return err
	}
	if err != nil || target.State != models.StateActive {
		return s.compensateFileMove(ctx, p, event, obj)
	}

	if err := s.nas.MoveFile(ctx, p.OldPath, p.NewPath); err != nil && !storage.IsIdempotent(err) {
		return err
	}

	obj.ObjectKey = p.NewPath
	obj.AvailabilityStatus = models.AvailabilityAvailable
	if err := s.store.UpdateFileStorageObject(ctx, obj); err != nil {
		return err
	}
	return s.markDone(ctx, event)
}

// compensateFileMove reverts a move whose destination folder was trashed
// after the command committed: the file's metadata returns to its
// original folder, the NAS stays untouched, the event closes DONE.
func (s *Syncer) compensateFileMove(ctx context.Context, p *Payload, event *models.SyncEvent, obj *models.FileStorageObject) error {
	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		file, err := tx.GetFileForUpdate(ctx, p.FileID)
		if err != nil {
			return err
		}
		original, err := tx.GetFolder(ctx, p.OriginalParentID)
		if err != nil {
			return err
		}

		revertedPath := original.Path + "/" + file.Name
		if original.Path == "/" {
			revertedPath = "/" + file.Name
		}

		file.FolderID = original.ID
		file.Path = revertedPath
		if err := tx.UpdateFile(ctx, file); err != nil {
			return err
		}

		obj.ObjectKey = revertedPath
		obj.AvailabilityStatus = models.AvailabilityAvailable
		return tx.UpdateFileStorageObject(ctx, obj)
	})
	if err != nil {
		return err
	}

	logger.WarnCtx(ctx, "move target no longer active, metadata reverted",
		logger.KeyFileID, p.FileID,
		logger.KeyOldPath, p.OldPath,
		logger.KeyNewPath, p.NewPath,
	)
	return s.markDone(ctx, event)
}

func (s *Syncer) fileTrash(ctx context.Context, p *Payload, event *models.SyncEvent, obj *models.FileStorageObject) error {
	return s.fileRelocate(ctx, p, event, obj, true)
}

func (s *Syncer) fileRestore(ctx context.Context, p *Payload, event *models.SyncEvent, obj *models.FileStorageObject) error {
	if converged(obj.AvailabilityStatus, obj.ObjectKey, p.NewPath) {
		return s.markDone(ctx, event)
	}

	if err := s.nas.MoveFile(ctx, p.OldPath, p.NewPath); err != nil && !storage.IsIdempotent(err) {
		return err
	}

	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		file, err := tx.GetFileForUpdate(ctx, p.FileID)
		if err != nil {
			return err
		}
		tm, err := tx.GetTrashMetadata(ctx, p.TrashMetadataID)
		if err != nil && !errors.Is(err, models.ErrTrashMetadataNotFound) {
			return err
		}

		file.State = models.StateActive
		if tm != nil && tm.OriginalParentID != nil {
			file.FolderID = *tm.OriginalParentID
		}
		file.Path = p.NewPath
		if err := tx.UpdateFile(ctx, file); err != nil {
			return err
		}

		obj.ObjectKey = p.NewPath
		obj.AvailabilityStatus = models.AvailabilityAvailable
		if err := tx.UpdateFileStorageObject(ctx, obj); err != nil {
			return err
		}

		if tm != nil {
			return tx.DeleteTrashMetadata(ctx, tm.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.markDone(ctx, event)
}

func (s *Syncer) filePurge(ctx context.Context, p *Payload, event *models.SyncEvent, obj *models.FileStorageObject) error {
	if obj.LeaseCount > 0 {
		return fault.Wrap(models.ErrFileInUse, fault.KindConflict, "FILE_IN_USE",
			fmt.Sprintf("%d active leases", obj.LeaseCount))
	}

	if err := s.nas.DeleteFile(ctx, p.OldPath); err != nil && !storage.IsIdempotent(err) {
		return err
	}
	// Drop the staged cache copy too; a missing object is fine.
	if err := s.cache.DeleteFile(ctx, CacheContentKey(p.FileID)); err != nil &&
		storage.CodeOf(err) != storage.CodeNotFound {
		logger.WarnCtx(ctx, "cache object cleanup failed on purge",
			logger.KeyFileID, p.FileID,
			logger.KeyError, err.Error(),
		)
	}

	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		file, err := tx.GetFileForUpdate(ctx, p.FileID)
		if err != nil {
			if errors.Is(err, models.ErrFileNotFound) {
				return nil
			}
			return err
		}
		file.State = models.StateDeleted
		if err := tx.UpdateFile(ctx, file); err != nil {
			return err
		}
		if err := tx.DeleteFileStorageObjects(ctx, file.ID); err != nil {
			return err
		}
		if p.TrashMetadataID != "" {
			return tx.DeleteTrashMetadata(ctx, p.TrashMetadataID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.markDone(ctx, event)
}
