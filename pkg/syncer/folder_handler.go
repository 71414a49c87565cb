package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/metastore"
	"github.com/mezzofs/mezzofs/pkg/metastore/models"
	"github.com/mezzofs/mezzofs/pkg/storage"
)

// runFolderAction executes one folder job. Shape shared by all actions:
// load the NAS storage object (absent means nothing to do), short-circuit
// if it already converged at the target key, perform the NAS operation
// swallowing idempotent errors, persist AVAILABLE at the new key, rewrite
// descendant keys where paths changed, mark the event DONE.
func (s *Syncer) runFolderAction(ctx context.Context, p *Payload, event *models.SyncEvent) error {
	obj, err := s.store.GetFolderStorageObject(ctx, p.FolderID, models.TierNAS)
	if err != nil {
		if errors.Is(err, models.ErrStorageObjectNotFound) {
			// Entity purged or never materialised; nothing to converge.
			return s.markDone(ctx, event)
		}
		return err
	}

	switch p.Action {
	case ActionMkdir:
		return s.folderMkdir(ctx, p, event, obj)
	case ActionRename:
		return s.folderRename(ctx, p, event, obj)
	case ActionMove:
		return s.folderMove(ctx, p, event, obj)
	case ActionTrash:
		return s.folderRelocate(ctx, p, event, obj)
	case ActionRestore:
		return s.folderRestore(ctx, p, event, obj)
	case ActionPurge:
		return s.folderPurge(ctx, p, event, obj)
	default:
		return fmt.Errorf("unknown folder action %q", p.Action)
	}
}

// converged reports the idempotency short-circuit: AVAILABLE at the
// target key (or AVAILABLE at all when no key change is expected).
func converged(status models.AvailabilityStatus, objectKey, targetKey string) bool {
	if status != models.AvailabilityAvailable {
		return false
	}
	return targetKey == "" || objectKey == targetKey
}

func (s *Syncer) folderMkdir(ctx context.Context, p *Payload, event *models.SyncEvent, obj *models.FolderStorageObject) error {
	if converged(obj.AvailabilityStatus, obj.ObjectKey, "") {
		return s.markDone(ctx, event)
	}

	if err := s.nas.Mkdir(ctx, p.NewPath); err != nil && !storage.IsIdempotent(err) {
		return err
	}

	obj.ObjectKey = p.NewPath
	obj.AvailabilityStatus = models.AvailabilityAvailable
	if err := s.store.UpdateFolderStorageObject(ctx, obj); err != nil {
		return err
	}
	return s.markDone(ctx, event)
}

func (s *Syncer) folderRename(ctx context.Context, p *Payload, event *models.SyncEvent, obj *models.FolderStorageObject) error {
	if converged(obj.AvailabilityStatus, obj.ObjectKey, p.NewPath) {
		return s.markDone(ctx, event)
	}

	if err := s.nas.MoveDir(ctx, p.OldPath, p.NewPath); err != nil && !storage.IsIdempotent(err) {
		return err
	}

	obj.ObjectKey = p.NewPath
	obj.AvailabilityStatus = models.AvailabilityAvailable
	if err := s.store.UpdateFolderStorageObject(ctx, obj); err != nil {
		return err
	}
	s.rewriteDescendantKeys(ctx, p.OldPath, p.NewPath)
	return s.markDone(ctx, event)
}

func (s *Syncer) folderMove(ctx context.Context, p *Payload, event *models.SyncEvent, obj *models.FolderStorageObject) error {
	if converged(obj.AvailabilityStatus, obj.ObjectKey, p.NewPath) {
		return s.markDone(ctx, event)
	}

	// Second-line check: the target may have been trashed between
	// command commit and this handler run.
	target, err := s.store.GetFolder(ctx, p.TargetFolderID)
	if err != nil && !errors.Is(err, models.ErrFolderNotFound) {
		return err
	}
	if err != nil || target.State != models.StateActive {
		return s.compensateFolderMove(ctx, p, event, obj)
	}

	if err := s.nas.MoveDir(ctx, p.OldPath, p.NewPath); err != nil && !storage.IsIdempotent(err) {
		return err
	}

	obj.ObjectKey = p.NewPath
	obj.AvailabilityStatus = models.AvailabilityAvailable
	if err := s.store.UpdateFolderStorageObject(ctx, obj); err != nil {
		return err
	}
	s.rewriteDescendantKeys(ctx, p.OldPath, p.NewPath)
	return s.markDone(ctx, event)
}

// compensateFolderMove undoes a move whose destination was concurrently
// trashed: metadata goes back to the original parent and the storage
// object back to AVAILABLE at its original key. The NAS is left
// untouched and the event closes DONE; the caller observes the reverted
// state via the sync-status endpoint.
func (s *Syncer) compensateFolderMove(ctx context.Context, p *Payload, event *models.SyncEvent, obj *models.FolderStorageObject) error {
	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		folder, err := tx.GetFolderForUpdate(ctx, p.FolderID)
		if err != nil {
			return err
		}
		originalParent, err := tx.GetFolder(ctx, p.OriginalParentID)
		if err != nil {
			return err
		}

		revertedPath := originalParent.Path + "/" + folder.Name
		if originalParent.Path == "/" {
			revertedPath = "/" + folder.Name
		}

		movedPath := folder.Path
		folder.ParentID = &originalParent.ID
		folder.Path = revertedPath
		if err := tx.UpdateFolder(ctx, folder); err != nil {
			return err
		}
		if err := tx.RewritePaths(ctx, movedPath, revertedPath); err != nil {
			return err
		}

		obj.ObjectKey = revertedPath
		obj.AvailabilityStatus = models.AvailabilityAvailable
		return tx.UpdateFolderStorageObject(ctx, obj)
	})
	if err != nil {
		return err
	}

	logger.WarnCtx(ctx, "move target no longer active, metadata reverted",
		logger.KeyFolderID, p.FolderID,
		logger.KeyOldPath, p.OldPath,
		logger.KeyNewPath, p.NewPath,
	)
	return s.markDone(ctx, event)
}

// folderRelocate serves trash: a NAS directory move to the trash key.
func (s *Syncer) folderRelocate(ctx context.Context, p *Payload, event *models.SyncEvent, obj *models.FolderStorageObject) error {
	if converged(obj.AvailabilityStatus, obj.ObjectKey, p.NewPath) {
		return s.markDone(ctx, event)
	}

	if err := s.nas.MoveDir(ctx, p.OldPath, p.NewPath); err != nil && !storage.IsIdempotent(err) {
		return err
	}

	obj.ObjectKey = p.NewPath
	obj.AvailabilityStatus = models.AvailabilityAvailable
	if err := s.store.UpdateFolderStorageObject(ctx, obj); err != nil {
		return err
	}
	return s.markDone(ctx, event)
}

func (s *Syncer) folderRestore(ctx context.Context, p *Payload, event *models.SyncEvent, obj *models.FolderStorageObject) error {
	if converged(obj.AvailabilityStatus, obj.ObjectKey, p.NewPath) {
		return s.markDone(ctx, event)
	}

	if err := s.nas.MoveDir(ctx, p.OldPath, p.NewPath); err != nil && !storage.IsIdempotent(err) {
		return err
	}

	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		folder, err := tx.GetFolderForUpdate(ctx, p.FolderID)
		if err != nil {
			return err
		}
		tm, err := tx.GetTrashMetadata(ctx, p.TrashMetadataID)
		if err != nil && !errors.Is(err, models.ErrTrashMetadataNotFound) {
			return err
		}

		folder.State = models.StateActive
		if tm != nil && tm.OriginalParentID != nil {
			folder.ParentID = tm.OriginalParentID
		}
		folder.Path = p.NewPath
		if err := tx.UpdateFolder(ctx, folder); err != nil {
			return err
		}

		obj.ObjectKey = p.NewPath
		obj.AvailabilityStatus = models.AvailabilityAvailable
		if err := tx.UpdateFolderStorageObject(ctx, obj); err != nil {
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

func (s *Syncer) folderPurge(ctx context.Context, p *Payload, event *models.SyncEvent, obj *models.FolderStorageObject) error {
	if err := s.nas.Rmdir(ctx, p.OldPath, true); err != nil && !storage.IsIdempotent(err) {
		return err
	}

	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		folder, err := tx.GetFolderForUpdate(ctx, p.FolderID)
		if err != nil {
			if errors.Is(err, models.ErrFolderNotFound) {
				return nil
			}
			return err
		}
		folder.State = models.StateDeleted
		if err := tx.UpdateFolder(ctx, folder); err != nil {
			return err
		}
		if err := tx.DeleteFolderStorageObjects(ctx, folder.ID); err != nil {
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

// rewriteDescendantKeys updates descendant storage-object keys after a
// folder rename or move. Failure is logged as a warning but does not
// fail the job; descendants reconcile on their own future events.
func (s *Syncer) rewriteDescendantKeys(ctx context.Context, oldPath, newPath string) {
	if err := s.store.RewriteObjectKeys(ctx, oldPath, newPath); err != nil {
		logger.WarnCtx(ctx, "descendant object key rewrite failed",
			logger.KeyOldPath, oldPath,
			logger.KeyNewPath, newPath,
			logger.KeyError, err.Error(),
		)
	}
}
