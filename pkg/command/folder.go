package command

import (
	"context"
	"errors"
	"time"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/fault"
	"github.com/mezzofs/mezzofs/pkg/metastore"
	"github.com/mezzofs/mezzofs/pkg/metastore/models"
	"github.com/mezzofs/mezzofs/pkg/nashealth"
	"github.com/mezzofs/mezzofs/pkg/outbox"
	"github.com/mezzofs/mezzofs/pkg/queue"
	"github.com/mezzofs/mezzofs/pkg/syncer"
)

// FolderService implements the folder commands.
type FolderService struct {
	deps
}

// NewFolderService creates the folder command service.
func NewFolderService(store *metastore.Store, q queue.Queue, tracker *outbox.Tracker, health *nashealth.Cache, opts Options) *FolderService {
	return &FolderService{deps: newDeps(store, q, tracker, health, opts)}
}

// FolderResult is the outcome of a folder command: the updated folder row
// and the outbox row driving the NAS to convergence.
type FolderResult struct {
	Folder      *models.Folder `json:"folder"`
	SyncEventID string         `json:"sync_event_id,omitempty"`
}

// BootstrapRoot ensures the root folder exists: name "", parent nil, path
// "/", with a pre-AVAILABLE NAS storage object (the root directory is
// assumed to pre-exist on disk). Idempotent; called at startup.
func (s *FolderService) BootstrapRoot(ctx context.Context) (*models.Folder, error) {
	root, err := s.store.GetRootFolder(ctx)
	if err == nil {
		return root, nil
	}
	if !errors.Is(err, models.ErrFolderNotFound) {
		return nil, err
	}

	root = &models.Folder{
		Name:  "",
		Path:  "/",
		State: models.StateActive,
	}
	err = s.store.WithTx(ctx, func(tx *metastore.Store) error {
		if err := tx.CreateFolder(ctx, root); err != nil {
			return err
		}
		return tx.CreateFolderStorageObject(ctx, &models.FolderStorageObject{
			FolderID:           root.ID,
			Tier:               models.TierNAS,
			ObjectKey:          "/",
			AvailabilityStatus: models.AvailabilityAvailable,
		})
	})
	if err != nil {
		// A concurrent bootstrap may have won the race.
		if existing, getErr := s.store.GetRootFolder(ctx); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	logger.Info("root folder bootstrapped", logger.KeyFolderID, root.ID)
	return root, nil
}

// Get returns a folder by id.
func (s *FolderService) Get(ctx context.Context, id string) (*models.Folder, error) {
	return s.store.GetFolder(ctx, id)
}

// Stats returns live subtree statistics for a folder.
func (s *FolderService) Stats(ctx context.Context, id string) (*metastore.FolderStats, error) {
	folder, err := s.store.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.store.GetFolderStats(ctx, folder.Path)
}

// SyncStatus returns the outbox rows for a folder, newest first.
func (s *FolderService) SyncStatus(ctx context.Context, id string) ([]*models.SyncEvent, error) {
	if _, err := s.store.GetFolder(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListSyncEventsForEntity(ctx, models.TargetFolder, id)
}

// CreateFolderInput carries the create command arguments.
type CreateFolderInput struct {
	Name      string
	ParentID  string // empty means root
	CreatedBy string
	Strategy  ConflictStrategy
}

// Create makes a new folder under the given parent and enqueues the NAS
// mkdir.
func (s *FolderService) Create(ctx context.Context, in CreateFolderInput) (*FolderResult, error) {
	if err := s.health.Guard(); err != nil {
		return nil, err
	}
	if err := ValidateName(in.Name); err != nil {
		return nil, err
	}

	var (
		folder  *models.Folder
		payload *syncer.Payload
		skipped *models.Folder
	)
	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		parent, err := s.resolveParent(ctx, tx, in.ParentID)
		if err != nil {
			return err
		}

		name, skip, err := resolveConflict(ctx, in.Name, in.Strategy,
			func(ctx context.Context, candidate string) (bool, error) {
				_, err := tx.FindChildFolder(ctx, parent.ID, candidate)
				if err == nil {
					return true, nil
				}
				if errors.Is(err, models.ErrFolderNotFound) {
					return false, nil
				}
				return false, err
			}, models.ErrDuplicateFolder)
		if err != nil {
			return err
		}
		if skip {
			skipped, err = tx.FindChildFolder(ctx, parent.ID, name)
			return err
		}

		folder = &models.Folder{
			Name:      name,
			ParentID:  &parent.ID,
			Path:      joinPath(parent.Path, name),
			State:     models.StateActive,
			CreatedBy: in.CreatedBy,
		}
		if err := tx.CreateFolder(ctx, folder); err != nil {
			return err
		}
		if err := tx.CreateFolderStorageObject(ctx, &models.FolderStorageObject{
			FolderID:           folder.ID,
			Tier:               models.TierNAS,
			ObjectKey:          folder.Path,
			AvailabilityStatus: models.AvailabilitySyncing,
		}); err != nil {
			return err
		}

		event := &models.SyncEvent{
			EventType:  models.EventCreate,
			TargetType: models.TargetFolder,
			FolderID:   &folder.ID,
			TargetPath: folder.Path,
		}
		if err := tx.CreateSyncEvent(ctx, event); err != nil {
			return err
		}
		payload = &syncer.Payload{
			Action:      syncer.ActionMkdir,
			FolderID:    folder.ID,
			SyncEventID: event.ID,
			NewPath:     folder.Path,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if skipped != nil {
		return &FolderResult{Folder: skipped}, nil
	}

	s.enqueueSync(ctx, syncer.StreamFolderSync, payload)
	return &FolderResult{Folder: folder, SyncEventID: payload.SyncEventID}, nil
}

// resolveParent loads the parent folder (root when parentID is empty) and
// requires it ACTIVE.
func (s *FolderService) resolveParent(ctx context.Context, tx *metastore.Store, parentID string) (*models.Folder, error) {
	var parent *models.Folder
	var err error
	if parentID == "" {
		parent, err = tx.GetRootFolder(ctx)
	} else {
		parent, err = tx.GetFolder(ctx, parentID)
	}
	if err != nil {
		return nil, err
	}
	if parent.State != models.StateActive {
		return nil, models.ErrFolderNotActive
	}
	return parent, nil
}

// RenameFolderInput carries the rename command arguments.
type RenameFolderInput struct {
	FolderID string
	NewName  string
	Strategy ConflictStrategy
}

// Rename changes a folder's name, rewrites all descendant paths in the
// same transaction and enqueues the NAS rename.
func (s *FolderService) Rename(ctx context.Context, in RenameFolderInput) (*FolderResult, error) {
	if err := s.health.Guard(); err != nil {
		return nil, err
	}
	if err := ValidateName(in.NewName); err != nil {
		return nil, err
	}

	var (
		folder  *models.Folder
		payload *syncer.Payload
	)
	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		var err error
		folder, err = tx.GetFolderForUpdate(ctx, in.FolderID)
		if err != nil {
			return err
		}
		if folder.IsRoot() {
			return fault.New(fault.KindValidation, "ROOT_IMMUTABLE", "the root folder cannot be renamed")
		}
		if folder.State != models.StateActive {
			return models.ErrFolderNotActive
		}
		obj, err := tx.GetFolderStorageObjectForUpdate(ctx, folder.ID, models.TierNAS)
		if err != nil {
			return err
		}
		if obj.AvailabilityStatus == models.AvailabilitySyncing {
			return models.ErrFolderSyncing
		}

		if in.NewName == folder.Name {
			// No-op rename; nothing to sync.
			payload = nil
			return nil
		}

		name, skip, err := resolveConflict(ctx, in.NewName, in.Strategy,
			s.siblingExists(tx, *folder.ParentID, folder.ID), models.ErrDuplicateFolder)
		if err != nil {
			return err
		}
		if skip {
			payload = nil
			return nil
		}

		parent, err := tx.GetFolder(ctx, *folder.ParentID)
		if err != nil {
			return err
		}

		oldPath := folder.Path
		newPath := joinPath(parent.Path, name)

		folder.Name = name
		folder.Path = newPath
		if err := tx.UpdateFolder(ctx, folder); err != nil {
			return err
		}
		if err := tx.RewritePaths(ctx, oldPath, newPath); err != nil {
			return err
		}

		obj.ObjectKey = newPath
		obj.AvailabilityStatus = models.AvailabilitySyncing
		if err := tx.UpdateFolderStorageObject(ctx, obj); err != nil {
			return err
		}

		event := &models.SyncEvent{
			EventType:  models.EventRename,
			TargetType: models.TargetFolder,
			FolderID:   &folder.ID,
			SourcePath: oldPath,
			TargetPath: newPath,
		}
		if err := tx.CreateSyncEvent(ctx, event); err != nil {
			return err
		}
		payload = &syncer.Payload{
			Action:      syncer.ActionRename,
			FolderID:    folder.ID,
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
		return &FolderResult{Folder: folder}, nil
	}
	s.enqueueSync(ctx, syncer.StreamFolderSync, payload)
	return &FolderResult{Folder: folder, SyncEventID: payload.SyncEventID}, nil
}

// siblingExists builds the conflict probe for a folder's destination
// parent, ignoring the folder itself.
func (s *FolderService) siblingExists(tx *metastore.Store, parentID, selfID string) func(ctx context.Context, name string) (bool, error) {
	return func(ctx context.Context, name string) (bool, error) {
		existing, err := tx.FindChildFolder(ctx, parentID, name)
		if err == nil {
			return existing.ID != selfID, nil
		}
		if errors.Is(err, models.ErrFolderNotFound) {
			return false, nil
		}
		return false, err
	}
}

// MoveFolderInput carries the move command arguments.
type MoveFolderInput struct {
	FolderID       string
	TargetParentID string
	Strategy       ConflictStrategy
}

// Move re-parents a folder, rewrites descendant paths and enqueues the
// NAS move. The handler repeats the target's ACTIVE check under the
// entity lock and compensates if the target was trashed meanwhile.
func (s *FolderService) Move(ctx context.Context, in MoveFolderInput) (*FolderResult, error) {
	if err := s.health.Guard(); err != nil {
		return nil, err
	}

	var (
		folder  *models.Folder
		payload *syncer.Payload
	)
	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		var err error
		folder, err = tx.GetFolderForUpdate(ctx, in.FolderID)
		if err != nil {
			return err
		}
		if folder.IsRoot() {
			return fault.New(fault.KindValidation, "ROOT_IMMUTABLE", "the root folder cannot be moved")
		}
		if folder.State != models.StateActive {
			return models.ErrFolderNotActive
		}

		target, err := s.resolveParent(ctx, tx, in.TargetParentID)
		if err != nil {
			return err
		}
		if isSelfOrDescendant(folder.Path, target.Path) {
			return models.ErrCircularMove
		}
		if target.ID == *folder.ParentID {
			payload = nil
			return nil
		}

		obj, err := tx.GetFolderStorageObjectForUpdate(ctx, folder.ID, models.TierNAS)
		if err != nil {
			return err
		}
		if obj.AvailabilityStatus == models.AvailabilitySyncing {
			return models.ErrFolderSyncing
		}

		name, skip, err := resolveConflict(ctx, folder.Name, in.Strategy,
			s.siblingExists(tx, target.ID, folder.ID), models.ErrDuplicateFolder)
		if err != nil {
			return err
		}
		if skip {
			payload = nil
			return nil
		}

		oldPath := folder.Path
		originalParentID := *folder.ParentID
		newPath := joinPath(target.Path, name)

		folder.Name = name
		folder.ParentID = &target.ID
		folder.Path = newPath
		if err := tx.UpdateFolder(ctx, folder); err != nil {
			return err
		}
		if err := tx.RewritePaths(ctx, oldPath, newPath); err != nil {
			return err
		}

		obj.ObjectKey = newPath
		obj.AvailabilityStatus = models.AvailabilitySyncing
		if err := tx.UpdateFolderStorageObject(ctx, obj); err != nil {
			return err
		}

		event := &models.SyncEvent{
			EventType:  models.EventMove,
			TargetType: models.TargetFolder,
			FolderID:   &folder.ID,
			SourcePath: oldPath,
			TargetPath: newPath,
		}
		if err := event.SetMetadata(map[string]string{
			"originalParentId": originalParentID,
			"targetParentId":   target.ID,
		}); err != nil {
			return err
		}
		if err := tx.CreateSyncEvent(ctx, event); err != nil {
			return err
		}
		payload = &syncer.Payload{
			Action:           syncer.ActionMove,
			FolderID:         folder.ID,
			SyncEventID:      event.ID,
			OldPath:          oldPath,
			NewPath:          newPath,
			TargetFolderID:   target.ID,
			OriginalParentID: originalParentID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if payload == nil {
		return &FolderResult{Folder: folder}, nil
	}
	s.enqueueSync(ctx, syncer.StreamFolderSync, payload)
	return &FolderResult{Folder: folder, SyncEventID: payload.SyncEventID}, nil
}

// Trash moves an empty folder to the trash. The NAS-side relocation to
// ".trash/{id}__{name}" happens asynchronously.
func (s *FolderService) Trash(ctx context.Context, folderID, deletedBy string) (*FolderResult, error) {
	if err := s.health.Guard(); err != nil {
		return nil, err
	}

	var (
		folder  *models.Folder
		payload *syncer.Payload
	)
	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		var err error
		folder, err = tx.GetFolderForUpdate(ctx, folderID)
		if err != nil {
			return err
		}
		if folder.IsRoot() {
			return fault.New(fault.KindValidation, "ROOT_IMMUTABLE", "the root folder cannot be trashed")
		}
		if folder.State == models.StateTrashed {
			return models.ErrAlreadyTrashed
		}
		if folder.State != models.StateActive {
			return models.ErrFolderNotActive
		}

		childFolders, childFiles, err := tx.CountActiveChildren(ctx, folder.ID)
		if err != nil {
			return err
		}
		if childFolders+childFiles > 0 {
			return models.ErrFolderNotEmpty
		}

		obj, err := tx.GetFolderStorageObjectForUpdate(ctx, folder.ID, models.TierNAS)
		if err != nil {
			return err
		}
		if obj.AvailabilityStatus == models.AvailabilitySyncing {
			return models.ErrFolderSyncing
		}

		tm := &models.TrashMetadata{
			FolderID:         &folder.ID,
			OriginalPath:     folder.Path,
			OriginalParentID: folder.ParentID,
			DeletedBy:        deletedBy,
			ExpiresAt:        time.Now().Add(s.trashRetention),
		}
		if err := tx.CreateTrashMetadata(ctx, tm); err != nil {
			return err
		}

		oldPath := folder.Path
		trashKey := tm.TrashKey(folder.Name)

		folder.State = models.StateTrashed
		if err := tx.UpdateFolder(ctx, folder); err != nil {
			return err
		}

		obj.ObjectKey = trashKey
		obj.AvailabilityStatus = models.AvailabilitySyncing
		if err := tx.UpdateFolderStorageObject(ctx, obj); err != nil {
			return err
		}

		event := &models.SyncEvent{
			EventType:  models.EventTrash,
			TargetType: models.TargetFolder,
			FolderID:   &folder.ID,
			SourcePath: oldPath,
			TargetPath: trashKey,
		}
		if err := tx.CreateSyncEvent(ctx, event); err != nil {
			return err
		}
		payload = &syncer.Payload{
			Action:          syncer.ActionTrash,
			FolderID:        folder.ID,
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

	s.enqueueSync(ctx, syncer.StreamFolderSync, payload)
	return &FolderResult{Folder: folder, SyncEventID: payload.SyncEventID}, nil
}

// Restore brings a trashed folder back to its original parent. The state
// flip to ACTIVE happens in the handler once the NAS move succeeded.
func (s *FolderService) Restore(ctx context.Context, folderID string) (*FolderResult, error) {
	if err := s.health.Guard(); err != nil {
		return nil, err
	}

	var (
		folder  *models.Folder
		payload *syncer.Payload
	)
	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		var err error
		folder, err = tx.GetFolderForUpdate(ctx, folderID)
		if err != nil {
			return err
		}
		if folder.State != models.StateTrashed {
			return fault.New(fault.KindPrecondition, "NOT_TRASHED", "folder is not in the trash")
		}

		tm, err := tx.GetTrashMetadataForFolder(ctx, folder.ID)
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
					"the original parent folder is no longer active")
			}
		}

		obj, err := tx.GetFolderStorageObjectForUpdate(ctx, folder.ID, models.TierNAS)
		if err != nil {
			return err
		}
		if obj.AvailabilityStatus == models.AvailabilitySyncing {
			return models.ErrFolderSyncing
		}

		trashKey := obj.ObjectKey
		obj.ObjectKey = tm.OriginalPath
		obj.AvailabilityStatus = models.AvailabilitySyncing
		if err := tx.UpdateFolderStorageObject(ctx, obj); err != nil {
			return err
		}

		event := &models.SyncEvent{
			EventType:  models.EventRestore,
			TargetType: models.TargetFolder,
			FolderID:   &folder.ID,
			SourcePath: trashKey,
			TargetPath: tm.OriginalPath,
		}
		if err := tx.CreateSyncEvent(ctx, event); err != nil {
			return err
		}
		payload = &syncer.Payload{
			Action:          syncer.ActionRestore,
			FolderID:        folder.ID,
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

	s.enqueueSync(ctx, syncer.StreamFolderSync, payload)
	return &FolderResult{Folder: folder, SyncEventID: payload.SyncEventID}, nil
}

// Purge permanently deletes a trashed folder from the NAS and, once that
// succeeded, marks the metadata DELETED.
func (s *FolderService) Purge(ctx context.Context, folderID string) (*FolderResult, error) {
	if err := s.health.Guard(); err != nil {
		return nil, err
	}

	var (
		folder  *models.Folder
		payload *syncer.Payload
	)
	err := s.store.WithTx(ctx, func(tx *metastore.Store) error {
		var err error
		folder, err = tx.GetFolderForUpdate(ctx, folderID)
		if err != nil {
			return err
		}
		if folder.State != models.StateTrashed {
			return fault.New(fault.KindPrecondition, "NOT_TRASHED", "folder is not in the trash")
		}

		tm, err := tx.GetTrashMetadataForFolder(ctx, folder.ID)
		if err != nil {
			return err
		}

		obj, err := tx.GetFolderStorageObjectForUpdate(ctx, folder.ID, models.TierNAS)
		if err != nil {
			return err
		}
		if obj.AvailabilityStatus == models.AvailabilitySyncing {
			return models.ErrFolderSyncing
		}

		obj.AvailabilityStatus = models.AvailabilitySyncing
		if err := tx.UpdateFolderStorageObject(ctx, obj); err != nil {
			return err
		}

		event := &models.SyncEvent{
			EventType:  models.EventPurge,
			TargetType: models.TargetFolder,
			FolderID:   &folder.ID,
			SourcePath: obj.ObjectKey,
		}
		if err := tx.CreateSyncEvent(ctx, event); err != nil {
			return err
		}
		payload = &syncer.Payload{
			Action:          syncer.ActionPurge,
			FolderID:        folder.ID,
			SyncEventID:     event.ID,
			OldPath:         obj.ObjectKey,
			TrashMetadataID: tm.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, syncer.StreamFolderSync, payload)
	return &FolderResult{Folder: folder, SyncEventID: payload.SyncEventID}, nil
}
