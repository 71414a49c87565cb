package metastore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mezzofs/mezzofs/pkg/metastore/models"
)

// ============================================
// STORAGE OBJECT OPERATIONS
// ============================================

func (s *Store) CreateFileStorageObject(ctx context.Context, obj *models.FileStorageObject) error {
	if obj.ID == "" {
		obj.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(obj).Error
}

func (s *Store) CreateFolderStorageObject(ctx context.Context, obj *models.FolderStorageObject) error {
	if obj.ID == "" {
		obj.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(obj).Error
}

// GetFileStorageObject returns the storage object for (fileID, tier), or
// ErrStorageObjectNotFound.
func (s *Store) GetFileStorageObject(ctx context.Context, fileID string, tier models.StorageTier) (*models.FileStorageObject, error) {
	var obj models.FileStorageObject
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND tier = ?", fileID, tier).
		First(&obj).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrStorageObjectNotFound)
	}
	return &obj, nil
}

// GetFileStorageObjectForUpdate loads under a row lock. Only meaningful
// inside WithTx.
func (s *Store) GetFileStorageObjectForUpdate(ctx context.Context, fileID string, tier models.StorageTier) (*models.FileStorageObject, error) {
	var obj models.FileStorageObject
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("file_id = ? AND tier = ?", fileID, tier).
		First(&obj).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrStorageObjectNotFound)
	}
	return &obj, nil
}

func (s *Store) GetFolderStorageObject(ctx context.Context, folderID string, tier models.StorageTier) (*models.FolderStorageObject, error) {
	var obj models.FolderStorageObject
	err := s.db.WithContext(ctx).
		Where("folder_id = ? AND tier = ?", folderID, tier).
		First(&obj).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrStorageObjectNotFound)
	}
	return &obj, nil
}

// GetFolderStorageObjectForUpdate loads under a row lock. Only meaningful
// inside WithTx.
func (s *Store) GetFolderStorageObjectForUpdate(ctx context.Context, folderID string, tier models.StorageTier) (*models.FolderStorageObject, error) {
	var obj models.FolderStorageObject
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("folder_id = ? AND tier = ?", folderID, tier).
		First(&obj).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrStorageObjectNotFound)
	}
	return &obj, nil
}

func (s *Store) UpdateFileStorageObject(ctx context.Context, obj *models.FileStorageObject) error {
	obj.UpdatedAt = time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.FileStorageObject{}).
		Where("id = ?", obj.ID).
		Updates(map[string]any{
			"object_key":          obj.ObjectKey,
			"availability_status": obj.AvailabilityStatus,
			"updated_at":          obj.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrStorageObjectNotFound
	}
	return nil
}

func (s *Store) UpdateFolderStorageObject(ctx context.Context, obj *models.FolderStorageObject) error {
	obj.UpdatedAt = time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.FolderStorageObject{}).
		Where("id = ?", obj.ID).
		Updates(map[string]any{
			"object_key":          obj.ObjectKey,
			"availability_status": obj.AvailabilityStatus,
			"updated_at":          obj.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrStorageObjectNotFound
	}
	return nil
}

// AdjustFileLease atomically adds delta to the NAS storage object's lease
// count and returns the new value. The count never drops below zero.
func (s *Store) AdjustFileLease(ctx context.Context, fileID string, delta int) (int, error) {
	var count int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var obj models.FileStorageObject
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("file_id = ? AND tier = ?", fileID, models.TierNAS).
			First(&obj).Error; err != nil {
			return convertNotFoundError(err, models.ErrStorageObjectNotFound)
		}
		obj.LeaseCount += delta
		if obj.LeaseCount < 0 {
			obj.LeaseCount = 0
		}
		count = obj.LeaseCount
		return tx.Model(&models.FileStorageObject{}).
			Where("id = ?", obj.ID).
			Update("lease_count", obj.LeaseCount).Error
	})
	return count, err
}

// DeleteFileStorageObjects removes all tiers for a file (purge cascade).
func (s *Store) DeleteFileStorageObjects(ctx context.Context, fileID string) error {
	return s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Delete(&models.FileStorageObject{}).Error
}

// DeleteFolderStorageObjects removes all tiers for a folder (purge cascade).
func (s *Store) DeleteFolderStorageObjects(ctx context.Context, folderID string) error {
	return s.db.WithContext(ctx).
		Where("folder_id = ?", folderID).
		Delete(&models.FolderStorageObject{}).Error
}

// RewriteObjectKeys rewrites the NAS object-key prefix of every
// descendant storage object after a folder rename or move, with the same
// anchored-prefix rule as RewritePaths. Descendants are addressed through
// their entity's path.
func (s *Store) RewriteObjectKeys(ctx context.Context, oldKey, newKey string) error {
	oldPrefix := childPrefix(oldKey)
	newPrefix := childPrefix(newKey)
	pattern := escapeLike(oldPrefix) + "%"
	cut := len(oldPrefix) + 1

	if err := s.db.WithContext(ctx).
		Model(&models.FolderStorageObject{}).
		Where(`tier = ? AND object_key LIKE ? ESCAPE '\'`, models.TierNAS, pattern).
		Update("object_key", gorm.Expr("? || substr(object_key, ?)", newPrefix, cut)).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Model(&models.FileStorageObject{}).
		Where(`tier = ? AND object_key LIKE ? ESCAPE '\'`, models.TierNAS, pattern).
		Update("object_key", gorm.Expr("? || substr(object_key, ?)", newPrefix, cut)).Error
}
