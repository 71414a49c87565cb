package metastore

import (
	"context"

	"github.com/google/uuid"

	"github.com/mezzofs/mezzofs/pkg/metastore/models"
)

// ============================================
// TRASH METADATA OPERATIONS
// ============================================

func (s *Store) CreateTrashMetadata(ctx context.Context, tm *models.TrashMetadata) error {
	if tm.ID == "" {
		tm.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(tm).Error
}

func (s *Store) GetTrashMetadata(ctx context.Context, id string) (*models.TrashMetadata, error) {
	var tm models.TrashMetadata
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&tm).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrTrashMetadataNotFound)
	}
	return &tm, nil
}

// GetTrashMetadataForFolder returns the trash row for a trashed folder.
func (s *Store) GetTrashMetadataForFolder(ctx context.Context, folderID string) (*models.TrashMetadata, error) {
	var tm models.TrashMetadata
	err := s.db.WithContext(ctx).Where("folder_id = ?", folderID).First(&tm).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrTrashMetadataNotFound)
	}
	return &tm, nil
}

// GetTrashMetadataForFile returns the trash row for a trashed file.
func (s *Store) GetTrashMetadataForFile(ctx context.Context, fileID string) (*models.TrashMetadata, error) {
	var tm models.TrashMetadata
	err := s.db.WithContext(ctx).Where("file_id = ?", fileID).First(&tm).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrTrashMetadataNotFound)
	}
	return &tm, nil
}

// DeleteTrashMetadata removes the trash row on restore or purge.
func (s *Store) DeleteTrashMetadata(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.TrashMetadata{}).Error
}
