package metastore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/mezzofs/mezzofs/pkg/metastore/models"
)

// ============================================
// FILE OPERATIONS
// ============================================

func (s *Store) CreateFile(ctx context.Context, file *models.File) error {
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrDuplicateFile
		}
		return err
	}
	return nil
}

func (s *Store) GetFile(ctx context.Context, id string) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&file).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFileNotFound)
	}
	return &file, nil
}

// GetFileForUpdate loads a file under a SELECT ... FOR UPDATE row lock.
// Only meaningful inside WithTx.
func (s *Store) GetFileForUpdate(ctx context.Context, id string) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&file).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFileNotFound)
	}
	return &file, nil
}

// FindFileByName returns the ACTIVE file with the given name in folderID,
// or ErrFileNotFound.
func (s *Store) FindFileByName(ctx context.Context, folderID, name string) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).
		Where("folder_id = ? AND name = ? AND state = ?", folderID, name, models.StateActive).
		First(&file).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFileNotFound)
	}
	return &file, nil
}

func (s *Store) ListFiles(ctx context.Context, folderID string) ([]*models.File, error) {
	var files []*models.File
	err := s.db.WithContext(ctx).
		Where("folder_id = ? AND state = ?", folderID, models.StateActive).
		Order("name").
		Find(&files).Error
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (s *Store) UpdateFile(ctx context.Context, file *models.File) error {
	file.UpdatedAt = time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("id = ?", file.ID).
		Updates(map[string]any{
			"name":       file.Name,
			"folder_id":  file.FolderID,
			"path":       file.Path,
			"size_bytes": file.SizeBytes,
			"checksum":   file.Checksum,
			"state":      file.State,
			"updated_at": file.UpdatedAt,
		})
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return models.ErrDuplicateFile
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrFileNotFound
	}
	return nil
}
