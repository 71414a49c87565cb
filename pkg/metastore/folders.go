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
// FOLDER OPERATIONS
// ============================================

func (s *Store) CreateFolder(ctx context.Context, folder *models.Folder) error {
	if folder.ID == "" {
		folder.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(folder).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrDuplicateFolder
		}
		return err
	}
	return nil
}

func (s *Store) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	var folder models.Folder
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&folder).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFolderNotFound)
	}
	return &folder, nil
}

// GetFolderForUpdate loads a folder under a SELECT ... FOR UPDATE row
// lock. Only meaningful inside WithTx.
func (s *Store) GetFolderForUpdate(ctx context.Context, id string) (*models.Folder, error) {
	var folder models.Folder
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&folder).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFolderNotFound)
	}
	return &folder, nil
}

func (s *Store) GetFolderByPath(ctx context.Context, path string) (*models.Folder, error) {
	var folder models.Folder
	err := s.db.WithContext(ctx).
		Where("path = ? AND state <> ?", path, models.StateDeleted).
		First(&folder).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFolderNotFound)
	}
	return &folder, nil
}

// GetRootFolder returns the folder with ParentID null.
func (s *Store) GetRootFolder(ctx context.Context) (*models.Folder, error) {
	var folder models.Folder
	err := s.db.WithContext(ctx).Where("parent_id IS NULL").First(&folder).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFolderNotFound)
	}
	return &folder, nil
}

// FindChildFolder returns the non-trashed child of parentID with the given
// name, or ErrFolderNotFound.
func (s *Store) FindChildFolder(ctx context.Context, parentID, name string) (*models.Folder, error) {
	var folder models.Folder
	err := s.db.WithContext(ctx).
		Where("parent_id = ? AND name = ? AND state = ?", parentID, name, models.StateActive).
		First(&folder).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFolderNotFound)
	}
	return &folder, nil
}

func (s *Store) ListChildFolders(ctx context.Context, parentID string) ([]*models.Folder, error) {
	var folders []*models.Folder
	err := s.db.WithContext(ctx).
		Where("parent_id = ? AND state = ?", parentID, models.StateActive).
		Order("name").
		Find(&folders).Error
	if err != nil {
		return nil, err
	}
	return folders, nil
}

func (s *Store) UpdateFolder(ctx context.Context, folder *models.Folder) error {
	folder.UpdatedAt = time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.Folder{}).
		Where("id = ?", folder.ID).
		Updates(map[string]any{
			"name":       folder.Name,
			"parent_id":  folder.ParentID,
			"path":       folder.Path,
			"state":      folder.State,
			"updated_at": folder.UpdatedAt,
		})
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return models.ErrDuplicateFolder
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrFolderNotFound
	}
	return nil
}

// CountActiveChildren returns the number of ACTIVE child folders and files
// directly under folderID. Used by the empty-folder delete policy.
func (s *Store) CountActiveChildren(ctx context.Context, folderID string) (folders int64, files int64, err error) {
	if err = s.db.WithContext(ctx).
		Model(&models.Folder{}).
		Where("parent_id = ? AND state = ?", folderID, models.StateActive).
		Count(&folders).Error; err != nil {
		return 0, 0, err
	}
	if err = s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("folder_id = ? AND state = ?", folderID, models.StateActive).
		Count(&files).Error; err != nil {
		return 0, 0, err
	}
	return folders, files, nil
}

// RewritePaths rewrites the path prefix of every descendant folder and
// file after a folder rename or move. The match is anchored at a "/"
// boundary so renaming "/a/b" never touches "/a/bc".
func (s *Store) RewritePaths(ctx context.Context, oldPath, newPath string) error {
	oldPrefix := childPrefix(oldPath)
	newPrefix := childPrefix(newPath)
	pattern := escapeLike(oldPrefix) + "%"
	cut := len(oldPrefix) + 1 // substr is 1-based

	// Single parameterised statement per table; both SQLite and Postgres
	// support || concatenation and substr().
	if err := s.db.WithContext(ctx).
		Model(&models.Folder{}).
		Where(`path LIKE ? ESCAPE '\'`, pattern).
		Update("path", gorm.Expr("? || substr(path, ?)", newPrefix, cut)).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Model(&models.File{}).
		Where(`path LIKE ? ESCAPE '\'`, pattern).
		Update("path", gorm.Expr("? || substr(path, ?)", newPrefix, cut)).Error
}

// FolderStats aggregates live statistics for the subtree rooted at the
// folder with the given path.
type FolderStats struct {
	FolderCount int64 `json:"folder_count"`
	FileCount   int64 `json:"file_count"`
	TotalBytes  int64 `json:"total_bytes"`
}

// GetFolderStats computes file/folder counts and aggregate size for the
// subtree at path with live queries.
func (s *Store) GetFolderStats(ctx context.Context, path string) (*FolderStats, error) {
	pattern := escapeLike(childPrefix(path)) + "%"
	var stats FolderStats

	if err := s.db.WithContext(ctx).
		Model(&models.Folder{}).
		Where(`path LIKE ? ESCAPE '\' AND state = ?`, pattern, models.StateActive).
		Count(&stats.FolderCount).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).
		Model(&models.File{}).
		Where(`path LIKE ? ESCAPE '\' AND state = ?`, pattern, models.StateActive).
		Count(&stats.FileCount).Error; err != nil {
		return nil, err
	}
	type sizeRow struct{ Total int64 }
	var row sizeRow
	if err := s.db.WithContext(ctx).
		Model(&models.File{}).
		Select("COALESCE(SUM(size_bytes), 0) AS total").
		Where(`path LIKE ? ESCAPE '\' AND state = ?`, pattern, models.StateActive).
		Scan(&row).Error; err != nil {
		return nil, err
	}
	stats.TotalBytes = row.Total
	return &stats, nil
}
