package models

import (
	"fmt"
	"time"
)

// TrashPrefix is the reserved NAS directory holding trashed entities.
// User-chosen names must never start with it.
const TrashPrefix = ".trash"

// TrashMetadata records where a trashed entity came from so restore can
// put it back. Created on trash; deleted on restore or purge.
type TrashMetadata struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	FileID           *string   `gorm:"size:36;index" json:"file_id,omitempty"`
	FolderID         *string   `gorm:"size:36;index" json:"folder_id,omitempty"`
	OriginalPath     string    `gorm:"size:4096;not null" json:"original_path"`
	OriginalParentID *string   `gorm:"size:36" json:"original_parent_id,omitempty"`
	DeletedBy        string    `gorm:"size:36" json:"deleted_by"`
	DeletedAt        time.Time `gorm:"autoCreateTime" json:"deleted_at"`
	ExpiresAt        time.Time `gorm:"index" json:"expires_at"`
}

// TableName returns the table name for TrashMetadata.
func (TrashMetadata) TableName() string {
	return "trash_metadata"
}

// TrashKey returns the NAS object key a trashed entity is relocated to:
// ".trash/{trashMetadataId}__{name}".
func (t *TrashMetadata) TrashKey(name string) string {
	return fmt.Sprintf("%s/%s__%s", TrashPrefix, t.ID, name)
}
