package models

import "time"

// File is a leaf of the virtual filesystem.
//
// Invariant: (FolderID, Name) is unique among ACTIVE siblings.
type File struct {
	ID        string      `gorm:"primaryKey;size:36" json:"id"`
	Name      string      `gorm:"size:255;not null;index:idx_files_folder_name" json:"name"`
	FolderID  string      `gorm:"size:36;not null;index:idx_files_folder_name" json:"folder_id"`
	Path      string      `gorm:"size:4096;not null;index" json:"path"`
	SizeBytes int64       `gorm:"not null;default:0" json:"size_bytes"`
	MimeType  string      `gorm:"size:255" json:"mime_type"`
	Checksum  string      `gorm:"size:128" json:"checksum,omitempty"`
	State     EntityState `gorm:"size:16;not null;default:ACTIVE;index" json:"state"`
	CreatedBy string      `gorm:"size:36" json:"created_by"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for File.
func (File) TableName() string {
	return "files"
}
