package models

import "time"

// EntityState is the lifecycle state shared by folders and files.
type EntityState string

const (
	StateActive  EntityState = "ACTIVE"
	StateTrashed EntityState = "TRASHED"
	StateDeleted EntityState = "DELETED"
)

// Folder is a hierarchical node of the virtual filesystem.
//
// Invariants:
//   - Path equals the parent's Path + "/" + Name (root: Path "/", Name "").
//   - (ParentID, Name) is unique among non-trashed siblings.
//   - Exactly one folder has ParentID nil: the root, bootstrapped at startup.
type Folder struct {
	ID        string      `gorm:"primaryKey;size:36" json:"id"`
	Name      string      `gorm:"size:255;not null;index:idx_folders_parent_name" json:"name"`
	ParentID  *string     `gorm:"size:36;index:idx_folders_parent_name" json:"parent_id,omitempty"`
	Path      string      `gorm:"size:4096;not null;index" json:"path"`
	State     EntityState `gorm:"size:16;not null;default:ACTIVE;index" json:"state"`
	CreatedBy string      `gorm:"size:36" json:"created_by"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Folder.
func (Folder) TableName() string {
	return "folders"
}

// IsRoot reports whether the folder is the bootstrapped root.
func (f *Folder) IsRoot() bool {
	return f.ParentID == nil
}
