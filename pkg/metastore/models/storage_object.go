package models

import "time"

// StorageTier identifies the physical tier a storage object lives on.
type StorageTier string

const (
	TierCache StorageTier = "CACHE"
	TierNAS   StorageTier = "NAS"
)

// AvailabilityStatus is the convergence state of a storage object.
type AvailabilityStatus string

const (
	// AvailabilitySyncing means a NAS mutation for this object is in
	// flight; destructive commands reject until it settles.
	AvailabilitySyncing AvailabilityStatus = "SYNCING"

	// AvailabilityAvailable means ObjectKey points at live bytes.
	AvailabilityAvailable AvailabilityStatus = "AVAILABLE"

	// AvailabilityError means the last sync attempt exhausted retries.
	AvailabilityError AvailabilityStatus = "ERROR"
)

// FileStorageObject is the per-tier physical pointer for a file.
//
// Invariants: at most one row per (FileID, Tier). LeaseCount applies to
// the NAS tier only; while positive, destructive NAS operations on this
// object must retry rather than proceed.
type FileStorageObject struct {
	ID                 string             `gorm:"primaryKey;size:36" json:"id"`
	FileID             string             `gorm:"size:36;not null;uniqueIndex:idx_fso_file_tier" json:"file_id"`
	Tier               StorageTier        `gorm:"size:8;not null;uniqueIndex:idx_fso_file_tier" json:"tier"`
	ObjectKey          string             `gorm:"size:4096;not null" json:"object_key"`
	AvailabilityStatus AvailabilityStatus `gorm:"size:16;not null;default:SYNCING" json:"availability_status"`
	LeaseCount         int                `gorm:"not null;default:0" json:"lease_count"`
	CreatedAt          time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for FileStorageObject.
func (FileStorageObject) TableName() string {
	return "file_storage_objects"
}

// FolderStorageObject is the per-tier physical pointer for a folder.
// Folders only materialise on the NAS tier.
type FolderStorageObject struct {
	ID                 string             `gorm:"primaryKey;size:36" json:"id"`
	FolderID           string             `gorm:"size:36;not null;uniqueIndex:idx_folso_folder_tier" json:"folder_id"`
	Tier               StorageTier        `gorm:"size:8;not null;uniqueIndex:idx_folso_folder_tier" json:"tier"`
	ObjectKey          string             `gorm:"size:4096;not null" json:"object_key"`
	AvailabilityStatus AvailabilityStatus `gorm:"size:16;not null;default:SYNCING" json:"availability_status"`
	CreatedAt          time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for FolderStorageObject.
func (FolderStorageObject) TableName() string {
	return "folder_storage_objects"
}
