package models

import "time"

// UploadStatus is the multipart session lifecycle state.
//
//	INIT ─first part─► UPLOADING ─complete─► COMPLETED
//	                        │ abort                │
//	                        ▼                      │
//	                     ABORTED                   │
//	  any non-terminal ─now > ExpiresAt─► EXPIRED ◄┘ (never from terminal)
//
// COMPLETED, ABORTED and EXPIRED are sticky.
type UploadStatus string

const (
	UploadInit      UploadStatus = "INIT"
	UploadUploading UploadStatus = "UPLOADING"
	UploadCompleted UploadStatus = "COMPLETED"
	UploadAborted   UploadStatus = "ABORTED"
	UploadExpired   UploadStatus = "EXPIRED"
)

// IsTerminal reports whether the status is sticky.
func (s UploadStatus) IsTerminal() bool {
	return s == UploadCompleted || s == UploadAborted || s == UploadExpired
}

// UploadSession is a chunked large-file upload in progress.
//
// Invariants: TotalParts = ceil(TotalSize/PartSize); completed part
// numbers fall in [1, TotalParts]; terminal statuses are immutable.
type UploadSession struct {
	ID            string       `gorm:"primaryKey;size:36" json:"id"`
	FileName      string       `gorm:"size:255;not null" json:"file_name"`
	FolderID      string       `gorm:"size:36;not null;index" json:"folder_id"`
	TotalSize     int64        `gorm:"not null" json:"total_size"`
	PartSize      int64        `gorm:"not null" json:"part_size"`
	TotalParts    int          `gorm:"not null" json:"total_parts"`
	MimeType      string       `gorm:"size:255" json:"mime_type"`
	Status        UploadStatus `gorm:"size:16;not null;default:INIT;index" json:"status"`
	UploadedBytes int64        `gorm:"not null;default:0" json:"uploaded_bytes"`
	ExpiresAt     time.Time    `gorm:"index" json:"expires_at"`
	CreatedBy     string       `gorm:"size:36" json:"created_by"`
	FileID        *string      `gorm:"size:36" json:"file_id,omitempty"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"autoUpdateTime" json:"updated_at"`

	Parts []UploadSessionPart `gorm:"foreignKey:SessionID" json:"parts,omitempty"`
}

// TableName returns the table name for UploadSession.
func (UploadSession) TableName() string {
	return "upload_sessions"
}

// UploadSessionPart records one completed part. Re-uploading the same
// part number overwrites the row.
type UploadSessionPart struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID  string    `gorm:"size:36;not null;uniqueIndex:idx_usp_session_part" json:"session_id"`
	PartNumber int       `gorm:"not null;uniqueIndex:idx_usp_session_part" json:"part_number"`
	ETag       string    `gorm:"size:64;not null" json:"etag"`
	SizeBytes  int64     `gorm:"not null" json:"size_bytes"`
	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
}

// TableName returns the table name for UploadSessionPart.
func (UploadSessionPart) TableName() string {
	return "upload_session_parts"
}
