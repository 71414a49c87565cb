package models

import (
	"encoding/json"
	"time"
)

// SyncEventType is the NAS action recorded by an outbox row.
type SyncEventType string

const (
	EventCreate  SyncEventType = "CREATE"
	EventRename  SyncEventType = "RENAME"
	EventMove    SyncEventType = "MOVE"
	EventTrash   SyncEventType = "TRASH"
	EventRestore SyncEventType = "RESTORE"
	EventPurge   SyncEventType = "PURGE"
)

// TargetType discriminates the entity kind a sync event refers to.
type TargetType string

const (
	TargetFile   TargetType = "FILE"
	TargetFolder TargetType = "FOLDER"
)

// SyncEventStatus is the outbox lifecycle state.
//
//	PENDING ─enqueue ok─► QUEUED ─pickup─► PROCESSING ─ok─► DONE
//	                                        │error │
//	                                        ▼      └─budget spent─► FAILED
//	                                    RETRYING ─re-delivery─► PROCESSING
//
// DONE and FAILED are terminal and never transition further.
type SyncEventStatus string

const (
	SyncPending    SyncEventStatus = "PENDING"
	SyncQueued     SyncEventStatus = "QUEUED"
	SyncProcessing SyncEventStatus = "PROCESSING"
	SyncRetrying   SyncEventStatus = "RETRYING"
	SyncDone       SyncEventStatus = "DONE"
	SyncFailed     SyncEventStatus = "FAILED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s SyncEventStatus) IsTerminal() bool {
	return s == SyncDone || s == SyncFailed
}

// DefaultMaxRetries is the retry budget for a sync event.
const DefaultMaxRetries = 3

// SyncEvent is the durable outbox row recording one pending NAS mutation.
// It is inserted in the same transaction as the metadata mutation that
// produced it, never after.
type SyncEvent struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	EventType    SyncEventType   `gorm:"size:16;not null" json:"event_type"`
	TargetType   TargetType      `gorm:"size:8;not null" json:"target_type"`
	FileID       *string         `gorm:"size:36;index" json:"file_id,omitempty"`
	FolderID     *string         `gorm:"size:36;index" json:"folder_id,omitempty"`
	SourcePath   string          `gorm:"size:4096" json:"source_path"`
	TargetPath   string          `gorm:"size:4096" json:"target_path"`
	Status       SyncEventStatus `gorm:"size:16;not null;default:PENDING;index" json:"status"`
	RetryCount   int             `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries   int             `gorm:"not null;default:3" json:"max_retries"`
	ErrorMessage string          `gorm:"type:text" json:"error_message,omitempty"`
	Metadata     string          `gorm:"type:text" json:"-"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
}

// TableName returns the table name for SyncEvent.
func (SyncEvent) TableName() string {
	return "sync_events"
}

// EntityID returns the id of the referenced entity regardless of kind.
func (e *SyncEvent) EntityID() string {
	if e.TargetType == TargetFolder && e.FolderID != nil {
		return *e.FolderID
	}
	if e.FileID != nil {
		return *e.FileID
	}
	return ""
}

// GetMetadata returns the decoded metadata bag.
func (e *SyncEvent) GetMetadata() (map[string]string, error) {
	if e.Metadata == "" {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(e.Metadata), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetMetadata encodes the metadata bag.
func (e *SyncEvent) SetMetadata(m map[string]string) error {
	if len(m) == 0 {
		e.Metadata = ""
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	e.Metadata = string(data)
	return nil
}
