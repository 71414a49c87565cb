// Package syncer executes the NAS side of committed metadata mutations:
// it consumes sync jobs from the two entity streams and drives the NAS
// tier to convergence with idempotent, per-entity-serialized handlers.
package syncer

import (
	"encoding/json"
	"fmt"

	"github.com/mezzofs/mezzofs/pkg/metastore/models"
)

// Stream names, one logical queue per entity kind.
const (
	StreamFolderSync = "nas-folder-sync"
	StreamFileSync   = "nas-file-sync"
)

// Action identifies the NAS operation a job requests.
type Action string

const (
	// ActionMkdir creates the folder's NAS directory. Folder-only.
	ActionMkdir Action = "mkdir"

	// ActionCreate copies freshly ingested file bytes from the cache
	// tier to the NAS tier. File-only.
	ActionCreate Action = "create"

	ActionRename  Action = "rename"
	ActionMove    Action = "move"
	ActionTrash   Action = "trash"
	ActionRestore Action = "restore"
	ActionPurge   Action = "purge"
)

// Payload is the job body for both streams, discriminated by Action.
// SyncEventID may be empty (untracked job); handlers then proceed without
// outbox bookkeeping.
type Payload struct {
	Action      Action `json:"action"`
	FolderID    string `json:"folderId,omitempty"`
	FileID      string `json:"fileId,omitempty"`
	SyncEventID string `json:"syncEventId,omitempty"`

	// Paths the handler needs; which ones are set depends on Action.
	OldPath string `json:"oldPath,omitempty"`
	NewPath string `json:"newPath,omitempty"`

	// Move bookkeeping for the second-line check and compensation.
	TargetFolderID   string `json:"targetFolderId,omitempty"`
	OriginalParentID string `json:"originalParentId,omitempty"`

	// Trash/restore/purge bookkeeping.
	TrashMetadataID string `json:"trashMetadataId,omitempty"`

	// Cache object key for file create (copy source).
	CacheKey string `json:"cacheKey,omitempty"`
}

// CacheContentKey returns the cache-tier object key for a file's content.
func CacheContentKey(fileID string) string {
	return fmt.Sprintf("content/%s", fileID)
}

// EntityID returns the id the per-entity lock is scoped to.
func (p *Payload) EntityID() string {
	if p.FolderID != "" {
		return p.FolderID
	}
	return p.FileID
}

// Encode marshals the payload for the broker.
func (p *Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload unmarshals a job body.
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode sync payload: %w", err)
	}
	if p.Action == "" {
		return nil, fmt.Errorf("sync payload missing action")
	}
	return &p, nil
}

// ActionForEvent maps an outbox event to its job action, used by the
// sweeper when re-enqueueing stale events.
func ActionForEvent(event *models.SyncEvent) Action {
	switch event.EventType {
	case models.EventCreate:
		if event.TargetType == models.TargetFolder {
			return ActionMkdir
		}
		return ActionCreate
	case models.EventRename:
		return ActionRename
	case models.EventMove:
		return ActionMove
	case models.EventTrash:
		return ActionTrash
	case models.EventRestore:
		return ActionRestore
	default:
		return ActionPurge
	}
}
