package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging. Use these consistently so
// log lines can be aggregated and queried across components.
const (
	// Request correlation
	KeyTraceID   = "trace_id"
	KeyRequestID = "request_id"

	// Operation
	KeyOperation = "operation" // Command or handler name
	KeyAction    = "action"    // Sync action: mkdir, rename, move, trash, restore, purge
	KeyStatus    = "status"    // Lifecycle status value

	// Entities
	KeyFolderID    = "folder_id"
	KeyFileID      = "file_id"
	KeySyncEventID = "sync_event_id"
	KeySessionID   = "session_id"
	KeyTicket      = "ticket"

	// Paths and keys
	KeyPath       = "path"
	KeyName       = "name"
	KeyOldPath    = "old_path"
	KeyNewPath    = "new_path"
	KeyObjectKey  = "object_key"
	KeyTier       = "tier" // cache or nas
	KeySize       = "size"
	KeyPartNumber = "part_number"

	// Client identification
	KeyClientIP = "client_ip"
	KeyUserID   = "user_id"

	// Queueing and retries
	KeyStream     = "stream"
	KeyAttempt    = "attempt"
	KeyRetryCount = "retry_count"
	KeyMaxRetries = "max_retries"
	KeyLockKey    = "lock_key"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
)

// Err returns a standard error attribute, unwrapping the full chain so
// alert-grade lines carry every cause.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, fmt.Sprintf("%+v", err))
}

// EntityAttr returns the id attribute for the given target type.
func EntityAttr(targetType, id string) slog.Attr {
	if targetType == "FOLDER" {
		return slog.String(KeyFolderID, id)
	}
	return slog.String(KeyFileID, id)
}
