package models

import "github.com/mezzofs/mezzofs/pkg/fault"

// Domain errors for metadata and sync operations. All are fault-tagged so
// the HTTP layer can map them to status codes by kind.
var (
	// Folder errors
	ErrFolderNotFound  = fault.New(fault.KindNotFound, "FOLDER_NOT_FOUND", "folder not found")
	ErrFolderNotActive = fault.New(fault.KindPrecondition, "FOLDER_NOT_ACTIVE", "folder is not active")
	ErrFolderNotEmpty  = fault.New(fault.KindConflict, "FOLDER_NOT_EMPTY", "folder is not empty")
	ErrFolderSyncing   = fault.New(fault.KindConflict, "FOLDER_SYNCING", "folder has a sync operation in flight")
	ErrDuplicateFolder = fault.New(fault.KindConflict, "DUPLICATE_FOLDER", "a folder with that name already exists")
	ErrCircularMove    = fault.New(fault.KindConflict, "CIRCULAR_MOVE", "cannot move a folder into itself or a descendant")

	// File errors
	ErrFileNotFound  = fault.New(fault.KindNotFound, "FILE_NOT_FOUND", "file not found")
	ErrFileNotActive = fault.New(fault.KindPrecondition, "FILE_NOT_ACTIVE", "file is not active")
	ErrFileSyncing   = fault.New(fault.KindConflict, "FILE_SYNCING", "file has a sync operation in flight")
	ErrFileInUse     = fault.New(fault.KindConflict, "FILE_IN_USE", "file has active content leases")
	ErrDuplicateFile = fault.New(fault.KindConflict, "DUPLICATE_FILE", "a file with that name already exists")

	// Storage object errors
	ErrStorageObjectNotFound = fault.New(fault.KindNotFound, "STORAGE_OBJECT_NOT_FOUND", "storage object not found")

	// Sync event errors
	ErrSyncEventNotFound = fault.New(fault.KindNotFound, "SYNC_EVENT_NOT_FOUND", "sync event not found")
	ErrSyncEventTerminal = fault.New(fault.KindPrecondition, "SYNC_EVENT_TERMINAL", "sync event is in a terminal state")

	// Trash errors
	ErrTrashMetadataNotFound = fault.New(fault.KindNotFound, "TRASH_METADATA_NOT_FOUND", "trash metadata not found")
	ErrAlreadyTrashed        = fault.New(fault.KindConflict, "ALREADY_TRASHED", "entity is already trashed")

	// Upload errors
	ErrUploadSessionNotFound = fault.New(fault.KindNotFound, "UPLOAD_SESSION_NOT_FOUND", "upload session not found")
	ErrUploadSessionTerminal = fault.New(fault.KindPrecondition, "UPLOAD_SESSION_TERMINAL", "upload session is in a terminal state")
	ErrUploadSessionExpired  = fault.New(fault.KindPrecondition, "UPLOAD_SESSION_EXPIRED", "upload session has expired")

	// Admission errors
	ErrTicketNotFound = fault.New(fault.KindNotFound, "QUEUE_TICKET_NOT_FOUND", "queue ticket not found")
)
