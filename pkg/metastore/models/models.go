// Package models defines the persisted metadata entities: folders, files,
// storage objects, sync events, trash metadata and upload sessions.
//
// All ids are UUID strings. State enums are stored as short strings.
package models

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Folder{},
		&File{},
		&FolderStorageObject{},
		&FileStorageObject{},
		&SyncEvent{},
		&TrashMetadata{},
		&UploadSession{},
		&UploadSessionPart{},
	}
}
