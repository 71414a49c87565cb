package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mezzofs/mezzofs/pkg/command"
)

// FolderHandler serves the folder command endpoints.
type FolderHandler struct {
	folders *command.FolderService
}

// NewFolderHandler creates a folder handler.
func NewFolderHandler(folders *command.FolderService) *FolderHandler {
	return &FolderHandler{folders: folders}
}

type createFolderRequest struct {
	Name      string `json:"name"`
	ParentID  string `json:"parent_id,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
}

// Create handles POST /api/v1/folders.
func (h *FolderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	strategy, err := command.ParseConflictStrategy(req.Strategy)
	if err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.folders.Create(r.Context(), command.CreateFolderInput{
		Name:      req.Name,
		ParentID:  req.ParentID,
		CreatedBy: req.CreatedBy,
		Strategy:  strategy,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONCreated(w, result)
}

// Get handles GET /api/v1/folders/{id}.
func (h *FolderHandler) Get(w http.ResponseWriter, r *http.Request) {
	folder, err := h.folders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, folder)
}

// Stats handles GET /api/v1/folders/{id}/stats.
func (h *FolderHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.folders.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, stats)
}

// SyncStatus handles GET /api/v1/folders/{id}/sync-status.
func (h *FolderHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	events, err := h.folders.SyncStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, events)
}

type renameRequest struct {
	NewName  string `json:"new_name"`
	Strategy string `json:"strategy,omitempty"`
}

// Rename handles POST /api/v1/folders/{id}/rename.
func (h *FolderHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	strategy, err := command.ParseConflictStrategy(req.Strategy)
	if err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.folders.Rename(r.Context(), command.RenameFolderInput{
		FolderID: chi.URLParam(r, "id"),
		NewName:  req.NewName,
		Strategy: strategy,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, result)
}

type moveFolderRequest struct {
	TargetParentID string `json:"target_parent_id"`
	Strategy       string `json:"strategy,omitempty"`
}

// Move handles POST /api/v1/folders/{id}/move.
func (h *FolderHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req moveFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	strategy, err := command.ParseConflictStrategy(req.Strategy)
	if err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.folders.Move(r.Context(), command.MoveFolderInput{
		FolderID:       chi.URLParam(r, "id"),
		TargetParentID: req.TargetParentID,
		Strategy:       strategy,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, result)
}

type trashRequest struct {
	DeletedBy string `json:"deleted_by,omitempty"`
}

// Trash handles POST /api/v1/folders/{id}/trash.
func (h *FolderHandler) Trash(w http.ResponseWriter, r *http.Request) {
	var req trashRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			BadRequest(w, "invalid request body: "+err.Error())
			return
		}
	}

	result, err := h.folders.Trash(r.Context(), chi.URLParam(r, "id"), req.DeletedBy)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, result)
}

// Restore handles POST /api/v1/folders/{id}/restore.
func (h *FolderHandler) Restore(w http.ResponseWriter, r *http.Request) {
	result, err := h.folders.Restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, result)
}

// Purge handles POST /api/v1/folders/{id}/purge.
func (h *FolderHandler) Purge(w http.ResponseWriter, r *http.Request) {
	result, err := h.folders.Purge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, result)
}
