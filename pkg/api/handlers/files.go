package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/command"
)

// FileHandler serves the file command endpoints.
type FileHandler struct {
	files *command.FileService
}

// NewFileHandler creates a file handler.
func NewFileHandler(files *command.FileService) *FileHandler {
	return &FileHandler{files: files}
}

// Upload handles POST /api/v1/files: the direct (small) upload path.
//
// The file content is the raw request body; metadata rides in query
// parameters (name, folder_id, strategy, created_by) and the standard
// Content-Type and Content-Length headers. Large files should use the
// multipart endpoints instead.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("name")
	if name == "" {
		BadRequest(w, "query parameter name is required")
		return
	}
	strategy, err := command.ParseConflictStrategy(q.Get("strategy"))
	if err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.files.Create(r.Context(), command.CreateFileInput{
		Name:      name,
		FolderID:  q.Get("folder_id"),
		MimeType:  r.Header.Get("Content-Type"),
		SizeBytes: r.ContentLength,
		Content:   r.Body,
		CreatedBy: q.Get("created_by"),
		Strategy:  strategy,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONCreated(w, result)
}

// Get handles GET /api/v1/files/{id}.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	file, err := h.files.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, file)
}

// Download handles GET /api/v1/files/{id}/content. The stream holds a
// content lease for its whole duration, released when the copy finishes,
// errors, or the client disconnects.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	rc, file, err := h.files.OpenContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	defer rc.Close()

	if file.MimeType != "" {
		w.Header().Set("Content-Type", file.MimeType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Length", strconv.FormatInt(file.SizeBytes, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)

	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; client disconnects land here. The lease is
		// released by the reader itself.
		logger.DebugCtx(r.Context(), "content stream interrupted",
			logger.KeyFileID, file.ID,
			logger.KeyError, err.Error(),
		)
	}
}

// SyncStatus handles GET /api/v1/files/{id}/sync-status.
func (h *FileHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	events, err := h.files.SyncStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, events)
}

// Rename handles POST /api/v1/files/{id}/rename.
func (h *FileHandler) Rename(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.files.Rename(r.Context(), command.RenameFileInput{
		FileID:   chi.URLParam(r, "id"),
		NewName:  req.NewName,
		Strategy: strategy,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, result)
}

type moveFileRequest struct {
	TargetFolderID string `json:"target_folder_id"`
	Strategy       string `json:"strategy,omitempty"`
}

// Move handles POST /api/v1/files/{id}/move.
func (h *FileHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req moveFileRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	strategy, err := command.ParseConflictStrategy(req.Strategy)
	if err != nil {
		WriteError(w, err)
		return
	}

	result, err := h.files.Move(r.Context(), command.MoveFileInput{
		FileID:         chi.URLParam(r, "id"),
		TargetFolderID: req.TargetFolderID,
		Strategy:       strategy,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, result)
}

// Trash handles POST /api/v1/files/{id}/trash.
func (h *FileHandler) Trash(w http.ResponseWriter, r *http.Request) {
	var req trashRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			BadRequest(w, "invalid request body: "+err.Error())
			return
		}
	}

	result, err := h.files.Trash(r.Context(), chi.URLParam(r, "id"), req.DeletedBy)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, result)
}

// Restore handles POST /api/v1/files/{id}/restore.
func (h *FileHandler) Restore(w http.ResponseWriter, r *http.Request) {
	result, err := h.files.Restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, result)
}

// Purge handles POST /api/v1/files/{id}/purge.
func (h *FileHandler) Purge(w http.ResponseWriter, r *http.Request) {
	result, err := h.files.Purge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, result)
}
