package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mezzofs/mezzofs/pkg/admission"
	"github.com/mezzofs/mezzofs/pkg/upload"
)

// UploadHandler serves the multipart upload and admission queue
// endpoints.
type UploadHandler struct {
	engine     *upload.Engine
	controller *admission.Controller
}

// NewUploadHandler creates an upload handler.
func NewUploadHandler(engine *upload.Engine, controller *admission.Controller) *UploadHandler {
	return &UploadHandler{engine: engine, controller: controller}
}

type initiateRequest struct {
	FileName  string `json:"file_name"`
	FolderID  string `json:"folder_id,omitempty"`
	TotalSize int64  `json:"total_size"`
	MimeType  string `json:"mime_type,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
}

// Initiate handles POST /api/v1/uploads. An admitted upload returns 201
// with the open session; a queued one returns 202 with the ticket.
func (h *UploadHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}

	result, err := h.controller.InitiateOrEnqueue(r.Context(), upload.InitiateInput{
		FileName:  req.FileName,
		FolderID:  req.FolderID,
		TotalSize: req.TotalSize,
		MimeType:  req.MimeType,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	if result.Status == admission.TicketWaiting {
		WriteJSON(w, http.StatusAccepted, result)
		return
	}
	WriteJSONCreated(w, result)
}

// UploadPart handles PUT /api/v1/uploads/{id}/parts/{n}. The part bytes
// are the raw request body.
func (h *UploadHandler) UploadPart(w http.ResponseWriter, r *http.Request) {
	partNumber, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		BadRequest(w, "part number must be an integer")
		return
	}

	result, err := h.engine.UploadPart(r.Context(), chi.URLParam(r, "id"), partNumber, r.Body)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, result)
}

// Complete handles POST /api/v1/uploads/{id}/complete.
func (h *UploadHandler) Complete(w http.ResponseWriter, r *http.Request) {
	session, err := h.engine.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, session)
}

// Abort handles DELETE /api/v1/uploads/{id}.
func (h *UploadHandler) Abort(w http.ResponseWriter, r *http.Request) {
	if _, err := h.engine.Abort(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteError(w, err)
		return
	}
	WriteNoContent(w)
}

// Status handles GET /api/v1/uploads/{id}.
func (h *UploadHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, status)
}

// PollTicket handles GET /api/v1/uploads/queue/{ticket}.
func (h *UploadHandler) PollTicket(w http.ResponseWriter, r *http.Request) {
	result, err := h.controller.Poll(r.Context(), chi.URLParam(r, "ticket"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, result)
}

// CancelTicket handles DELETE /api/v1/uploads/queue/{ticket}.
func (h *UploadHandler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Cancel(r.Context(), chi.URLParam(r, "ticket")); err != nil {
		WriteError(w, err)
		return
	}
	WriteNoContent(w)
}
