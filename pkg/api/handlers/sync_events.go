package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mezzofs/mezzofs/pkg/metastore"
)

// SyncEventHandler exposes individual outbox rows so clients can poll a
// specific mutation to convergence.
type SyncEventHandler struct {
	store *metastore.Store
}

// NewSyncEventHandler creates a sync event handler.
func NewSyncEventHandler(store *metastore.Store) *SyncEventHandler {
	return &SyncEventHandler{store: store}
}

// Get handles GET /api/v1/sync-events/{id}.
func (h *SyncEventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.store.GetSyncEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONOK(w, event)
}
