package handlers

import (
	"net/http"
	"time"

	"github.com/mezzofs/mezzofs/pkg/nashealth"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	health *nashealth.Cache
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(health *nashealth.Cache) *HealthHandler {
	return &HealthHandler{health: health}
}

// healthResponse is the probe response envelope.
type healthResponse struct {
	Status    string             `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
	NAS       nashealth.Snapshot `json:"nas"`
}

// Liveness handles GET /health: the process is up.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		NAS:       h.health.Get(),
	})
}

// Readiness handles GET /health/ready: ready to take traffic. The NAS
// gate decides; degraded still serves.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	snapshot := h.health.Get()
	status := http.StatusOK
	text := "ready"
	if snapshot.State == nashealth.StateUnhealthy {
		status = http.StatusServiceUnavailable
		text = "not ready"
	}
	WriteJSON(w, status, healthResponse{
		Status:    text,
		Timestamp: time.Now().UTC(),
		NAS:       snapshot,
	})
}
