package handlers

import (
	"errors"
	"net/http"

	"github.com/facegate/facegate/internal/camera"
	"github.com/facegate/facegate/internal/pipeline"
)

// ControlHandler exposes the session state machine: status, start, stop.
type ControlHandler struct {
	controller *pipeline.Controller
}

// NewControlHandler creates a new control handler.
func NewControlHandler(controller *pipeline.Controller) *ControlHandler {
	return &ControlHandler{controller: controller}
}

// Status reports the current session state. Always succeeds and reflects
// the best-known state even while the capture loop is degraded.
func (h *ControlHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.controller.Status())
}

// Start begins the attendance session: camera on, recognition running.
func (h *ControlHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Start(); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrAlreadyRunning):
			respondError(w, http.StatusConflict, "attendance session already running")
		case errors.Is(err, camera.ErrDeviceUnavailable):
			respondError(w, http.StatusServiceUnavailable, "camera device unavailable")
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "Camera started, attendance active"})
}

// Stop ends the attendance session and releases the camera. Stopping an
// idle session is a no-op, not an error for the caller.
func (h *ControlHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Stop(); err != nil && !errors.Is(err, pipeline.ErrNotRunning) {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "Camera stopped, attendance stopped"})
}
