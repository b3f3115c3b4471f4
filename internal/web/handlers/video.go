package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/facegate/facegate/internal/pipeline"
)

// streamInterval paces the MJPEG stream; the capture loop publishes
// independently and consumers always read the latest complete frame.
const streamInterval = 33 * time.Millisecond

// VideoHandler streams the latest annotated frame as MJPEG. Any number of
// consumers may attach or detach without affecting the capture loop.
type VideoHandler struct {
	controller *pipeline.Controller
}

// NewVideoHandler creates a new video handler.
func NewVideoHandler(controller *pipeline.Controller) *VideoHandler {
	return &VideoHandler{controller: controller}
}

// Stream serves multipart/x-mixed-replace JPEG parts until the client
// disconnects or the pipeline stops publishing. A consumer that attaches
// before the first frame gets an explicit error instead of a hang.
func (h *VideoHandler) Stream(w http.ResponseWriter, r *http.Request) {
	frame, err := h.controller.LatestFrame()
	if err != nil {
		if errors.Is(err, pipeline.ErrNoFrameYet) {
			respondError(w, http.StatusServiceUnavailable, "no frame available yet")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		if err := writeMJPEGPart(w, frame.JPEG); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		frame, err = h.controller.LatestFrame()
		if err != nil {
			// The pipeline stopped; end the stream.
			return
		}
	}
}

// writeMJPEGPart writes one JPEG frame in multipart/x-mixed-replace framing.
func writeMJPEGPart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
