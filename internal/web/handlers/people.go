package handlers

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/facegate/facegate/internal/identity"
	"github.com/facegate/facegate/internal/vision"
)

// maxUploadSize bounds enrollment uploads (32 MB).
const maxUploadSize = 32 << 20

// PeopleHandler exposes enrollment and the enrolled-people listing.
type PeopleHandler struct {
	store    *identity.Store
	detector vision.Detector
}

// NewPeopleHandler creates a new people handler.
func NewPeopleHandler(store *identity.Store, detector vision.Detector) *PeopleHandler {
	return &PeopleHandler{store: store, detector: detector}
}

// List returns enrolled people and their reference-embedding counts.
func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	people := h.store.People()
	respondJSON(w, http.StatusOK, map[string]any{
		"people":      people,
		"total_count": len(people),
	})
}

// cropFromUpload decodes one uploaded image and returns the first detected
// face crop.
func (h *PeopleHandler) cropFromUpload(r *http.Request, fileHeader *multipart.FileHeader) (image.Image, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}

	bounds := img.Bounds()
	frame := &vision.Frame{
		Image:     img,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Timestamp: time.Now(),
	}

	observations, err := h.detector.Detect(r.Context(), frame)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	if len(observations) == 0 {
		return nil, vision.ErrNoFaceDetected
	}
	// Enrollment photos are expected to contain one face; take the first.
	return observations[0].Crop, nil
}

// Add enrolls a person from one or more uploaded images. Images without a
// usable face are reported as warnings; the call fails only if the name is
// missing, no images were sent, or no image produced an embedding.
func (h *PeopleHandler) Add(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	name := r.FormValue("name")
	if identity.NormalizeName(name) == "" {
		respondError(w, http.StatusBadRequest, "person name is required")
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no images uploaded")
		return
	}

	var crops []image.Image
	var warnings []string
	for _, fileHeader := range files {
		crop, err := h.cropFromUpload(r, fileHeader)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("file %s: %v", fileHeader.Filename, err))
			continue
		}
		crops = append(crops, crop)
	}

	if len(crops) == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "no valid faces detected in uploaded images",
			"details": warnings,
		})
		return
	}

	result, err := h.store.Enroll(r.Context(), name, crops)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidInput):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, vision.ErrNoFaceDetected):
			respondError(w, http.StatusBadRequest, "no valid faces detected in uploaded images")
		default:
			log.Printf("enrollment for %s failed: %v", sanitizeForLog(name), err)
			respondError(w, http.StatusInternalServerError, "failed to save enrollment")
		}
		return
	}

	warnings = append(warnings, result.Warnings...)
	response := map[string]any{
		"status":           "success",
		"message":          fmt.Sprintf("Successfully added %s to the database", result.Name),
		"embeddings_added": result.EmbeddingsAdded,
		"images_processed": result.ImagesProcessed,
		"total_embeddings": result.TotalEmbeddings,
	}
	if len(warnings) > 0 {
		response["warnings"] = warnings
	}
	respondJSON(w, http.StatusOK, response)
}
