// Package vision provides face detection, embedding extraction, and frame
// annotation for the recognition pipeline. Detection and embedding run against
// a frozen model artifact: either the inference sidecar (remote) or an
// in-process Haar cascade (detection only).
package vision

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrFrameDecode reports a frame that could not be decoded or processed.
	// The pipeline logs it and drops the tick.
	ErrFrameDecode = errors.New("frame decode failed")

	// ErrEmbedding reports a face crop the embedder rejected (malformed or
	// too small). The caller treats it as "no observation".
	ErrEmbedding = errors.New("embedding failed")

	// ErrNoFaceDetected reports an enrollment image with no usable face.
	ErrNoFaceDetected = errors.New("no face detected")
)

// Frame is a single captured camera image. Frames are transient: they live
// for one pipeline tick and are never persisted.
type Frame struct {
	Image     image.Image
	Width     int
	Height    int
	Timestamp time.Time
}

// Observation is one detected face within a frame: its bounding box, the
// cropped face region, and the detector's confidence.
type Observation struct {
	Box   image.Rectangle
	Crop  image.Image
	Score float64
}

// Detector finds faces in a frame. Detectors are stateless: no correlation
// is attempted across frames, every frame is evaluated fresh.
type Detector interface {
	Detect(ctx context.Context, frame *Frame) ([]Observation, error)
}

// Embedder maps a face crop to a fixed-length identity vector. Deterministic
// for identical input and safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, crop image.Image) ([]float32, error)
}
