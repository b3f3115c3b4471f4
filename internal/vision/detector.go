package vision

import (
	"context"
	"fmt"
	"image"
)

// DetectorOptions filter raw detections before they become observations.
type DetectorOptions struct {
	MinScore    float64 // detections below this confidence are discarded
	MinFaceSize int     // faces smaller than this on either side are discarded
}

// RemoteDetector finds faces by sending each frame to the inference sidecar.
type RemoteDetector struct {
	client *InferenceClient
	opts   DetectorOptions
}

// NewRemoteDetector creates a detector backed by the inference sidecar.
func NewRemoteDetector(client *InferenceClient, opts DetectorOptions) *RemoteDetector {
	return &RemoteDetector{client: client, opts: opts}
}

// Detect encodes the frame, runs the detection network, and returns filtered
// observations in the order the model reported them.
func (d *RemoteDetector) Detect(ctx context.Context, frame *Frame) ([]Observation, error) {
	data, err := EncodeJPEG(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameDecode, err)
	}

	detections, err := d.client.DetectFaces(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameDecode, err)
	}

	return observationsFromDetections(frame, detections, d.opts), nil
}

// observationsFromDetections clamps raw detections to the frame bounds,
// applies the score and size filters, and crops the face regions.
func observationsFromDetections(frame *Frame, detections []Detection, opts DetectorOptions) []Observation {
	bounds := frame.Image.Bounds()
	var observations []Observation
	for _, det := range detections {
		if len(det.BBox) != 4 || det.DetScore < opts.MinScore {
			continue
		}
		box := clampBox(image.Rect(int(det.BBox[0]), int(det.BBox[1]), int(det.BBox[2]), int(det.BBox[3])), bounds)
		if box.Dx() < opts.MinFaceSize || box.Dy() < opts.MinFaceSize {
			continue
		}
		observations = append(observations, Observation{
			Box:   box,
			Crop:  cropImage(frame.Image, box),
			Score: det.DetScore,
		})
	}
	return observations
}

// clampBox restricts a bounding box to the frame bounds.
func clampBox(box, bounds image.Rectangle) image.Rectangle {
	return box.Intersect(bounds)
}

// subImager is implemented by the stdlib raster image types.
type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cropImage extracts the face region. Raster images are sliced without
// copying; anything else is drawn into a fresh buffer.
func cropImage(img image.Image, box image.Rectangle) image.Image {
	if si, ok := img.(subImager); ok {
		return si.SubImage(box)
	}
	crop := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	for y := 0; y < box.Dy(); y++ {
		for x := 0; x < box.Dx(); x++ {
			crop.Set(x, y, img.At(box.Min.X+x, box.Min.Y+y))
		}
	}
	return crop
}
