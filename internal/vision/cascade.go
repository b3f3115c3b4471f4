package vision

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"
)

// CascadeDetector finds faces with an in-process Haar cascade. It needs no
// inference sidecar but reports no per-detection confidence, so the score
// filter does not apply to it.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
	opts       DetectorOptions
}

// NewCascadeDetector loads the cascade file once; the classifier is reused
// for every frame until Close.
func NewCascadeDetector(cascadeFile string, opts DetectorOptions) (*CascadeDetector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascadeFile) {
		classifier.Close()
		return nil, fmt.Errorf("reading cascade file: %s", cascadeFile)
	}
	return &CascadeDetector{classifier: classifier, opts: opts}, nil
}

// Detect runs the cascade over the frame and crops the detected regions.
func (d *CascadeDetector) Detect(ctx context.Context, frame *Frame) ([]Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameDecode, err)
	}
	defer mat.Close()

	bounds := frame.Image.Bounds()
	var observations []Observation
	for _, rect := range d.classifier.DetectMultiScale(mat) {
		box := clampBox(rect, bounds)
		if box.Dx() < d.opts.MinFaceSize || box.Dy() < d.opts.MinFaceSize {
			continue
		}
		observations = append(observations, Observation{
			Box:   box,
			Crop:  cropImage(frame.Image, box),
			Score: 1,
		})
	}
	return observations, nil
}

// Close releases the cascade classifier.
func (d *CascadeDetector) Close() {
	d.classifier.Close()
}
