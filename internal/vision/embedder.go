package vision

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// embedInputSize is the square input resolution of the embedding network.
const embedInputSize = 160

// minEmbedCropSize rejects crops too small to carry identity information.
const minEmbedCropSize = 16

// RemoteEmbedder computes identity vectors through the inference sidecar.
type RemoteEmbedder struct {
	client *InferenceClient
	dim    int
}

// NewRemoteEmbedder creates an embedder backed by the inference sidecar.
// When dim is positive, responses of any other dimension are rejected;
// such vectors would silently score zero similarity against every
// enrolled reference.
func NewRemoteEmbedder(client *InferenceClient, dim int) *RemoteEmbedder {
	return &RemoteEmbedder{client: client, dim: dim}
}

// Embed normalizes the crop to the network input size and returns its
// fixed-length embedding. Malformed input fails with ErrEmbedding.
func (e *RemoteEmbedder) Embed(ctx context.Context, crop image.Image) ([]float32, error) {
	if crop == nil {
		return nil, fmt.Errorf("%w: nil crop", ErrEmbedding)
	}
	bounds := crop.Bounds()
	if bounds.Dx() < minEmbedCropSize || bounds.Dy() < minEmbedCropSize {
		return nil, fmt.Errorf("%w: crop too small (%dx%d)", ErrEmbedding, bounds.Dx(), bounds.Dy())
	}

	data, err := EncodeJPEG(resizeSquare(crop, embedInputSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	embedding, err := e.client.ComputeFaceEmbedding(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if e.dim > 0 && len(embedding) != e.dim {
		return nil, fmt.Errorf("%w: model returned %d dimensions, want %d", ErrEmbedding, len(embedding), e.dim)
	}
	return embedding, nil
}

// resizeSquare scales the crop to size x size for the embedding network.
func resizeSquare(img image.Image, size int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() == size && bounds.Dy() == size {
		return img
	}
	resized := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized
}
