package pipeline

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrNoFrameYet is returned when a streaming consumer asks for the current
// frame before the pipeline has published one (or after it stopped).
var ErrNoFrameYet = errors.New("no frame available yet")

// PublishedFrame is one annotated frame ready for streaming consumers.
type PublishedFrame struct {
	JPEG []byte
	At   time.Time
}

// FrameCell is a single-slot, overwrite-on-publish cell holding the most
// recent annotated frame. Readers never block the capture loop and always
// get the latest complete frame; only the most recent frame matters for a
// live feed, so there is no queue and no buffering under slow consumers.
type FrameCell struct {
	latest atomic.Pointer[PublishedFrame]
}

// Publish replaces the current frame. Last write wins.
func (c *FrameCell) Publish(jpegData []byte, at time.Time) {
	c.latest.Store(&PublishedFrame{JPEG: jpegData, At: at})
}

// Latest returns the most recently published frame, or ErrNoFrameYet.
func (c *FrameCell) Latest() (*PublishedFrame, error) {
	frame := c.latest.Load()
	if frame == nil {
		return nil, ErrNoFrameYet
	}
	return frame, nil
}

// Clear empties the cell; subsequent reads get ErrNoFrameYet until the next
// publish.
func (c *FrameCell) Clear() {
	c.latest.Store(nil)
}
