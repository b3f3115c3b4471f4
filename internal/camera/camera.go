// Package camera owns the capture device and produces raw frames for the
// recognition pipeline.
package camera

import (
	"errors"

	"github.com/facegate/facegate/internal/vision"
)

// ErrDeviceUnavailable reports that the capture device cannot be acquired:
// it does not exist, cannot be opened, or is already held.
var ErrDeviceUnavailable = errors.New("camera device unavailable")

// Source produces a sequence of raw frames. Open acquires the device, Read
// blocks for the next frame and returns io.EOF at end of stream, Close
// releases the device and is safe to call more than once.
type Source interface {
	Open() error
	Read() (*vision.Frame, error)
	Close() error
}
