package camera

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/facegate/facegate/internal/vision"
)

// deviceGuard enforces that at most one webcam acquisition exists
// process-wide. The physical device is an exclusive resource.
var deviceGuard struct {
	sync.Mutex
	held bool
}

// Webcam captures frames from a local video device through OpenCV.
type Webcam struct {
	device string

	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// NewWebcam creates a source for the given device, either a numeric index
// ("0") or a device path ("/dev/video0"). The device is not touched until
// Open.
func NewWebcam(device string) *Webcam {
	return &Webcam{device: device}
}

// Open acquires the video device. Fails with ErrDeviceUnavailable if the
// device cannot be opened or another acquisition is already held.
func (w *Webcam) Open() error {
	deviceGuard.Lock()
	if deviceGuard.held {
		deviceGuard.Unlock()
		return fmt.Errorf("%w: device already held", ErrDeviceUnavailable)
	}
	deviceGuard.held = true
	deviceGuard.Unlock()

	var capture *gocv.VideoCapture
	var err error
	if idx, convErr := strconv.Atoi(w.device); convErr == nil {
		capture, err = gocv.OpenVideoCapture(idx)
	} else {
		capture, err = gocv.OpenVideoCapture(w.device)
	}
	if err != nil || !capture.IsOpened() {
		w.releaseGuard()
		if capture != nil {
			capture.Close()
		}
		return fmt.Errorf("%w: opening %q: %v", ErrDeviceUnavailable, w.device, err)
	}

	w.mu.Lock()
	w.capture = capture
	w.mat = gocv.NewMat()
	w.mu.Unlock()
	return nil
}

// Read blocks for the next frame. Returns io.EOF when the device stops
// producing frames or the source has been closed.
func (w *Webcam) Read() (*vision.Frame, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.capture == nil {
		return nil, io.EOF
	}
	if ok := w.capture.Read(&w.mat); !ok || w.mat.Empty() {
		return nil, io.EOF
	}

	img, err := w.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vision.ErrFrameDecode, err)
	}

	bounds := img.Bounds()
	return &vision.Frame{
		Image:     img,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Timestamp: time.Now(),
	}, nil
}

// Close releases the device. Idempotent.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.capture == nil {
		return nil
	}
	err := w.capture.Close()
	w.mat.Close()
	w.capture = nil
	w.releaseGuard()
	if err != nil {
		return fmt.Errorf("closing capture device: %w", err)
	}
	return nil
}

func (w *Webcam) releaseGuard() {
	deviceGuard.Lock()
	deviceGuard.held = false
	deviceGuard.Unlock()
}
