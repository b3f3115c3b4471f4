package camera

import (
	"errors"
	"io"
	"testing"
)

func TestOpenMissingDevice(t *testing.T) {
	w := NewWebcam("/nonexistent/video99")
	err := w.Open()
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}

	// A failed open must release the process-wide guard.
	deviceGuard.Lock()
	held := deviceGuard.held
	deviceGuard.Unlock()
	if held {
		t.Error("device guard left held after failed open")
	}
}

func TestReadBeforeOpen(t *testing.T) {
	w := NewWebcam("0")
	if _, err := w.Read(); err != io.EOF {
		t.Errorf("expected io.EOF before open, got %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	w := NewWebcam("0")
	if err := w.Close(); err != nil {
		t.Errorf("closing an unopened source: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
