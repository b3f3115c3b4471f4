package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/facegate/facegate/internal/camera"
	"github.com/facegate/facegate/internal/identity"
	"github.com/facegate/facegate/internal/ledger"
	"github.com/facegate/facegate/internal/vision"
)

// stubSource serves scripted frames, then keeps the feed alive with blank
// frames (or reports EOF when failAfter is set, simulating device loss).
type stubSource struct {
	mu        sync.Mutex
	opens     int
	closes    int
	openErr   error
	frames    []*vision.Frame
	failAfter bool
}

func (s *stubSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.opens++
	return nil
}

func (s *stubSource) Read() (*vision.Frame, error) {
	s.mu.Lock()
	if len(s.frames) > 0 {
		frame := s.frames[0]
		s.frames = s.frames[1:]
		s.mu.Unlock()
		return frame, nil
	}
	fail := s.failAfter
	s.mu.Unlock()

	if fail {
		return nil, io.EOF
	}
	time.Sleep(time.Millisecond)
	return blankFrame(), nil
}

func (s *stubSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *stubSource) openHandles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens - s.closes
}

func blankFrame() *vision.Frame {
	return &vision.Frame{
		Image:     image.NewRGBA(image.Rect(0, 0, 64, 48)),
		Width:     64,
		Height:    48,
		Timestamp: time.Now(),
	}
}

// stubDetector returns scripted observations per frame pointer.
type stubDetector struct {
	mu       sync.Mutex
	scripted map[*vision.Frame][]vision.Observation
}

func (d *stubDetector) Detect(ctx context.Context, frame *vision.Frame) ([]vision.Observation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scripted[frame], nil
}

// stubEmbedder returns scripted embeddings per crop identity, or an
// embedding error for crops it does not know.
type stubEmbedder struct {
	embeddings map[image.Image][]float32
}

func (e *stubEmbedder) Embed(ctx context.Context, crop image.Image) ([]float32, error) {
	if emb, ok := e.embeddings[crop]; ok {
		return emb, nil
	}
	return nil, fmt.Errorf("%w: undetectable face", vision.ErrEmbedding)
}

type fixture struct {
	controller *Controller
	source     *stubSource
	detector   *stubDetector
	embedder   *stubEmbedder
	store      *identity.Store
	ledger     *ledger.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := identity.Open(filepath.Join(t.TempDir(), "db.json"), nil)
	if err != nil {
		t.Fatalf("failed to open identity store: %v", err)
	}
	lg, err := ledger.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}

	source := &stubSource{}
	detector := &stubDetector{scripted: make(map[*vision.Frame][]vision.Observation)}
	embedder := &stubEmbedder{embeddings: make(map[image.Image][]float32)}
	matcher := &identity.Matcher{Threshold: 0.75, TopK: 5}

	f := &fixture{
		controller: New(source, detector, embedder, matcher, store, lg, 0),
		source:     source,
		detector:   detector,
		embedder:   embedder,
		store:      store,
		ledger:     lg,
	}
	t.Cleanup(func() {
		_ = f.controller.Stop()
	})
	return f
}

// faceFrame scripts one frame containing one face whose crop embeds to emb.
func (f *fixture) faceFrame(emb []float32) *vision.Frame {
	frame := blankFrame()
	crop := image.NewRGBA(image.Rect(0, 0, 32, 32))
	f.detector.mu.Lock()
	f.detector.scripted[frame] = []vision.Observation{{
		Box:   image.Rect(10, 10, 42, 42),
		Crop:  crop,
		Score: 0.99,
	}}
	f.detector.mu.Unlock()
	if emb != nil {
		f.embedder.embeddings[crop] = emb
	}
	return frame
}

// eventually polls until the condition holds or the deadline passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartStopStateMachine(t *testing.T) {
	f := newFixture(t)

	status := f.controller.Status()
	if status.CameraActive || status.AttendanceActive {
		t.Error("expected inactive session before start")
	}

	if err := f.controller.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := f.controller.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	if f.source.openHandles() != 1 {
		t.Errorf("expected exactly one camera handle, got %d", f.source.openHandles())
	}

	status = f.controller.Status()
	if !status.CameraActive || !status.AttendanceActive {
		t.Error("expected active session after start")
	}

	if err := f.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if f.source.openHandles() != 0 {
		t.Errorf("camera handle leaked after stop: %d open", f.source.openHandles())
	}
	if err := f.controller.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestStartDeviceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.source.openErr = camera.ErrDeviceUnavailable

	err := f.controller.Start()
	if !errors.Is(err, camera.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if f.controller.Status().CameraActive {
		t.Error("failed start must leave the session inactive")
	}
}

func TestUndetectableFaceLeavesAttendanceEmpty(t *testing.T) {
	f := newFixture(t)

	// One face whose crop the embedder rejects, against an empty store.
	frame := f.faceFrame(nil)
	f.source.frames = []*vision.Frame{frame}

	if err := f.controller.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	eventually(t, time.Second, func() bool {
		_, err := f.controller.LatestFrame()
		return err == nil
	}, "pipeline never published a frame")

	records, err := f.ledger.Today()
	if err != nil {
		t.Fatalf("Today failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty attendance, got %d records", len(records))
	}

	status := f.controller.Status()
	if !status.CameraActive || !status.AttendanceActive {
		t.Error("session must stay active through per-face failures")
	}
}

func TestMatchedFaceMarkedOnce(t *testing.T) {
	f := newFixture(t)

	bobEmb := []float32{1, 0, 0}
	if err := f.store.EnrollEmbeddings("Bob", [][]float32{bobEmb}); err != nil {
		t.Fatalf("enrollment failed: %v", err)
	}

	f.source.frames = []*vision.Frame{f.faceFrame(bobEmb), f.faceFrame(bobEmb)}

	if err := f.controller.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	eventually(t, time.Second, func() bool {
		records, err := f.ledger.Today()
		return err == nil && len(records) == 1
	}, "Bob never got marked present")

	// Give the second matching frame time to be processed, then confirm it
	// produced no second record.
	time.Sleep(50 * time.Millisecond)
	records, err := f.ledger.Today()
	if err != nil {
		t.Fatalf("Today failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(records))
	}
	if records[0].Name != "Bob" {
		t.Errorf("expected Bob, got %s", records[0].Name)
	}
}

func TestStopClearsStreamFrame(t *testing.T) {
	f := newFixture(t)

	if err := f.controller.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	eventually(t, time.Second, func() bool {
		_, err := f.controller.LatestFrame()
		return err == nil
	}, "pipeline never published a frame")

	if err := f.controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if _, err := f.controller.LatestFrame(); !errors.Is(err, ErrNoFrameYet) {
		t.Errorf("expected ErrNoFrameYet after stop, got %v", err)
	}
	if f.source.openHandles() != 0 {
		t.Errorf("camera handle leaked after stop: %d open", f.source.openHandles())
	}
}

func TestDeviceLossForcesIdleAndSetsDegraded(t *testing.T) {
	f := newFixture(t)
	f.source.failAfter = true

	if err := f.controller.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	eventually(t, time.Second, func() bool {
		return !f.controller.Status().CameraActive
	}, "controller never transitioned to idle after device loss")

	status := f.controller.Status()
	if !status.Degraded {
		t.Error("expected degraded flag after device loss")
	}
	if f.source.openHandles() != 0 {
		t.Errorf("camera handle leaked after device loss: %d open", f.source.openHandles())
	}

	// A later start recovers and clears the flag.
	f.source.failAfter = false
	if err := f.controller.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if f.controller.Status().Degraded {
		t.Error("restart must clear the degraded flag")
	}
}

func TestRepeatedStartStopNeverLeaksHandles(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		if err := f.controller.Start(); err != nil {
			t.Fatalf("start %d failed: %v", i, err)
		}
		if err := f.controller.Stop(); err != nil {
			t.Fatalf("stop %d failed: %v", i, err)
		}
	}
	if f.source.openHandles() != 0 {
		t.Errorf("expected no open handles, got %d", f.source.openHandles())
	}
}
