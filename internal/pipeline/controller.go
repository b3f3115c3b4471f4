// Package pipeline drives the recognition loop: read a frame, detect faces,
// embed and match each one, record attendance, and publish the annotated
// frame for streaming consumers. It owns the Idle/Running session state
// machine and is the only component that touches the camera.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/facegate/facegate/internal/camera"
	"github.com/facegate/facegate/internal/identity"
	"github.com/facegate/facegate/internal/ledger"
	"github.com/facegate/facegate/internal/vision"
)

var (
	// ErrAlreadyRunning reports start() while the pipeline is Running.
	ErrAlreadyRunning = errors.New("attendance session already running")
	// ErrNotRunning reports stop() while the pipeline is Idle.
	ErrNotRunning = errors.New("attendance session not running")
)

const unknownLabel = "Unknown"

// Status is the externally visible session state. camera_active and
// attendance_active transition together; no partial state is observable.
type Status struct {
	CameraActive     bool `json:"camera_active"`
	AttendanceActive bool `json:"attendance_active"`
	PeopleInDatabase int  `json:"people_in_database"`
	Degraded         bool `json:"degraded"`
}

// Controller owns the run-state machine and the capture loop.
type Controller struct {
	source   camera.Source
	detector vision.Detector
	embedder vision.Embedder
	matcher  *identity.Matcher
	store    *identity.Store
	ledger   *ledger.Ledger
	cell     FrameCell

	// shortlistK is the per-person reference depth of the ANN candidate
	// search, normally the matcher's top-K; 0 disables the shortlist and
	// matches against the full snapshot.
	shortlistK int

	mu       sync.Mutex
	running  bool
	degraded bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New wires the pipeline components into a controller. The controller
// starts Idle; nothing touches the camera until Start.
func New(source camera.Source, detector vision.Detector, embedder vision.Embedder,
	matcher *identity.Matcher, store *identity.Store, lg *ledger.Ledger, shortlistK int) *Controller {
	return &Controller{
		source:     source,
		detector:   detector,
		embedder:   embedder,
		matcher:    matcher,
		store:      store,
		ledger:     lg,
		shortlistK: shortlistK,
	}
}

// Start transitions Idle -> Running: acquires the camera and launches the
// capture loop. Fails with ErrAlreadyRunning while Running (a second camera
// handle is never opened) and with the camera's error when the device
// cannot be acquired.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrAlreadyRunning
	}

	if err := c.source.Open(); err != nil {
		return fmt.Errorf("starting attendance session: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	c.degraded = false

	go c.run(ctx, c.done)
	log.Printf("attendance session started")
	return nil
}

// Stop transitions Running -> Idle: terminates the capture loop within one
// frame-processing cycle and deterministically releases the camera. From
// Idle it reports ErrNotRunning and changes nothing.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.running = false
		if err := c.source.Close(); err != nil {
			return fmt.Errorf("releasing camera: %w", err)
		}
	}
	c.cell.Clear()
	log.Printf("attendance session stopped")
	return nil
}

// Status reports the best-known session state. Always succeeds, even while
// the capture loop is degraded.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		CameraActive:     c.running,
		AttendanceActive: c.running,
		PeopleInDatabase: c.store.Count(),
		Degraded:         c.degraded,
	}
}

// LatestFrame returns the most recent annotated frame for streaming.
func (c *Controller) LatestFrame() (*PublishedFrame, error) {
	return c.cell.Latest()
}

// run is the capture loop. Per-tick failures are logged and skipped; only
// cancellation or unrecoverable device loss ends the loop.
func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := c.source.Read()
		if err != nil {
			if errors.Is(err, vision.ErrFrameDecode) {
				log.Printf("dropping frame: %v", err)
				continue
			}
			// End of stream or device failure: force Idle and surface the
			// degraded flag to the next status query.
			if ctx.Err() == nil {
				log.Printf("camera lost, stopping session: %v", err)
				c.forceIdle()
			}
			return
		}

		c.tick(ctx, frame)
	}
}

// forceIdle transitions to Idle after unrecoverable device loss. Runs on
// the capture goroutine, never concurrently with itself.
func (c *Controller) forceIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	c.degraded = true
	c.cancel()
	if err := c.source.Close(); err != nil {
		log.Printf("releasing lost camera: %v", err)
	}
	c.cell.Clear()
}

// faceResult is the outcome of embedding and matching one observation.
type faceResult struct {
	label   vision.Label
	matched bool
}

// tick processes one frame end to end.
func (c *Controller) tick(ctx context.Context, frame *vision.Frame) {
	observations, err := c.detector.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("dropping tick: %v", err)
		}
		return
	}

	// Faces of one frame are independent; embed and match them in
	// parallel. Ledger dedup makes double-matches of the same person
	// within a frame harmless.
	results := make([]faceResult, len(observations))
	var wg sync.WaitGroup
	for i, obs := range observations {
		wg.Add(1)
		go func(i int, obs vision.Observation) {
			defer wg.Done()
			results[i] = c.resolveFace(ctx, obs)
		}(i, obs)
	}
	wg.Wait()

	labels := make([]vision.Label, 0, len(results))
	for _, res := range results {
		labels = append(labels, res.label)
		if !res.matched {
			continue
		}
		outcome, err := c.ledger.MarkPresent(res.label.Name, frame.Timestamp)
		if err != nil {
			log.Printf("recording attendance for %s: %v", res.label.Name, err)
			continue
		}
		if outcome == ledger.Recorded {
			log.Printf("%s marked present at %s", res.label.Name, frame.Timestamp.Format("15:04:05"))
		}
	}

	c.publish(frame, labels)
}

// resolveFace embeds one observation and matches it against a store
// snapshot. Failures resolve to an unknown label; they never stop the tick.
func (c *Controller) resolveFace(ctx context.Context, obs vision.Observation) faceResult {
	result := faceResult{label: vision.Label{Box: obs.Box, Name: unknownLabel}}

	embedding, err := c.embedder.Embed(ctx, obs.Crop)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("skipping face: %v", err)
		}
		return result
	}

	snap := c.store.Shortlist(embedding, c.shortlistK)
	match, ok := c.matcher.Match(embedding, snap)
	if !ok {
		return result
	}

	result.label.Name = match.Name
	result.label.Known = true
	result.matched = true
	return result
}

// publish annotates the frame and overwrites the streaming cell.
func (c *Controller) publish(frame *vision.Frame, labels []vision.Label) {
	annotated := vision.Annotate(frame, labels)
	jpegData, err := vision.EncodeJPEG(annotated)
	if err != nil {
		log.Printf("encoding annotated frame: %v", err)
		return
	}
	c.cell.Publish(jpegData, frame.Timestamp)
}
