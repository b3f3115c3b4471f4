package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestFrameCellEmpty(t *testing.T) {
	var cell FrameCell
	if _, err := cell.Latest(); !errors.Is(err, ErrNoFrameYet) {
		t.Errorf("expected ErrNoFrameYet, got %v", err)
	}
}

func TestFrameCellLastWriteWins(t *testing.T) {
	var cell FrameCell
	now := time.Now()

	cell.Publish([]byte("first"), now)
	cell.Publish([]byte("second"), now.Add(time.Second))

	frame, err := cell.Latest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(frame.JPEG) != "second" {
		t.Errorf("expected latest frame, got %q", frame.JPEG)
	}
}

func TestFrameCellClear(t *testing.T) {
	var cell FrameCell
	cell.Publish([]byte("frame"), time.Now())
	cell.Clear()

	if _, err := cell.Latest(); !errors.Is(err, ErrNoFrameYet) {
		t.Errorf("expected ErrNoFrameYet after clear, got %v", err)
	}
}

func TestFrameCellConcurrentReadersAndWriter(t *testing.T) {
	var cell FrameCell
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			cell.Publish([]byte{byte(i)}, time.Now())
		}
		close(done)
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				frame, err := cell.Latest()
				if err == nil && len(frame.JPEG) != 1 {
					t.Error("reader observed a partial frame")
					return
				}
			}
		}()
	}
	wg.Wait()
}
