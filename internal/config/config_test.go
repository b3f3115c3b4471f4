package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Recognition.Threshold != 0.75 {
		t.Errorf("expected default threshold 0.75, got %v", cfg.Recognition.Threshold)
	}
	if cfg.Recognition.TopK != 5 {
		t.Errorf("expected default top-k 5, got %d", cfg.Recognition.TopK)
	}
	if cfg.Recognition.MinDetectionScore != 0.9 {
		t.Errorf("expected default min detection score 0.9, got %v", cfg.Recognition.MinDetectionScore)
	}
	if cfg.Recognition.MinFaceSize != 30 {
		t.Errorf("expected default min face size 30, got %d", cfg.Recognition.MinFaceSize)
	}
	if cfg.Inference.Dim != 512 {
		t.Errorf("expected default embedding dim 512, got %d", cfg.Inference.Dim)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FACEGATE_MATCH_THRESHOLD", "0.85")
	t.Setenv("FACEGATE_MATCH_TOP_K", "3")
	t.Setenv("FACEGATE_CAMERA_DEVICE", "/dev/video2")
	t.Setenv("FACEGATE_DETECTOR", "cascade")

	cfg := Load()

	if cfg.Recognition.Threshold != 0.85 {
		t.Errorf("expected threshold 0.85, got %v", cfg.Recognition.Threshold)
	}
	if cfg.Recognition.TopK != 3 {
		t.Errorf("expected top-k 3, got %d", cfg.Recognition.TopK)
	}
	if cfg.Camera.Device != "/dev/video2" {
		t.Errorf("expected camera device /dev/video2, got %s", cfg.Camera.Device)
	}
	if cfg.Camera.Detector != "cascade" {
		t.Errorf("expected cascade detector, got %s", cfg.Camera.Detector)
	}
}

func TestLoadInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("FACEGATE_MATCH_THRESHOLD", "two")
	t.Setenv("FACEGATE_MATCH_TOP_K", "-4")

	cfg := Load()

	if cfg.Recognition.Threshold != 0.75 {
		t.Errorf("invalid threshold should fall back to 0.75, got %v", cfg.Recognition.Threshold)
	}
	if cfg.Recognition.TopK != 5 {
		t.Errorf("invalid top-k should fall back to 5, got %d", cfg.Recognition.TopK)
	}
}
