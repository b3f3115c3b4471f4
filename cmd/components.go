package cmd

import (
	"fmt"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/identity"
	"github.com/facegate/facegate/internal/ledger"
	"github.com/facegate/facegate/internal/vision"
)

// buildVision constructs the detector and embedder from configuration.
// The embedder always talks to the inference sidecar; the detector can
// run in-process (Haar cascade) or on the sidecar as well.
func buildVision(cfg *config.Config) (vision.Detector, vision.Embedder, error) {
	client := vision.NewInferenceClient(cfg.Inference.URL)
	opts := vision.DetectorOptions{
		MinScore:    cfg.Recognition.MinDetectionScore,
		MinFaceSize: cfg.Recognition.MinFaceSize,
	}

	embedder := vision.NewRemoteEmbedder(client, cfg.Inference.Dim)

	switch cfg.Camera.Detector {
	case "cascade":
		detector, err := vision.NewCascadeDetector(cfg.Camera.Cascade, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("loading cascade detector: %w", err)
		}
		return detector, embedder, nil
	case "remote", "":
		return vision.NewRemoteDetector(client, opts), embedder, nil
	default:
		return nil, nil, fmt.Errorf("unknown detector %q (want remote or cascade)", cfg.Camera.Detector)
	}
}

// openStore opens the identity database, wiring the embedder used for
// enrollment.
func openStore(cfg *config.Config, embedder vision.Embedder) (*identity.Store, error) {
	store, err := identity.Open(cfg.Storage.DatabasePath, embedder)
	if err != nil {
		return nil, fmt.Errorf("opening identity database %s: %w", cfg.Storage.DatabasePath, err)
	}
	return store, nil
}

// openLedger opens the attendance ledger directory.
func openLedger(cfg *config.Config) (*ledger.Ledger, error) {
	lg, err := ledger.Open(cfg.Storage.AttendanceDir)
	if err != nil {
		return nil, fmt.Errorf("opening attendance directory %s: %w", cfg.Storage.AttendanceDir, err)
	}
	return lg, nil
}
