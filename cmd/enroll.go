package cmd

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/vision"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll [image files...]",
	Short: "Enroll a person from photos",
	Long: `Enroll a person into the identity database from one or more photos.
Each photo is run through face detection and the embedding model; photos
without a usable face are skipped with a warning. Enrolling an existing
name adds reference embeddings to that person.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Name of the person to enroll (required)")
	_ = enrollCmd.MarkFlagRequired("name")
}

// cropFromFile decodes one image file and returns the first detected face.
func cropFromFile(ctx context.Context, detector vision.Detector, path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	bounds := img.Bounds()
	frame := &vision.Frame{
		Image:     img,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Timestamp: time.Now(),
	}

	observations, err := detector.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detecting faces in %s: %w", path, err)
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("%s: %w", path, vision.ErrNoFaceDetected)
	}
	return observations[0].Crop, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	name := mustGetString(cmd, "name")

	detector, embedder, err := buildVision(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, embedder)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	bar := progressbar.Default(int64(len(args)), "detecting faces")

	var crops []image.Image
	var warnings []string
	for _, path := range args {
		crop, err := cropFromFile(ctx, detector, path)
		if err != nil {
			warnings = append(warnings, err.Error())
		} else {
			crops = append(crops, crop)
		}
		_ = bar.Add(1)
	}

	for _, warning := range warnings {
		fmt.Printf("Warning: %s\n", warning)
	}
	if len(crops) == 0 {
		return fmt.Errorf("no usable face found in %d image(s)", len(args))
	}

	result, err := store.Enroll(ctx, name, crops)
	if err != nil {
		return fmt.Errorf("enrolling %s: %w", name, err)
	}

	for _, warning := range result.Warnings {
		fmt.Printf("Warning: %s\n", warning)
	}
	fmt.Printf("Enrolled %s: %d embedding(s) added from %d image(s), %d total\n",
		result.Name, result.EmbeddingsAdded, len(args), result.TotalEmbeddings)
	return nil
}
