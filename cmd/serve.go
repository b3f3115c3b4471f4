package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/facegate/facegate/internal/camera"
	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/identity"
	"github.com/facegate/facegate/internal/pipeline"
	"github.com/facegate/facegate/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance web server",
	Long: `Start the Facegate web server.
The server exposes session control (start/stop), enrollment, attendance
queries and export, and a live MJPEG stream of the annotated camera
feed. The camera stays idle until a start request arrives.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	detector, embedder, err := buildVision(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, embedder)
	if err != nil {
		return err
	}
	if err := store.LoadIndex(cfg.Storage.HNSWIndexPath); err != nil {
		fmt.Printf("Warning: failed to load shortlist index: %v\n", err)
	}
	fmt.Printf("Identity database ready with %d enrolled people\n", store.Count())

	lg, err := openLedger(cfg)
	if err != nil {
		return err
	}

	source := camera.NewWebcam(cfg.Camera.Device)
	matcher := &identity.Matcher{
		Threshold: cfg.Recognition.Threshold,
		TopK:      cfg.Recognition.TopK,
	}
	controller := pipeline.New(source, detector, embedder, matcher, store, lg, cfg.Recognition.TopK)

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(port, host, controller, store, lg, detector)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		if err := controller.Stop(); err != nil && err != pipeline.ErrNotRunning {
			fmt.Printf("Error stopping attendance session: %v\n", err)
		}
		if err := store.SaveIndex(); err != nil {
			fmt.Printf("Warning: failed to save shortlist index: %v\n", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Facegate on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
