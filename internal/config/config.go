package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Camera      CameraConfig
	Inference   InferenceConfig
	Recognition RecognitionConfig
	Storage     StorageConfig
}

type CameraConfig struct {
	Device   string // camera device index or path (e.g. "0" or /dev/video0)
	Detector string // "remote" (inference sidecar) or "cascade" (in-process Haar)
	Cascade  string // path to the cascade XML, only used by the cascade detector
}

type InferenceConfig struct {
	URL string // base URL of the detection/embedding model server
	Dim int    // embedding dimension served by the model (defaults to 512)
}

type RecognitionConfig struct {
	Threshold         float64 `yaml:"threshold"`
	TopK              int     `yaml:"top_k"`
	MinDetectionScore float64 `yaml:"min_detection_score"`
	MinFaceSize       int     `yaml:"min_face_size"`
}

type StorageConfig struct {
	DatabasePath  string // serialized identity store container
	AttendanceDir string // one attendance CSV per calendar date
	HNSWIndexPath string // optional on-disk HNSW index; rebuilt from the store when empty
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
// Returns the default value if the env var is unset, empty, or out of range.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var defaults struct {
		Recognition RecognitionConfig `yaml:"recognition"`
	}
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Camera: CameraConfig{
			Device:   envString("FACEGATE_CAMERA_DEVICE", "0"),
			Detector: envString("FACEGATE_DETECTOR", "remote"),
			Cascade:  envString("FACEGATE_CASCADE_FILE", "data/haarcascade_frontalface_default.xml"),
		},
		Inference: InferenceConfig{
			URL: envString("FACEGATE_INFERENCE_URL", "http://localhost:8000"),
			Dim: envInt("FACEGATE_EMBEDDING_DIM", 512),
		},
		Recognition: RecognitionConfig{
			Threshold:         envFloat("FACEGATE_MATCH_THRESHOLD", defaults.Recognition.Threshold),
			TopK:              envInt("FACEGATE_MATCH_TOP_K", defaults.Recognition.TopK),
			MinDetectionScore: envFloat("FACEGATE_MIN_DETECTION_SCORE", defaults.Recognition.MinDetectionScore),
			MinFaceSize:       envInt("FACEGATE_MIN_FACE_SIZE", defaults.Recognition.MinFaceSize),
		},
		Storage: StorageConfig{
			DatabasePath:  envString("FACEGATE_DATABASE_PATH", "face_database.json"),
			AttendanceDir: envString("FACEGATE_ATTENDANCE_DIR", "."),
			HNSWIndexPath: os.Getenv("FACEGATE_HNSW_INDEX_PATH"),
		},
	}
}
