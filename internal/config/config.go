package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"clip-studio/internal/models"
)

// AppConfig holds application configuration
type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`

	Storage struct {
		TempDir string `yaml:"temp_dir"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"storage"`

	Capture struct {
		Provider      string               `yaml:"provider"` // "ffmpeg" or "simulated"
		DefaultFacing string               `yaml:"default_facing"`
		FrontCamera   string               `yaml:"front_camera"`
		BackCamera    string               `yaml:"back_camera"`
		Microphone    string               `yaml:"microphone"`
		RecordLimits  []models.RecordLimit `yaml:"record_limits"`
	} `yaml:"capture"`

	Media struct {
		FFmpegPath  string `yaml:"ffmpeg_path"`
		FFprobePath string `yaml:"ffprobe_path"`
	} `yaml:"media"`

	Trim struct {
		MinSliceWidth   int `yaml:"min_slice_width"`
		ThumbnailHeight int `yaml:"thumbnail_height"`
	} `yaml:"trim"`

	Upload struct {
		Region      string `yaml:"region"`
		Bucket      string `yaml:"bucket"`
		Endpoint    string `yaml:"endpoint"` // S3-compatible store; empty for AWS
		KeyPrefix   string `yaml:"key_prefix"`
		PartSizeMB  int64  `yaml:"part_size_mb"`
		Concurrency int    `yaml:"concurrency"`
		MaxAttempts int    `yaml:"max_attempts"`
	} `yaml:"upload"`

	Cleanup struct {
		Interval time.Duration `yaml:"interval"`
		MaxAge   time.Duration `yaml:"max_age"`
	} `yaml:"cleanup"`
}

// DefaultConfig returns default application configuration
func DefaultConfig() *AppConfig {
	cfg := &AppConfig{
		Env:      "development",
		LogLevel: "info",
	}

	cfg.Storage.TempDir = filepath.Join(os.TempDir(), "clip-studio")
	if home, err := os.UserHomeDir(); err == nil {
		cfg.Storage.DataDir = filepath.Join(home, ".clip-studio")
	} else {
		cfg.Storage.DataDir = ".clip-studio"
	}

	cfg.Capture.Provider = "ffmpeg"
	cfg.Capture.DefaultFacing = string(models.FacingFront)
	cfg.Capture.FrontCamera = "/dev/video0"
	cfg.Capture.BackCamera = "/dev/video1"
	cfg.Capture.Microphone = "default"
	cfg.Capture.RecordLimits = models.DefaultRecordLimits()

	cfg.Media.FFmpegPath = "ffmpeg"
	cfg.Media.FFprobePath = "ffprobe"

	cfg.Trim.MinSliceWidth = 40
	cfg.Trim.ThumbnailHeight = 64

	cfg.Upload.Region = "us-west-2"
	cfg.Upload.KeyPrefix = "drafts"
	cfg.Upload.PartSizeMB = 10
	cfg.Upload.Concurrency = 3
	cfg.Upload.MaxAttempts = 3

	cfg.Cleanup.Interval = 30 * time.Minute
	cfg.Cleanup.MaxAge = 24 * time.Hour

	return cfg
}

// Load reads the YAML file at path over the defaults and applies environment overrides.
// A missing file is not an error; the defaults are used.
func Load(path string) (*AppConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file outside production; production injects env vars directly
func LoadDotEnv(files ...string) {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	// a missing .env is fine
	_ = godotenv.Load(files...)
}

// ApplyEnv overrides fields from CLIP_* and AWS_* environment variables
func (c *AppConfig) ApplyEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("APP_ENV", &c.Env)
	setString("CLIP_LOG_LEVEL", &c.LogLevel)
	setString("CLIP_TEMP_DIR", &c.Storage.TempDir)
	setString("CLIP_DATA_DIR", &c.Storage.DataDir)
	setString("CLIP_CAPTURE_PROVIDER", &c.Capture.Provider)
	setString("CLIP_FRONT_CAMERA", &c.Capture.FrontCamera)
	setString("CLIP_BACK_CAMERA", &c.Capture.BackCamera)
	setString("CLIP_MICROPHONE", &c.Capture.Microphone)
	setString("CLIP_FFMPEG", &c.Media.FFmpegPath)
	setString("CLIP_FFPROBE", &c.Media.FFprobePath)
	setString("AWS_REGION", &c.Upload.Region)
	setString("CLIP_UPLOAD_BUCKET", &c.Upload.Bucket)
	setString("CLIP_S3_ENDPOINT", &c.Upload.Endpoint)

	if v := os.Getenv("CLIP_UPLOAD_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Upload.Concurrency = n
		}
	}
	if v := os.Getenv("CLIP_CLEANUP_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cleanup.MaxAge = d
		}
	}
}

// IsProduction reports whether the app runs with production settings
func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks values that would otherwise fail deep inside a component
func (c *AppConfig) Validate() error {
	if len(c.Capture.RecordLimits) == 0 {
		return &models.ValidationError{Field: "capture.record_limits", Message: "at least one record limit is required"}
	}
	for _, limit := range c.Capture.RecordLimits {
		if limit.Name == "" || limit.Max <= 0 {
			return &models.ValidationError{Field: "capture.record_limits", Message: fmt.Sprintf("invalid record limit %q", limit.Name)}
		}
	}
	if !models.DeviceFacing(c.Capture.DefaultFacing).Valid() {
		return &models.ValidationError{Field: "capture.default_facing", Message: "default facing must be front or back"}
	}
	switch c.Capture.Provider {
	case "ffmpeg", "simulated":
	default:
		return &models.ValidationError{Field: "capture.provider", Message: "capture provider must be ffmpeg or simulated"}
	}
	if c.Trim.MinSliceWidth <= 0 {
		return &models.ValidationError{Field: "trim.min_slice_width", Message: "minimum slice width must be positive"}
	}
	if c.Upload.Concurrency <= 0 || c.Upload.PartSizeMB < 5 {
		return &models.ValidationError{Field: "upload", Message: "upload concurrency must be positive and part size at least 5MB"}
	}
	return nil
}
