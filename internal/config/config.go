// Package config defines the service configuration, its YAML persistence,
// and environment variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// OpenAIConfig configures the prompt enhancement and keyframe collaborators.
type OpenAIConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	ImageModel string `yaml:"image_model"`
}

// VeoConfig configures the Google Veo backend.
type VeoConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// RunwayConfig configures the Runway ML backend.
type RunwayConfig struct {
	APISecret string `yaml:"api_secret"`
	Model     string `yaml:"model"`
}

// WanConfig configures the local Wan 2.1 backend.
type WanConfig struct {
	PythonPath string `yaml:"python_path"`
	ScriptPath string `yaml:"script_path"`
	ModelDir   string `yaml:"model_dir"`
	Size       string `yaml:"size"`
}

// StorageConfig selects and configures the artifact store.
type StorageConfig struct {
	Kind   string `yaml:"kind"` // "local" or "s3"
	Root   string `yaml:"root"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// RedisConfig configures the optional shared job store. Empty Addr keeps
// jobs in process memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Config is the full service configuration.
type Config struct {
	DefaultBackend         string  `yaml:"default_backend"`
	Workers                int     `yaml:"workers"`
	QueueSize              int     `yaml:"queue_size"`
	Workspace              string  `yaml:"workspace"`
	DefaultResolution      string  `yaml:"default_resolution"`
	SegmentDurationSeconds float64 `yaml:"segment_duration_seconds"`
	PollIntervalSeconds    int     `yaml:"poll_interval_seconds"`
	TimeoutSeconds         int     `yaml:"timeout_seconds"`
	MaxRetries             int     `yaml:"max_retries"`

	OpenAI  OpenAIConfig  `yaml:"openai"`
	Veo     VeoConfig     `yaml:"veo"`
	Runway  RunwayConfig  `yaml:"runway"`
	Wan     WanConfig     `yaml:"wan"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
}

// Validate checks internally inconsistent settings.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive, got %d", c.QueueSize)
	}
	if c.SegmentDurationSeconds <= 0 {
		return fmt.Errorf("segment_duration_seconds must be positive, got %g", c.SegmentDurationSeconds)
	}
	switch c.Storage.Kind {
	case "local", "":
	case "s3":
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			return fmt.Errorf("storage.bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown storage kind %q (expected local or s3)", c.Storage.Kind)
	}
	return nil
}

// ApplyEnv overlays secrets and connection settings from the environment.
// Environment values win over file values so deployments never need keys
// on disk.
func (c *Config) ApplyEnv() {
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.Veo.APIKey, "GOOGLE_API_KEY")
	setString(&c.Runway.APISecret, "RUNWAYML_API_SECRET")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Storage.Bucket, "S3_BUCKET")
	setString(&c.Workspace, "TTV_WORKSPACE")

	if raw, ok := os.LookupEnv("TTV_WORKERS"); ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			c.Workers = n
		}
	}
}

// setString overwrites dst when the variable is set and non-empty.
func setString(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		*dst = value
	}
}
