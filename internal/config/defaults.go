package config

import (
	"os"
	"path/filepath"
)

// DefaultConfig returns the baseline configuration used when no file exists.
func DefaultConfig() Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return Config{
		DefaultBackend:         "veo3",
		Workers:                2,
		QueueSize:              64,
		Workspace:              filepath.Join(homeDir, ".ttv-pipeline", "workspace"),
		DefaultResolution:      "720p",
		SegmentDurationSeconds: 5,
		PollIntervalSeconds:    15,
		TimeoutSeconds:         600,
		MaxRetries:             3,
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Wan: WanConfig{
			PythonPath: "python3",
			Size:       "832*480",
		},
		Storage: StorageConfig{
			Kind: "local",
			Root: filepath.Join(homeDir, ".ttv-pipeline", "artifacts"),
		},
		Redis: RedisConfig{
			Prefix: "ttv",
		},
	}
}
