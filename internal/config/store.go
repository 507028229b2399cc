package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store defines persistence operations for service configuration.
type Store interface {
	Load() (Config, error)
	Save(Config) error
}

// YAMLStore persists configuration in a single YAML file on disk.
type YAMLStore struct {
	path string
}

// NewYAMLStore creates a YAML-backed configuration store.
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

// Load reads configuration from disk or returns defaults when missing.
// File values overlay defaults, so partial files stay valid.
func (s *YAMLStore) Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes configuration as YAML and creates parent directories.
func (s *YAMLStore) Save(cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}
