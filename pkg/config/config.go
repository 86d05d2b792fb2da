// Package config provides configuration loading and management for colmap2nerf.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding an optional config file path
const EnvConfigPath = "COLMAP2NERF_CONFIG"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input file locations
	Input struct {
		// ColmapJSON is the camera/frames file name inside the input directory
		ColmapJSON string `yaml:"colmapJSON"`

		// PointsPath is the sparse point cloud path, relative to the input directory
		// unless absolute. A .txt extension selects the COLMAP text format.
		PointsPath string `yaml:"pointsPath"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// Filename is the descriptor file name used when none is given on the command line
		Filename string `yaml:"filename"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Input.ColmapJSON = "transformations_colmap.json"
	cfg.Input.PointsPath = filepath.Join("..", "..", "colmap", "points3D.bin")

	cfg.Output.Filename = "transforms.json"
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// LoadFromEnv loads the config file named by EnvConfigPath, or the defaults
// when the variable is unset. A named file that does not exist is an error.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file from %s: %w", EnvConfigPath, err)
	}
	return LoadConfig(path)
}

// Validate checks that no file name was blanked out
func (c *Config) Validate() error {
	if c.Input.ColmapJSON == "" {
		return fmt.Errorf("input.colmapJSON must not be empty")
	}
	if c.Input.PointsPath == "" {
		return fmt.Errorf("input.pointsPath must not be empty")
	}
	if c.Output.Filename == "" {
		return fmt.Errorf("output.filename must not be empty")
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
