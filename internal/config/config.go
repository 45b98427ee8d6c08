// Package config reads the cif configuration file
// (~/.config/cif/config.yaml).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML file. Scalar fields are pointers so we can
// distinguish "not set" from zero values.
type Config struct {
	// Predictor constants
	Threshold      *float64 `yaml:"threshold"`
	SmoothFactor   *float64 `yaml:"smooth_factor"`
	NoiseThreshold *float64 `yaml:"noise_threshold"`
	TailThreshold  *float64 `yaml:"tail_threshold"`
	Workers        *int     `yaml:"workers"`

	// Weight head
	WeightsPath   string `yaml:"weights"`
	WeightsPrefix string `yaml:"weights_prefix"`
	LOrder        *int   `yaml:"l_order"`
	ROrder        *int   `yaml:"r_order"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

// Defaults used when neither the file nor a flag sets a value.
const (
	DefaultThreshold      = 1.0
	DefaultSmoothFactor   = 1.0
	DefaultNoiseThreshold = 0.0
	DefaultTailThreshold  = 0.45
	DefaultLOrder         = 1
	DefaultROrder         = 1
	DefaultServerAddress  = "127.0.0.1:8080"
)

// Path returns the default config file location, or "" when the user config
// directory cannot be determined.
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cif", "config.yaml")
}

// Load reads the config file at path. A missing file yields a zero Config;
// a malformed one is an error.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
