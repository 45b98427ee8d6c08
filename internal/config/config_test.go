package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
threshold: 1.0
smooth_factor: 1.2
noise_threshold: 0.0
tail_threshold: 0.45
workers: 4
weights: /models/predictor.safetensors
weights_prefix: predictor.
l_order: 1
r_order: 1
log_level: debug
server_address: 0.0.0.0:9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SmoothFactor == nil || *cfg.SmoothFactor != 1.2 {
		t.Fatalf("smooth_factor not parsed: %v", cfg.SmoothFactor)
	}
	if cfg.NoiseThreshold == nil || *cfg.NoiseThreshold != 0 {
		t.Fatal("explicit zero noise_threshold must be distinguishable from unset")
	}
	if cfg.Workers == nil || *cfg.Workers != 4 {
		t.Fatalf("workers not parsed: %v", cfg.Workers)
	}
	if cfg.WeightsPrefix != "predictor." || cfg.ServerAddress != "0.0.0.0:9000" || cfg.LogLevel != "debug" {
		t.Fatalf("string fields not parsed: %+v", cfg)
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Threshold != nil || cfg.WeightsPath != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}

	cfg, err = Load("")
	if err != nil || cfg.Threshold != nil {
		t.Fatalf("Load(\"\") = %+v, %v", cfg, err)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "threshold: [not, a, number]\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
