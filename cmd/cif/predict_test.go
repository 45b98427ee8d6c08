package main

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/cif/internal/safetensors"
)

func logit(a float64) float32 {
	return float32(math.Log(a / (1 - a)))
}

// writeFixtures writes a D=2 conv head with a single tap whose score is the
// first hidden component, and a one-item features file.
func writeFixtures(t *testing.T, dir string) (weights, features string) {
	t.Helper()
	weights = filepath.Join(dir, "weights.safetensors")
	err := safetensors.WriteFile(weights, []safetensors.Tensor{
		{Name: "predictor.cif_conv1d.weight", DType: "F32", Shape: []int{2, 2, 1}, Data: []float32{1, 0, 0, 1}},
		{Name: "predictor.cif_conv1d.bias", DType: "F32", Shape: []int{2}, Data: []float32{0, 0}},
		{Name: "predictor.cif_output.weight", DType: "F32", Shape: []int{1, 2}, Data: []float32{1, 0}},
		{Name: "predictor.cif_output.bias", DType: "F32", Shape: []int{1}, Data: []float32{0}},
	}, nil)
	if err != nil {
		t.Fatalf("write weights: %v", err)
	}

	features = filepath.Join(dir, "features.safetensors")
	hidden := []float32{
		logit(0.6), 1,
		logit(0.6), 2,
		logit(0.9), 3,
		logit(0.9), 4,
	}
	err = safetensors.WriteFile(features, []safetensors.Tensor{
		{Name: "hidden", DType: "F32", Shape: []int{1, 4, 2}, Data: hidden},
		{Name: "lengths", DType: "I64", Shape: []int{1}, Ints: []int64{3}},
	}, nil)
	if err != nil {
		t.Fatalf("write features: %v", err)
	}
	return weights, features
}

func runApp(t *testing.T, args ...string) error {
	t.Helper()
	return newApp().Run(context.Background(), append([]string{"cif"}, args...))
}

func readInts(t *testing.T, path, name string) []int {
	t.Helper()
	st, err := safetensors.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer func() { _ = st.Close() }()
	v, _, err := st.ReadTensorInt(name)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return v
}

func TestPredictCommandWritesSafetensors(t *testing.T) {
	dir := t.TempDir()
	weights, features := writeFixtures(t, dir)
	out := filepath.Join(dir, "out.safetensors")

	err := runApp(t,
		"--config", filepath.Join(dir, "missing.yaml"),
		"--log-format", "text",
		"predict",
		"--weights", weights,
		"--weights-prefix", "predictor.",
		"--l-order", "0",
		"--r-order", "0",
		"--features", features,
		"--out", out,
	)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if diff := cmp.Diff([]int{2}, readInts(t, out, "lengths")); diff != "" {
		t.Fatalf("lengths mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2}, readInts(t, out, "token_count")); diff != "" {
		t.Fatalf("token count mismatch (-want +got):\n%s", diff)
	}

	st, err := safetensors.Open(out)
	if err != nil {
		t.Fatalf("open out: %v", err)
	}
	defer func() { _ = st.Close() }()
	info, ok := st.Tensor("embeddings")
	if !ok {
		t.Fatalf("embeddings tensor missing")
	}
	if diff := cmp.Diff([]int{1, 2, 2}, info.Shape); diff != "" {
		t.Fatalf("embeddings shape mismatch (-want +got):\n%s", diff)
	}
	if st.Metadata["tail"] != "false" {
		t.Fatalf("metadata tail = %q", st.Metadata["tail"])
	}
}

func TestPredictCommandUsesConfigFile(t *testing.T) {
	dir := t.TempDir()
	weights, features := writeFixtures(t, dir)
	out := filepath.Join(dir, "out.safetensors")
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "weights: " + weights + "\nweights_prefix: predictor.\nl_order: 0\nr_order: 0\ntail_threshold: 0.45\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	err := runApp(t,
		"--config", cfgPath,
		"--log-format", "text",
		"predict",
		"--features", features,
		"--tail",
		"--dtype", "bf16",
		"--out", out,
	)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	st, err := safetensors.Open(out)
	if err != nil {
		t.Fatalf("open out: %v", err)
	}
	defer func() { _ = st.Close() }()
	alphas, ok := st.Tensor("alphas")
	if !ok || alphas.DType != "BF16" {
		t.Fatalf("alphas tensor = %+v, present=%v", alphas, ok)
	}
	if diff := cmp.Diff([]int{1, 5}, alphas.Shape); diff != "" {
		t.Fatalf("alphas shape mismatch (-want +got):\n%s", diff)
	}
}

func TestPredictCommandRequiresWeights(t *testing.T) {
	dir := t.TempDir()
	_, features := writeFixtures(t, dir)
	err := runApp(t,
		"--config", filepath.Join(dir, "missing.yaml"),
		"predict",
		"--features", features,
	)
	if err == nil {
		t.Fatalf("expected error without --weights")
	}
}

func TestLoadFeaturesFallsBackToMask(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.safetensors")
	err := safetensors.WriteFile(path, []safetensors.Tensor{
		{Name: "hidden", DType: "F32", Shape: []int{2, 3, 1}, Data: []float32{1, 2, 3, 4, 5, 6}},
		{Name: "mask", DType: "F32", Shape: []int{2, 1, 3}, Data: []float32{1, 1, 0, 1, 0, 0}},
	}, nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	hidden, mask, err := loadFeatures(path, "hidden", "lengths", "mask")
	if err != nil {
		t.Fatalf("loadFeatures: %v", err)
	}
	if hidden.B != 2 || hidden.T != 3 || hidden.D != 1 {
		t.Fatalf("hidden shape = %dx%dx%d", hidden.B, hidden.T, hidden.D)
	}
	if diff := cmp.Diff([][]float32{{1, 1, 0}, {1, 0, 0}}, mask.Rows()); diff != "" {
		t.Fatalf("mask mismatch (-want +got):\n%s", diff)
	}

	noMask := filepath.Join(dir, "bare.safetensors")
	err = safetensors.WriteFile(noMask, []safetensors.Tensor{
		{Name: "hidden", DType: "F32", Shape: []int{1, 2, 1}, Data: []float32{1, 2}},
	}, nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	_, mask, err = loadFeatures(noMask, "hidden", "lengths", "mask")
	if err != nil {
		t.Fatalf("loadFeatures: %v", err)
	}
	if diff := cmp.Diff([][]float32{{1, 1}}, mask.Rows()); diff != "" {
		t.Fatalf("default mask mismatch (-want +got):\n%s", diff)
	}
}
