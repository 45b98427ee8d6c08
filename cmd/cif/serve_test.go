package main

import (
	"slices"
	"testing"
)

func TestServeFlags(t *testing.T) {
	var names []string
	for _, f := range serveCmd().Flags {
		names = append(names, f.Names()...)
	}
	for _, want := range []string{"addr", "read-header-timeout", "max-batch", "max-frames", "max-body-bytes", "store-capacity", "weights"} {
		if !slices.Contains(names, want) {
			t.Errorf("serve is missing --%s (flags: %v)", want, names)
		}
	}
	// The timeout only bounds header reads; a --read-timeout name would promise more.
	if slices.Contains(names, "read-timeout") {
		t.Errorf("serve still exposes --read-timeout")
	}
}
