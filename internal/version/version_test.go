package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestResolvePrefersLdflags(t *testing.T) {
	oldVersion, oldCommit, oldBuild := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = oldVersion, oldCommit, oldBuild })

	Version, Commit, BuildTime = "v1.2.3", "0123456789abcdef", "2026-01-02T03:04:05Z"
	info := Resolve()
	if info.Version != "v1.2.3" || info.Commit != "0123456789abcdef" || info.BuildTime != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Fatalf("go version = %q", info.GoVersion)
	}
	if got := String(); !strings.HasPrefix(got, "v1.2.3 (0123456789ab") {
		t.Fatalf("String() = %q", got)
	}
}

func TestShortCommit(t *testing.T) {
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("shortCommit(abc) = %q", got)
	}
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("shortCommit = %q", got)
	}
}
