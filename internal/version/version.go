// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/exchange-ws/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/exchange-ws/internal/version.Commit=$(git rev-parse --short HEAD)" \
//	         ./cmd/streamer
package version

import (
	"runtime"
	"runtime/debug"
)

// Build-time variables (set via ldflags)
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// Commit is the git commit hash (short form). Falls back to the VCS
	// revision embedded by the Go toolchain.
	Commit = "unknown"
)

// Revision returns Commit, or the embedded vcs.revision when Commit was not set.
func Revision() string {
	if Commit != "unknown" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return Commit
}

// String returns a formatted version string.
func String() string {
	return Version + " (" + Revision() + ") " + runtime.Version()
}

// UserAgent is sent on the WebSocket handshake.
func UserAgent() string {
	return "exchange-ws/" + Version
}
