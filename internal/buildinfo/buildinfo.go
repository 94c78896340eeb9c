// Package buildinfo carries build-time version metadata injected via
// -ldflags, surfaced by `versionctl --version` and in the Job Handler's
// startup log line.
package buildinfo

import (
	"fmt"
	"runtime"
)

// Build information set by the compiler flags.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// Full returns the full version string including git commit and build time.
func Full() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, %s)", Version, GitCommit, BuildTime, GoVersion)
}

// UserAgent returns a string suitable for the Fetcher/Uploader's HTTP
// User-Agent header.
func UserAgent() string {
	return fmt.Sprintf("engine-versionctl/%s", Version)
}
