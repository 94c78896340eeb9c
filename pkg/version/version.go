// Package version re-exports internal/buildinfo for external embedding
// (e.g. by an integration test or a downstream tool importing this module).
package version

import "github.com/gen4sp/runpodComfyUICtrlVersion/internal/buildinfo"

// FullVersion returns the full version string including git commit and
// build time.
func FullVersion() string { return buildinfo.Full() }

// UserAgent returns the HTTP User-Agent string used by the Fetcher and
// Uploader.
func UserAgent() string { return buildinfo.UserAgent() }
