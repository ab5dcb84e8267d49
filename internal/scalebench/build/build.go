// Package build holds version information set at link time, e.g.
// -ldflags "-X github.com/G-Research/scalebench/internal/scalebench/build.ReleaseVersion=v0.3.0".
package build

import "runtime"

var (
	ReleaseVersion = "UNKNOWN"
	GitCommit      = "UNKNOWN"
	BuildTime      = "UNKNOWN"
	GoVersion      = runtime.Version()
)
