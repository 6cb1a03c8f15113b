// Package version holds build metadata, set at link time with
// -ldflags "-X github.com/banshee-data/erov.guidance/internal/version.Version=...".
package version

import "fmt"

var (
	// Version is the release of the operator station.
	Version = "dev"
	// GitSHA is the git commit SHA.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for -version output and startup logs.
func String() string {
	return fmt.Sprintf("erov-guidance %s (%s, built %s)", Version, GitSHA, BuildTime)
}
