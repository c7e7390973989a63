// Package version contains build information for pylambda, set with -ldflags.
package version

import "fmt"

var (
	// Version is the current version of pylambda.
	Version = "dev"
	// BuildTime is the time when the binary was built.
	BuildTime = "unknown"
	// GitCommit is the git commit hash of the build.
	GitCommit = "unknown"
)

// String returns the version with its commit and build time
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
