// Package build carries version metadata stamped in at link time:
//
//	go build -ldflags "-X github.com/shaharia-lab/devgate/internal/build.Version=v1.2.0 ..."
package build

import "fmt"

// These variables are set at build time via -ldflags.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

// String returns a single human-readable build info string.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, CommitSHA, BuildDate)
}

// Fields returns the build info keyed for JSON responses.
func Fields() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     CommitSHA,
		"build_date": BuildDate,
	}
}

// IsRelease reports whether the binary was built from a tagged release.
func IsRelease() bool {
	return Version != "dev" && Version != "unknown"
}
