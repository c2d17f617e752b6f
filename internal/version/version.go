// Package version carries build metadata injected with -ldflags, e.g.
// -X spread-alerts/internal/version.Version=v1.2.0.
package version

import "fmt"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the build metadata for the version command and logs.
func String() string {
	return fmt.Sprintf("spreadwatcher %s (commit %s, built %s)", Version, Commit, BuildDate)
}
