// Package version contains build version information.
package version

import "fmt"

// Version is the current application version.
// This value is updated automatically by Release Please.
var Version = "0.0.0"

// GitCommit is the git commit hash.
// This value is set at build time via ldflags.
var GitCommit = "unknown"

// BuildDate is the build date.
// This value is set at build time via ldflags.
var BuildDate = "unknown"

// UserAgent returns product/version for outbound requests, e.g.
// "uptime-garden/1.2.0".
func UserAgent(product string) string {
	return fmt.Sprintf("%s/%s", product, Version)
}
