// Package buildinfo exposes version metadata stamped at link time, for example:
//
//	go build -ldflags "-X github.com/m3rciful/menubot/core/buildinfo.Version=v0.3.0 \
//	  -X github.com/m3rciful/menubot/core/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/m3rciful/menubot/core/buildinfo.Date=$(date -u +%FT%TZ)"
package buildinfo

import "fmt"

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// Commit is the short source revision.
	Commit = "local"
	// Date is the RFC3339 build time. Empty when not stamped.
	Date = ""
)

// Summary renders the one-line build description printed by the version command.
func Summary(name string) string {
	date := Date
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s %s (commit %s, built %s)", name, Version, Commit, date)
}
