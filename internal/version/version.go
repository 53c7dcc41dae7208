// Package version reports the build version of verdict.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Commit is set at build time:
//
//	go build -ldflags "-X github.com/ShayCichocki/verdict/internal/version.Commit=$(git rev-parse --short HEAD)"
var Commit string

// Get returns the release version from the embedded VERSION file.
func Get() string {
	return strings.TrimSpace(versionContent)
}

// String returns the release version with the build commit when known.
func String() string {
	if Commit == "" {
		return Get()
	}
	return Get() + " (" + Commit + ")"
}
