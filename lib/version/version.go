// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// build describes one binary. Values the linker did not inject are
// filled from the VCS stamp "go build" records.
type build struct {
	commit string
	dirty  bool
	time   string
}

func current() build {
	b := build{commit: GitCommit, dirty: GitDirty == "true", time: BuildTime}
	if info, ok := debug.ReadBuildInfo(); ok {
		b.fill(info.Settings)
	}
	return b
}

func (b *build) fill(settings []debug.BuildSetting) {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if b.commit == "unknown" && setting.Value != "" {
				b.commit = setting.Value[:min(len(setting.Value), 12)]
				b.dirty = false
			}
		case "vcs.modified":
			if setting.Value == "true" && GitCommit == "unknown" {
				b.dirty = true
			}
		case "vcs.time":
			if b.time == "unknown" {
				b.time = setting.Value
			}
		}
	}
}

func (b build) String() string {
	dirty := ""
	if b.dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, b.commit, dirty, b.time)
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return current().String()
}

// Full returns detailed version information including Go version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
