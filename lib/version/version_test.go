// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	savedCommit, savedDirty, savedTime := GitCommit, GitDirty, BuildTime
	t.Cleanup(func() { GitCommit, GitDirty, BuildTime = savedCommit, savedDirty, savedTime })

	GitCommit, GitDirty, BuildTime = "abc1234", "false", "2026-03-01T12:00:00Z"
	if got, want := Info(), Version+" (abc1234, 2026-03-01T12:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}

	GitDirty = "true"
	if got := Info(); !strings.Contains(got, "abc1234-dirty") {
		t.Errorf("Info() = %q, want the commit marked dirty", got)
	}
}

func TestFull(t *testing.T) {
	full := Full()
	if !strings.HasPrefix(full, Info()) {
		t.Errorf("Full() = %q, want it to start with Info()", full)
	}
	if !strings.Contains(full, runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("Full() = %q, want the platform", full)
	}
}

func TestFillFromBuildSettings(t *testing.T) {
	savedCommit := GitCommit
	t.Cleanup(func() { GitCommit = savedCommit })
	GitCommit = "unknown"

	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2026-03-01T12:00:00Z"},
	}
	b := build{commit: "unknown", time: "unknown"}
	b.fill(settings)
	if got, want := b.String(), Version+" (0123456789ab-dirty, 2026-03-01T12:00:00Z)"; got != want {
		t.Errorf("filled build = %q, want %q", got, want)
	}

	// Injected values win over the VCS stamp.
	GitCommit = "abc1234"
	injected := build{commit: "abc1234", time: "then"}
	injected.fill(settings)
	if got, want := injected.String(), Version+" (abc1234, then)"; got != want {
		t.Errorf("injected build = %q, want %q", got, want)
	}
}
