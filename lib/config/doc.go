// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for vdrive.
//
// Configuration is loaded from a single file specified by either the
// VDRIVE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no ~/.config discovery and no automatic
// file search; without a file the CLI uses [Default].
//
// Byte sizes may be written as integers or as human-readable strings
// ("4MiB", "512 kB"), parsed with go-humanize into [Size].
//
// Variable expansion is performed on the drive path after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Drive, Log, Mount, Archive
//   - [Default] -- returns a Config with the built-in defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
