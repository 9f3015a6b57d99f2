// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for vdrive.
//
// Configuration is loaded from a single file specified by:
//   - VDRIVE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. Without either, the
// command runs on Default().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/vdrive/lib/format"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "VDRIVE_CONFIG"

// Config is the master configuration for vdrive.
type Config struct {
	// Drive configures the backing file.
	Drive DriveConfig `yaml:"drive"`

	// CopyBufferSize bounds the memory one copy, import or export
	// holds. Default: 1MiB
	CopyBufferSize Size `yaml:"copy_buffer_size"`

	// WatchBuffer is the channel capacity of each directory watcher.
	// Default: 64
	WatchBuffer int `yaml:"watch_buffer"`

	// Log configures diagnostic output.
	Log LogConfig `yaml:"log"`

	// Mount configures "vdrive mount".
	Mount MountConfig `yaml:"mount"`

	// Archive configures "vdrive archive create".
	Archive ArchiveConfig `yaml:"archive"`
}

// DriveConfig configures the backing file.
type DriveConfig struct {
	// Path is the drive used when a command is given no --drive flag.
	// Default: ${HOME}/.local/share/vdrive/drive.vd
	Path string `yaml:"path"`

	// SectorInfoLength is the size of the sector descriptor region of
	// a new drive. It bounds how many sectors the drive can grow to.
	// Existing drives keep the value they were created with.
	// Default: 1MiB
	SectorInfoLength Size `yaml:"sector_info_length"`

	// EntriesSectorLength is the size of each entry table sector of a
	// new drive. Default: 4MiB
	EntriesSectorLength Size `yaml:"entries_sector_length"`
}

// Parameters returns the layout a new drive is created with.
func (d DriveConfig) Parameters() format.Parameters {
	return format.Parameters{
		SectorInfoLength:    int32(d.SectorInfoLength),
		EntriesSectorLength: int32(d.EntriesSectorLength),
	}
}

// LogConfig configures diagnostic output.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: warn
	Level string `yaml:"level"`

	// Format is text, json, or auto (text on a terminal, JSON
	// otherwise). Default: auto
	Format string `yaml:"format"`
}

// SlogLevel returns Level as an slog level. Validate rejects unknown
// names, so an invalid level here means Validate was skipped; it maps
// to warn.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelWarn
	}
	return level
}

// MountConfig configures the FUSE mount.
type MountConfig struct {
	// ReadOnly rejects modifications through the mount.
	ReadOnly bool `yaml:"read_only"`

	// Debug logs every FUSE request.
	Debug bool `yaml:"debug"`

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool `yaml:"allow_other"`
}

// ArchiveConfig configures archive creation.
type ArchiveConfig struct {
	// Compression is none, lz4, zstd or auto. Default: auto
	Compression string `yaml:"compression"`

	// ChunkSize is the unit of compression. Default: 1MiB
	ChunkSize Size `yaml:"chunk_size"`
}

// Size is a byte count written either as an integer or as a
// human-readable string such as "4MiB" or "512 kB".
type Size int64

// UnmarshalYAML accepts both forms.
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", node.Line)
	}
	value, err := humanize.ParseBytes(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid size %q: %w", node.Line, node.Value, err)
	}
	*s = Size(value)
	return nil
}

// MarshalYAML writes the IEC form.
func (s Size) MarshalYAML() (any, error) {
	return s.String(), nil
}

// String returns the size in IEC units, e.g. "4.0 MiB".
func (s Size) String() string {
	return humanize.IBytes(uint64(s))
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Drive: DriveConfig{
			Path:                filepath.Join(homeDir, ".local", "share", "vdrive", "drive.vd"),
			SectorInfoLength:    format.DefaultSectorInfoLength,
			EntriesSectorLength: format.DefaultEntriesSectorLength,
		},
		CopyBufferSize: 1 << 20,
		WatchBuffer:    64,
		Log: LogConfig{
			Level:  "warn",
			Format: "auto",
		},
		Archive: ArchiveConfig{
			Compression: "auto",
			ChunkSize:   1 << 20,
		},
	}
}

// Load loads configuration from the VDRIVE_CONFIG environment
// variable. It fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your vdrive.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. Values the
// file leaves out keep their defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Drive.Path = expandVars(c.Drive.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Drive.SectorInfoLength > 1<<31-1 || c.Drive.EntriesSectorLength > 1<<31-1 {
		errs = append(errs, fmt.Errorf("drive sector lengths must fit in 32 bits"))
	} else if err := c.Drive.Parameters().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("drive: %w", err))
	}

	if c.CopyBufferSize < 4096 {
		errs = append(errs, fmt.Errorf("copy_buffer_size must be at least 4KiB, got %s", c.CopyBufferSize))
	}
	if c.WatchBuffer < 1 {
		errs = append(errs, fmt.Errorf("watch_buffer must be positive, got %d", c.WatchBuffer))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level must be one of: debug, info, warn, error"))
	}
	formats := []string{"text", "json", "auto"}
	if !contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	compressions := []string{"none", "lz4", "zstd", "auto"}
	if !contains(compressions, strings.ToLower(c.Archive.Compression)) {
		errs = append(errs, fmt.Errorf("archive.compression must be one of: %v", compressions))
	}
	if c.Archive.ChunkSize < 4096 || c.Archive.ChunkSize > 64<<20 {
		errs = append(errs, fmt.Errorf("archive.chunk_size must be between 4KiB and 64MiB, got %s", c.Archive.ChunkSize))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
