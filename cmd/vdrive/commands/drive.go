// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vdrive/cmd/vdrive/cli"
	"github.com/bureau-foundation/vdrive/lib/config"
	"github.com/bureau-foundation/vdrive/lib/device"
	"github.com/bureau-foundation/vdrive/lib/vfs"
)

// driveFlags selects the drive file and the configuration a command
// runs with. It is embedded as a named field in each command's params.
type driveFlags struct {
	Path   string
	Config string
}

func (f *driveFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&f.Path, "drive", "d", "", "drive file (default: drive.path from the configuration)")
	flagSet.StringVar(&f.Config, "config", "", "configuration file (default: $"+config.EnvironmentVariable+")")
}

// load resolves the configuration: --config, then $VDRIVE_CONFIG, then
// the defaults. --drive overrides drive.path.
func (f *driveFlags) load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case f.Config != "":
		cfg, err = config.LoadFile(f.Config)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if f.Path != "" {
		cfg.Drive.Path = f.Path
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// session is one open drive.
type session struct {
	fs     *vfs.FileSystem
	config *config.Config
	logger *slog.Logger
}

// open opens the configured drive. The drive file must already exist,
// so a mistyped --drive does not lay out a new one.
func (f *driveFlags) open(command string) (*session, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Drive.Path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no drive at %s (create one with 'vdrive init')", cfg.Drive.Path)
	} else if err != nil {
		return nil, err
	}
	return openDrive(cfg, command)
}

// openDrive opens or creates the drive cfg names.
func openDrive(cfg *config.Config, command string) (*session, error) {
	logger := cli.NewCommandLogger(cfg.Log.SlogLevel(), cfg.Log.Format).With(
		"command", command,
		"drive", cfg.Drive.Path,
	)
	drive, err := vfs.Open(cfg.Drive.Path, vfs.Options{
		Parameters:     cfg.Drive.Parameters(),
		CopyBufferSize: int(cfg.CopyBufferSize),
		WatchBuffer:    cfg.WatchBuffer,
		Logger:         logger,
	})
	if errors.Is(err, device.ErrLocked) {
		return nil, fmt.Errorf("drive %s is in use by another process", cfg.Drive.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening drive %s: %w", cfg.Drive.Path, err)
	}
	return &session{fs: drive, config: cfg, logger: logger}, nil
}

// withDrive opens the drive, runs fn, and closes the drive. A close
// failure is reported only when fn succeeded.
func (f *driveFlags) withDrive(command string, fn func(s *session) error) error {
	s, err := f.open(command)
	if err != nil {
		return err
	}
	runErr := fn(s)
	if err := s.fs.Close(); err != nil && runErr == nil {
		return fmt.Errorf("closing drive: %w", err)
	}
	return runErr
}
