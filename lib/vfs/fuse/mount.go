// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse exposes an open drive as a FUSE filesystem. Directories
// and files of the drive appear as host directories and regular files;
// reads and writes go through vfs streams, so the drive's advisory
// locks apply to host processes as well: a file open for writing
// cannot be opened again until it is closed, and the kernel sees EBUSY.
package fuse

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/bureau-foundation/vdrive/lib/rawdata"
	"github.com/bureau-foundation/vdrive/lib/vfs"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the drive is mounted.
	Mountpoint string

	// FileSystem is the open drive to expose. The mount does not own
	// it: unmount before closing the drive.
	FileSystem *vfs.FileSystem

	// ReadOnly rejects every request that would modify the drive
	// with EROFS.
	ReadOnly bool

	// AllowOther permits other users (including root) to access
	// the mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Debug logs every FUSE request on stderr.
	Debug bool

	// Logger receives diagnostic messages. If nil, errors go to
	// stderr.
	Logger *slog.Logger
}

// Mount mounts the drive at the configured mountpoint. The caller must
// call Unmount on the returned Server when done. The mountpoint
// directory is created if it does not exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.FileSystem == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &directoryNode{options: &options, directory: options.FileSystem.Root()}

	// The drive can change underneath the kernel only through this
	// mount, so short timeouts are enough to keep concurrent vfs users
	// visible without hammering Lookup.
	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "vdrive",
			Name:       "vdrive",
			AllowOther: options.AllowOther,
			Debug:      options.Debug,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("drive mounted", "mountpoint", options.Mountpoint, "read_only", options.ReadOnly)
	return server, nil
}

// errno translates a vfs error into the errno the kernel reports.
func errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, vfs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, vfs.ErrAlreadyExists):
		return syscall.EEXIST
	case errors.Is(err, vfs.ErrInvalidName):
		return syscall.EINVAL
	case errors.Is(err, vfs.ErrAccessDenied):
		return syscall.EBUSY
	case errors.Is(err, vfs.ErrInvalidOperation):
		return syscall.EPERM
	case errors.Is(err, rawdata.ErrDriveFull):
		return syscall.ENOSPC
	case errors.Is(err, vfs.ErrClosed):
		return syscall.ENXIO
	default:
		return syscall.EIO
	}
}
