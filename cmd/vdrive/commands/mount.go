// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vdrive/cmd/vdrive/cli"
	vfsfuse "github.com/bureau-foundation/vdrive/lib/vfs/fuse"
)

// mountFlags adjust the FUSE mount. Each one turns its setting on; a
// setting already on in the configuration stays on.
type mountFlags struct {
	ReadOnly   bool `flag:"read-only" desc:"reject modifications through the mount"`
	Debug      bool `flag:"fuse-debug" desc:"log every FUSE request"`
	AllowOther bool `flag:"allow-other" desc:"let other users access the mount (needs user_allow_other in /etc/fuse.conf)"`
}

// serveMount mounts the session's drive at mountpoint, calls mounted
// once the kernel can see it, and unmounts when ctx is done.
func serveMount(ctx context.Context, s *session, mountpoint string, flags mountFlags, mounted func() error) error {
	server, err := vfsfuse.Mount(vfsfuse.Options{
		Mountpoint: mountpoint,
		FileSystem: s.fs,
		ReadOnly:   flags.ReadOnly || s.config.Mount.ReadOnly,
		AllowOther: flags.AllowOther || s.config.Mount.AllowOther,
		Debug:      flags.Debug || s.config.Mount.Debug,
		Logger:     s.logger,
	})
	if err != nil {
		return err
	}

	// An external "fusermount -u" ends Wait without cancelling ctx.
	unmounted := make(chan struct{})
	go func() {
		server.Wait()
		close(unmounted)
	}()

	var runErr error
	if mounted != nil {
		runErr = mounted()
	}
	if runErr == nil {
		select {
		case <-ctx.Done():
		case <-unmounted:
			return nil
		}
	}
	if err := server.Unmount(); err != nil {
		return fmt.Errorf("unmounting %s: %w", mountpoint, err)
	}
	<-unmounted
	s.logger.Info("drive unmounted", "mountpoint", mountpoint)
	return runErr
}

type mountParams struct {
	Drive driveFlags
	mountFlags
}

func mountCommand() *cli.Command {
	var params mountParams
	const usage = "vdrive mount <mountpoint> [flags]"
	return &cli.Command{
		Name:    "mount",
		Summary: "Mount the drive through FUSE",
		Description: `Expose the drive as a host directory until interrupted. Files open
for writing through the mount are exclusive: a second open fails with
EBUSY until the first is closed. The drive is closed cleanly after
unmounting.`,
		Usage: usage,
		Examples: []cli.Example{
			{
				Description: "Browse a drive read-only",
				Command:     "vdrive mount --drive photos.vd --read-only /mnt/photos",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("mount", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args, 1, usage); err != nil {
				return err
			}
			return params.Drive.withDrive("mount", func(s *session) error {
				return serveMount(ctx, s, args[0], params.mountFlags, func() error {
					fmt.Fprintf(stdout, "mounted %s at %s (interrupt to unmount)\n", s.config.Drive.Path, args[0])
					return nil
				})
			})
		},
	}
}
