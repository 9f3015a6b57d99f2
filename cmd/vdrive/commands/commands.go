// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/vdrive/cmd/vdrive/cli"
	"github.com/bureau-foundation/vdrive/lib/version"
)

// Command output goes through these so tests can capture it.
var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
)

// Root builds and returns the complete vdrive CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "vdrive",
		Description: `vdrive: a filesystem stored in a single host file.

A drive holds a tree of directories and files inside one file on the
host. Commands create and inspect drives, move data in and out of them,
archive subtrees, and mount a drive through FUSE.`,
		Subcommands: []*cli.Command{
			initCommand(),
			infoCommand(),
			lsCommand(),
			treeCommand(),
			findCommand(),
			statCommand(),
			mkdirCommand(),
			touchCommand(),
			catCommand(),
			writeCommand(),
			truncateCommand(),
			rmCommand(),
			renameCommand(),
			mvCommand(),
			cpCommand(),
			putCommand(),
			getCommand(),
			watchCommand(),
			archiveCommand(),
			mountCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string) error {
					fmt.Fprintf(stdout, "vdrive %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Create a drive",
				Command:     "vdrive init --drive photos.vd",
			},
			{
				Description: "Copy a host directory into it, skipping editor backups",
				Command:     "vdrive put --drive photos.vd ~/Pictures/2024 /albums --exclude '*~'",
			},
			{
				Description: "Show what is inside",
				Command:     "vdrive tree --drive photos.vd /albums",
			},
			{
				Description: "Back up a subtree to a compressed archive",
				Command:     "vdrive archive create --drive photos.vd /albums albums.vda",
			},
			{
				Description: "Browse the drive with ordinary tools",
				Command:     "vdrive mount --drive photos.vd /mnt/photos",
			},
		},
	}
}
