// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vdrive/cmd/vdrive/cli"
	"github.com/bureau-foundation/vdrive/lib/watch"
)

type watchParams struct {
	Drive driveFlags
	mountFlags
}

func watchCommand() *cli.Command {
	var params watchParams
	const usage = "vdrive watch <mountpoint> [directory...] [flags]"
	return &cli.Command{
		Name:    "watch",
		Summary: "Mount the drive and report changes to directories",
		Description: `Mount the drive like "vdrive mount" and print a line for every change
to the listed directories (default: the root) until interrupted. A
drive is used by one process at a time, so changes are made through the
mount. Each directory reports its direct children being created,
updated or deleted, and its own renames and moves.`,
		Usage: usage,
		Examples: []cli.Example{
			{
				Description: "Follow changes to /inbox while another shell writes to the mount",
				Command:     "vdrive watch --drive mail.vd /mnt/mail /inbox",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("watch", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("expected a mountpoint\n\nUsage: %s", usage)
			}
			mountpoint, directories := args[0], args[1:]
			if len(directories) == 0 {
				directories = []string{""}
			}
			return params.Drive.withDrive("watch", func(s *session) error {
				events := make(chan watch.Event)
				for _, path := range directories {
					directory, err := s.fs.Directory(path)
					if err != nil {
						return err
					}
					watcher, err := directory.Watch()
					if err != nil {
						return err
					}
					defer watcher.Close()
					go forward(ctx, watcher, events)
				}
				return serveMount(ctx, s, mountpoint, params.mountFlags, func() error {
					fmt.Fprintf(stdout, "watching %d directories through %s (interrupt to stop)\n", len(directories), mountpoint)
					go printEvents(ctx, stdout, events)
					return nil
				})
			})
		},
	}
}

// forward copies a watcher's events into out until ctx is done or the
// watcher is closed.
func forward(ctx context.Context, watcher *watch.Watcher, out chan<- watch.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events():
			if !ok {
				return
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func printEvents(ctx context.Context, w io.Writer, events <-chan watch.Event) {
	styles := cli.NewStyles(w)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			fmt.Fprintf(w, "%s  %-12s %-9s %s\n",
				styles.Time.Render(time.Now().Format("15:04:05")),
				event.Type,
				entryKind(event.IsDirectory),
				displayPath(event.Path))
		}
	}
}

func entryKind(isDirectory bool) string {
	if isDirectory {
		return "directory"
	}
	return "file"
}
