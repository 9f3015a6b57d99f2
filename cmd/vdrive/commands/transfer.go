// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vdrive/cmd/vdrive/cli"
	"github.com/bureau-foundation/vdrive/lib/vfs"
)

// transferred reports the outcome of a copy-like operation. A
// cancelled transfer has already removed its partial target.
func transferred(err error, verb, path string) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s cancelled, nothing was kept: %w", verb, err)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, path)
	return nil
}

// sourceLength returns the byte count of the file at path, or 0 for a
// directory, so the progress bar can show totals for single files.
func sourceLength(drive *vfs.FileSystem, path string) int64 {
	if file, err := drive.File(path); err == nil {
		return file.Length()
	}
	return 0
}

func cpCommand() *cli.Command {
	var params struct {
		Drive driveFlags
	}
	const usage = "vdrive cp <source> <target-directory> [flags]"
	return &cli.Command{
		Name:    "cp",
		Summary: "Copy a file or directory",
		Description: `Copy a file or directory tree into a target directory and print the
path of the copy. A copy into the source's own directory is named
"Copy <name>"; other collisions get a numbered suffix. Interrupting the
copy removes what was copied so far.`,
		Usage: usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("cp", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args, 2, usage); err != nil {
				return err
			}
			return params.Drive.withDrive("cp", func(s *session) error {
				bar := cli.NewProgressBar("copy", sourceLength(s.fs, args[0]))
				path, err := s.fs.Copy(ctx, args[0], args[1], bar.Report())
				bar.Done()
				return transferred(err, "copy", displayPath(path))
			})
		},
	}
}

func mvCommand() *cli.Command {
	var params struct {
		Drive driveFlags
	}
	const usage = "vdrive mv <source> <target-directory> [flags]"
	return &cli.Command{
		Name:    "mv",
		Summary: "Move a file or directory",
		Description: `Move a file or directory into a target directory and print its new
path. The content is not copied: only the entry's parent changes. The
move fails if the name is already taken in the target.`,
		Usage: usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("mv", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args, 2, usage); err != nil {
				return err
			}
			return params.Drive.withDrive("mv", func(s *session) error {
				path, err := s.fs.Move(ctx, args[0], args[1], nil)
				return transferred(err, "move", displayPath(path))
			})
		},
	}
}

type putParams struct {
	Drive   driveFlags
	Exclude []string `flag:"exclude,x" desc:"skip host entries matching a pattern (repeatable); patterns without / match base names"`
}

func putCommand() *cli.Command {
	var params putParams
	const usage = "vdrive put <host-path> [target-directory] [flags]"
	return &cli.Command{
		Name:    "put",
		Summary: "Import a host file or directory",
		Description: `Copy a file or directory tree from the host into the drive. The
target directory defaults to the root and must exist. An entry with the
same name in the target is an error.`,
		Usage: usage,
		Examples: []cli.Example{
			{
				Description: "Import a source tree without build output",
				Command:     "vdrive put ~/src/project /code --exclude 'build/**' --exclude '*.o'",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("put", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return fmt.Errorf("expected 1 or 2 arguments, got %d\n\nUsage: %s", len(args), usage)
			}
			hostPath := args[0]
			target := ""
			if len(args) == 2 {
				target = args[1]
			}
			info, err := os.Stat(hostPath)
			if err != nil {
				return err
			}
			return params.Drive.withDrive("put", func(s *session) error {
				if !info.IsDir() {
					if len(params.Exclude) > 0 {
						return fmt.Errorf("--exclude applies to directories, %s is a file", hostPath)
					}
					bar := cli.NewProgressBar("import", info.Size())
					file, err := s.fs.ImportFile(ctx, hostPath, target, bar.Report())
					bar.Done()
					if err != nil {
						return transferred(err, "import", "")
					}
					return transferred(nil, "import", displayPath(file.Path()))
				}
				bar := cli.NewProgressBar("import", 0)
				directory, err := s.fs.ImportDirectory(ctx, hostPath, target, vfs.ImportOptions{
					Exclude:  params.Exclude,
					Progress: bar.Report(),
				})
				bar.Done()
				if err != nil {
					return transferred(err, "import", "")
				}
				return transferred(nil, "import", displayPath(directory.Path()))
			})
		},
	}
}

func getCommand() *cli.Command {
	var params struct {
		Drive driveFlags
	}
	const usage = "vdrive get <path> [host-directory] [flags]"
	return &cli.Command{
		Name:    "get",
		Summary: "Export a file or directory to the host",
		Description: `Copy a file or directory tree out of the drive into a host directory
(default: the current directory) and print the host path. Existing host
files are never overwritten. Exporting the root writes its contents into
the host directory itself.`,
		Usage: usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("get", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return fmt.Errorf("expected 1 or 2 arguments, got %d\n\nUsage: %s", len(args), usage)
			}
			hostDir := "."
			if len(args) == 2 {
				hostDir = args[1]
			}
			return params.Drive.withDrive("get", func(s *session) error {
				if file, err := s.fs.File(args[0]); err == nil {
					bar := cli.NewProgressBar("export", file.Length())
					hostPath, err := s.fs.ExportFile(ctx, args[0], hostDir, bar.Report())
					bar.Done()
					return transferred(err, "export", hostPath)
				}
				bar := cli.NewProgressBar("export", 0)
				hostPath, err := s.fs.ExportDirectory(ctx, args[0], hostDir, bar.Report())
				bar.Done()
				return transferred(err, "export", hostPath)
			})
		},
	}
}
