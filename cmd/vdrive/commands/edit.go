// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vdrive/cmd/vdrive/cli"
	"github.com/bureau-foundation/vdrive/lib/vfs"
)

// atLeastOne rejects an empty argument list.
func atLeastOne(args []string, usage string) error {
	if len(args) == 0 {
		return fmt.Errorf("expected at least 1 argument\n\nUsage: %s", usage)
	}
	return nil
}

func mkdirCommand() *cli.Command {
	var params struct {
		Drive driveFlags
	}
	const usage = "vdrive mkdir <path>... [flags]"
	return &cli.Command{
		Name:        "mkdir",
		Summary:     "Create directories",
		Description: "Create each directory together with any missing parents.",
		Usage:       usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("mkdir", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := atLeastOne(args, usage); err != nil {
				return err
			}
			return params.Drive.withDrive("mkdir", func(s *session) error {
				for _, path := range args {
					if _, err := s.fs.CreateDirectory(path); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func touchCommand() *cli.Command {
	var params struct {
		Drive driveFlags
	}
	const usage = "vdrive touch <path>... [flags]"
	return &cli.Command{
		Name:        "touch",
		Summary:     "Create empty files",
		Description: "Create each file that does not exist yet. Existing files are left alone.",
		Usage:       usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("touch", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := atLeastOne(args, usage); err != nil {
				return err
			}
			return params.Drive.withDrive("touch", func(s *session) error {
				for _, path := range args {
					if _, err := s.fs.File(path); err == nil {
						continue
					}
					if _, err := s.fs.CreateFile(path); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func catCommand() *cli.Command {
	var params struct {
		Drive driveFlags
	}
	const usage = "vdrive cat <path>... [flags]"
	return &cli.Command{
		Name:    "cat",
		Summary: "Write file contents to stdout",
		Usage:   usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("cat", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := atLeastOne(args, usage); err != nil {
				return err
			}
			return params.Drive.withDrive("cat", func(s *session) error {
				for _, path := range args {
					if err := catFile(s.fs, path); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func catFile(drive *vfs.FileSystem, path string) error {
	stream, err := drive.OpenFile(path, vfs.ModeOpen, vfs.AccessRead)
	if err != nil {
		return err
	}
	defer stream.Close()
	_, err = io.Copy(stdout, stream)
	return err
}

type writeParams struct {
	Drive  driveFlags
	Append bool `flag:"append,a" desc:"append to the file instead of replacing its content"`
}

func writeCommand() *cli.Command {
	var params writeParams
	const usage = "vdrive write <path> [flags] < data"
	return &cli.Command{
		Name:    "write",
		Summary: "Write stdin to a file",
		Description: `Write standard input to a file, creating it if needed. The parent
directory must exist. Without --append the previous content is replaced.`,
		Usage: usage,
		Examples: []cli.Example{
			{
				Description: "Store a note",
				Command:     "echo 'buy milk' | vdrive write /notes/todo.txt",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("write", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := cli.ExactArgs(args, 1, usage); err != nil {
				return err
			}
			mode := vfs.ModeCreate
			if params.Append {
				mode = vfs.ModeAppend
			}
			return params.Drive.withDrive("write", func(s *session) error {
				stream, err := s.fs.OpenFile(args[0], mode, vfs.AccessWrite)
				if err != nil {
					return err
				}
				written, copyErr := io.Copy(stream, stdin)
				if err := stream.Close(); err != nil && copyErr == nil {
					copyErr = err
				}
				if copyErr != nil {
					return copyErr
				}
				s.logger.Info("file written", "path", args[0], "bytes", written)
				return nil
			})
		},
	}
}

type truncateParams struct {
	Drive driveFlags
	Size  cli.ByteSize `flag:"size,s" desc:"new length, e.g. 0, 4096 or 2MiB"`
}

func truncateCommand() *cli.Command {
	var params truncateParams
	const usage = "vdrive truncate <path> --size <length> [flags]"
	return &cli.Command{
		Name:    "truncate",
		Summary: "Shrink or extend a file",
		Description: `Set the length of a file. Shrinking releases the trailing content
blocks; growing appends zero bytes.`,
		Usage: usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("truncate", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := cli.ExactArgs(args, 1, usage); err != nil {
				return err
			}
			return params.Drive.withDrive("truncate", func(s *session) error {
				file, err := s.fs.File(args[0])
				if err != nil {
					return err
				}
				return file.SetLength(int64(params.Size))
			})
		},
	}
}

func rmCommand() *cli.Command {
	var params struct {
		Drive driveFlags
	}
	const usage = "vdrive rm <path>... [flags]"
	return &cli.Command{
		Name:        "rm",
		Summary:     "Remove files and directories",
		Description: "Remove each file or directory. Directories are removed with everything below them.",
		Usage:       usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("rm", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := atLeastOne(args, usage); err != nil {
				return err
			}
			return params.Drive.withDrive("rm", func(s *session) error {
				var errs []error
				for _, path := range args {
					if err := s.fs.Remove(path); err != nil {
						errs = append(errs, err)
					}
				}
				return errors.Join(errs...)
			})
		},
	}
}

func renameCommand() *cli.Command {
	var params struct {
		Drive driveFlags
	}
	const usage = "vdrive rename <path> <new-name> [flags]"
	return &cli.Command{
		Name:    "rename",
		Summary: "Give a file or directory a new name",
		Description: `Change the leaf name of a file or directory in place. To move an
entry to another directory use "vdrive mv".`,
		Usage: usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("rename", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := cli.ExactArgs(args, 2, usage); err != nil {
				return err
			}
			return params.Drive.withDrive("rename", func(s *session) error {
				return s.fs.Rename(args[0], args[1])
			})
		},
	}
}
