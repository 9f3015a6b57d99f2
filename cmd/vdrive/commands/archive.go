// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vdrive/cmd/vdrive/cli"
	"github.com/bureau-foundation/vdrive/lib/archive"
)

func archiveCommand() *cli.Command {
	return &cli.Command{
		Name:    "archive",
		Summary: "Back up and restore subtrees as compressed archives",
		Description: `Write a directory subtree to a portable archive file, restore an
archive into any drive, or list and verify an archive's content.

Each file is stored in chunks compressed with zstd or LZ4 (or stored
as-is when compression does not pay) and carries a BLAKE3 digest that
is checked on extraction.`,
		Subcommands: []*cli.Command{
			archiveCreateCommand(),
			archiveExtractCommand(),
			archiveListCommand(),
		},
	}
}

type archiveCreateParams struct {
	Drive       driveFlags
	Compression string       `flag:"compression,c" desc:"none, lz4, zstd or auto (default: archive.compression from the configuration)"`
	ChunkSize   cli.ByteSize `flag:"chunk-size" desc:"unit of compression (default: archive.chunk_size from the configuration)"`
}

func archiveCreateCommand() *cli.Command {
	var params archiveCreateParams
	const usage = "vdrive archive create <directory> <archive-file> [flags]"
	return &cli.Command{
		Name:    "create",
		Summary: "Archive a directory subtree",
		Description: `Archive a directory and everything below it. The archive file must
not exist yet; "-" writes to stdout. An interrupted or failed archive
leaves no file behind.`,
		Usage: usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("create", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExactArgs(args, 2, usage); err != nil {
				return err
			}
			return params.Drive.withDrive("archive create", func(s *session) error {
				compressionName := s.config.Archive.Compression
				if params.Compression != "" {
					compressionName = params.Compression
				}
				compression, err := archive.ParseCompression(compressionName)
				if err != nil {
					return err
				}
				chunkSize := int(s.config.Archive.ChunkSize)
				if params.ChunkSize != 0 {
					chunkSize = int(params.ChunkSize)
				}
				source, err := s.fs.Directory(args[0])
				if err != nil {
					return err
				}

				out, finish, err := createOutput(args[1])
				if err != nil {
					return err
				}
				bar := cli.NewProgressBar("archive", 0)
				summary, err := archive.Create(ctx, out, source, archive.Options{
					Compression: compression,
					ChunkSize:   chunkSize,
					Progress:    bar.Report(),
					Logger:      s.logger,
				})
				bar.Done()
				if err := finish(err); err != nil {
					return err
				}
				if args[1] != "-" {
					fmt.Fprintf(stdout, "%s: %d directories, %d files, %s stored as %s\n",
						args[1], summary.Directories, summary.Files,
						humanize.IBytes(uint64(summary.Bytes)), humanize.IBytes(uint64(summary.Stored)))
				}
				return nil
			})
		},
	}
}

// createOutput opens path for a new archive, or stdout for "-". finish
// flushes and closes it given the archive's outcome, and removes the
// file when the archive failed.
func createOutput(path string) (io.Writer, func(error) error, error) {
	if path == "-" {
		buffered := bufio.NewWriter(stdout)
		return buffered, func(err error) error {
			if err != nil {
				return err
			}
			return buffered.Flush()
		}, nil
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, nil, err
	}
	buffered := bufio.NewWriter(file)
	return buffered, func(err error) error {
		if err == nil {
			err = buffered.Flush()
		}
		if err == nil {
			err = file.Sync()
		}
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(path)
		}
		return err
	}, nil
}

// openInput opens an archive file, or stdin for "-".
func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return bufio.NewReader(stdin), func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return bufio.NewReader(file), func() { file.Close() }, nil
}

type archiveExtractParams struct {
	Drive driveFlags
	Name  string `flag:"name,n" desc:"name of the restored directory (default: the archived name)"`
}

func archiveExtractCommand() *cli.Command {
	var params archiveExtractParams
	const usage = "vdrive archive extract <archive-file> [target-directory] [flags]"
	return &cli.Command{
		Name:    "extract",
		Summary: "Restore an archive into a directory",
		Description: `Recreate an archived subtree inside the target directory (default:
the root). The archived directory is restored under its own name, or
--name; an archive of a whole drive is unpacked straight into the
target. A name already taken in the target is an error. Any failure
removes what was restored so far.`,
		Usage: usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("extract", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return fmt.Errorf("expected 1 or 2 arguments, got %d\n\nUsage: %s", len(args), usage)
			}
			target := ""
			if len(args) == 2 {
				target = args[1]
			}
			in, closeInput, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer closeInput()
			return params.Drive.withDrive("archive extract", func(s *session) error {
				directory, err := s.fs.Directory(target)
				if err != nil {
					return err
				}
				bar := cli.NewProgressBar("extract", 0)
				summary, err := archive.Extract(ctx, in, directory, archive.Options{
					Name:     params.Name,
					Progress: bar.Report(),
					Logger:   s.logger,
				})
				bar.Done()
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("extraction cancelled, nothing was kept: %w", err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "restored %d directories, %d files, %s\n",
					summary.Directories, summary.Files, humanize.IBytes(uint64(summary.Bytes)))
				return nil
			})
		},
	}
}

type archiveListParams struct {
	Long bool `flag:"long,l" desc:"show sizes, stored sizes and modification times"`
}

func archiveListCommand() *cli.Command {
	var params archiveListParams
	const usage = "vdrive archive list <archive-file> [flags]"
	return &cli.Command{
		Name:    "list",
		Summary: "List and verify an archive",
		Description: `Print the entries of an archive. Every chunk is decompressed and
every digest checked, so a listing that completes proves the archive is
intact. No drive is needed.`,
		Usage: usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := cli.ExactArgs(args, 1, usage); err != nil {
				return err
			}
			in, closeInput, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer closeInput()

			header, entries, err := archive.List(in)
			if err != nil {
				return err
			}
			styles := cli.NewStyles(stdout)
			name := header.Name
			if name == "" {
				name = "(drive root)"
			}
			fmt.Fprintf(stdout, "%s %s, created %s\n",
				styles.Header.Render(name),
				styles.Faint.Render(fmt.Sprintf("format %s v%d", header.Format, header.Version)),
				time.Unix(0, header.Created).Local().Format(timeLayout))

			tw := tabwriter.NewWriter(stdout, 2, 0, 2, ' ', 0)
			for _, entry := range entries {
				display := entry.Path
				if entry.Directory {
					display = styles.Directory.Render(display + "/")
				}
				if !params.Long {
					fmt.Fprintln(tw, display)
					continue
				}
				size, stored := "-", "-"
				if !entry.Directory {
					size = humanize.IBytes(uint64(entry.Length))
					stored = humanize.IBytes(uint64(entry.Stored))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					styles.Size.Render(size), styles.Faint.Render(stored),
					styles.Time.Render(entry.Modified.Local().Format(timeLayout)), display)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%d directories, %d files, %s\n",
				header.Directories, header.Files, humanize.IBytes(uint64(header.Bytes)))
			return nil
		},
	}
}
