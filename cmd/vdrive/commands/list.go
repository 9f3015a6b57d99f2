// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vdrive/cmd/vdrive/cli"
	"github.com/bureau-foundation/vdrive/lib/vfs"
)

// timeLayout is used for timestamps in listings.
const timeLayout = "2006-01-02 15:04"

// displayPath renders a drive path with a leading separator.
func displayPath(path string) string {
	return "/" + path
}

// optionalPath returns the single optional path argument, or the root.
func optionalPath(args []string, usage string) (string, error) {
	switch len(args) {
	case 0:
		return "", nil
	case 1:
		return args[0], nil
	default:
		return "", fmt.Errorf("expected at most 1 argument, got %d\n\nUsage: %s", len(args), usage)
	}
}

// listing returns the children of d, each kind sorted by name ignoring
// case.
func listing(d *vfs.Directory) ([]*vfs.Directory, []*vfs.File, error) {
	directories, err := d.Directories()
	if err != nil {
		return nil, nil, err
	}
	files, err := d.Files()
	if err != nil {
		return nil, nil, err
	}
	slices.SortFunc(directories, func(a, b *vfs.Directory) int {
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})
	slices.SortFunc(files, func(a, b *vfs.File) int {
		return strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name()))
	})
	return directories, files, nil
}

type lsParams struct {
	Drive driveFlags
	Long  bool `flag:"long,l" desc:"show sizes and modification times"`
}

func lsCommand() *cli.Command {
	var params lsParams
	const usage = "vdrive ls [path] [flags]"
	return &cli.Command{
		Name:    "ls",
		Summary: "List a directory",
		Usage:   usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("ls", &params)
		},
		Run: func(_ context.Context, args []string) error {
			path, err := optionalPath(args, usage)
			if err != nil {
				return err
			}
			return params.Drive.withDrive("ls", func(s *session) error {
				styles := cli.NewStyles(stdout)
				if file, err := s.fs.File(path); err == nil {
					return printEntries(stdout, styles, params.Long, nil, []*vfs.File{file})
				}
				directory, err := s.fs.Directory(path)
				if err != nil {
					return err
				}
				directories, files, err := listing(directory)
				if err != nil {
					return err
				}
				return printEntries(stdout, styles, params.Long, directories, files)
			})
		},
	}
}

func printEntries(w io.Writer, styles cli.Styles, long bool, directories []*vfs.Directory, files []*vfs.File) error {
	if !long {
		for _, directory := range directories {
			fmt.Fprintln(w, styles.Directory.Render(directory.Name()+"/"))
		}
		for _, file := range files {
			fmt.Fprintln(w, styles.File.Render(file.Name()))
		}
		return nil
	}
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', tabwriter.AlignRight)
	for _, directory := range directories {
		fmt.Fprintf(tw, "%s\t%s\t %s\n",
			styles.Faint.Render("-"),
			styles.Time.Render(directory.Modified().Local().Format(timeLayout)),
			styles.Directory.Render(directory.Name()+"/"))
	}
	for _, file := range files {
		fmt.Fprintf(tw, "%s\t%s\t %s\n",
			styles.Size.Render(humanize.IBytes(uint64(file.Length()))),
			styles.Time.Render(file.Modified().Local().Format(timeLayout)),
			styles.File.Render(file.Name()))
	}
	return tw.Flush()
}

func treeCommand() *cli.Command {
	var params struct {
		Drive driveFlags
	}
	const usage = "vdrive tree [path] [flags]"
	return &cli.Command{
		Name:    "tree",
		Summary: "Show a directory tree",
		Usage:   usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("tree", &params)
		},
		Run: func(_ context.Context, args []string) error {
			path, err := optionalPath(args, usage)
			if err != nil {
				return err
			}
			return params.Drive.withDrive("tree", func(s *session) error {
				top, err := s.fs.Directory(path)
				if err != nil {
					return err
				}
				styles := cli.NewStyles(stdout)
				fmt.Fprintln(stdout, styles.Directory.Render(displayPath(top.Path())))
				var counts treeCounts
				if err := printTree(stdout, styles, top, "", &counts); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "\n%d directories, %d files, %s\n",
					counts.directories, counts.files, humanize.IBytes(uint64(counts.bytes)))
				return nil
			})
		},
	}
}

type treeCounts struct {
	directories int
	files       int
	bytes       int64
}

func printTree(w io.Writer, styles cli.Styles, d *vfs.Directory, indent string, counts *treeCounts) error {
	directories, files, err := listing(d)
	if err != nil {
		return err
	}
	total := len(directories) + len(files)
	branch := func(i int) (string, string) {
		if i == total-1 {
			return "└── ", "    "
		}
		return "├── ", "│   "
	}
	for i, directory := range directories {
		counts.directories++
		connector, next := branch(i)
		fmt.Fprintln(w, indent+connector+styles.Directory.Render(directory.Name()))
		if err := printTree(w, styles, directory, indent+next, counts); err != nil {
			return err
		}
	}
	for i, file := range files {
		counts.files++
		counts.bytes += file.Length()
		connector, _ := branch(len(directories) + i)
		fmt.Fprintf(w, "%s%s%s %s\n", indent, connector, styles.File.Render(file.Name()),
			styles.Size.Render("("+humanize.IBytes(uint64(file.Length()))+")"))
	}
	return nil
}

type findParams struct {
	Drive       driveFlags
	Directories bool `flag:"directories" desc:"match directory names instead of file names"`
	Recursive   bool `flag:"recursive,r" desc:"search every directory below the start" default:"true"`
}

func findCommand() *cli.Command {
	var params findParams
	const usage = "vdrive find [directory] <pattern> [flags]"
	return &cli.Command{
		Name:    "find",
		Summary: "Find files or directories by name",
		Description: `Find entries whose name matches a pattern. "*" matches any run of
characters and "?" any single character; matching ignores case. Exits
with status 1 when nothing matches.`,
		Usage: usage,
		Examples: []cli.Example{
			{
				Description: "Every JPEG on the drive",
				Command:     "vdrive find '*.jpg'",
			},
			{
				Description: "Directories directly under /albums named 2024-something",
				Command:     "vdrive find /albums '2024*' --directories --recursive=false",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("find", &params)
		},
		Run: func(_ context.Context, args []string) error {
			var start, pattern string
			switch len(args) {
			case 1:
				pattern = args[0]
			case 2:
				start, pattern = args[0], args[1]
			default:
				return fmt.Errorf("expected 1 or 2 arguments, got %d\n\nUsage: %s", len(args), usage)
			}
			return params.Drive.withDrive("find", func(s *session) error {
				var paths []string
				if params.Directories {
					found, err := s.fs.FindDirectories(start, pattern, params.Recursive)
					if err != nil {
						return err
					}
					for _, directory := range found {
						paths = append(paths, directory.Path())
					}
				} else {
					found, err := s.fs.FindFiles(start, pattern, params.Recursive)
					if err != nil {
						return err
					}
					for _, file := range found {
						paths = append(paths, file.Path())
					}
				}
				if len(paths) == 0 {
					return &cli.ExitError{Code: 1}
				}
				slices.Sort(paths)
				for _, path := range paths {
					fmt.Fprintln(stdout, displayPath(path))
				}
				return nil
			})
		},
	}
}

func statCommand() *cli.Command {
	var params struct {
		Drive driveFlags
	}
	const usage = "vdrive stat <path> [flags]"
	return &cli.Command{
		Name:    "stat",
		Summary: "Show details of a file or directory",
		Description: `Show the identity, timestamps and size of an entry. For files, also
the number of content blocks and the content type detected from the
first bytes.`,
		Usage: usage,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("stat", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := cli.ExactArgs(args, 1, usage); err != nil {
				return err
			}
			return params.Drive.withDrive("stat", func(s *session) error {
				styles := cli.NewStyles(stdout)
				tw := tabwriter.NewWriter(stdout, 2, 0, 2, ' ', 0)
				row := func(label, value string) {
					fmt.Fprintf(tw, "%s\t%s\n", styles.Label.Render(label+":"), value)
				}
				if file, err := s.fs.File(args[0]); err == nil {
					contentType, err := detectContentType(file)
					if err != nil {
						return err
					}
					row("Path", displayPath(file.Path()))
					row("Type", "file")
					row("ID", fmt.Sprint(file.ID()))
					row("Size", fmt.Sprintf("%s (%d bytes)", humanize.IBytes(uint64(file.Length())), file.Length()))
					row("Blocks", fmt.Sprint(len(file.Blocks())))
					row("Content", contentType)
					row("Created", formatTime(file.Created()))
					row("Modified", formatTime(file.Modified()))
					return tw.Flush()
				} else if !errors.Is(err, vfs.ErrNotFound) {
					return err
				}
				directory, err := s.fs.Directory(args[0])
				if err != nil {
					return err
				}
				directories, files, err := listing(directory)
				if err != nil {
					return err
				}
				row("Path", displayPath(directory.Path()))
				row("Type", "directory")
				row("ID", fmt.Sprint(directory.ID()))
				row("Contains", fmt.Sprintf("%d directories, %d files", len(directories), len(files)))
				row("Created", formatTime(directory.Created()))
				row("Modified", formatTime(directory.Modified()))
				return tw.Flush()
			})
		},
	}
}

// detectContentType sniffs the file's leading bytes through a shared
// read stream.
func detectContentType(file *vfs.File) (string, error) {
	stream, err := file.Open(vfs.ModeOpen, vfs.AccessRead)
	if err != nil {
		return "", err
	}
	defer stream.Close()
	detected, err := mimetype.DetectReader(stream)
	if err != nil {
		return "", err
	}
	return detected.String(), nil
}

func formatTime(t time.Time) string {
	return fmt.Sprintf("%s (%s)", t.Local().Format(time.RFC3339), humanize.Time(t))
}
