// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/vdrive/cmd/vdrive/cli"
	"github.com/bureau-foundation/vdrive/lib/codec"
	"github.com/bureau-foundation/vdrive/lib/config"
)

type initParams struct {
	Drive               driveFlags
	SectorInfoLength    cli.ByteSize `flag:"sector-info-length" desc:"size of the sector descriptor region (default: from configuration)"`
	EntriesSectorLength cli.ByteSize `flag:"entries-sector-length" desc:"size of each entry table sector (default: from configuration)"`
}

func initCommand() *cli.Command {
	var params initParams
	return &cli.Command{
		Name:    "init",
		Summary: "Create a new empty drive",
		Description: `Create a new drive file and lay out its first sectors.

The sector descriptor region bounds how many sectors the drive can grow
to; each entry table sector holds the records of that many bytes of
names. Both are fixed for the life of the drive.`,
		Usage: "vdrive init [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("init", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := cli.ExactArgs(args, 0, "vdrive init [flags]"); err != nil {
				return err
			}
			cfg, err := params.Drive.load()
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Drive.Path); err == nil {
				return fmt.Errorf("%s already exists", cfg.Drive.Path)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Drive.Path), 0o755); err != nil {
				return err
			}

			// Overrides are validated like values from the file.
			if params.SectorInfoLength != 0 || params.EntriesSectorLength != 0 {
				if params.SectorInfoLength != 0 {
					cfg.Drive.SectorInfoLength = config.Size(params.SectorInfoLength)
				}
				if params.EntriesSectorLength != 0 {
					cfg.Drive.EntriesSectorLength = config.Size(params.EntriesSectorLength)
				}
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid layout:\n%w", err)
				}
			}

			s, err := openDrive(cfg, "init")
			if err != nil {
				return err
			}
			info, err := s.fs.Info()
			if closeErr := s.fs.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "created %s (%s, sector info %s, entry sectors %s)\n",
				cfg.Drive.Path,
				humanize.IBytes(uint64(info.DriveSize)),
				humanize.IBytes(uint64(info.Parameters.SectorInfoLength)),
				humanize.IBytes(uint64(info.Parameters.EntriesSectorLength)))
			return nil
		},
	}
}

// infoRecord is the machine-readable form of "vdrive info".
type infoRecord struct {
	Path                string `cbor:"path"`
	DriveSize           int64  `cbor:"drive_size"`
	SectorInfoLength    int32  `cbor:"sector_info_length"`
	EntriesSectorLength int32  `cbor:"entries_sector_length"`
	Sectors             int    `cbor:"sectors"`
	EntrySlots          int    `cbor:"entry_slots"`
	ContentBytes        int64  `cbor:"content_bytes"`
	FreeBytes           int64  `cbor:"free_bytes"`
	FreeBlocks          int    `cbor:"free_blocks"`
	Files               int    `cbor:"files"`
	Directories         int    `cbor:"directories"`
	Orphans             int    `cbor:"orphans"`
	Recovery            string `cbor:"recovery"`
}

type infoParams struct {
	Drive  driveFlags
	Format string `flag:"format,f" desc:"output format: text, cbor (binary on stdout) or diag (CBOR diagnostic notation)" default:"text"`
}

func infoCommand() *cli.Command {
	var params infoParams
	return &cli.Command{
		Name:    "info",
		Summary: "Show drive statistics",
		Description: `Show the layout and usage of a drive: sectors, content and free
bytes, entry counts, and how the free list was recovered when the drive
was opened ("trailer" after a clean close, "gaps" after a crash).`,
		Usage: "vdrive info [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("info", &params)
		},
		Run: func(_ context.Context, args []string) error {
			if err := cli.ExactArgs(args, 0, "vdrive info [flags]"); err != nil {
				return err
			}
			switch params.Format {
			case "text", "cbor", "diag":
			default:
				return fmt.Errorf("unknown format %q (want text, cbor or diag)", params.Format)
			}
			return params.Drive.withDrive("info", func(s *session) error {
				info, err := s.fs.Info()
				if err != nil {
					return err
				}
				record := infoRecord{
					Path:                s.config.Drive.Path,
					DriveSize:           info.DriveSize,
					SectorInfoLength:    info.Parameters.SectorInfoLength,
					EntriesSectorLength: info.Parameters.EntriesSectorLength,
					Sectors:             info.Sectors,
					EntrySlots:          info.EntrySlots,
					ContentBytes:        info.ContentBytes,
					FreeBytes:           info.FreeBytes,
					FreeBlocks:          info.FreeBlocks,
					Files:               info.Files,
					Directories:         info.Directories,
					Orphans:             info.Orphans,
					Recovery:            info.Recovery.String(),
				}
				return printInfo(record, params.Format)
			})
		},
	}
}

func printInfo(record infoRecord, format string) error {
	if format != "text" {
		data, err := codec.Marshal(record)
		if err != nil {
			return err
		}
		if format == "cbor" {
			_, err = stdout.Write(data)
			return err
		}
		diagnostic, err := codec.Diagnose(data)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, diagnostic)
		return err
	}

	styles := cli.NewStyles(stdout)
	tw := tabwriter.NewWriter(stdout, 2, 0, 2, ' ', 0)
	rows := []struct{ label, value string }{
		{"Drive", record.Path},
		{"Size", humanize.IBytes(uint64(record.DriveSize))},
		{"Sectors", fmt.Sprintf("%d (descriptor region %s, entry sectors %s)",
			record.Sectors,
			humanize.IBytes(uint64(record.SectorInfoLength)),
			humanize.IBytes(uint64(record.EntriesSectorLength)))},
		{"Content", humanize.IBytes(uint64(record.ContentBytes))},
		{"Free", fmt.Sprintf("%s in %d blocks", humanize.IBytes(uint64(record.FreeBytes)), record.FreeBlocks)},
		{"Files", humanize.Comma(int64(record.Files))},
		{"Directories", humanize.Comma(int64(record.Directories))},
		{"Entry slots", fmt.Sprintf("%d reusable", record.EntrySlots)},
		{"Recovery", record.Recovery},
	}
	if record.Orphans > 0 {
		rows = append(rows, struct{ label, value string }{"Orphans", styles.Error.Render(fmt.Sprintf("%d unreachable entries", record.Orphans))})
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", styles.Label.Render(row.label+":"), row.value)
	}
	return tw.Flush()
}
