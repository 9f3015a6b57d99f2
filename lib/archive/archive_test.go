// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/vdrive/lib/clock"
	"github.com/bureau-foundation/vdrive/lib/device"
	"github.com/bureau-foundation/vdrive/lib/format"
	"github.com/bureau-foundation/vdrive/lib/testutil"
	"github.com/bureau-foundation/vdrive/lib/vfs"
)

var testTimestamp = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openDrive(t *testing.T) *vfs.FileSystem {
	t.Helper()
	fs, err := vfs.OpenDevice(device.NewMemory(), vfs.Options{
		Parameters: format.Parameters{SectorInfoLength: 4096, EntriesSectorLength: 512},
		Clock:      clock.Fake(testTimestamp),
	})
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	t.Cleanup(func() { fs.Close() })
	return fs
}

// populate builds a small tree with text, binary and empty files.
func populate(t *testing.T, fs *vfs.FileSystem) map[string][]byte {
	t.Helper()
	files := map[string][]byte{
		"project/readme.md":         []byte(strings.Repeat("# notes\nsome text that compresses well\n", 200)),
		"project/src/main.go":       []byte("package main\n\nfunc main() {}\n"),
		"project/src/data/blob.bin": testutil.Content(7, 300_000),
		"project/empty.txt":         nil,
	}
	if _, err := fs.CreateDirectory("project/docs/drafts"); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	for path, content := range files {
		if _, err := fs.CreateDirectory(path[:strings.LastIndex(path, "/")]); err != nil {
			t.Fatalf("CreateDirectory for %s: %v", path, err)
		}
		if err := fs.WriteFile(path, content); err != nil {
			t.Fatalf("WriteFile(%s): %v", path, err)
		}
	}
	return files
}

func TestRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd, CompressionAuto} {
		t.Run(compression.String(), func(t *testing.T) {
			source := openDrive(t)
			files := populate(t, source)
			project, err := source.Directory("project")
			if err != nil {
				t.Fatalf("Directory: %v", err)
			}

			var buffer bytes.Buffer
			created, err := Create(context.Background(), &buffer, project, Options{
				Compression: compression,
				ChunkSize:   64 * 1024,
				Clock:       clock.Fake(testTimestamp),
			})
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if created.Files != len(files) || created.Directories != 4 {
				t.Errorf("Create summary = %+v, want %d files and 4 directories", created, len(files))
			}

			target := openDrive(t)
			extracted, err := Extract(context.Background(), bytes.NewReader(buffer.Bytes()), target.Root(), Options{})
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if extracted.Bytes != created.Bytes {
				t.Errorf("extracted %d bytes, archived %d", extracted.Bytes, created.Bytes)
			}
			for path, want := range files {
				got, err := target.ReadFile(path)
				if err != nil {
					t.Fatalf("ReadFile(%s): %v", path, err)
				}
				if !bytes.Equal(got, want) {
					t.Errorf("%s: content differs after round trip", path)
				}
			}
			if !target.Exists("project/docs/drafts") {
				t.Error("empty directory project/docs/drafts was not restored")
			}
		})
	}
}

func TestCompressionShrinksText(t *testing.T) {
	fs := openDrive(t)
	text := []byte(strings.Repeat("the same line of text, again and again\n", 5000))
	if err := fs.WriteFile("log.txt", text); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var buffer bytes.Buffer
	summary, err := Create(context.Background(), &buffer, fs.Root(), Options{Compression: CompressionAuto})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if summary.Stored*4 > summary.Bytes {
		t.Errorf("stored %d of %d bytes, want at least 4x compression", summary.Stored, summary.Bytes)
	}
}

func TestListReportsEntries(t *testing.T) {
	fs := openDrive(t)
	populate(t, fs)
	project, err := fs.Directory("project")
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}

	var buffer bytes.Buffer
	if _, err := Create(context.Background(), &buffer, project, Options{Clock: clock.Fake(testTimestamp)}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	header, entries, err := List(&buffer)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if header.Name != "project" || header.Files != 4 {
		t.Errorf("header = %+v, want name project and 4 files", header)
	}
	if header.Created != testTimestamp.UnixNano() {
		t.Errorf("header.Created = %d, want %d", header.Created, testTimestamp.UnixNano())
	}
	byPath := make(map[string]Entry)
	for _, entry := range entries {
		byPath[entry.Path] = entry
	}
	blob, ok := byPath["src/data/blob.bin"]
	if !ok {
		t.Fatalf("src/data/blob.bin missing from %v", entries)
	}
	if blob.Length != 300_000 || blob.Directory {
		t.Errorf("blob entry = %+v", blob)
	}
	if !blob.Modified.Equal(testTimestamp) {
		t.Errorf("blob.Modified = %v, want %v", blob.Modified, testTimestamp)
	}
	if drafts := byPath["docs/drafts"]; !drafts.Directory {
		t.Errorf("docs/drafts entry = %+v, want a directory", drafts)
	}
}

func TestExtractRenamesAndRefusesCollision(t *testing.T) {
	source := openDrive(t)
	populate(t, source)
	project, err := source.Directory("project")
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}
	var buffer bytes.Buffer
	if _, err := Create(context.Background(), &buffer, project, Options{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	archived := buffer.Bytes()

	target := openDrive(t)
	if _, err := Extract(context.Background(), bytes.NewReader(archived), target.Root(), Options{Name: "restored"}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !target.Exists("restored/src/main.go") {
		t.Error("restored/src/main.go missing")
	}

	_, err = Extract(context.Background(), bytes.NewReader(archived), target.Root(), Options{Name: "RESTORED"})
	if !errors.Is(err, vfs.ErrAlreadyExists) {
		t.Errorf("second Extract: err = %v, want ErrAlreadyExists", err)
	}
}

func TestCorruptArchivesAreRejected(t *testing.T) {
	fs := openDrive(t)
	populate(t, fs)
	project, err := fs.Directory("project")
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}
	var buffer bytes.Buffer
	if _, err := Create(context.Background(), &buffer, project, Options{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	archived := buffer.Bytes()

	flipped := bytes.Clone(archived)
	flipped[len(flipped)/2] ^= 0xff

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not an archive", []byte("plain text")},
		{"truncated", archived[:len(archived)/2]},
		{"flipped byte", flipped},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			target := openDrive(t)
			_, err := Extract(context.Background(), bytes.NewReader(test.data), target.Root(), Options{Name: "out"})
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("Extract: err = %v, want ErrCorrupt", err)
			}
			if target.Exists("out") {
				t.Error("failed extraction left its directory behind")
			}
		})
	}
}

func TestCancelledExtractLeavesNothing(t *testing.T) {
	source := openDrive(t)
	populate(t, source)
	var buffer bytes.Buffer
	if _, err := Create(context.Background(), &buffer, source.Root(), Options{ChunkSize: 4096}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	target := openDrive(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := Extract(ctx, &buffer, target.Root(), Options{
		Progress: func(percent float64) {
			if percent > 10 {
				cancel()
			}
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Extract: err = %v, want context.Canceled", err)
	}
	files, err := target.Root().Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	directories, err := target.Root().Directories()
	if err != nil {
		t.Fatalf("Directories: %v", err)
	}
	if len(files) != 0 || len(directories) != 0 {
		t.Errorf("root holds %d files and %d directories after cancellation", len(files), len(directories))
	}
}
