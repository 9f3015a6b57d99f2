// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"syscall"
	"testing"
	"time"

	"github.com/bureau-foundation/vdrive/lib/clock"
	"github.com/bureau-foundation/vdrive/lib/device"
	"github.com/bureau-foundation/vdrive/lib/format"
	"github.com/bureau-foundation/vdrive/lib/rawdata"
	"github.com/bureau-foundation/vdrive/lib/vfs"
)

var testTimestamp = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fuseAvailable checks whether /dev/fuse is accessible. Tests that
// need a real FUSE mount call this and skip if the device is absent.
func fuseAvailable(t *testing.T) {
	t.Helper()
	_, err := os.Stat("/dev/fuse")
	if err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
}

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

// testMount mounts a fresh in-memory drive and returns the mountpoint
// and the drive. The mount is unmounted when the test ends, before
// the drive is closed.
func testMount(t *testing.T, readOnly bool) (string, *vfs.FileSystem) {
	t.Helper()
	fuseAvailable(t)

	fs := openDrive(t)
	mountpoint := filepath.Join(t.TempDir(), "mount")
	server, err := Mount(Options{
		Mountpoint: mountpoint,
		FileSystem: fs,
		ReadOnly:   readOnly,
	})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
	})
	return mountpoint, fs
}

func TestErrno(t *testing.T) {
	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{fmt.Errorf("docs/a.txt: %w", vfs.ErrNotFound), syscall.ENOENT},
		{vfs.ErrAlreadyExists, syscall.EEXIST},
		{vfs.ErrInvalidName, syscall.EINVAL},
		{vfs.ErrAccessDenied, syscall.EBUSY},
		{vfs.ErrInvalidOperation, syscall.EPERM},
		{fmt.Errorf("growing: %w", rawdata.ErrDriveFull), syscall.ENOSPC},
		{vfs.ErrClosed, syscall.ENXIO},
		{errors.New("disk on fire"), syscall.EIO},
	}
	for _, test := range tests {
		if got := errno(test.err); got != test.want {
			t.Errorf("errno(%v) = %v, want %v", test.err, got, test.want)
		}
	}
}

func TestAccessOf(t *testing.T) {
	tests := []struct {
		flags uint32
		want  vfs.Access
	}{
		{syscall.O_RDONLY, vfs.AccessRead},
		{syscall.O_WRONLY | syscall.O_TRUNC, vfs.AccessWrite},
		{syscall.O_RDWR | syscall.O_APPEND, vfs.AccessReadWrite},
	}
	for _, test := range tests {
		if got := accessOf(test.flags); got != test.want {
			t.Errorf("accessOf(%#o) = %v, want %v", test.flags, got, test.want)
		}
	}
}

func TestInodeNumbersDoNotCollide(t *testing.T) {
	if directoryIno(format.RootID) != 1 {
		t.Errorf("root inode = %d, want 1", directoryIno(format.RootID))
	}
	seen := make(map[uint64]bool)
	for id := int64(0); id < 64; id++ {
		for _, ino := range []uint64{directoryIno(id), fileIno(id)} {
			if seen[ino] {
				t.Fatalf("inode %d assigned twice", ino)
			}
			seen[ino] = true
		}
	}
}

func TestMountReadsDriveContent(t *testing.T) {
	mountpoint, fs := testMount(t, false)

	if _, err := fs.CreateDirectory("docs/reports"); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	content := []byte("quarterly numbers")
	if err := fs.WriteFile("docs/reports/q1.txt", content); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(mountpoint, "docs", "reports", "q1.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("got %q, want %q", got, content)
	}

	entries, err := os.ReadDir(filepath.Join(mountpoint, "docs"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "reports" || !entries[0].IsDir() {
		t.Errorf("ReadDir(docs) = %v, want [reports/]", entries)
	}

	info, err := os.Stat(filepath.Join(mountpoint, "docs", "reports", "q1.txt"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != int64(len(content)) {
		t.Errorf("Size = %d, want %d", info.Size(), len(content))
	}
	if !info.ModTime().Equal(testTimestamp) {
		t.Errorf("ModTime = %v, want %v", info.ModTime(), testTimestamp)
	}
}

func TestMountWritesReachDrive(t *testing.T) {
	mountpoint, fs := testMount(t, false)

	if err := os.MkdirAll(filepath.Join(mountpoint, "a", "b"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(mountpoint, "a", "b", "notes.md")
	if err := os.WriteFile(path, []byte("first draft"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Truncate(path, 5); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	data, err := fs.ReadFile("a/b/notes.md")
	if err != nil {
		t.Fatalf("vfs ReadFile: %v", err)
	}
	if string(data) != "first" {
		t.Errorf("drive content = %q, want %q", data, "first")
	}

	if err := os.Rename(path, filepath.Join(mountpoint, "a", "final.md")); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if fs.Exists("a/b/notes.md") || !fs.Exists("a/final.md") {
		t.Error("rename across directories did not move the file on the drive")
	}

	if err := os.Remove(filepath.Join(mountpoint, "a")); !errors.Is(err, syscall.ENOTEMPTY) {
		t.Errorf("Remove non-empty directory: err = %v, want ENOTEMPTY", err)
	}
	if err := os.RemoveAll(filepath.Join(mountpoint, "a")); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	root, err := fs.Root().Directories()
	if err != nil {
		t.Fatalf("Directories: %v", err)
	}
	if len(root) != 0 {
		t.Errorf("root still has %d directories", len(root))
	}
}

func TestMountWriterExcludesOthers(t *testing.T) {
	mountpoint, fs := testMount(t, false)
	if err := fs.WriteFile("locked.bin", []byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	path := filepath.Join(mountpoint, "locked.bin")

	writer, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open for writing: %v", err)
	}
	defer writer.Close()

	if _, err := os.Open(path); !errors.Is(err, syscall.EBUSY) {
		t.Errorf("open for reading while a writer is open: err = %v, want EBUSY", err)
	}
}

func TestMountReadOnly(t *testing.T) {
	mountpoint, fs := testMount(t, true)
	if err := fs.WriteFile("kept.txt", []byte("x")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	err := os.WriteFile(filepath.Join(mountpoint, "new.txt"), []byte("y"), 0o644)
	if !errors.Is(err, syscall.EROFS) {
		t.Errorf("create on read-only mount: err = %v, want EROFS", err)
	}
	if err := os.Remove(filepath.Join(mountpoint, "kept.txt")); !errors.Is(err, syscall.EROFS) {
		t.Errorf("remove on read-only mount: err = %v, want EROFS", err)
	}

	entries, err := os.ReadDir(mountpoint)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	if !slices.Equal(names, []string{"kept.txt"}) {
		t.Errorf("names = %v, want [kept.txt]", names)
	}
}
