// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package device

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by Open when another process holds the drive.
var ErrLocked = errors.New("drive is in use by another process")

// File is a drive backed by a host file. Reads use pread and writes use
// pwrite, so the file offset is never shared state. The file grows when
// written past its end and shrinks only through Truncate.
//
// File does no locking of its own: the sequencer is its only caller.
type File struct {
	fd   int
	path string
}

// Open opens or creates the drive at path and takes an exclusive
// advisory lock on it. A second process opening the same drive gets
// ErrLocked instead of silently corrupting it.
func Open(path string) (*File, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening drive %s: %w", path, err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("locking drive %s: %w", path, err)
	}
	return &File{fd: fd, path: path}, nil
}

// Path returns the host path of the drive.
func (f *File) Path() string { return f.path }

// ReadAt reads len(p) bytes at off. A short read at the end of the file
// returns io.EOF with the bytes that were available.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("read at negative offset %d", off)
	}
	total := 0
	for len(p) > 0 {
		read, err := unix.Pread(f.fd, p, off)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return total, fmt.Errorf("pread at offset %d: %w", off, err)
		}
		if read == 0 {
			return total, io.EOF
		}
		total += read
		p = p[read:]
		off += int64(read)
	}
	return total, nil
}

// WriteAt writes len(p) bytes at off, extending the file if needed.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("write at negative offset %d", off)
	}
	total := 0
	for len(p) > 0 {
		written, err := unix.Pwrite(f.fd, p, off)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return total, fmt.Errorf("pwrite at offset %d: %w", off, err)
		}
		total += written
		p = p[written:]
		off += int64(written)
	}
	return total, nil
}

// Size returns the current file size.
func (f *File) Size() (int64, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(f.fd, &stat); err != nil {
		return 0, fmt.Errorf("stating drive %s: %w", f.path, err)
	}
	return stat.Size, nil
}

// Truncate sets the file size.
func (f *File) Truncate(size int64) error {
	if err := unix.Ftruncate(f.fd, size); err != nil {
		return fmt.Errorf("truncating drive %s to %d bytes: %w", f.path, size, err)
	}
	return nil
}

// Sync flushes written data to stable storage.
func (f *File) Sync() error {
	if err := unix.Fsync(f.fd); err != nil {
		return fmt.Errorf("syncing drive %s: %w", f.path, err)
	}
	return nil
}

// Close releases the lock and closes the descriptor.
func (f *File) Close() error {
	var firstErr error
	if err := unix.Flock(f.fd, unix.LOCK_UN); err != nil {
		firstErr = fmt.Errorf("unlocking drive %s: %w", f.path, err)
	}
	if err := unix.Close(f.fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing drive %s: %w", f.path, err)
	}
	f.fd = -1
	return firstErr
}
