// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bureau-foundation/vdrive/lib/format"
	"github.com/bureau-foundation/vdrive/lib/locker"
	"github.com/bureau-foundation/vdrive/lib/vpath"
	"github.com/bureau-foundation/vdrive/lib/watch"
)

// Mode says how OpenFile treats an existing or missing file.
type Mode int

const (
	// ModeOpen opens an existing file.
	ModeOpen Mode = iota + 1
	// ModeCreate creates the file, truncating it if it exists.
	ModeCreate
	// ModeCreateNew creates the file and fails if it exists.
	ModeCreateNew
	// ModeTruncate opens an existing file and truncates it.
	ModeTruncate
	// ModeAppend opens or creates the file positioned at its end.
	// Write access only.
	ModeAppend
	// ModeOpenOrCreate opens the file, creating it if missing.
	ModeOpenOrCreate
)

func (m Mode) String() string {
	switch m {
	case ModeOpen:
		return "open"
	case ModeCreate:
		return "create"
	case ModeCreateNew:
		return "create-new"
	case ModeTruncate:
		return "truncate"
	case ModeAppend:
		return "append"
	case ModeOpenOrCreate:
		return "open-or-create"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// creates reports whether the mode creates missing files.
func (m Mode) creates() bool {
	return m == ModeCreate || m == ModeCreateNew || m == ModeAppend || m == ModeOpenOrCreate
}

// Access selects the directions a stream may transfer.
type Access int

const (
	AccessRead Access = 1 << iota
	AccessWrite

	AccessReadWrite = AccessRead | AccessWrite
)

func (a Access) canRead() bool  { return a&AccessRead != 0 }
func (a Access) canWrite() bool { return a&AccessWrite != 0 }

func validateOpen(mode Mode, access Access) error {
	if access&^AccessReadWrite != 0 || access == 0 {
		return fmt.Errorf("access %d: %w", int(access), ErrInvalidOperation)
	}
	switch mode {
	case ModeOpen, ModeOpenOrCreate:
		return nil
	case ModeCreate, ModeCreateNew, ModeTruncate:
		if !access.canWrite() {
			return fmt.Errorf("mode %s needs write access: %w", mode, ErrInvalidOperation)
		}
		return nil
	case ModeAppend:
		if access != AccessWrite {
			return fmt.Errorf("mode %s allows write access only: %w", mode, ErrInvalidOperation)
		}
		return nil
	default:
		return fmt.Errorf("%s: %w", mode, ErrInvalidOperation)
	}
}

// OpenFile opens the file at path. The parent directory must exist for
// modes that create.
func (fs *FileSystem) OpenFile(path string, mode Mode, access Access) (*Stream, error) {
	if err := fs.check(); err != nil {
		return nil, err
	}
	if err := validateOpen(mode, access); err != nil {
		return nil, err
	}
	file, err := fs.File(path)
	switch {
	case err == nil:
		if mode == ModeCreateNew {
			return nil, fmt.Errorf("%s: %w", vpath.Clean(path), ErrAlreadyExists)
		}
	case errors.Is(err, ErrNotFound) && mode.creates():
		file, err = fs.CreateFile(path)
		if err != nil {
			return nil, err
		}
		// The file is new, so there is nothing to refuse.
		if mode == ModeCreateNew {
			mode = ModeCreate
		}
	default:
		return nil, err
	}
	return file.Open(mode, access)
}

// Open opens a stream on the file. ModeCreateNew fails since the file
// exists.
//
// A stream with write access holds the file exclusively and keeps its
// ancestors from being renamed, moved or removed until Close. A
// read-only stream shares the file with other readers. Either fails
// with ErrAccessDenied when the other kind is open.
func (f *File) Open(mode Mode, access Access) (*Stream, error) {
	if err := f.fs.check(); err != nil {
		return nil, err
	}
	if err := validateOpen(mode, access); err != nil {
		return nil, err
	}
	if mode == ModeCreateNew {
		return nil, fmt.Errorf("%s: %w", f.Path(), ErrAlreadyExists)
	}

	fs := f.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()
	entry, err := f.live()
	if err != nil {
		return nil, err
	}

	key := locker.KeyOf(entry)
	var release locker.Release
	if access.canWrite() {
		write, ok := fs.locker.TryLockWriting(key)
		if !ok {
			return nil, fmt.Errorf("opening %s for writing: %w", fs.pathOf(entry), ErrAccessDenied)
		}
		release = locker.Chain(
			write,
			fs.locker.LockReading(key),
			fs.locker.LockWriting(locker.KeysOf(fs.index.Ancestors(entry)...)...),
		)
	} else {
		read, ok := fs.locker.TryLockReading(key)
		if !ok {
			return nil, fmt.Errorf("opening %s for reading: %w", fs.pathOf(entry), ErrAccessDenied)
		}
		release = read
	}

	stream := &Stream{fs: fs, file: f, entry: entry, access: access, release: release}
	switch mode {
	case ModeCreate, ModeTruncate:
		if entry.Length() > 0 {
			if err := fs.resize(entry, 0); err != nil {
				release()
				return nil, err
			}
		}
	case ModeAppend:
		stream.position = entry.Length()
	}
	fs.logger.Debug("stream opened", "path", fs.pathOf(entry), "mode", mode, "write", access.canWrite())
	return stream, nil
}

// Stream reads and writes the content of one file. Its methods are
// safe for concurrent use; Read, Write and Seek share one position.
type Stream struct {
	fs      *FileSystem
	file    *File
	entry   *format.Entry
	access  Access
	release locker.Release

	mu       sync.Mutex
	position int64
	dirty    bool
	closed   bool
}

// File returns the file the stream is open on.
func (s *Stream) File() *File { return s.file }

// CanRead reports whether the stream was opened with read access.
func (s *Stream) CanRead() bool { return s.access.canRead() }

// CanWrite reports whether the stream was opened with write access.
func (s *Stream) CanWrite() bool { return s.access.canWrite() }

func (s *Stream) checkLocked(write bool) error {
	if s.closed {
		return fmt.Errorf("stream on %s: %w", s.file.entry.FullName(), ErrClosed)
	}
	if err := s.fs.check(); err != nil {
		return err
	}
	if write && !s.access.canWrite() {
		return fmt.Errorf("stream is read-only: %w", ErrInvalidOperation)
	}
	if !write && !s.access.canRead() {
		return fmt.Errorf("stream is write-only: %w", ErrInvalidOperation)
	}
	return nil
}

// Length returns the current file length.
func (s *Stream) Length() int64 {
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()
	return s.entry.Length()
}

// Position returns the offset the next Read or Write starts at.
func (s *Stream) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(false); err != nil {
		return 0, err
	}
	n, err := s.readAt(p, s.position)
	s.position += int64(n)
	return n, err
}

// ReadAt implements io.ReaderAt: unlike Read it returns io.EOF with any
// short read.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	if err := s.checkLocked(false); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.mu.Unlock()
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d: %w", off, ErrInvalidOperation)
	}
	n, err := s.readAt(p, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (s *Stream) readAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()
	n, err := s.fs.store.ReadContent(s.entry, p, off)
	return n, storeErr(err)
}

// Write implements io.Writer. Writing past the end grows the file;
// writing after a Seek past the end leaves a zero-filled gap.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(true); err != nil {
		return 0, err
	}
	n, err := s.writeAt(p, s.position)
	s.position += int64(n)
	return n, err
}

// WriteAt implements io.WriterAt.
func (s *Stream) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(true); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d: %w", off, ErrInvalidOperation)
	}
	return s.writeAt(p, off)
}

// writeAt must be called with s.mu held.
func (s *Stream) writeAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	end := off + int64(len(p))
	s.fs.mu.Lock()
	if end > s.entry.Length() {
		if err := s.fs.store.SetFileLength(s.entry, end); err != nil {
			s.fs.mu.Unlock()
			return 0, storeErr(err)
		}
	}
	s.fs.mu.Unlock()
	s.dirty = true

	s.fs.mu.RLock()
	defer s.fs.mu.RUnlock()
	n, err := s.fs.store.WriteContent(s.entry, p, off)
	return n, storeErr(err)
}

// Seek implements io.Seeker. Seeking past the end is allowed; seeking
// before the start is not.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = s.position
	case io.SeekEnd:
		base = s.Length()
	default:
		return 0, fmt.Errorf("whence %d: %w", whence, ErrInvalidOperation)
	}
	target := base + offset
	if target < 0 {
		return 0, fmt.Errorf("seek to %d: %w", target, ErrInvalidOperation)
	}
	s.position = target
	return target, nil
}

// SetLength truncates or extends the file. The position is left as is.
func (s *Stream) SetLength(length int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(true); err != nil {
		return err
	}
	if length < 0 {
		return fmt.Errorf("negative length %d: %w", length, ErrInvalidOperation)
	}
	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()
	if err := s.fs.store.SetFileLength(s.entry, length); err != nil {
		return storeErr(err)
	}
	s.dirty = true
	return nil
}

// Close releases the stream's locks. If the stream wrote anything the
// file's modification time is updated and watchers of its directory
// receive Updated. Close is safe to call more than once.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.release()
	if !s.dirty || s.fs.check() != nil {
		return nil
	}

	s.fs.mu.Lock()
	defer s.fs.mu.Unlock()
	if _, err := s.file.live(); err != nil {
		return nil
	}
	previous := s.entry.Modified
	s.entry.Modified = s.fs.clock.Now()
	if err := s.fs.store.UpdateEntry(s.entry); err != nil {
		s.entry.Modified = previous
		return storeErr(err)
	}
	if parent, ok := s.fs.index.Parent(s.entry); ok {
		s.fs.notify(parent, watch.Updated, s.entry)
	}
	return nil
}

// ReadFile returns the whole content of the file at path.
func (fs *FileSystem) ReadFile(path string) ([]byte, error) {
	stream, err := fs.OpenFile(path, ModeOpen, AccessRead)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	data := make([]byte, stream.Length())
	if _, err := io.ReadFull(stream, data); err != nil {
		return nil, fmt.Errorf("reading %s: %w", vpath.Clean(path), err)
	}
	return data, nil
}

// WriteFile replaces the content of the file at path with data,
// creating the file if needed.
func (fs *FileSystem) WriteFile(path string, data []byte) error {
	stream, err := fs.OpenFile(path, ModeCreate, AccessWrite)
	if err != nil {
		return err
	}
	if _, err := stream.Write(data); err != nil {
		stream.Close()
		return fmt.Errorf("writing %s: %w", vpath.Clean(path), err)
	}
	return stream.Close()
}
