// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/vdrive/lib/format"
	"github.com/bureau-foundation/vdrive/lib/locker"
	"github.com/bureau-foundation/vdrive/lib/vpath"
	"github.com/bureau-foundation/vdrive/lib/watch"
)

// File is a file on a drive. Accessors report the last known state
// and keep working after the file is removed; operations on a removed
// file fail with ErrNotFound.
type File struct {
	fs    *FileSystem
	entry *format.Entry
}

// live returns the entry if the file still exists. fs.mu must be held.
func (f *File) live() (*format.Entry, error) {
	entry, ok := f.fs.index.File(f.entry.ID)
	if !ok || entry != f.entry {
		return nil, fmt.Errorf("file %d (%s): %w", f.entry.ID, f.entry.FullName(), ErrNotFound)
	}
	return entry, nil
}

// FileSystem returns the drive holding the file.
func (f *File) FileSystem() *FileSystem { return f.fs }

// ID returns the file id, unique among the drive's files.
func (f *File) ID() int64 { return f.entry.ID }

// Name returns the leaf name including the extension.
func (f *File) Name() string {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()
	return f.entry.FullName()
}

// Extension returns the part of the name after its first dot, if any.
func (f *File) Extension() string {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()
	return f.entry.Extension
}

// Path returns the path of the file from the root.
func (f *File) Path() string {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()
	return f.fs.pathOf(f.entry)
}

// Parent returns the directory holding the file, or nil once the file
// is gone.
func (f *File) Parent() *Directory {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()
	parent, ok := f.fs.index.Parent(f.entry)
	if !ok {
		return nil
	}
	return f.fs.directoryOf(parent)
}

// Created returns the creation time.
func (f *File) Created() time.Time {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()
	return f.entry.Created
}

// Modified returns the time of the last rename or content change.
func (f *File) Modified() time.Time {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()
	return f.entry.Modified
}

// Length returns the file length in bytes.
func (f *File) Length() int64 {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()
	return f.entry.Length()
}

// Blocks returns the content blocks of the file in file order.
func (f *File) Blocks() []format.Block {
	f.fs.mu.RLock()
	defer f.fs.mu.RUnlock()
	return append([]format.Block(nil), f.entry.Blocks...)
}

// SetLength truncates or extends the file. Bytes added by extension
// read as zero. It fails with ErrAccessDenied while any stream is open
// on the file.
func (f *File) SetLength(length int64) error {
	if err := f.fs.check(); err != nil {
		return err
	}
	if length < 0 {
		return fmt.Errorf("negative length %d: %w", length, ErrInvalidOperation)
	}
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	entry, err := f.live()
	if err != nil {
		return err
	}
	release, ok := f.fs.locker.TryLockWriting(locker.KeyOf(entry))
	if !ok {
		return fmt.Errorf("resizing %s: %w", f.fs.pathOf(entry), ErrAccessDenied)
	}
	defer release()
	return f.fs.resize(entry, length)
}

// resize sets the length of a file and stamps it modified. fs.mu must
// be held for writing.
func (fs *FileSystem) resize(entry *format.Entry, length int64) error {
	previous := entry.Modified
	entry.Modified = fs.clock.Now()
	if err := fs.store.SetFileLength(entry, length); err != nil {
		entry.Modified = previous
		return storeErr(err)
	}
	if parent, ok := fs.index.Parent(entry); ok {
		fs.notify(parent, watch.Updated, entry)
	}
	return nil
}

// Rename changes the leaf name of the file, extension included. The
// file stays in its directory.
func (f *File) Rename(name string) error {
	if err := f.fs.check(); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	entry, err := f.live()
	if err != nil {
		return err
	}
	parent, _ := f.fs.index.Parent(entry)
	if f.fs.sibling(parent, name, entry) {
		return fmt.Errorf("renaming %s to %q: %w", f.fs.pathOf(entry), name, ErrAlreadyExists)
	}
	release, ok := f.fs.locker.TryLockWriting(locker.KeyOf(entry))
	if !ok {
		return fmt.Errorf("renaming %s: %w", f.fs.pathOf(entry), ErrAccessDenied)
	}
	defer release()

	f.fs.forget(entry)
	previousName, previousExtension, previousModified := entry.Name, entry.Extension, entry.Modified
	entry.Name, entry.Extension = vpath.SplitName(name)
	entry.Modified = f.fs.clock.Now()
	if err := f.fs.store.UpdateEntry(entry); err != nil {
		entry.Name, entry.Extension, entry.Modified = previousName, previousExtension, previousModified
		return storeErr(err)
	}
	f.fs.logger.Debug("file renamed", "id", entry.ID, "name", name)
	f.fs.notify(parent, watch.Updated, entry)
	return nil
}

// Remove deletes the file and releases its content blocks.
func (f *File) Remove() error {
	if err := f.fs.check(); err != nil {
		return err
	}
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	entry, err := f.live()
	if err != nil {
		return err
	}
	release, ok := f.fs.locker.TryLockWriting(locker.KeyOf(entry))
	if !ok {
		return fmt.Errorf("removing %s: %w", f.fs.pathOf(entry), ErrAccessDenied)
	}
	defer release()
	return f.fs.removeFile(entry)
}

func (f *File) String() string { return f.Path() }
