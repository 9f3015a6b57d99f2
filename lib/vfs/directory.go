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

// Directory is a directory on a drive. Like File, its accessors keep
// reporting the last known state after removal.
type Directory struct {
	fs    *FileSystem
	entry *format.Entry
}

func (d *Directory) live() (*format.Entry, error) {
	entry, ok := d.fs.index.Directory(d.entry.ID)
	if !ok || entry != d.entry {
		return nil, fmt.Errorf("directory %d (%s): %w", d.entry.ID, d.entry.Name, ErrNotFound)
	}
	return entry, nil
}

// FileSystem returns the drive holding the directory.
func (d *Directory) FileSystem() *FileSystem { return d.fs }

// ID returns the directory id. The root is format.RootID.
func (d *Directory) ID() int64 { return d.entry.ID }

// IsRoot reports whether d is the root directory.
func (d *Directory) IsRoot() bool { return d.entry.ID == format.RootID }

// Name returns the leaf name. The root's name is empty.
func (d *Directory) Name() string {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	return d.entry.Name
}

// Path returns the path from the root ("" for the root itself).
func (d *Directory) Path() string {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	return d.fs.pathOf(d.entry)
}

// Parent returns the enclosing directory, or nil for the root.
func (d *Directory) Parent() *Directory {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	parent, ok := d.fs.index.Parent(d.entry)
	if !ok {
		return nil
	}
	return d.fs.directoryOf(parent)
}

// Created returns the creation time.
func (d *Directory) Created() time.Time {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	return d.entry.Created
}

// Modified returns the time of the last rename.
func (d *Directory) Modified() time.Time {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	return d.entry.Modified
}

// Files returns the files directly inside d, in creation order.
func (d *Directory) Files() ([]*File, error) {
	if err := d.fs.check(); err != nil {
		return nil, err
	}
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	entry, err := d.live()
	if err != nil {
		return nil, err
	}
	children := d.fs.index.DirectoryFiles(entry.ID)
	files := make([]*File, len(children))
	for i, child := range children {
		files[i] = d.fs.fileOf(child)
	}
	return files, nil
}

// Directories returns the directories directly inside d, in creation
// order.
func (d *Directory) Directories() ([]*Directory, error) {
	if err := d.fs.check(); err != nil {
		return nil, err
	}
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	entry, err := d.live()
	if err != nil {
		return nil, err
	}
	children := d.fs.index.NestedDirectories(entry.ID)
	directories := make([]*Directory, len(children))
	for i, child := range children {
		directories[i] = d.fs.directoryOf(child)
	}
	return directories, nil
}

// File returns the file named name directly inside d.
func (d *Directory) File(name string) (*File, error) {
	if err := d.fs.check(); err != nil {
		return nil, err
	}
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	entry, err := d.live()
	if err != nil {
		return nil, err
	}
	child, ok := d.fs.index.ChildFile(entry.ID, name)
	if !ok {
		return nil, fmt.Errorf("file %q in %q: %w", name, d.fs.pathOf(entry), ErrNotFound)
	}
	return d.fs.fileOf(child), nil
}

// Directory returns the directory named name directly inside d.
func (d *Directory) Directory(name string) (*Directory, error) {
	if err := d.fs.check(); err != nil {
		return nil, err
	}
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	entry, err := d.live()
	if err != nil {
		return nil, err
	}
	child, ok := d.fs.index.ChildDirectory(entry.ID, name)
	if !ok {
		return nil, fmt.Errorf("directory %q in %q: %w", name, d.fs.pathOf(entry), ErrNotFound)
	}
	return d.fs.directoryOf(child), nil
}

// CreateDirectory creates a directory named name inside d.
func (d *Directory) CreateDirectory(name string) (*Directory, error) {
	if err := d.fs.check(); err != nil {
		return nil, err
	}
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	entry, err := d.live()
	if err != nil {
		return nil, err
	}
	created, err := d.fs.createDirectory(entry, name)
	if err != nil {
		return nil, err
	}
	return d.fs.directoryOf(created), nil
}

// CreateFile creates an empty file named name inside d. The extension
// is everything after the first dot that is not the leading character.
func (d *Directory) CreateFile(name string) (*File, error) {
	if err := d.fs.check(); err != nil {
		return nil, err
	}
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	entry, err := d.live()
	if err != nil {
		return nil, err
	}
	created, err := d.fs.createFile(entry, name)
	if err != nil {
		return nil, err
	}
	return d.fs.fileOf(created), nil
}

// Rename changes the leaf name of the directory. The root cannot be
// renamed.
func (d *Directory) Rename(name string) error {
	if err := d.fs.check(); err != nil {
		return err
	}
	if d.IsRoot() {
		return fmt.Errorf("renaming the root directory: %w", ErrInvalidOperation)
	}
	if err := validateName(name); err != nil {
		return err
	}
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	entry, err := d.live()
	if err != nil {
		return err
	}
	parent, _ := d.fs.index.Parent(entry)
	if d.fs.sibling(parent, name, entry) {
		return fmt.Errorf("renaming %s to %q: %w", d.fs.pathOf(entry), name, ErrAlreadyExists)
	}
	release, ok := d.fs.locker.TryLockWriting(locker.KeyOf(entry))
	if !ok {
		return fmt.Errorf("renaming %s: %w", d.fs.pathOf(entry), ErrAccessDenied)
	}
	defer release()

	d.fs.forget(entry)
	previousName, previousModified := entry.Name, entry.Modified
	entry.Name = name
	entry.Modified = d.fs.clock.Now()
	if err := d.fs.store.UpdateEntry(entry); err != nil {
		entry.Name, entry.Modified = previousName, previousModified
		return storeErr(err)
	}
	d.fs.logger.Debug("directory renamed", "id", entry.ID, "name", name)
	d.fs.notify(entry, watch.NameChanged, entry)
	d.fs.notify(parent, watch.Updated, entry)
	return nil
}

// Remove deletes the directory with every file and directory below it.
// Nothing is removed if any entry in the subtree is locked.
func (d *Directory) Remove() error {
	if err := d.fs.check(); err != nil {
		return err
	}
	if d.IsRoot() {
		return fmt.Errorf("removing the root directory: %w", ErrInvalidOperation)
	}
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	entry, err := d.live()
	if err != nil {
		return err
	}
	directories, files := d.fs.subtree(entry)
	keys := append(locker.KeysOf(directories...), locker.KeysOf(files...)...)
	release, ok := d.fs.locker.TryLockWriting(keys...)
	if !ok {
		return fmt.Errorf("removing %s: %w", d.fs.pathOf(entry), ErrAccessDenied)
	}
	defer release()
	return d.fs.removeTree(entry, directories, files)
}

// Watch opens a watcher on d. Events arrive for files and directories
// created in, updated in or deleted from d, and NameChanged when d
// itself is renamed or moved. The caller must Close the watcher.
func (d *Directory) Watch() (*watch.Watcher, error) {
	if err := d.fs.check(); err != nil {
		return nil, err
	}
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	entry, err := d.live()
	if err != nil {
		return nil, err
	}
	return d.fs.watches.Watch(entry.ID)
}

func (d *Directory) String() string {
	if d.IsRoot() {
		return vpath.Separator
	}
	return d.Path()
}
