// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"context"
	"fmt"
	"io"

	"github.com/bureau-foundation/vdrive/lib/format"
	"github.com/bureau-foundation/vdrive/lib/locker"
	"github.com/bureau-foundation/vdrive/lib/vpath"
	"github.com/bureau-foundation/vdrive/lib/watch"
)

// Progress receives the completed share of a long operation as a
// percentage between 0 and 100. It is called from the goroutine running
// the operation, once per chunk.
type Progress func(percent float64)

func (p Progress) report(done, total float64) {
	if p == nil {
		return
	}
	if total <= 0 {
		p(100)
		return
	}
	p(min(done/total, 1) * 100)
}

// CopyTo copies the file into target under a name free there. A copy
// into the file's own directory is named "Copy <name>"; further
// collisions append " (n)" before the extension. target may belong to
// another drive.
//
// If ctx is cancelled the partial copy is removed and the context's
// cause is returned.
func (f *File) CopyTo(ctx context.Context, target *Directory, progress Progress) (*File, error) {
	if err := f.fs.check(); err != nil {
		return nil, err
	}
	if err := target.fs.check(); err != nil {
		return nil, err
	}

	f.fs.mu.RLock()
	entry, err := f.live()
	var sameDirectory bool
	if err == nil {
		sameDirectory = target.fs == f.fs && entry.ParentID == target.entry.ID
	}
	f.fs.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	copied, err := copyFile(ctx, f.fs, entry, target, func(parent *format.Entry, name string) string {
		return target.fs.uniqueName(parent, name, true, sameDirectory)
	}, func(fraction float64) {
		progress.report(fraction, 1)
	})
	if err != nil {
		return nil, err
	}
	return target.fs.fileOf(copied), nil
}

// MoveTo moves the file into target. Within one drive the entry is
// re-parented without touching its content. Across drives the file is
// copied and the original is left in place.
func (f *File) MoveTo(ctx context.Context, target *Directory, progress Progress) (*File, error) {
	if target.fs != f.fs {
		return f.CopyTo(ctx, target, progress)
	}
	if err := f.fs.check(); err != nil {
		return nil, err
	}
	if err := context.Cause(ctx); err != nil {
		return nil, err
	}
	fs := f.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()
	entry, err := f.live()
	if err != nil {
		return nil, err
	}
	destination, err := target.live()
	if err != nil {
		return nil, err
	}
	if err := fs.reparent(entry, destination); err != nil {
		return nil, err
	}
	progress.report(1, 1)
	return f, nil
}

// CopyTo copies the directory and everything below it into target,
// breadth first. The copy of the top directory gets a free name the way
// File.CopyTo does. Directories are created before the files inside
// them are copied.
//
// Progress is the share of files copied among the files discovered so
// far, so it can move backwards when a large subdirectory is reached.
func (d *Directory) CopyTo(ctx context.Context, target *Directory, progress Progress) (*Directory, error) {
	if err := d.fs.check(); err != nil {
		return nil, err
	}
	if err := target.fs.check(); err != nil {
		return nil, err
	}
	if d.IsRoot() {
		return nil, fmt.Errorf("copying the root directory: %w", ErrInvalidOperation)
	}

	d.fs.mu.RLock()
	source, err := d.live()
	var sameDirectory, within bool
	if err == nil {
		sameDirectory = target.fs == d.fs && source.ParentID == target.entry.ID
		within = target.fs == d.fs && d.fs.index.IsWithin(target.entry, source)
	}
	d.fs.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if within {
		return nil, fmt.Errorf("copying %s into itself: %w", d.Path(), ErrInvalidOperation)
	}

	top, err := target.fs.createIn(target, func(parent *format.Entry) (*format.Entry, error) {
		name := target.fs.uniqueName(parent, source.Name, false, sameDirectory)
		return target.fs.createDirectory(parent, name)
	})
	if err != nil {
		return nil, err
	}
	if err := copyTree(ctx, d.fs, source, target.fs, top, progress); err != nil {
		target.fs.discard(top)
		return nil, err
	}
	return target.fs.directoryOf(top), nil
}

// MoveTo moves the directory into target. Within one drive only the
// directory's own record changes. Across drives the tree is copied and
// the original is left in place.
func (d *Directory) MoveTo(ctx context.Context, target *Directory, progress Progress) (*Directory, error) {
	if target.fs != d.fs {
		return d.CopyTo(ctx, target, progress)
	}
	if err := d.fs.check(); err != nil {
		return nil, err
	}
	if d.IsRoot() {
		return nil, fmt.Errorf("moving the root directory: %w", ErrInvalidOperation)
	}
	if err := context.Cause(ctx); err != nil {
		return nil, err
	}
	fs := d.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()
	entry, err := d.live()
	if err != nil {
		return nil, err
	}
	destination, err := target.live()
	if err != nil {
		return nil, err
	}
	if fs.index.IsWithin(destination, entry) {
		return nil, fmt.Errorf("moving %s into %s: %w", fs.pathOf(entry), fs.pathOf(destination), ErrInvalidOperation)
	}
	if err := fs.reparent(entry, destination); err != nil {
		return nil, err
	}
	progress.report(1, 1)
	return d, nil
}

// reparent moves entry under destination. fs.mu must be held for
// writing.
func (fs *FileSystem) reparent(entry, destination *format.Entry) error {
	if entry.ParentID == destination.ID {
		return nil
	}
	name := entry.FullName()
	if fs.sibling(destination, name, entry) {
		return fmt.Errorf("moving %s into %q: %w", fs.pathOf(entry), fs.pathOf(destination), ErrAlreadyExists)
	}
	release, ok := fs.locker.TryLockWriting(locker.KeyOf(entry))
	if !ok {
		return fmt.Errorf("moving %s: %w", fs.pathOf(entry), ErrAccessDenied)
	}
	defer release()

	previous, _ := fs.index.Parent(entry)
	previousPath := fs.pathOf(entry)
	fs.forget(entry)
	if err := fs.index.Reparent(entry, destination.ID); err != nil {
		return err
	}
	if err := fs.store.UpdateEntry(entry); err != nil {
		if revert := fs.index.Reparent(entry, previous.ID); revert != nil {
			fs.logger.Error("restoring parent after failed move", "id", entry.ID, "error", revert)
		}
		return storeErr(err)
	}
	fs.logger.Debug("entry moved", "kind", entry.Mark, "id", entry.ID, "from", previousPath, "to", fs.pathOf(entry))
	fs.notifyPath(previous, watch.Deleted, entry, previousPath)
	fs.notify(destination, watch.Created, entry)
	if entry.IsDirectory() {
		fs.notify(entry, watch.NameChanged, entry)
	}
	return nil
}

// Copy copies the file or directory at source into the directory at
// target and returns the path of the copy.
func (fs *FileSystem) Copy(ctx context.Context, source, target string, progress Progress) (string, error) {
	destination, err := fs.Directory(target)
	if err != nil {
		return "", err
	}
	if file, err := fs.File(source); err == nil {
		copied, err := file.CopyTo(ctx, destination, progress)
		if err != nil {
			return "", err
		}
		return copied.Path(), nil
	}
	directory, err := fs.Directory(source)
	if err != nil {
		return "", err
	}
	copied, err := directory.CopyTo(ctx, destination, progress)
	if err != nil {
		return "", err
	}
	return copied.Path(), nil
}

// Move moves the file or directory at source into the directory at
// target and returns its new path.
func (fs *FileSystem) Move(ctx context.Context, source, target string, progress Progress) (string, error) {
	destination, err := fs.Directory(target)
	if err != nil {
		return "", err
	}
	if file, err := fs.File(source); err == nil {
		moved, err := file.MoveTo(ctx, destination, progress)
		if err != nil {
			return "", err
		}
		return moved.Path(), nil
	}
	directory, err := fs.Directory(source)
	if err != nil {
		return "", err
	}
	moved, err := directory.MoveTo(ctx, destination, progress)
	if err != nil {
		return "", err
	}
	return moved.Path(), nil
}

// uniqueName returns a name for a new child of parent that collides with
// no sibling. With prefix set the name starts with "Copy ". Collisions
// are resolved by appending " (n)", before the extension for files.
func (fs *FileSystem) uniqueName(parent *format.Entry, name string, isFile, prefix bool) string {
	if prefix {
		name = "Copy " + name
	}
	stem, extension := name, ""
	if isFile {
		stem, extension = vpath.SplitName(name)
	}
	candidate := name
	for n := 1; fs.sibling(parent, candidate, nil); n++ {
		candidate = vpath.JoinName(fmt.Sprintf("%s (%d)", stem, n), extension)
	}
	return candidate
}

// createIn runs create under the write lock with the live entry of
// target.
func (fs *FileSystem) createIn(target *Directory, create func(parent *format.Entry) (*format.Entry, error)) (*format.Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, err := target.live()
	if err != nil {
		return nil, err
	}
	return create(parent)
}

// copyFile copies the content of entry on source into a new file under
// target, named by name. The new file is write-locked until its content
// is complete, and removed if the copy fails.
func copyFile(ctx context.Context, source *FileSystem, entry *format.Entry, target *Directory, name func(parent *format.Entry, name string) string, progress func(fraction float64)) (*format.Entry, error) {
	source.mu.RLock()
	if live, ok := source.index.File(entry.ID); !ok || live != entry {
		source.mu.RUnlock()
		return nil, fmt.Errorf("copying file %d: %w", entry.ID, ErrNotFound)
	}
	readRelease, ok := source.locker.TryLockReading(locker.KeyOf(entry))
	length, fullName, path := entry.Length(), entry.FullName(), source.pathOf(entry)
	source.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("copying %s: %w", path, ErrAccessDenied)
	}
	defer readRelease()

	var writeRelease locker.Release
	created, err := target.fs.createIn(target, func(parent *format.Entry) (*format.Entry, error) {
		created, err := target.fs.createFile(parent, name(parent, fullName))
		if err != nil {
			return nil, err
		}
		writeRelease, _ = target.fs.locker.TryLockWriting(locker.KeyOf(created))
		return created, nil
	})
	if err != nil {
		return nil, err
	}

	err = target.fs.fill(ctx, created, contentReader{fs: source, entry: entry}, length, func(done int64) {
		if progress != nil && length > 0 {
			progress(float64(done) / float64(length))
		}
	})
	writeRelease()
	if err != nil {
		target.fs.discard(created)
		return nil, err
	}
	if length == 0 && progress != nil {
		progress(1)
	}
	return created, nil
}

// copyTree copies the contents of the directory from on source into
// the existing directory to on target.
func copyTree(ctx context.Context, source *FileSystem, from *format.Entry, target *FileSystem, to *format.Entry, progress Progress) error {
	type pair struct{ source, target *format.Entry }
	queue := []pair{{from, to}}
	var seen, processed int

	for len(queue) > 0 {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		current := queue[0]
		queue = queue[1:]

		source.mu.RLock()
		files := source.index.DirectoryFiles(current.source.ID)
		directories := source.index.NestedDirectories(current.source.ID)
		names := make([]string, len(directories))
		for i, directory := range directories {
			names[i] = directory.Name
		}
		source.mu.RUnlock()

		targetDirectory := target.directoryOf(current.target)
		for i, directory := range directories {
			created, err := target.createIn(targetDirectory, func(parent *format.Entry) (*format.Entry, error) {
				return target.createDirectory(parent, names[i])
			})
			if err != nil {
				return err
			}
			queue = append(queue, pair{directory, created})
		}

		seen += len(files)
		for _, file := range files {
			done := processed
			_, err := copyFile(ctx, source, file, targetDirectory, func(_ *format.Entry, name string) string {
				return name
			}, func(fraction float64) {
				progress.report(float64(done)+fraction, float64(seen))
			})
			if err != nil {
				return err
			}
			processed++
			progress.report(float64(processed), float64(seen))
		}
	}
	progress.report(1, 1)
	return nil
}

// fill grows target to length and streams source into it one buffer at
// a time, checking ctx between chunks. The caller holds target's write
// lock.
func (fs *FileSystem) fill(ctx context.Context, target *format.Entry, source io.ReaderAt, length int64, progress func(done int64)) error {
	if length == 0 {
		return nil
	}
	fs.mu.Lock()
	err := fs.store.SetFileLength(target, length)
	fs.mu.Unlock()
	if err != nil {
		return storeErr(err)
	}

	buffer := make([]byte, min(int64(fs.copyBuffer), length))
	for offset := int64(0); offset < length; {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		chunk := buffer[:min(int64(len(buffer)), length-offset)]
		n, err := source.ReadAt(chunk, offset)
		if n < len(chunk) {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("reading source at offset %d: %w", offset, err)
		}
		if err := fs.check(); err != nil {
			return err
		}
		fs.mu.RLock()
		_, err = fs.store.WriteContent(target, chunk, offset)
		fs.mu.RUnlock()
		if err != nil {
			return storeErr(err)
		}
		offset += int64(n)
		if progress != nil {
			progress(offset)
		}
	}
	return nil
}

// discard removes an entry created by an operation that did not
// complete. Failure is logged: the caller is already returning the
// error that caused it.
func (fs *FileSystem) discard(entry *format.Entry) {
	if fs.check() != nil {
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var err error
	if entry.IsFile() {
		if _, ok := fs.index.File(entry.ID); !ok {
			return
		}
		release, ok := fs.locker.TryLockWriting(locker.KeyOf(entry))
		if !ok {
			err = ErrAccessDenied
		} else {
			err = fs.removeFile(entry)
			release()
		}
	} else {
		if _, ok := fs.index.Directory(entry.ID); !ok {
			return
		}
		directories, files := fs.subtree(entry)
		release, ok := fs.locker.TryLockWriting(append(locker.KeysOf(directories...), locker.KeysOf(files...)...)...)
		if !ok {
			err = ErrAccessDenied
		} else {
			err = fs.removeTree(entry, directories, files)
			release()
		}
	}
	if err != nil {
		fs.logger.Warn("removing incomplete copy", "kind", entry.Mark, "id", entry.ID, "error", err)
	}
}

// contentReader adapts a file on a drive to io.ReaderAt.
type contentReader struct {
	fs    *FileSystem
	entry *format.Entry
}

func (r contentReader) ReadAt(p []byte, off int64) (int, error) {
	if err := r.fs.check(); err != nil {
		return 0, err
	}
	r.fs.mu.RLock()
	defer r.fs.mu.RUnlock()
	n, err := r.fs.store.ReadContent(r.entry, p, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, storeErr(err)
}
