// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"

	"github.com/bureau-foundation/vdrive/lib/format"
	"github.com/bureau-foundation/vdrive/lib/locker"
)

// ImportOptions configures ImportDirectory.
type ImportOptions struct {
	// Exclude lists doublestar patterns ("**/*.tmp", "build/**").
	// Patterns with a "/" match the slash-separated path relative to
	// the imported directory; patterns without one match any base
	// name. An excluded directory is skipped with its contents.
	Exclude []string

	Progress Progress
}

// ImportFile copies the host file at hostPath into the directory at
// target, keeping its base name. A sibling with that name is
// ErrAlreadyExists. Cancellation removes the partial file.
func (fs *FileSystem) ImportFile(ctx context.Context, hostPath, target string, progress Progress) (*File, error) {
	if err := fs.check(); err != nil {
		return nil, err
	}
	directory, err := fs.Directory(target)
	if err != nil {
		return nil, err
	}
	entry, err := fs.importFile(ctx, hostPath, directory, filepath.Base(hostPath), func(fraction float64) {
		progress.report(fraction, 1)
	})
	if err != nil {
		return nil, err
	}
	return fs.fileOf(entry), nil
}

func (fs *FileSystem) importFile(ctx context.Context, hostPath string, target *Directory, name string, progress func(fraction float64)) (*format.Entry, error) {
	source, err := os.Open(hostPath)
	if err != nil {
		return nil, err
	}
	defer source.Close()
	info, err := source.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("importing %s: not a regular file: %w", hostPath, ErrInvalidOperation)
	}

	var release locker.Release
	created, err := fs.createIn(target, func(parent *format.Entry) (*format.Entry, error) {
		created, err := fs.createFile(parent, name)
		if err != nil {
			return nil, err
		}
		release, _ = fs.locker.TryLockWriting(locker.KeyOf(created))
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	length := info.Size()
	err = fs.fill(ctx, created, source, length, func(done int64) {
		if progress != nil {
			progress(float64(done) / float64(length))
		}
	})
	release()
	if err != nil {
		fs.discard(created)
		return nil, fmt.Errorf("importing %s: %w", hostPath, err)
	}
	if length == 0 && progress != nil {
		progress(1)
	}
	return created, nil
}

// ImportDirectory copies the host directory at hostPath, with every
// regular file and directory below it, into the directory at target.
// Symbolic links and special files are skipped. The imported top
// directory keeps its base name; a sibling with that name is
// ErrAlreadyExists. On failure or cancellation nothing is left behind.
func (fs *FileSystem) ImportDirectory(ctx context.Context, hostPath, target string, options ImportOptions) (*Directory, error) {
	if err := fs.check(); err != nil {
		return nil, err
	}
	for _, pattern := range options.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("exclude pattern %q: %w", pattern, doublestar.ErrBadPattern)
		}
	}
	root, err := filepath.Abs(hostPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("importing %s: not a directory: %w", hostPath, ErrInvalidOperation)
	}
	directory, err := fs.Directory(target)
	if err != nil {
		return nil, err
	}

	directories, files, err := scanHost(ctx, root, options.Exclude)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", hostPath, err)
	}
	fs.logger.Debug("importing directory", "host", root, "directories", len(directories), "files", len(files))

	top, err := fs.createIn(directory, func(parent *format.Entry) (*format.Entry, error) {
		return fs.createDirectory(parent, filepath.Base(root))
	})
	if err != nil {
		return nil, err
	}
	if err := fs.importTree(ctx, root, top, directories, files, options.Progress); err != nil {
		fs.discard(top)
		return nil, err
	}
	return fs.directoryOf(top), nil
}

func (fs *FileSystem) importTree(ctx context.Context, root string, top *format.Entry, directories, files []string, progress Progress) error {
	created := map[string]*format.Entry{".": top}
	for _, relative := range directories {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		parent := fs.directoryOf(created[path.Dir(relative)])
		entry, err := fs.createIn(parent, func(parent *format.Entry) (*format.Entry, error) {
			return fs.createDirectory(parent, path.Base(relative))
		})
		if err != nil {
			return err
		}
		created[relative] = entry
	}
	for i, relative := range files {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		parent := fs.directoryOf(created[path.Dir(relative)])
		_, err := fs.importFile(ctx, filepath.Join(root, filepath.FromSlash(relative)), parent, path.Base(relative), func(fraction float64) {
			progress.report(float64(i)+fraction, float64(len(files)))
		})
		if err != nil {
			return err
		}
		progress.report(float64(i+1), float64(len(files)))
	}
	if len(files) == 0 {
		progress.report(1, 1)
	}
	return nil
}

// scanHost lists the directories and regular files below root as
// sorted slash-separated relative paths. Parents sort before their
// children.
func scanHost(ctx context.Context, root string, exclude []string) (directories, files []string, err error) {
	var mu sync.Mutex
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(hostPath string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := context.Cause(ctx); err != nil {
			return err
		}
		if hostPath == root {
			return nil
		}
		relative, err := filepath.Rel(root, hostPath)
		if err != nil {
			return err
		}
		relative = filepath.ToSlash(relative)
		if excluded(relative, exclude) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		switch {
		case entry.IsDir():
			directories = append(directories, relative)
		case entry.Type().IsRegular():
			files = append(files, relative)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	slices.Sort(directories)
	slices.Sort(files)
	return directories, files, nil
}

func excluded(relative string, patterns []string) bool {
	for _, pattern := range patterns {
		subject := relative
		if !strings.Contains(pattern, "/") {
			subject = path.Base(relative)
		}
		if matched, _ := doublestar.Match(pattern, subject); matched {
			return true
		}
	}
	return false
}

// ImportFrom copies the file or directory at sourcePath on another
// drive into the directory at target, and returns the new path. It is
// CopyTo across drives.
func (fs *FileSystem) ImportFrom(ctx context.Context, source *FileSystem, sourcePath, target string, progress Progress) (string, error) {
	destination, err := fs.Directory(target)
	if err != nil {
		return "", err
	}
	if file, err := source.File(sourcePath); err == nil {
		copied, err := file.CopyTo(ctx, destination, progress)
		if err != nil {
			return "", err
		}
		return copied.Path(), nil
	}
	directory, err := source.Directory(sourcePath)
	if err != nil {
		return "", err
	}
	copied, err := directory.CopyTo(ctx, destination, progress)
	if err != nil {
		return "", err
	}
	return copied.Path(), nil
}

// ExportFile writes the file at source into the host directory hostDir
// under the same name and returns the host path. An existing host file
// is not overwritten. Cancellation removes the partial host file.
func (fs *FileSystem) ExportFile(ctx context.Context, source, hostDir string, progress Progress) (string, error) {
	file, err := fs.File(source)
	if err != nil {
		return "", err
	}
	hostPath := filepath.Join(hostDir, file.Name())
	if err := fs.exportFile(ctx, file, hostPath, func(fraction float64) {
		progress.report(fraction, 1)
	}); err != nil {
		return "", err
	}
	return hostPath, nil
}

func (fs *FileSystem) exportFile(ctx context.Context, file *File, hostPath string, progress func(fraction float64)) error {
	stream, err := file.Open(ModeOpen, AccessRead)
	if err != nil {
		return err
	}
	defer stream.Close()
	out, err := os.OpenFile(hostPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	err = copyOut(ctx, out, stream, fs.copyBuffer, progress)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if removeErr := os.Remove(hostPath); removeErr != nil {
			fs.logger.Warn("removing incomplete export", "path", hostPath, "error", removeErr)
		}
		return fmt.Errorf("exporting %s: %w", file.Path(), err)
	}
	modified := file.Modified()
	return os.Chtimes(hostPath, modified, modified)
}

func copyOut(ctx context.Context, out io.Writer, stream *Stream, bufferSize int, progress func(fraction float64)) error {
	length := stream.Length()
	buffer := make([]byte, min(int64(bufferSize), max(length, 1)))
	for offset := int64(0); offset < length; {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		chunk := buffer[:min(int64(len(buffer)), length-offset)]
		n, err := stream.ReadAt(chunk, offset)
		if err != nil && !(errors.Is(err, io.EOF) && n == len(chunk)) {
			return err
		}
		if _, err := out.Write(chunk[:n]); err != nil {
			return err
		}
		offset += int64(n)
		if progress != nil {
			progress(float64(offset) / float64(length))
		}
	}
	if length == 0 && progress != nil {
		progress(1)
	}
	return nil
}

// ExportDirectory writes the directory at source with everything below
// it into the host directory hostDir and returns the host path of the
// top directory. The root directory exports its contents into hostDir
// itself. Existing host entries are not overwritten.
func (fs *FileSystem) ExportDirectory(ctx context.Context, source, hostDir string, progress Progress) (string, error) {
	top, err := fs.Directory(source)
	if err != nil {
		return "", err
	}
	hostTop := hostDir
	if !top.IsRoot() {
		hostTop = filepath.Join(hostDir, top.Name())
		if err := os.Mkdir(hostTop, 0o755); err != nil {
			return "", err
		}
	}

	type pair struct {
		directory *Directory
		host      string
	}
	queue := []pair{{top, hostTop}}
	var seen, processed int
	for len(queue) > 0 {
		if err := context.Cause(ctx); err != nil {
			fs.abandonExport(top, hostTop)
			return "", err
		}
		current := queue[0]
		queue = queue[1:]

		directories, err := current.directory.Directories()
		if err != nil {
			fs.abandonExport(top, hostTop)
			return "", err
		}
		for _, directory := range directories {
			hostPath := filepath.Join(current.host, directory.Name())
			if err := os.Mkdir(hostPath, 0o755); err != nil {
				fs.abandonExport(top, hostTop)
				return "", err
			}
			queue = append(queue, pair{directory, hostPath})
		}

		files, err := current.directory.Files()
		if err != nil {
			fs.abandonExport(top, hostTop)
			return "", err
		}
		seen += len(files)
		for _, file := range files {
			done := processed
			err := fs.exportFile(ctx, file, filepath.Join(current.host, file.Name()), func(fraction float64) {
				progress.report(float64(done)+fraction, float64(seen))
			})
			if err != nil {
				fs.abandonExport(top, hostTop)
				return "", err
			}
			processed++
			progress.report(float64(processed), float64(seen))
		}
	}
	if seen == 0 {
		progress.report(1, 1)
	}
	return hostTop, nil
}

// abandonExport removes the host tree of a failed directory export.
// A root export wrote into a directory it did not create, so that is
// left alone.
func (fs *FileSystem) abandonExport(top *Directory, hostTop string) {
	if top.IsRoot() {
		return
	}
	if err := os.RemoveAll(hostTop); err != nil {
		fs.logger.Warn("removing incomplete export", "path", hostTop, "error", err)
	}
}
