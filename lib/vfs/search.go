// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"regexp"

	"github.com/bureau-foundation/vdrive/lib/format"
	"github.com/bureau-foundation/vdrive/lib/vpath"
)

// FindFiles returns the files in d whose name (extension included)
// matches pattern, searching every directory below d when recursive is
// set. "*" matches any run of characters and "?" any single one;
// matching ignores case. The order of the results is unspecified.
func (d *Directory) FindFiles(pattern string, recursive bool) ([]*File, error) {
	matcher, err := vpath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	var found []*File
	err = d.walk(recursive, func(directory *format.Entry) {
		for _, file := range d.fs.index.DirectoryFiles(directory.ID) {
			if matcher.MatchString(file.FullName()) {
				found = append(found, d.fs.fileOf(file))
			}
		}
	})
	return found, err
}

// FindDirectories returns the directories below d whose name matches
// pattern, with FindFiles' pattern rules. d itself is never included.
func (d *Directory) FindDirectories(pattern string, recursive bool) ([]*Directory, error) {
	matcher, err := vpath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	var found []*Directory
	err = d.walk(recursive, func(directory *format.Entry) {
		found = appendMatching(found, d.fs, matcher, d.fs.index.NestedDirectories(directory.ID))
	})
	return found, err
}

func appendMatching(found []*Directory, fs *FileSystem, matcher *regexp.Regexp, candidates []*format.Entry) []*Directory {
	for _, candidate := range candidates {
		if matcher.MatchString(candidate.Name) {
			found = append(found, fs.directoryOf(candidate))
		}
	}
	return found
}

// walk visits d and, when recursive, every directory below it, under
// the read lock.
func (d *Directory) walk(recursive bool, visit func(*format.Entry)) error {
	if err := d.fs.check(); err != nil {
		return err
	}
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	entry, err := d.live()
	if err != nil {
		return err
	}
	queue := []*format.Entry{entry}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visit(current)
		if recursive {
			queue = append(queue, d.fs.index.NestedDirectories(current.ID)...)
		}
	}
	return nil
}

// FindFiles searches the directory at path; see Directory.FindFiles.
func (fs *FileSystem) FindFiles(path, pattern string, recursive bool) ([]*File, error) {
	directory, err := fs.Directory(path)
	if err != nil {
		return nil, err
	}
	return directory.FindFiles(pattern, recursive)
}

// FindDirectories searches the directory at path; see
// Directory.FindDirectories.
func (fs *FileSystem) FindDirectories(path, pattern string, recursive bool) ([]*Directory, error) {
	directory, err := fs.Directory(path)
	if err != nil {
		return nil, err
	}
	return directory.FindDirectories(pattern, recursive)
}
