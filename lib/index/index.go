// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package index holds the in-memory structure of an open drive: every
// live file and directory entry by id, and the children of every
// directory. It is built once from the entries replayed at open and
// kept current by the filesystem as entries are created, moved and
// removed.
//
// Files and directories have separate id spaces. Ids are handed out in
// strictly increasing order per kind and never reused while the drive
// is open.
//
// The index stores the *format.Entry pointers it is given. Callers that
// mutate an entry's ParentID must do it through Reparent so the child
// buckets stay consistent.
package index

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/bureau-foundation/vdrive/lib/format"
)

// Index maps ids to entries and directories to their children.
type Index struct {
	mu sync.RWMutex

	files       map[int64]*format.Entry
	directories map[int64]*format.Entry

	directoryFiles    map[int64]map[int64]*format.Entry
	nestedDirectories map[int64]map[int64]*format.Entry

	nextFileID      int64
	nextDirectoryID int64
}

// New builds an index from the entries read from a drive. The root
// directory must be present and ids must be unique per kind.
func New(entries []*format.Entry) (*Index, error) {
	x := &Index{
		files:             make(map[int64]*format.Entry),
		directories:       make(map[int64]*format.Entry),
		directoryFiles:    make(map[int64]map[int64]*format.Entry),
		nestedDirectories: make(map[int64]map[int64]*format.Entry),
		nextDirectoryID:   format.RootID + 1,
	}
	for _, entry := range entries {
		if err := x.add(entry); err != nil {
			return nil, fmt.Errorf("%w: %v", format.ErrCorrupt, err)
		}
	}
	root, ok := x.directories[format.RootID]
	if !ok {
		return nil, fmt.Errorf("%w: drive has no root directory", format.ErrCorrupt)
	}
	if root.ParentID != format.NoParent {
		return nil, fmt.Errorf("%w: root directory has parent %d", format.ErrCorrupt, root.ParentID)
	}
	return x, nil
}

func (x *Index) add(entry *format.Entry) error {
	switch {
	case entry.IsFile():
		if _, exists := x.files[entry.ID]; exists {
			return fmt.Errorf("duplicate file id %d", entry.ID)
		}
		x.files[entry.ID] = entry
		insert(x.directoryFiles, entry)
		x.nextFileID = max(x.nextFileID, entry.ID+1)
	case entry.IsDirectory():
		if _, exists := x.directories[entry.ID]; exists {
			return fmt.Errorf("duplicate directory id %d", entry.ID)
		}
		x.directories[entry.ID] = entry
		if entry.ID != format.RootID {
			insert(x.nestedDirectories, entry)
		}
		x.nextDirectoryID = max(x.nextDirectoryID, entry.ID+1)
	default:
		return fmt.Errorf("entry %d has mark %s", entry.ID, entry.Mark)
	}
	return nil
}

func insert(buckets map[int64]map[int64]*format.Entry, entry *format.Entry) {
	bucket := buckets[entry.ParentID]
	if bucket == nil {
		bucket = make(map[int64]*format.Entry)
		buckets[entry.ParentID] = bucket
	}
	bucket[entry.ID] = entry
}

func remove(buckets map[int64]map[int64]*format.Entry, entry *format.Entry) {
	bucket := buckets[entry.ParentID]
	delete(bucket, entry.ID)
	if len(bucket) == 0 {
		delete(buckets, entry.ParentID)
	}
}

// NewFileID returns the next unused file id.
func (x *Index) NewFileID() int64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	id := x.nextFileID
	x.nextFileID++
	return id
}

// NewDirectoryID returns the next unused directory id.
func (x *Index) NewDirectoryID() int64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	id := x.nextDirectoryID
	x.nextDirectoryID++
	return id
}

// Add registers a new entry under its ParentID.
func (x *Index) Add(entry *format.Entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if entry.IsFile() || entry.ID != format.RootID {
		if _, ok := x.directories[entry.ParentID]; !ok {
			return fmt.Errorf("parent directory %d of %s %d does not exist", entry.ParentID, entry.Mark, entry.ID)
		}
	}
	return x.add(entry)
}

// Remove forgets an entry. Removing a directory does not remove its
// children; callers remove them first.
func (x *Index) Remove(entry *format.Entry) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if entry.IsFile() {
		delete(x.files, entry.ID)
		remove(x.directoryFiles, entry)
		return
	}
	delete(x.directories, entry.ID)
	remove(x.nestedDirectories, entry)
}

// Reparent moves entry under the directory parentID and updates
// entry.ParentID.
func (x *Index) Reparent(entry *format.Entry, parentID int64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.directories[parentID]; !ok {
		return fmt.Errorf("target directory %d does not exist", parentID)
	}
	buckets := x.nestedDirectories
	if entry.IsFile() {
		buckets = x.directoryFiles
	}
	remove(buckets, entry)
	entry.ParentID = parentID
	insert(buckets, entry)
	return nil
}

// File returns the file with the given id.
func (x *Index) File(id int64) (*format.Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	entry, ok := x.files[id]
	return entry, ok
}

// Directory returns the directory with the given id.
func (x *Index) Directory(id int64) (*format.Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	entry, ok := x.directories[id]
	return entry, ok
}

// Root returns the root directory.
func (x *Index) Root() *format.Entry {
	root, _ := x.Directory(format.RootID)
	return root
}

// Parent returns the directory containing entry. The root has none.
func (x *Index) Parent(entry *format.Entry) (*format.Entry, bool) {
	if entry.ParentID == format.NoParent {
		return nil, false
	}
	return x.Directory(entry.ParentID)
}

// DirectoryFiles returns the files directly inside a directory, in id
// order.
func (x *Index) DirectoryFiles(parentID int64) []*format.Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sorted(x.directoryFiles[parentID])
}

// NestedDirectories returns the directories directly inside a
// directory, in id order.
func (x *Index) NestedDirectories(parentID int64) []*format.Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sorted(x.nestedDirectories[parentID])
}

func sorted(bucket map[int64]*format.Entry) []*format.Entry {
	entries := make([]*format.Entry, 0, len(bucket))
	for _, entry := range bucket {
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b *format.Entry) int { return cmp.Compare(a.ID, b.ID) })
	return entries
}

// ChildFile finds a file in a directory by its full name (name and
// extension), ignoring case.
func (x *Index) ChildFile(parentID int64, fullName string) (*format.Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, entry := range x.directoryFiles[parentID] {
		if strings.EqualFold(entry.FullName(), fullName) {
			return entry, true
		}
	}
	return nil, false
}

// ChildDirectory finds a directory in a directory by name, ignoring
// case.
func (x *Index) ChildDirectory(parentID int64, name string) (*format.Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, entry := range x.nestedDirectories[parentID] {
		if strings.EqualFold(entry.Name, name) {
			return entry, true
		}
	}
	return nil, false
}

// Ancestors returns the directories above entry, nearest first, ending
// with the root. The root itself has no ancestors.
func (x *Index) Ancestors(entry *format.Entry) []*format.Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var chain []*format.Entry
	for parentID := entry.ParentID; parentID != format.NoParent; {
		parent, ok := x.directories[parentID]
		if !ok || len(chain) > len(x.directories) {
			break
		}
		chain = append(chain, parent)
		parentID = parent.ParentID
	}
	return chain
}

// Path returns the cleaned path of entry from the root ("" for the
// root).
func (x *Index) Path(entry *format.Entry) string {
	if entry.IsDirectory() && entry.ID == format.RootID {
		return ""
	}
	ancestors := x.Ancestors(entry)
	segments := make([]string, 0, len(ancestors)+1)
	for i := len(ancestors) - 1; i >= 0; i-- {
		if ancestors[i].ID != format.RootID {
			segments = append(segments, ancestors[i].Name)
		}
	}
	segments = append(segments, entry.FullName())
	return strings.Join(segments, "/")
}

// IsWithin reports whether entry is directory or lies below it.
func (x *Index) IsWithin(entry, directory *format.Entry) bool {
	if entry.IsDirectory() && entry.ID == directory.ID {
		return true
	}
	for _, ancestor := range x.Ancestors(entry) {
		if ancestor.ID == directory.ID {
			return true
		}
	}
	return false
}

// Counts returns the number of live files and directories, the root
// included.
func (x *Index) Counts() (files, directories int) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.files), len(x.directories)
}

// Orphans returns entries whose parent directory does not exist. A
// drive that crashed in the middle of a recursive delete can hold them;
// they are unreachable by path.
func (x *Index) Orphans() []*format.Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var orphans []*format.Entry
	for parentID, bucket := range x.directoryFiles {
		if _, ok := x.directories[parentID]; !ok {
			orphans = append(orphans, sorted(bucket)...)
		}
	}
	for parentID, bucket := range x.nestedDirectories {
		if _, ok := x.directories[parentID]; !ok {
			orphans = append(orphans, sorted(bucket)...)
		}
	}
	return orphans
}
