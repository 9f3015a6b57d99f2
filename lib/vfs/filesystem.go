// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/vdrive/lib/clock"
	"github.com/bureau-foundation/vdrive/lib/device"
	"github.com/bureau-foundation/vdrive/lib/format"
	"github.com/bureau-foundation/vdrive/lib/index"
	"github.com/bureau-foundation/vdrive/lib/locker"
	"github.com/bureau-foundation/vdrive/lib/namecache"
	"github.com/bureau-foundation/vdrive/lib/rawdata"
	"github.com/bureau-foundation/vdrive/lib/vpath"
	"github.com/bureau-foundation/vdrive/lib/watch"
)

// DefaultCopyBufferSize is the chunk size of copy, import and export
// when Options.CopyBufferSize is zero.
const DefaultCopyBufferSize = 1 << 20

// Options configures Open and OpenDevice.
type Options struct {
	// Parameters lay out a new drive. Existing drives keep their own.
	Parameters format.Parameters

	// CopyBufferSize bounds the memory one copy, import or export
	// holds at a time, and is the granularity at which cancellation
	// and progress are observed.
	CopyBufferSize int

	// WatchBuffer is the channel capacity of each directory watcher.
	WatchBuffer int

	// Clock stamps entry creation and modification times. Nil uses the
	// real clock.
	Clock clock.Clock

	// Logger receives lifecycle records and structural changes at
	// debug level. Nil discards them.
	Logger *slog.Logger
}

// FileSystem is an open drive.
type FileSystem struct {
	store   *rawdata.Store
	index   *index.Index
	locker  *locker.Locker
	watches *watch.Registry

	fileNames      *namecache.Names
	directoryNames *namecache.Names
	files          *namecache.Objects[*File]
	directories    *namecache.Objects[*Directory]

	clock      clock.Clock
	logger     *slog.Logger
	copyBuffer int

	// mu guards entry records and the index against observation
	// mid-mutation: write mode for structural changes and resizes,
	// read mode for lookups and content I/O.
	mu     sync.RWMutex
	closed atomic.Bool
}

// Open opens the drive stored in the host file at path, creating and
// laying out the file if it does not exist. The file is locked against
// other processes until Close.
func Open(path string, options Options) (*FileSystem, error) {
	dev, err := device.Open(path)
	if err != nil {
		return nil, err
	}
	fs, err := OpenDevice(dev, options)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("opening drive %s: %w", path, err)
	}
	return fs, nil
}

// OpenDevice opens a drive over an arbitrary device. On success the
// filesystem owns the device and closes it in Close; on failure the
// caller still owns it.
func OpenDevice(dev rawdata.Device, options Options) (*FileSystem, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := options.Clock
	if now == nil {
		now = clock.Real()
	}
	copyBuffer := options.CopyBufferSize
	if copyBuffer <= 0 {
		copyBuffer = DefaultCopyBufferSize
	}

	store, entries, err := rawdata.Open(dev, rawdata.Options{
		Parameters: options.Parameters,
		Clock:      now,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	idx, err := index.New(entries)
	if err != nil {
		// Nothing is written to a drive that failed validation, and the
		// device goes back to the caller.
		if detachErr := store.Detach(); detachErr != nil {
			logger.Error("detaching drive after index failure", "error", detachErr)
		}
		return nil, err
	}
	for _, orphan := range idx.Orphans() {
		logger.Warn("unreachable entry", "kind", orphan.Mark, "id", orphan.ID, "parent", orphan.ParentID)
	}

	return &FileSystem{
		store:          store,
		index:          idx,
		locker:         locker.New(),
		watches:        watch.New(watch.Options{Buffer: options.WatchBuffer, Logger: logger}),
		fileNames:      namecache.NewNames(),
		directoryNames: namecache.NewNames(),
		files:          namecache.NewObjects[*File](),
		directories:    namecache.NewObjects[*Directory](),
		clock:          now,
		logger:         logger,
		copyBuffer:     copyBuffer,
	}, nil
}

// Close closes every watcher, writes the free-space trailer and closes
// the backing device. Streams still open afterwards fail with
// ErrClosed.
func (fs *FileSystem) Close() error {
	if !fs.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	fs.watches.Close()

	// Wait for in-flight structural changes before the store goes.
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.store.Close()
}

func (fs *FileSystem) check() error {
	if fs.closed.Load() {
		return ErrClosed
	}
	return nil
}

// storeErr maps store-level closure onto the facade's sentinel.
func storeErr(err error) error {
	if errors.Is(err, rawdata.ErrClosed) {
		return ErrClosed
	}
	return err
}

// Info describes an open drive.
type Info struct {
	rawdata.Stats

	Files       int
	Directories int

	// Orphans counts entries whose parent directory is missing. They
	// are unreachable and their space is never reclaimed.
	Orphans int
}

// Info returns drive statistics.
func (fs *FileSystem) Info() (Info, error) {
	if err := fs.check(); err != nil {
		return Info{}, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	stats, err := fs.store.Stats()
	if err != nil {
		return Info{}, storeErr(err)
	}
	files, directories := fs.index.Counts()
	return Info{
		Stats:       stats,
		Files:       files,
		Directories: directories,
		Orphans:     len(fs.index.Orphans()),
	}, nil
}

// Sync flushes the drive to stable storage.
func (fs *FileSystem) Sync() error {
	if err := fs.check(); err != nil {
		return err
	}
	return storeErr(fs.store.Sync())
}

// Root returns the root directory.
func (fs *FileSystem) Root() *Directory {
	return fs.directoryOf(fs.index.Root())
}

// Directory returns the directory at path. The empty path is the root.
func (fs *FileSystem) Directory(path string) (*Directory, error) {
	if err := fs.check(); err != nil {
		return nil, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	entry, err := fs.lookupDirectory(path)
	if err != nil {
		return nil, err
	}
	return fs.directoryOf(entry), nil
}

// File returns the file at path.
func (fs *FileSystem) File(path string) (*File, error) {
	if err := fs.check(); err != nil {
		return nil, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	entry, err := fs.lookupFile(path)
	if err != nil {
		return nil, err
	}
	return fs.fileOf(entry), nil
}

// Exists reports whether path names a file or a directory.
func (fs *FileSystem) Exists(path string) bool {
	if _, err := fs.File(path); err == nil {
		return true
	}
	_, err := fs.Directory(path)
	return err == nil
}

// CreateDirectory creates the directory at path together with any
// missing parents, and returns it. Existing directories along the way
// are reused; a file in the way is ErrAlreadyExists.
func (fs *FileSystem) CreateDirectory(path string) (*Directory, error) {
	if err := fs.check(); err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	current := fs.index.Root()
	for _, segment := range vpath.Split(path) {
		if next, ok := fs.index.ChildDirectory(current.ID, segment); ok {
			current = next
			continue
		}
		created, err := fs.createDirectory(current, segment)
		if err != nil {
			return nil, err
		}
		current = created
	}
	return fs.directoryOf(current), nil
}

// CreateFile creates an empty file at path. The parent directory must
// exist.
func (fs *FileSystem) CreateFile(path string) (*File, error) {
	if err := fs.check(); err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, err := fs.lookupDirectory(vpath.Dir(path))
	if err != nil {
		return nil, err
	}
	entry, err := fs.createFile(parent, vpath.Base(path))
	if err != nil {
		return nil, err
	}
	return fs.fileOf(entry), nil
}

// Remove removes the file or directory at path. Directories are
// removed with everything below them.
func (fs *FileSystem) Remove(path string) error {
	if file, err := fs.File(path); err == nil {
		return file.Remove()
	}
	directory, err := fs.Directory(path)
	if err != nil {
		return err
	}
	return directory.Remove()
}

// Rename gives the file or directory at path a new leaf name.
func (fs *FileSystem) Rename(path, name string) error {
	if file, err := fs.File(path); err == nil {
		return file.Rename(name)
	}
	directory, err := fs.Directory(path)
	if err != nil {
		return err
	}
	return directory.Rename(name)
}

// lookupDirectory resolves path to a directory entry. fs.mu must be
// held.
func (fs *FileSystem) lookupDirectory(path string) (*format.Entry, error) {
	clean := vpath.Clean(path)
	if clean == "" {
		return fs.index.Root(), nil
	}
	if id, ok := fs.directoryNames.ID(clean); ok {
		if entry, ok := fs.index.Directory(id); ok {
			return entry, nil
		}
		fs.directoryNames.Remove(id)
	}
	current := fs.index.Root()
	for _, segment := range vpath.Split(clean) {
		next, ok := fs.index.ChildDirectory(current.ID, segment)
		if !ok {
			return nil, fmt.Errorf("directory %q: %w", clean, ErrNotFound)
		}
		current = next
	}
	fs.directoryNames.Add(current.ID, fs.index.Path(current))
	return current, nil
}

// lookupFile resolves path to a file entry. fs.mu must be held.
func (fs *FileSystem) lookupFile(path string) (*format.Entry, error) {
	clean := vpath.Clean(path)
	if clean == "" {
		return nil, fmt.Errorf("file %q: %w", path, ErrNotFound)
	}
	if id, ok := fs.fileNames.ID(clean); ok {
		if entry, ok := fs.index.File(id); ok {
			return entry, nil
		}
		fs.fileNames.Remove(id)
	}
	parent, err := fs.lookupDirectory(vpath.Dir(clean))
	if err != nil {
		return nil, fmt.Errorf("file %q: %w", clean, ErrNotFound)
	}
	entry, ok := fs.index.ChildFile(parent.ID, vpath.Base(clean))
	if !ok {
		return nil, fmt.Errorf("file %q: %w", clean, ErrNotFound)
	}
	fs.fileNames.Add(entry.ID, fs.index.Path(entry))
	return entry, nil
}

// pathOf returns the canonical path of entry, from the name cache when
// possible. fs.mu must be held.
func (fs *FileSystem) pathOf(entry *format.Entry) string {
	names := fs.directoryNames
	if entry.IsFile() {
		names = fs.fileNames
	}
	if path, ok := names.Path(entry.ID); ok {
		return path
	}
	path := fs.index.Path(entry)
	if path != "" {
		names.Add(entry.ID, path)
	}
	return path
}

// forget drops cached names of entry and, for directories, of every
// entry below it. fs.mu must be held for writing.
func (fs *FileSystem) forget(entry *format.Entry) {
	if entry.IsFile() {
		fs.fileNames.Remove(entry.ID)
		return
	}
	path := fs.index.Path(entry)
	fs.directoryNames.RemoveTree(path)
	fs.fileNames.RemoveTree(path)
}

// sibling reports whether parent already holds a file or directory
// named name other than self.
func (fs *FileSystem) sibling(parent *format.Entry, name string, self *format.Entry) bool {
	if file, ok := fs.index.ChildFile(parent.ID, name); ok && file != self {
		return true
	}
	if directory, ok := fs.index.ChildDirectory(parent.ID, name); ok && directory != self {
		return true
	}
	return false
}

func validateName(name string) error {
	if err := vpath.ValidateName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	return nil
}

// createDirectory adds a directory under parent. fs.mu must be held
// for writing.
func (fs *FileSystem) createDirectory(parent *format.Entry, name string) (*format.Entry, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if fs.sibling(parent, name, nil) {
		return nil, fmt.Errorf("directory %q in %q: %w", name, fs.pathOf(parent), ErrAlreadyExists)
	}
	now := fs.clock.Now()
	entry := &format.Entry{
		Mark:     format.MarkDirectory,
		ID:       fs.index.NewDirectoryID(),
		Name:     name,
		ParentID: parent.ID,
		Created:  now,
		Modified: now,
		Position: -1,
	}
	if err := fs.store.WriteEntry(entry); err != nil {
		return nil, storeErr(err)
	}
	if err := fs.index.Add(entry); err != nil {
		return nil, err
	}
	fs.logger.Debug("directory created", "id", entry.ID, "path", fs.pathOf(entry))
	fs.notify(parent, watch.Created, entry)
	return entry, nil
}

// createFile adds an empty file under parent. fs.mu must be held for
// writing.
func (fs *FileSystem) createFile(parent *format.Entry, fullName string) (*format.Entry, error) {
	if err := validateName(fullName); err != nil {
		return nil, err
	}
	if fs.sibling(parent, fullName, nil) {
		return nil, fmt.Errorf("file %q in %q: %w", fullName, fs.pathOf(parent), ErrAlreadyExists)
	}
	name, extension := vpath.SplitName(fullName)
	now := fs.clock.Now()
	entry := &format.Entry{
		Mark:      format.MarkFile,
		ID:        fs.index.NewFileID(),
		Name:      name,
		Extension: extension,
		ParentID:  parent.ID,
		Created:   now,
		Modified:  now,
		Position:  -1,
	}
	if err := fs.store.WriteEntry(entry); err != nil {
		return nil, storeErr(err)
	}
	if err := fs.index.Add(entry); err != nil {
		return nil, err
	}
	fs.logger.Debug("file created", "id", entry.ID, "path", fs.pathOf(entry))
	fs.notify(parent, watch.Created, entry)
	return entry, nil
}

// removeFile deletes a file whose write lock the caller holds. fs.mu
// must be held for writing.
func (fs *FileSystem) removeFile(entry *format.Entry) error {
	parent, _ := fs.index.Parent(entry)
	path := fs.pathOf(entry)
	if err := fs.store.RemoveEntry(entry); err != nil {
		return storeErr(err)
	}
	fs.forget(entry)
	fs.index.Remove(entry)
	fs.files.Remove(entry.ID)
	fs.logger.Debug("file removed", "id", entry.ID, "path", path)
	if parent != nil {
		fs.notifyPath(parent, watch.Deleted, entry, path)
	}
	return nil
}

// removeTree deletes a directory and everything below it. The caller
// holds write locks on the whole subtree and fs.mu for writing.
func (fs *FileSystem) removeTree(top *format.Entry, directories, files []*format.Entry) error {
	for _, file := range files {
		if err := fs.removeFile(file); err != nil {
			return err
		}
	}
	// Breadth-first order reversed: children before their parents.
	for i := len(directories) - 1; i >= 0; i-- {
		directory := directories[i]
		parent, _ := fs.index.Parent(directory)
		path := fs.pathOf(directory)
		if err := fs.store.RemoveEntry(directory); err != nil {
			return storeErr(err)
		}
		fs.forget(directory)
		fs.index.Remove(directory)
		fs.directories.Remove(directory.ID)
		if parent != nil {
			fs.notifyPath(parent, watch.Deleted, directory, path)
		}
	}
	fs.logger.Debug("directory removed", "id", top.ID, "directories", len(directories), "files", len(files))
	return nil
}

// subtree returns top and every directory below it in breadth-first
// order, and every file below top.
func (fs *FileSystem) subtree(top *format.Entry) (directories, files []*format.Entry) {
	directories = []*format.Entry{top}
	for i := 0; i < len(directories); i++ {
		files = append(files, fs.index.DirectoryFiles(directories[i].ID)...)
		directories = append(directories, fs.index.NestedDirectories(directories[i].ID)...)
	}
	return directories, files
}

func (fs *FileSystem) notify(directory *format.Entry, eventType watch.Type, entry *format.Entry) {
	fs.notifyPath(directory, eventType, entry, fs.pathOf(entry))
}

func (fs *FileSystem) notifyPath(directory *format.Entry, eventType watch.Type, entry *format.Entry, path string) {
	fs.watches.Notify(directory.ID, watch.Event{
		Type:        eventType,
		EntryID:     entry.ID,
		IsDirectory: entry.IsDirectory(),
		Path:        path,
	})
}

func (fs *FileSystem) fileOf(entry *format.Entry) *File {
	return fs.files.Get(entry.ID, func() *File { return &File{fs: fs, entry: entry} })
}

func (fs *FileSystem) directoryOf(entry *format.Entry) *Directory {
	return fs.directories.Get(entry.ID, func() *Directory { return &Directory{fs: fs, entry: entry} })
}
