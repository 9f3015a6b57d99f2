// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"errors"
	"io"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/vdrive/lib/vfs"
)

// Directory and file IDs come from separate sequences, so inode
// numbers interleave them. The root directory (ID 0) lands on 1, the
// number the kernel expects for the mount root.
func directoryIno(id int64) uint64 { return uint64(id)*2 + 1 }
func fileIno(id int64) uint64      { return uint64(id)*2 + 2 }

const (
	directoryMode = 0o755
	fileMode      = 0o644
)

// blockSize is the unit reported for st_blocks and statfs. The drive
// allocates byte-exact blocks; this is only for tools that compute
// disk usage.
const blockSize = 512

func setTimes(attr *fuse.Attr, created, modified time.Time) {
	attr.SetTimes(&modified, &modified, &created)
}

// directoryNode is a drive directory.
type directoryNode struct {
	gofuse.Inode
	options   *Options
	directory *vfs.Directory
}

var (
	_ gofuse.InodeEmbedder = (*directoryNode)(nil)
	_ gofuse.NodeLookuper  = (*directoryNode)(nil)
	_ gofuse.NodeReaddirer = (*directoryNode)(nil)
	_ gofuse.NodeGetattrer = (*directoryNode)(nil)
	_ gofuse.NodeStatfser  = (*directoryNode)(nil)
	_ gofuse.NodeCreater   = (*directoryNode)(nil)
	_ gofuse.NodeMkdirer   = (*directoryNode)(nil)
	_ gofuse.NodeUnlinker  = (*directoryNode)(nil)
	_ gofuse.NodeRmdirer   = (*directoryNode)(nil)
	_ gofuse.NodeRenamer   = (*directoryNode)(nil)
)

func (d *directoryNode) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	d.fill(&out.Attr)
	return 0
}

func (d *directoryNode) fill(attr *fuse.Attr) {
	attr.Mode = syscall.S_IFDIR | directoryMode
	attr.Ino = directoryIno(d.directory.ID())
	attr.Nlink = 2
	setTimes(attr, d.directory.Created(), d.directory.Modified())
}

func (d *directoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	if directory, err := d.directory.Directory(name); err == nil {
		return d.directoryInode(ctx, directory, out), 0
	} else if !errors.Is(err, vfs.ErrNotFound) {
		return nil, errno(err)
	}
	file, err := d.directory.File(name)
	if err != nil {
		return nil, errno(err)
	}
	return d.fileInode(ctx, file, out), 0
}

func (d *directoryNode) directoryInode(ctx context.Context, directory *vfs.Directory, out *fuse.EntryOut) *gofuse.Inode {
	child := &directoryNode{options: d.options, directory: directory}
	child.fill(&out.Attr)
	return d.NewInode(ctx, child, gofuse.StableAttr{
		Mode: syscall.S_IFDIR,
		Ino:  directoryIno(directory.ID()),
	})
}

func (d *directoryNode) fileInode(ctx context.Context, file *vfs.File, out *fuse.EntryOut) *gofuse.Inode {
	child := &fileNode{options: d.options, file: file}
	child.fill(&out.Attr, file.Length())
	return d.NewInode(ctx, child, gofuse.StableAttr{
		Mode: syscall.S_IFREG,
		Ino:  fileIno(file.ID()),
	})
}

func (d *directoryNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	directories, err := d.directory.Directories()
	if err != nil {
		return nil, errno(err)
	}
	files, err := d.directory.Files()
	if err != nil {
		return nil, errno(err)
	}
	entries := make([]fuse.DirEntry, 0, len(directories)+len(files))
	for _, directory := range directories {
		entries = append(entries, fuse.DirEntry{
			Name: directory.Name(),
			Mode: syscall.S_IFDIR,
			Ino:  directoryIno(directory.ID()),
		})
	}
	for _, file := range files {
		entries = append(entries, fuse.DirEntry{
			Name: file.Name(),
			Mode: syscall.S_IFREG,
			Ino:  fileIno(file.ID()),
		})
	}
	return gofuse.NewListDirStream(entries), 0
}

func (d *directoryNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	info, err := d.options.FileSystem.Info()
	if err != nil {
		return errno(err)
	}
	// The drive grows on demand; only the space freed inside it is
	// reported as available.
	out.Bsize = blockSize
	out.Frsize = blockSize
	out.Blocks = uint64(info.DriveSize / blockSize)
	out.Bfree = uint64(info.FreeBytes / blockSize)
	out.Bavail = out.Bfree
	out.Files = uint64(info.Files + info.Directories)
	out.NameLen = 255
	return 0
}

func (d *directoryNode) writable() syscall.Errno {
	if d.options.ReadOnly {
		return syscall.EROFS
	}
	return 0
}

func (d *directoryNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	if status := d.writable(); status != 0 {
		return nil, nil, 0, status
	}
	file, err := d.directory.CreateFile(name)
	if err != nil {
		return nil, nil, 0, errno(err)
	}
	stream, err := file.Open(vfs.ModeOpen, accessOf(flags))
	if err != nil {
		return nil, nil, 0, errno(err)
	}
	d.options.Logger.Debug("file created", "path", file.Path())
	return d.fileInode(ctx, file, out), &handle{stream: stream}, 0, 0
}

func (d *directoryNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	if status := d.writable(); status != 0 {
		return nil, status
	}
	directory, err := d.directory.CreateDirectory(name)
	if err != nil {
		return nil, errno(err)
	}
	return d.directoryInode(ctx, directory, out), 0
}

func (d *directoryNode) Unlink(ctx context.Context, name string) syscall.Errno {
	if status := d.writable(); status != 0 {
		return status
	}
	file, err := d.directory.File(name)
	if err != nil {
		return errno(err)
	}
	return errno(file.Remove())
}

// Rmdir follows POSIX and refuses a non-empty directory, although the
// drive itself removes trees recursively.
func (d *directoryNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	if status := d.writable(); status != 0 {
		return status
	}
	directory, err := d.directory.Directory(name)
	if err != nil {
		return errno(err)
	}
	files, err := directory.Files()
	if err != nil {
		return errno(err)
	}
	nested, err := directory.Directories()
	if err != nil {
		return errno(err)
	}
	if len(files) > 0 || len(nested) > 0 {
		return syscall.ENOTEMPTY
	}
	return errno(directory.Remove())
}

// Rename renames within a directory and moves between directories.
// A file may replace an existing file, as rename(2) allows; any other
// collision is EEXIST.
func (d *directoryNode) Rename(ctx context.Context, name string, newParent gofuse.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	if status := d.writable(); status != 0 {
		return status
	}
	if flags&^uint32(unix.RENAME_NOREPLACE) != 0 {
		return syscall.EINVAL
	}
	target, ok := newParent.(*directoryNode)
	if !ok {
		return syscall.EXDEV
	}

	if directory, err := d.directory.Directory(name); err == nil {
		return errno(relocate(ctx, d, directory.MoveTo, directory.Rename, directory.Name(), target, newName))
	} else if !errors.Is(err, vfs.ErrNotFound) {
		return errno(err)
	}

	file, err := d.directory.File(name)
	if err != nil {
		return errno(err)
	}
	if flags&unix.RENAME_NOREPLACE == 0 {
		if existing, err := target.directory.File(newName); err == nil && existing.ID() != file.ID() {
			if err := existing.Remove(); err != nil {
				return errno(err)
			}
		}
	}
	return errno(relocate(ctx, d, file.MoveTo, file.Rename, file.Name(), target, newName))
}

// relocate reparents when the directory changes, then renames when the
// name does. A change of case alone still goes through rename.
func relocate[T any](ctx context.Context, from *directoryNode, moveTo func(context.Context, *vfs.Directory, vfs.Progress) (T, error), rename func(string) error, current string, target *directoryNode, newName string) error {
	if target.directory.ID() != from.directory.ID() {
		if _, err := moveTo(ctx, target.directory, nil); err != nil {
			return err
		}
	}
	if newName != current {
		return rename(newName)
	}
	return nil
}

// fileNode is a drive file.
type fileNode struct {
	gofuse.Inode
	options *Options
	file    *vfs.File
}

var (
	_ gofuse.InodeEmbedder = (*fileNode)(nil)
	_ gofuse.NodeGetattrer = (*fileNode)(nil)
	_ gofuse.NodeSetattrer = (*fileNode)(nil)
	_ gofuse.NodeOpener    = (*fileNode)(nil)
	_ gofuse.NodeReader    = (*fileNode)(nil)
	_ gofuse.NodeWriter    = (*fileNode)(nil)
	_ gofuse.NodeFsyncer   = (*fileNode)(nil)
)

func (f *fileNode) fill(attr *fuse.Attr, length int64) {
	attr.Mode = syscall.S_IFREG | fileMode
	if f.options.ReadOnly {
		attr.Mode = syscall.S_IFREG | 0o444
	}
	attr.Ino = fileIno(f.file.ID())
	attr.Nlink = 1
	attr.Size = uint64(length)
	attr.Blocks = (uint64(length) + blockSize - 1) / blockSize
	attr.Blksize = blockSize
	setTimes(attr, f.file.Created(), f.file.Modified())
}

func (f *fileNode) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	length := f.file.Length()
	if h, ok := fh.(*handle); ok {
		length = h.stream.Length()
	}
	f.fill(&out.Attr, length)
	return 0
}

// Setattr honours size changes. Mode, owner and time changes are
// accepted and ignored: the drive stores none of them except the
// modification time, which it maintains itself.
func (f *fileNode) Setattr(ctx context.Context, fh gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if f.options.ReadOnly {
			return syscall.EROFS
		}
		var err error
		if h, isHandle := fh.(*handle); isHandle && h.stream.CanWrite() {
			err = h.stream.SetLength(int64(size))
		} else {
			err = f.file.SetLength(int64(size))
		}
		if err != nil {
			return errno(err)
		}
	}
	return f.Getattr(ctx, fh, out)
}

func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	access := accessOf(flags)
	writing := access&vfs.AccessWrite != 0
	if writing && f.options.ReadOnly {
		return nil, 0, syscall.EROFS
	}
	mode := vfs.ModeOpen
	if flags&syscall.O_TRUNC != 0 && writing {
		mode = vfs.ModeTruncate
	}
	stream, err := f.file.Open(mode, access)
	if err != nil {
		f.options.Logger.Debug("open refused", "path", f.file.Path(), "error", err)
		return nil, 0, errno(err)
	}
	return &handle{stream: stream}, 0, 0
}

func (f *fileNode) Read(ctx context.Context, fh gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h, ok := fh.(*handle)
	if !ok {
		return nil, syscall.EBADF
	}
	return h.Read(ctx, dest, off)
}

func (f *fileNode) Write(ctx context.Context, fh gofuse.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	h, ok := fh.(*handle)
	if !ok {
		return 0, syscall.EBADF
	}
	return h.Write(ctx, data, off)
}

func (f *fileNode) Fsync(ctx context.Context, fh gofuse.FileHandle, flags uint32) syscall.Errno {
	return errno(f.options.FileSystem.Sync())
}

func accessOf(flags uint32) vfs.Access {
	switch flags & syscall.O_ACCMODE {
	case syscall.O_WRONLY:
		return vfs.AccessWrite
	case syscall.O_RDWR:
		return vfs.AccessReadWrite
	default:
		return vfs.AccessRead
	}
}

// handle is an open vfs stream. Offsets come from the kernel, so the
// stream's own position is never used.
type handle struct {
	stream *vfs.Stream
}

var (
	_ gofuse.FileReader   = (*handle)(nil)
	_ gofuse.FileWriter   = (*handle)(nil)
	_ gofuse.FileReleaser = (*handle)(nil)
)

func (h *handle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := h.stream.ReadAt(dest, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *handle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := h.stream.WriteAt(data, off)
	if err != nil {
		return uint32(n), errno(err)
	}
	return uint32(n), 0
}

func (h *handle) Release(ctx context.Context) syscall.Errno {
	return errno(h.stream.Close())
}
