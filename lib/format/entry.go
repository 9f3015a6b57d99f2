// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"encoding/binary"
	"fmt"
	"time"
)

// RootID is the id of the root directory. Its parent is NoParent.
const (
	RootID   int64 = 0
	NoParent int64 = -1
)

// Common record sizes, counted after the length prefix.
const (
	commonFixedLength    = 1 + 8 + 4 + 8 + 8 // mark, id, nameLen, created, modified
	directoryFixedLength = commonFixedLength + 8
	fileFixedLength      = commonFixedLength + 4 + 8 + 4 // extLen, parentId, blockCount
	blockRecordLength    = 8 + 4
)

// MinEntrySlotLength is the smallest full record (prefix included) that
// any live entry can have: a directory with a one-byte name. Reclaimed
// entry-table slots shorter than this can never be reused and are not
// tracked. Recompute it if the record layout changes.
const MinEntrySlotLength = 4 + directoryFixedLength + 1

// Block is a contiguous byte range of a content sector.
type Block struct {
	Position int64
	Length   int64
}

// End returns the first byte past the block.
func (b Block) End() int64 { return b.Position + b.Length }

// Overlaps reports whether two blocks share at least one byte.
func (b Block) Overlaps(other Block) bool {
	return b.Position < other.End() && other.Position < b.End()
}

// Entry is the decoded form of an entry record. Mark is MarkFile or
// MarkDirectory; Extension and Blocks are only meaningful for files.
type Entry struct {
	Mark      Mark
	ID        int64
	Name      string
	Extension string
	ParentID  int64
	Created   time.Time
	Modified  time.Time
	Blocks    []Block

	// Position is the offset of the record's length prefix in the drive,
	// or -1 when the entry has not been written.
	Position int64

	// Stored is the full on-disk size of the record at Position,
	// length prefix included. Erasing reclaims exactly this many bytes
	// even if the in-memory entry has changed since it was written.
	Stored int64
}

// IsFile reports whether the entry describes a file.
func (e *Entry) IsFile() bool { return e.Mark == MarkFile }

// IsDirectory reports whether the entry describes a directory.
func (e *Entry) IsDirectory() bool { return e.Mark == MarkDirectory }

// Length returns the file length: the sum of its block lengths.
func (e *Entry) Length() int64 {
	var total int64
	for _, block := range e.Blocks {
		total += block.Length
	}
	return total
}

// FullName returns the leaf name as shown in paths: name.extension for
// files with an extension, the bare name otherwise.
func (e *Entry) FullName() string {
	if e.IsFile() && e.Extension != "" {
		return e.Name + "." + e.Extension
	}
	return e.Name
}

// EncodedLength returns the full record size, length prefix included.
func (e *Entry) EncodedLength() int64 {
	switch e.Mark {
	case MarkDirectory:
		return int64(4 + directoryFixedLength + len(e.Name))
	default:
		return int64(4 + fileFixedLength + len(e.Name) + len(e.Extension) + blockRecordLength*len(e.Blocks))
	}
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	clone := *e
	clone.Blocks = append([]Block(nil), e.Blocks...)
	return &clone
}

// AppendEntry appends the full record (length prefix included).
func AppendEntry(dst []byte, e *Entry) ([]byte, error) {
	if e.Mark != MarkFile && e.Mark != MarkDirectory {
		return dst, fmt.Errorf("entry %d has mark %s", e.ID, e.Mark)
	}
	total := e.EncodedLength()
	dst = binary.LittleEndian.AppendUint32(dst, uint32(total-4))
	dst = append(dst, byte(e.Mark))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(e.ID))
	dst = appendString(dst, e.Name)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(e.Created.UnixNano()))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(e.Modified.UnixNano()))
	if e.Mark == MarkDirectory {
		return binary.LittleEndian.AppendUint64(dst, uint64(e.ParentID)), nil
	}
	dst = appendString(dst, e.Extension)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(e.ParentID))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(e.Blocks)))
	for _, block := range e.Blocks {
		if block.Length <= 0 || block.Length > MaxBlockLength {
			return dst, fmt.Errorf("entry %d has block of length %d", e.ID, block.Length)
		}
		dst = binary.LittleEndian.AppendUint64(dst, uint64(block.Position))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(block.Length))
	}
	return dst, nil
}

func appendString(dst []byte, s string) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

// DecodeEntry decodes a record body (the bytes after the length prefix)
// that was read at position. The mark must be MarkFile or MarkDirectory;
// callers filter MarkProceed records before decoding.
func DecodeEntry(body []byte, position int64) (*Entry, error) {
	d := decoder{data: body}
	e := &Entry{
		Mark:     Mark(d.byte()),
		ID:       d.int64(),
		Name:     d.string(),
		Created:  d.time(),
		Modified: d.time(),
		Position: position,
		Stored:   int64(len(body)) + 4,
	}
	switch e.Mark {
	case MarkDirectory:
		e.ParentID = d.int64()
	case MarkFile:
		e.Extension = d.string()
		e.ParentID = d.int64()
		count := d.int32()
		if count < 0 || int(count) > len(body)/blockRecordLength {
			return nil, fmt.Errorf("%w: entry at %d has %d blocks", ErrCorrupt, position, count)
		}
		if count > 0 {
			e.Blocks = make([]Block, count)
		}
		for i := range e.Blocks {
			e.Blocks[i] = Block{Position: d.int64(), Length: int64(d.int32())}
			if e.Blocks[i].Length <= 0 {
				return nil, fmt.Errorf("%w: entry at %d has block of length %d", ErrCorrupt, position, e.Blocks[i].Length)
			}
		}
	default:
		return nil, fmt.Errorf("%w: entry at %d has mark %s", ErrCorrupt, position, e.Mark)
	}
	if d.err != nil {
		return nil, fmt.Errorf("%w: entry at %d: %v", ErrCorrupt, position, d.err)
	}
	return e, nil
}

// decoder reads little-endian fields and remembers the first overrun.
type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.data) {
		d.err = fmt.Errorf("record truncated at byte %d (need %d more)", d.off, n)
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) byte() byte {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) int32() int32 {
	if b := d.take(4); b != nil {
		return int32(binary.LittleEndian.Uint32(b))
	}
	return 0
}

func (d *decoder) int64() int64 {
	if b := d.take(8); b != nil {
		return int64(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (d *decoder) string() string {
	n := d.int32()
	if b := d.take(int(n)); b != nil {
		return string(b)
	}
	return ""
}

func (d *decoder) time() time.Time {
	return time.Unix(0, d.int64()).UTC()
}
