// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rawdata

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/bureau-foundation/vdrive/lib/format"
)

// zeroChunk bounds the buffer used to clear reused content blocks.
const zeroChunk = 64 << 10

// setFileLength resizes the block list of e and rewrites its record.
// The new block list is built on a copy: blocks released by a shrink
// are only freed once the new record is on disk, and blocks acquired by
// a grow are given back when the record cannot be written, so a failure
// leaves e and its record as they were.
func (s *Store) setFileLength(e *format.Entry, length int64) error {
	if !e.IsFile() {
		return fmt.Errorf("entry %d is not a file", e.ID)
	}

	current := e.Length()
	blocks := slices.Clone(e.Blocks)
	var released, acquired []format.Block
	switch {
	case length < current:
		blocks, released = cutBlocks(blocks, length)
	case length > current:
		var err error
		blocks, acquired, err = s.allocate(blocks, length-current)
		if err != nil {
			return errors.Join(err, s.giveBack(acquired))
		}
	}

	previous := e.Blocks
	e.Blocks = blocks
	if err := s.rewriteEntry(e); err != nil {
		e.Blocks = previous
		return errors.Join(err, s.giveBack(acquired))
	}
	for _, block := range released {
		s.free.add(block)
	}
	if length == 0 && len(released) > 0 {
		return s.shrink()
	}
	return nil
}

// cutBlocks splits blocks into the prefix holding the first length bytes
// and the released remainder. blocks must not be shared: the block
// straddling length is replaced in place.
func cutBlocks(blocks []format.Block, length int64) (kept, released []format.Block) {
	var total int64
	for index, block := range blocks {
		if total+block.Length <= length {
			total += block.Length
			continue
		}
		keep := length - total
		kept = blocks[:index]
		if keep > 0 {
			released = append(released, format.Block{Position: block.Position + keep, Length: block.Length - keep})
			kept = append(kept, format.Block{Position: block.Position, Length: keep})
		} else {
			released = append(released, block)
		}
		released = append(released, blocks[index+1:]...)
		if len(kept) == 0 {
			kept = nil
		}
		return kept, released
	}
	return blocks, nil
}

// allocate appends need bytes of blocks to blocks and returns the
// extended list together with every block it took. Blocks come from the
// free list where possible and from the tail of the current content
// sector otherwise. Reused space is cleared so new bytes read as zero.
// On error the blocks taken so far are still returned for giveBack.
func (s *Store) allocate(blocks []format.Block, need int64) ([]format.Block, []format.Block, error) {
	size, err := s.device.Size()
	if err != nil {
		return blocks, nil, err
	}
	content := s.sectors.content()
	grew := false
	var acquired []format.Block
	for need > 0 {
		chunk := min(need, int64(format.MaxBlockLength))
		block, ok := s.free.take(chunk)
		if !ok {
			block = format.Block{Position: content.End(), Length: chunk}
			content.Length += chunk
			grew = true
		}
		acquired = append(acquired, block)
		if err := s.zero(block, size); err != nil {
			return blocks, acquired, err
		}
		blocks = appendBlock(blocks, block)
		need -= chunk
	}
	if grew {
		if err := s.patchContentLength(); err != nil {
			return blocks, acquired, err
		}
	}
	return blocks, acquired, nil
}

// giveBack returns blocks taken by an operation that did not complete to
// the free list, and hands any that end the current content sector back
// to the host.
func (s *Store) giveBack(blocks []format.Block) error {
	if len(blocks) == 0 {
		return nil
	}
	for _, block := range blocks {
		s.free.add(block)
	}
	return s.shrink()
}

// appendBlock adds block to the end of blocks, merging it into the last
// block when the two are contiguous.
func appendBlock(blocks []format.Block, block format.Block) []format.Block {
	if n := len(blocks); n > 0 {
		last := &blocks[n-1]
		if last.End() == block.Position && last.Length+block.Length <= format.MaxBlockLength {
			last.Length += block.Length
			return blocks
		}
	}
	return append(blocks, block)
}

// zero clears the part of block that lies below the physical size of the
// device. Bytes past it already read as zero.
func (s *Store) zero(block format.Block, size int64) error {
	end := min(block.End(), size)
	if block.Position >= end {
		return nil
	}
	buffer := make([]byte, min(end-block.Position, zeroChunk))
	for position := block.Position; position < end; {
		n := min(end-position, int64(len(buffer)))
		if err := s.writeAt(buffer[:n], position); err != nil {
			return fmt.Errorf("clearing block at %d: %w", position, err)
		}
		position += n
	}
	return nil
}

// shrink hands free blocks at the end of the current content sector back
// to the host filesystem.
func (s *Store) shrink() error {
	content := s.sectors.content()
	released := int64(0)
	for {
		block, ok := s.free.takeEndingAt(content.Start, content.End())
		if !ok {
			break
		}
		content.Length -= block.Length
		released += block.Length
	}
	if released == 0 {
		return nil
	}
	if err := s.patchContentLength(); err != nil {
		return err
	}
	if err := s.device.Truncate(content.End()); err != nil {
		return fmt.Errorf("truncating drive to %d: %w", content.End(), err)
	}
	s.logger.Debug("content sector shrunk", "released", released, "end", content.End())
	return nil
}

// spans calls fn for each contiguous piece of the byte range [off,
// off+n) of e, with the piece's drive position and its offset within the
// range.
func spans(e *format.Entry, off, n int64, fn func(position, at, length int64) error) error {
	var base int64
	for _, block := range e.Blocks {
		if n == 0 {
			return nil
		}
		if off >= base+block.Length {
			base += block.Length
			continue
		}
		skip := off - base
		length := min(block.Length-skip, n)
		if err := fn(block.Position+skip, off, length); err != nil {
			return err
		}
		off += length
		n -= length
		base += block.Length
	}
	return nil
}

func (s *Store) readContent(e *format.Entry, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative read offset %d", off)
	}
	length := e.Length()
	if off >= length {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := min(int64(len(p)), length-off)
	start := off
	err := spans(e, off, n, func(position, at, count int64) error {
		return s.readFull(p[at-start:at-start+count], position)
	})
	if err != nil {
		return 0, fmt.Errorf("reading entry %d: %w", e.ID, err)
	}
	return int(n), nil
}

func (s *Store) writeContent(e *format.Entry, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative write offset %d", off)
	}
	n := int64(len(p))
	if off+n > e.Length() {
		return 0, fmt.Errorf("write of %d bytes at %d past end of entry %d (%d bytes)", n, off, e.ID, e.Length())
	}
	start := off
	err := spans(e, off, n, func(position, at, count int64) error {
		return s.writeAt(p[at-start:at-start+count], position)
	})
	if err != nil {
		return 0, fmt.Errorf("writing entry %d: %w", e.ID, err)
	}
	return int(n), nil
}
