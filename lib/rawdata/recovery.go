// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rawdata

import (
	"fmt"

	"github.com/bureau-foundation/vdrive/lib/format"
)

// writeTrailer appends the free list and format.DriveEnd at the logical
// end of content and cuts off anything after it.
func (s *Store) writeTrailer() error {
	if err := s.patchContentLength(); err != nil {
		return err
	}
	blocks := s.free.blocks()
	trailer, err := format.AppendTrailer(nil, blocks)
	if err != nil {
		return err
	}
	end := s.sectors.content().End()
	if err := s.writeAt(trailer, end); err != nil {
		return fmt.Errorf("writing trailer: %w", err)
	}
	if err := s.device.Truncate(end + int64(len(trailer))); err != nil {
		return fmt.Errorf("truncating after trailer: %w", err)
	}
	s.logger.Debug("trailer written", "free_blocks", len(blocks), "position", end)
	return nil
}

// readTrailer looks for a trailer at the end of a device of size bytes.
// A trailer only counts when it starts exactly at the logical end of
// content; anything else is treated as an unclean close.
func (s *Store) readTrailer(size int64) ([]format.Block, bool, error) {
	end := s.sectors.content().End()
	if size < end+format.TrailerFooterLength {
		return nil, false, nil
	}
	footer := make([]byte, format.TrailerFooterLength)
	if err := s.readFull(footer, size-format.TrailerFooterLength); err != nil {
		return nil, false, fmt.Errorf("reading trailer footer: %w", err)
	}
	length, ok, err := format.DecodeTrailerFooter(footer)
	if err != nil || !ok {
		return nil, false, err
	}
	start := size - format.TrailerFooterLength - length
	if start != end {
		s.logger.Warn("ignoring trailer that does not start at end of content",
			"trailer_start", start,
			"content_end", end,
		)
		return nil, false, nil
	}

	body := make([]byte, length)
	if err := s.readFull(body, start); err != nil {
		return nil, false, fmt.Errorf("reading trailer: %w", err)
	}
	blocks, err := format.DecodeFreeBlocks(body)
	if err != nil {
		return nil, false, err
	}
	sectors := s.sectors.contentSectors()
	for _, block := range blocks {
		if !containedIn(sectors, block) {
			return nil, false, fmt.Errorf("%w: free block [%d, +%d) is outside every content sector", format.ErrCorrupt, block.Position, block.Length)
		}
	}
	return blocks, true, nil
}

func containedIn(sectors []format.Sector, block format.Block) bool {
	for _, sector := range sectors {
		if sector.Contains(block) {
			return true
		}
	}
	return false
}

// rebuildFreeList derives the free list from the gaps between the blocks
// of every file, sector by sector. Blocks that overlap each other or fall
// outside every content sector mean the drive is corrupt.
func (s *Store) rebuildFreeList(entries []*format.Entry) error {
	var used []format.Block
	for _, entry := range entries {
		used = append(used, entry.Blocks...)
	}
	sortBlocks(used)

	next := 0
	for _, sector := range s.sectors.contentSectors() {
		cursor := sector.Start
		for next < len(used) && used[next].Position < sector.End() {
			block := used[next]
			if !sector.Contains(block) {
				return fmt.Errorf("%w: block [%d, +%d) is outside every content sector", format.ErrCorrupt, block.Position, block.Length)
			}
			if block.Position < cursor {
				return fmt.Errorf("%w: block [%d, +%d) overlaps another file block", format.ErrCorrupt, block.Position, block.Length)
			}
			s.addGap(cursor, block.Position)
			cursor = block.End()
			next++
		}
		s.addGap(cursor, sector.End())
	}
	if next < len(used) {
		block := used[next]
		return fmt.Errorf("%w: block [%d, +%d) is outside every content sector", format.ErrCorrupt, block.Position, block.Length)
	}
	s.logger.Info("free list rebuilt", "free_blocks", s.free.count, "free_bytes", s.free.bytes)
	return nil
}

// addGap frees [start, end) in pieces no longer than format.MaxBlockLength.
func (s *Store) addGap(start, end int64) {
	for start < end {
		length := min(end-start, int64(format.MaxBlockLength))
		s.free.add(format.Block{Position: start, Length: length})
		start += length
	}
}
