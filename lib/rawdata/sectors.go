// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rawdata

import (
	"fmt"

	"github.com/bureau-foundation/vdrive/lib/format"
)

// sectorTable is the in-memory copy of the sector descriptor region.
// Sectors alternate entries/content; the last pair is current.
type sectorTable struct {
	params format.Parameters
	list   []format.Sector
}

// regionEnd is the first byte after the descriptor region, which is also
// where the first entries sector starts.
func (t *sectorTable) regionEnd() int64 {
	return format.SectorInfoPosition + int64(t.params.SectorInfoLength)
}

func (t *sectorTable) contentIndex() int { return len(t.list) - 1 }

// content returns the current content sector. The pointer is only valid
// until the next appendPair.
func (t *sectorTable) content() *format.Sector { return &t.list[len(t.list)-1] }

func (t *sectorTable) entries() format.Sector { return t.list[len(t.list)-2] }

// contentSectors returns every content sector in creation order.
func (t *sectorTable) contentSectors() []format.Sector {
	sectors := make([]format.Sector, 0, len(t.list)/2)
	for index := 1; index < len(t.list); index += 2 {
		sectors = append(sectors, t.list[index])
	}
	return sectors
}

// appendPair writes descriptors for a new entries sector starting at
// start and an empty content sector right after it, followed by a new
// terminator. The entries sector's last four bytes get format.End so the
// backing file physically covers the whole sector.
func (s *Store) appendPair(start int64) error {
	table := &s.sectors
	next := len(table.list)
	if format.DescriptorPosition(next+2)+4 > table.regionEnd() {
		return fmt.Errorf("%w: %d sectors in a %d-byte region", ErrDriveFull, next, table.params.SectorInfoLength)
	}

	entries := format.Sector{
		ID:     int32(next),
		Start:  start,
		Length: int64(table.params.EntriesSectorLength),
		Mark:   format.MarkEntriesSector,
	}
	content := format.Sector{
		ID:    int32(next + 1),
		Start: entries.End(),
		Mark:  format.MarkContentSector,
	}

	if err := s.writeAt(format.AppendInt32(nil, format.End), entries.End()-4); err != nil {
		return fmt.Errorf("terminating entries sector %d: %w", entries.ID, err)
	}
	descriptors := format.AppendSector(nil, entries)
	descriptors = format.AppendSector(descriptors, content)
	descriptors = format.AppendInt32(descriptors, format.End)
	if err := s.writeAt(descriptors, format.DescriptorPosition(next)); err != nil {
		return fmt.Errorf("writing descriptors for sectors %d-%d: %w", entries.ID, content.ID, err)
	}

	table.list = append(table.list, entries, content)
	s.cursor.anchor(entries)
	return nil
}

// growEntries finalizes the current content sector and appends a new
// sector pair at the logical end of content.
func (s *Store) growEntries() error {
	if err := s.patchContentLength(); err != nil {
		return err
	}
	start := s.sectors.content().End()
	if err := s.appendPair(start); err != nil {
		return err
	}
	s.logger.Debug("appended sector pair",
		"entries_sector", s.sectors.entries().ID,
		"start", start,
	)
	return nil
}

// patchContentLength rewrites the length field of the current content
// sector's descriptor.
func (s *Store) patchContentLength() error {
	index := s.sectors.contentIndex()
	length := s.sectors.content().Length
	if err := s.writeAt(format.AppendInt64(nil, length), format.SectorLengthPosition(index)); err != nil {
		return fmt.Errorf("patching length of content sector %d: %w", index, err)
	}
	return nil
}

// readSectors loads the descriptor region and validates the pair chain.
func (s *Store) readSectors() error {
	table := &s.sectors
	region := make([]byte, table.params.SectorInfoLength)
	if err := s.readFull(region, format.SectorInfoPosition); err != nil {
		return fmt.Errorf("reading sector descriptors: %w", err)
	}

	table.list = table.list[:0]
	for offset := 0; offset+format.SectorDescriptorLength <= len(region); offset += format.SectorDescriptorLength {
		more, err := format.CheckDescriptorLength(format.Int32(region[offset:]))
		if err != nil {
			return fmt.Errorf("descriptor %d: %w", len(table.list), err)
		}
		if !more {
			break
		}
		sector, err := format.DecodeSector(region[offset+4 : offset+format.SectorDescriptorLength])
		if err != nil {
			return err
		}
		if err := table.checkNext(sector); err != nil {
			return err
		}
		table.list = append(table.list, sector)
	}

	if len(table.list) == 0 || len(table.list)%2 != 0 {
		return fmt.Errorf("%w: drive has %d sector descriptors, want a non-empty list of pairs", format.ErrCorrupt, len(table.list))
	}
	return nil
}

// checkNext validates that sector can follow the sectors read so far.
func (t *sectorTable) checkNext(sector format.Sector) error {
	index := len(t.list)
	if sector.ID != int32(index) {
		return fmt.Errorf("%w: descriptor %d has id %d", format.ErrCorrupt, index, sector.ID)
	}
	wantMark := format.MarkEntriesSector
	if index%2 == 1 {
		wantMark = format.MarkContentSector
	}
	if sector.Mark != wantMark {
		return fmt.Errorf("%w: sector %d is %s, want %s", format.ErrCorrupt, index, sector.Mark, wantMark)
	}
	if index == 0 {
		if sector.Start != t.regionEnd() {
			return fmt.Errorf("%w: first sector starts at %d, want %d", format.ErrCorrupt, sector.Start, t.regionEnd())
		}
	} else if previous := t.list[index-1]; sector.Start != previous.End() {
		return fmt.Errorf("%w: sector %d starts at %d, previous sector ends at %d", format.ErrCorrupt, index, sector.Start, previous.End())
	}
	if sector.Mark == format.MarkEntriesSector && sector.Length != int64(t.params.EntriesSectorLength) {
		return fmt.Errorf("%w: entries sector %d is %d bytes, want %d", format.ErrCorrupt, index, sector.Length, t.params.EntriesSectorLength)
	}
	return nil
}
