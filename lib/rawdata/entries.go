// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rawdata

import (
	"fmt"

	"github.com/bureau-foundation/vdrive/lib/format"
)

// proceedHeaderLength is the smallest region that can be skipped by a
// reader: a length prefix and a MarkProceed byte.
const proceedHeaderLength = 4 + 1

// slotTable tracks reclaimed entry-table slots by their full size.
type slotTable struct {
	bySize map[int64][]int64
	count  int
}

func newSlotTable() *slotTable {
	return &slotTable{bySize: make(map[int64][]int64)}
}

func (t *slotTable) add(position, size int64) {
	if size < format.MinEntrySlotLength {
		return
	}
	t.bySize[size] = append(t.bySize[size], position)
	t.count++
}

// take returns a slot for a record of length bytes: an exact fit, or the
// smallest slot that leaves room for a skippable remainder.
func (t *slotTable) take(length int64) (position, size int64, ok bool) {
	size = -1
	if _, exact := t.bySize[length]; exact {
		size = length
	} else {
		for candidate := range t.bySize {
			if candidate >= length+proceedHeaderLength && (size < 0 || candidate < size) {
				size = candidate
			}
		}
	}
	if size < 0 {
		return 0, 0, false
	}
	queue := t.bySize[size]
	position = queue[0]
	if len(queue) == 1 {
		delete(t.bySize, size)
	} else {
		t.bySize[size] = queue[1:]
	}
	t.count--
	return position, size, true
}

// entryCursor is the append position inside the current entries sector.
type entryCursor struct {
	sector   format.Sector
	position int64
}

// fits reports whether a record of length bytes can be appended. The
// last four bytes of every entries sector hold format.End.
func (c *entryCursor) fits(length int64) bool {
	return c.position+length <= c.sector.End()-4
}

func (c *entryCursor) anchor(sector format.Sector) {
	c.sector = sector
	c.position = sector.Start
}

// proceedHeader encodes the header that makes a region of size bytes
// skippable by readers.
func proceedHeader(size int64) []byte {
	header := format.AppendInt32(nil, int32(size-4))
	return append(header, byte(format.MarkProceed))
}

// placement is where the next record goes: a reclaimed slot, or the
// append cursor of the current entries sector.
type placement struct {
	position int64
	size     int64
	appended bool
}

// encode renders the record of e into the scratch buffer.
func (s *Store) encode(e *format.Entry) ([]byte, error) {
	record, err := format.AppendEntry(s.scratch[:0], e)
	if err != nil {
		return nil, err
	}
	s.scratch = record[:0]
	return record, nil
}

// place finds room for a record of length bytes without writing
// anything a failure would have to undo. It may append a sector pair.
func (s *Store) place(e *format.Entry, length int64) (placement, error) {
	if length > int64(s.sectors.params.EntriesSectorLength)-4 {
		return placement{}, fmt.Errorf("entry %d record is %d bytes, larger than an entries sector", e.ID, length)
	}
	if position, size, ok := s.slots.take(length); ok {
		return placement{position: position, size: size}, nil
	}
	if !s.cursor.fits(length) {
		if err := s.growEntries(); err != nil {
			return placement{}, err
		}
	}
	return placement{position: s.cursor.position, size: length, appended: true}, nil
}

// unplace returns an unused placement.
func (s *Store) unplace(p placement) {
	if !p.appended {
		s.slots.add(p.position, p.size)
	}
}

// commit writes record at p and records the new position in e. A slot
// larger than the record keeps a skippable remainder.
func (s *Store) commit(e *format.Entry, record []byte, p placement) error {
	length := int64(len(record))
	remainder := p.size - length
	if remainder > 0 {
		record = append(record, proceedHeader(remainder)...)
	}
	if err := s.writeAt(record, p.position); err != nil {
		return fmt.Errorf("writing entry %d at %d: %w", e.ID, p.position, err)
	}
	if remainder > 0 {
		s.slots.add(p.position+length, remainder)
	}
	if p.appended {
		s.cursor.position += length
	}
	e.Position, e.Stored = p.position, length
	return nil
}

// writeEntry writes a new record for e into a reclaimed slot, or appends
// it to the current entries sector (growing the drive by a sector pair
// when the sector is full). On success e.Position and e.Stored describe
// the new record.
func (s *Store) writeEntry(e *format.Entry) error {
	record, err := s.encode(e)
	if err != nil {
		return err
	}
	p, err := s.place(e, int64(len(record)))
	if err != nil {
		return err
	}
	if err := s.commit(e, record, p); err != nil {
		s.unplace(p)
		return err
	}
	return nil
}

// rewriteEntry replaces the record of e with one encoding its current
// fields. A record that still fits the old slot overwrites it; otherwise
// room is found before the old record is erased, so a drive that cannot
// hold the new record keeps the old one.
func (s *Store) rewriteEntry(e *format.Entry) error {
	if e.Position < 0 {
		return s.writeEntry(e)
	}
	record, err := s.encode(e)
	if err != nil {
		return err
	}
	length := int64(len(record))
	if e.Stored == length || e.Stored >= length+proceedHeaderLength {
		return s.commit(e, record, placement{position: e.Position, size: e.Stored})
	}
	p, err := s.place(e, length)
	if err != nil {
		return err
	}
	if err := s.eraseEntry(e); err != nil {
		s.unplace(p)
		return err
	}
	if err := s.commit(e, record, p); err != nil {
		s.unplace(p)
		return err
	}
	return nil
}

// eraseEntry marks the record of e as reclaimable. Only the mark byte is
// written; the rest of the record stays on disk until the slot is reused.
func (s *Store) eraseEntry(e *format.Entry) error {
	if e.Position < 0 {
		return nil
	}
	if err := s.writeAt([]byte{byte(format.MarkProceed)}, e.Position+4); err != nil {
		return fmt.Errorf("erasing entry %d at %d: %w", e.ID, e.Position, err)
	}
	s.slots.add(e.Position, e.Stored)
	e.Position, e.Stored = -1, 0
	return nil
}

// readEntries decodes every live record of every entries sector,
// registers erased records as reusable slots, and anchors the cursor
// after the last record of the current entries sector.
func (s *Store) readEntries() ([]*format.Entry, error) {
	var entries []*format.Entry
	sectors := s.sectors.list
	for index := 0; index < len(sectors); index += 2 {
		sector := sectors[index]
		data := make([]byte, sector.Length)
		if err := s.readFull(data, sector.Start); err != nil {
			return nil, fmt.Errorf("reading entries sector %d: %w", sector.ID, err)
		}

		limit := int64(len(data)) - 4
		offset := int64(0)
		for offset+4 <= limit {
			length := int64(format.Int32(data[offset:]))
			if length == 0 || length == int64(format.End) {
				break
			}
			if length < 1 || offset+4+length > limit {
				return nil, fmt.Errorf("%w: entry record at %d has length %d", format.ErrCorrupt, sector.Start+offset, length)
			}
			position := sector.Start + offset
			body := data[offset+4 : offset+4+length]
			if format.Mark(body[0]) == format.MarkProceed {
				s.slots.add(position, length+4)
			} else {
				entry, err := format.DecodeEntry(body, position)
				if err != nil {
					return nil, err
				}
				entries = append(entries, entry)
			}
			offset += 4 + length
		}

		if index == len(sectors)-2 {
			s.cursor.anchor(sector)
			s.cursor.position = sector.Start + offset
		}
	}
	return entries, nil
}
