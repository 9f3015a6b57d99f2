// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"encoding/binary"
	"fmt"
)

// sectorDescriptorBody is the descriptor size after its length prefix:
// id (4) + start (8) + length (8) + mark (1).
const sectorDescriptorBody = 21

// SectorDescriptorLength is the full on-disk size of one descriptor.
const SectorDescriptorLength = 4 + sectorDescriptorBody

// sectorLengthOffset is the offset of the length field within a
// descriptor, counted from the descriptor's length prefix.
const sectorLengthOffset = 4 + 4 + 8

// Sector describes one region of the drive.
type Sector struct {
	ID     int32
	Start  int64
	Length int64
	Mark   Mark
}

// End returns the first byte past the sector.
func (s Sector) End() int64 { return s.Start + s.Length }

// Contains reports whether b lies entirely inside the sector.
func (s Sector) Contains(b Block) bool {
	return b.Position >= s.Start && b.End() <= s.End()
}

// DescriptorPosition returns where the descriptor of the index-th sector
// (0-based, creation order) lives.
func DescriptorPosition(index int) int64 {
	return SectorInfoPosition + int64(index)*SectorDescriptorLength
}

// SectorLengthPosition returns the position of the length field of the
// index-th descriptor. Content sectors grow after their descriptor is
// written, so this field is patched in place.
func SectorLengthPosition(index int) int64 {
	return DescriptorPosition(index) + sectorLengthOffset
}

// AppendSector appends the encoded descriptor.
func AppendSector(dst []byte, s Sector) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, sectorDescriptorBody)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(s.ID))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(s.Start))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(s.Length))
	return append(dst, byte(s.Mark))
}

// DecodeSector decodes a descriptor body: the bytes after the length
// prefix, which the caller has already checked against End.
func DecodeSector(body []byte) (Sector, error) {
	if len(body) < sectorDescriptorBody {
		return Sector{}, fmt.Errorf("%w: sector descriptor is %d bytes, want %d", ErrCorrupt, len(body), sectorDescriptorBody)
	}
	s := Sector{
		ID:     int32(binary.LittleEndian.Uint32(body[0:4])),
		Start:  int64(binary.LittleEndian.Uint64(body[4:12])),
		Length: int64(binary.LittleEndian.Uint64(body[12:20])),
		Mark:   Mark(body[20]),
	}
	if s.Mark != MarkEntriesSector && s.Mark != MarkContentSector {
		return Sector{}, fmt.Errorf("%w: sector %d has mark %s", ErrCorrupt, s.ID, s.Mark)
	}
	if s.Start < SectorInfoPosition || s.Length < 0 {
		return Sector{}, fmt.Errorf("%w: sector %d has range [%d, +%d)", ErrCorrupt, s.ID, s.Start, s.Length)
	}
	return s, nil
}

// CheckDescriptorLength validates the length prefix read ahead of a
// descriptor body. It returns false at the end of the descriptor list.
func CheckDescriptorLength(length int32) (bool, error) {
	switch length {
	case End, 0:
		return false, nil
	case sectorDescriptorBody:
		return true, nil
	default:
		return false, fmt.Errorf("%w: sector descriptor length %d", ErrCorrupt, length)
	}
}
