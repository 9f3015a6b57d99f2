// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCorrupt is wrapped by every decoding failure. A corrupt drive is
// fatal for the open that observed it.
var ErrCorrupt = errors.New("corrupt drive data")

// Mark identifies what a sector descriptor or entry record describes.
type Mark byte

const (
	MarkEntriesSector Mark = 0x00
	MarkContentSector Mark = 0x01
	MarkFile          Mark = 0x10
	MarkDirectory     Mark = 0x11

	// MarkProceed replaces the mark byte of an erased entry record. Readers
	// skip the record and the writer may reuse its slot.
	MarkProceed Mark = 0xff
)

func (m Mark) String() string {
	switch m {
	case MarkEntriesSector:
		return "entries-sector"
	case MarkContentSector:
		return "content-sector"
	case MarkFile:
		return "file"
	case MarkDirectory:
		return "directory"
	case MarkProceed:
		return "proceed"
	default:
		return fmt.Sprintf("mark(0x%02x)", byte(m))
	}
}

const (
	// End terminates the sector descriptor region and the record stream
	// of an entries-table sector. The bytes spell "end." on disk.
	End int32 = 0x2e646e65

	// DriveEnd is the last int32 of a cleanly closed drive. The bytes
	// spell "DEND" on disk. It must differ from End so a trailer is never
	// mistaken for a sector terminator.
	DriveEnd int32 = 0x444e4544
)

// Fixed positions and sizes.
const (
	ParametersPosition = 0
	ParametersLength   = 8
	SectorInfoPosition = ParametersPosition + ParametersLength

	DefaultSectorInfoLength    = 1 << 20
	DefaultEntriesSectorLength = 4 << 20

	// MinEntriesSectorLength keeps room for a handful of records plus the
	// trailing End marker.
	MinEntriesSectorLength = 128

	// MinSectorInfoLength holds one sector pair and the terminator.
	MinSectorInfoLength = 2*SectorDescriptorLength + 4

	// MaxBlockLength is the largest content block the record format can
	// describe: block lengths are stored as int32.
	MaxBlockLength = math.MaxInt32
)

// Parameters are written once at the head of a drive and never change.
type Parameters struct {
	SectorInfoLength    int32
	EntriesSectorLength int32
}

// DefaultParameters returns the parameters used when none are configured.
func DefaultParameters() Parameters {
	return Parameters{
		SectorInfoLength:    DefaultSectorInfoLength,
		EntriesSectorLength: DefaultEntriesSectorLength,
	}
}

// Validate reports whether the parameters describe a usable layout.
func (p Parameters) Validate() error {
	if p.SectorInfoLength < MinSectorInfoLength {
		return fmt.Errorf("sector info length %d is below the minimum %d", p.SectorInfoLength, MinSectorInfoLength)
	}
	if p.EntriesSectorLength < MinEntriesSectorLength {
		return fmt.Errorf("entries sector length %d is below the minimum %d", p.EntriesSectorLength, MinEntriesSectorLength)
	}
	return nil
}

// AppendParameters appends the 8-byte parameter header.
func AppendParameters(dst []byte, p Parameters) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(p.SectorInfoLength))
	return binary.LittleEndian.AppendUint32(dst, uint32(p.EntriesSectorLength))
}

// DecodeParameters decodes the parameter header and validates it.
func DecodeParameters(data []byte) (Parameters, error) {
	if len(data) < ParametersLength {
		return Parameters{}, fmt.Errorf("%w: parameter header is %d bytes, want %d", ErrCorrupt, len(data), ParametersLength)
	}
	p := Parameters{
		SectorInfoLength:    int32(binary.LittleEndian.Uint32(data[0:4])),
		EntriesSectorLength: int32(binary.LittleEndian.Uint32(data[4:8])),
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return p, nil
}

// AppendInt32 appends v little-endian. Used for sentinels and patches.
func AppendInt32(dst []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(v))
}

// AppendInt64 appends v little-endian.
func AppendInt64(dst []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(dst, uint64(v))
}

// Int32 decodes a little-endian int32 from the first four bytes of data.
func Int32(data []byte) int32 {
	return int32(binary.LittleEndian.Uint32(data))
}

// Int64 decodes a little-endian int64 from the first eight bytes of data.
func Int64(data []byte) int64 {
	return int64(binary.LittleEndian.Uint64(data))
}
