// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"encoding/binary"
	"fmt"
)

const (
	// FreeBlockLength is the encoded size of one trailer block record.
	FreeBlockLength = 8 + 4

	// TrailerFooterLength covers the trailer byte length and DriveEnd.
	TrailerFooterLength = 4 + 4
)

// AppendTrailer appends the free-block trailer written on clean close:
// the block records, their total byte length, then DriveEnd.
func AppendTrailer(dst []byte, blocks []Block) ([]byte, error) {
	for _, block := range blocks {
		if block.Length <= 0 || block.Length > MaxBlockLength {
			return dst, fmt.Errorf("free block at %d has length %d", block.Position, block.Length)
		}
		dst = binary.LittleEndian.AppendUint64(dst, uint64(block.Position))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(block.Length))
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(blocks)*FreeBlockLength))
	return binary.LittleEndian.AppendUint32(dst, uint32(DriveEnd)), nil
}

// DecodeTrailerFooter inspects the last TrailerFooterLength bytes of a
// drive. It returns the byte length of the block records preceding the
// footer, and false when the drive was not closed cleanly.
func DecodeTrailerFooter(footer []byte) (int64, bool, error) {
	if len(footer) < TrailerFooterLength {
		return 0, false, nil
	}
	if int32(binary.LittleEndian.Uint32(footer[4:8])) != DriveEnd {
		return 0, false, nil
	}
	length := int64(int32(binary.LittleEndian.Uint32(footer[0:4])))
	if length < 0 || length%FreeBlockLength != 0 {
		return 0, false, fmt.Errorf("%w: trailer length %d", ErrCorrupt, length)
	}
	return length, true, nil
}

// DecodeFreeBlocks decodes the block records of a trailer.
func DecodeFreeBlocks(data []byte) ([]Block, error) {
	if len(data)%FreeBlockLength != 0 {
		return nil, fmt.Errorf("%w: trailer body is %d bytes", ErrCorrupt, len(data))
	}
	blocks := make([]Block, 0, len(data)/FreeBlockLength)
	for offset := 0; offset < len(data); offset += FreeBlockLength {
		block := Block{
			Position: int64(binary.LittleEndian.Uint64(data[offset:])),
			Length:   int64(int32(binary.LittleEndian.Uint32(data[offset+8:]))),
		}
		if block.Position < SectorInfoPosition || block.Length <= 0 {
			return nil, fmt.Errorf("%w: free block [%d, +%d)", ErrCorrupt, block.Position, block.Length)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}
