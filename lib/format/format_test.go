// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package format

import (
	"errors"
	"testing"
	"time"
)

func TestEntryRecordLayout(t *testing.T) {
	created := time.Unix(0, 1_700_000_000_123_456_789).UTC()
	entry := &Entry{
		Mark:      MarkFile,
		ID:        7,
		Name:      "report",
		Extension: "tar.gz",
		ParentID:  3,
		Created:   created,
		Modified:  created.Add(time.Second),
		Blocks:    []Block{{Position: 4096, Length: 100}, {Position: 9000, Length: 28}},
	}

	record, err := AppendEntry(nil, entry)
	if err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	if int64(len(record)) != entry.EncodedLength() {
		t.Fatalf("record length = %d, EncodedLength = %d", len(record), entry.EncodedLength())
	}
	if got := Int32(record); int(got) != len(record)-4 {
		t.Errorf("length prefix = %d, want %d", got, len(record)-4)
	}
	if Mark(record[4]) != MarkFile {
		t.Errorf("mark byte = %#x, want %#x", record[4], MarkFile)
	}
	if got := Int64(record[5:]); got != 7 {
		t.Errorf("id = %d, want 7", got)
	}

	decoded, err := DecodeEntry(record[4:], 512)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}
	if decoded.Name != "report" || decoded.Extension != "tar.gz" || decoded.ParentID != 3 {
		t.Errorf("decoded = %q.%q parent %d", decoded.Name, decoded.Extension, decoded.ParentID)
	}
	if !decoded.Created.Equal(created) {
		t.Errorf("created = %v, want %v", decoded.Created, created)
	}
	if decoded.Position != 512 || decoded.Stored != int64(len(record)) {
		t.Errorf("position/stored = %d/%d, want 512/%d", decoded.Position, decoded.Stored, len(record))
	}
	if decoded.Length() != 128 {
		t.Errorf("length = %d, want 128", decoded.Length())
	}
	if decoded.FullName() != "report.tar.gz" {
		t.Errorf("full name = %q", decoded.FullName())
	}
}

func TestMinEntrySlotLength(t *testing.T) {
	entry := &Entry{Mark: MarkDirectory, ID: 1, Name: "a", Created: time.Unix(1, 0), Modified: time.Unix(1, 0)}
	if entry.EncodedLength() != MinEntrySlotLength {
		t.Fatalf("one-byte directory record = %d bytes, MinEntrySlotLength = %d", entry.EncodedLength(), MinEntrySlotLength)
	}
	if MinEntrySlotLength != 42 {
		t.Errorf("MinEntrySlotLength = %d, want 42", MinEntrySlotLength)
	}
	file := &Entry{Mark: MarkFile, ID: 1, Name: "a", Created: time.Unix(1, 0), Modified: time.Unix(1, 0)}
	if file.EncodedLength() < MinEntrySlotLength {
		t.Errorf("smallest file record %d is below MinEntrySlotLength", file.EncodedLength())
	}
}

func TestDecodeEntryRejectsTruncatedRecord(t *testing.T) {
	entry := &Entry{Mark: MarkDirectory, ID: 4, Name: "docs", ParentID: 0, Created: time.Unix(5, 0), Modified: time.Unix(5, 0)}
	record, err := AppendEntry(nil, entry)
	if err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	_, err = DecodeEntry(record[4:len(record)-3], 0)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("DecodeEntry(truncated) error = %v, want ErrCorrupt", err)
	}

	record[4] = byte(MarkProceed)
	if _, err := DecodeEntry(record[4:], 0); !errors.Is(err, ErrCorrupt) {
		t.Errorf("DecodeEntry(proceed) error = %v, want ErrCorrupt", err)
	}
}

func TestSectorDescriptor(t *testing.T) {
	sector := Sector{ID: 3, Start: 1 << 33, Length: 77, Mark: MarkContentSector}
	encoded := AppendSector(nil, sector)
	if len(encoded) != SectorDescriptorLength {
		t.Fatalf("descriptor length = %d, want %d", len(encoded), SectorDescriptorLength)
	}

	more, err := CheckDescriptorLength(Int32(encoded))
	if err != nil || !more {
		t.Fatalf("CheckDescriptorLength = %v, %v", more, err)
	}
	decoded, err := DecodeSector(encoded[4:])
	if err != nil {
		t.Fatalf("DecodeSector: %v", err)
	}
	if decoded != sector {
		t.Errorf("decoded = %+v, want %+v", decoded, sector)
	}

	// The length field is patched in place; its offset must line up with
	// the encoding.
	offset := SectorLengthPosition(0) - DescriptorPosition(0)
	if got := Int64(encoded[offset:]); got != 77 {
		t.Errorf("length at patch offset = %d, want 77", got)
	}

	if more, err := CheckDescriptorLength(End); more || err != nil {
		t.Errorf("CheckDescriptorLength(End) = %v, %v", more, err)
	}
	if _, err := CheckDescriptorLength(99); !errors.Is(err, ErrCorrupt) {
		t.Errorf("CheckDescriptorLength(99) error = %v, want ErrCorrupt", err)
	}

	encoded[len(encoded)-1] = byte(MarkFile)
	if _, err := DecodeSector(encoded[4:]); !errors.Is(err, ErrCorrupt) {
		t.Errorf("DecodeSector(bad mark) error = %v, want ErrCorrupt", err)
	}
}

func TestTrailer(t *testing.T) {
	blocks := []Block{{Position: 100, Length: 10}, {Position: 5000, Length: 1 << 20}}
	trailer, err := AppendTrailer(nil, blocks)
	if err != nil {
		t.Fatalf("AppendTrailer: %v", err)
	}
	if len(trailer) != len(blocks)*FreeBlockLength+TrailerFooterLength {
		t.Fatalf("trailer length = %d", len(trailer))
	}

	length, ok, err := DecodeTrailerFooter(trailer[len(trailer)-TrailerFooterLength:])
	if err != nil || !ok {
		t.Fatalf("DecodeTrailerFooter = %d, %v, %v", length, ok, err)
	}
	if length != int64(len(blocks)*FreeBlockLength) {
		t.Errorf("trailer body length = %d", length)
	}
	decoded, err := DecodeFreeBlocks(trailer[:length])
	if err != nil {
		t.Fatalf("DecodeFreeBlocks: %v", err)
	}
	if len(decoded) != 2 || decoded[0] != blocks[0] || decoded[1] != blocks[1] {
		t.Errorf("decoded = %v, want %v", decoded, blocks)
	}

	empty, err := AppendTrailer(nil, nil)
	if err != nil {
		t.Fatalf("AppendTrailer(empty): %v", err)
	}
	if length, ok, _ := DecodeTrailerFooter(empty); !ok || length != 0 {
		t.Errorf("empty trailer footer = %d, %v", length, ok)
	}

	if _, ok, _ := DecodeTrailerFooter(AppendInt32(AppendInt32(nil, 0), End)); ok {
		t.Error("footer ending in End must not be taken for a trailer")
	}
}

func TestParameters(t *testing.T) {
	encoded := AppendParameters(nil, DefaultParameters())
	decoded, err := DecodeParameters(encoded)
	if err != nil {
		t.Fatalf("DecodeParameters: %v", err)
	}
	if decoded != DefaultParameters() {
		t.Errorf("decoded = %+v", decoded)
	}

	tooSmall := AppendParameters(nil, Parameters{SectorInfoLength: 8, EntriesSectorLength: 4096})
	if _, err := DecodeParameters(tooSmall); !errors.Is(err, ErrCorrupt) {
		t.Errorf("DecodeParameters(too small) error = %v, want ErrCorrupt", err)
	}
}

func TestBlockOverlaps(t *testing.T) {
	tests := []struct {
		a, b Block
		want bool
	}{
		{Block{0, 10}, Block{10, 5}, false},
		{Block{0, 10}, Block{9, 5}, true},
		{Block{20, 5}, Block{0, 21}, true},
		{Block{20, 5}, Block{25, 1}, false},
	}
	for _, test := range tests {
		if got := test.a.Overlaps(test.b); got != test.want {
			t.Errorf("%v.Overlaps(%v) = %v, want %v", test.a, test.b, got, test.want)
		}
	}
}
