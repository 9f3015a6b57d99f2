// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func TestCompressionString(t *testing.T) {
	tests := []struct {
		tag  Compression
		want string
	}{
		{CompressionNone, "none"},
		{CompressionLZ4, "lz4"},
		{CompressionZstd, "zstd"},
		{CompressionAuto, "auto"},
		{Compression(99), "unknown(99)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.tag.String(); got != tt.want {
				t.Errorf("Compression(%d).String() = %q, want %q", tt.tag, got, tt.want)
			}
		})
	}
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd", "auto"} {
		t.Run(name, func(t *testing.T) {
			tag, err := ParseCompression(name)
			if err != nil {
				t.Fatalf("ParseCompression(%q): %v", name, err)
			}
			if tag.String() != name {
				t.Errorf("roundtrip: ParseCompression(%q).String() = %q", name, tag.String())
			}
		})
	}
	if tag, err := ParseCompression("ZSTD"); err != nil || tag != CompressionZstd {
		t.Errorf("ParseCompression(ZSTD) = %v, %v; want zstd", tag, err)
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("ParseCompression(\"gzip\") should fail")
	}
}

func TestChunkRoundTrip(t *testing.T) {
	data := make([]byte, 64*1024)
	for i := range data {
		data[i] = byte(i % 17)
	}
	for _, tag := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			compressed, err := compressChunk(data, tag)
			if err != nil {
				t.Fatalf("compressChunk: %v", err)
			}
			if tag != CompressionNone && len(compressed) >= len(data) {
				t.Errorf("%s did not compress: %d bytes to %d", tag, len(data), len(compressed))
			}
			decompressed, err := decompressChunk(compressed, tag, len(data))
			if err != nil {
				t.Fatalf("decompressChunk: %v", err)
			}
			if !bytes.Equal(decompressed, data) {
				t.Error("round trip changed the data")
			}
		})
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	data := []byte("five bytes extra")
	if _, err := decompressChunk(data, CompressionNone, len(data)+5); err == nil {
		t.Error("decompressChunk(none) should fail when size does not match")
	}
	compressed, err := compressChunk(bytes.Repeat([]byte("abc"), 1000), CompressionZstd)
	if err != nil {
		t.Fatalf("compressChunk: %v", err)
	}
	if _, err := decompressChunk(compressed, CompressionZstd, 10); err == nil {
		t.Error("decompressChunk(zstd) should fail when size does not match")
	}
	if _, err := decompressChunk(data, Compression(42), len(data)); !errors.Is(err, ErrCorrupt) {
		t.Errorf("unknown tag: err = %v, want ErrCorrupt", err)
	}
}

func TestIncompressible(t *testing.T) {
	data := make([]byte, 64*1024)
	rand.Read(data)
	for _, tag := range []Compression{CompressionLZ4, CompressionZstd} {
		if _, err := compressChunk(data, tag); !errors.Is(err, errIncompressible) {
			t.Errorf("%s on random data: err = %v, want errIncompressible", tag, err)
		}
	}
}

func TestSelectCompression(t *testing.T) {
	repetitive := make([]byte, 64*1024)
	for i := range repetitive {
		repetitive[i] = byte(i % 5)
	}
	random := make([]byte, 64*1024)
	rand.Read(random)
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 1024)...)

	tests := []struct {
		name string
		head []byte
		want Compression
	}{
		{"empty", nil, CompressionNone},
		{"text", []byte("plain words in a plain file\n"), CompressionZstd},
		{"json", []byte(`{"name": "drive", "size": 4096}`), CompressionZstd},
		{"png", png, CompressionNone},
		{"repetitive binary", repetitive, CompressionZstd},
		{"random", random, CompressionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := selectCompression(tt.head); got != tt.want {
				t.Errorf("selectCompression = %s, want %s", got, tt.want)
			}
		})
	}
}
