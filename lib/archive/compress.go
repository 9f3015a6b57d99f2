// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm used for one chunk. Tags are
// stored in every chunk record; changing them breaks existing
// archives.
type Compression uint8

const (
	// CompressionNone stores the chunk as is. Chosen for content that
	// is already compressed or does not shrink.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression: fast, modest ratio.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level. Best for text.
	CompressionZstd Compression = 2

	// CompressionAuto is never stored. As an option it asks Create to
	// pick a tag per file from its content type and a trial compression of its
	// first chunk.
	CompressionAuto Compression = 0xff
)

// String returns the name of a compression tag.
func (tag Compression) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionAuto:
		return "auto"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompression parses a compression name as used in configuration
// and on the command line.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	case "auto", "":
		return CompressionAuto, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, zstd or auto)", name)
	}
}

// compressChunk compresses data with tag. errIncompressible means the
// output would not be smaller and the chunk should be stored as
// CompressionNone.
func compressChunk(data []byte, tag Compression) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// decompressChunk reverses compressChunk. The result must be exactly
// size bytes long.
func decompressChunk(compressed []byte, tag Compression, size int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != size {
			return nil, fmt.Errorf("stored chunk: size %d does not match expected %d", len(compressed), size)
		}
		return compressed, nil
	case CompressionLZ4:
		return decompressLZ4(compressed, size)
	case CompressionZstd:
		return decompressZstd(compressed, size)
	default:
		return nil, fmt.Errorf("%w: unsupported compression tag %d", ErrCorrupt, tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use through
// EncodeAll and DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("archive: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
	}
	return result, nil
}

var errIncompressible = errors.New("data is incompressible")

// selectCompression picks a tag for a file from its first chunk.
// Text is zstd. Known compressed formats (archives, images, audio,
// video) are stored. Anything else is trial-compressed: a zstd ratio of 1.5 or
// better selects zstd, 1.1 or better LZ4, otherwise the file is
// stored.
func selectCompression(head []byte) Compression {
	if len(head) == 0 {
		return CompressionNone
	}
	detected := mimetype.Detect(head)
	for kind := detected; kind != nil; kind = kind.Parent() {
		switch {
		case kind.Is("text/plain"):
			return CompressionZstd
		case kind.Is("application/zip"), kind.Is("application/gzip"),
			kind.Is("application/zstd"), kind.Is("application/x-xz"),
			kind.Is("application/x-7z-compressed"):
			return CompressionNone
		}
	}
	switch strings.SplitN(detected.String(), "/", 2)[0] {
	case "image", "audio", "video":
		return CompressionNone
	}

	ratio := float64(len(head)) / float64(len(zstdEncoder.EncodeAll(head, nil)))
	switch {
	case ratio >= 1.5:
		return CompressionZstd
	case ratio >= 1.1:
		return CompressionLZ4
	default:
		return CompressionNone
	}
}
