// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive writes a drive directory subtree to a portable,
// compressed stream and restores it into any drive.
//
// An archive is a CBOR sequence (lib/codec, deterministic encoding):
// a [Header] naming the format and counting the content, then one
// record per directory (breadth first, parents before children), then
// one record per file followed by its content chunks, and a closing
// end record. Each chunk is compressed on its own with LZ4 or zstd, or
// stored when compression does not pay. A file's last chunk carries
// the BLAKE3 digest of its content, checked on extraction.
//
// [Create] reads the source through shared read streams and [Extract]
// writes through write streams, so both respect the drive's locks.
// [List] decodes and verifies an archive without a drive.
package archive
