// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vfs is the public face of a drive: a hierarchy of directories
// and files stored inside one host file.
//
// A [FileSystem] is opened over a backing file (or any
// [rawdata.Device]) and hands out [Directory] and [File] wrappers. There
// is at most one wrapper per live entry, so two lookups of the same path
// return the same pointer until the entry is removed.
//
// Paths use "/" and are resolved case-insensitively. The root is the
// empty path; leading and trailing separators are ignored.
//
// Concurrency: every method is safe for concurrent use. Structural
// changes (create, remove, rename, move, resize) serialize on the
// filesystem; content reads and writes of different files proceed
// together and are ordered by the drive's sequencer. Open streams hold
// advisory locks: a file open for writing cannot be read, renamed,
// moved or removed, and neither can the directories above it. Those
// operations fail at once with [ErrAccessDenied] rather than wait.
//
// Long operations (copy, move across drives, import, export) take a
// context.Context checked between buffer-sized chunks. A cancelled
// operation removes what it had created and returns the context error.
package vfs
