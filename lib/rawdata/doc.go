// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rawdata manages the physical layout of a drive: the chain of
// entries-table and content sector pairs, the entry table slots, the
// content free list, and the free-list trailer written on clean close.
//
// [Store] is the only type callers use. Every public method submits one
// closure to the drive's sequencer and waits for it, so all layout state
// (sector table, entry cursor and slots, free list) is only ever touched
// by the sequencer worker and needs no locks. Metadata operations run at
// [sequencer.FileTable] priority; content reads and writes run at
// [sequencer.Data] priority.
//
// # Allocation
//
// Content space is handed out by [Store.SetFileLength]. Free blocks are
// indexed by exact length: a request takes an exact-length block, else
// splits the smallest larger block, else grows the tail of the current
// content sector. A file's existing blocks never move; a new block that
// starts where the file's last block ends is merged into it.
//
// Entry records are appended to the current entries sector. Erasing a
// record rewrites only its mark byte (format.MarkProceed) and registers
// its slot for reuse by a later record of the same or smaller size. When
// the entries sector is full a new sector pair is appended at the
// logical end of content.
//
// # Recovery
//
// A cleanly closed drive ends with the free list and format.DriveEnd.
// Opening such a drive reads the list back and truncates it off. Any
// other drive gets its free list rebuilt from the gaps between file
// blocks in each content sector.
package rawdata
