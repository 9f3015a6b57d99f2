// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rawdata

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/bureau-foundation/vdrive/lib/clock"
	"github.com/bureau-foundation/vdrive/lib/format"
	"github.com/bureau-foundation/vdrive/lib/sequencer"
)

var (
	// ErrDriveFull is returned when the sector descriptor region has no
	// room for another sector pair.
	ErrDriveFull = errors.New("sector info region is full")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("drive is closed")
)

// Device is the positioned I/O primitive under a Store. lib/device
// provides host-file and in-memory implementations.
type Device interface {
	io.ReaderAt
	io.WriterAt
	Size() (int64, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

// Recovery reports how the free list was obtained when a drive opened.
type Recovery int

const (
	// RecoveryInitialized means the drive was empty and has been laid out.
	RecoveryInitialized Recovery = iota
	// RecoveryTrailer means the drive was closed cleanly and the free
	// list was read from its trailer.
	RecoveryTrailer
	// RecoveryGaps means the drive was not closed cleanly and the free
	// list was rebuilt from the gaps between file blocks.
	RecoveryGaps
)

func (r Recovery) String() string {
	switch r {
	case RecoveryInitialized:
		return "initialized"
	case RecoveryTrailer:
		return "trailer"
	case RecoveryGaps:
		return "gaps"
	default:
		return fmt.Sprintf("recovery(%d)", int(r))
	}
}

// Options configures Open.
type Options struct {
	// Parameters lay out a new drive. They are ignored when the drive
	// already exists: its own parameters are read from its header. The
	// zero value selects format.DefaultParameters.
	Parameters format.Parameters

	// Clock stamps the root directory of a new drive. Nil uses the real
	// clock.
	Clock clock.Clock

	// Logger receives lifecycle and recovery records. Nil discards them.
	Logger *slog.Logger
}

// Store is the raw data manager of one drive.
type Store struct {
	device    Device
	sequencer *sequencer.Sequencer
	logger    *slog.Logger
	closed    atomic.Bool
	recovery  Recovery

	// Owned by the sequencer worker.
	sectors sectorTable
	cursor  entryCursor
	slots   *slotTable
	free    *freeList
	scratch []byte
}

// Open lays out an empty device or loads an existing one, and returns
// the Store with every live entry record in on-disk order. The root
// directory is always among the entries.
//
// On success the Store owns the device and closes it in Close. On
// failure the device is left open for the caller to close.
func Open(device Device, options Options) (*Store, []*format.Entry, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := options.Clock
	if now == nil {
		now = clock.Real()
	}
	params := options.Parameters
	if params == (format.Parameters{}) {
		params = format.DefaultParameters()
	}

	s := &Store{
		device:    device,
		sequencer: sequencer.New(sequencer.Options{Logger: logger}),
		logger:    logger,
		slots:     newSlotTable(),
		free:      newFreeList(),
	}

	var entries []*format.Entry
	err := s.sequencer.Do(sequencer.FileTable, func() error {
		size, err := device.Size()
		if err != nil {
			return err
		}
		if size == 0 {
			root, err := s.initialize(params, now)
			if err != nil {
				return fmt.Errorf("initializing drive: %w", err)
			}
			entries = []*format.Entry{root}
			s.recovery = RecoveryInitialized
			return nil
		}
		entries, err = s.load(size)
		return err
	})
	if err != nil {
		s.sequencer.Close(nil)
		return nil, nil, err
	}

	stats := s.statsLocked()
	logger.Info("drive opened",
		"recovery", s.recovery,
		"entries", len(entries),
		"sectors", stats.Sectors,
		"content_bytes", stats.ContentBytes,
		"free_bytes", stats.FreeBytes,
	)
	return s, entries, nil
}

// initialize writes the parameter header, the first sector pair and the
// root directory.
func (s *Store) initialize(params format.Parameters, now clock.Clock) (*format.Entry, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	s.sectors.params = params
	if err := s.writeAt(format.AppendParameters(nil, params), format.ParametersPosition); err != nil {
		return nil, fmt.Errorf("writing parameters: %w", err)
	}
	if err := s.appendPair(s.sectors.regionEnd()); err != nil {
		return nil, err
	}
	stamp := now.Now()
	root := &format.Entry{
		Mark:     format.MarkDirectory,
		ID:       format.RootID,
		ParentID: format.NoParent,
		Created:  stamp,
		Modified: stamp,
		Position: -1,
	}
	if err := s.writeEntry(root); err != nil {
		return nil, fmt.Errorf("writing root directory: %w", err)
	}
	return root, nil
}

// load reads an existing drive: parameters, sectors, trailer or gap
// recovery, entries.
func (s *Store) load(size int64) ([]*format.Entry, error) {
	header := make([]byte, format.ParametersLength)
	if err := s.readFull(header, format.ParametersPosition); err != nil {
		return nil, fmt.Errorf("reading parameters: %w", err)
	}
	params, err := format.DecodeParameters(header)
	if err != nil {
		return nil, err
	}
	s.sectors.params = params
	if err := s.readSectors(); err != nil {
		return nil, err
	}

	trailer, clean, err := s.readTrailer(size)
	if err != nil {
		return nil, err
	}
	entries, err := s.readEntries()
	if err != nil {
		return nil, err
	}
	if clean {
		for _, block := range trailer {
			s.free.add(block)
		}
		s.recovery = RecoveryTrailer
	} else {
		s.logger.Warn("drive was not closed cleanly, rebuilding free list")
		if err := s.rebuildFreeList(entries); err != nil {
			return nil, err
		}
		s.recovery = RecoveryGaps
	}

	// Drop the trailer (or anything else past the end of content) so a
	// crash before the next clean close is detected as one.
	if end := s.sectors.content().End(); size > end {
		if err := s.device.Truncate(end); err != nil {
			return nil, fmt.Errorf("truncating drive to %d: %w", end, err)
		}
	}
	return entries, nil
}

// Recovery reports how the free list was obtained at open.
func (s *Store) Recovery() Recovery { return s.recovery }

// Parameters returns the drive's layout parameters.
func (s *Store) Parameters() format.Parameters { return s.sectors.params }

// do runs fn on the worker unless the store is closed.
func (s *Store) do(priority sequencer.Priority, fn func() error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.sequencer.Do(priority, fn)
}

// WriteEntry writes a new record for e and sets e.Position and e.Stored.
func (s *Store) WriteEntry(e *format.Entry) error {
	return s.do(sequencer.FileTable, func() error { return s.writeEntry(e) })
}

// UpdateEntry rewrites the record of e with its current fields. Renames
// and moves use it. When the drive has no room for the new record the
// old one stays on disk and the error is returned; the caller restores
// the fields it changed.
func (s *Store) UpdateEntry(e *format.Entry) error {
	return s.do(sequencer.FileTable, func() error { return s.rewriteEntry(e) })
}

// RemoveEntry releases the content of a file entry and erases the
// record. Releasing content runs the shrink pass.
func (s *Store) RemoveEntry(e *format.Entry) error {
	return s.do(sequencer.FileTable, func() error {
		if err := s.eraseEntry(e); err != nil {
			return err
		}
		if !e.IsFile() || len(e.Blocks) == 0 {
			return nil
		}
		for _, block := range e.Blocks {
			s.free.add(block)
		}
		e.Blocks = nil
		return s.shrink()
	})
}

// SetFileLength resizes a file entry to length bytes and rewrites its
// record. Growing allocates new blocks after the existing ones; shrinking
// releases the trimmed tail; length zero releases everything and runs
// the shrink pass. New bytes read as zero until written.
// On error e and its record are unchanged.
func (s *Store) SetFileLength(e *format.Entry, length int64) error {
	if length < 0 {
		return fmt.Errorf("negative file length %d", length)
	}
	return s.do(sequencer.FileTable, func() error { return s.setFileLength(e, length) })
}

// ReadContent reads file content at offset off. It returns io.EOF when
// off is at or past the end of the file, and fewer bytes than len(p)
// (with a nil error) when the file ends inside p.
func (s *Store) ReadContent(e *format.Entry, p []byte, off int64) (int, error) {
	var n int
	err := s.do(sequencer.Data, func() error {
		var err error
		n, err = s.readContent(e, p, off)
		return err
	})
	return n, err
}

// WriteContent writes p at offset off. The file must already be long
// enough: callers grow it with SetFileLength first.
func (s *Store) WriteContent(e *format.Entry, p []byte, off int64) (int, error) {
	var n int
	err := s.do(sequencer.Data, func() error {
		var err error
		n, err = s.writeContent(e, p, off)
		return err
	})
	return n, err
}

// Sync flushes the device.
func (s *Store) Sync() error {
	return s.do(sequencer.FileTable, func() error {
		if err := s.patchContentLength(); err != nil {
			return err
		}
		return s.device.Sync()
	})
}

// Stats describes the layout of a drive.
type Stats struct {
	Parameters   format.Parameters
	Sectors      int
	ContentBytes int64
	FreeBytes    int64
	FreeBlocks   int
	EntrySlots   int
	DriveSize    int64
	Recovery     Recovery
}

// Stats returns a snapshot of the drive layout.
func (s *Store) Stats() (Stats, error) {
	var stats Stats
	err := s.do(sequencer.FileTable, func() error {
		stats = s.statsLocked()
		size, err := s.device.Size()
		stats.DriveSize = size
		return err
	})
	return stats, err
}

// statsLocked must run on the worker (or before the store is shared).
func (s *Store) statsLocked() Stats {
	stats := Stats{
		Parameters: s.sectors.params,
		Sectors:    len(s.sectors.list),
		FreeBytes:  s.free.bytes,
		FreeBlocks: s.free.count,
		EntrySlots: s.slots.count,
		Recovery:   s.recovery,
	}
	for _, sector := range s.sectors.contentSectors() {
		stats.ContentBytes += sector.Length
	}
	return stats
}

// FreeBlocks returns the free list ordered by position.
func (s *Store) FreeBlocks() ([]format.Block, error) {
	var blocks []format.Block
	err := s.do(sequencer.FileTable, func() error {
		blocks = s.free.blocks()
		return nil
	})
	return blocks, err
}

// Close drains pending operations, writes the free-list trailer, syncs
// and closes the device. Operations issued after Close return ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return s.sequencer.Close(func() error {
		var firstErr error
		if err := s.writeTrailer(); err != nil {
			firstErr = err
		}
		if err := s.device.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.device.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.logger.Info("drive closed", "error", firstErr)
		return firstErr
	})
}

// Detach stops the worker without writing the trailer or closing the
// device, which stays with the caller. It is for a drive that loaded
// but was rejected by a layer above the store.
func (s *Store) Detach() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return s.sequencer.Close(nil)
}

func (s *Store) writeAt(p []byte, off int64) error {
	_, err := s.device.WriteAt(p, off)
	return err
}

// readFull reads len(p) bytes at off. Bytes past the physical end of the
// device read as zero: the logical end of content may lie beyond it
// until the tail is written.
func (s *Store) readFull(p []byte, off int64) error {
	n, err := s.device.ReadAt(p, off)
	if errors.Is(err, io.EOF) {
		clear(p[n:])
		return nil
	}
	return err
}
