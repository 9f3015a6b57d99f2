// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sequencer serializes every physical operation against a drive
// onto one worker goroutine.
//
// Operations carry a [Priority]. Metadata operations ([FileTable]) are
// never delayed behind content operations ([Data]): on every turn the
// worker runs all pending FileTable operations, then at most one Data
// operation, then looks again. A FileTable operation submitted while a
// long run of Data operations is queued therefore executes after at most
// one of them.
//
// Callers that need a result capture it in the submitted closure and
// read it after [Future.Wait] returns; the channel close inside the
// future orders the closure's writes before the caller's reads.
//
// Operations must not submit to their own sequencer and wait: the worker
// would wait on itself.
package sequencer

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Priority selects the queue an operation joins.
type Priority int

const (
	// FileTable is for metadata: sector descriptors, entry records, the
	// free-list trailer.
	FileTable Priority = iota
	// Data is for file content reads and writes.
	Data
)

func (p Priority) String() string {
	switch p {
	case FileTable:
		return "file-table"
	case Data:
		return "data"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Future completes when its operation has run (or was skipped because
// the sequencer was closing).
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

// completed is shared by every operation submitted after Close began.
var completed = func() *Future {
	f := newFuture()
	close(f.done)
	return f
}()

// Done is closed when the operation has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the operation has finished and returns its error.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

type operation struct {
	priority Priority
	run      func() error
	future   *Future
}

// Options configures a Sequencer.
type Options struct {
	// Logger receives worker lifecycle records. Nil discards them.
	Logger *slog.Logger
}

// Sequencer owns the single worker goroutine of a drive.
type Sequencer struct {
	logger *slog.Logger

	mu       sync.Mutex
	wake     *sync.Cond
	high     []*operation
	low      []*operation
	closing  bool
	finished chan struct{}
}

// New starts the worker goroutine. Close must be called to stop it.
func New(options Options) *Sequencer {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Sequencer{
		logger:   logger,
		finished: make(chan struct{}),
	}
	s.wake = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// Submit queues fn and returns its future. After Close has begun, fn is
// not run and an already completed future with a nil error is returned.
func (s *Sequencer) Submit(priority Priority, fn func() error) *Future {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		s.logger.Debug("operation submitted after close ignored", "priority", priority)
		return completed
	}
	op := &operation{priority: priority, run: fn, future: newFuture()}
	if priority == FileTable {
		s.high = append(s.high, op)
	} else {
		s.low = append(s.low, op)
	}
	s.wake.Signal()
	return op.future
}

// Do submits fn and waits for it.
func (s *Sequencer) Do(priority Priority, fn func() error) error {
	return s.Submit(priority, fn).Wait()
}

// Pending returns the number of queued operations per priority.
func (s *Sequencer) Pending() (fileTable, data int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.high), len(s.low)
}

// Close stops accepting operations, waits for every queued operation to
// run, then runs final on the worker (typically: write the trailer and
// close the device) and stops the worker. final may be nil. Close is not
// idempotent: a second call returns an error.
func (s *Sequencer) Close(final func() error) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return errors.New("sequencer already closed")
	}
	// The final operation is queued before closing flips, so it is the
	// last one the worker picks up.
	op := &operation{priority: Data, run: final, future: newFuture()}
	if final == nil {
		op.run = func() error { return nil }
	}
	s.low = append(s.low, op)
	s.closing = true
	s.wake.Signal()
	s.mu.Unlock()

	err := op.future.Wait()
	<-s.finished
	return err
}

// next blocks until an operation is available. It returns nil when the
// sequencer is closing and both queues are drained.
func (s *Sequencer) next() *operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.high) == 0 && len(s.low) == 0 {
		if s.closing {
			return nil
		}
		s.wake.Wait()
	}
	if len(s.high) > 0 {
		op := s.high[0]
		s.high[0] = nil
		s.high = s.high[1:]
		return op
	}
	op := s.low[0]
	s.low[0] = nil
	s.low = s.low[1:]
	return op
}

func (s *Sequencer) loop() {
	defer close(s.finished)
	for {
		op := s.next()
		if op == nil {
			s.logger.Debug("sequencer drained")
			return
		}
		op.future.err = s.run(op)
		close(op.future.done)
	}
}

// run executes one operation, turning a panic into that operation's
// error so one bad operation does not take down every caller.
func (s *Sequencer) run(op *operation) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("drive operation panicked",
				"priority", op.priority,
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("drive operation panicked: %v", recovered)
		}
	}()
	return op.run()
}
