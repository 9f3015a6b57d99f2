// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watch delivers structural change notifications for drive
// directories.
//
// A [Registry] keeps every open [Watcher] keyed by the id of the
// directory it watches. Several watchers on one directory all receive
// every event. Notify never blocks: each watcher has an unbounded queue
// drained into its Events channel by a goroutine of its own, so a slow
// consumer delays only itself and loses nothing.
package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Watch after the registry is closed.
var ErrClosed = errors.New("watch registry is closed")

// Type is the kind of change an event reports.
type Type uint8

const (
	// Created: a file or directory appeared in the watched directory.
	Created Type = iota + 1
	// Updated: a child of the watched directory was renamed, resized
	// or otherwise rewritten.
	Updated
	// Deleted: a child of the watched directory was removed or moved
	// away.
	Deleted
	// NameChanged: the watched directory itself was renamed or moved.
	NameChanged
)

func (t Type) String() string {
	switch t {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	case NameChanged:
		return "name-changed"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Event describes one change.
type Event struct {
	Type Type

	// DirectoryID is the watched directory.
	DirectoryID int64

	// EntryID and IsDirectory identify the entry that changed. For
	// NameChanged it is the watched directory.
	EntryID     int64
	IsDirectory bool

	// Path is the entry's path after the change (before it, for
	// Deleted).
	Path string
}

// Options configures a Registry.
type Options struct {
	// Buffer is the capacity of each watcher's Events channel. Events
	// beyond it wait in the watcher's queue. Zero means unbuffered.
	Buffer int

	Logger *slog.Logger
}

// Registry tracks open watchers.
type Registry struct {
	buffer int
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	watchers map[int64]map[*Watcher]struct{}
}

// New returns an empty registry.
func New(options Options) *Registry {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		buffer:   max(options.Buffer, 0),
		logger:   logger,
		watchers: make(map[int64]map[*Watcher]struct{}),
	}
}

// Watch opens a watcher on a directory. The caller must Close it.
func (r *Registry) Watch(directoryID int64) (*Watcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	w := &Watcher{
		registry:    r,
		directoryID: directoryID,
		events:      make(chan Event, r.buffer),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	set := r.watchers[directoryID]
	if set == nil {
		set = make(map[*Watcher]struct{})
		r.watchers[directoryID] = set
	}
	set[w] = struct{}{}
	go w.deliver()
	r.logger.Debug("watcher opened", "directory", directoryID, "watchers", len(set))
	return w, nil
}

// Notify queues event for every watcher of directoryID.
func (r *Registry) Notify(directoryID int64, event Event) {
	event.DirectoryID = directoryID

	// Snapshot under the lock, push after releasing it.
	r.mu.Lock()
	set := r.watchers[directoryID]
	targets := make([]*Watcher, 0, len(set))
	for w := range set {
		targets = append(targets, w)
	}
	r.mu.Unlock()

	for _, w := range targets {
		w.push(event)
	}
}

// Watching returns the number of open watchers on a directory.
func (r *Registry) Watching(directoryID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers[directoryID])
}

// Close closes every open watcher and refuses new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	var all []*Watcher
	for _, set := range r.watchers {
		for w := range set {
			all = append(all, w)
		}
	}
	r.mu.Unlock()

	for _, w := range all {
		w.Close()
	}
}

func (r *Registry) remove(w *Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.watchers[w.directoryID]
	delete(set, w)
	if len(set) == 0 {
		delete(r.watchers, w.directoryID)
	}
}

// Watcher receives the events of one directory.
type Watcher struct {
	registry    *Registry
	directoryID int64
	events      chan Event
	wake        chan struct{}
	done        chan struct{}
	closeOnce   sync.Once

	mu    sync.Mutex
	queue []Event
}

// DirectoryID returns the id of the watched directory.
func (w *Watcher) DirectoryID() int64 { return w.directoryID }

// Events returns the delivery channel. It is closed after Close.
// Events still queued at Close are discarded.
func (w *Watcher) Events() <-chan Event { return w.events }

// Close stops delivery and unregisters the watcher. It is safe to call
// more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.registry.remove(w)
		close(w.done)
	})
	return nil
}

func (w *Watcher) push(event Event) {
	w.mu.Lock()
	w.queue = append(w.queue, event)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watcher) deliver() {
	defer close(w.events)
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.mu.Unlock()
			select {
			case <-w.wake:
				continue
			case <-w.done:
				return
			}
		}
		next := w.queue[0]
		w.queue[0] = Event{}
		w.queue = w.queue[1:]
		w.mu.Unlock()

		select {
		case w.events <- next:
		case <-w.done:
			return
		}
	}
}
