// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/vdrive/lib/testutil"
)

const timeout = 5 * time.Second

func TestFanOut(t *testing.T) {
	registry := New(Options{})
	defer registry.Close()

	first, err := registry.Watch(4)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer first.Close()
	second, err := registry.Watch(4)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer second.Close()
	other, err := registry.Watch(5)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer other.Close()

	if got := registry.Watching(4); got != 2 {
		t.Errorf("Watching(4) = %d, want 2", got)
	}

	registry.Notify(4, Event{Type: Created, EntryID: 11, Path: "docs/a.txt"})
	for _, w := range []*Watcher{first, second} {
		event := testutil.RequireReceive(t, w.Events(), timeout, "created event")
		if event.Type != Created || event.EntryID != 11 || event.DirectoryID != 4 {
			t.Errorf("event = %+v", event)
		}
	}
	testutil.RequireNoReceive(t, other.Events(), 50*time.Millisecond, "unrelated directory")
}

// TestNotifyNeverBlocks queues far more events than the channel holds
// with no reader, then checks they all arrive in order.
func TestNotifyNeverBlocks(t *testing.T) {
	registry := New(Options{Buffer: 1})
	defer registry.Close()
	w, err := registry.Watch(1)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	const count = 1000
	done := make(chan struct{})
	go func() {
		for i := range count {
			registry.Notify(1, Event{Type: Updated, EntryID: int64(i)})
		}
		close(done)
	}()
	testutil.RequireClosed(t, done, timeout, "notifier finished without a reader")

	for i := range count {
		event := testutil.RequireReceive(t, w.Events(), timeout, "event %d", i)
		if event.EntryID != int64(i) {
			t.Fatalf("event %d has entry %d", i, event.EntryID)
		}
	}
}

func TestCloseWatcher(t *testing.T) {
	registry := New(Options{})
	defer registry.Close()
	w, err := registry.Watch(2)
	if err != nil {
		t.Fatal(err)
	}

	w.Close()
	w.Close()
	if got := registry.Watching(2); got != 0 {
		t.Errorf("Watching(2) = %d after Close, want 0", got)
	}
	select {
	case _, ok := <-w.Events():
		if ok {
			t.Error("received an event after Close")
		}
	case <-time.After(timeout):
		t.Fatal("Events channel not closed")
	}
	// Notifying a directory nobody watches is a no-op.
	registry.Notify(2, Event{Type: Deleted})
}

func TestCloseRegistry(t *testing.T) {
	registry := New(Options{})
	w, err := registry.Watch(3)
	if err != nil {
		t.Fatal(err)
	}
	registry.Close()

	select {
	case _, ok := <-w.Events():
		if ok {
			t.Error("received an event after registry Close")
		}
	case <-time.After(timeout):
		t.Fatal("watcher not closed with the registry")
	}
	if _, err := registry.Watch(3); !errors.Is(err, ErrClosed) {
		t.Errorf("Watch after Close = %v, want ErrClosed", err)
	}
}
