// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sequencer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/vdrive/lib/testutil"
)

func TestFileTableOperationsJumpAheadOfData(t *testing.T) {
	s := New(Options{})
	defer s.Close(nil)

	started := make(chan struct{})
	release := make(chan struct{})
	gate := s.Submit(Data, func() error {
		close(started)
		<-release
		return nil
	})
	testutil.RequireClosed(t, started, 5*time.Second, "gate operation started")

	// Only the worker appends to order, and every read happens after the
	// corresponding future completed.
	var order []string
	record := func(name string) func() error {
		return func() error {
			order = append(order, name)
			return nil
		}
	}
	data1 := s.Submit(Data, record("data-1"))
	data2 := s.Submit(Data, record("data-2"))
	table1 := s.Submit(FileTable, record("table-1"))
	table2 := s.Submit(FileTable, record("table-2"))

	if fileTable, data := s.Pending(); fileTable != 2 || data != 2 {
		t.Fatalf("Pending() = %d, %d; want 2, 2", fileTable, data)
	}

	close(release)
	for _, future := range []*Future{gate, data1, data2, table1, table2} {
		if err := future.Wait(); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}

	want := "table-1,table-2,data-1,data-2"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("execution order = %s, want %s", got, want)
	}
}

func TestMetadataInjectedBetweenDataOperations(t *testing.T) {
	s := New(Options{})
	defer s.Close(nil)

	var order []string
	injected := make(chan *Future, 1)
	first := s.Submit(Data, func() error {
		order = append(order, "data-1")
		// Submitting (without waiting) from inside an operation is allowed.
		injected <- s.Submit(FileTable, func() error {
			order = append(order, "table")
			return nil
		})
		return nil
	})
	second := s.Submit(Data, func() error {
		order = append(order, "data-2")
		return nil
	})

	if err := first.Wait(); err != nil {
		t.Fatalf("first: %v", err)
	}
	table := testutil.RequireReceive(t, injected, 5*time.Second, "injected future")
	if err := table.Wait(); err != nil {
		t.Fatalf("table: %v", err)
	}
	if err := second.Wait(); err != nil {
		t.Fatalf("second: %v", err)
	}

	if got := strings.Join(order, ","); got != "data-1,table,data-2" {
		t.Errorf("execution order = %s, want data-1,table,data-2", got)
	}
}

func TestErrorsAndPanicsReachTheCaller(t *testing.T) {
	s := New(Options{})
	defer s.Close(nil)

	sentinel := errors.New("disk on fire")
	if err := s.Do(FileTable, func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("Do error = %v, want %v", err, sentinel)
	}

	err := s.Do(Data, func() error { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Do(panic) error = %v, want a panic error", err)
	}

	// The worker survives a panicking operation.
	ran := false
	if err := s.Do(Data, func() error { ran = true; return nil }); err != nil || !ran {
		t.Errorf("operation after panic: ran=%v err=%v", ran, err)
	}
}

func TestCloseDrainsThenRunsFinal(t *testing.T) {
	s := New(Options{})

	started := make(chan struct{})
	release := make(chan struct{})
	var order []string
	s.Submit(Data, func() error {
		close(started)
		<-release
		order = append(order, "slow")
		return nil
	})
	testutil.RequireClosed(t, started, 5*time.Second, "slow operation started")
	s.Submit(FileTable, func() error {
		order = append(order, "table")
		return nil
	})

	closed := make(chan error, 1)
	go func() {
		closed <- s.Close(func() error {
			order = append(order, "final")
			return errors.New("final error")
		})
	}()

	// Wait until Close has flipped the closing flag before checking that
	// late submissions are ignored.
	for {
		s.mu.Lock()
		closing := s.closing
		s.mu.Unlock()
		if closing {
			break
		}
		time.Sleep(time.Millisecond) //nolint:realclock polling an internal flag
	}

	late := false
	future := s.Submit(FileTable, func() error { late = true; return nil })
	select {
	case <-future.Done():
	default:
		t.Fatal("future submitted after Close is not already complete")
	}
	if err := future.Wait(); err != nil {
		t.Errorf("late future error = %v, want nil", err)
	}

	close(release)
	err := testutil.RequireReceive(t, closed, 5*time.Second, "Close returned")
	if err == nil || err.Error() != "final error" {
		t.Errorf("Close error = %v, want final error", err)
	}
	if late {
		t.Error("operation submitted after Close ran")
	}
	if got := strings.Join(order, ","); got != "slow,table,final" {
		t.Errorf("execution order = %s, want slow,table,final", got)
	}

	if err := s.Close(nil); err == nil {
		t.Error("second Close returned nil")
	}
}
