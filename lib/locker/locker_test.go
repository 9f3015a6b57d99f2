// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package locker

import (
	"sync"
	"testing"

	"github.com/bureau-foundation/vdrive/lib/format"
)

var (
	fileKey      = Key{Kind: KindFile, ID: 3}
	directoryKey = Key{Kind: KindDirectory, ID: 3}
)

func TestKindsAreSeparate(t *testing.T) {
	l := New()
	release := l.LockWriting(fileKey)
	defer release()
	if !l.CanWrite(directoryKey) {
		t.Error("write lock on file 3 blocks directory 3")
	}
}

func TestReadersBlockWriters(t *testing.T) {
	l := New()
	release := l.LockReading(fileKey)

	if !l.CanRead(fileKey) {
		t.Error("CanRead false with only readers")
	}
	if l.CanWrite(fileKey) {
		t.Error("CanWrite true with a reader")
	}
	if _, ok := l.TryLockWriting(fileKey); ok {
		t.Error("TryLockWriting succeeded with a reader")
	}
	release()
	if !l.CanWrite(fileKey) {
		t.Error("CanWrite false after release")
	}
}

func TestWritersBlockEverything(t *testing.T) {
	l := New()
	release, ok := l.TryLockWriting(fileKey)
	if !ok {
		t.Fatal("TryLockWriting on an idle key failed")
	}
	if l.CanRead(fileKey) {
		t.Error("CanRead true with a writer")
	}
	if _, ok := l.TryLockReading(fileKey); ok {
		t.Error("TryLockReading succeeded with a writer")
	}
	if _, ok := l.TryLockWriting(fileKey); ok {
		t.Error("second TryLockWriting succeeded")
	}
	release()
	if _, ok := l.TryLockReading(fileKey); !ok {
		t.Error("TryLockReading failed after release")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	l := New()
	first := l.LockReading(fileKey)
	second := l.LockReading(fileKey)
	first()
	first()
	if readers, _ := l.Counts(fileKey); readers != 1 {
		t.Errorf("readers = %d after double release of one lock, want 1", readers)
	}
	second()
	if readers, _ := l.Counts(fileKey); readers != 0 {
		t.Errorf("readers = %d, want 0", readers)
	}
}

func TestTryLockWritingIsAllOrNothing(t *testing.T) {
	l := New()
	other := Key{Kind: KindFile, ID: 4}
	hold := l.LockReading(other)
	defer hold()

	if _, ok := l.TryLockWriting(fileKey, other); ok {
		t.Fatal("TryLockWriting succeeded with one key read-locked")
	}
	if _, writers := l.Counts(fileKey); writers != 0 {
		t.Errorf("failed TryLockWriting left %d writers on the free key", writers)
	}
}

// TestWriteStreamPattern mirrors how the filesystem guards an open write
// stream: file write + file read + ancestor directory writes.
func TestWriteStreamPattern(t *testing.T) {
	l := New()
	file := &format.Entry{Mark: format.MarkFile, ID: 9}
	parent := &format.Entry{Mark: format.MarkDirectory, ID: 2}
	root := &format.Entry{Mark: format.MarkDirectory, ID: format.RootID}

	write, ok := l.TryLockWriting(KeyOf(file))
	if !ok {
		t.Fatal("TryLockWriting failed")
	}
	stream := Chain(write, l.LockReading(KeyOf(file)), l.LockWriting(KeysOf(parent, root)...))

	if _, ok := l.TryLockWriting(KeyOf(file)); ok {
		t.Error("rename of the open file would succeed")
	}
	if _, ok := l.TryLockWriting(KeyOf(parent)); ok {
		t.Error("rename of the parent directory would succeed")
	}
	if l.CanRead(KeyOf(file)) {
		t.Error("a reader could open the file")
	}

	stream()
	stream()
	for _, key := range KeysOf(file, parent, root) {
		if readers, writers := l.Counts(key); readers != 0 || writers != 0 {
			t.Errorf("%s still holds %d readers, %d writers", key, readers, writers)
		}
	}
}

func TestConcurrentTryLockWriting(t *testing.T) {
	l := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := l.TryLockWriting(fileKey); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("%d goroutines took the write lock, want exactly 1", winners)
	}
}
