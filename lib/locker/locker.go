// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package locker provides advisory, non-blocking read and write locks on
// drive entries. Locks are reference counts per entry; nothing ever
// waits. An operation that finds an entry locked fails immediately and
// the caller reports access denied.
//
// Read and write counts are independent: an entry may hold both. A
// write stream holds a write lock and a read lock on its file, so
// neither another writer nor a rename can take the file, and other
// readers are refused while it is open.
package locker

import (
	"fmt"
	"sync"

	"github.com/bureau-foundation/vdrive/lib/format"
)

// Kind separates the file and directory id spaces.
type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// Key identifies one entry.
type Key struct {
	Kind Kind
	ID   int64
}

func (k Key) String() string { return fmt.Sprintf("%s:%d", k.Kind, k.ID) }

// KeyOf returns the lock key of an entry.
func KeyOf(entry *format.Entry) Key {
	if entry.IsDirectory() {
		return Key{Kind: KindDirectory, ID: entry.ID}
	}
	return Key{Kind: KindFile, ID: entry.ID}
}

// KeysOf returns the lock keys of several entries.
func KeysOf(entries ...*format.Entry) []Key {
	keys := make([]Key, len(entries))
	for i, entry := range entries {
		keys[i] = KeyOf(entry)
	}
	return keys
}

// Release drops the locks taken by one call. Calling it more than once
// has no further effect.
type Release func()

// Locker tracks read and write counts per entry.
type Locker struct {
	mu      sync.Mutex
	readers map[Key]int
	writers map[Key]int
}

// New returns a Locker with no locks held.
func New() *Locker {
	return &Locker{
		readers: make(map[Key]int),
		writers: make(map[Key]int),
	}
}

// CanRead reports whether no key is write-locked.
func (l *Locker) CanRead(keys ...Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canRead(keys)
}

// CanWrite reports whether no key is locked at all.
func (l *Locker) CanWrite(keys ...Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canWrite(keys)
}

func (l *Locker) canRead(keys []Key) bool {
	for _, key := range keys {
		if l.writers[key] > 0 {
			return false
		}
	}
	return true
}

func (l *Locker) canWrite(keys []Key) bool {
	for _, key := range keys {
		if l.writers[key] > 0 || l.readers[key] > 0 {
			return false
		}
	}
	return true
}

// LockReading unconditionally adds a read lock on every key.
func (l *Locker) LockReading(keys ...Key) Release {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lock(l.readers, keys)
}

// LockWriting unconditionally adds a write lock on every key.
func (l *Locker) LockWriting(keys ...Key) Release {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lock(l.writers, keys)
}

// TryLockReading read-locks every key if none is write-locked.
func (l *Locker) TryLockReading(keys ...Key) (Release, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.canRead(keys) {
		return nil, false
	}
	return l.lock(l.readers, keys), true
}

// TryLockWriting write-locks every key if none is locked.
func (l *Locker) TryLockWriting(keys ...Key) (Release, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.canWrite(keys) {
		return nil, false
	}
	return l.lock(l.writers, keys), true
}

// lock must be called with l.mu held.
func (l *Locker) lock(counts map[Key]int, keys []Key) Release {
	held := append([]Key(nil), keys...)
	for _, key := range held {
		counts[key]++
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for _, key := range held {
				if counts[key] <= 1 {
					delete(counts, key)
				} else {
					counts[key]--
				}
			}
		})
	}
}

// Counts returns the read and write counts of one key.
func (l *Locker) Counts(key Key) (readers, writers int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readers[key], l.writers[key]
}

// Chain combines several releases into one, released in reverse order.
func Chain(releases ...Release) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(releases) - 1; i >= 0; i-- {
				if releases[i] != nil {
					releases[i]()
				}
			}
		})
	}
}
