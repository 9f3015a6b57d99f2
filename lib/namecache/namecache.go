// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package namecache memoizes the mapping between entry ids and their
// paths inside a drive, in both directions, and keeps one wrapper object
// per entry.
//
// Paths are derived from the parent chain, so a rename or move
// invalidates the cached path of the entry and of everything below it.
// Reverse lookups are keyed by a BLAKE3 digest of the case-folded path:
// lookups are case-insensitive like sibling name checks, and long paths
// cost a fixed 32 bytes per key.
package namecache

import (
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// Digest is the reverse-lookup key of a path.
type Digest [32]byte

// pathDomainKey keys the BLAKE3 hash so path digests never collide with
// digests computed for other purposes.
var pathDomainKey = [32]byte{
	'v', 'd', 'r', 'i', 'v', 'e', '.', 'n', 'a', 'm', 'e', 'c', 'a', 'c', 'h', 'e',
	'.', 'p', 'a', 't', 'h', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// fold normalizes a path for comparison: separators and spaces trimmed
// from both ends, upper case.
func fold(path string) string {
	return strings.ToUpper(strings.Trim(path, "/ "))
}

// PathDigest returns the case-insensitive digest of path.
func PathDigest(path string) Digest {
	hasher, err := blake3.NewKeyed(pathDomainKey[:])
	if err != nil {
		panic("namecache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(fold(path)))
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// Names caches id↔path for one kind of entry.
type Names struct {
	mu    sync.RWMutex
	paths map[int64]string
	ids   map[Digest]int64
}

// NewNames returns an empty cache.
func NewNames() *Names {
	return &Names{
		paths: make(map[int64]string),
		ids:   make(map[Digest]int64),
	}
}

// Path returns the cached path of id.
func (n *Names) Path(id int64) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	path, ok := n.paths[id]
	return path, ok
}

// ID returns the id cached for path, ignoring case.
func (n *Names) ID(path string) (int64, bool) {
	digest := PathDigest(path)
	n.mu.RLock()
	defer n.mu.RUnlock()
	id, ok := n.ids[digest]
	return id, ok
}

// Add records path for id, replacing any previous path of id.
func (n *Names) Add(id int64, path string) {
	digest := PathDigest(path)
	n.mu.Lock()
	defer n.mu.Unlock()
	if previous, ok := n.paths[id]; ok {
		delete(n.ids, PathDigest(previous))
	}
	n.paths[id] = path
	n.ids[digest] = id
}

// Remove forgets id.
func (n *Names) Remove(id int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.remove(id)
}

func (n *Names) remove(id int64) {
	path, ok := n.paths[id]
	if !ok {
		return
	}
	delete(n.paths, id)
	digest := PathDigest(path)
	if n.ids[digest] == id {
		delete(n.ids, digest)
	}
}

// RemoveTree forgets path and every cached path below it.
func (n *Names) RemoveTree(path string) {
	prefix := fold(path)
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, cached := range n.paths {
		folded := fold(cached)
		if prefix == "" || folded == prefix || strings.HasPrefix(folded, prefix+"/") {
			n.remove(id)
		}
	}
}

// Len returns the number of cached paths.
func (n *Names) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.paths)
}

// Objects keeps at most one value per id, so two lookups of the same
// entry return the same wrapper.
type Objects[T any] struct {
	mu    sync.Mutex
	items map[int64]T
}

// NewObjects returns an empty identity cache.
func NewObjects[T any]() *Objects[T] {
	return &Objects[T]{items: make(map[int64]T)}
}

// Get returns the value for id, creating it with create on first use.
func (o *Objects[T]) Get(id int64, create func() T) T {
	o.mu.Lock()
	defer o.mu.Unlock()
	if item, ok := o.items[id]; ok {
		return item
	}
	item := create()
	o.items[id] = item
	return item
}

// Lookup returns the value for id without creating one.
func (o *Objects[T]) Lookup(id int64) (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[id]
	return item, ok
}

// Remove forgets id.
func (o *Objects[T]) Remove(id int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, id)
}

// Len returns the number of cached values.
func (o *Objects[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}
