// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"io"
	"sync"
)

// Memory is a drive held in a byte slice. It behaves like File (writes
// past the end grow it, Truncate shrinks it) and is used by tests and by
// scratch drives that never touch the host filesystem.
type Memory struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// NewMemory returns an empty in-memory drive.
func NewMemory() *Memory { return &Memory{} }

// NewMemoryFrom returns an in-memory drive holding a copy of data.
func NewMemoryFrom(data []byte) *Memory {
	return &Memory{data: append([]byte(nil), data...)}
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 {
		return 0, fmt.Errorf("read at negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 {
		return 0, fmt.Errorf("write at negative offset %d", off)
	}
	if end := off + int64(len(p)); end > int64(len(m.data)) {
		m.grow(end)
	}
	return copy(m.data[off:], p), nil
}

func (m *Memory) grow(size int64) {
	if size <= int64(cap(m.data)) {
		m.data = m.data[:size]
		return
	}
	grown := make([]byte, size, size+size/4)
	copy(grown, m.data)
	m.data = grown
}

func (m *Memory) Size() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data)), nil
}

func (m *Memory) Truncate(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if size < 0 {
		return fmt.Errorf("truncate to negative size %d", size)
	}
	if size > int64(len(m.data)) {
		m.grow(size)
		return nil
	}
	clear(m.data[size:])
	m.data = m.data[:size]
	return nil
}

func (m *Memory) Sync() error { return nil }

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Bytes returns a copy of the drive contents. Tests use it to reopen a
// drive image or to corrupt it deliberately.
func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
