// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"math/rand/v2"
	"path/filepath"
	"testing"
)

// DrivePath returns a path for a new backing file. The file does not
// exist yet; the directory is removed when the test completes.
func DrivePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "drive.vd")
}

// Content returns length pseudo-random bytes derived from seed. The same
// seed always yields the same bytes, so a test can regenerate expected
// content instead of keeping it around.
func Content(seed uint64, length int) []byte {
	source := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	data := make([]byte, length)
	for i := range data {
		data[i] = byte(source.Uint32())
	}
	return data
}
