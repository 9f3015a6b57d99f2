// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package namecache

import (
	"testing"
)

func TestPathDigestFoldsCaseAndSeparators(t *testing.T) {
	if PathDigest("/Docs/Report.TXT/") != PathDigest("docs/report.txt") {
		t.Error("digest depends on case or edge separators")
	}
	if PathDigest("docs/a") == PathDigest("docs/b") {
		t.Error("different paths share a digest")
	}
}

func TestNamesLookup(t *testing.T) {
	names := NewNames()
	names.Add(7, "docs/report.txt")

	if path, ok := names.Path(7); !ok || path != "docs/report.txt" {
		t.Errorf("Path(7) = %q, %v", path, ok)
	}
	if id, ok := names.ID("/DOCS/Report.txt"); !ok || id != 7 {
		t.Errorf("ID = %d, %v, want 7", id, ok)
	}

	names.Add(7, "docs/renamed.txt")
	if _, ok := names.ID("docs/report.txt"); ok {
		t.Error("old path still resolves after Add replaced it")
	}
	if id, ok := names.ID("docs/renamed.txt"); !ok || id != 7 {
		t.Errorf("ID(renamed) = %d, %v", id, ok)
	}

	names.Remove(7)
	if _, ok := names.Path(7); ok {
		t.Error("Path(7) present after Remove")
	}
	if names.Len() != 0 {
		t.Errorf("Len() = %d after Remove", names.Len())
	}
}

func TestNamesRemoveTree(t *testing.T) {
	names := NewNames()
	names.Add(1, "a")
	names.Add(2, "a/b")
	names.Add(3, "a/b/c.dat")
	names.Add(4, "ab")
	names.Add(5, "x/a")

	names.RemoveTree("/A/")
	for _, id := range []int64{1, 2, 3} {
		if _, ok := names.Path(id); ok {
			t.Errorf("id %d still cached under the removed tree", id)
		}
	}
	for _, id := range []int64{4, 5} {
		if _, ok := names.Path(id); !ok {
			t.Errorf("id %d outside the tree was dropped", id)
		}
	}

	names.RemoveTree("")
	if names.Len() != 0 {
		t.Errorf("Len() = %d after removing the root tree", names.Len())
	}
}

func TestObjectsIdentity(t *testing.T) {
	type wrapper struct{ id int64 }
	objects := NewObjects[*wrapper]()
	created := 0
	create := func() *wrapper {
		created++
		return &wrapper{id: 1}
	}

	first := objects.Get(1, create)
	second := objects.Get(1, create)
	if first != second || created != 1 {
		t.Errorf("Get returned distinct objects (created %d)", created)
	}
	objects.Remove(1)
	if _, ok := objects.Lookup(1); ok {
		t.Error("Lookup found a removed object")
	}
	if third := objects.Get(1, create); third == first {
		t.Error("Get after Remove returned the stale object")
	}
}
