// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"errors"
	"testing"

	"github.com/bureau-foundation/vdrive/lib/format"
)

func directory(id, parent int64, name string) *format.Entry {
	return &format.Entry{Mark: format.MarkDirectory, ID: id, ParentID: parent, Name: name}
}

func file(id, parent int64, name, extension string) *format.Entry {
	return &format.Entry{Mark: format.MarkFile, ID: id, ParentID: parent, Name: name, Extension: extension}
}

// tree is /docs/{a.txt, reports/{q1.pdf}} and /b.bin.
func tree(t *testing.T) (*Index, map[string]*format.Entry) {
	t.Helper()
	entries := map[string]*format.Entry{
		"root":    directory(format.RootID, format.NoParent, ""),
		"docs":    directory(1, format.RootID, "docs"),
		"reports": directory(4, 1, "reports"),
		"a":       file(0, 1, "a", "txt"),
		"q1":      file(7, 4, "q1", "pdf"),
		"b":       file(2, format.RootID, "b", "bin"),
	}
	list := make([]*format.Entry, 0, len(entries))
	for _, entry := range entries {
		list = append(list, entry)
	}
	x, err := New(list)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return x, entries
}

func TestNewSeedsIDs(t *testing.T) {
	x, _ := tree(t)
	if id := x.NewFileID(); id != 8 {
		t.Errorf("NewFileID() = %d, want 8", id)
	}
	if id := x.NewFileID(); id != 9 {
		t.Errorf("second NewFileID() = %d, want 9", id)
	}
	if id := x.NewDirectoryID(); id != 5 {
		t.Errorf("NewDirectoryID() = %d, want 5", id)
	}
}

func TestNewRejectsCorruptEntries(t *testing.T) {
	root := directory(format.RootID, format.NoParent, "")
	tests := []struct {
		name    string
		entries []*format.Entry
	}{
		{"no root", []*format.Entry{directory(1, format.RootID, "x")}},
		{"duplicate file", []*format.Entry{root, file(3, 0, "a", ""), file(3, 0, "b", "")}},
		{"duplicate directory", []*format.Entry{root, directory(2, 0, "a"), directory(2, 0, "b")}},
		{"root with parent", []*format.Entry{directory(format.RootID, 5, "")}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := New(test.entries); !errors.Is(err, format.ErrCorrupt) {
				t.Errorf("New = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestFileAndDirectoryIDsAreSeparate(t *testing.T) {
	root := directory(format.RootID, format.NoParent, "")
	x, err := New([]*format.Entry{root, directory(1, 0, "one"), file(1, 0, "one", "txt")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := x.File(1); !ok {
		t.Error("file 1 missing")
	}
	if _, ok := x.Directory(1); !ok {
		t.Error("directory 1 missing")
	}
}

func TestChildren(t *testing.T) {
	x, entries := tree(t)

	files := x.DirectoryFiles(entries["docs"].ID)
	if len(files) != 1 || files[0] != entries["a"] {
		t.Errorf("DirectoryFiles(docs) = %v", files)
	}
	directories := x.NestedDirectories(format.RootID)
	if len(directories) != 1 || directories[0] != entries["docs"] {
		t.Errorf("NestedDirectories(root) = %v", directories)
	}
	if got, ok := x.ChildFile(1, "A.TXT"); !ok || got != entries["a"] {
		t.Errorf("ChildFile(docs, A.TXT) = %v, %v", got, ok)
	}
	if _, ok := x.ChildFile(1, "a"); ok {
		t.Error("ChildFile matched a name without its extension")
	}
	if got, ok := x.ChildDirectory(1, "Reports"); !ok || got != entries["reports"] {
		t.Errorf("ChildDirectory(docs, Reports) = %v, %v", got, ok)
	}
}

func TestPathAndAncestors(t *testing.T) {
	x, entries := tree(t)

	if got := x.Path(entries["q1"]); got != "docs/reports/q1.pdf" {
		t.Errorf("Path(q1) = %q", got)
	}
	if got := x.Path(entries["root"]); got != "" {
		t.Errorf("Path(root) = %q", got)
	}
	ancestors := x.Ancestors(entries["q1"])
	if len(ancestors) != 3 || ancestors[0] != entries["reports"] || ancestors[2] != entries["root"] {
		t.Errorf("Ancestors(q1) = %v", ancestors)
	}
	if !x.IsWithin(entries["q1"], entries["docs"]) {
		t.Error("q1 not within docs")
	}
	if !x.IsWithin(entries["docs"], entries["docs"]) {
		t.Error("docs not within itself")
	}
	if x.IsWithin(entries["b"], entries["docs"]) {
		t.Error("b within docs")
	}
}

func TestAddRemoveReparent(t *testing.T) {
	x, entries := tree(t)

	created := file(x.NewFileID(), entries["reports"].ID, "q2", "pdf")
	if err := x.Add(created); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := x.Add(file(x.NewFileID(), 99, "lost", "")); err == nil {
		t.Error("Add under a missing parent succeeded")
	}
	if got := len(x.DirectoryFiles(entries["reports"].ID)); got != 2 {
		t.Errorf("reports holds %d files, want 2", got)
	}

	if err := x.Reparent(entries["reports"], format.RootID); err != nil {
		t.Fatalf("Reparent: %v", err)
	}
	if entries["reports"].ParentID != format.RootID {
		t.Errorf("ParentID = %d after reparent", entries["reports"].ParentID)
	}
	if got := len(x.NestedDirectories(entries["docs"].ID)); got != 0 {
		t.Errorf("docs still holds %d directories", got)
	}
	if got := x.Path(created); got != "reports/q2.pdf" {
		t.Errorf("Path(q2) = %q after moving reports", got)
	}

	x.Remove(created)
	if _, ok := x.File(created.ID); ok {
		t.Error("removed file still present")
	}
	if files, directories := x.Counts(); files != 3 || directories != 3 {
		t.Errorf("Counts() = %d, %d, want 3, 3", files, directories)
	}
}

func TestOrphans(t *testing.T) {
	root := directory(format.RootID, format.NoParent, "")
	orphan := file(1, 42, "stray", "")
	x, err := New([]*format.Entry{root, orphan})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := x.Orphans(); len(got) != 1 || got[0] != orphan {
		t.Errorf("Orphans() = %v", got)
	}
}
