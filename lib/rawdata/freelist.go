// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rawdata

import (
	"cmp"
	"slices"

	"github.com/bureau-foundation/vdrive/lib/format"
)

// freeList indexes reclaimable content blocks by exact length. Blocks of
// one length are handed out first-in first-out.
type freeList struct {
	byLength map[int64][]format.Block
	count    int
	bytes    int64
}

func newFreeList() *freeList {
	return &freeList{byLength: make(map[int64][]format.Block)}
}

func (f *freeList) add(block format.Block) {
	if block.Length <= 0 {
		return
	}
	f.byLength[block.Length] = append(f.byLength[block.Length], block)
	f.count++
	f.bytes += block.Length
}

func (f *freeList) pop(length int64) format.Block {
	queue := f.byLength[length]
	block := queue[0]
	if len(queue) == 1 {
		delete(f.byLength, length)
	} else {
		f.byLength[length] = queue[1:]
	}
	f.count--
	f.bytes -= block.Length
	return block
}

// take returns a block of exactly length bytes: an exact match if one
// exists, otherwise the front of the smallest larger block, whose
// remainder goes back on the list.
func (f *freeList) take(length int64) (format.Block, bool) {
	if _, ok := f.byLength[length]; ok {
		return f.pop(length), true
	}
	best := int64(-1)
	for candidate := range f.byLength {
		if candidate > length && (best < 0 || candidate < best) {
			best = candidate
		}
	}
	if best < 0 {
		return format.Block{}, false
	}
	block := f.pop(best)
	f.add(format.Block{Position: block.Position + length, Length: block.Length - length})
	return format.Block{Position: block.Position, Length: length}, true
}

// takeEndingAt removes and returns a block that ends exactly at end and
// starts at or after start.
func (f *freeList) takeEndingAt(start, end int64) (format.Block, bool) {
	for length, queue := range f.byLength {
		for i, block := range queue {
			if block.End() != end || block.Position < start {
				continue
			}
			if len(queue) == 1 {
				delete(f.byLength, length)
			} else {
				f.byLength[length] = slices.Delete(queue, i, i+1)
			}
			f.count--
			f.bytes -= block.Length
			return block, true
		}
	}
	return format.Block{}, false
}

func sortBlocks(blocks []format.Block) {
	slices.SortFunc(blocks, func(a, b format.Block) int {
		return cmp.Compare(a.Position, b.Position)
	})
}

// blocks returns every free block ordered by position.
func (f *freeList) blocks() []format.Block {
	all := make([]format.Block, 0, f.count)
	for _, queue := range f.byLength {
		all = append(all, queue...)
	}
	sortBlocks(all)
	return all
}
