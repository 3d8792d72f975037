// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package trace

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/differential/trace/pkg/ordered"
)

// Cursor is a trace-level cursor: a k-way merge over one BatchCursor per
// batch in a read-state snapshot. It maintains a min-heap of child cursors
// keyed by their current key. When the cursor lands on a key, the histories
// of all children tied at that key are merged into a reusable buffer,
// summing Diffs for identical (Time, Value) pairs across batches and
// suppressing zero-net results; keys whose entire merged history cancels
// are skipped. Compaction only coalesces within a size class, so these
// cross-batch duplicates are resolved here, at read time.
//
// Traversal guarantees: keys strictly increasing; within a key, times
// strictly increasing; within a time, values strictly increasing; every
// emitted Diff nonzero.
//
// A Cursor holds a reference to its snapshot; the snapshot's batches stay
// alive until Close. Cursors are not safe for concurrent use.
type Cursor[K, T, V any] struct {
	cmp    *comparators[K, T, V]
	rs     *readState[K, T, V]
	levels []*BatchCursor[K, T, V]
	heap   cursorHeap[K, T, V]

	key   K
	valid bool

	// Reusable per-key buffers. entries stages the tied children's raw
	// history entries before coalescing; times/valOffs/vals/diffs back the
	// History served for the current key.
	entries []Entry[T, V]
	tied    []*BatchCursor[K, T, V]
	times   []T
	valOffs []int
	vals    []V
	diffs   []Diff

	closed bool
}

func newCursor[K, T, V any](cmp *comparators[K, T, V], rs *readState[K, T, V]) *Cursor[K, T, V] {
	c := &Cursor[K, T, V]{cmp: cmp, rs: rs}
	c.levels = make([]*BatchCursor[K, T, V], len(rs.batches))
	for i, b := range rs.batches {
		c.levels[i] = b.NewCursor()
	}
	c.heap.cmp = cmp.key
	return c
}

// First positions the cursor at the smallest key with a nonempty merged
// history and reports validity.
func (c *Cursor[K, T, V]) First() bool {
	c.assertOpen()
	c.heap.items = c.heap.items[:0]
	for _, l := range c.levels {
		if l.First() {
			c.heap.items = append(c.heap.items, l)
		}
	}
	c.heap.init()
	return c.findNext()
}

// SeekGE positions the cursor at the smallest key >= key with a nonempty
// merged history.
func (c *Cursor[K, T, V]) SeekGE(key K) bool {
	c.assertOpen()
	c.heap.items = c.heap.items[:0]
	for _, l := range c.levels {
		if l.SeekGE(key) {
			c.heap.items = append(c.heap.items, l)
		}
	}
	c.heap.init()
	return c.findNext()
}

// Next advances to the next key and reports validity.
func (c *Cursor[K, T, V]) Next() bool {
	c.assertOpen()
	return c.findNext()
}

// Valid reports whether the cursor is positioned at a key.
func (c *Cursor[K, T, V]) Valid() bool { return c.valid }

// Key returns the key at the current position.
func (c *Cursor[K, T, V]) Key() K { return c.key }

// History returns the merged history at the current position. The view is
// backed by the cursor's buffers and is invalidated by the next positioning
// call; use Clone to retain it.
func (c *Cursor[K, T, V]) History() History[T, V] {
	return History[T, V]{times: c.times, valOffs: c.valOffs, vals: c.vals, diffs: c.diffs}
}

// Close releases the cursor's snapshot reference. The cursor must not be
// used afterwards; a second Close is a contract violation.
func (c *Cursor[K, T, V]) Close() {
	c.assertOpen()
	c.closed = true
	c.rs.unref()
}

func (c *Cursor[K, T, V]) assertOpen() {
	if c.closed {
		panic(errors.AssertionFailedf("use of closed trace cursor"))
	}
}

// findNext pops the minimal key's tied children off the heap, merges their
// histories, advances them past the key, and repeats until a key with a
// nonempty merged history is found or the heap drains.
func (c *Cursor[K, T, V]) findNext() bool {
	for c.heap.len() > 0 {
		c.tied = c.tied[:0]
		key := c.heap.items[0].Key()
		c.tied = append(c.tied, c.heap.pop())
		for c.heap.len() > 0 && c.cmp.key.Compare(c.heap.items[0].Key(), key) == 0 {
			c.tied = append(c.tied, c.heap.pop())
		}
		c.synthesize()
		for _, l := range c.tied {
			if l.Next() {
				c.heap.push(l)
			}
		}
		if len(c.times) > 0 {
			c.key = key
			c.valid = true
			return true
		}
	}
	c.valid = false
	return false
}

// synthesize merges the tied children's histories for the current key into
// the cursor's buffers: collect every (Time, Value, Diff) entry, sort by
// (Time, Value), then coalesce, dropping zero nets.
func (c *Cursor[K, T, V]) synthesize() {
	c.entries = c.entries[:0]
	for _, l := range c.tied {
		c.entries = append(c.entries, l.History().Entries()...)
	}
	sort.SliceStable(c.entries, func(i, j int) bool {
		if v := c.cmp.time.Compare(c.entries[i].Time, c.entries[j].Time); v != 0 {
			return v < 0
		}
		return c.cmp.value.Compare(c.entries[i].Val, c.entries[j].Val) < 0
	})

	c.times = c.times[:0]
	c.valOffs = append(c.valOffs[:0], 0)
	c.vals = c.vals[:0]
	c.diffs = c.diffs[:0]
	for i := 0; i < len(c.entries); {
		j := i + 1
		d := c.entries[i].Diff
		for j < len(c.entries) &&
			c.cmp.time.Compare(c.entries[i].Time, c.entries[j].Time) == 0 &&
			c.cmp.value.Compare(c.entries[i].Val, c.entries[j].Val) == 0 {
			d += c.entries[j].Diff
			j++
		}
		if d != 0 {
			newTime := len(c.times) == 0 ||
				c.cmp.time.Compare(c.times[len(c.times)-1], c.entries[i].Time) != 0
			if newTime {
				c.times = append(c.times, c.entries[i].Time)
				c.valOffs = append(c.valOffs, 0)
			}
			c.vals = append(c.vals, c.entries[i].Val)
			c.diffs = append(c.diffs, d)
			c.valOffs[len(c.valOffs)-1] = len(c.vals)
		}
		i = j
	}
}

// cursorHeap is a min-heap of child cursors ordered by their current key.
// The heap operations are copied from the go stdlib's container/heap,
// specialized to avoid interface dispatch on the hot path.
type cursorHeap[K, T, V any] struct {
	cmp   ordered.Comparator[K]
	items []*BatchCursor[K, T, V]
}

func (h *cursorHeap[K, T, V]) len() int { return len(h.items) }

func (h *cursorHeap[K, T, V]) less(i, j int) bool {
	return h.cmp.Compare(h.items[i].Key(), h.items[j].Key()) < 0
}

func (h *cursorHeap[K, T, V]) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *cursorHeap[K, T, V]) init() {
	n := h.len()
	for i := n/2 - 1; i >= 0; i-- {
		h.down(i, n)
	}
}

func (h *cursorHeap[K, T, V]) push(x *BatchCursor[K, T, V]) {
	h.items = append(h.items, x)
	h.up(h.len() - 1)
}

func (h *cursorHeap[K, T, V]) pop() *BatchCursor[K, T, V] {
	n := h.len() - 1
	h.swap(0, n)
	h.down(0, n)
	item := h.items[n]
	h.items = h.items[:n]
	return item
}

func (h *cursorHeap[K, T, V]) up(j int) {
	for {
		i := (j - 1) / 2 // parent
		if i == j || !h.less(j, i) {
			break
		}
		h.swap(i, j)
		j = i
	}
}

func (h *cursorHeap[K, T, V]) down(i0, n int) bool {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 { // j1 < 0 after int overflow
			break
		}
		j := j1 // left child
		if j2 := j1 + 1; j2 < n && h.less(j2, j1) {
			j = j2 // = 2*i + 2  // right child
		}
		if !h.less(j, i) {
			break
		}
		h.swap(i, j)
		i = j
	}
	return i > i0
}
