// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package trace

import (
	"slices"
	"sort"

	"github.com/differential/trace/pkg/ordered"
)

// History is a read-only view of one key's history: distinct times in
// increasing order, each with its (Value, Diff) pairs in increasing value
// order, all diffs nonzero. A History is a pair of offset-bounded views into
// shared immutable columns; it is cheap to copy and indexable, so traversal
// can be restarted at will.
//
// The time-level cursor operations map onto the view directly: Time(i) reads
// the current time, i++ advances, i >= NumTimes() is at-end, and SeekTime
// repositions by binary search.
type History[T, V any] struct {
	times   []T
	valOffs []int // len(times)+1 bounds into vals/diffs
	vals    []V
	diffs   []Diff
}

// Empty reports whether the history holds no times.
func (h History[T, V]) Empty() bool { return len(h.times) == 0 }

// NumTimes returns the number of distinct times.
func (h History[T, V]) NumTimes() int { return len(h.times) }

// Time returns the i'th time.
func (h History[T, V]) Time(i int) T { return h.times[i] }

// Values returns the (Value, Diff) pairs recorded at the i'th time.
func (h History[T, V]) Values(i int) Values[V] {
	lo, hi := h.valOffs[i], h.valOffs[i+1]
	return Values[V]{vals: h.vals[lo:hi], diffs: h.diffs[lo:hi]}
}

// SeekTime returns the index of the first time >= t, or NumTimes() if no
// such time exists.
func (h History[T, V]) SeekTime(cmp ordered.Comparator[T], t T) int {
	return sort.Search(len(h.times), func(i int) bool {
		return cmp.Compare(h.times[i], t) >= 0
	})
}

// Entry is one flattened history element.
type Entry[T, V any] struct {
	Time T
	Val  V
	Diff Diff
}

// Entries flattens the history into (Time, Value, Diff) triples in order.
// Convenience for tests and small consumers.
func (h History[T, V]) Entries() []Entry[T, V] {
	out := make([]Entry[T, V], 0, len(h.diffs))
	for i := 0; i < h.NumTimes(); i++ {
		vs := h.Values(i)
		for j := 0; j < vs.Len(); j++ {
			v, d := vs.At(j)
			out = append(out, Entry[T, V]{Time: h.Time(i), Val: v, Diff: d})
		}
	}
	return out
}

// Clone returns a compact, independently-owned copy of the history. Used to
// detach a result from a cursor's reusable buffers.
func (h History[T, V]) Clone() History[T, V] {
	n := h.NumTimes()
	out := History[T, V]{
		times:   slices.Clone(h.times),
		valOffs: make([]int, 1, n+1),
	}
	for i := 0; i < n; i++ {
		lo, hi := h.valOffs[i], h.valOffs[i+1]
		out.vals = append(out.vals, h.vals[lo:hi]...)
		out.diffs = append(out.diffs, h.diffs[lo:hi]...)
		out.valOffs = append(out.valOffs, len(out.vals))
	}
	return out
}

// Values is a read-only view of the (Value, Diff) pairs at one time.
type Values[V any] struct {
	vals  []V
	diffs []Diff
}

// Len returns the number of pairs.
func (v Values[V]) Len() int { return len(v.vals) }

// At returns the i'th pair.
func (v Values[V]) At(i int) (V, Diff) { return v.vals[i], v.diffs[i] }
