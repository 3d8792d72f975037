// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package trace

import (
	"sort"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/differential/trace/pkg/util/humanizeutil"
)

// Batch is an immutable, sorted chunk of tuples. The trie's prefix sharing
// is encoded columnarly rather than as a node graph: keys holds the distinct
// keys in increasing order, and keyOffs[i]:keyOffs[i+1] spans key i's
// entries in times; times holds each key's distinct times in increasing
// order, and valOffs[j]:valOffs[j+1] spans time j's entries in vals/diffs,
// values increasing.
//
// Invariants: no (Key, Time, Value) triple appears twice and no stored Diff
// is zero. Once built, a Batch is never mutated, which permits lock-free
// concurrent reads.
type Batch[K, T, V any] struct {
	cmp *comparators[K, T, V]

	keys    []K
	keyOffs []int // len(keys)+1 prefix sums into times
	times   []T
	valOffs []int // len(times)+1 prefix sums into vals
	vals    []V
	diffs   []Diff

	// class is the batch's compaction size class. Assigned once by the
	// owning Trace and read-only thereafter.
	class int

	// refs counts the read-state snapshots holding this batch. The batch's
	// columns are released when the count drops to zero.
	refs atomic.Int32
}

// newBatch builds a batch from tuples in any order. Tuples are sorted by
// (Key, Time, Value), equal triples are coalesced by summing their Diffs,
// and zero-net groups are dropped.
func newBatch[K, T, V any](cmp *comparators[K, T, V], tuples []Tuple[K, T, V]) *Batch[K, T, V] {
	sorted := make([]Tuple[K, T, V], len(tuples))
	copy(sorted, tuples)
	sort.Slice(sorted, func(i, j int) bool {
		return cmp.compareTuples(sorted[i], sorted[j]) < 0
	})

	b := emptyBatch(cmp)
	for i := 0; i < len(sorted); {
		j := i + 1
		d := sorted[i].Diff
		for j < len(sorted) && cmp.compareTuples(sorted[i], sorted[j]) == 0 {
			d += sorted[j].Diff
			j++
		}
		if d != 0 {
			b.push(sorted[i].Key, sorted[i].Time, sorted[i].Value, d)
		}
		i = j
	}
	b.class = sizeClass(b.Len())
	return b
}

func emptyBatch[K, T, V any](cmp *comparators[K, T, V]) *Batch[K, T, V] {
	return &Batch[K, T, V]{
		cmp:     cmp,
		keyOffs: []int{0},
		valOffs: []int{0},
	}
}

// push appends one coalesced entry. Entries must arrive in strictly
// increasing (Key, Time, Value) order with nonzero diffs; push only detects
// group boundaries, it does not re-sort.
func (b *Batch[K, T, V]) push(k K, t T, v V, d Diff) {
	newKey := len(b.keys) == 0 || b.cmp.key.Compare(b.keys[len(b.keys)-1], k) != 0
	newTime := newKey || b.cmp.time.Compare(b.times[len(b.times)-1], t) != 0
	if newKey {
		b.keys = append(b.keys, k)
		b.keyOffs = append(b.keyOffs, 0)
	}
	if newTime {
		b.times = append(b.times, t)
		b.valOffs = append(b.valOffs, 0)
	}
	b.vals = append(b.vals, v)
	b.diffs = append(b.diffs, d)
	b.keyOffs[len(b.keyOffs)-1] = len(b.times)
	b.valOffs[len(b.valOffs)-1] = len(b.vals)
}

// Len returns the number of stored (Key, Time, Value, Diff) tuples.
func (b *Batch[K, T, V]) Len() int { return len(b.vals) }

// NumKeys returns the number of distinct keys.
func (b *Batch[K, T, V]) NumKeys() int { return len(b.keys) }

// Empty reports whether the batch holds no tuples.
func (b *Batch[K, T, V]) Empty() bool { return len(b.vals) == 0 }

// Lookup returns the batch's history for key: its times in increasing
// order, each with the (Value, Diff) pairs recorded at that time. The view
// aliases the batch's columns without copying; it remains valid for as long
// as the batch is alive. An absent key yields an empty History.
func (b *Batch[K, T, V]) Lookup(key K) History[T, V] {
	i, ok := b.findKey(key)
	if !ok {
		return History[T, V]{}
	}
	return b.historyAt(i)
}

// findKey binary-searches the key directory.
func (b *Batch[K, T, V]) findKey(key K) (int, bool) {
	i := sort.Search(len(b.keys), func(i int) bool {
		return b.cmp.key.Compare(b.keys[i], key) >= 0
	})
	return i, i < len(b.keys) && b.cmp.key.Compare(b.keys[i], key) == 0
}

func (b *Batch[K, T, V]) historyAt(ki int) History[T, V] {
	lo, hi := b.keyOffs[ki], b.keyOffs[ki+1]
	return History[T, V]{
		times:   b.times[lo:hi],
		valOffs: b.valOffs[lo : hi+1],
		vals:    b.vals,
		diffs:   b.diffs,
	}
}

func (b *Batch[K, T, V]) ref() { b.refs.Add(1) }

func (b *Batch[K, T, V]) unref() {
	v := b.refs.Add(-1)
	if v < 0 {
		panic(errors.AssertionFailedf("batch refcount below zero"))
	}
	if v == 0 {
		b.release()
	}
}

// release drops the batch's columns. Only reachable once no snapshot (and
// hence no cursor) references the batch.
func (b *Batch[K, T, V]) release() {
	b.keys, b.keyOffs = nil, nil
	b.times, b.valOffs = nil, nil
	b.vals, b.diffs = nil, nil
}

// BatchStats describes a batch's shape.
type BatchStats struct {
	Keys        int
	Times       int
	Tuples      int
	ApproxBytes int64
}

// Stats returns the batch's shape and an estimate of its resident memory.
func (b *Batch[K, T, V]) Stats() BatchStats {
	var k K
	var t T
	var v V
	bytes := int64(cap(b.keys))*int64(unsafe.Sizeof(k)) +
		int64(cap(b.times))*int64(unsafe.Sizeof(t)) +
		int64(cap(b.vals))*int64(unsafe.Sizeof(v)) +
		int64(cap(b.diffs))*8 +
		int64(cap(b.keyOffs)+cap(b.valOffs))*8
	return BatchStats{
		Keys:        len(b.keys),
		Times:       len(b.times),
		Tuples:      len(b.vals),
		ApproxBytes: bytes,
	}
}

// SafeFormat implements redact.SafeFormatter.
func (s BatchStats) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%d keys, %d times, %d tuples (%s)",
		s.Keys, s.Times, s.Tuples, redact.SafeString(humanizeutil.IBytes(s.ApproxBytes)))
}

func (s BatchStats) String() string { return redact.StringWithoutMarkers(s) }
