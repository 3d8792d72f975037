// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package trace

// batchPos is a read position in a batch's flattened (Key, Time, Value)
// stream: ki/ti index the key and time directories, vi the value columns.
type batchPos struct {
	ki, ti, vi int
}

func (b *Batch[K, T, V]) posDone(p batchPos) bool { return p.vi >= len(b.vals) }

// advancePos steps to the next triple, moving the directory indexes across
// time and key boundaries as needed.
func (b *Batch[K, T, V]) advancePos(p *batchPos) {
	p.vi++
	if p.vi == len(b.vals) {
		return
	}
	if p.vi == b.valOffs[p.ti+1] {
		p.ti++
	}
	if p.ti == b.keyOffs[p.ki+1] {
		p.ki++
	}
}

// merge combines two batches into a new one by a single linear scan over
// both sorted triple streams. Equal (Key, Time, Value) triples have their
// Diffs summed (wrapping) and are dropped when the sum is zero; unequal
// triples pass through unchanged. Neither input is mutated. Cost is
// O(|a| + |b|).
//
// The caller assigns the result's size class.
func merge[K, T, V any](cmp *comparators[K, T, V], a, b *Batch[K, T, V]) *Batch[K, T, V] {
	out := emptyBatch(cmp)
	var p, q batchPos
	for !a.posDone(p) && !b.posDone(q) {
		c := comparePositions(cmp, a, p, b, q)
		switch {
		case c < 0:
			out.push(a.keys[p.ki], a.times[p.ti], a.vals[p.vi], a.diffs[p.vi])
			a.advancePos(&p)
		case c > 0:
			out.push(b.keys[q.ki], b.times[q.ti], b.vals[q.vi], b.diffs[q.vi])
			b.advancePos(&q)
		default:
			if d := a.diffs[p.vi] + b.diffs[q.vi]; d != 0 {
				out.push(a.keys[p.ki], a.times[p.ti], a.vals[p.vi], d)
			}
			a.advancePos(&p)
			b.advancePos(&q)
		}
	}
	for !a.posDone(p) {
		out.push(a.keys[p.ki], a.times[p.ti], a.vals[p.vi], a.diffs[p.vi])
		a.advancePos(&p)
	}
	for !b.posDone(q) {
		out.push(b.keys[q.ki], b.times[q.ti], b.vals[q.vi], b.diffs[q.vi])
		b.advancePos(&q)
	}
	return out
}

func comparePositions[K, T, V any](
	cmp *comparators[K, T, V], a *Batch[K, T, V], p batchPos, b *Batch[K, T, V], q batchPos,
) int {
	if c := cmp.key.Compare(a.keys[p.ki], b.keys[q.ki]); c != 0 {
		return c
	}
	if c := cmp.time.Compare(a.times[p.ti], b.times[q.ti]); c != 0 {
		return c
	}
	return cmp.value.Compare(a.vals[p.vi], b.vals[q.vi])
}
