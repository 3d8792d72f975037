// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package trace

import (
	"sort"

	"github.com/differential/trace/pkg/ordered"
)

// The tests instantiate the engine with string keys, int times and string
// values throughout.

func testComparators() *comparators[string, int, string] {
	return &comparators[string, int, string]{
		key:   ordered.Natural[string]{},
		time:  ordered.Natural[int]{},
		value: ordered.Natural[string]{},
	}
}

func testOptions() Options[string, int, string] {
	return Options[string, int, string]{
		KeyCmp:   ordered.Natural[string]{},
		TimeCmp:  ordered.Natural[int]{},
		ValueCmp: ordered.Natural[string]{},
	}
}

func tup(k string, t int, v string, d Diff) Tuple[string, int, string] {
	return Tuple[string, int, string]{Key: k, Time: t, Value: v, Diff: d}
}

// batchTuples flattens a batch into its (Key, Time, Value, Diff) tuples in
// stored order.
func batchTuples(b *Batch[string, int, string]) []Tuple[string, int, string] {
	var out []Tuple[string, int, string]
	c := b.NewCursor()
	for ok := c.First(); ok; ok = c.Next() {
		for _, e := range c.History().Entries() {
			out = append(out, tup(c.Key(), e.Time, e.Val, e.Diff))
		}
	}
	return out
}

// cursorTuples drains a trace cursor into flattened tuples.
func cursorTuples(c *Cursor[string, int, string]) []Tuple[string, int, string] {
	var out []Tuple[string, int, string]
	for ok := c.First(); ok; ok = c.Next() {
		for _, e := range c.History().Entries() {
			out = append(out, tup(c.Key(), e.Time, e.Val, e.Diff))
		}
	}
	return out
}

// triple identifies a logical (Key, Time, Value) slot in the reference
// model.
type triple struct {
	k string
	t int
	v string
}

// refModel sums diffs per triple, the ground truth every batching and
// compaction history must reproduce.
type refModel map[triple]Diff

func (m refModel) apply(tuples []Tuple[string, int, string]) {
	for _, tu := range tuples {
		m[triple{tu.Key, tu.Time, tu.Value}] += tu.Diff
	}
}

// tuples returns the model's nonzero triples sorted by (Key, Time, Value).
func (m refModel) tuples() []Tuple[string, int, string] {
	out := make([]Tuple[string, int, string], 0, len(m))
	for tr, d := range m {
		if d != 0 {
			out = append(out, tup(tr.k, tr.t, tr.v, d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.Value < b.Value
	})
	return out
}

// history returns the model's nonzero entries for one key, sorted.
func (m refModel) history(key string) []Entry[int, string] {
	out := []Entry[int, string]{}
	for tr, d := range m {
		if tr.k == key && d != 0 {
			out = append(out, Entry[int, string]{Time: tr.t, Val: tr.v, Diff: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].Val < out[j].Val
	})
	return out
}
