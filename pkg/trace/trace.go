// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package trace

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
	"github.com/differential/trace/pkg/util/humanizeutil"
	"github.com/differential/trace/pkg/util/syncutil"
)

// Trace is the level manager: it owns the active set of batches and bounds
// their number through leveled compaction. See the package documentation
// for the data model and concurrency rules.
//
// Exactly one goroutine may call Insert at a time. Lookup, NewCursor and
// Stats may be called from any number of goroutines concurrently with
// inserts.
type Trace[K, T, V any] struct {
	opts Options[K, T, V]
	cmp  comparators[K, T, V]

	// mu guards the current read-state pointer. Inserts are serialized by
	// the caller; mu only makes snapshot acquisition safe for concurrent
	// readers.
	mu struct {
		syncutil.Mutex
		read *readState[K, T, V]
	}
}

// New returns an empty Trace.
func New[K, T, V any](opts Options[K, T, V]) (*Trace[K, T, V], error) {
	opts.EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	t := &Trace[K, T, V]{
		opts: opts,
		cmp: comparators[K, T, V]{
			key:   opts.KeyCmp,
			time:  opts.TimeCmp,
			value: opts.ValueCmp,
		},
	}
	t.mu.read = newReadState[K, T, V](nil)
	return t, nil
}

// Insert commits one epoch of updates: it builds a batch from tuples (any
// order, duplicates allowed), appends it to the active set, and compacts
// until no size class exceeds its allowed batch count. A new snapshot is
// published atomically; cursors opened before the call are unaffected.
//
// Tuples that coalesce to a net zero, and epochs that coalesce to an empty
// batch, leave no residue.
func (t *Trace[K, T, V]) Insert(ctx context.Context, tuples []Tuple[K, T, V]) {
	if t.opts.Name != "" {
		ctx = logtags.AddTag(ctx, "trace", t.opts.Name)
	}
	old := t.acquireOwn()

	nb := newBatch(&t.cmp, tuples)
	batchTuples := nb.Len()
	batches := slices.Clone(old.batches)
	// fresh tracks batches created during this insert that no snapshot has
	// seen yet; when compaction consumes one, its storage can be released
	// immediately.
	fresh := make(map[*Batch[K, T, V]]bool)
	if !nb.Empty() {
		batches = append(batches, nb)
		fresh[nb] = true
	}
	batches, compactions := t.compact(ctx, batches, fresh)

	ns := newReadState(batches)
	t.mu.Lock()
	t.mu.read = ns
	t.mu.Unlock()
	old.unref()

	var resident int64
	for _, b := range batches {
		resident += int64(b.Len())
	}
	if m := t.opts.Metrics; m != nil {
		m.Inserts.Inc()
		m.TuplesInserted.Add(float64(len(tuples)))
		m.ActiveBatches.Set(float64(len(batches)))
		m.ResidentTuples.Set(float64(resident))
	}
	t.opts.EventListener.InsertDone(ctx, InsertInfo{
		Tuples:      len(tuples),
		BatchTuples: batchTuples,
		Batches:     len(batches),
		Compactions: compactions,
	})
}

// compact merges same-class batches until every class is within bounds,
// cascading upward. The two oldest batches of the lowest overfull class are
// merged; the result replaces the older input, one class up. Empty merge
// results are dropped entirely.
func (t *Trace[K, T, V]) compact(
	ctx context.Context, batches []*Batch[K, T, V], fresh map[*Batch[K, T, V]]bool,
) (_ []*Batch[K, T, V], compactions int) {
	for {
		first, second := pickCompaction(batches, t.opts.MaxBatchesPerClass)
		if first < 0 {
			return batches, compactions
		}
		a, b := batches[first], batches[second]
		info := CompactionInfo{
			Class:       a.class,
			InputTuples: [2]int{a.Len(), b.Len()},
		}
		t.opts.EventListener.CompactionBegin(ctx, info)
		start := time.Now()
		m := merge(&t.cmp, a, b)
		m.class = a.class + 1
		info.OutputTuples = m.Len()
		info.Duration = time.Since(start)

		batches[first] = m
		batches = slices.Delete(batches, second, second+1)
		if m.Empty() {
			batches = slices.Delete(batches, first, first+1)
		} else {
			fresh[m] = true
		}
		if fresh[a] {
			delete(fresh, a)
			a.release()
		}
		if fresh[b] {
			delete(fresh, b)
			b.release()
		}
		compactions++

		if mt := t.opts.Metrics; mt != nil {
			mt.Compactions.Inc()
			mt.CompactionDuration.Observe(info.Duration.Seconds())
		}
		t.opts.EventListener.CompactionEnd(ctx, info)
	}
}

// pickCompaction returns the indices of the two oldest batches in the
// lowest size class holding more than max batches, or (-1, -1) if every
// class is within bounds.
func pickCompaction[K, T, V any](batches []*Batch[K, T, V], max int) (first, second int) {
	counts := make(map[int]int)
	for _, b := range batches {
		counts[b.class]++
	}
	class := -1
	for c, n := range counts {
		if n > max && (class < 0 || c < class) {
			class = c
		}
	}
	if class < 0 {
		return -1, -1
	}
	first = -1
	for i, b := range batches {
		if b.class != class {
			continue
		}
		if first < 0 {
			first = i
			continue
		}
		return first, i
	}
	panic(errors.AssertionFailedf("overfull class %d has fewer than two batches", class))
}

// Lookup replays key's full history across the current snapshot: times in
// increasing order, each with its (Value, Diff) pairs, Diffs summed across
// batches and zero nets suppressed. The result is independently owned;
// repeated calls without an intervening Insert return identical histories.
func (t *Trace[K, T, V]) Lookup(key K) History[T, V] {
	c := t.NewCursor()
	defer c.Close()
	if c.SeekGE(key) && t.cmp.key.Compare(c.Key(), key) == 0 {
		return c.History().Clone()
	}
	return History[T, V]{}
}

// NewCursor opens a cursor over the current snapshot. The cursor pins the
// snapshot's batches until Close.
func (t *Trace[K, T, V]) NewCursor() *Cursor[K, T, V] {
	return newCursor(&t.cmp, t.acquireReadState())
}

// acquireOwn returns the current read state without taking a new reference;
// the caller adopts the trace's own reference and must eventually unref it
// (done by Insert after publishing a replacement).
func (t *Trace[K, T, V]) acquireOwn() *readState[K, T, V] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mu.read == nil {
		panic(errors.AssertionFailedf("use of closed trace"))
	}
	return t.mu.read
}

func (t *Trace[K, T, V]) acquireReadState() *readState[K, T, V] {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mu.read == nil {
		panic(errors.AssertionFailedf("use of closed trace"))
	}
	t.mu.read.ref()
	return t.mu.read
}

// Close releases the trace's reference to its batches. Open cursors remain
// usable until their own Close; any other use of the trace afterwards is a
// contract violation.
func (t *Trace[K, T, V]) Close() {
	t.mu.Lock()
	rs := t.mu.read
	t.mu.read = nil
	t.mu.Unlock()
	if rs == nil {
		panic(errors.AssertionFailedf("double close of trace"))
	}
	rs.unref()
}

// ClassStats counts the batches of one size class.
type ClassStats struct {
	Class   int
	Batches int
}

// Stats describes the current snapshot.
type Stats struct {
	Batches     int
	Tuples      int64
	ApproxBytes int64
	ByClass     []ClassStats
}

// Stats returns counts for the current snapshot.
func (t *Trace[K, T, V]) Stats() Stats {
	rs := t.acquireReadState()
	defer rs.unref()
	var s Stats
	byClass := make(map[int]int)
	for _, b := range rs.batches {
		bs := b.Stats()
		s.Batches++
		s.Tuples += int64(bs.Tuples)
		s.ApproxBytes += bs.ApproxBytes
		byClass[b.class]++
	}
	for c, n := range byClass {
		s.ByClass = append(s.ByClass, ClassStats{Class: c, Batches: n})
	}
	slices.SortFunc(s.ByClass, func(a, b ClassStats) int { return a.Class - b.Class })
	return s
}

// SafeFormat implements redact.SafeFormatter.
func (s Stats) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%d batches, %s tuples, %s resident",
		s.Batches,
		redact.SafeString(humanizeutil.Count(s.Tuples)),
		redact.SafeString(humanizeutil.IBytes(s.ApproxBytes)))
	for _, c := range s.ByClass {
		w.Printf("; class %d: %d", c.Class, c.Batches)
	}
}

func (s Stats) String() string { return redact.StringWithoutMarkers(s) }
