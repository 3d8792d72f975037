// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package trace

import (
	"context"
	"fmt"
	"math/bits"
	"testing"

	"github.com/cockroachdb/logtags"
	"github.com/differential/trace/pkg/util/randutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestTraceValidate(t *testing.T) {
	_, err := New(Options[string, int, string]{})
	require.Error(t, err)

	opts := testOptions()
	opts.MaxBatchesPerClass = -1
	_, err = New(opts)
	require.Error(t, err)
}

func TestTraceInsertThenCancel(t *testing.T) {
	ctx := context.Background()
	for _, max := range []int{1, 2} {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			opts := testOptions()
			opts.MaxBatchesPerClass = max
			tr, err := New(opts)
			require.NoError(t, err)
			defer tr.Close()

			tr.Insert(ctx, []Tuple[string, int, string]{tup("k1", 1, "v1", 1)})
			tr.Insert(ctx, []Tuple[string, int, string]{tup("k1", 1, "v1", -1)})

			require.True(t, tr.Lookup("k1").Empty())
			if max == 1 {
				// The merge cancelled everything; the empty result is
				// dropped rather than kept as an empty batch.
				require.Equal(t, 0, tr.Stats().Batches)
			}
		})
	}
}

func TestTraceLookupHistory(t *testing.T) {
	ctx := context.Background()
	tr, err := New(testOptions())
	require.NoError(t, err)
	defer tr.Close()

	tr.Insert(ctx, []Tuple[string, int, string]{
		tup("k1", 1, "v1", 1),
		tup("k1", 2, "v1", 1),
	})

	h := tr.Lookup("k1")
	require.Equal(t, []Entry[int, string]{
		{Time: 1, Val: "v1", Diff: 1},
		{Time: 2, Val: "v1", Diff: 1},
	}, h.Entries())

	require.True(t, tr.Lookup("absent").Empty())

	// Without an intervening insert, repeated lookups agree.
	require.Equal(t, h.Entries(), tr.Lookup("k1").Entries())
}

func TestTraceBatchCountLogarithmic(t *testing.T) {
	ctx := context.Background()
	tr, err := New(testOptions())
	require.NoError(t, err)
	defer tr.Close()

	const n = 500
	for i := 0; i < n; i++ {
		tr.Insert(ctx, []Tuple[string, int, string]{
			tup(fmt.Sprintf("k%04d", i), 1, "v", 1),
		})
		bound := 2*bits.Len(uint(i+1)) + 2
		require.LessOrEqualf(t, tr.Stats().Batches, bound,
			"after %d inserts", i+1)
		for _, cs := range tr.Stats().ByClass {
			require.LessOrEqual(t, cs.Batches, 2)
		}
	}

	// Everything ever inserted is still readable.
	c := tr.NewCursor()
	defer c.Close()
	require.Len(t, cursorTuples(c), n)
}

func TestTraceOpenCursorSurvivesCompaction(t *testing.T) {
	ctx := context.Background()
	tr, err := New(testOptions())
	require.NoError(t, err)
	defer tr.Close()

	tr.Insert(ctx, []Tuple[string, int, string]{tup("a", 1, "x", 1)})
	tr.Insert(ctx, []Tuple[string, int, string]{tup("b", 1, "x", 1)})
	c := tr.NewCursor()
	defer c.Close()

	// The third singleton insert overfills class 0 and forces a merge, but
	// the open cursor still reads its original two-batch snapshot.
	tr.Insert(ctx, []Tuple[string, int, string]{tup("c", 1, "x", 1)})
	require.Equal(t, []Tuple[string, int, string]{
		tup("a", 1, "x", 1),
		tup("b", 1, "x", 1),
	}, cursorTuples(c))
}

func TestTraceEmptyInsertLeavesNoResidue(t *testing.T) {
	ctx := context.Background()
	tr, err := New(testOptions())
	require.NoError(t, err)
	defer tr.Close()

	tr.Insert(ctx, nil)
	tr.Insert(ctx, []Tuple[string, int, string]{
		tup("a", 1, "x", 1),
		tup("a", 1, "x", -1),
	})
	require.Equal(t, 0, tr.Stats().Batches)
}

func TestTraceCloseSemantics(t *testing.T) {
	tr, err := New(testOptions())
	require.NoError(t, err)
	tr.Insert(context.Background(), []Tuple[string, int, string]{
		tup("a", 1, "x", 1),
	})

	c := tr.NewCursor()
	tr.Close()

	// Cursors opened before Close remain readable.
	require.Equal(t, []Tuple[string, int, string]{
		tup("a", 1, "x", 1),
	}, cursorTuples(c))
	c.Close()

	require.Panics(t, func() { tr.NewCursor() })
	require.Panics(t, func() { tr.Lookup("a") })
	require.Panics(t, func() { tr.Close() })
}

// TestTraceRandomized drives a trace with random inserts and checks the
// full contents and per-key histories against the reference model, across
// several class-size settings.
func TestTraceRandomized(t *testing.T) {
	rng, seed := randutil.NewTestRand()
	t.Logf("seed %d", seed)
	ctx := context.Background()

	for _, max := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			opts := testOptions()
			opts.MaxBatchesPerClass = max
			tr, err := New(opts)
			require.NoError(t, err)
			defer tr.Close()

			model := make(refModel)
			for i := 0; i < 60; i++ {
				in := randomTuples(rng, randutil.RandIntInRange(rng, 0, 12))
				tr.Insert(ctx, in)
				model.apply(in)

				c := tr.NewCursor()
				got := cursorTuples(c)
				c.Close()
				if got == nil {
					got = []Tuple[string, int, string]{}
				}
				require.Equal(t, model.tuples(), got)

				for _, key := range []string{"a", "b", "c", "d"} {
					require.Equal(t, model.history(key), tr.Lookup(key).Entries())
				}
			}
		})
	}
}

// TestTraceConcurrentReaders runs readers against a stream of inserts.
// Readers must always observe some consistent snapshot: sorted keys and no
// zero diffs.
func TestTraceConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	tr, err := New(testOptions())
	require.NoError(t, err)
	defer tr.Close()

	stop := make(chan struct{})
	var g errgroup.Group
	for r := 0; r < 4; r++ {
		g.Go(func() error {
			for {
				select {
				case <-stop:
					return nil
				default:
				}
				c := tr.NewCursor()
				var prev string
				first := true
				for ok := c.First(); ok; ok = c.Next() {
					if !first && c.Key() <= prev {
						c.Close()
						return fmt.Errorf("keys out of order: %q after %q", c.Key(), prev)
					}
					prev, first = c.Key(), false
					for _, e := range c.History().Entries() {
						if e.Diff == 0 {
							c.Close()
							return fmt.Errorf("zero diff surfaced for %q", c.Key())
						}
					}
				}
				c.Close()
			}
		})
	}

	for i := 0; i < 200; i++ {
		tr.Insert(ctx, []Tuple[string, int, string]{
			tup(fmt.Sprintf("k%03d", i%50), i/50, "v", 1),
		})
	}
	close(stop)
	require.NoError(t, g.Wait())
}

func TestTraceMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	opts := testOptions()
	opts.MaxBatchesPerClass = 1
	opts.Metrics = NewMetrics(reg)
	tr, err := New(opts)
	require.NoError(t, err)
	defer tr.Close()

	tr.Insert(ctx, []Tuple[string, int, string]{tup("a", 1, "x", 1)})
	tr.Insert(ctx, []Tuple[string, int, string]{tup("b", 1, "x", 1)})

	m := opts.Metrics
	require.Equal(t, 2.0, testutil.ToFloat64(m.Inserts))
	require.Equal(t, 2.0, testutil.ToFloat64(m.TuplesInserted))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Compactions))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ActiveBatches))
	require.Equal(t, 2.0, testutil.ToFloat64(m.ResidentTuples))
}

type capturedEvents struct {
	inserts     []InsertInfo
	compactions []CompactionInfo
}

func (c *capturedEvents) listener() *EventListener {
	return &EventListener{
		InsertDone: func(_ context.Context, info InsertInfo) {
			c.inserts = append(c.inserts, info)
		},
		CompactionEnd: func(_ context.Context, info CompactionInfo) {
			c.compactions = append(c.compactions, info)
		},
	}
}

func TestTraceEventListener(t *testing.T) {
	ctx := context.Background()
	var ev capturedEvents
	opts := testOptions()
	opts.MaxBatchesPerClass = 1
	opts.EventListener = ev.listener()
	tr, err := New(opts)
	require.NoError(t, err)
	defer tr.Close()

	tr.Insert(ctx, []Tuple[string, int, string]{tup("a", 1, "x", 1)})
	tr.Insert(ctx, []Tuple[string, int, string]{tup("b", 1, "x", 1)})

	require.Len(t, ev.inserts, 2)
	require.Equal(t, InsertInfo{Tuples: 1, BatchTuples: 1, Batches: 1}, ev.inserts[0])
	require.Equal(t, 1, ev.inserts[1].Compactions)

	require.Len(t, ev.compactions, 1)
	cc := ev.compactions[0]
	require.Equal(t, 0, cc.Class)
	require.Equal(t, [2]int{1, 1}, cc.InputTuples)
	require.Equal(t, 2, cc.OutputTuples)
}

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Infof(ctx context.Context, format string, args ...interface{}) {
	tags := logtags.FromContext(ctx)
	l.lines = append(l.lines, fmt.Sprintf("[%s] ", tags)+fmt.Sprintf(format, args...))
}

func TestTraceLoggingListener(t *testing.T) {
	ctx := context.Background()
	var logger recordingLogger
	lis := MakeLoggingEventListener(&logger)
	opts := testOptions()
	opts.EventListener = &lis
	opts.Name = "test"
	tr, err := New(opts)
	require.NoError(t, err)
	defer tr.Close()

	tr.Insert(ctx, []Tuple[string, int, string]{tup("a", 1, "x", 1)})

	require.Len(t, logger.lines, 1)
	require.Contains(t, logger.lines[0], "trace=test")
	require.Contains(t, logger.lines[0], "inserted 1 tuples")
}

func TestTraceStatsString(t *testing.T) {
	ctx := context.Background()
	tr, err := New(testOptions())
	require.NoError(t, err)
	defer tr.Close()

	tr.Insert(ctx, []Tuple[string, int, string]{
		tup("a", 1, "x", 1),
		tup("b", 1, "x", 1),
	})

	s := tr.Stats()
	require.Equal(t, 1, s.Batches)
	require.Equal(t, int64(2), s.Tuples)
	require.Equal(t, []ClassStats{{Class: 1, Batches: 1}}, s.ByClass)
	require.Contains(t, s.String(), "1 batches")
	require.Contains(t, s.String(), "class 1: 1")
}
