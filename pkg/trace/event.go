// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package trace

import (
	"context"
	"time"

	"github.com/cockroachdb/redact"
)

// InsertInfo describes a completed insert.
type InsertInfo struct {
	// Tuples is the number of tuples in the inserted epoch, before
	// coalescing.
	Tuples int
	// BatchTuples is the tuple count of the new batch after coalescing.
	BatchTuples int
	// Batches is the number of active batches after compaction settled.
	Batches int
	// Compactions is how many merges this insert triggered.
	Compactions int
}

// SafeFormat implements redact.SafeFormatter.
func (i InsertInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("inserted %d tuples (%d after coalescing); %d compactions; %d active batches",
		i.Tuples, i.BatchTuples, i.Compactions, i.Batches)
}

func (i InsertInfo) String() string { return redact.StringWithoutMarkers(i) }

// CompactionInfo describes one merge of two same-class batches.
type CompactionInfo struct {
	// Class is the size class whose two oldest batches were merged.
	Class int
	// InputTuples are the tuple counts of the two inputs, oldest first.
	InputTuples [2]int
	// OutputTuples is the tuple count of the merged batch; zero means the
	// inputs cancelled entirely and the output was dropped.
	OutputTuples int
	// Duration is the wall time of the merge. Set only on CompactionEnd.
	Duration time.Duration
}

// SafeFormat implements redact.SafeFormatter.
func (i CompactionInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("compacted class %d: %d+%d tuples to %d in %s",
		i.Class, i.InputTuples[0], i.InputTuples[1], i.OutputTuples, i.Duration)
}

func (i CompactionInfo) String() string { return redact.StringWithoutMarkers(i) }

// EventListener contains a set of callbacks the Trace invokes on notable
// events. Callbacks must not retain the info structs' slices (there are
// none today) and must be cheap: they run synchronously on the inserting
// goroutine.
type EventListener struct {
	InsertDone      func(ctx context.Context, info InsertInfo)
	CompactionBegin func(ctx context.Context, info CompactionInfo)
	CompactionEnd   func(ctx context.Context, info CompactionInfo)
}

// EnsureDefaults replaces nil callbacks with no-ops.
func (l *EventListener) EnsureDefaults() {
	if l.InsertDone == nil {
		l.InsertDone = func(context.Context, InsertInfo) {}
	}
	if l.CompactionBegin == nil {
		l.CompactionBegin = func(context.Context, CompactionInfo) {}
	}
	if l.CompactionEnd == nil {
		l.CompactionEnd = func(context.Context, CompactionInfo) {}
	}
}

// Logger is the minimal logging capability consumed by
// MakeLoggingEventListener. The context carries log tags added by the
// Trace.
type Logger interface {
	Infof(ctx context.Context, format string, args ...interface{})
}

// MakeLoggingEventListener returns an EventListener that logs all events to
// the given logger.
func MakeLoggingEventListener(logger Logger) EventListener {
	return EventListener{
		InsertDone: func(ctx context.Context, info InsertInfo) {
			logger.Infof(ctx, "%s", info)
		},
		CompactionBegin: func(ctx context.Context, info CompactionInfo) {
			logger.Infof(ctx, "compacting class %d: %d+%d tuples",
				info.Class, info.InputTuples[0], info.InputTuples[1])
		},
		CompactionEnd: func(ctx context.Context, info CompactionInfo) {
			logger.Infof(ctx, "%s", info)
		},
	}
}
