// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package trace

import (
	"github.com/cockroachdb/errors"
	"github.com/differential/trace/pkg/ordered"
)

// Options configures a Trace. The three comparators are required; they must
// implement total orders.
type Options[K, T, V any] struct {
	KeyCmp   ordered.Comparator[K]
	TimeCmp  ordered.Comparator[T]
	ValueCmp ordered.Comparator[V]

	// MaxBatchesPerClass is how many batches one size class may hold before
	// compaction merges the two oldest of that class. Defaults to 2. With
	// the default, the active batch count stays within 2*log2(N)+O(1) for N
	// tuples ever inserted.
	MaxBatchesPerClass int

	// EventListener receives insert and compaction notifications. All
	// callbacks are optional.
	EventListener *EventListener

	// Metrics, if set, is updated on every insert and compaction.
	Metrics *Metrics

	// Name, if set, is attached as a log tag to contexts passed through the
	// event listener.
	Name string
}

// EnsureDefaults fills in unset options in place and returns o.
func (o *Options[K, T, V]) EnsureDefaults() *Options[K, T, V] {
	if o.MaxBatchesPerClass == 0 {
		o.MaxBatchesPerClass = 2
	}
	if o.EventListener == nil {
		o.EventListener = &EventListener{}
	}
	o.EventListener.EnsureDefaults()
	return o
}

// Validate returns an error if the options are incoherent.
func (o *Options[K, T, V]) Validate() error {
	if o.KeyCmp == nil || o.TimeCmp == nil || o.ValueCmp == nil {
		return errors.New("trace: KeyCmp, TimeCmp and ValueCmp must all be set")
	}
	if o.MaxBatchesPerClass < 1 {
		return errors.Newf("trace: MaxBatchesPerClass must be at least 1 (got %d)",
			o.MaxBatchesPerClass)
	}
	return nil
}
