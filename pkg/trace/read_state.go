// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package trace

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// readState is an immutable snapshot of the trace's active batch list,
// oldest batch first. The Trace publishes a new readState after every
// insert; cursors hold a reference to the readState they were opened on and
// keep seeing it regardless of later compactions (snapshot isolation).
//
// Ownership is shared, last-releaser-frees: the readState holds one
// reference on each of its batches, the Trace holds one reference on the
// current readState, and every open Cursor holds one more. A batch's
// storage is reclaimed only once every readState naming it has been
// released.
type readState[K, T, V any] struct {
	refs    atomic.Int32
	batches []*Batch[K, T, V]
}

// newReadState takes one reference on every batch and returns a readState
// with a reference count of one, owned by the caller.
func newReadState[K, T, V any](batches []*Batch[K, T, V]) *readState[K, T, V] {
	rs := &readState[K, T, V]{batches: batches}
	rs.refs.Store(1)
	for _, b := range batches {
		b.ref()
	}
	return rs
}

func (rs *readState[K, T, V]) ref() { rs.refs.Add(1) }

func (rs *readState[K, T, V]) unref() {
	v := rs.refs.Add(-1)
	if v < 0 {
		panic(errors.AssertionFailedf("read state refcount below zero"))
	}
	if v == 0 {
		for _, b := range rs.batches {
			b.unref()
		}
		rs.batches = nil
	}
}
