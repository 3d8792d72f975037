// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

/*
Package trace implements an append-only index from keys to their history of
timestamped value changes, intended as the storage core of an incremental
computation engine.

Updates arrive as tuples (Key, Time, Value, Diff), where Diff is a signed
multiplicity delta. Each Insert call builds an immutable, sorted, columnar
Batch from its tuples. The Trace holds the active set of batches and keeps
their number logarithmic in the total input size through leveled compaction:
every batch is tagged with a power-of-two size class, and whenever a class
holds more batches than allowed, the two oldest batches of that class are
merged into one batch of the next class up. Merging coalesces duplicate
(Key, Time, Value) entries by summing their Diffs and drops entries whose
net Diff is zero.

Reads never block writes. The active batch list is published as a
reference-counted, copy-on-write snapshot; a Cursor opened on a snapshot
continues to see exactly that snapshot even while later inserts compact the
batch set. Because compaction only coalesces within a size class, duplicate
(Key, Time, Value) entries may still exist across batches; the trace-level
Cursor resolves them during traversal, summing Diffs across batches and
suppressing zero-net results. Batch storage is released when the last
snapshot referencing the batch is released.

Exactly one goroutine may call Insert on a Trace at a time; any number of
goroutines may concurrently open cursors and read.
*/
package trace
