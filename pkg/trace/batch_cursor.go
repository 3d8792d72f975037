// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package trace

import "sort"

// BatchCursor iterates one batch's keys in increasing order. It is a plain
// positional walk over the batch's directories and owns no data; any number
// of cursors may read the same batch concurrently.
//
// The per-key time and value levels are exposed through History(), whose
// indexed views provide seek, advance, and at-end without further cursor
// state.
type BatchCursor[K, T, V any] struct {
	b  *Batch[K, T, V]
	ki int
}

// NewCursor returns a cursor positioned before the batch's first key; call
// First or SeekGE to position it.
func (b *Batch[K, T, V]) NewCursor() *BatchCursor[K, T, V] {
	return &BatchCursor[K, T, V]{b: b, ki: len(b.keys)}
}

// First positions the cursor at the smallest key and reports validity.
func (c *BatchCursor[K, T, V]) First() bool {
	c.ki = 0
	return c.Valid()
}

// SeekGE positions the cursor at the smallest key >= key.
func (c *BatchCursor[K, T, V]) SeekGE(key K) bool {
	c.ki = sort.Search(len(c.b.keys), func(i int) bool {
		return c.b.cmp.key.Compare(c.b.keys[i], key) >= 0
	})
	return c.Valid()
}

// Next advances to the next key and reports validity.
func (c *BatchCursor[K, T, V]) Next() bool {
	c.ki++
	return c.Valid()
}

// Valid reports whether the cursor is positioned at a key.
func (c *BatchCursor[K, T, V]) Valid() bool { return c.ki < len(c.b.keys) }

// Key returns the key at the current position.
func (c *BatchCursor[K, T, V]) Key() K { return c.b.keys[c.ki] }

// History returns the current key's history, aliasing the batch's columns.
func (c *BatchCursor[K, T, V]) History() History[T, V] { return c.b.historyAt(c.ki) }
