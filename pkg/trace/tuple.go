// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package trace

import (
	"math/bits"

	"github.com/differential/trace/pkg/ordered"
)

// Diff is a signed multiplicity delta. Diff arithmetic is defined over the
// wrapping two's-complement int64 domain: overflow wraps and is not an
// error, matching the semantics of a modular counting domain.
type Diff int64

// Tuple is a single update: at Time, the multiplicity of Value under Key
// changed by Diff.
type Tuple[K, T, V any] struct {
	Key   K
	Time  T
	Value V
	Diff  Diff
}

// comparators bundles the caller-supplied total orders. Tuple ordering is
// always Key first, then Time, then Value; Diff never participates.
type comparators[K, T, V any] struct {
	key   ordered.Comparator[K]
	time  ordered.Comparator[T]
	value ordered.Comparator[V]
}

func (c *comparators[K, T, V]) compareTuples(a, b Tuple[K, T, V]) int {
	if v := c.key.Compare(a.Key, b.Key); v != 0 {
		return v
	}
	if v := c.time.Compare(a.Time, b.Time); v != 0 {
		return v
	}
	return c.value.Compare(a.Value, b.Value)
}

// sizeClass returns the power-of-two size class of a batch holding n tuples:
// floor(log2(n)), with n < 2 mapping to class 0.
func sizeClass(n int) int {
	if n < 2 {
		return 0
	}
	return bits.Len(uint(n)) - 1
}
