// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package ordered defines the comparator capability used to order keys,
// times, and values throughout the trace engine. Comparators must implement
// a total order: for the engine's coalescing to be sound, Compare(a, b) == 0
// must mean a and b are interchangeable.
package ordered

import "cmp"

// Comparator compares two values of type T. It returns a negative number if
// a sorts before b, zero if they are equal, and a positive number otherwise.
type Comparator[T any] interface {
	Compare(a, b T) int
}

// Natural orders any cmp.Ordered type by its < relation. It is the zero-cost
// comparator for ints, strings, and the like.
type Natural[T cmp.Ordered] struct{}

// Compare implements Comparator.
func (Natural[T]) Compare(a, b T) int { return cmp.Compare(a, b) }

// Fn adapts a plain comparison function into a Comparator.
type Fn[T any] func(a, b T) int

// Compare implements Comparator.
func (f Fn[T]) Compare(a, b T) int { return f(a, b) }
