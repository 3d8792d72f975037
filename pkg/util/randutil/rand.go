// Copyright 2025 The Differential Trace Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package randutil provides seeded random number generators for tests. The
// seed is logged by callers so that a failing randomized test can be
// reproduced by fixing the seed.
package randutil

import (
	"math/rand"
	"os"
	"strconv"
	"time"
)

// envSeed overrides the generated seed when set, to reproduce a failure.
const envSeed = "TRACE_TEST_SEED"

// NewTestRand returns a pseudo-random number generator and the seed it was
// created with. Tests should log the seed on failure.
func NewTestRand() (*rand.Rand, int64) {
	seed := time.Now().UnixNano()
	if s := os.Getenv(envSeed); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			seed = v
		}
	}
	return rand.New(rand.NewSource(seed)), seed
}

// RandIntInRange returns a value in [min, max).
func RandIntInRange(r *rand.Rand, min, max int) int {
	return min + r.Intn(max-min)
}
