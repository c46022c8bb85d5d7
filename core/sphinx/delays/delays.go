// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package delays generates the per-hop mixing delays of a packet.
package delays

import (
	mRand "math/rand"
	"time"

	"github.com/katzenpost/hpqc/rand"
)

// FromAverageDuration returns n independent delays drawn from an exponential
// distribution whose mean is avg.  A zero (or negative) average yields n zero
// delays.
func FromAverageDuration(rng *mRand.Rand, n int, avg time.Duration) []time.Duration {
	if n <= 0 {
		return []time.Duration{}
	}
	delays := make([]time.Duration, n)
	if avg <= 0 {
		return delays
	}
	lambda := 1 / float64(avg)
	for i := range delays {
		delays[i] = time.Duration(rand.Exp(rng, lambda))
	}
	return delays
}

// Total returns the sum of delays.
func Total(delays []time.Duration) time.Duration {
	var total time.Duration
	for _, d := range delays {
		total += d
	}
	return total
}
