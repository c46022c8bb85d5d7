// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopTracker(t *testing.T) {
	require := require.New(t)
	tr := newLoopTracker()
	now := time.Now()

	_, ok := tr.settle()
	require.False(ok)

	tr.add(now.Add(2*time.Second), now.Add(20*time.Second))
	tr.add(now, now.Add(10*time.Second))
	tr.add(now.Add(time.Second), now.Add(10*time.Second))
	require.Equal(3, tr.len())

	// Earliest eta first, insertion order breaks ties.
	sent, ok := tr.settle()
	require.True(ok)
	require.Equal(now, sent)
	require.Equal(2, tr.len())

	require.Equal(0, tr.sweep(now.Add(10*time.Second), time.Second))
	require.Equal(1, tr.sweep(now.Add(11*time.Second), time.Second))
	require.Equal(1, tr.len())
	require.Equal(1, tr.sweep(now.Add(time.Minute), 0))
	require.Equal(0, tr.len())
	require.Equal(0, tr.sweep(now.Add(time.Hour), 0))
}
