// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package epochtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpochTime(t *testing.T) {
	require := require.New(t)

	var now uint64
	var elapsed, till time.Duration
	require.NotPanics(func() { now, elapsed, till = Now() }, "Basic Now() sanity check")
	require.Equal(Period, elapsed+till)
	t.Logf("Epoch: %v, Elapsed: %v Till: %v", now, elapsed, till)
}

func TestAt(t *testing.T) {
	require := require.New(t)

	e, elapsed, till := At(Epoch)
	require.Zero(e)
	require.Zero(elapsed)
	require.Equal(Period, till)

	at := Start(42).Add(time.Second)
	e, elapsed, _ = At(at)
	require.Equal(uint64(42), e)
	require.Equal(time.Second, elapsed)

	require.Panics(func() { At(Epoch.Add(-time.Second)) })
}

func TestIsStale(t *testing.T) {
	assert := assert.New(t)
	now := Start(100).Add(Period / 2)

	assert.False(IsStale(100, now), "current epoch")
	assert.False(IsStale(101, now), "next epoch")
	assert.True(IsStale(99, now), "previous epoch")
	assert.True(IsStale(102, now), "two ahead")
}
