// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoissonProcessUpdateConnectionStatus(t *testing.T) {
	var actions atomic.Int32
	actionCh := make(chan struct{}, 1)
	p := NewPoissonProcess(0.5, 10, func() {
		actions.Add(1)
		select {
		case actionCh <- struct{}{}:
		default:
		}
	})
	defer p.Halt()

	select {
	case <-actionCh:
		t.Fatal("action ran while disconnected")
	case <-time.After(50 * time.Millisecond):
	}

	p.UpdateConnectionStatus(true)
	<-actionCh
	<-actionCh
	p.UpdateConnectionStatus(false)
	require.GreaterOrEqual(t, actions.Load(), int32(2))
}

func TestPoissonProcessUpdateRate(t *testing.T) {
	p := NewPoissonProcess(0.0005, 1000, func() {})
	p.UpdateRate(0.025, 50)
	p.Halt()
	require.Equal(t, 0.025, p.lambda)
	require.Equal(t, uint64(50), p.lambdaMaxDelay)

	// Updates after Halt do not block.
	p.UpdateRate(1, 1)
	p.UpdateConnectionStatus(true)
}

func TestPoissonProcessZeroRateIsIdle(t *testing.T) {
	ran := make(chan struct{}, 1)
	p := NewPoissonProcess(0, 0, func() { ran <- struct{}{} })
	defer p.Halt()
	p.UpdateConnectionStatus(true)

	select {
	case <-ran:
		t.Fatal("action ran at a zero rate")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPoissonProcessIntervalIsCapped(t *testing.T) {
	p := NewPoissonProcess(1e-9, 7, func() {})
	p.Halt()
	for i := 0; i < 100; i++ {
		require.LessOrEqual(t, p.interval(), 7*time.Millisecond)
	}
}
