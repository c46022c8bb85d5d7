// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"fmt"
	"math"
	mRand "math/rand"
	"time"

	"github.com/katzenpost/hpqc/rand"

	"github.com/katzenpost/cover/core/worker"
)

type opConnStatusChanged struct {
	isConnected bool
}

type opNewRate struct {
	lambda         float64
	lambdaMaxDelay uint64
}

// PoissonProcess calls an action at exponentially distributed intervals
// while connected.  lambda is the inverse of the mean interval in
// milliseconds and intervals are capped at lambdaMaxDelay milliseconds.
type PoissonProcess struct {
	worker.Worker

	opCh chan interface{}
	rng  *mRand.Rand

	lambda         float64
	lambdaMaxDelay uint64

	action func()
}

// NewPoissonProcess starts a disconnected process.
func NewPoissonProcess(lambda float64, lambdaMaxDelay uint64, action func()) *PoissonProcess {
	p := &PoissonProcess{
		opCh:           make(chan interface{}),
		rng:            rand.NewMath(),
		lambda:         lambda,
		lambdaMaxDelay: lambdaMaxDelay,
		action:         action,
	}
	p.Go(p.worker)
	return p
}

// UpdateRate changes the rate, taking effect immediately.
func (p *PoissonProcess) UpdateRate(lambda float64, lambdaMaxDelay uint64) {
	select {
	case <-p.HaltCh():
	case p.opCh <- opNewRate{lambda: lambda, lambdaMaxDelay: lambdaMaxDelay}:
	}
}

// UpdateConnectionStatus starts or pauses the action.
func (p *PoissonProcess) UpdateConnectionStatus(isConnected bool) {
	select {
	case <-p.HaltCh():
	case p.opCh <- opConnStatusChanged{isConnected: isConnected}:
	}
}

func (p *PoissonProcess) interval() time.Duration {
	msec := uint64(rand.Exp(p.rng, p.lambda))
	if msec > p.lambdaMaxDelay {
		msec = p.lambdaMaxDelay
	}
	return time.Duration(msec) * time.Millisecond
}

func (p *PoissonProcess) worker() {
	const maxDuration = math.MaxInt64

	timer := time.NewTimer(maxDuration)
	defer timer.Stop()

	isConnected := false
	for {
		var fired bool
		select {
		case <-p.HaltCh():
			return
		case <-timer.C:
			fired = true
		case qo := <-p.opCh:
			switch op := qo.(type) {
			case opConnStatusChanged:
				isConnected = op.isConnected
			case opNewRate:
				p.lambda = op.lambda
				p.lambdaMaxDelay = op.lambdaMaxDelay
			default:
				panic(fmt.Sprintf("BUG: Worker received nonsensical op: %T", op))
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if fired && isConnected {
			p.action()
		}

		next := time.Duration(maxDuration)
		if isConnected && p.lambda > 0 && p.lambdaMaxDelay > 0 {
			next = p.interval()
		}
		timer.Reset(next)
	}
}
