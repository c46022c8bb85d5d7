// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"sync"
	"time"

	"gitlab.com/yawning/avl.git"
)

type pendingLoop struct {
	id   uint64
	sent time.Time
	eta  time.Time

	etaNode *avl.Node
}

// loopTracker keeps the loop cover packets whose acknowledgement has not
// come back yet, ordered by expected arrival.  Cover acks all carry the
// same fragment identifier, so an arriving ack settles the oldest entry.
type loopTracker struct {
	sync.Mutex

	etas   *avl.Tree
	nextID uint64
}

func newLoopTracker() *loopTracker {
	return &loopTracker{
		etas: avl.New(func(a, b interface{}) int {
			pa, pb := a.(*pendingLoop), b.(*pendingLoop)
			switch {
			case pb.eta.After(pa.eta):
				return -1
			case pa.eta.After(pb.eta):
				return 1
			case pa.id < pb.id:
				return -1
			case pa.id > pb.id:
				return 1
			default:
				return 0
			}
		}),
	}
}

// add records a loop sent at sent and expected back by eta.
func (t *loopTracker) add(sent, eta time.Time) {
	t.Lock()
	defer t.Unlock()

	t.nextID++
	p := &pendingLoop{
		id:   t.nextID,
		sent: sent,
		eta:  eta,
	}
	p.etaNode = t.etas.Insert(p)
	if p.etaNode.Value.(*pendingLoop) != p {
		panic("BUG: client: duplicate pending loop")
	}
}

// settle removes the earliest pending loop and returns when it was sent.
func (t *loopTracker) settle() (time.Time, bool) {
	t.Lock()
	defer t.Unlock()

	node := t.etas.First()
	if node == nil {
		return time.Time{}, false
	}
	t.etas.Remove(node)
	return node.Value.(*pendingLoop).sent, true
}

// sweep drops every loop whose eta plus slack is before now and returns
// how many were lost.
func (t *loopTracker) sweep(now time.Time, slack time.Duration) int {
	t.Lock()
	defer t.Unlock()

	deadline := now.Add(-slack)
	lost := 0
	iter := t.etas.Iterator(avl.Forward)
	for node := iter.First(); node != nil; node = iter.Next() {
		if node.Value.(*pendingLoop).eta.After(deadline) {
			break
		}
		// Removing the current node is the one permitted modification.
		t.etas.Remove(node)
		lost++
	}
	return lost
}

func (t *loopTracker) len() int {
	t.Lock()
	defer t.Unlock()
	return t.etas.Len()
}
