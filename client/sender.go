// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package client sends loop and drop cover traffic at Poisson distributed
// intervals and tracks the acknowledgements loop cover brings back.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/katzenpost/hpqc/rand"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/cover/core/ack"
	"github.com/katzenpost/cover/core/addressing"
	"github.com/katzenpost/cover/core/cover"
	"github.com/katzenpost/cover/core/epochtime"
	"github.com/katzenpost/cover/core/log"
	"github.com/katzenpost/cover/core/mixpacket"
	"github.com/katzenpost/cover/core/pki"
	"github.com/katzenpost/cover/core/sphinx/constants"
	"github.com/katzenpost/cover/core/worker"
	"github.com/katzenpost/cover/internal/instrument"
)

const defaultAckSlack = 30 * time.Second

var (
	// ErrNoDocument is returned when cover is requested before a topology
	// document was supplied.
	ErrNoDocument = errors.New("client: no topology document")

	errNilConfig = errors.New("client: incomplete sender config")
)

// Rate is a Poisson rate: the inverse of the mean interval in milliseconds,
// and the largest interval in milliseconds.
type Rate struct {
	Lambda   float64
	MaxDelay uint64
}

func (r Rate) isZero() bool {
	return r.Lambda == 0 && r.MaxDelay == 0
}

// Config configures a Sender.  Zero rates and delays are taken from the
// topology document.
type Config struct {
	Factory *cover.Factory
	Self    *addressing.Recipient
	AckKey  *ack.Key
	Sink    PacketSink
	Log     *logging.Logger

	LoopRate Rate
	DropRate Rate

	AvgAckDelay    time.Duration
	AvgPacketDelay time.Duration

	// AckSlack is how long past its expected arrival a loop ack may be
	// before the loop is counted as lost.
	AckSlack time.Duration

	DisableLoop bool
	DisableDrop bool
}

// Sender emits cover traffic.
type Sender struct {
	worker.Worker

	cfg *Config
	log *logging.Logger
	doc atomic.Pointer[pki.Document]

	loops *loopTracker
	loop  *PoissonProcess
	drop  *PoissonProcess

	sent atomic.Uint64
	lost atomic.Uint64
}

// NewSender returns a Sender.  It stays idle until the first UpdateDocument.
func NewSender(cfg *Config) (*Sender, error) {
	if cfg == nil || cfg.Factory == nil || cfg.Self == nil || cfg.AckKey == nil || cfg.Sink == nil {
		return nil, errNilConfig
	}
	if err := cfg.Factory.ValidateCapacity(); err != nil {
		return nil, err
	}
	s := &Sender{
		cfg:   cfg,
		log:   cfg.Log,
		loops: newLoopTracker(),
	}
	if s.log == nil {
		s.log = log.NewDiscardLogger("client")
	}
	if s.cfg.AckSlack <= 0 {
		s.cfg.AckSlack = defaultAckSlack
	}
	instrument.Init()

	s.loop = NewPoissonProcess(cfg.LoopRate.Lambda, cfg.LoopRate.MaxDelay, func() { s.emit(cover.Loop) })
	s.drop = NewPoissonProcess(cfg.DropRate.Lambda, cfg.DropRate.MaxDelay, func() { s.emit(cover.Drop) })
	s.Go(s.sweepWorker)
	return s, nil
}

// UpdateDocument installs a new topology snapshot and starts sending.
// A nil document is ignored.
func (s *Sender) UpdateDocument(doc *pki.Document) {
	if doc == nil {
		s.log.Warning("Ignoring nil document")
		return
	}
	s.doc.Store(doc)
	s.log.Debugf("New document for epoch %d", doc.Epoch)
	if epochtime.IsStale(doc.Epoch, time.Now()) {
		s.log.Warningf("Document for epoch %d is stale, routes may use retired mix keys", doc.Epoch)
	}

	loop := s.cfg.LoopRate
	if loop.isZero() {
		loop = Rate{Lambda: doc.LambdaL, MaxDelay: doc.LambdaLMaxDelay}
	}
	drop := s.cfg.DropRate
	if drop.isZero() {
		drop = Rate{Lambda: doc.LambdaD, MaxDelay: doc.LambdaDMaxDelay}
	}
	s.loop.UpdateRate(loop.Lambda, loop.MaxDelay)
	s.drop.UpdateRate(drop.Lambda, drop.MaxDelay)
	s.loop.UpdateConnectionStatus(!s.cfg.DisableLoop)
	s.drop.UpdateConnectionStatus(!s.cfg.DisableDrop)
}

// Halt stops both processes and the sweeper.
func (s *Sender) Halt() {
	// Cancel the worker context first so a blocked sink send returns.
	s.Worker.Halt()
	s.loop.Halt()
	s.drop.Halt()
}

func averageDelay(configured time.Duration, mu float64) time.Duration {
	if configured > 0 || mu <= 0 {
		return configured
	}
	return time.Duration(float64(time.Millisecond) / mu)
}

func (s *Sender) delays(doc *pki.Document) (ackDelay, packetDelay time.Duration) {
	return averageDelay(s.cfg.AvgAckDelay, doc.Mu), averageDelay(s.cfg.AvgPacketDelay, doc.Mu)
}

// Build constructs one cover packet of kind against the current document.
func (s *Sender) Build(kind cover.Kind) (*mixpacket.MixPacket, error) {
	doc := s.doc.Load()
	if doc == nil {
		return nil, ErrNoDocument
	}
	ackDelay, packetDelay := s.delays(doc)
	switch kind {
	case cover.Loop:
		return s.cfg.Factory.LoopCoverPacket(rand.Reader, doc, s.cfg.AckKey, s.cfg.Self, ackDelay, packetDelay)
	case cover.Drop:
		return s.cfg.Factory.DropCoverPacket(rand.Reader, doc, s.cfg.Self, packetDelay)
	default:
		return nil, fmt.Errorf("client: invalid cover kind %v", kind)
	}
}

// Send builds one cover packet of kind and hands it to the sink.
func (s *Sender) Send(ctx context.Context, kind cover.Kind) error {
	pkt, err := s.Build(kind)
	if err != nil {
		instrument.ConstructionFailed(kind.String())
		return err
	}
	now := time.Now()
	if err := s.cfg.Sink.SendPacket(ctx, kind, pkt); err != nil {
		return err
	}
	instrument.PacketSent(kind.String())
	s.sent.Add(1)

	if kind == cover.Loop {
		ackDelay, packetDelay := s.delays(s.doc.Load())
		eta := now.Add(constants.DefaultNrHops * (ackDelay + packetDelay))
		s.loops.add(now, eta)
		instrument.PendingAcks(s.loops.len())
	}
	return nil
}

func (s *Sender) emit(kind cover.Kind) {
	err := s.Send(s.Context(), kind)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
	default:
		s.log.Warningf("Failed to send %v cover: %v", kind, err)
	}
}

// OnAck inspects the payload of a packet delivered to this client.  It
// returns true if it was the acknowledgement of a loop cover packet.
func (s *Sender) OnAck(payload []byte) bool {
	id, err := ack.RecoverIdentifier(s.cfg.AckKey, payload)
	if err != nil || !id.IsCover() {
		return false
	}
	sent, ok := s.loops.settle()
	if !ok {
		s.log.Debugf("Cover ack with no loop outstanding")
		return true
	}
	rtt := time.Since(sent)
	instrument.LoopRoundTrip(rtt)
	instrument.PendingAcks(s.loops.len())
	s.log.Debugf("Loop cover acknowledged after %v", rtt)
	return true
}

// Pending returns the number of loop packets awaiting acknowledgement.
func (s *Sender) Pending() int {
	return s.loops.len()
}

// Stats returns how many packets were sent and how many loops were lost.
func (s *Sender) Stats() (sent, lost uint64) {
	return s.sent.Load(), s.lost.Load()
}

func (s *Sender) sweep(now time.Time) {
	if n := s.loops.sweep(now, s.cfg.AckSlack); n > 0 {
		s.lost.Add(uint64(n))
		instrument.PendingAcks(s.loops.len())
		s.log.Noticef("Sweep: %d loop cover packet(s) lost", n)
	}
}

func (s *Sender) sweepWorker() {
	ticker := time.NewTicker(s.cfg.AckSlack / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.HaltCh():
			s.log.Debugf("Sweeper terminating gracefully.")
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}
