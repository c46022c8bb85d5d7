// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package client

import (
	"context"
	"time"

	"github.com/katzenpost/cover/core/cover"
	"github.com/katzenpost/cover/core/mixpacket"
)

// PacketSink accepts cover packets for transmission to their first hop.
type PacketSink interface {
	SendPacket(ctx context.Context, kind cover.Kind, pkt *mixpacket.MixPacket) error
}

// Outgoing is a cover packet queued on a Sink.
type Outgoing struct {
	Kind   cover.Kind
	Packet *mixpacket.MixPacket
	Queued time.Time
}

// Sink is a PacketSink backed by a buffered channel.
type Sink struct {
	ch chan *Outgoing
}

// NewSink returns a Sink that buffers up to capacity packets.
func NewSink(capacity int) *Sink {
	return &Sink{ch: make(chan *Outgoing, capacity)}
}

// SendPacket queues pkt, blocking while the buffer is full.
func (s *Sink) SendPacket(ctx context.Context, kind cover.Kind, pkt *mixpacket.MixPacket) error {
	o := &Outgoing{
		Kind:   kind,
		Packet: pkt,
		Queued: time.Now(),
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- o:
		return nil
	}
}

// C returns the channel queued packets are read from.
func (s *Sink) C() <-chan *Outgoing {
	return s.ch
}
