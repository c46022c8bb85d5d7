// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package ack

import (
	"fmt"
	"io"
	"time"

	"github.com/katzenpost/hpqc/nike"

	"github.com/katzenpost/cover/core/addressing"
	"github.com/katzenpost/cover/core/chunking"
	"github.com/katzenpost/cover/core/crypto/rand"
	"github.com/katzenpost/cover/core/params"
	"github.com/katzenpost/cover/core/pki"
	"github.com/katzenpost/cover/core/sphinx"
	"github.com/katzenpost/cover/core/sphinx/constants"
	"github.com/katzenpost/cover/core/sphinx/delays"
)

// RouteSelector picks the mix route to a gateway.
type RouteSelector interface {
	RandomRouteToGateway(rng io.Reader, doc *pki.Document, nrMixHops int, gateway *[constants.NodeIDLength]byte, forCover bool) ([]*sphinx.Node, error)
}

// SURBAck is a ready to embed acknowledgement packet.
type SURBAck struct {
	firstHop      *addressing.NodeAddress
	packet        []byte
	expectedDelay time.Duration
}

// NewSURBAck wraps an already built ack packet.
func NewSURBAck(firstHop *addressing.NodeAddress, packet []byte, expectedDelay time.Duration) *SURBAck {
	return &SURBAck{
		firstHop:      firstHop,
		packet:        packet,
		expectedDelay: expectedDelay,
	}
}

// BlobLength returns the length of PrepareForSending's output for scheme.
func BlobLength(scheme nike.Scheme) int {
	return addressing.NodeAddressLength + params.AckPacket.PacketLength(scheme)
}

// PrepareForSending returns the embeddable form, the first hop address
// followed by the Sphinx packet, and the sum of the ack's per-hop delays.
func (a *SURBAck) PrepareForSending() ([]byte, time.Duration) {
	b := make([]byte, 0, addressing.NodeAddressLength+len(a.packet))
	b = append(b, a.firstHop.Bytes()...)
	b = append(b, a.packet...)
	return b, a.expectedDelay
}

// ExpectedDelay is the total mixing delay the ack will accumulate.
func (a *SURBAck) ExpectedDelay() time.Duration {
	return a.expectedDelay
}

// FirstHop is where the receiving node must send the ack packet.
func (a *SURBAck) FirstHop() *addressing.NodeAddress {
	return a.firstHop
}

// Packet is the ack Sphinx packet.
func (a *SURBAck) Packet() []byte {
	return a.packet
}

// Builder constructs SURB-acks addressed to their sender.
type Builder struct {
	selector RouteSelector
	sphinx   *sphinx.Sphinx
}

// NewBuilder returns a Builder using the ack packet geometry of scheme.
func NewBuilder(scheme nike.Scheme, selector RouteSelector) *Builder {
	return &Builder{
		selector: selector,
		sphinx:   sphinx.NewSphinx(scheme, params.AckPacket.Geometry(scheme)),
	}
}

// Sphinx returns the ack packet constructor.
func (b *Builder) Sphinx() *sphinx.Sphinx {
	return b.sphinx
}

// Construct builds a SURB-ack that carries fragID, encrypted under key,
// through a fresh route back to self.
func (b *Builder) Construct(rng io.Reader, doc *pki.Document, self *addressing.Recipient, key *Key, fragID chunking.FragmentIdentifier, avgAckDelay time.Duration) (*SURBAck, error) {
	var (
		route     []*sphinx.Node
		hopDelays []time.Duration
	)
	err := rand.Guard(func() error {
		var err error
		if route, err = b.selector.RandomRouteToGateway(rng, doc, constants.DefaultNrMixHops, self.GatewayID(), false); err != nil {
			return err
		}
		hopDelays = delays.FromAverageDuration(rand.NewMathFromReader(rng), len(route), avgAckDelay)
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload, err := PrepareIdentifier(rng, key, fragID)
	if err != nil {
		return nil, err
	}
	pkt, err := b.sphinx.BuildPacket(rng, payload, route, self.SphinxDestination(), hopDelays)
	if err != nil {
		return nil, fmt.Errorf("ack: %w", err)
	}
	firstHop, err := addressing.NodeAddressFromString(route[0].Address)
	if err != nil {
		return nil, fmt.Errorf("ack: %w", err)
	}
	return NewSURBAck(firstHop, pkt, delays.Total(hopDelays)), nil
}
