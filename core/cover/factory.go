// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package cover builds loop and drop cover packets that are
// indistinguishable from client traffic, and recognizes cover content once
// it has been decrypted.
package cover

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/katzenpost/hpqc/nike"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/cover/core/ack"
	"github.com/katzenpost/cover/core/addressing"
	"github.com/katzenpost/cover/core/chunking"
	"github.com/katzenpost/cover/core/crypto/rand"
	"github.com/katzenpost/cover/core/crypto/sharedkey"
	"github.com/katzenpost/cover/core/crypto/stream"
	"github.com/katzenpost/cover/core/log"
	"github.com/katzenpost/cover/core/mixpacket"
	"github.com/katzenpost/cover/core/params"
	"github.com/katzenpost/cover/core/pki"
	"github.com/katzenpost/cover/core/sphinx"
	"github.com/katzenpost/cover/core/sphinx/constants"
	"github.com/katzenpost/cover/core/sphinx/delays"
	"github.com/katzenpost/cover/core/sphinx/path"
)

// RouteSelector picks a route of mix nodes that ends at a gateway.
type RouteSelector interface {
	RandomRouteToGateway(rng io.Reader, doc *pki.Document, nrMixHops int, gateway *[constants.NodeIDLength]byte, forCover bool) ([]*sphinx.Node, error)
}

// SURBAckBuilder constructs the acknowledgement carried by loop cover.
type SURBAckBuilder interface {
	Construct(rng io.Reader, doc *pki.Document, self *addressing.Recipient, key *ack.Key, fragID chunking.FragmentIdentifier, avgAckDelay time.Duration) (*ack.SURBAck, error)
}

// PacketBuilder encodes a payload as a Sphinx packet along route.
type PacketBuilder interface {
	BuildPacket(rng io.Reader, payload []byte, route []*sphinx.Node, dest *sphinx.Destination, delays []time.Duration) ([]byte, error)
}

// Option configures a Factory.
type Option func(*Factory)

// WithRouteSelector overrides the route selector used for cover packets.
// The default SURB-ack builder keeps its own selector.
func WithRouteSelector(s RouteSelector) Option {
	return func(f *Factory) {
		f.selector = s
	}
}

// WithSURBAckBuilder overrides how loop cover acknowledgements are built.
func WithSURBAckBuilder(b SURBAckBuilder) Option {
	return func(f *Factory) {
		f.acks = b
	}
}

// WithPacketBuilder overrides the Sphinx packet encoder.
func WithPacketBuilder(b PacketBuilder) Option {
	return func(f *Factory) {
		f.packets = b
	}
}

// WithPacketSize sets the packet size preset cover is padded to.
func WithPacketSize(p params.PacketSize) Option {
	return func(f *Factory) {
		f.packetSize = p
	}
}

// WithLogger sets the factory logger.
func WithLogger(l *logging.Logger) Option {
	return func(f *Factory) {
		f.log = l
	}
}

// Factory builds cover packets.  It holds no mutable state after
// NewFactory returns and may be shared between goroutines, provided each
// call gets its own random source.
type Factory struct {
	scheme     nike.Scheme
	packetSize params.PacketSize

	selector RouteSelector
	acks     SURBAckBuilder
	packets  PacketBuilder

	log *logging.Logger
}

// NewFactory returns a Factory for the NIKE scheme of the mix network.
func NewFactory(scheme nike.Scheme, opts ...Option) *Factory {
	f := &Factory{
		scheme:     scheme,
		packetSize: params.DefaultPacketSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.selector == nil {
		f.selector = path.NewSelector(scheme)
	}
	if f.acks == nil {
		f.acks = ack.NewBuilder(scheme, path.NewSelector(scheme))
	}
	if f.packets == nil {
		f.packets = sphinx.NewSphinx(scheme, f.packetSize.Geometry(scheme))
	}
	if f.log == nil {
		f.log = log.NewDiscardLogger("cover")
	}
	return f
}

// PlaintextSize is the length of every cover payload before Sphinx
// encoding.
func (f *Factory) PlaintextSize() int {
	return f.packetSize.PlaintextSize()
}

// PacketSize returns the configured packet size preset.
func (f *Factory) PacketSize() params.PacketSize {
	return f.packetSize
}

// ValidateCapacity checks that the factory's packet size can carry loop
// cover.
func (f *Factory) ValidateCapacity() error {
	return ValidateCapacity(f.scheme, f.packetSize)
}

// ValidateCapacity returns a *CapacityError if a packet of size p cannot
// hold an ephemeral key of scheme and a SURB-ack blob.
func ValidateCapacity(scheme nike.Scheme, p params.PacketSize) error {
	return checkCapacity(Loop, p.PlaintextSize(), scheme.PublicKeySize(), ack.BlobLength(scheme))
}

func checkCapacity(kind Kind, plaintext, keyLen, ackLen int) error {
	if plaintext-keyLen-ackLen < 0 {
		return &CapacityError{
			Kind:          kind,
			PlaintextSize: plaintext,
			KeyLength:     keyLen,
			AckLength:     ackLen,
		}
	}
	return nil
}

// DropCoverPayload returns the plaintext of a drop cover packet:
// ephemeral public key || encrypted filler.
func (f *Factory) DropCoverPayload(rng io.Reader, self *addressing.Recipient) ([]byte, error) {
	return f.payload(rng, self, Drop, nil)
}

// LoopCoverPayload returns the plaintext of a loop cover packet:
// ackBlob || ephemeral public key || encrypted filler.  It panics with a
// *CapacityError if the parts do not fit.
func (f *Factory) LoopCoverPayload(rng io.Reader, self *addressing.Recipient, ackBlob []byte) ([]byte, error) {
	return f.payload(rng, self, Loop, ackBlob)
}

func (f *Factory) payload(rng io.Reader, self *addressing.Recipient, kind Kind, prefix []byte) ([]byte, error) {
	eph, err := sharedkey.NewEphemeral(rng, f.scheme, self.EncryptionKey)
	if err != nil {
		return nil, &SphinxError{Err: err}
	}
	defer eph.Reset()

	pub := eph.PublicKey.Bytes()
	size := f.PlaintextSize()
	if err := checkCapacity(kind, size, len(pub), len(prefix)); err != nil {
		panic(err)
	}

	filler := markedContent(kind.Marker(), size-len(prefix)-len(pub))
	stream.EncryptInPlace(&eph.SharedKey, stream.ZeroIV(), filler)

	b := make([]byte, 0, size)
	b = append(b, prefix...)
	b = append(b, pub...)
	b = append(b, filler...)
	return b, nil
}

// DropCoverPacket builds a drop cover packet addressed to self, to be
// discarded by self's gateway.
func (f *Factory) DropCoverPacket(rng io.Reader, doc *pki.Document, self *addressing.Recipient, avgPacketDelay time.Duration) (*mixpacket.MixPacket, error) {
	payload, err := f.DropCoverPayload(rng, self)
	if err != nil {
		return nil, err
	}
	return f.packet(rng, doc, self, Drop, payload, avgPacketDelay)
}

// LoopCoverSURBAck builds the acknowledgement embedded in loop cover.  It
// always carries the reserved cover fragment identifier.
func (f *Factory) LoopCoverSURBAck(rng io.Reader, doc *pki.Document, ackKey *ack.Key, self *addressing.Recipient, avgAckDelay time.Duration) (*ack.SURBAck, error) {
	a, err := f.acks.Construct(rng, doc, self, ackKey, chunking.CoverFragmentID, avgAckDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: surb-ack: %v", ErrInvalidTopology, err)
	}
	return a, nil
}

// LoopCoverPacket builds a loop cover packet that travels back to self and
// carries a SURB-ack for the reserved cover fragment.
func (f *Factory) LoopCoverPacket(rng io.Reader, doc *pki.Document, ackKey *ack.Key, self *addressing.Recipient, avgAckDelay, avgPacketDelay time.Duration) (*mixpacket.MixPacket, error) {
	a, err := f.LoopCoverSURBAck(rng, doc, ackKey, self, avgAckDelay)
	if err != nil {
		return nil, err
	}
	// Loop cover is never retransmitted, so the ack delay is not tracked.
	blob, _ := a.PrepareForSending()

	payload, err := f.LoopCoverPayload(rng, self, blob)
	if err != nil {
		return nil, err
	}
	return f.packet(rng, doc, self, Loop, payload, avgPacketDelay)
}

func (f *Factory) packet(rng io.Reader, doc *pki.Document, self *addressing.Recipient, kind Kind, payload []byte, avgPacketDelay time.Duration) (*mixpacket.MixPacket, error) {
	var (
		route     []*sphinx.Node
		hopDelays []time.Duration
	)
	err := rand.Guard(func() error {
		var err error
		route, err = f.selector.RandomRouteToGateway(rng, doc, constants.DefaultNrMixHops, self.GatewayID(), kind == Drop)
		if err != nil {
			return routeError(err)
		}
		if len(route) == 0 {
			return fmt.Errorf("%w: empty route", ErrInvalidTopology)
		}
		hopDelays = delays.FromAverageDuration(rand.NewMathFromReader(rng), len(route), avgPacketDelay)
		return nil
	})
	switch {
	case errors.Is(err, rand.ErrEntropy):
		// Same kind as an entropy failure inside BuildPacket.
		return nil, &SphinxError{Err: err}
	case err != nil:
		return nil, err
	}

	pkt, err := f.packets.BuildPacket(rng, payload, route, self.SphinxDestination(), hopDelays)
	if err != nil {
		return nil, &SphinxError{Err: err}
	}
	firstHop, err := addressing.NodeAddressFromString(route[0].Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFirstMixAddress, err)
	}

	f.log.Debugf("%v cover: %d hops via %v, expected delay %v", kind, len(route), firstHop, delays.Total(hopDelays))
	if f.log.IsEnabledFor(logging.DEBUG) {
		if hops, err := path.ToString(doc, route, hopDelays); err == nil {
			for _, h := range hops {
				f.log.Debug(h)
			}
		}
	}
	return mixpacket.New(firstHop, pkt, mixpacket.ModeMix), nil
}
