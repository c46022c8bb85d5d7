// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package geo describes the sizes of a NIKE Sphinx packet.
package geo

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/katzenpost/hpqc/nike"
	"github.com/katzenpost/hpqc/nike/x25519"
	"github.com/katzenpost/hpqc/nike/x448"
	"github.com/katzenpost/hpqc/rand"

	"github.com/katzenpost/cover/core/sphinx/commands"
	"github.com/katzenpost/cover/core/sphinx/constants"
	"github.com/katzenpost/cover/core/sphinx/internal/crypto"
)

const (
	// sphinxPlaintextHeaderLength is the length of a BlockSphinxPlaintext
	// in bytes.
	sphinxPlaintextHeaderLength = 1 + 1

	adLength = 2

	// payloadTagLength is the length of the Sphinx packet payload SPRP tag.
	payloadTagLength = 32

	sprpKeyMaterialLength = crypto.SPRPKeyLength + crypto.SPRPIVLength
)

// ErrUnknownNIKE is returned for a NIKEName without a registered scheme.
var ErrUnknownNIKE = errors.New("geo: unknown NIKE scheme")

// Geometry describes the geometry of a Sphinx packet.
type Geometry struct {

	// PacketLength is the length of a packet.
	PacketLength int

	// NrHops is the number of hops, this indicates the size
	// of the Sphinx packet header.
	NrHops int

	// HeaderLength is the length of the Sphinx packet header in bytes.
	HeaderLength int

	// RoutingInfoLength is the length of the routing info portion of the header.
	RoutingInfoLength int

	// PerHopRoutingInfoLength is the length of the per hop routing info.
	PerHopRoutingInfoLength int

	// SURBLength is the length of SURB.
	SURBLength int

	// SphinxPlaintextHeaderLength is the length of the plaintext header.
	SphinxPlaintextHeaderLength int

	// PayloadTagLength is the length of the payload tag.
	PayloadTagLength int

	// ForwardPayloadLength is the size of the payload.
	ForwardPayloadLength int

	// UserForwardPayloadLength is the size of the usable payload once a
	// reply SURB and the plaintext header are accounted for.
	UserForwardPayloadLength int

	// NIKEName is the name of the NIKE scheme used by the mixnet's Sphinx packet.
	NIKEName string
}

// NIKEScheme returns the NIKE scheme named by the geometry.
func (g *Geometry) NIKEScheme() (nike.Scheme, error) {
	return NIKESchemeByName(g.NIKEName)
}

// NIKESchemeByName returns the classical NIKE scheme registered under name.
func NIKESchemeByName(name string) (nike.Scheme, error) {
	switch strings.ToLower(name) {
	case "x25519":
		return x25519.Scheme(rand.Reader), nil
	case "x448":
		return x448.Scheme(rand.Reader), nil
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownNIKE, name)
	}
}

// Validate returns an error iff the geometry is internally inconsistent.
func (g *Geometry) Validate() error {
	if g.NrHops < 1 {
		return errors.New("geo: NrHops must be positive")
	}
	if g.ForwardPayloadLength <= 0 {
		return errors.New("geo: ForwardPayloadLength must be positive")
	}
	scheme, err := g.NIKEScheme()
	if err != nil {
		return err
	}
	expected := GeometryFromForwardPayloadLength(scheme, g.ForwardPayloadLength, g.NrHops)
	expected.UserForwardPayloadLength = g.UserForwardPayloadLength
	if *expected != *g {
		return fmt.Errorf("geo: inconsistent geometry, expected:\n%s", expected)
	}
	return nil
}

func (g *Geometry) String() string {
	var b strings.Builder
	b.WriteString("sphinx_packet_geometry:\n")
	b.WriteString(fmt.Sprintf("nike: %s\n", g.NIKEName))
	b.WriteString(fmt.Sprintf("packet size: %d\n", g.PacketLength))
	b.WriteString(fmt.Sprintf("number of hops: %d\n", g.NrHops))
	b.WriteString(fmt.Sprintf("header size: %d\n", g.HeaderLength))
	b.WriteString(fmt.Sprintf("forward payload size: %d\n", g.ForwardPayloadLength))
	b.WriteString(fmt.Sprintf("user forward payload size: %d\n", g.UserForwardPayloadLength))
	b.WriteString(fmt.Sprintf("payload tag size: %d\n", g.PayloadTagLength))
	b.WriteString(fmt.Sprintf("routing info size: %d\n", g.RoutingInfoLength))
	b.WriteString(fmt.Sprintf("surb size: %d\n", g.SURBLength))
	b.WriteString(fmt.Sprintf("sphinx plaintext header size: %d\n", g.SphinxPlaintextHeaderLength))
	return b.String()
}

// Display renders the geometry as a TOML block suitable for pasting into a
// configuration file.
func (g *Geometry) Display() string {
	buf := new(bytes.Buffer)
	encoder := toml.NewEncoder(buf)
	err := encoder.Encode(g)
	if err != nil {
		panic(err)
	}
	return buf.String()
}

type geometryFactory struct {
	nike                 nike.Scheme
	nrHops               int
	forwardPayloadLength int
}

// perHopRoutingInfoLength is derived off the largest routing info block that
// we expect to encounter.  Everything else just has a NextNodeHop + NodeDelay,
// or a NodeDelay + Recipient, both cases which are shorter.
func (f *geometryFactory) perHopRoutingInfoLength() int {
	return commands.NextNodeHopLength + commands.SURBReplyLength
}

func (f *geometryFactory) routingInfoLength() int {
	return f.perHopRoutingInfoLength() * f.nrHops
}

func (f *geometryFactory) headerLength() int {
	return adLength + f.nike.PublicKeySize() + f.routingInfoLength() + crypto.MACLength
}

func (f *geometryFactory) packetLength() int {
	return f.headerLength() + payloadTagLength + f.forwardPayloadLength
}

func (f *geometryFactory) surbLength() int {
	return f.headerLength() + constants.NodeIDLength + sprpKeyMaterialLength
}

// userForwardPayloadLength is zero for payloads too small to carry a SURB.
func (f *geometryFactory) userForwardPayloadLength() int {
	n := f.forwardPayloadLength - (sphinxPlaintextHeaderLength + f.surbLength())
	if n < 0 {
		return 0
	}
	return n
}

func (f *geometryFactory) deriveForwardPayloadLength(userForwardPayloadLength int) int {
	return userForwardPayloadLength + (sphinxPlaintextHeaderLength + f.surbLength())
}

func (f *geometryFactory) geometry() *Geometry {
	return &Geometry{
		NrHops:                      f.nrHops,
		HeaderLength:                f.headerLength(),
		PacketLength:                f.packetLength(),
		SURBLength:                  f.surbLength(),
		UserForwardPayloadLength:    f.userForwardPayloadLength(),
		ForwardPayloadLength:        f.forwardPayloadLength,
		PayloadTagLength:            payloadTagLength,
		SphinxPlaintextHeaderLength: sphinxPlaintextHeaderLength,
		RoutingInfoLength:           f.routingInfoLength(),
		PerHopRoutingInfoLength:     f.perHopRoutingInfoLength(),
		NIKEName:                    f.nike.Name(),
	}
}

// GeometryFromForwardPayloadLength returns the geometry of a packet whose
// payload is exactly forwardPayloadLength bytes.  Cover and acknowledgement
// packets use this form since their payload layout is fixed.
func GeometryFromForwardPayloadLength(nike nike.Scheme, forwardPayloadLength, nrHops int) *Geometry {
	f := &geometryFactory{
		nike:                 nike,
		nrHops:               nrHops,
		forwardPayloadLength: forwardPayloadLength,
	}
	return f.geometry()
}

// GeometryFromUserForwardPayloadLength returns the geometry of a packet that
// carries userForwardPayloadLength bytes of user data, optionally with room
// for a reply SURB.
func GeometryFromUserForwardPayloadLength(nike nike.Scheme, userForwardPayloadLength int, withSURB bool, nrHops int) *Geometry {
	f := &geometryFactory{
		nike:   nike,
		nrHops: nrHops,
	}
	f.forwardPayloadLength = userForwardPayloadLength
	if withSURB {
		f.forwardPayloadLength = f.deriveForwardPayloadLength(userForwardPayloadLength)
	}
	g := f.geometry()
	g.UserForwardPayloadLength = userForwardPayloadLength
	return g
}
