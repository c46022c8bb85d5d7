// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package params defines the fixed packet size presets every client and
// node must agree on.
package params

import (
	"errors"
	"fmt"
	"strings"

	"github.com/katzenpost/hpqc/nike"

	"github.com/katzenpost/cover/core/chunking"
	"github.com/katzenpost/cover/core/crypto/stream"
	"github.com/katzenpost/cover/core/sphinx/constants"
	"github.com/katzenpost/cover/core/sphinx/geo"
)

// ErrUnknownPacketSize is returned for an unrecognized preset name.
var ErrUnknownPacketSize = errors.New("params: unknown packet size")

// PacketSize is a packet size preset.
type PacketSize int

const (
	// RegularPacket carries ordinary traffic, including cover.
	RegularPacket PacketSize = iota

	// AckPacket is just large enough to carry an encrypted fragment
	// identifier back to its sender.
	AckPacket

	// ExtendedPacket carries bulk data.
	ExtendedPacket
)

const (
	regularPlaintextSize  = 2048
	ackPlaintextSize      = stream.IVLength + chunking.FragmentIdentifierLength
	extendedPlaintextSize = 32 * 1024
)

// DefaultPacketSize is used when nothing is configured.
const DefaultPacketSize = RegularPacket

// PlaintextSize is the number of bytes a packet of this size carries
// end to end.
func (p PacketSize) PlaintextSize() int {
	switch p {
	case RegularPacket:
		return regularPlaintextSize
	case AckPacket:
		return ackPlaintextSize
	case ExtendedPacket:
		return extendedPlaintextSize
	default:
		panic(fmt.Sprintf("params: BUG: invalid packet size %d", int(p)))
	}
}

// Geometry returns the Sphinx geometry of this size for scheme.
func (p PacketSize) Geometry(scheme nike.Scheme) *geo.Geometry {
	return geo.GeometryFromForwardPayloadLength(scheme, p.PlaintextSize(), constants.DefaultNrHops)
}

// PayloadSize is the length of the encrypted Sphinx payload, tag included.
func (p PacketSize) PayloadSize(scheme nike.Scheme) int {
	g := p.Geometry(scheme)
	return g.PayloadTagLength + g.ForwardPayloadLength
}

// PacketLength is the length of a complete Sphinx packet of this size.
func (p PacketSize) PacketLength(scheme nike.Scheme) int {
	return p.Geometry(scheme).PacketLength
}

func (p PacketSize) String() string {
	switch p {
	case RegularPacket:
		return "regular"
	case AckPacket:
		return "ack"
	case ExtendedPacket:
		return "extended"
	default:
		return fmt.Sprintf("invalid(%d)", int(p))
	}
}

// PacketSizeFromString parses a preset name, case insensitively.
func PacketSizeFromString(s string) (PacketSize, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "regular", "":
		return RegularPacket, nil
	case "ack":
		return AckPacket, nil
	case "extended":
		return ExtendedPacket, nil
	default:
		return 0, fmt.Errorf("%w: '%s'", ErrUnknownPacketSize, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p PacketSize) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PacketSize) UnmarshalText(text []byte) error {
	v, err := PacketSizeFromString(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
