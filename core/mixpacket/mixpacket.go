// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package mixpacket is the unit handed from packet construction to the
// transport: a Sphinx packet and the first hop it must be sent to.
package mixpacket

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/katzenpost/cover/core/addressing"
)

// ErrInvalidPacket is returned when a serialized MixPacket is malformed.
var ErrInvalidPacket = errors.New("mixpacket: invalid packet")

// PacketMode tells mixes how to treat a packet.
type PacketMode uint8

const (
	// ModeMix packets are delayed at every hop as instructed.
	ModeMix PacketMode = iota

	// ModeVPN packets ignore delays.
	ModeVPN
)

func (m PacketMode) String() string {
	switch m {
	case ModeMix:
		return "mix"
	case ModeVPN:
		return "vpn"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(m))
	}
}

// IsValid returns true iff m is a known mode.
func (m PacketMode) IsValid() bool {
	return m == ModeMix || m == ModeVPN
}

// MixPacket is a routable Sphinx packet.
type MixPacket struct {
	NextHop *addressing.NodeAddress
	Packet  []byte
	Mode    PacketMode
}

// New returns a MixPacket.
func New(nextHop *addressing.NodeAddress, packet []byte, mode PacketMode) *MixPacket {
	return &MixPacket{
		NextHop: nextHop,
		Packet:  packet,
		Mode:    mode,
	}
}

type wirePacket struct {
	Mode    uint8
	NextHop []byte
	Packet  []byte
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *MixPacket) MarshalBinary() ([]byte, error) {
	if p.NextHop == nil {
		return nil, fmt.Errorf("%w: missing next hop", ErrInvalidPacket)
	}
	if !p.Mode.IsValid() {
		return nil, fmt.Errorf("%w: mode %v", ErrInvalidPacket, p.Mode)
	}
	return ccbor.Marshal(&wirePacket{
		Mode:    uint8(p.Mode),
		NextHop: p.NextHop.Bytes(),
		Packet:  p.Packet,
	})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *MixPacket) UnmarshalBinary(data []byte) error {
	w := new(wirePacket)
	if err := cbor.Unmarshal(data, w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	mode := PacketMode(w.Mode)
	if !mode.IsValid() {
		return fmt.Errorf("%w: mode %v", ErrInvalidPacket, mode)
	}
	nextHop, err := addressing.NodeAddressFromBytes(w.NextHop)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	p.NextHop = nextHop
	p.Packet = w.Packet
	p.Mode = mode
	return nil
}

func (p *MixPacket) String() string {
	return fmt.Sprintf("{%v %v %d bytes}", p.NextHop, p.Mode, len(p.Packet))
}

var ccbor cbor.EncMode

func init() {
	var err error
	opts := cbor.CanonicalEncOptions()
	ccbor, err = opts.EncMode()
	if err != nil {
		panic(err)
	}
}
