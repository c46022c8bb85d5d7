// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package addressing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

const (
	// NodeAddressLength is the length of a serialized NodeAddress.
	NodeAddressLength = 1 + 16 + 2

	addrTypeV4 byte = 4
	addrTypeV6 byte = 6
)

// ErrInvalidNodeAddress is returned for addresses that are not a literal
// IP and non-zero port.
var ErrInvalidNodeAddress = errors.New("addressing: invalid node address")

// NodeAddress is the transport address of a mix node in the fixed width
// form carried in front of a SURB-ack.
type NodeAddress struct {
	ap netip.AddrPort
}

// NodeAddressFromString parses a literal "ip:port" address.  Host names
// are rejected, routing must never depend on a name lookup.
func NodeAddressFromString(s string) (*NodeAddress, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %v", ErrInvalidNodeAddress, s, err)
	}
	if ap.Port() == 0 {
		return nil, fmt.Errorf("%w: '%s': port is 0", ErrInvalidNodeAddress, s)
	}
	if ap.Addr().Zone() != "" {
		return nil, fmt.Errorf("%w: '%s': zoned address", ErrInvalidNodeAddress, s)
	}
	return &NodeAddress{ap: netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())}, nil
}

// NodeAddressFromBytes deserializes a NodeAddress.
func NodeAddressFromBytes(b []byte) (*NodeAddress, error) {
	if len(b) != NodeAddressLength {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidNodeAddress, len(b))
	}
	var raw [16]byte
	copy(raw[:], b[1:17])
	port := binary.BigEndian.Uint16(b[17:])
	if port == 0 {
		return nil, fmt.Errorf("%w: port is 0", ErrInvalidNodeAddress)
	}

	addr := netip.AddrFrom16(raw)
	switch b[0] {
	case addrTypeV4:
		if !addr.Is4In6() {
			return nil, fmt.Errorf("%w: malformed IPv4 address", ErrInvalidNodeAddress)
		}
		addr = addr.Unmap()
	case addrTypeV6:
	default:
		return nil, fmt.Errorf("%w: unknown type %d", ErrInvalidNodeAddress, b[0])
	}
	return &NodeAddress{ap: netip.AddrPortFrom(addr, port)}, nil
}

// Bytes returns the fixed width serialization of the address.
func (a *NodeAddress) Bytes() []byte {
	b := make([]byte, NodeAddressLength)
	addr := a.ap.Addr()
	b[0] = addrTypeV6
	if addr.Is4() {
		b[0] = addrTypeV4
	}
	raw := addr.As16()
	copy(b[1:17], raw[:])
	binary.BigEndian.PutUint16(b[17:], a.ap.Port())
	return b
}

// AddrPort returns the address as a netip.AddrPort, suitable for dialing.
func (a *NodeAddress) AddrPort() netip.AddrPort {
	return a.ap
}

func (a *NodeAddress) String() string {
	return a.ap.String()
}
