// descriptor.go - Katzenpost mix descriptor s11n.
// Copyright (C) 2022  Yawning Angel, masala, David Stainton
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package pki

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/net/idna"

	"github.com/katzenpost/hpqc/hash"
	"github.com/katzenpost/hpqc/nike"

	"github.com/katzenpost/cover/core/sphinx/constants"
)

const (
	DescriptorVersion = "v0"

	// maxMixKeyEpochs is how many consecutive epochs of mix keys a
	// descriptor may publish, starting at the document epoch.
	maxMixKeyEpochs = 3
)

var (
	// ErrNoMixKey is returned when a descriptor has no mix key for the
	// requested epoch.
	ErrNoMixKey = errors.New("pki: descriptor has no mix key for epoch")
)

var (
	// TransportInvalid is the invalid transport.
	TransportInvalid string

	// TransportTCP is TCP, with the IP version determined by the results of
	// a name server lookup.
	TransportTCP string = "tcp"

	// TransportTCPv4 is TCP over IPv4.
	TransportTCPv4 string = "tcp4"

	// TransportTCPv6 is TCP over IPv6.
	TransportTCPv6 string = "tcp6"

	// InternalTransports is the list of transports used between nodes, in
	// order of preference.
	InternalTransports = []string{TransportTCPv4, TransportTCPv6}
)

// MixDescriptor is a description of a given Mix or gateway (node).
type MixDescriptor struct {
	// Name is the human readable (descriptive) node identifier.
	Name string

	// Epoch is the Epoch in which this descriptor was created
	Epoch uint64

	// IdentityKey is the node's identity (signing) key.  Its hash is the
	// Sphinx node identifier.
	IdentityKey []byte

	// MixKeys is a map of epochs to Sphinx keys.
	MixKeys map[uint64][]byte

	// Addresses is the map of transport to address combinations that can
	// be used to reach the node.
	Addresses map[string][]string

	// IsGatewayNode indicates that this Mix is a gateway node.
	// Essentially a gateway allows clients to interact with the mixnet.
	IsGatewayNode bool

	// IsServiceNode indicates that this Mix is a service node.
	IsServiceNode bool

	// Standby marks a node that is listed but not currently mixing.  Standby
	// nodes are skipped by route selection.
	Standby bool

	// Version uniquely identifies the descriptor format as being for the
	// specified version so that it can be rejected if the format changes.
	Version string
}

type mixdescriptor MixDescriptor

// IdentityKeyHash returns the Sphinx node identifier of the descriptor.
func (d *MixDescriptor) IdentityKeyHash() [constants.NodeIDLength]byte {
	return hash.Sum256(d.IdentityKey)
}

// UnmarshalMixKey returns the node's Sphinx public key for epoch.
func (d *MixDescriptor) UnmarshalMixKey(epoch uint64, s nike.Scheme) (nike.PublicKey, error) {
	raw, ok := d.MixKeys[epoch]
	if !ok {
		return nil, fmt.Errorf("%w: %s epoch %d", ErrNoMixKey, d.Name, epoch)
	}
	return s.UnmarshalBinaryPublicKey(raw)
}

// Address returns the first published address for the internal transports.
func (d *MixDescriptor) Address() (string, error) {
	for _, t := range InternalTransports {
		if addrs := d.Addresses[t]; len(addrs) > 0 {
			return addrs[0], nil
		}
	}
	return "", fmt.Errorf("pki: descriptor '%s' has no internal transport address", d.Name)
}

// String returns a human readable MixDescriptor suitable for terse logging.
func (d *MixDescriptor) String() string {
	id := d.IdentityKeyHash()
	s := fmt.Sprintf("{%s %x %v", d.Name, id[:8], d.Addresses)
	if d.Standby {
		s += " standby"
	}
	return s + "}"
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler interface
func (d *MixDescriptor) UnmarshalBinary(data []byte) error {
	return cbor.Unmarshal(data, (*mixdescriptor)(d))
}

// MarshalBinary implmements encoding.BinaryMarshaler
func (d *MixDescriptor) MarshalBinary() ([]byte, error) {
	return ccbor.Marshal((*mixdescriptor)(d))
}

// IsDescriptorWellFormed validates the descriptor and returns a descriptive
// error iff there are any problems that would make it unusable as part of
// a PKI Document.
func IsDescriptorWellFormed(d *MixDescriptor, epoch uint64) error {
	if d.Name == "" {
		return fmt.Errorf("Descriptor missing Name")
	}
	if len(d.Name) > constants.NodeIDLength {
		return fmt.Errorf("Descriptor Name '%v' exceeds max length", d.Name)
	}
	if d.IdentityKey == nil {
		return fmt.Errorf("Descriptor missing IdentityKey")
	}
	if d.IsGatewayNode && d.IsServiceNode {
		return fmt.Errorf("Descriptor '%v' is both a gateway and a service node", d.Name)
	}
	if d.MixKeys[epoch] == nil {
		return fmt.Errorf("Descriptor missing MixKey[%v]", epoch)
	}
	for e := range d.MixKeys {
		if e < epoch || e >= epoch+maxMixKeyEpochs {
			return fmt.Errorf("Descriptor contains MixKey for invalid epoch: %v", d)
		}
	}
	if len(d.Addresses) == 0 {
		return fmt.Errorf("Descriptor missing Addresses")
	}
	for transport, addrs := range d.Addresses {
		if len(addrs) == 0 {
			return fmt.Errorf("Descriptor contains empty Address list for transport '%v'", transport)
		}

		var expectedIPVer int
		switch transport {
		case TransportInvalid:
			return fmt.Errorf("Descriptor contains invalid Transport")
		case TransportTCPv4:
			expectedIPVer = 4
		case TransportTCPv6:
			expectedIPVer = 6
		case TransportTCP:
		default:
			// Ignore transports that don't have validation logic.
			continue
		}

		for _, v := range addrs {
			h, p, err := net.SplitHostPort(v)
			if err != nil {
				return fmt.Errorf("Descriptor contains invalid address ['%v']'%v': %v", transport, v, err)
			}
			if len(h) == 0 {
				return fmt.Errorf("Descriptor contains invalid address ['%v']'%v'", transport, v)
			}
			if port, err := strconv.ParseUint(p, 10, 16); err != nil {
				return fmt.Errorf("Descriptor contains invalid address ['%v']'%v': %v", transport, v, err)
			} else if port == 0 {
				return fmt.Errorf("Descriptor contains invalid address ['%v']'%v': port is 0", transport, v)
			}
			switch expectedIPVer {
			case 4, 6:
				if ver, err := getIPVer(h); err != nil {
					return fmt.Errorf("Descriptor contains invalid address ['%v']'%v': %v", transport, v, err)
				} else if ver != expectedIPVer {
					return fmt.Errorf("Descriptor contains invalid address ['%v']'%v': IP version mismatch", transport, v)
				}
			default:
				// DNS style hostnames must at least be well formed.
				if _, err := idna.Lookup.ToASCII(h); err != nil {
					return fmt.Errorf("Descriptor contains invalid address ['%v']'%v': %v", transport, v, err)
				}
			}
		}
	}
	if len(d.Addresses[TransportTCPv4]) == 0 && len(d.Addresses[TransportTCPv6]) == 0 {
		return fmt.Errorf("Descriptor contains no TCPv4 or TCPv6 addresses")
	}
	return nil
}

func getIPVer(h string) (int, error) {
	ip := net.ParseIP(h)
	if ip != nil {
		switch {
		case ip.To4() != nil:
			return 4, nil
		case ip.To16() != nil:
			return 6, nil
		default:
		}
	}
	return 0, fmt.Errorf("address is not an IP")
}
