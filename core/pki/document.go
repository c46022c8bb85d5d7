// document.go - Mixnet topology document.
// Copyright (C) 2022  David Stainton, Yawning Angel, masala.
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

// Package pki provides the mix network topology snapshot and its
// serialization routines.
package pki

import (
	"crypto/hmac"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/katzenpost/hpqc/hash"
)

const (
	// LayerGateway is the Layer that gateways list in their MixDescriptors.
	LayerGateway = 255

	// LayerService is the Layer that service nodes list in their MixDescriptors.
	LayerService = 254

	// DocumentVersion identifies the document format version
	DocumentVersion = "v0"
)

var (
	// ErrNodeNotFound is returned by the lookup helpers when no descriptor
	// matches.
	ErrNodeNotFound = errors.New("pki: node not found")

	// ErrInvalidDocument is wrapped by every Validate failure.
	ErrInvalidDocument = errors.New("pki: invalid document")

	// Create reusable EncMode interface with immutable options, safe for concurrent use.
	ccbor cbor.EncMode
)

// Document is a read-only snapshot of the mix network topology for an epoch.
type Document struct {
	// Epoch is the epoch for which this Document instance is valid for.
	Epoch uint64

	// Mu is the inverse of the mean of the exponential distribution
	// that the Sphinx packet per-hop mixing delay will be sampled from.
	Mu float64

	// MuMaxDelay is the maximum Sphinx packet per-hop mixing delay in
	// milliseconds.
	MuMaxDelay uint64

	// LambdaL is the inverse of the mean of the exponential distribution
	// that clients will sample to determine the time interval between sending
	// decoy loop messages.
	LambdaL float64

	// LambdaLMaxDelay is the maximum time interval in milliseconds.
	LambdaLMaxDelay uint64

	// LambdaD is the inverse of the mean of the exponential distribution
	// that clients will sample to determine the time interval between sending
	// decoy drop messages.
	LambdaD float64

	// LambdaDMaxDelay is the maximum time interval in milliseconds.
	LambdaDMaxDelay uint64

	// Topology is the mix network topology, excluding gateways and
	// service nodes.
	Topology [][]*MixDescriptor

	// GatewayNodes is the list of nodes that can allow clients to interact
	// with the mix network.
	GatewayNodes []*MixDescriptor

	// ServiceNodes is the list of nodes that can allow services to interact
	// with the mix network.
	ServiceNodes []*MixDescriptor

	// SphinxGeometryHash is used to ensure all mixnet actors have the same
	// Sphinx Geometry.
	SphinxGeometryHash []byte

	// Version uniquely identifies the document format as being for the
	// specified version so that it can be rejected if the format changes.
	Version string
}

// document contains fields from Document but not the encoding.BinaryMarshaler methods
type document Document

// String returns a string representation of a Document.
func (d *Document) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "&{Epoch: %v Mu: %v MuMaxDelay: %v LambdaL: %v LambdaLMaxDelay: %v LambdaD: %v LambdaDMaxDelay: %v\nTopology:\n",
		d.Epoch, d.Mu, d.MuMaxDelay, d.LambdaL, d.LambdaLMaxDelay, d.LambdaD, d.LambdaDMaxDelay)
	for l, nodes := range d.Topology {
		fmt.Fprintf(&b, "  [%v]{%v}\n", l, nodes)
	}
	fmt.Fprintf(&b, "GatewayNodes:[]{%v}\n", d.GatewayNodes)
	fmt.Fprintf(&b, "ServiceNodes:[]{%v}\n}", d.ServiceNodes)
	return b.String()
}

func findByKeyHash(nodes []*MixDescriptor, keyhash *[32]byte) (*MixDescriptor, error) {
	for _, v := range nodes {
		if v.IdentityKey == nil {
			return nil, fmt.Errorf("pki: document contains invalid descriptors")
		}
		idKeyHash := hash.Sum256(v.IdentityKey)
		if hmac.Equal(idKeyHash[:], keyhash[:]) {
			return v, nil
		}
	}
	return nil, ErrNodeNotFound
}

func findByName(nodes []*MixDescriptor, name string) (*MixDescriptor, error) {
	for _, v := range nodes {
		if v.Name == name {
			return v, nil
		}
	}
	return nil, ErrNodeNotFound
}

// GetGateway returns the MixDescriptor for the given gateway Name.
func (d *Document) GetGateway(name string) (*MixDescriptor, error) {
	m, err := findByName(d.GatewayNodes, name)
	if err != nil {
		return nil, fmt.Errorf("%w: gateway '%v'", err, name)
	}
	return m, nil
}

// GetGatewayByKeyHash returns the specific gateway descriptor corresponding
// to the specified IdentityKey hash.
func (d *Document) GetGatewayByKeyHash(keyhash *[32]byte) (*MixDescriptor, error) {
	return findByKeyHash(d.GatewayNodes, keyhash)
}

// GetServiceNodeByKeyHash returns the specific service descriptor
// corresponding to the specified IdentityKey hash.
func (d *Document) GetServiceNodeByKeyHash(keyhash *[32]byte) (*MixDescriptor, error) {
	return findByKeyHash(d.ServiceNodes, keyhash)
}

// GetMix returns the MixDescriptor for the given mix Name.
func (d *Document) GetMix(name string) (*MixDescriptor, error) {
	for _, l := range d.Topology {
		if m, err := findByName(l, name); err == nil {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: mix '%v'", ErrNodeNotFound, name)
}

// GetMixByKeyHash returns the specific mix descriptor corresponding
// to the specified IdentityKey hash.
func (d *Document) GetMixByKeyHash(keyhash *[32]byte) (*MixDescriptor, error) {
	for _, l := range d.Topology {
		m, err := findByKeyHash(l, keyhash)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrNodeNotFound) {
			return nil, err
		}
	}
	return nil, ErrNodeNotFound
}

// GetMixLayer returns the assigned layer for the given node.
func (d *Document) GetMixLayer(keyhash *[32]byte) (uint8, error) {
	if _, err := d.GetGatewayByKeyHash(keyhash); err == nil {
		return LayerGateway, nil
	}
	if _, err := d.GetServiceNodeByKeyHash(keyhash); err == nil {
		return LayerService, nil
	}
	for n, l := range d.Topology {
		if _, err := findByKeyHash(l, keyhash); err == nil {
			return uint8(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %x", ErrNodeNotFound, keyhash[:])
}

// GetNode returns the specific descriptor corresponding to the specified
// node Name.
func (d *Document) GetNode(name string) (*MixDescriptor, error) {
	if m, err := d.GetMix(name); err == nil {
		return m, nil
	}
	if m, err := d.GetGateway(name); err == nil {
		return m, nil
	}
	if m, err := findByName(d.ServiceNodes, name); err == nil {
		return m, nil
	}
	return nil, fmt.Errorf("%w: '%v'", ErrNodeNotFound, name)
}

// GetNodeByKeyHash returns the specific descriptor corresponding to the
// specified IdentityKey hash.
func (d *Document) GetNodeByKeyHash(keyhash *[32]byte) (*MixDescriptor, error) {
	if m, err := d.GetMixByKeyHash(keyhash); err == nil {
		return m, nil
	}
	if m, err := d.GetGatewayByKeyHash(keyhash); err == nil {
		return m, nil
	}
	if m, err := d.GetServiceNodeByKeyHash(keyhash); err == nil {
		return m, nil
	}
	return nil, ErrNodeNotFound
}

// Validate returns a descriptive error iff the document cannot be used for
// route selection.
func (d *Document) Validate() error {
	if d.Version != DocumentVersion {
		return fmt.Errorf("%w: version '%v'", ErrInvalidDocument, d.Version)
	}
	if len(d.Topology) == 0 {
		return fmt.Errorf("%w: no topology", ErrInvalidDocument)
	}
	pks := make(map[[hash.HashSize]byte]bool)
	check := func(desc *MixDescriptor) error {
		if err := IsDescriptorWellFormed(desc, d.Epoch); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		pk := desc.IdentityKeyHash()
		if pks[pk] {
			return fmt.Errorf("%w: multiple entries for %x", ErrInvalidDocument, pk[:])
		}
		pks[pk] = true
		return nil
	}
	for layer, nodes := range d.Topology {
		if len(nodes) == 0 {
			return fmt.Errorf("%w: layer %d contains no nodes", ErrInvalidDocument, layer)
		}
		for _, desc := range nodes {
			if desc.IsGatewayNode || desc.IsServiceNode {
				return fmt.Errorf("%w: %v listed as a mix", ErrInvalidDocument, desc.Name)
			}
			if err := check(desc); err != nil {
				return err
			}
		}
	}
	if len(d.GatewayNodes) == 0 {
		return fmt.Errorf("%w: no gateway nodes", ErrInvalidDocument)
	}
	for _, desc := range d.GatewayNodes {
		if !desc.IsGatewayNode {
			return fmt.Errorf("%w: %v listed as a gateway with IsGatewayNode = false", ErrInvalidDocument, desc.Name)
		}
		if err := check(desc); err != nil {
			return err
		}
	}
	for _, desc := range d.ServiceNodes {
		if !desc.IsServiceNode {
			return fmt.Errorf("%w: %v listed as a service node with IsServiceNode = false", ErrInvalidDocument, desc.Name)
		}
		if err := check(desc); err != nil {
			return err
		}
	}
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler interface.
func (d *Document) MarshalBinary() ([]byte, error) {
	if d.Version == "" {
		d.Version = DocumentVersion
	}
	return ccbor.Marshal((*document)(d))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler interface.
func (d *Document) UnmarshalBinary(data []byte) error {
	return cbor.Unmarshal(data, (*document)(d))
}

// Sum256 returns the BLAKE2b-256 digest of the serialized document.
func (d *Document) Sum256() [32]byte {
	b, err := d.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return blake2b.Sum256(b)
}

// ParseDocument deserializes and validates the document.
func ParseDocument(b []byte) (*Document, error) {
	d := new(Document)
	if err := d.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadDocument reads and parses a CBOR document from a file.
func LoadDocument(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDocument(b)
}

func init() {
	var err error
	opts := cbor.CanonicalEncOptions()
	ccbor, err = opts.EncMode()
	if err != nil {
		panic(err)
	}
}
