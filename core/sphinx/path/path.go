// path.go - Path selection routines.
// Copyright (C) 2017, 2018  Yawning Angel.
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

// Package path provides routines for path selection.
package path

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/katzenpost/hpqc/nike"

	"github.com/katzenpost/cover/core/crypto/rand"
	"github.com/katzenpost/cover/core/pki"
	"github.com/katzenpost/cover/core/sphinx"
	"github.com/katzenpost/cover/core/sphinx/constants"
)

var (
	// ErrInvalidTopology is returned when the document cannot produce a
	// route at all: a missing layer, an empty layer or an unusable gateway.
	ErrInvalidTopology = errors.New("path: invalid topology")

	// ErrNoEligibleNodes is returned when a layer has nodes but none of
	// them may currently be used.
	ErrNoEligibleNodes = errors.New("path: no eligible nodes")
)

// Selector picks routes through the layered topology of a pki.Document.
// It holds no mutable state and is safe for concurrent use.
type Selector struct {
	scheme nike.Scheme

	// RelaxCoverEligibility lets routes chosen for cover traffic include
	// standby nodes.  Real traffic never uses them.
	RelaxCoverEligibility bool
}

// NewSelector returns a Selector that parses mix keys with scheme.
func NewSelector(scheme nike.Scheme) *Selector {
	return &Selector{scheme: scheme}
}

// IsEligible returns the parsed mix key of desc for epoch iff desc may be
// used as a hop.
func (s *Selector) IsEligible(desc *pki.MixDescriptor, epoch uint64, forCover bool) (nike.PublicKey, bool) {
	if desc == nil || desc.IdentityKey == nil {
		return nil, false
	}
	if desc.Standby && !(forCover && s.RelaxCoverEligibility) {
		return nil, false
	}
	pub, err := desc.UnmarshalMixKey(epoch, s.scheme)
	if err != nil {
		return nil, false
	}
	return pub, true
}

func toNode(desc *pki.MixDescriptor, pub nike.PublicKey) *sphinx.Node {
	n := &sphinx.Node{
		ID:        desc.IdentityKeyHash(),
		PublicKey: pub,
	}
	// A missing address is surfaced when the first hop is dialled.
	n.Address, _ = desc.Address()
	return n
}

// RandomRouteToGateway selects one random eligible node from each of the
// first nrMixHops layers, followed by the gateway whose identity key hash
// is gateway.  The returned route has nrMixHops+1 entries.
func (s *Selector) RandomRouteToGateway(rng io.Reader, doc *pki.Document, nrMixHops int, gateway *[constants.NodeIDLength]byte, forCover bool) ([]*sphinx.Node, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: no document", ErrInvalidTopology)
	}
	if nrMixHops < 1 || nrMixHops > len(doc.Topology) {
		return nil, fmt.Errorf("%w: %d mix hops requested, topology has %d layers", ErrInvalidTopology, nrMixHops, len(doc.Topology))
	}
	mRng := rand.NewMathFromReader(rng)

	route := make([]*sphinx.Node, 0, nrMixHops+1)
	for layer, nodes := range doc.Topology[:nrMixHops] {
		if len(nodes) == 0 {
			return nil, fmt.Errorf("%w: layer %d has no nodes", ErrInvalidTopology, layer)
		}
		var eligible []*sphinx.Node
		for _, desc := range nodes {
			if pub, ok := s.IsEligible(desc, doc.Epoch, forCover); ok {
				eligible = append(eligible, toNode(desc, pub))
			}
		}
		if len(eligible) == 0 {
			return nil, fmt.Errorf("%w: layer %d", ErrNoEligibleNodes, layer)
		}
		route = append(route, eligible[mRng.Intn(len(eligible))])
	}

	gw, err := doc.GetGatewayByKeyHash(gateway)
	if err != nil {
		return nil, fmt.Errorf("%w: gateway %x: %v", ErrInvalidTopology, gateway[:], err)
	}
	pub, err := gw.UnmarshalMixKey(doc.Epoch, s.scheme)
	if err != nil {
		return nil, fmt.Errorf("%w: gateway %s: %v", ErrInvalidTopology, gw.Name, err)
	}
	return append(route, toNode(gw, pub)), nil
}

// ToString returns a slice of strings representing the "useful" component of
// each hop, suitable for debugging.
func ToString(doc *pki.Document, route []*sphinx.Node, delays []time.Duration) ([]string, error) {
	s := make([]string, 0, len(route))
	for idx, v := range route {
		desc, err := doc.GetNodeByKeyHash(&v.ID)
		if err != nil {
			return nil, err
		}
		var delay time.Duration
		if idx < len(delays) {
			delay = delays[idx]
		}
		s = append(s, fmt.Sprintf("Hop[%v] '%v' %v - %v", idx, desc.Name, v.Address, delay))
	}
	return s, nil
}
