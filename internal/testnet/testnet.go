// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package testnet builds synthetic mix networks whose private keys are
// known, so packets can be unwrapped hop by hop in tests and demos.
package testnet

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/katzenpost/hpqc/hash"
	"github.com/katzenpost/hpqc/nike"
	nikepem "github.com/katzenpost/hpqc/nike/pem"

	"github.com/katzenpost/cover/core/ack"
	"github.com/katzenpost/cover/core/addressing"
	"github.com/katzenpost/cover/core/epochtime"
	"github.com/katzenpost/cover/core/mixpacket"
	"github.com/katzenpost/cover/core/params"
	"github.com/katzenpost/cover/core/pki"
	"github.com/katzenpost/cover/core/sphinx"
	"github.com/katzenpost/cover/core/sphinx/commands"
	"github.com/katzenpost/cover/core/sphinx/constants"
)

const basePort = 30000

// Node is a descriptor together with its Sphinx private key.
type Node struct {
	Descriptor *pki.MixDescriptor
	PrivateKey nike.PrivateKey
}

// ID returns the node's Sphinx identifier.
func (n *Node) ID() [constants.NodeIDLength]byte {
	return n.Descriptor.IdentityKeyHash()
}

// Network is a layered topology with every private key retained.
type Network struct {
	Scheme   nike.Scheme
	Document *pki.Document
	Mixes    [][]*Node
	Gateways []*Node

	nodes map[[constants.NodeIDLength]byte]*Node
}

// New generates a network of layers mix layers with perLayer nodes each,
// plus gateways gateway nodes, keyed for the current epoch.
func New(rng io.Reader, scheme nike.Scheme, layers, perLayer, gateways int) (*Network, error) {
	if layers < 1 || perLayer < 1 || gateways < 1 {
		return nil, errors.New("testnet: every tier needs at least one node")
	}
	epoch, _, _ := epochtime.Now()
	n := &Network{
		Scheme: scheme,
		Document: &pki.Document{
			Epoch:    epoch,
			Topology: make([][]*pki.MixDescriptor, layers),
			Version:  pki.DocumentVersion,
		},
		Mixes: make([][]*Node, layers),
		nodes: make(map[[constants.NodeIDLength]byte]*Node),
	}

	idx := 0
	newNode := func(name string, gateway bool) (*Node, error) {
		idx++
		identity := make([]byte, 32)
		if _, err := io.ReadFull(rng, identity); err != nil {
			return nil, err
		}
		pub, priv, err := scheme.GenerateKeyPairFromEntropy(rng)
		if err != nil {
			return nil, err
		}
		node := &Node{
			Descriptor: &pki.MixDescriptor{
				Name:          name,
				Epoch:         epoch,
				IdentityKey:   identity,
				MixKeys:       map[uint64][]byte{epoch: pub.Bytes()},
				Addresses:     map[string][]string{pki.TransportTCPv4: {fmt.Sprintf("127.0.0.1:%d", basePort+idx)}},
				IsGatewayNode: gateway,
				Version:       pki.DescriptorVersion,
			},
			PrivateKey: priv,
		}
		n.nodes[node.ID()] = node
		return node, nil
	}

	for l := 0; l < layers; l++ {
		for i := 0; i < perLayer; i++ {
			node, err := newNode(fmt.Sprintf("mix-%d-%d", l, i), false)
			if err != nil {
				return nil, err
			}
			n.Mixes[l] = append(n.Mixes[l], node)
			n.Document.Topology[l] = append(n.Document.Topology[l], node.Descriptor)
		}
	}
	for i := 0; i < gateways; i++ {
		node, err := newNode(fmt.Sprintf("gateway-%d", i), true)
		if err != nil {
			return nil, err
		}
		n.Gateways = append(n.Gateways, node)
		n.Document.GatewayNodes = append(n.Document.GatewayNodes, node.Descriptor)
	}
	return n, nil
}

// Node returns the node with Sphinx identifier id.
func (n *Network) Node(id *[constants.NodeIDLength]byte) (*Node, bool) {
	node, ok := n.nodes[*id]
	return node, ok
}

// NodeByAddress returns the node advertising addr.
func (n *Network) NodeByAddress(addr string) (*Node, bool) {
	for _, node := range n.nodes {
		if a, err := node.Descriptor.Address(); err == nil && a == addr {
			return node, true
		}
	}
	return nil, false
}

// Client is a synthetic client attached to a gateway.
type Client struct {
	Recipient  *addressing.Recipient
	PrivateKey nike.PrivateKey
}

// NewClient creates a client attached to the gateway at index gateway.
func (n *Network) NewClient(rng io.Reader, gateway int) (*Client, error) {
	if gateway < 0 || gateway >= len(n.Gateways) {
		return nil, fmt.Errorf("testnet: no gateway %d", gateway)
	}
	pub, priv, err := n.Scheme.GenerateKeyPairFromEntropy(rng)
	if err != nil {
		return nil, err
	}
	r := &addressing.Recipient{
		EncryptionKey: pub,
		Gateway:       n.Gateways[gateway].ID(),
	}
	identity := hash.Sum256(pub.Bytes())
	copy(r.ClientIdentity[:], identity[:])
	return &Client{Recipient: r, PrivateKey: priv}, nil
}

// Hop records what one node saw while unwrapping a packet.
type Hop struct {
	Node     *Node
	Commands []commands.RoutingCommand
}

// Unwrap processes pkt through the network starting at first, following
// NextNodeHop commands, and returns the terminal payload and every hop.
// pkt is modified in place.
func (n *Network) Unwrap(s *sphinx.Sphinx, first [constants.NodeIDLength]byte, pkt []byte) ([]byte, []*Hop, error) {
	var hops []*Hop
	next := first
	for i := 0; i < s.Geometry().NrHops; i++ {
		node, ok := n.Node(&next)
		if !ok {
			return nil, hops, fmt.Errorf("testnet: unknown hop %x", next[:])
		}
		payload, _, cmds, err := s.Unwrap(node.PrivateKey, pkt)
		if err != nil {
			return nil, hops, fmt.Errorf("testnet: %s: %w", node.Descriptor.Name, err)
		}
		hops = append(hops, &Hop{Node: node, Commands: cmds})

		var forward *commands.NextNodeHop
		for _, c := range cmds {
			if nh, ok := c.(*commands.NextNodeHop); ok {
				forward = nh
			}
		}
		if forward == nil {
			return payload, hops, nil
		}
		next = forward.ID
	}
	return nil, hops, errors.New("testnet: packet did not terminate")
}

// Deliver unwraps a copy of mp starting at the node that owns its next hop
// address.
func (n *Network) Deliver(s *sphinx.Sphinx, mp *mixpacket.MixPacket) ([]byte, []*Hop, error) {
	if mp.NextHop == nil {
		return nil, nil, errors.New("testnet: packet has no next hop")
	}
	first, ok := n.NodeByAddress(mp.NextHop.String())
	if !ok {
		return nil, nil, fmt.Errorf("testnet: no node at %v", mp.NextHop)
	}
	pkt := make([]byte, len(mp.Packet))
	copy(pkt, mp.Packet)
	return n.Unwrap(s, first.ID(), pkt)
}

// ReturnAck delivers the SURB-ack embedded at the front of a loop cover
// payload, the way the terminal gateway would, and returns what arrives
// back at the client.
func (n *Network) ReturnAck(payload []byte) ([]byte, []*Hop, error) {
	blobLen := ack.BlobLength(n.Scheme)
	if len(payload) < blobLen {
		return nil, nil, fmt.Errorf("testnet: payload too short for an ack: %d bytes", len(payload))
	}
	hop, err := addressing.NodeAddressFromBytes(payload[:addressing.NodeAddressLength])
	if err != nil {
		return nil, nil, err
	}
	pkt := make([]byte, blobLen-addressing.NodeAddressLength)
	copy(pkt, payload[addressing.NodeAddressLength:blobLen])
	s := sphinx.NewSphinx(n.Scheme, params.AckPacket.Geometry(n.Scheme))
	return n.Deliver(s, mixpacket.New(hop, pkt, mixpacket.ModeMix))
}

func keyFile(dir string, desc *pki.MixDescriptor) string {
	return filepath.Join(dir, desc.Name+".nike.private.pem")
}

// StoreKeys writes every node's private key to dir.
func (n *Network) StoreKeys(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	for _, node := range n.nodes {
		if err := nikepem.PrivateKeyToFile(keyFile(dir, node.Descriptor), node.PrivateKey, n.Scheme); err != nil {
			return err
		}
	}
	return nil
}

// Load rebuilds a Network from doc and the keys StoreKeys wrote to dir.
func Load(scheme nike.Scheme, doc *pki.Document, dir string) (*Network, error) {
	n := &Network{
		Scheme:   scheme,
		Document: doc,
		Mixes:    make([][]*Node, len(doc.Topology)),
		nodes:    make(map[[constants.NodeIDLength]byte]*Node),
	}
	load := func(desc *pki.MixDescriptor) (*Node, error) {
		priv, err := nikepem.FromPrivatePEMFile(keyFile(dir, desc), scheme)
		if err != nil {
			return nil, fmt.Errorf("testnet: %v: %w", desc.Name, err)
		}
		node := &Node{Descriptor: desc, PrivateKey: priv}
		n.nodes[node.ID()] = node
		return node, nil
	}
	for l, layer := range doc.Topology {
		for _, desc := range layer {
			node, err := load(desc)
			if err != nil {
				return nil, err
			}
			n.Mixes[l] = append(n.Mixes[l], node)
		}
	}
	for _, desc := range doc.GatewayNodes {
		node, err := load(desc)
		if err != nil {
			return nil, err
		}
		n.Gateways = append(n.Gateways, node)
	}
	return n, nil
}
