// sphinx_test.go - Sphinx Packet Format tests.
// Copyright (C) 2017  Yawning Angel.
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

package sphinx

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/katzenpost/hpqc/nike"
	"github.com/katzenpost/hpqc/nike/x25519"
	"github.com/katzenpost/hpqc/nike/x448"
	"github.com/stretchr/testify/require"

	"github.com/katzenpost/cover/core/sphinx/commands"
	"github.com/katzenpost/cover/core/sphinx/constants"
	"github.com/katzenpost/cover/core/sphinx/geo"
)

type nodeParams struct {
	id         [constants.NodeIDLength]byte
	privateKey nike.PrivateKey
	publicKey  nike.PublicKey
}

func newNode(require *require.Assertions, scheme nike.Scheme) *nodeParams {
	n := new(nodeParams)

	_, err := rand.Read(n.id[:])
	require.NoError(err, "newNode(): failed to generate ID")
	n.publicKey, n.privateKey, err = scheme.GenerateKeyPair()
	require.NoError(err, "newNode(): GenerateKeyPair() failed")
	return n
}

func newPathVector(require *require.Assertions, scheme nike.Scheme, nrHops int) ([]*nodeParams, []*PathHop) {
	const delayBase = 0xdeadbabe

	// Generate the keypairs and node identifiers for the "nodes".
	nodes := make([]*nodeParams, nrHops)
	for i := range nodes {
		nodes[i] = newNode(require, scheme)
	}

	// Assemble the path vector.
	path := make([]*PathHop, nrHops)
	for i := range path {
		path[i] = new(PathHop)
		copy(path[i].ID[:], nodes[i].id[:])
		path[i].NIKEPublicKey = nodes[i].publicKey
		if i < nrHops-1 {
			// Non-terminal hop, add the delay.
			delay := new(commands.NodeDelay)
			delay.Delay = delayBase * uint32(i+1)
			path[i].Commands = append(path[i].Commands, delay)
		} else {
			// Terminal hop, add the recipient.
			recipient := new(commands.Recipient)
			_, err := rand.Read(recipient.ID[:])
			require.NoError(err, "failed to generate recipient")
			path[i].Commands = append(path[i].Commands, recipient)
		}
	}

	return nodes, path
}

func newTestSphinx(scheme nike.Scheme, payloadLen int) *Sphinx {
	g := geo.GeometryFromForwardPayloadLength(scheme, payloadLen, constants.DefaultNrHops)
	return NewSphinx(scheme, g)
}

func testForwardSphinx(t *testing.T, scheme nike.Scheme) {
	const testPayload = "It is the stillest words that bring on the storm.  Thoughts that come on doves’ feet guide the world."

	require := require.New(t)
	s := newTestSphinx(scheme, len(testPayload))

	for nrHops := 1; nrHops <= constants.DefaultNrHops; nrHops++ {
		t.Logf("Testing %d hop(s).", nrHops)

		// Generate the "nodes" and path for the forward sphinx packet.
		nodes, path := newPathVector(require, scheme, nrHops)

		// Create the packet.
		payload := []byte(testPayload)
		pkt, err := s.NewPacket(rand.Reader, path, payload)
		require.NoError(err, "NewPacket failed")
		require.Len(pkt, s.Geometry().PacketLength, "Packet Length")

		// Unwrap the packet, validating the output.
		for i := range nodes {
			// There's no sensible way to validate that `tag` is correct.
			b, _, cmds, err := s.Unwrap(nodes[i].privateKey, pkt)
			require.NoErrorf(err, "Hop %d: Unwrap failed", i)

			if i == len(path)-1 {
				require.Equalf(1, len(cmds), "Hop %d: Unexpected number of commands", i)
				require.EqualValuesf(path[i].Commands[0], cmds[0], "Hop %d: recipient mismatch", i)

				require.Equalf(b, payload, "Hop %d: payload mismatch", i)
			} else {
				require.Equalf(2, len(cmds), "Hop %d: Unexpected number of commands", i)
				require.EqualValuesf(path[i].Commands[0], cmds[0], "Hop %d: delay mismatch", i)

				nextNode, ok := cmds[1].(*commands.NextNodeHop)
				require.Truef(ok, "Hop %d: cmds[1] is not a NextNodeHop", i)
				require.Equalf(path[i+1].ID, nextNode.ID, "Hop %d: NextNodeHop.ID mismatch", i)

				require.Nil(b, "Hop %d: returned payload", i)
			}
		}
	}
}

func TestForwardSphinxX25519(t *testing.T) {
	testForwardSphinx(t, x25519.Scheme(rand.Reader))
}

func TestForwardSphinxX448(t *testing.T) {
	testForwardSphinx(t, x448.Scheme(rand.Reader))
}

func TestBuildPacket(t *testing.T) {
	require := require.New(t)
	scheme := x25519.Scheme(rand.Reader)
	s := newTestSphinx(scheme, 512)

	nodes := make([]*nodeParams, constants.DefaultNrHops)
	route := make([]*Node, len(nodes))
	delays := make([]time.Duration, len(nodes))
	for i := range nodes {
		nodes[i] = newNode(require, scheme)
		route[i] = &Node{ID: nodes[i].id, PublicKey: nodes[i].publicKey}
		delays[i] = time.Duration(i+1) * 1500 * time.Microsecond
	}
	surbID := [constants.SURBIDLength]byte{1, 2, 3}
	dest := &Destination{SURBID: &surbID}
	_, err := rand.Read(dest.ID[:])
	require.NoError(err)

	payload := make([]byte, s.Geometry().ForwardPayloadLength)
	payload[0] = 0x42
	pkt, err := s.BuildPacket(rand.Reader, payload, route, dest, delays)
	require.NoError(err)
	require.Len(pkt, s.Geometry().PacketLength)

	for i := range nodes {
		b, _, cmds, err := s.Unwrap(nodes[i].privateKey, pkt)
		require.NoError(err)
		delay, ok := cmds[0].(*commands.NodeDelay)
		require.True(ok)
		require.Equal(uint32(delays[i].Milliseconds()), delay.Delay)
		if i < len(nodes)-1 {
			require.Nil(b)
			continue
		}
		require.Len(cmds, 3)
		require.Equal(&commands.Recipient{ID: dest.ID}, cmds[1])
		require.Equal(&commands.SURBReply{ID: surbID}, cmds[2])
		// SURB replies keep their tag for the recipient to authenticate.
		require.Equal(s.Geometry().PayloadTagLength+len(payload), len(b))
		require.Equal(payload, b[s.Geometry().PayloadTagLength:])
	}
}

func TestBuildPacketRejects(t *testing.T) {
	require := require.New(t)
	scheme := x25519.Scheme(rand.Reader)
	s := newTestSphinx(scheme, 64)
	n := newNode(require, scheme)
	route := []*Node{{ID: n.id, PublicKey: n.publicKey}}
	dest := new(Destination)

	_, err := s.BuildPacket(rand.Reader, make([]byte, 64), route, dest, nil)
	require.ErrorIs(err, ErrDelayMismatch)

	_, err = s.BuildPacket(rand.Reader, make([]byte, 63), route, dest, []time.Duration{0})
	require.ErrorIs(err, ErrInvalidPayload)

	_, err = s.BuildPacket(rand.Reader, make([]byte, 64), nil, dest, nil)
	require.ErrorIs(err, ErrInvalidPath)

	long := make([]*Node, constants.DefaultNrHops+1)
	for i := range long {
		long[i] = route[0]
	}
	_, err = s.BuildPacket(rand.Reader, make([]byte, 64), long, dest, make([]time.Duration, len(long)))
	require.ErrorIs(err, ErrInvalidPath)
}

func TestUnwrapRejectsTamperedHeader(t *testing.T) {
	require := require.New(t)
	scheme := x25519.Scheme(rand.Reader)
	s := newTestSphinx(scheme, 64)
	nodes, path := newPathVector(require, scheme, 2)

	pkt, err := s.NewPacket(rand.Reader, path, make([]byte, 64))
	require.NoError(err)
	pkt[s.Geometry().HeaderLength-1] ^= 0x01
	_, tag, _, err := s.Unwrap(nodes[0].privateKey, pkt)
	require.Error(err)
	require.NotNil(tag)
}

func TestDelayToCommand(t *testing.T) {
	require := require.New(t)
	require.Equal(uint32(0), DelayToCommand(-time.Second).Delay)
	require.Equal(uint32(1234), DelayToCommand(1234*time.Millisecond).Delay)
	require.Equal(uint32(0xffffffff), DelayToCommand(1<<62).Delay)
}
