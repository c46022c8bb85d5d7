// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package ack_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/katzenpost/hpqc/nike/x25519"
	"github.com/katzenpost/hpqc/rand"
	"github.com/stretchr/testify/require"

	"github.com/katzenpost/cover/core/ack"
	"github.com/katzenpost/cover/core/addressing"
	"github.com/katzenpost/cover/core/chunking"
	crand "github.com/katzenpost/cover/core/crypto/rand"
	"github.com/katzenpost/cover/core/params"
	"github.com/katzenpost/cover/core/pki"
	"github.com/katzenpost/cover/core/sphinx"
	"github.com/katzenpost/cover/core/sphinx/commands"
	"github.com/katzenpost/cover/core/sphinx/constants"
	"github.com/katzenpost/cover/core/sphinx/path"
	"github.com/katzenpost/cover/internal/testnet"
)

func TestKey(t *testing.T) {
	require := require.New(t)

	k, err := ack.NewKey(rand.Reader)
	require.NoError(err)
	kk, err := ack.KeyFromBytes(k.Bytes())
	require.NoError(err)
	require.Equal(k.Bytes(), kk.Bytes())

	_, err = ack.KeyFromBytes([]byte{1})
	require.ErrorIs(err, ack.ErrInvalidKey)

	kk.Reset()
	require.Equal(make([]byte, 16), kk.Bytes())
}

func TestIdentifierRoundTrip(t *testing.T) {
	require := require.New(t)
	k, err := ack.NewKey(rand.Reader)
	require.NoError(err)

	for _, id := range []chunking.FragmentIdentifier{chunking.CoverFragmentID, {SetID: 12345, Position: 3}} {
		b, err := ack.PrepareIdentifier(rand.Reader, k, id)
		require.NoError(err)
		require.Len(b, ack.IdentifierLength)
		require.Equal(params.AckPacket.PlaintextSize(), len(b))

		got, err := ack.RecoverIdentifier(k, b)
		require.NoError(err)
		require.Equal(id, got)
	}

	_, err = ack.RecoverIdentifier(k, []byte{1, 2})
	require.Error(err)
}

func TestIdentifierIsRandomized(t *testing.T) {
	require := require.New(t)
	k, err := ack.NewKey(rand.Reader)
	require.NoError(err)
	a, err := ack.PrepareIdentifier(rand.Reader, k, chunking.CoverFragmentID)
	require.NoError(err)
	b, err := ack.PrepareIdentifier(rand.Reader, k, chunking.CoverFragmentID)
	require.NoError(err)
	require.NotEqual(a, b)
}

func TestConstruct(t *testing.T) {
	require := require.New(t)
	scheme := x25519.Scheme(rand.Reader)
	n, err := testnet.New(rand.Reader, scheme, 3, 2, 1)
	require.NoError(err)
	c, err := n.NewClient(rand.Reader, 0)
	require.NoError(err)
	k, err := ack.NewKey(rand.Reader)
	require.NoError(err)

	b := ack.NewBuilder(scheme, path.NewSelector(scheme))
	a, err := b.Construct(rand.Reader, n.Document, c.Recipient, k, chunking.CoverFragmentID, 10*time.Millisecond)
	require.NoError(err)

	blob, delay := a.PrepareForSending()
	require.Len(blob, ack.BlobLength(scheme))
	require.Equal(a.ExpectedDelay(), delay)
	require.GreaterOrEqual(delay, time.Duration(0))
	require.Equal(a.FirstHop().Bytes(), blob[:addressing.NodeAddressLength])
	require.Equal(a.Packet(), blob[addressing.NodeAddressLength:])

	// The ack travels back to the client's own gateway.
	var first [constants.NodeIDLength]byte
	for _, l := range n.Mixes[0] {
		addr, err := l.Descriptor.Address()
		require.NoError(err)
		if addr == a.FirstHop().String() {
			first = l.ID()
		}
	}
	payload, hops, err := n.Unwrap(b.Sphinx(), first, a.Packet())
	require.NoError(err)
	require.Len(hops, 4)
	require.Equal(n.Gateways[0], hops[3].Node)
	require.Contains(hops[3].Commands, commands.RoutingCommand(&commands.Recipient{ID: c.Recipient.ClientIdentity}))

	id, err := ack.RecoverIdentifier(k, payload)
	require.NoError(err)
	require.True(id.IsCover())
}

type failingSelector struct{}

var errNoRoute = errors.New("no route")

func (failingSelector) RandomRouteToGateway(io.Reader, *pki.Document, int, *[constants.NodeIDLength]byte, bool) ([]*sphinx.Node, error) {
	return nil, errNoRoute
}

func TestConstructPropagatesRouteErrors(t *testing.T) {
	require := require.New(t)
	scheme := x25519.Scheme(rand.Reader)
	k, err := ack.NewKey(rand.Reader)
	require.NoError(err)

	b := ack.NewBuilder(scheme, failingSelector{})
	self := &addressing.Recipient{}
	_, err = b.Construct(rand.Reader, &pki.Document{}, self, k, chunking.CoverFragmentID, 0)
	require.ErrorIs(err, errNoRoute)
}

// exhausted fails every read.
type exhausted struct{}

func (exhausted) Read([]byte) (int, error) {
	return 0, errNoRoute
}

func TestConstructEntropyFailure(t *testing.T) {
	require := require.New(t)
	scheme := x25519.Scheme(rand.Reader)
	n, err := testnet.New(rand.Reader, scheme, 3, 2, 1)
	require.NoError(err)
	c, err := n.NewClient(rand.Reader, 0)
	require.NoError(err)
	k, err := ack.NewKey(rand.Reader)
	require.NoError(err)

	b := ack.NewBuilder(scheme, path.NewSelector(scheme))
	require.NotPanics(func() {
		_, err = b.Construct(exhausted{}, n.Document, c.Recipient, k, chunking.CoverFragmentID, time.Millisecond)
	})
	require.ErrorIs(err, crand.ErrEntropy)
	require.ErrorIs(err, errNoRoute)
}
