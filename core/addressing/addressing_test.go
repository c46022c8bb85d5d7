// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package addressing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/hpqc/nike/x25519"
	"github.com/katzenpost/hpqc/rand"
)

func TestNodeAddress(t *testing.T) {
	require := require.New(t)

	for _, s := range []string{"192.0.2.1:4242", "[2001:db8::1]:8901", "127.0.0.1:1"} {
		a, err := NodeAddressFromString(s)
		require.NoError(err, s)
		require.Equal(s, a.String())

		b := a.Bytes()
		require.Len(b, NodeAddressLength)
		aa, err := NodeAddressFromBytes(b)
		require.NoError(err)
		require.Equal(a.AddrPort(), aa.AddrPort())
	}

	a, err := NodeAddressFromString("[::ffff:192.0.2.1]:4242")
	require.NoError(err)
	require.Equal("192.0.2.1:4242", a.String())
	require.Equal(addrTypeV4, a.Bytes()[0])
}

func TestNodeAddressRejects(t *testing.T) {
	require := require.New(t)

	for _, s := range []string{"", "example.com:4242", "192.0.2.1", "192.0.2.1:0", "192.0.2.1:70000", "[fe80::1%eth0]:80"} {
		_, err := NodeAddressFromString(s)
		require.ErrorIs(err, ErrInvalidNodeAddress, s)
	}

	_, err := NodeAddressFromBytes(make([]byte, NodeAddressLength-1))
	require.ErrorIs(err, ErrInvalidNodeAddress)

	a, err := NodeAddressFromString("192.0.2.1:4242")
	require.NoError(err)
	b := a.Bytes()
	b[0] = 9
	_, err = NodeAddressFromBytes(b)
	require.ErrorIs(err, ErrInvalidNodeAddress)

	b = a.Bytes()
	b[17], b[18] = 0, 0
	_, err = NodeAddressFromBytes(b)
	require.ErrorIs(err, ErrInvalidNodeAddress)
}

func newRecipient(require *require.Assertions) *Recipient {
	scheme := x25519.Scheme(rand.Reader)
	pub, _, err := scheme.GenerateKeyPair()
	require.NoError(err)
	r := &Recipient{EncryptionKey: pub}
	_, err = rand.Reader.Read(r.ClientIdentity[:])
	require.NoError(err)
	_, err = rand.Reader.Read(r.Gateway[:])
	require.NoError(err)
	return r
}

func TestRecipient(t *testing.T) {
	require := require.New(t)
	scheme := x25519.Scheme(rand.Reader)
	r := newRecipient(require)

	b, err := r.MarshalBinary()
	require.NoError(err)
	rr, err := RecipientFromBytes(b, scheme)
	require.NoError(err)
	require.Equal(r.ClientIdentity, rr.ClientIdentity)
	require.Equal(r.Gateway, rr.Gateway)
	require.Equal(r.EncryptionKey.Bytes(), rr.EncryptionKey.Bytes())

	rr, err = RecipientFromString(r.String(), scheme)
	require.NoError(err)
	require.Equal(r.String(), rr.String())

	dest := r.SphinxDestination()
	require.Equal(r.ClientIdentity, dest.ID)
	require.Nil(dest.SURBID)

	gw := r.GatewayID()
	require.Equal(r.Gateway, *gw)
	gw[0] ^= 0xff
	require.NotEqual(r.Gateway, *gw)
}

func TestRecipientRejects(t *testing.T) {
	require := require.New(t)
	scheme := x25519.Scheme(rand.Reader)
	r := newRecipient(require)
	s := r.String()

	for _, bad := range []string{
		"",
		strings.Replace(s, "@", "#", 1),
		strings.Replace(s, ".", "", 1),
		"zz" + s[2:],
		s[:len(s)-2],
	} {
		_, err := RecipientFromString(bad, scheme)
		require.ErrorIs(err, ErrInvalidRecipient, bad)
	}

	_, err := RecipientFromBytes([]byte{1, 2, 3}, scheme)
	require.ErrorIs(err, ErrInvalidRecipient)

	_, err = (&Recipient{}).MarshalBinary()
	require.ErrorIs(err, ErrInvalidRecipient)
}
