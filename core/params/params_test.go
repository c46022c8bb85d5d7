// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package params

import (
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/katzenpost/hpqc/nike/x25519"
	"github.com/katzenpost/hpqc/rand"
	"github.com/stretchr/testify/require"
)

func TestPresets(t *testing.T) {
	require := require.New(t)
	scheme := x25519.Scheme(rand.Reader)

	require.Equal(2048, RegularPacket.PlaintextSize())
	require.Equal(21, AckPacket.PlaintextSize())
	require.Equal(32768, ExtendedPacket.PlaintextSize())

	require.Equal(2048+32, RegularPacket.PayloadSize(scheme))
	require.Equal(2394, RegularPacket.PacketLength(scheme))
	require.Equal(314+32+21, AckPacket.PacketLength(scheme))

	for _, p := range []PacketSize{RegularPacket, AckPacket, ExtendedPacket} {
		g := p.Geometry(scheme)
		require.NoError(g.Validate())
		require.Equal(p.PlaintextSize(), g.ForwardPayloadLength)
	}
	require.Panics(func() { PacketSize(42).PlaintextSize() })
}

func TestPacketSizeFromString(t *testing.T) {
	require := require.New(t)

	for _, p := range []PacketSize{RegularPacket, AckPacket, ExtendedPacket} {
		got, err := PacketSizeFromString(p.String())
		require.NoError(err)
		require.Equal(p, got)
	}
	got, err := PacketSizeFromString(" Extended ")
	require.NoError(err)
	require.Equal(ExtendedPacket, got)
	got, err = PacketSizeFromString("")
	require.NoError(err)
	require.Equal(DefaultPacketSize, got)

	_, err = PacketSizeFromString("jumbo")
	require.ErrorIs(err, ErrUnknownPacketSize)
	require.Equal("invalid(9)", PacketSize(9).String())
}

func TestPacketSizeTOML(t *testing.T) {
	require := require.New(t)

	var cfg struct {
		PacketSize PacketSize
	}
	_, err := toml.Decode(`PacketSize = "ack"`, &cfg)
	require.NoError(err)
	require.Equal(AckPacket, cfg.PacketSize)

	_, err = toml.Decode(`PacketSize = "huge"`, &cfg)
	require.Error(err)
}
