// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package sphinx

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/katzenpost/hpqc/nike"

	"github.com/katzenpost/cover/core/sphinx/commands"
	"github.com/katzenpost/cover/core/sphinx/constants"
)

// ErrDelayMismatch is returned when the delay vector does not have one entry
// per route hop.
var ErrDelayMismatch = errors.New("sphinx: delay count does not match route length")

// Node is a routable hop: its identifier, transport address and mix key.
type Node struct {
	ID        [constants.NodeIDLength]byte
	Address   string
	PublicKey nike.PublicKey
}

// Destination is the final recipient of a packet, carried in the terminal
// hop's routing commands.
type Destination struct {
	ID [constants.RecipientIDLength]byte

	// SURBID, if set, marks the packet as a reply and is surfaced to the
	// terminal hop as a surb_reply command.
	SURBID *[constants.SURBIDLength]byte
}

// DelayToCommand converts a per-hop delay into a NodeDelay command,
// saturating at the largest representable value.
func DelayToCommand(d time.Duration) *commands.NodeDelay {
	ms := d.Milliseconds()
	switch {
	case ms < 0:
		ms = 0
	case ms > math.MaxUint32:
		ms = math.MaxUint32
	}
	return &commands.NodeDelay{Delay: uint32(ms)}
}

// Path converts a route, destination and delay vector into the per-hop
// command vector used for header construction.  Every hop is told how long
// to hold the packet, and the terminal hop additionally learns the
// recipient.
func Path(route []*Node, dest *Destination, delays []time.Duration) ([]*PathHop, error) {
	if len(route) == 0 {
		return nil, ErrInvalidPath
	}
	if len(delays) != len(route) {
		return nil, fmt.Errorf("%w: %d delays for %d hops", ErrDelayMismatch, len(delays), len(route))
	}
	if dest == nil {
		return nil, errors.New("sphinx: nil destination")
	}

	path := make([]*PathHop, len(route))
	for i, n := range route {
		if n == nil || n.PublicKey == nil {
			return nil, fmt.Errorf("%w: hop %d has no key", ErrInvalidPath, i)
		}
		h := &PathHop{
			ID:            n.ID,
			NIKEPublicKey: n.PublicKey,
		}
		h.Commands = append(h.Commands, DelayToCommand(delays[i]))
		if i == len(route)-1 {
			h.Commands = append(h.Commands, &commands.Recipient{ID: dest.ID})
			if dest.SURBID != nil {
				h.Commands = append(h.Commands, &commands.SURBReply{ID: *dest.SURBID})
			}
		}
		path[i] = h
	}
	return path, nil
}

// BuildPacket creates a forward Sphinx packet that traverses route and is
// delivered to dest.  The payload must be exactly ForwardPayloadLength
// bytes.
func (s *Sphinx) BuildPacket(r io.Reader, payload []byte, route []*Node, dest *Destination, delays []time.Duration) ([]byte, error) {
	path, err := Path(route, dest, delays)
	if err != nil {
		return nil, err
	}
	return s.NewPacket(r, path, payload)
}
