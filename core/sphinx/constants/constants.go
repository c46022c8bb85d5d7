// constants.go - Sphinx Packet Format constants.
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

// Package constants contains the Sphinx Packet Format constants for the
// cover traffic parameterization.
package constants

const (
	// NodeIDLength is the node identifier length in bytes.
	NodeIDLength = 32

	// RecipientIDLength is the recipient identifier length in bytes.  It
	// matches the length of a client identity key digest.
	RecipientIDLength = 32

	// SURBIDLength is the SURB identifier length in bytes.
	SURBIDLength = 16

	// DefaultNrMixHops is the number of mix layers a client packet
	// traverses before reaching its gateway.
	DefaultNrMixHops = 3

	// DefaultNrHops is the header capacity used by the packet size presets:
	// the mix hops plus the terminal gateway.
	DefaultNrHops = DefaultNrMixHops + 1
)
