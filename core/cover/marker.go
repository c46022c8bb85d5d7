// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package cover

import (
	"bytes"
	"fmt"
)

const (
	// LoopMarker prefixes the plaintext of every loop cover packet.
	LoopMarker = "The cake is a lie!"

	// DropMarker prefixes the plaintext of every drop cover packet.
	DropMarker = "Follow the white rabbit!"

	// contentTerminator ends the meaningful part of a padded payload.
	contentTerminator = 0x01
)

// Kind is the kind of a cover packet.
type Kind int

const (
	// Loop cover returns to its sender and carries a SURB-ack.
	Loop Kind = iota

	// Drop cover is discarded by the sender's gateway.
	Drop
)

func (k Kind) String() string {
	switch k {
	case Loop:
		return "loop"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("invalid(%d)", int(k))
	}
}

// Marker returns the plaintext prefix of the kind.
func (k Kind) Marker() string {
	switch k {
	case Loop:
		return LoopMarker
	case Drop:
		return DropMarker
	default:
		panic(fmt.Sprintf("cover: BUG: invalid kind %d", int(k)))
	}
}

// IsCover reports whether decrypted content starts with a cover marker.
func IsCover(data []byte) bool {
	_, ok := KindOf(data)
	return ok
}

// KindOf returns the kind of cover data is, if any.
func KindOf(data []byte) (Kind, bool) {
	switch {
	case bytes.HasPrefix(data, []byte(LoopMarker)):
		return Loop, true
	case bytes.HasPrefix(data, []byte(DropMarker)):
		return Drop, true
	default:
		return 0, false
	}
}

// markedContent returns marker || 0x01 || zeros cut to exactly n bytes.
func markedContent(marker string, n int) []byte {
	b := make([]byte, n)
	copy(b, marker)
	if len(marker) < n {
		b[len(marker)] = contentTerminator
	}
	return b
}
