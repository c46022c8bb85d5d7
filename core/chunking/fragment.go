// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package chunking identifies the fragments a message is split into.
package chunking

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	mRand "math/rand"
)

// FragmentIdentifierLength is the length of a serialized FragmentIdentifier.
const FragmentIdentifierLength = 4 + 1

// ErrInvalidFragmentIdentifier is returned when deserialization fails.
var ErrInvalidFragmentIdentifier = errors.New("chunking: invalid fragment identifier")

// CoverFragmentID is the identifier reserved for cover traffic.  Set id 0
// is never assigned to a real message.
var CoverFragmentID = FragmentIdentifier{SetID: 0, Position: 0}

// FragmentIdentifier names one fragment of one message set.
type FragmentIdentifier struct {
	SetID    int32
	Position uint8
}

// IsCover returns true iff id is the reserved cover identifier.
func (id FragmentIdentifier) IsCover() bool {
	return id == CoverFragmentID
}

// ToBytes serializes the identifier.
func (id FragmentIdentifier) ToBytes() []byte {
	b := make([]byte, FragmentIdentifierLength)
	binary.BigEndian.PutUint32(b, uint32(id.SetID))
	b[4] = id.Position
	return b
}

func (id FragmentIdentifier) String() string {
	if id.IsCover() {
		return "cover"
	}
	return fmt.Sprintf("%d/%d", id.SetID, id.Position)
}

// FragmentIdentifierFromBytes deserializes an identifier.  Negative set ids
// are never produced and are rejected.
func FragmentIdentifierFromBytes(b []byte) (FragmentIdentifier, error) {
	if len(b) != FragmentIdentifierLength {
		return FragmentIdentifier{}, fmt.Errorf("%w: length %d", ErrInvalidFragmentIdentifier, len(b))
	}
	id := FragmentIdentifier{
		SetID:    int32(binary.BigEndian.Uint32(b)),
		Position: b[4],
	}
	if id.SetID < 0 {
		return FragmentIdentifier{}, fmt.Errorf("%w: negative set id", ErrInvalidFragmentIdentifier)
	}
	return id, nil
}

// RandomSetID returns a uniformly random set id in [1, MaxInt32].
func RandomSetID(rng *mRand.Rand) int32 {
	return rng.Int31n(math.MaxInt32) + 1
}
