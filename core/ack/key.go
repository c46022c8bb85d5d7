// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package ack implements SURB acknowledgements: self-addressed packets that
// travel back to their sender once a message reaches its destination.
package ack

import (
	"errors"
	"fmt"
	"io"

	"github.com/katzenpost/cover/core/chunking"
	"github.com/katzenpost/cover/core/crypto/stream"
	"github.com/katzenpost/cover/core/utils"
)

// IdentifierLength is the length of an encrypted fragment identifier.
const IdentifierLength = stream.IVLength + chunking.FragmentIdentifierLength

// ErrInvalidKey is returned when key material has the wrong length.
var ErrInvalidKey = errors.New("ack: invalid key")

// Key is the client's long term acknowledgement key.  Fragment identifiers
// carried by SURB-acks are encrypted under it so only the client can read
// them.
type Key struct {
	key [stream.KeyLength]byte
}

// NewKey generates a key from rng.
func NewKey(rng io.Reader) (*Key, error) {
	k := new(Key)
	if _, err := io.ReadFull(rng, k.key[:]); err != nil {
		return nil, err
	}
	return k, nil
}

// KeyFromBytes loads a serialized key.
func KeyFromBytes(b []byte) (*Key, error) {
	if len(b) != stream.KeyLength {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidKey, len(b))
	}
	k := new(Key)
	copy(k.key[:], b)
	return k, nil
}

// Bytes returns a copy of the key material.
func (k *Key) Bytes() []byte {
	return append([]byte{}, k.key[:]...)
}

// Reset clears the key material.
func (k *Key) Reset() {
	utils.ExplicitBzero(k.key[:])
}

// PrepareIdentifier encrypts id under key with a fresh IV, returning
// IV || ciphertext.
func PrepareIdentifier(rng io.Reader, key *Key, id chunking.FragmentIdentifier) ([]byte, error) {
	var iv [stream.IVLength]byte
	if _, err := io.ReadFull(rng, iv[:]); err != nil {
		return nil, err
	}
	out := make([]byte, 0, IdentifierLength)
	out = append(out, iv[:]...)
	return append(out, stream.Encrypt(&key.key, &iv, id.ToBytes())...), nil
}

// RecoverIdentifier reverses PrepareIdentifier.
func RecoverIdentifier(key *Key, b []byte) (chunking.FragmentIdentifier, error) {
	if len(b) != IdentifierLength {
		return chunking.FragmentIdentifier{}, fmt.Errorf("ack: invalid identifier length %d", len(b))
	}
	var iv [stream.IVLength]byte
	copy(iv[:], b[:stream.IVLength])
	return chunking.FragmentIdentifierFromBytes(stream.Encrypt(&key.key, &iv, b[stream.IVLength:]))
}
