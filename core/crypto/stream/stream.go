// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package stream implements the AES-128-CTR mask applied to self-addressed
// payloads.
package stream

import (
	"crypto/cipher"

	"gitlab.com/yawning/bsaes.git"

	"github.com/katzenpost/cover/core/utils"
)

const (
	// KeyLength is the AES-128 key length in bytes.
	KeyLength = 16

	// IVLength is the CTR initial counter block length in bytes.
	IVLength = 16
)

// ZeroIV returns the all zero initial counter block.  Every key passed
// alongside it is ephemeral, so the key/IV pair never repeats.
func ZeroIV() *[IVLength]byte {
	return new([IVLength]byte)
}

// New returns an AES-128-CTR keystream.
func New(key *[KeyLength]byte, iv *[IVLength]byte) cipher.Stream {
	blk, err := bsaes.NewCipher(key[:])
	if err != nil {
		// Not covered by unit tests because this indicates a bug elsewhere.
		panic("stream: BUG: failed to create AES instance: " + err.Error())
	}
	return cipher.NewCTR(blk, iv[:])
}

// EncryptInPlace masks data with the keystream for key and iv.  Decryption
// is the same operation.
func EncryptInPlace(key *[KeyLength]byte, iv *[IVLength]byte, data []byte) {
	New(key, iv).XORKeyStream(data, data)
}

// Encrypt returns a masked copy of data.
func Encrypt(key *[KeyLength]byte, iv *[IVLength]byte, data []byte) []byte {
	out := make([]byte, len(data))
	New(key, iv).XORKeyStream(out, data)
	return out
}

// Reset clears key material.
func Reset(key *[KeyLength]byte) {
	utils.ExplicitBzero(key[:])
}
