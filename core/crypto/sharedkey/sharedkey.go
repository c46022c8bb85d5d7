// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package sharedkey derives a stream cipher key from a one-shot NIKE
// exchange between a fresh ephemeral key pair and a long term public key.
package sharedkey

import (
	"crypto/sha256"
	"errors"
	"io"

	"github.com/katzenpost/hpqc/nike"
	"golang.org/x/crypto/hkdf"

	"github.com/katzenpost/cover/core/crypto/stream"
	"github.com/katzenpost/cover/core/utils"
)

var (
	// ErrNilKey is returned when no remote public key was supplied.
	ErrNilKey = errors.New("sharedkey: nil public key")

	// ErrInvalidKey is returned when the exchange rejects the ephemeral
	// key, such as a low order point.
	ErrInvalidKey = errors.New("sharedkey: invalid ephemeral key")
)

// EphemeralKey is the public half of an ephemeral exchange together with
// the key it derived.  The private half never leaves NewEphemeral.
type EphemeralKey struct {
	PublicKey nike.PublicKey
	SharedKey [stream.KeyLength]byte
}

// Reset clears the derived key.
func (k *EphemeralKey) Reset() {
	utils.ExplicitBzero(k.SharedKey[:])
}

// NewEphemeral generates an ephemeral key pair from rng and derives the
// shared key against remote.
func NewEphemeral(rng io.Reader, scheme nike.Scheme, remote nike.PublicKey) (*EphemeralKey, error) {
	if remote == nil {
		return nil, ErrNilKey
	}
	pub, priv, err := scheme.GenerateKeyPairFromEntropy(rng)
	if err != nil {
		return nil, err
	}
	defer priv.Reset()

	k := &EphemeralKey{PublicKey: pub}
	dh := scheme.DeriveSecret(priv, remote)
	defer utils.ExplicitBzero(dh)
	k.SharedKey = derive(dh)
	return k, nil
}

// Recompute derives the key an exchange with ephemeral produced, from the
// owner's side.  The ephemeral key is untrusted input.
func Recompute(scheme nike.Scheme, priv nike.PrivateKey, ephemeral nike.PublicKey) (key [stream.KeyLength]byte, err error) {
	if ephemeral == nil {
		return key, ErrNilKey
	}
	defer func() {
		if r := recover(); r != nil {
			key, err = [stream.KeyLength]byte{}, ErrInvalidKey
		}
	}()
	dh := scheme.DeriveSecret(priv, ephemeral)
	defer utils.ExplicitBzero(dh)
	return derive(dh), nil
}

// derive is HKDF-SHA256 with no salt and no info over the exchange output.
func derive(dh []byte) [stream.KeyLength]byte {
	var key [stream.KeyLength]byte
	h := hkdf.New(sha256.New, dh, nil, nil)
	if _, err := io.ReadFull(h, key[:]); err != nil {
		panic("sharedkey: BUG: hkdf failed: " + err.Error())
	}
	return key
}
