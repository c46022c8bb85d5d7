// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package addressing implements client and mix node addresses.
package addressing

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/katzenpost/hpqc/nike"

	"github.com/katzenpost/cover/core/sphinx"
	"github.com/katzenpost/cover/core/sphinx/constants"
)

// ErrInvalidRecipient is returned when a recipient fails to parse.
var ErrInvalidRecipient = errors.New("addressing: invalid recipient")

// Recipient is the full address of a client: who it is, the key packets to
// it are encrypted for, and the gateway it receives through.
type Recipient struct {
	ClientIdentity [constants.RecipientIDLength]byte
	EncryptionKey  nike.PublicKey
	Gateway        [constants.NodeIDLength]byte
}

// SphinxDestination returns the Sphinx destination addressing this client
// at its gateway.
func (r *Recipient) SphinxDestination() *sphinx.Destination {
	return &sphinx.Destination{ID: r.ClientIdentity}
}

// GatewayID returns a pointer to a copy of the gateway identity key hash.
func (r *Recipient) GatewayID() *[constants.NodeIDLength]byte {
	id := r.Gateway
	return &id
}

// MarshalBinary serializes the recipient as identity, encryption key and
// gateway, concatenated.
func (r *Recipient) MarshalBinary() ([]byte, error) {
	if r.EncryptionKey == nil {
		return nil, fmt.Errorf("%w: missing encryption key", ErrInvalidRecipient)
	}
	key := r.EncryptionKey.Bytes()
	b := make([]byte, 0, len(r.ClientIdentity)+len(key)+len(r.Gateway))
	b = append(b, r.ClientIdentity[:]...)
	b = append(b, key...)
	b = append(b, r.Gateway[:]...)
	return b, nil
}

// RecipientFromBytes deserializes a recipient whose encryption key belongs
// to scheme.
func RecipientFromBytes(b []byte, scheme nike.Scheme) (*Recipient, error) {
	keyLen := scheme.PublicKeySize()
	if len(b) != constants.RecipientIDLength+keyLen+constants.NodeIDLength {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidRecipient, len(b))
	}
	r := new(Recipient)
	copy(r.ClientIdentity[:], b[:constants.RecipientIDLength])
	b = b[constants.RecipientIDLength:]
	key, err := scheme.UnmarshalBinaryPublicKey(b[:keyLen])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	r.EncryptionKey = key
	copy(r.Gateway[:], b[keyLen:])
	return r, nil
}

// String returns the textual form "identity.encryption@gateway", each part
// hex encoded.
func (r *Recipient) String() string {
	var key []byte
	if r.EncryptionKey != nil {
		key = r.EncryptionKey.Bytes()
	}
	return fmt.Sprintf("%x.%x@%x", r.ClientIdentity[:], key, r.Gateway[:])
}

// RecipientFromString parses the textual form produced by String.
func RecipientFromString(s string, scheme nike.Scheme) (*Recipient, error) {
	client, gateway, ok := strings.Cut(s, "@")
	if !ok {
		return nil, fmt.Errorf("%w: missing gateway", ErrInvalidRecipient)
	}
	identity, encryption, ok := strings.Cut(client, ".")
	if !ok {
		return nil, fmt.Errorf("%w: missing encryption key", ErrInvalidRecipient)
	}

	r := new(Recipient)
	if err := decodeFixed(r.ClientIdentity[:], identity); err != nil {
		return nil, fmt.Errorf("%w: identity: %v", ErrInvalidRecipient, err)
	}
	if err := decodeFixed(r.Gateway[:], gateway); err != nil {
		return nil, fmt.Errorf("%w: gateway: %v", ErrInvalidRecipient, err)
	}
	raw, err := hex.DecodeString(encryption)
	if err != nil {
		return nil, fmt.Errorf("%w: encryption key: %v", ErrInvalidRecipient, err)
	}
	if r.EncryptionKey, err = scheme.UnmarshalBinaryPublicKey(raw); err != nil {
		return nil, fmt.Errorf("%w: encryption key: %v", ErrInvalidRecipient, err)
	}
	return r, nil
}

func decodeFixed(dst []byte, s string) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}
