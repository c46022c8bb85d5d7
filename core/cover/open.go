// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package cover

import (
	"github.com/katzenpost/hpqc/nike"

	"github.com/katzenpost/cover/core/ack"
	"github.com/katzenpost/cover/core/crypto/sharedkey"
	"github.com/katzenpost/cover/core/crypto/stream"
)

// Open decrypts a delivered cover payload with the recipient's private key
// and reports which kind of cover it is.  It returns false for anything
// that is not cover addressed to priv.
func Open(scheme nike.Scheme, priv nike.PrivateKey, payload []byte) (Kind, bool) {
	for _, l := range []struct {
		kind   Kind
		offset int
	}{
		{Drop, 0},
		{Loop, ack.BlobLength(scheme)},
	} {
		keyEnd := l.offset + scheme.PublicKeySize()
		if len(payload) <= keyEnd {
			continue
		}
		eph, err := scheme.UnmarshalBinaryPublicKey(payload[l.offset:keyEnd])
		if err != nil {
			continue
		}
		key, err := sharedkey.Recompute(scheme, priv, eph)
		if err != nil {
			continue
		}
		content := stream.Encrypt(&key, stream.ZeroIV(), payload[keyEnd:])
		stream.Reset(&key)
		if k, ok := KindOf(content); ok && k == l.kind {
			return k, true
		}
	}
	return 0, false
}
