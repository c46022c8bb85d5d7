// math.go - math/rand adapter over a caller owned entropy source.
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

// Package rand bridges io.Reader entropy sources and the math/rand based
// sampling helpers in hpqc/rand.
package rand

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"

	"github.com/katzenpost/cover/core/utils"
)

// ErrEntropy is wrapped by the panic value raised when the reader behind a
// Rand from NewMathFromReader fails.
var ErrEntropy = errors.New("crypto/rand: failed to read entropy")

// readerSource is a rand.Source64 that pulls every sample from r.  It does
// no locking, the owner of r is responsible for serializing access.
type readerSource struct {
	r io.Reader
}

func (s *readerSource) Uint64() uint64 {
	var tmp [8]byte
	defer utils.ExplicitBzero(tmp[:])
	if _, err := io.ReadFull(s.r, tmp[:]); err != nil {
		panic(fmt.Errorf("%w: %w", ErrEntropy, err))
	}
	return binary.LittleEndian.Uint64(tmp[:])
}

func (s *readerSource) Int63() int64 {
	ret := s.Uint64()
	return int64(ret & ((1 << 63) - 1))
}

// Seed is a no-op, the state lives in the wrapped reader.
func (s *readerSource) Seed(unused int64) {}

// NewMathFromReader returns a math/rand.Rand whose output is drawn from r.
// When r already is a *rand.Rand it is returned unchanged.
func NewMathFromReader(r io.Reader) *rand.Rand {
	if m, ok := r.(*rand.Rand); ok {
		return m
	}
	return rand.New(&readerSource{r: r})
}

// Guard runs fn and returns an entropy failure of a Rand from
// NewMathFromReader as an error wrapping ErrEntropy.  Other panics
// propagate.
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errors.Is(e, ErrEntropy) {
				err = e
				return
			}
			panic(r)
		}
	}()
	return fn()
}
