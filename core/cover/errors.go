// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package cover

import (
	"errors"
	"fmt"

	"github.com/katzenpost/cover/core/sphinx/path"
)

var (
	// ErrNoValidProviders is returned when a layer of the route has no
	// node that may be used.
	ErrNoValidProviders = errors.New("cover: no valid providers available")

	// ErrInvalidTopology is returned when no route can be built from the
	// topology, including every SURB-ack construction failure.
	ErrInvalidTopology = errors.New("cover: invalid topology")

	// ErrInvalidFirstMixAddress is returned when the first hop of the
	// route is not a routable address.
	ErrInvalidFirstMixAddress = errors.New("cover: invalid first mix address")
)

// SphinxError wraps a failure of the packet construction step.
type SphinxError struct {
	Err error
}

func (e *SphinxError) Error() string {
	return "cover: sphinx: " + e.Err.Error()
}

func (e *SphinxError) Unwrap() error {
	return e.Err
}

// CapacityError reports a packet size that cannot hold the fixed parts of a
// cover payload.  It is a configuration error, construction panics with it.
type CapacityError struct {
	Kind          Kind
	PlaintextSize int
	KeyLength     int
	AckLength     int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("cover: %v plaintext of %d bytes cannot hold a %d byte key and a %d byte ack",
		e.Kind, e.PlaintextSize, e.KeyLength, e.AckLength)
}

// routeError maps a route selection failure onto the closed taxonomy.  The
// cause is kept in the message only, so exactly one sentinel matches.
func routeError(err error) error {
	if errors.Is(err, path.ErrNoEligibleNodes) {
		return fmt.Errorf("%w: %v", ErrNoValidProviders, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidTopology, err)
}
