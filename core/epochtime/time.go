// time.go - Katzenpost epoch time.
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

// Package epochtime implements the epoch clock that topology documents and
// mix keys are published against.
package epochtime

import "time"

// Period is the duration of an epoch.
var Period = 20 * time.Minute

// WarpedEpoch may be set to "true" at build time to shorten Period for
// local test networks.
var WarpedEpoch string

// Epoch is the start of epoch 0, in UTC.
var Epoch = time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC)

// Now returns the current epoch, time since the start of the current epoch,
// and time till the next epoch.
func Now() (current uint64, elapsed, till time.Duration) {
	return At(time.Now())
}

// At is Now evaluated at t.
func At(t time.Time) (current uint64, elapsed, till time.Duration) {
	fromEpoch := t.Sub(Epoch)
	if fromEpoch < 0 {
		panic("epochtime: BUG: time appears to predate the epoch")
	}

	current = uint64(fromEpoch / Period)
	base := Start(current)
	elapsed = t.Sub(base)
	till = base.Add(Period).Sub(t)
	return
}

// Start returns the instant epoch e begins.
func Start(e uint64) time.Time {
	return Epoch.Add(time.Duration(e) * Period)
}

// IsStale reports whether a document for epoch e is unusable at t.  Mix
// keys are published one epoch ahead, so only the current and the next
// epoch are fresh.
func IsStale(e uint64, t time.Time) bool {
	current, _, _ := At(t)
	return e < current || e > current+1
}

func init() {
	if WarpedEpoch == "true" {
		Period = 2 * time.Minute
	}
}
