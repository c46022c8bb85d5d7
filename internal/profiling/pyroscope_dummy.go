//go:build !pyroscope
// +build !pyroscope

// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package profiling

import "gopkg.in/op/go-logging.v1"

// Start does nothing, profiling needs the pyroscope build tag.
func Start(app string, log *logging.Logger) error {
	log.Debugf("%s: pyroscope profiling not compiled in", app)
	return nil
}
