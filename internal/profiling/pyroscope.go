//go:build pyroscope
// +build pyroscope

// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package profiling

import (
	"os"

	"github.com/grafana/pyroscope-go"
	"gopkg.in/op/go-logging.v1"
)

// Start ships CPU and allocation profiles to the Pyroscope server named by
// PYROSCOPE_SERVER_ADDRESS.  The application name defaults to app and may be
// overridden with PYROSCOPE_APP_NAME.
func Start(app string, log *logging.Logger) error {
	cfg, err := configFromEnv(app, os.Getenv)
	if err != nil {
		return err
	}
	_, err = pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.appName,
		ServerAddress:   cfg.serverAddress,
		Logger:          pyroscope.StandardLogger,
		Tags:            cfg.tags,
	})
	if err != nil {
		return err
	}
	log.Noticef("Pyroscope profiling to %s as %s", cfg.serverAddress, cfg.appName)
	return nil
}
