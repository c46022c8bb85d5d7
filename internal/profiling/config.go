// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package profiling optionally streams continuous profiles to Pyroscope.
package profiling

import "errors"

// ErrNoServer is returned when PYROSCOPE_SERVER_ADDRESS is unset.
var ErrNoServer = errors.New("profiling: PYROSCOPE_SERVER_ADDRESS is not set")

type config struct {
	serverAddress string
	appName       string
	tags          map[string]string
}

func configFromEnv(app string, getenv func(string) string) (*config, error) {
	cfg := &config{
		serverAddress: getenv("PYROSCOPE_SERVER_ADDRESS"),
		appName:       app,
		tags:          map[string]string{"service": app},
	}
	if cfg.serverAddress == "" {
		return nil, ErrNoServer
	}
	if name := getenv("PYROSCOPE_APP_NAME"); name != "" {
		cfg.appName = name
	}
	if tag := getenv("PYROSCOPE_SERVICE_TAG"); tag != "" {
		cfg.tags["service"] = tag
	}
	return cfg, nil
}
