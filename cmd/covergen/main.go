// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// covergen builds, inspects and continuously emits mixnet cover traffic.
package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/katzenpost/cover/config"
	"github.com/katzenpost/cover/core/cover"
	"github.com/katzenpost/cover/core/log"
	"github.com/katzenpost/cover/core/pki"
	"github.com/katzenpost/cover/internal/cli"
)

const (
	flagConfig  = "config"
	flagKeysDir = "keys-dir"
	flagOut     = "out"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "covergen",
		Short: "Mixnet cover traffic generator",
		Long: `covergen builds drop and loop cover packets for a client of a mix
network, checks payloads for cover markers and runs the Poisson cover
traffic schedule.

Use gentopology to create a synthetic network whose keys are known, so
that generated packets can be delivered and inspected locally.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(
		newGenKeysCmd(),
		newGenTopologyCmd(),
		newGeometryCmd(),
		newPacketCmd(cover.Drop),
		newPacketCmd(cover.Loop),
		newDetectCmd(),
		newRunCmd(),
	)
	return cmd
}

func main() {
	cli.Execute(newRootCmd())
}

func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().StringP(flagConfig, "c", "", "path to the TOML configuration file (required)")
	_ = cmd.MarkFlagRequired(flagConfig)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	f, _ := cmd.Flags().GetString(flagConfig)
	if f == "" {
		return nil, errors.New("config file must be specified")
	}
	cfg, err := config.LoadFile(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%v': %v", f, err)
	}
	return cfg, nil
}

func newBackend(cfg *config.Config) (*log.Backend, error) {
	return log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
}

// session is everything a configured client needs to emit cover.
type session struct {
	cfg     *config.Config
	doc     *pki.Document
	factory *cover.Factory
	client  *clientKeys
}

func newSession(cfg *config.Config, backend *log.Backend) (*session, error) {
	keys, err := loadClientKeys(cfg)
	if err != nil {
		return nil, err
	}
	doc, err := cfg.Topology.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load topology: %v", err)
	}
	scheme := cfg.Client.Scheme()
	return &session{
		cfg: cfg,
		doc: doc,
		factory: cover.NewFactory(scheme,
			cover.WithPacketSize(cfg.PacketSize),
			cover.WithLogger(backend.GetLogger("cover")),
		),
		client: keys,
	}, nil
}

func millis(ms uint64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
