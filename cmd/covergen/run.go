// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/cover/client"
	"github.com/katzenpost/cover/core/cover"
	"github.com/katzenpost/cover/internal/cli"
	"github.com/katzenpost/cover/internal/instrument"
	"github.com/katzenpost/cover/internal/profiling"
	"github.com/katzenpost/cover/internal/testnet"
)

const sinkCapacity = 64

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Emit cover traffic on the Poisson schedule",
		Long: `Run the loop and drop cover processes until interrupted, or until
--count packets have been emitted.

Without a transport the packets are only logged.  With --keys-dir each
packet is delivered through the local network written by gentopology and
loop acknowledgements are fed back, so loss accounting works end to end.`,
		Args: cobra.NoArgs,
		RunE: runCover,
	}
	addConfigFlag(cmd)
	cmd.Flags().Int("count", 0, "stop after this many packets, 0 runs until interrupted")
	cmd.Flags().String(flagKeysDir, "", "node keys written by gentopology, to deliver packets locally")
	return cmd
}

func runCover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	backend, err := newBackend(cfg)
	if err != nil {
		return err
	}
	log := backend.GetLogger("covergen")

	if err := profiling.Start("covergen", log); err != nil && !errors.Is(err, profiling.ErrNoServer) {
		log.Warningf("Profiling disabled: %v", err)
	}
	if addr := cfg.Metrics.Address; addr != "" {
		srv := instrument.Serve(addr, log, backend.GetGoLogger("metrics", "WARNING"))
		defer srv.Close()
	}

	s, err := newSession(cfg, backend)
	if err != nil {
		return err
	}
	var n *testnet.Network
	if dir, _ := cmd.Flags().GetString(flagKeysDir); dir != "" {
		if n, err = testnet.Load(cfg.Client.Scheme(), s.doc, dir); err != nil {
			return err
		}
	}

	sink := client.NewSink(sinkCapacity)
	senderCfg := &client.Config{
		Factory: s.factory,
		Self:    s.client.self,
		AckKey:  s.client.ackKey,
		Sink:    sink,
		Log:     backend.GetLogger("client"),
	}
	cfg.Traffic.SenderConfig(senderCfg)
	sender, err := client.NewSender(senderCfg)
	if err != nil {
		return err
	}
	defer sender.Halt()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	log.Noticef("Emitting cover as %v", s.client.self)
	sender.UpdateDocument(s.doc)

	count, _ := cmd.Flags().GetInt("count")
	emitted := map[cover.Kind]int{}
	start := time.Now()
	for count == 0 || emitted[cover.Loop]+emitted[cover.Drop] < count {
		select {
		case <-ctx.Done():
			log.Notice("Interrupted, shutting down")
			return report(cmd, sender, emitted, start)
		case <-hup:
			if err := backend.Rotate(); err != nil {
				log.Errorf("Failed to rotate log: %v", err)
			}
		case o := <-sink.C():
			emitted[o.Kind]++
			log.Infof("%v cover %v", o.Kind, o.Packet)
			if n != nil {
				deliverLocally(ctx, log, s, n, sender, o)
			}
		}
	}
	return report(cmd, sender, emitted, start)
}

func deliverLocally(ctx context.Context, log *logging.Logger, s *session, n *testnet.Network, sender *client.Sender, o *client.Outgoing) {
	d, err := s.deliver(n, o.Packet)
	if err != nil {
		log.Errorf("Local delivery of %v cover failed: %v", o.Kind, err)
		return
	}
	if !d.isCover || d.kind != o.Kind {
		log.Errorf("Delivered %v cover did not open as %v", o.Kind, o.Kind)
		return
	}
	if d.ackPayload == nil {
		return
	}
	// Cover acks come back after the ack route's mixing delay.
	delay := millis(s.cfg.Traffic.AvgAckDelay)
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
			sender.OnAck(d.ackPayload)
		}
	}()
}

func report(cmd *cobra.Command, sender *client.Sender, emitted map[cover.Kind]int, start time.Time) error {
	sent, lost := sender.Stats()
	return cli.Report(cmd.OutOrStdout(), "Cover traffic",
		cli.Field{Key: "elapsed", Value: time.Since(start).Round(time.Millisecond)},
		cli.Field{Key: "loop", Value: emitted[cover.Loop]},
		cli.Field{Key: "drop", Value: emitted[cover.Drop]},
		cli.Field{Key: "sent", Value: sent},
		cli.Field{Key: "lost", Value: lost},
		cli.Field{Key: "pending", Value: sender.Pending()},
	)
}
