// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/katzenpost/hpqc/rand"
	"github.com/spf13/cobra"

	"github.com/katzenpost/cover/core/ack"
	"github.com/katzenpost/cover/core/cover"
	"github.com/katzenpost/cover/core/mixpacket"
	"github.com/katzenpost/cover/core/params"
	"github.com/katzenpost/cover/core/sphinx"
	"github.com/katzenpost/cover/core/sphinx/geo"
	"github.com/katzenpost/cover/internal/cli"
	"github.com/katzenpost/cover/internal/testnet"
)

func (s *session) build(kind cover.Kind) (*mixpacket.MixPacket, error) {
	t := s.cfg.Traffic
	switch kind {
	case cover.Drop:
		return s.factory.DropCoverPacket(rand.Reader, s.doc, s.client.self, millis(t.AvgPacketDelay))
	case cover.Loop:
		return s.factory.LoopCoverPacket(rand.Reader, s.doc, s.client.ackKey, s.client.self, millis(t.AvgAckDelay), millis(t.AvgPacketDelay))
	default:
		return nil, fmt.Errorf("invalid cover kind %v", kind)
	}
}

// delivery is the outcome of pushing a packet through a local network.
type delivery struct {
	hops    []string
	kind    cover.Kind
	isCover bool

	// acked is set when a loop's ack made it back and decrypted to the
	// cover fragment identifier.
	acked      bool
	ackPayload []byte
}

func (s *session) deliver(n *testnet.Network, mp *mixpacket.MixPacket) (*delivery, error) {
	scheme := s.cfg.Client.Scheme()
	payload, hops, err := n.Deliver(sphinx.NewSphinx(scheme, s.factory.PacketSize().Geometry(scheme)), mp)
	if err != nil {
		return nil, err
	}
	d := new(delivery)
	for _, h := range hops {
		d.hops = append(d.hops, h.Node.Descriptor.Name)
	}
	d.kind, d.isCover = cover.Open(scheme, s.client.private, payload)
	if d.isCover && d.kind == cover.Loop {
		d.ackPayload, _, err = n.ReturnAck(payload)
		if err != nil {
			return nil, fmt.Errorf("ack delivery: %v", err)
		}
		id, err := ack.RecoverIdentifier(s.client.ackKey, d.ackPayload)
		d.acked = err == nil && id.IsCover()
	}
	return d, nil
}

func newPacketCmd(kind cover.Kind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind.String(),
		Short: fmt.Sprintf("Build a %s cover packet", kind),
		Long: fmt.Sprintf(`Build a %s cover packet addressed to the configured client.

With --keys-dir the packet is delivered through the local network written
by gentopology and the received payload is checked for the cover marker.`, kind),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPacket(cmd, kind)
		},
	}
	addConfigFlag(cmd)
	cmd.Flags().StringP(flagOut, "o", "", "write the CBOR encoded mix packet to this file")
	cmd.Flags().String(flagKeysDir, "", "node keys written by gentopology, to deliver the packet locally")
	return cmd
}

func runPacket(cmd *cobra.Command, kind cover.Kind) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	backend, err := newBackend(cfg)
	if err != nil {
		return err
	}
	s, err := newSession(cfg, backend)
	if err != nil {
		return err
	}
	mp, err := s.build(kind)
	if err != nil {
		return err
	}

	fields := []cli.Field{
		{Key: "kind", Value: kind},
		{Key: "next hop", Value: mp.NextHop},
		{Key: "mode", Value: mp.Mode},
		{Key: "packet", Value: fmt.Sprintf("%d bytes", len(mp.Packet))},
	}
	if out, _ := cmd.Flags().GetString(flagOut); out != "" {
		b, err := mp.MarshalBinary()
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, b, 0600); err != nil {
			return err
		}
		fields = append(fields, cli.Field{Key: "written", Value: out})
	}
	if dir, _ := cmd.Flags().GetString(flagKeysDir); dir != "" {
		n, err := testnet.Load(cfg.Client.Scheme(), s.doc, dir)
		if err != nil {
			return err
		}
		d, err := s.deliver(n, mp)
		if err != nil {
			return err
		}
		fields = append(fields,
			cli.Field{Key: "route", Value: strings.Join(d.hops, " -> ")},
			cli.Field{Key: "cover", Value: d.isCover},
		)
		if d.isCover {
			fields = append(fields, cli.Field{Key: "detected", Value: d.kind})
		}
		if kind == cover.Loop {
			fields = append(fields, cli.Field{Key: "acked", Value: d.acked})
		}
	}
	return cli.Report(cmd.OutOrStdout(), "Cover packet", fields...)
}

func newDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect [hex payload]",
		Short: "Check whether a payload is cover traffic",
		Long: `Check a decrypted payload for the drop or loop cover marker.

With --config the payload is treated as it arrives at the client: it is
first decrypted with the client's key, then checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDetect,
	}
	cmd.Flags().StringP(flagConfig, "c", "", "client configuration, to open received payloads")
	cmd.Flags().StringP("file", "f", "", "read the raw payload from this file")
	return cmd
}

func readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	file, _ := cmd.Flags().GetString("file")
	switch {
	case file != "" && len(args) != 0:
		return nil, errors.New("invalid argument: give either a hex payload or --file")
	case file != "":
		return os.ReadFile(file)
	case len(args) == 1:
		b, err := hex.DecodeString(strings.TrimSpace(args[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid argument: payload is not hex: %v", err)
		}
		return b, nil
	default:
		return nil, errors.New("accepts a hex payload or --file, received neither")
	}
}

func runDetect(cmd *cobra.Command, args []string) error {
	payload, err := readPayload(cmd, args)
	if err != nil {
		return err
	}

	var (
		kind cover.Kind
		ok   bool
	)
	if f, _ := cmd.Flags().GetString(flagConfig); f != "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		keys, err := loadClientKeys(cfg)
		if err != nil {
			return err
		}
		kind, ok = cover.Open(cfg.Client.Scheme(), keys.private, payload)
	} else {
		kind, ok = cover.KindOf(payload)
	}

	fields := []cli.Field{
		{Key: "bytes", Value: len(payload)},
		{Key: "cover", Value: ok},
	}
	if ok {
		fields = append(fields, cli.Field{Key: "kind", Value: kind})
	}
	return cli.Report(cmd.OutOrStdout(), "Payload", fields...)
}

func newGeometryCmd() *cobra.Command {
	var (
		nikeName string
		size     string
		full     bool
	)
	cmd := &cobra.Command{
		Use:   "geometry",
		Short: "Show the packet geometry and cover capacity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scheme, err := geo.NIKESchemeByName(nikeName)
			if err != nil {
				return fmt.Errorf("invalid argument --nike: %v", err)
			}
			p, err := params.PacketSizeFromString(size)
			if err != nil {
				return fmt.Errorf("invalid argument --size: %v", err)
			}
			g := p.Geometry(scheme)
			if full {
				_, err := fmt.Fprint(cmd.OutOrStdout(), g.Display())
				return err
			}

			keyLen := scheme.PublicKeySize()
			blobLen := ack.BlobLength(scheme)
			capacity := "ok"
			if err := cover.ValidateCapacity(scheme, p); err != nil {
				capacity = err.Error()
			}
			return cli.Report(cmd.OutOrStdout(), "Geometry",
				cli.Field{Key: "nike", Value: scheme.Name()},
				cli.Field{Key: "size", Value: p},
				cli.Field{Key: "plaintext", Value: p.PlaintextSize()},
				cli.Field{Key: "packet", Value: g.PacketLength},
				cli.Field{Key: "hops", Value: g.NrHops},
				cli.Field{Key: "ephemeral key", Value: keyLen},
				cli.Field{Key: "ack blob", Value: blobLen},
				cli.Field{Key: "drop filler", Value: p.PlaintextSize() - keyLen},
				cli.Field{Key: "loop filler", Value: p.PlaintextSize() - keyLen - blobLen},
				cli.Field{Key: "capacity", Value: capacity},
			)
		},
	}
	cmd.Flags().StringVar(&nikeName, "nike", "x25519", "NIKE scheme")
	cmd.Flags().StringVar(&size, "size", params.DefaultPacketSize.String(), "packet size preset: regular, ack or extended")
	cmd.Flags().BoolVar(&full, "toml", false, "print the full geometry as TOML")
	return cmd
}
