// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/katzenpost/hpqc/nike"
	"github.com/katzenpost/hpqc/rand"
	"github.com/spf13/cobra"

	"github.com/katzenpost/cover/config"
	"github.com/katzenpost/cover/core/ack"
	"github.com/katzenpost/cover/core/addressing"
	"github.com/katzenpost/cover/core/sphinx/geo"
	"github.com/katzenpost/cover/internal/cli"
	"github.com/katzenpost/cover/internal/testnet"
)

type clientKeys struct {
	public  nike.PublicKey
	private nike.PrivateKey
	ackKey  *ack.Key
	self    *addressing.Recipient
}

func loadClientKeys(cfg *config.Config) (*clientKeys, error) {
	pub, priv, err := cfg.Client.LoadKeys()
	if err != nil {
		return nil, fmt.Errorf("failed to load client keys, run genkeys first: %v", err)
	}
	ackKey, err := cfg.Client.LoadAckKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load ack key: %v", err)
	}
	self, err := cfg.Client.Recipient(pub)
	if err != nil {
		return nil, err
	}
	return &clientKeys{public: pub, private: priv, ackKey: ackKey, self: self}, nil
}

func newGenKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genkeys",
		Short: "Generate the client key pair and SURB-ack key",
		Long: `Generate the client's NIKE key pair and SURB-ack key in the configured
DataDir.  Existing keys are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Client.DataDir, 0700); err != nil {
				return err
			}
			if err := cfg.Client.GenerateKeys(rand.Reader); err != nil {
				return err
			}
			keys, err := loadClientKeys(cfg)
			if err != nil {
				return err
			}
			return cli.Report(cmd.OutOrStdout(), "Client keys",
				cli.Field{Key: "data dir", Value: cfg.Client.DataDir},
				cli.Field{Key: "nike", Value: cfg.Client.NIKE},
				cli.Field{Key: "recipient", Value: keys.self.String()},
			)
		},
	}
	addConfigFlag(cmd)
	return cmd
}

type topologyOptions struct {
	layers   int
	perLayer int
	gateways int
	nike     string
	out      string
	keysDir  string
}

func newGenTopologyCmd() *cobra.Command {
	opts := new(topologyOptions)
	cmd := &cobra.Command{
		Use:   "gentopology",
		Short: "Generate a synthetic mix network",
		Long: `Generate a layered mix network for the current epoch and write its
topology document as CBOR.  With --keys-dir every node's private key is
stored as well, which lets drop, loop and run deliver packets locally.`,
		Example: `  covergen gentopology --layers 3 --per-layer 2 --gateways 2 \
    --out topology.cbor --keys-dir nodes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return genTopology(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.layers, "layers", 3, "number of mix layers")
	cmd.Flags().IntVar(&opts.perLayer, "per-layer", 2, "mix nodes per layer")
	cmd.Flags().IntVar(&opts.gateways, "gateways", 2, "number of gateway nodes")
	cmd.Flags().StringVar(&opts.nike, "nike", "x25519", "NIKE scheme for the mix keys")
	cmd.Flags().StringVarP(&opts.out, flagOut, "o", "topology.cbor", "output document file")
	cmd.Flags().StringVar(&opts.keysDir, flagKeysDir, "", "directory to store node private keys in")
	return cmd
}

func genTopology(cmd *cobra.Command, opts *topologyOptions) error {
	scheme, err := geo.NIKESchemeByName(opts.nike)
	if err != nil {
		return fmt.Errorf("invalid argument --nike: %v", err)
	}
	n, err := testnet.New(rand.Reader, scheme, opts.layers, opts.perLayer, opts.gateways)
	if err != nil {
		return err
	}
	b, err := n.Document.MarshalBinary()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(opts.out); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	if err := os.WriteFile(opts.out, b, 0600); err != nil {
		return err
	}
	if opts.keysDir != "" {
		if err := n.StoreKeys(opts.keysDir); err != nil {
			return err
		}
	}

	fields := []cli.Field{
		{Key: "document", Value: opts.out},
		{Key: "epoch", Value: n.Document.Epoch},
		{Key: "mixes", Value: fmt.Sprintf("%d x %d", opts.layers, opts.perLayer)},
	}
	for _, gw := range n.Gateways {
		id := gw.ID()
		fields = append(fields, cli.Field{Key: gw.Descriptor.Name, Value: hex.EncodeToString(id[:])})
	}
	return cli.Report(cmd.OutOrStdout(), "Topology", fields...)
}
