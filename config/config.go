// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package config provides the cover traffic client configuration.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/katzenpost/hpqc/hash"
	"github.com/katzenpost/hpqc/nike"
	nikepem "github.com/katzenpost/hpqc/nike/pem"

	"github.com/katzenpost/cover/client"
	"github.com/katzenpost/cover/core/ack"
	"github.com/katzenpost/cover/core/addressing"
	"github.com/katzenpost/cover/core/cover"
	"github.com/katzenpost/cover/core/log"
	"github.com/katzenpost/cover/core/params"
	"github.com/katzenpost/cover/core/pki"
	"github.com/katzenpost/cover/core/sphinx/constants"
	"github.com/katzenpost/cover/core/sphinx/geo"
)

const (
	defaultLogLevel       = "NOTICE"
	defaultNIKE           = "x25519"
	defaultAvgAckDelay    = 50
	defaultAvgPacketDelay = 50
	defaultAckSlack       = 30000

	// PrivateKeyFile is the client's NIKE private key, in DataDir.
	PrivateKeyFile = "cover.nike.private.pem"

	// PublicKeyFile is the client's NIKE public key, in DataDir.
	PublicKeyFile = "cover.nike.public.pem"

	// AckKeyFile holds the hex encoded SURB-ack key, in DataDir.
	AckKeyFile = "cover.ack.key"
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	if lCfg.Level == "" {
		lCfg.Level = defaultLogLevel
	}
	lCfg.Level = strings.ToUpper(lCfg.Level)
	if err := log.ValidateLevel(lCfg.Level); err != nil {
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	return nil
}

// Client is the identity of the client sending cover traffic.
type Client struct {
	// NIKE is the name of the mix network's NIKE scheme.
	NIKE string

	// DataDir is the absolute path to the directory holding the key files.
	DataDir string

	// Gateway is the hex encoded identity key hash of the client's gateway.
	Gateway string
}

func (cCfg *Client) validate() error {
	if cCfg.NIKE == "" {
		cCfg.NIKE = defaultNIKE
	}
	if _, err := geo.NIKESchemeByName(cCfg.NIKE); err != nil {
		return fmt.Errorf("config: Client: %v", err)
	}
	if !filepath.IsAbs(cCfg.DataDir) {
		return fmt.Errorf("config: Client: DataDir '%v' is not an absolute path", cCfg.DataDir)
	}
	if _, err := cCfg.GatewayID(); err != nil {
		return err
	}
	return nil
}

// Scheme returns the configured NIKE scheme.
func (cCfg *Client) Scheme() nike.Scheme {
	s, err := geo.NIKESchemeByName(cCfg.NIKE)
	if err != nil {
		panic("config: BUG: Scheme called on an unvalidated config: " + err.Error())
	}
	return s
}

// GatewayID decodes Gateway.
func (cCfg *Client) GatewayID() (*[constants.NodeIDLength]byte, error) {
	b, err := hex.DecodeString(cCfg.Gateway)
	if err != nil || len(b) != constants.NodeIDLength {
		return nil, fmt.Errorf("config: Client: Gateway '%v' is not a %d byte hex id", cCfg.Gateway, constants.NodeIDLength)
	}
	id := new([constants.NodeIDLength]byte)
	copy(id[:], b)
	return id, nil
}

func (cCfg *Client) path(name string) string {
	return filepath.Join(cCfg.DataDir, name)
}

// GenerateKeys writes a fresh NIKE key pair and SURB-ack key to DataDir.
// Existing keys are never overwritten.
func (cCfg *Client) GenerateKeys(rng io.Reader) error {
	for _, f := range []string{PrivateKeyFile, PublicKeyFile, AckKeyFile} {
		if _, err := os.Stat(cCfg.path(f)); err == nil {
			return fmt.Errorf("config: refusing to overwrite '%v'", cCfg.path(f))
		}
	}
	if err := os.MkdirAll(cCfg.DataDir, 0700); err != nil {
		return err
	}

	scheme := cCfg.Scheme()
	pub, priv, err := scheme.GenerateKeyPairFromEntropy(rng)
	if err != nil {
		return err
	}
	defer priv.Reset()
	if err := nikepem.PrivateKeyToFile(cCfg.path(PrivateKeyFile), priv, scheme); err != nil {
		return err
	}
	if err := nikepem.PublicKeyToFile(cCfg.path(PublicKeyFile), pub, scheme); err != nil {
		return err
	}

	k, err := ack.NewKey(rng)
	if err != nil {
		return err
	}
	defer k.Reset()
	return os.WriteFile(cCfg.path(AckKeyFile), []byte(hex.EncodeToString(k.Bytes())+"\n"), 0600)
}

// LoadKeys reads the client's NIKE key pair.
func (cCfg *Client) LoadKeys() (nike.PublicKey, nike.PrivateKey, error) {
	scheme := cCfg.Scheme()
	priv, err := nikepem.FromPrivatePEMFile(cCfg.path(PrivateKeyFile), scheme)
	if err != nil {
		return nil, nil, err
	}
	pub, err := nikepem.FromPublicPEMFile(cCfg.path(PublicKeyFile), scheme)
	if err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(scheme.DerivePublicKey(priv).Bytes(), pub.Bytes()) {
		return nil, nil, errors.New("config: public key does not match private key")
	}
	return pub, priv, nil
}

// LoadAckKey reads the SURB-ack key.
func (cCfg *Client) LoadAckKey() (*ack.Key, error) {
	b, err := os.ReadFile(cCfg.path(AckKeyFile))
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("config: %v: %v", AckKeyFile, err)
	}
	return ack.KeyFromBytes(raw)
}

// Recipient returns the client's own full address for pub.
func (cCfg *Client) Recipient(pub nike.PublicKey) (*addressing.Recipient, error) {
	gw, err := cCfg.GatewayID()
	if err != nil {
		return nil, err
	}
	r := &addressing.Recipient{
		EncryptionKey: pub,
		Gateway:       *gw,
	}
	id := hash.Sum256(pub.Bytes())
	copy(r.ClientIdentity[:], id[:])
	return r, nil
}

// Traffic is the cover traffic schedule.  Zero rates and delays are taken
// from the topology document.
type Traffic struct {
	// AvgAckDelay is the average per-hop delay of loop cover
	// acknowledgements, in milliseconds.
	AvgAckDelay uint64

	// AvgPacketDelay is the average per-hop delay of cover packets, in
	// milliseconds.
	AvgPacketDelay uint64

	// LoopLambda is the inverse of the mean interval between loop cover
	// packets, in milliseconds.
	LoopLambda float64

	// LoopMaxDelay caps the interval between loop cover packets, in
	// milliseconds.
	LoopMaxDelay uint64

	// DropLambda is the inverse of the mean interval between drop cover
	// packets, in milliseconds.
	DropLambda float64

	// DropMaxDelay caps the interval between drop cover packets, in
	// milliseconds.
	DropMaxDelay uint64

	// AckSlack is how late a loop acknowledgement may be before the loop
	// is counted as lost, in milliseconds.
	AckSlack uint64

	DisableLoop bool
	DisableDrop bool
}

func (tCfg *Traffic) applyDefaults() {
	if tCfg.AvgAckDelay == 0 {
		tCfg.AvgAckDelay = defaultAvgAckDelay
	}
	if tCfg.AvgPacketDelay == 0 {
		tCfg.AvgPacketDelay = defaultAvgPacketDelay
	}
	if tCfg.AckSlack == 0 {
		tCfg.AckSlack = defaultAckSlack
	}
}

func (tCfg *Traffic) validate() error {
	if tCfg.LoopLambda < 0 || tCfg.DropLambda < 0 {
		return errors.New("config: Traffic: rates must not be negative")
	}
	if (tCfg.LoopLambda == 0) != (tCfg.LoopMaxDelay == 0) {
		return errors.New("config: Traffic: LoopLambda and LoopMaxDelay must be set together")
	}
	if (tCfg.DropLambda == 0) != (tCfg.DropMaxDelay == 0) {
		return errors.New("config: Traffic: DropLambda and DropMaxDelay must be set together")
	}
	if tCfg.DisableLoop && tCfg.DisableDrop {
		return errors.New("config: Traffic: both loop and drop cover are disabled")
	}
	return nil
}

// SenderConfig fills in the schedule part of a client.Config.
func (tCfg *Traffic) SenderConfig(cfg *client.Config) {
	cfg.LoopRate = client.Rate{Lambda: tCfg.LoopLambda, MaxDelay: tCfg.LoopMaxDelay}
	cfg.DropRate = client.Rate{Lambda: tCfg.DropLambda, MaxDelay: tCfg.DropMaxDelay}
	cfg.AvgAckDelay = time.Duration(tCfg.AvgAckDelay) * time.Millisecond
	cfg.AvgPacketDelay = time.Duration(tCfg.AvgPacketDelay) * time.Millisecond
	cfg.AckSlack = time.Duration(tCfg.AckSlack) * time.Millisecond
	cfg.DisableLoop = tCfg.DisableLoop
	cfg.DisableDrop = tCfg.DisableDrop
}

// Topology names the network snapshot cover is routed through.
type Topology struct {
	// DocumentFile is the path to a CBOR encoded topology document.
	DocumentFile string
}

func (tCfg *Topology) validate() error {
	if tCfg.DocumentFile == "" {
		return errors.New("config: Topology: DocumentFile is not set")
	}
	return nil
}

// Load reads and validates the topology document.
func (tCfg *Topology) Load() (*pki.Document, error) {
	return pki.LoadDocument(tCfg.DocumentFile)
}

// Metrics is the Prometheus exporter configuration.
type Metrics struct {
	// Address is the host:port to serve /metrics on.  Empty disables the
	// exporter.
	Address string
}

// Config is the top level cover traffic client configuration.
type Config struct {
	// PacketSize is the packet size preset cover is padded to.
	PacketSize params.PacketSize

	Logging  *Logging
	Client   *Client
	Traffic  *Traffic
	Topology *Topology
	Metrics  *Metrics
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration.  Most people should call one of the Load variants
// instead.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Client == nil {
		return errors.New("config: No Client block was present")
	}
	if cfg.Topology == nil {
		return errors.New("config: No Topology block was present")
	}
	if cfg.Logging == nil {
		l := defaultLogging
		cfg.Logging = &l
	}
	if cfg.Traffic == nil {
		cfg.Traffic = &Traffic{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}
	cfg.Traffic.applyDefaults()

	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	if err := cfg.Client.validate(); err != nil {
		return err
	}
	if err := cfg.Traffic.validate(); err != nil {
		return err
	}
	if err := cfg.Topology.validate(); err != nil {
		return err
	}
	if err := cover.ValidateCapacity(cfg.Client.Scheme(), cfg.PacketSize); err != nil {
		return fmt.Errorf("config: PacketSize '%v': %w", cfg.PacketSize, err)
	}
	return nil
}

// Store writes cfg to fileName as TOML.
func Store(cfg *Config, fileName string) error {
	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(fileName, buf.Bytes(), 0600)
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("No nil buffer as config file")
	}

	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
