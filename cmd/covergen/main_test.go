// SPDX-FileCopyrightText: Copyright (C) 2026 The Katzenpost Authors
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/cover/config"
	"github.com/katzenpost/cover/core/cover"
	"github.com/katzenpost/cover/core/mixpacket"
	"github.com/katzenpost/cover/core/pki"
)

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func requireField(t *testing.T, out, key, value string) {
	t.Helper()
	re := regexp.MustCompile(regexp.QuoteMeta(key) + `:\s+` + regexp.QuoteMeta(value))
	require.Regexpf(t, re, out, "missing %s: %s", key, value)
}

// workspace is a generated network plus a client configured against it.
type workspace struct {
	dir     string
	doc     string
	keysDir string
	config  string
}

func newWorkspace(t *testing.T) *workspace {
	require := require.New(t)
	dir := t.TempDir()
	w := &workspace{
		dir:     dir,
		doc:     filepath.Join(dir, "topology.cbor"),
		keysDir: filepath.Join(dir, "nodes"),
		config:  filepath.Join(dir, "covergen.toml"),
	}

	out, err := execute("gentopology", "--layers", "3", "--per-layer", "2", "--gateways", "2", "-o", w.doc, "--keys-dir", w.keysDir)
	require.NoError(err, out)
	doc, err := pki.LoadDocument(w.doc)
	require.NoError(err)
	require.Len(doc.Topology, 3)
	require.Len(doc.GatewayNodes, 2)
	gw := doc.GatewayNodes[1].IdentityKeyHash()
	requireField(t, out, "gateway-1", hex.EncodeToString(gw[:]))

	cfg := fmt.Sprintf(`
[Logging]
  Disable = true

[Client]
  DataDir = %q
  Gateway = %q

[Traffic]
  AvgAckDelay = 1
  AvgPacketDelay = 1
  LoopLambda = 0.5
  LoopMaxDelay = 10
  DropLambda = 0.5
  DropMaxDelay = 10

[Topology]
  DocumentFile = %q
`, filepath.Join(dir, "client"), hex.EncodeToString(gw[:]), w.doc)
	require.NoError(os.WriteFile(w.config, []byte(cfg), 0600))

	out, err = execute("genkeys", "-c", w.config)
	require.NoError(err, out)
	require.Contains(out, "recipient")
	for _, f := range []string{config.PrivateKeyFile, config.PublicKeyFile, config.AckKeyFile} {
		require.FileExists(filepath.Join(dir, "client", f))
	}
	return w
}

func TestGenKeysRefusesOverwrite(t *testing.T) {
	w := newWorkspace(t)
	_, err := execute("genkeys", "-c", w.config)
	require.ErrorContains(t, err, "refusing to overwrite")
}

func TestDropPacket(t *testing.T) {
	w := newWorkspace(t)
	out, err := execute("drop", "-c", w.config, "--keys-dir", w.keysDir)
	require.NoError(t, err, out)
	requireField(t, out, "kind", "drop")
	requireField(t, out, "cover", "true")
	requireField(t, out, "detected", "drop")
	require.Contains(t, out, "gateway-1")
	require.NotContains(t, out, "acked")
}

func TestLoopPacket(t *testing.T) {
	require := require.New(t)
	w := newWorkspace(t)
	pktFile := filepath.Join(w.dir, "loop.cbor")

	out, err := execute("loop", "-c", w.config, "--keys-dir", w.keysDir, "--out", pktFile)
	require.NoError(err, out)
	requireField(t, out, "kind", "loop")
	requireField(t, out, "detected", "loop")
	requireField(t, out, "acked", "true")

	b, err := os.ReadFile(pktFile)
	require.NoError(err)
	mp := new(mixpacket.MixPacket)
	require.NoError(mp.UnmarshalBinary(b))
	require.Equal(mixpacket.ModeMix, mp.Mode)
	require.NotNil(mp.NextHop)
}

func TestPacketWithoutKeys(t *testing.T) {
	w := newWorkspace(t)
	require.NoError(t, os.Remove(filepath.Join(w.dir, "client", config.AckKeyFile)))
	_, err := execute("loop", "-c", w.config)
	require.ErrorContains(t, err, "ack key")
}

func TestMissingConfig(t *testing.T) {
	_, err := execute("drop")
	require.Error(t, err)
	require.ErrorContains(t, err, "required flag")

	_, err = execute("drop", "-c", filepath.Join(t.TempDir(), "nope.toml"))
	require.ErrorContains(t, err, "failed to load config file")
}

func TestDetect(t *testing.T) {
	require := require.New(t)

	out, err := execute("detect", hex.EncodeToString([]byte(cover.LoopMarker+"\x01 trailing")))
	require.NoError(err)
	requireField(t, out, "cover", "true")
	requireField(t, out, "kind", "loop")

	f := filepath.Join(t.TempDir(), "payload")
	require.NoError(os.WriteFile(f, []byte(cover.DropMarker), 0600))
	out, err = execute("detect", "--file", f)
	require.NoError(err)
	requireField(t, out, "kind", "drop")

	out, err = execute("detect", "00ff")
	require.NoError(err)
	requireField(t, out, "cover", "false")

	_, err = execute("detect", "zz")
	require.ErrorContains(err, "not hex")
	_, err = execute("detect", "00", "--file", f)
	require.Error(err)
	_, err = execute("detect")
	require.Error(err)
}

func TestDetectEncrypted(t *testing.T) {
	w := newWorkspace(t)
	// The encrypted filler of a drop payload never carries a plaintext
	// marker, so without the client's key it is not recognised.
	junk := make([]byte, 512)
	for i := range junk {
		junk[i] = byte(i)
	}
	out, err := execute("detect", "-c", w.config, hex.EncodeToString(junk))
	require.NoError(t, err)
	requireField(t, out, "cover", "false")
}

func TestGeometry(t *testing.T) {
	require := require.New(t)

	out, err := execute("geometry")
	require.NoError(err)
	requireField(t, out, "packet", "2394")
	requireField(t, out, "ephemeral key", "32")
	requireField(t, out, "ack blob", "386")
	requireField(t, out, "loop filler", "1630")
	requireField(t, out, "capacity", "ok")

	out, err = execute("geometry", "--size", "ack")
	require.NoError(err)
	require.Contains(out, "cannot hold")

	out, err = execute("geometry", "--toml")
	require.NoError(err)
	require.Contains(out, "PacketLength = 2394")

	_, err = execute("geometry", "--nike", "rot13")
	require.ErrorContains(err, "invalid argument")
	_, err = execute("geometry", "--size", "jumbo")
	require.ErrorContains(err, "invalid argument")
}

func TestRun(t *testing.T) {
	w := newWorkspace(t)
	out, err := execute("run", "-c", w.config, "--keys-dir", w.keysDir, "--count", "6")
	require.NoError(t, err, out)
	require.Contains(t, out, "Cover traffic")
	requireField(t, out, "lost", "0")
}
