// document_test.go - Document s11n tests.
// Copyright (C) 2017  Yawning Angel, masala, David Stainton
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

package pki

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/hpqc/nike/x25519"
	"github.com/katzenpost/hpqc/rand"
)

func genDescriptor(require *require.Assertions, idx int, gateway bool) *MixDescriptor {
	d := new(MixDescriptor)
	d.Name = fmt.Sprintf("gen%d.example.net", idx)
	d.Addresses = map[string][]string{
		TransportTCPv4: []string{fmt.Sprintf("192.0.2.%d:4242", idx)},
	}
	d.IsGatewayNode = gateway
	d.Epoch = debugTestEpoch
	d.Version = DescriptorVersion
	d.IdentityKey = []byte(fmt.Sprintf("identity-%d", idx))

	scheme := x25519.Scheme(rand.Reader)
	d.MixKeys = make(map[uint64][]byte)
	for e := debugTestEpoch; e < debugTestEpoch+3; e++ {
		pub, _, err := scheme.GenerateKeyPair()
		require.NoError(err, "[%d]: GenerateKeyPair()", e)
		d.MixKeys[uint64(e)] = pub.Bytes()
	}
	require.NoError(IsDescriptorWellFormed(d, debugTestEpoch), "IsDescriptorWellFormed(good)")
	return d
}

func genDocument(require *require.Assertions) *Document {
	doc := &Document{
		Epoch:           debugTestEpoch,
		Topology:        make([][]*MixDescriptor, 3),
		Mu:              0.42,
		MuMaxDelay:      23,
		LambdaL:         0.0005,
		LambdaLMaxDelay: 9000,
		LambdaD:         0.0007,
		LambdaDMaxDelay: 8000,
		Version:         DocumentVersion,
	}
	idx := 1
	for l := 0; l < 3; l++ {
		for i := 0; i < 5; i++ {
			doc.Topology[l] = append(doc.Topology[l], genDescriptor(require, idx, false))
			idx++
		}
	}
	for i := 0; i < 3; i++ {
		doc.GatewayNodes = append(doc.GatewayNodes, genDescriptor(require, idx, true))
		idx++
	}
	return doc
}

func TestDocument(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	doc := genDocument(require)
	require.NoError(doc.Validate())

	blob, err := doc.MarshalBinary()
	require.NoError(err)

	ddoc, err := ParseDocument(blob)
	require.NoError(err, "ParseDocument()")
	require.Equal(doc.Epoch, ddoc.Epoch, "ParseDocument(): Epoch")
	require.Equal(doc.Mu, ddoc.Mu, "ParseDocument(): Mu")
	require.Equal(doc.MuMaxDelay, ddoc.MuMaxDelay, "ParseDocument(): MuMaxDelay")
	require.Equal(doc.LambdaL, ddoc.LambdaL, "ParseDocument(): LambdaL")
	require.Equal(doc.LambdaLMaxDelay, ddoc.LambdaLMaxDelay, "ParseDocument(): LambdaLMaxDelay")
	require.Equal(doc.LambdaD, ddoc.LambdaD, "ParseDocument(): LambdaD")
	require.Equal(doc.LambdaDMaxDelay, ddoc.LambdaDMaxDelay, "ParseDocument(): LambdaDMaxDelay")
	require.Equal(doc.Version, ddoc.Version, "ParseDocument(): Version")

	// Serialization is canonical.
	again, err := ddoc.MarshalBinary()
	require.NoError(err)
	require.Equal(blob, again)
	require.Equal(doc.Sum256(), ddoc.Sum256())

	require.Contains(doc.String(), "GatewayNodes")
}

func TestDocumentLookups(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	doc := genDocument(require)

	gw := doc.GatewayNodes[1]
	id := gw.IdentityKeyHash()
	got, err := doc.GetGatewayByKeyHash(&id)
	require.NoError(err)
	require.Equal(gw, got)
	layer, err := doc.GetMixLayer(&id)
	require.NoError(err)
	require.Equal(uint8(LayerGateway), layer)

	mix := doc.Topology[2][3]
	id = mix.IdentityKeyHash()
	layer, err = doc.GetMixLayer(&id)
	require.NoError(err)
	require.Equal(uint8(2), layer)
	got, err = doc.GetNodeByKeyHash(&id)
	require.NoError(err)
	require.Equal(mix, got)

	got, err = doc.GetNode(gw.Name)
	require.NoError(err)
	require.Equal(gw, got)

	_, err = doc.GetGatewayByKeyHash(&id)
	require.ErrorIs(err, ErrNodeNotFound)
	_, err = doc.GetNode("nope.example.net")
	require.ErrorIs(err, ErrNodeNotFound)
}

func TestDocumentValidateRejects(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	doc := genDocument(require)
	doc.Topology[1] = nil
	require.ErrorIs(doc.Validate(), ErrInvalidDocument)

	doc = genDocument(require)
	doc.GatewayNodes = nil
	require.ErrorIs(doc.Validate(), ErrInvalidDocument)

	doc = genDocument(require)
	doc.Topology[0] = append(doc.Topology[0], doc.Topology[1][0])
	require.ErrorIs(doc.Validate(), ErrInvalidDocument)

	doc = genDocument(require)
	doc.GatewayNodes[0].IsGatewayNode = false
	require.ErrorIs(doc.Validate(), ErrInvalidDocument)

	doc = genDocument(require)
	doc.Version = "v9"
	require.ErrorIs(doc.Validate(), ErrInvalidDocument)
}

func TestLoadDocument(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	doc := genDocument(require)
	blob, err := doc.MarshalBinary()
	require.NoError(err)

	f := filepath.Join(t.TempDir(), "topology.cbor")
	require.NoError(os.WriteFile(f, blob, 0600))
	ddoc, err := LoadDocument(f)
	require.NoError(err)
	require.Equal(doc.Sum256(), ddoc.Sum256())

	_, err = LoadDocument(filepath.Join(t.TempDir(), "missing"))
	require.Error(err)
}
