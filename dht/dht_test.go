// SPDX-License-Identifier: LGPL-3.0-or-later

package dht

import (
	"context"
	"crypto/ed25519"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-net/ember/storage/memory"
	"github.com/ember-net/ember/transport"
)

type testIdentity struct {
	handle string
	pub    ed25519.PublicKey
	priv   ed25519.PrivateKey
}

func newTestIdentity(t *testing.T) *testIdentity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return &testIdentity{handle: "node", pub: pub, priv: priv}
}

func (id *testIdentity) Handle() string             { return id.handle }
func (id *testIdentity) SignPub() ed25519.PublicKey { return id.pub }
func (id *testIdentity) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(id.priv, msg), nil
}

// pairedNodes wires two dht.Node instances over a real websocket
// transport, each one's HandleMessage fed by the other's sink, matching
// how the node-level dispatcher wires dht_rpc frames in production.
func pairedNodes(t *testing.T) (serverNode *Node, clientNode *Node, clientPeer transport.PeerID) {
	t.Helper()

	serverTransport := transport.New(newTestIdentity(t), nil)
	clientTransport := transport.New(newTestIdentity(t), nil)

	serverNode = New(IDFromKey("server"), serverTransport, memory.NewStore(), nil)
	clientNode = New(IDFromKey("client"), clientTransport, memory.NewStore(), nil)

	serverTransport.SetSink(func(peer transport.PeerID, msg *transport.Message) {
		if msg.Type == transport.TypeDHTRPC {
			serverNode.HandleMessage(context.Background(), peer, msg)
		}
	})
	clientTransport.SetSink(func(peer transport.PeerID, msg *transport.Message) {
		if msg.Type == transport.TypeDHTRPC {
			clientNode.HandleMessage(context.Background(), peer, msg)
		}
	})

	connected := make(chan transport.PeerID, 1)
	serverTransport.SetOnConnect(func(peer transport.PeerID, addr string) { connected <- peer })

	srv := httptest.NewServer(serverTransport.Handler())
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clientTransport.Dial(ctx, wsURL))

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("handshake did not complete")
	}
	require.Eventually(t, func() bool { return len(clientTransport.Peers()) == 1 }, 5*time.Second, 10*time.Millisecond)

	clientPeer = clientTransport.Peers()[0]
	return serverNode, clientNode, clientPeer
}

func TestBootstrapPopulatesRoutingTable(t *testing.T) {
	serverNode, clientNode, serverPeer := pairedNodes(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clientNode.Bootstrap(ctx, serverPeer, ""))
	assert.GreaterOrEqual(t, clientNode.Count(), 1)
	_ = serverNode
}

func TestStoreAndGetRoundTripAcrossPeers(t *testing.T) {
	_, clientNode, serverPeer := pairedNodes(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clientNode.Bootstrap(ctx, serverPeer, ""))

	replicas, err := clientNode.Store(ctx, "routing:alice", []byte("wire-peer-1"), StoreOptions{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, replicas, 0)

	v, ok, err := clientNode.Get(ctx, "routing:alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "wire-peer-1", string(v))
}

func TestFindNodeReturnsRemoteRoutingTableEntries(t *testing.T) {
	serverNode, clientNode, serverPeer := pairedNodes(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clientNode.Bootstrap(ctx, serverPeer, ""))

	serverNode.table.Add(Contact{NodeID: IDFromKey("third-party"), Peer: "third-party-peer", LastSeen: time.Now()})

	contacts, err := clientNode.FindNode(ctx, IDFromKey("third-party"))
	require.NoError(t, err)
	var found bool
	for _, c := range contacts {
		if c.NodeID == IDFromKey("third-party") {
			found = true
		}
	}
	assert.True(t, found)
}
