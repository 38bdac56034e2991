// SPDX-License-Identifier: LGPL-3.0-or-later

package scribe

import (
	"context"
	"crypto/ed25519"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-net/ember/config"
	"github.com/ember-net/ember/dht"
	"github.com/ember-net/ember/storage/memory"
	"github.com/ember-net/ember/transport"
)

type testIdentity struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newTestIdentity(t *testing.T) *testIdentity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return &testIdentity{pub: pub, priv: priv}
}

func (id *testIdentity) Handle() string             { return "node" }
func (id *testIdentity) SignPub() ed25519.PublicKey { return id.pub }
func (id *testIdentity) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(id.priv, msg), nil
}

// pairedScribes wires a server and client Scribe over a real websocket
// transport pair. serverSeenFromClient is the PeerID the client uses to
// address the server (what clientScribe's topicState.parent will hold);
// clientSeenFromServer is the PeerID the server uses to address the
// client (the key serverScribe's topicState.children will hold).
func pairedScribes(t *testing.T, topic string) (serverScribe *Scribe, clientScribe *Scribe, delivered chan string, serverSeenFromClient, clientSeenFromServer transport.PeerID) {
	t.Helper()

	serverTransport := transport.New(newTestIdentity(t), nil)
	clientTransport := transport.New(newTestIdentity(t), nil)

	serverDHT := dht.New(dht.IDFromKey("server"), serverTransport, memory.NewStore(), nil)
	clientDHT := dht.New(dht.IDFromKey("client"), clientTransport, memory.NewStore(), nil)

	delivered = make(chan string, 8)
	serverScribe = New("server", serverTransport, serverDHT, nil, func(topic string, payload []byte) { delivered <- string(payload) })
	clientScribe = New("client", clientTransport, clientDHT, nil, func(topic string, payload []byte) { delivered <- string(payload) })

	serverTransport.SetSink(func(peer transport.PeerID, msg *transport.Message) {
		if msg.Type == transport.TypeScribe {
			serverScribe.HandleMessage(peer, msg)
		}
	})
	clientTransport.SetSink(func(peer transport.PeerID, msg *transport.Message) {
		if msg.Type == transport.TypeScribe {
			clientScribe.HandleMessage(peer, msg)
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
	case p := <-connected:
		clientSeenFromServer = p
	case <-time.After(5 * time.Second):
		t.Fatal("handshake did not complete")
	}
	require.Eventually(t, func() bool { return len(clientTransport.Peers()) == 1 }, 5*time.Second, 10*time.Millisecond)
	serverSeenFromClient = clientTransport.Peers()[0]

	// Seed the client's routing table with the rendezvous id pointing at
	// the server, so the client's JOIN actually routes over the wire
	// instead of the client trivially electing itself rendezvous.
	rendezvous := dht.IDFromKey(topic)
	clientDHT.Seed(dht.Contact{NodeID: rendezvous, Peer: serverSeenFromClient})

	return serverScribe, clientScribe, delivered, serverSeenFromClient, clientSeenFromServer
}

func TestSubscribeBecomesRootWhenNoCloserPeerKnown(t *testing.T) {
	tr := transport.New(newTestIdentity(t), nil)
	node := dht.New(dht.IDFromKey("solo"), tr, memory.NewStore(), nil)
	s := New("solo", tr, node, nil, nil)

	s.Subscribe("isolated")

	ts := s.topics["isolated"]
	require.NotNil(t, ts)
	assert.True(t, ts.isRoot)
	assert.Empty(t, ts.parent)
}

func TestSubscribeJoinsUpstreamAcrossRealTransport(t *testing.T) {
	serverScribe, clientScribe, _, serverSeenFromClient, clientSeenFromServer := pairedScribes(t, "weather")

	clientScribe.Subscribe("weather")

	require.Eventually(t, func() bool {
		ts := clientScribe.topics["weather"]
		return ts != nil && ts.parent != ""
	}, 2*time.Second, 10*time.Millisecond)

	ts := clientScribe.topics["weather"]
	assert.Equal(t, serverSeenFromClient, ts.parent)

	require.Eventually(t, func() bool {
		sts := serverScribe.topics["weather"]
		return sts != nil && sts.children[clientSeenFromServer]
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMulticastDeliversAcrossTree(t *testing.T) {
	serverScribe, clientScribe, delivered, _, _ := pairedScribes(t, "weather")

	clientScribe.Subscribe("weather")
	require.Eventually(t, func() bool {
		ts := clientScribe.topics["weather"]
		return ts != nil && ts.parent != ""
	}, 2*time.Second, 10*time.Millisecond)

	serverScribe.Multicast("weather", "msg-1", []byte("storm incoming"))

	select {
	case payload := <-delivered:
		assert.Equal(t, "storm incoming", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("client never received multicast payload")
	}
}

func TestHandleJoinRejectsOverCapacity(t *testing.T) {
	tr := transport.New(newTestIdentity(t), nil)
	node := dht.New(dht.IDFromKey("root"), tr, memory.NewStore(), nil)
	s := New("root", tr, node, &config.ScribeConfig{MaxChildren: 1}, nil)

	ts := s.topicOrCreate("packed")
	ts.isRoot = true

	s.handleJoin("child-a", "packed")
	assert.True(t, ts.children["child-a"])
	assert.Len(t, ts.children, 1)

	s.handleJoin("child-b", "packed")
	assert.False(t, ts.children["child-b"])
	assert.Len(t, ts.children, 1)
}
