// SPDX-License-Identifier: LGPL-3.0-or-later

package overlay

import (
	"context"
	"crypto/ed25519"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func pairedOverlays(t *testing.T) (server *Overlay, client *Overlay, serverPeer transport.PeerID) {
	t.Helper()

	serverTransport := transport.New(newTestIdentity(t), nil)
	clientTransport := transport.New(newTestIdentity(t), nil)

	server = New("server", serverTransport, nil)
	client = New("client", clientTransport, nil)

	serverTransport.SetSink(func(peer transport.PeerID, msg *transport.Message) {
		if msg.Type == transport.TypeHyParView {
			server.HandleMessage(peer, msg)
		}
	})
	clientTransport.SetSink(func(peer transport.PeerID, msg *transport.Message) {
		if msg.Type == transport.TypeHyParView {
			client.HandleMessage(peer, msg)
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

	serverPeer = clientTransport.Peers()[0]
	return server, client, serverPeer
}

func TestBootstrapAddsBothSidesToActiveView(t *testing.T) {
	server, client, serverPeer := pairedOverlays(t)

	require.NoError(t, client.Bootstrap(serverPeer, ""))

	require.Eventually(t, func() bool { return server.ActiveViewSize() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, client.ActiveViewSize())
}

func TestAddActiveEvictsOneMemberWhenFull(t *testing.T) {
	tr := transport.New(newTestIdentity(t), nil)
	o := New("self", tr, nil)
	o.activeMax = 2

	var evicted []transport.PeerID
	o.SetOnActiveChange(func(peer transport.PeerID, joined bool) {
		if !joined {
			evicted = append(evicted, peer)
		}
	})

	o.addActive("a", "")
	o.addActive("b", "")
	assert.Equal(t, 2, o.ActiveViewSize())

	o.addActive("c", "")
	assert.Equal(t, 2, o.ActiveViewSize())
	assert.Len(t, evicted, 1)
}

func TestAddActiveIgnoresSelf(t *testing.T) {
	tr := transport.New(newTestIdentity(t), nil)
	o := New("self", tr, nil)
	o.addActive("self", "")
	assert.Equal(t, 0, o.ActiveViewSize())
}

func TestRepairFailureRemovesFromActive(t *testing.T) {
	tr := transport.New(newTestIdentity(t), nil)
	o := New("self", tr, nil)
	o.addActive("dead-peer", "")
	require.Equal(t, 1, o.ActiveViewSize())

	o.RepairFailure("dead-peer")
	assert.Equal(t, 0, o.ActiveViewSize())
}
