// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"context"
	"crypto/ed25519"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testIdentity struct {
	handle string
	pub    ed25519.PublicKey
	priv   ed25519.PrivateKey
}

func newTestIdentity(t *testing.T, handle string) *testIdentity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return &testIdentity{handle: handle, pub: pub, priv: priv}
}

func (id *testIdentity) Handle() string             { return id.handle }
func (id *testIdentity) SignPub() ed25519.PublicKey { return id.pub }
func (id *testIdentity) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(id.priv, msg), nil
}

func TestHandshakeAndSendRoundTrip(t *testing.T) {
	serverIdentity := newTestIdentity(t, "server")
	clientIdentity := newTestIdentity(t, "client")

	serverTransport := New(serverIdentity, nil)
	clientTransport := New(clientIdentity, nil)

	connected := make(chan PeerID, 1)
	serverTransport.SetOnConnect(func(peer PeerID, addr string) { connected <- peer })

	received := make(chan *Message, 1)
	serverTransport.SetSink(func(peer PeerID, msg *Message) { received <- msg })

	srv := httptest.NewServer(serverTransport.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clientTransport.Dial(ctx, wsURL))

	select {
	case peer := <-connected:
		assert.NotEmpty(t, peer)
	case <-time.After(5 * time.Second):
		t.Fatal("handshake did not complete")
	}

	// Wait for the client side to register the server as a ready peer too.
	require.Eventually(t, func() bool {
		return len(clientTransport.Peers()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	serverPeer := clientTransport.Peers()[0]
	require.NoError(t, clientTransport.Send(serverPeer, TypeNewPost, map[string]any{"content": "hi"}))

	select {
	case msg := <-received:
		assert.Equal(t, TypeNewPost, msg.Type)
		assert.Equal(t, "hi", msg.Fields["content"])
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}

	serverTransport.Close()
	clientTransport.Close()
}

func TestSendToUnknownPeerErrors(t *testing.T) {
	tr := New(newTestIdentity(t, "n"), nil)
	err := tr.Send(PeerID("ghost"), TypeNewPost, map[string]any{"content": "x"})
	assert.Error(t, err)
}

func TestSendDropsOversizedMessage(t *testing.T) {
	tr := New(newTestIdentity(t, "n"), nil)
	tr.maxMessageBytes = 16
	err := tr.Send(PeerID("anyone"), TypeNewPost, map[string]any{"content": strings.Repeat("x", 100)})
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}
