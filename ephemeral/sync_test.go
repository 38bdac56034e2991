// SPDX-License-Identifier: LGPL-3.0-or-later

package ephemeral

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-net/ember/post"
	"github.com/ember-net/ember/transport"
)

type noopIdentity struct {
	pub ed25519.PublicKey
}

func (n *noopIdentity) Handle() string             { return "relay" }
func (n *noopIdentity) SignPub() ed25519.PublicKey { return n.pub }
func (n *noopIdentity) Sign(msg []byte) ([]byte, error) {
	return nil, nil
}

func newTestTransport(t *testing.T) *transport.Transport {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return transport.New(&noopIdentity{pub: pub}, nil)
}

func TestRequestPostsNoopsWithoutPeerSourceOrTransport(t *testing.T) {
	s := New("self", nil, "alice", nil, nil)
	// Must not panic with nil transport/peer source.
	s.RequestPosts([]string{"a", "b"})
}

func TestHandleRequestPostsRespondsWithHeldPosts(t *testing.T) {
	tr := newTestTransport(t)
	s := New("self", tr, "alice", nil, nil)
	p := newAuthoredPost(t, "hi", "", -1, "alice")
	s.Accept(p)

	msg := &transport.Message{Fields: map[string]any{"ids": []any{p.ID, "missing"}}}
	// Sender is not a connected peer, so the reply Send silently no-ops;
	// this exercises the encode path without panicking.
	s.HandleRequestPosts("peer1", msg)
}

func TestHandlePostsResponseDecodesAndDedupsAgainstSeen(t *testing.T) {
	s := New("self", nil, "alice", nil, nil)
	p := newAuthoredPost(t, "hi", "", -1, "alice")
	raw, err := post.EncodePost(p)
	require.NoError(t, err)

	var received []*post.Post
	receive := func(got *post.Post) { received = append(received, got) }

	msg := &transport.Message{Fields: map[string]any{
		"posts": []any{base64.StdEncoding.EncodeToString(raw)},
	}}
	s.HandlePostsResponse("peer1", msg, receive)
	require.Len(t, received, 1)
	assert.Equal(t, p.ID, received[0].ID)

	// Mark as seen and resend: must not be handed to receive again.
	s.Add(p.ID)
	received = nil
	s.HandlePostsResponse("peer1", msg, receive)
	assert.Empty(t, received)
}

func TestHandleParentUpdateAddsReplyToHeldParent(t *testing.T) {
	s := New("self", nil, "alice", nil, nil)
	parent := newAuthoredPost(t, "root", "", -1, "alice")
	s.Accept(parent)

	msg := &transport.Message{Fields: map[string]any{"parent_id": parent.ID, "reply_id": "reply-1"}}
	s.HandleParentUpdate("peer1", msg)

	assert.Contains(t, parent.RepliesSnapshot(), "reply-1")
}

func TestHandleParentUpdateIgnoresUnknownParent(t *testing.T) {
	s := New("self", nil, "alice", nil, nil)
	msg := &transport.Message{Fields: map[string]any{"parent_id": "nope", "reply_id": "reply-1"}}
	s.HandleParentUpdate("peer1", msg)
}
