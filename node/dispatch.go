// SPDX-License-Identifier: LGPL-3.0-or-later

package node

import (
	"context"

	"github.com/ember-net/ember/internal/logger"
	"github.com/ember-net/ember/transport"
)

// dispatch is the transport.Sink registered against the node's Transport:
// it routes every inbound wire message to the subsystem that owns its
// type, the way spec.md §4/§6 describe message types as each belonging to
// exactly one collaborator.
func (n *Node) dispatch(peer transport.PeerID, msg *transport.Message) {
	switch msg.Type {
	case transport.TypeDHTRPC:
		n.DHT.HandleMessage(context.Background(), peer, msg)
	case transport.TypeHyParView:
		n.Overlay.HandleMessage(peer, msg)
	case transport.TypePlumtree:
		n.Tree.HandleMessage(peer, msg)
	case transport.TypeScribe:
		n.Scribe.HandleMessage(peer, msg)
	case transport.TypeNewPost:
		n.Post.HandleNewPost(peer, msg)
	case transport.TypePostAttestation:
		n.Post.HandleAttestation(peer, msg)
	case transport.TypeCarrierUpdate:
		n.Ephemeral.HandleCarrierUpdate(peer, msg)
	case transport.TypeParentUpdate:
		n.Ephemeral.HandleParentUpdate(peer, msg)
	case transport.TypeRequestPosts:
		n.Ephemeral.HandleRequestPosts(peer, msg)
	case transport.TypePostsResponse:
		n.Ephemeral.HandlePostsResponse(peer, msg, n.Post.Receive)
	case transport.TypeRequestImage:
		n.Image.HandleRequestImage(peer, msg)
	case transport.TypeRequestImageChunks:
		n.Image.HandleRequestImageChunks(peer, msg)
	case transport.TypeImageResponse:
		n.Image.HandleImageResponse(peer, msg)
	case transport.TypeChunkResponse:
		n.Image.HandleChunkResponse(peer, msg)
	case transport.TypeNoise:
		n.Mixer.HandleNoise(peer, msg)
	}
}

// handleConnect fires once a peer's auth handshake completes, for both
// outbound dials and inbound accepts. It folds the new peer into both
// membership collaborators that learn about the network purely through
// live connections: the DHT routing table and the HyParView active view
// (spec.md §4.2, §4.3).
func (n *Node) handleConnect(peer transport.PeerID, addr string) {
	ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()

	if err := n.DHT.Bootstrap(ctx, peer, addr); err != nil {
		logger.Warn("node: dht bootstrap failed", logger.String("peer", string(peer)), logger.Error(err))
	}
	if err := n.Overlay.Bootstrap(peer, addr); err != nil {
		logger.Warn("node: overlay bootstrap failed", logger.String("peer", string(peer)), logger.Error(err))
	}
}
